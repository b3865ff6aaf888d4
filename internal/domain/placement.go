package domain

import (
	"errors"
	"time"
)

// PlacementState: стадия оформления заказа, закреплённого за ключом Idempotency-Key.
type PlacementState string

const (
	PlacementInFlight PlacementState = "in_flight"
	PlacementPlaced   PlacementState = "placed"
	PlacementRejected PlacementState = "rejected"
)

var (
	ErrPlacementKeyRequired         = errors.New("idempotency key is required")
	ErrPlacementFingerprintRequired = errors.New("order fingerprint is required")
	ErrPlacementNotFound            = errors.New("placement claim not found")
	// ErrPlacementKeyTaken: ключ уже закреплён за той же формой заказа.
	ErrPlacementKeyTaken = errors.New("idempotency key is already claimed")
	// ErrPlacementFingerprintMismatch: ключ пришёл с другой формой заказа.
	ErrPlacementFingerprintMismatch = errors.New("idempotency key claimed by a different order form")
	ErrPlacementAlreadySettled      = errors.New("placement claim is already settled")
)

// PlacementClaim связывает ключ идемпотентности с результатом первой попытки.
// OrderID заполняется только в состоянии placed, Reason только в rejected.
type PlacementClaim struct {
	Key                string
	Fingerprint        string
	State              PlacementState
	OrderID            string
	NotificationQueued bool
	Reason             string
	ClaimedAt          time.Time
	SettledAt          time.Time
	ExpiresAt          time.Time
}

func (s PlacementState) Known() bool {
	return s == PlacementInFlight || s == PlacementPlaced || s == PlacementRejected
}

// Settled сообщает, что попытка завершилась так или иначе.
func (c PlacementClaim) Settled() bool {
	return c.State == PlacementPlaced || c.State == PlacementRejected
}

// Expired: ключ можно занимать заново.
func (c PlacementClaim) Expired(now time.Time) bool {
	return !c.ExpiresAt.After(now)
}

// IsPlacementConflict сообщает о повторном использовании ключа.
func IsPlacementConflict(err error) bool {
	return errors.Is(err, ErrPlacementKeyTaken) || errors.Is(err, ErrPlacementFingerprintMismatch)
}
