package orders

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/lahmacun/internal/domain"
)

var (
	// ErrIdempotencyKeyReused: ключ уже использован с другими данными формы.
	ErrIdempotencyKeyReused = errors.New("idempotency key is already used with a different order")
	// ErrIdempotencyInProgress: запрос с тем же ключом ещё обрабатывается.
	ErrIdempotencyInProgress = errors.New("order with the same idempotency key is already being placed")
	// ErrIdempotencyPreviousFailure: первая попытка с этим ключом отклонена как некорректная.
	ErrIdempotencyPreviousFailure = errors.New("previous order attempt with the same idempotency key failed")
)

// claimFinishTimeout ограничивает запись итога заявки после ухода клиента.
const claimFinishTimeout = 5 * time.Second

// placeOrderClaimed оформляет заказ под ключом: первая попытка занимает ключ,
// повторные получают её результат. Сбой хранилища снимает заявку, и повтор
// с тем же ключом оформляет заказ заново.
func (s *Service) placeOrderClaimed(ctx context.Context, key string, customer domain.CustomerData) (PlaceOrderResult, error) {
	entry := s.logger.WithField("idempotency_key", key)
	fingerprint := orderFingerprint(customer)

	now := s.now()
	claim, err := s.idempotency.Claim(ctx, key, fingerprint, now, now.Add(s.idempotencyTTL))
	switch {
	case errors.Is(err, domain.ErrPlacementFingerprintMismatch):
		return PlaceOrderResult{}, ErrIdempotencyKeyReused
	case errors.Is(err, domain.ErrPlacementKeyTaken):
		return s.replayClaim(ctx, claim)
	case err != nil:
		return PlaceOrderResult{}, fmt.Errorf("claim idempotency key: %w", err)
	}

	result, placeErr := s.placeOrder(ctx, customer)

	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), claimFinishTimeout)
	defer cancel()

	if placeErr != nil {
		if domain.IsValidation(placeErr) {
			if err := s.idempotency.Reject(finishCtx, key, placeErr.Error()); err != nil {
				entry.WithError(err).Warn("failed to record rejected placement")
			}
			return PlaceOrderResult{}, placeErr
		}
		if err := s.idempotency.Release(finishCtx, key); err != nil {
			entry.WithError(err).Warn("failed to release placement claim")
		}
		return PlaceOrderResult{}, placeErr
	}

	if err := s.idempotency.Settle(finishCtx, key, result.Order.ID, result.NotificationQueued); err != nil {
		entry.WithError(err).Warn("failed to settle placement claim")
	}
	return result, nil
}

func (s *Service) replayClaim(ctx context.Context, claim domain.PlacementClaim) (PlaceOrderResult, error) {
	switch claim.State {
	case domain.PlacementInFlight:
		return PlaceOrderResult{}, ErrIdempotencyInProgress
	case domain.PlacementRejected:
		if claim.Reason == "" {
			return PlaceOrderResult{}, ErrIdempotencyPreviousFailure
		}
		return PlaceOrderResult{}, fmt.Errorf("%w: %s", ErrIdempotencyPreviousFailure, claim.Reason)
	case domain.PlacementPlaced:
	default:
		return PlaceOrderResult{}, fmt.Errorf("placement claim %s has unknown state %q", claim.Key, claim.State)
	}

	order, err := s.orders.Get(ctx, claim.OrderID)
	if err != nil {
		return PlaceOrderResult{}, fmt.Errorf("load replayed order: %w", err)
	}

	s.logger.WithFields(log.Fields{
		"idempotency_key": claim.Key,
		"order_id":        order.ID,
	}).Info("order replayed by idempotency key")
	return PlaceOrderResult{Order: order, NotificationQueued: claim.NotificationQueued, Replayed: true}, nil
}

// orderFingerprint считается по нормализованной форме: поля разделены \x1f,
// поэтому пробелы по краям не меняют отпечаток, а склейка соседних полей различима.
func orderFingerprint(customer domain.CustomerData) string {
	fields := []string{
		customer.Name,
		customer.Email,
		customer.Phone,
		string(customer.DeliveryMode),
		customer.Address,
		strconv.Itoa(customer.Quantity),
		customer.Notes,
	}
	sum := sha256.Sum256([]byte(strings.Join(fields, "\x1f")))
	return hex.EncodeToString(sum[:])
}
