package domain

import (
	"errors"
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// MaxQuantity ограничивает количество порций в одном заказе.
	MaxQuantity = 100
	// MaxNotesLength: предел длины заметок в символах.
	MaxNotesLength = 1000

	orderNumberPrefix = "ORDER-"
)

// CustomerData: данные формы заказа.
type CustomerData struct {
	Name         string
	Email        string
	Phone        string
	DeliveryMode DeliveryMode
	// Address обязателен только для доставки.
	Address  string
	Quantity int
	Notes    string
}

// Order: единственная сущность домена.
type Order struct {
	ID        string
	Number    string
	Status    OrderStatus
	Customer  CustomerData
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsDelivery сообщает режим исполнения заказа.
func (o Order) IsDelivery() bool {
	return o.Customer.DeliveryMode.IsDelivery()
}

// NextStatus возвращает следующий статус с учётом режима заказа.
func (o Order) NextStatus() OrderStatus {
	return NextStatus(o.Status, o.IsDelivery())
}

// CanAdvance сообщает, можно ли предложить администратору перевод статуса.
func (o Order) CanAdvance() bool {
	delivery := o.IsDelivery()
	if IsTerminal(o.Status, delivery) {
		return false
	}
	next := NextStatus(o.Status, delivery)
	return next != o.Status && IsRelevant(next, delivery)
}

// NotesEditable сообщает, можно ли сейчас менять заметки.
func (o Order) NotesEditable() bool {
	return NotesEditable(o.Status)
}

// Normalize убирает пробелы по краям и адрес у самовывоза.
func (c CustomerData) Normalize() CustomerData {
	c.Name = strings.TrimSpace(c.Name)
	c.Email = strings.TrimSpace(c.Email)
	c.Phone = strings.TrimSpace(c.Phone)
	c.Address = strings.TrimSpace(c.Address)
	c.Notes = strings.TrimSpace(c.Notes)
	c.DeliveryMode = DeliveryMode(strings.ToLower(strings.TrimSpace(string(c.DeliveryMode))))
	if c.DeliveryMode == DeliveryModePickup {
		c.Address = ""
	}
	return c
}

// Validate проверяет данные формы и возвращает список замечаний.
func (c CustomerData) Validate() []error {
	var errs []error

	if c.Name == "" {
		errs = append(errs, ErrNameRequired)
	}
	if c.Phone == "" {
		errs = append(errs, ErrPhoneRequired)
	}
	if c.Email != "" {
		if _, err := mail.ParseAddress(c.Email); err != nil {
			errs = append(errs, ErrEmailInvalid)
		}
	}
	if c.Quantity < 1 || c.Quantity > MaxQuantity {
		errs = append(errs, ErrQuantityInvalid)
	}
	switch {
	case !c.DeliveryMode.Valid():
		errs = append(errs, ErrDeliveryModeInvalid)
	case c.DeliveryMode.IsDelivery() && c.Address == "":
		errs = append(errs, ErrAddressRequired)
	}
	if err := ValidateNotes(c.Notes); err != nil {
		errs = append(errs, err)
	}

	return errs
}

// ValidateNotes проверяет длину заметок.
func ValidateNotes(notes string) error {
	if utf8.RuneCountInString(notes) > MaxNotesLength {
		return ErrNotesTooLong
	}
	return nil
}

// ValidateInvariants проверяет заказ целиком перед сохранением.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.ID == "" {
		errs = append(errs, ErrOrderIDRequired)
	}
	if _, err := ParseOrderNumber(o.Number); err != nil {
		errs = append(errs, err)
	}
	if !IsRelevant(o.Status, o.IsDelivery()) {
		errs = append(errs, ErrInvalidStatus)
	}
	errs = append(errs, o.Customer.Validate()...)

	return errs
}

// NewValidationError собирает замечания в одну ошибку под ErrInvalidOrder.
func NewValidationError(problems []error) error {
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidOrder, errors.Join(problems...))
}

// FormatOrderNumber формирует публичный номер вида ORDER-007.
func FormatOrderNumber(n int64) string {
	return fmt.Sprintf("%s%03d", orderNumberPrefix, n)
}

// ParseOrderNumber извлекает числовую часть номера заказа.
func ParseOrderNumber(number string) (int64, error) {
	digits, ok := strings.CutPrefix(number, orderNumberPrefix)
	if !ok || digits == "" {
		return 0, ErrOrderNumberInvalid
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || n <= 0 {
		return 0, ErrOrderNumberInvalid
	}
	return n, nil
}
