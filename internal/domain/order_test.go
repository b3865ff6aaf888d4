package domain_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/lahmacun/internal/domain"
)

// helper для создания базового заказа на доставку.
func makeOrder() domain.Order {
	now := time.Now().UTC()
	return domain.Order{
		ID:     "order-1",
		Number: "ORDER-001",
		Status: domain.OrderStatusPending,
		Customer: domain.CustomerData{
			Name:         "Ayhan",
			Email:        "ayhan@example.com",
			Phone:        "0600000000",
			DeliveryMode: domain.DeliveryModeDelivery,
			Address:      "1 rue de la Paix",
			Quantity:     2,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestOrderValidateInvariants_Ok(t *testing.T) {
	order := makeOrder()
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}
}

func TestOrderValidateInvariants_Errors(t *testing.T) {
	cases := []struct {
		name string
		mut  func(o *domain.Order)
		want error
	}{
		{name: "no id", mut: func(o *domain.Order) { o.ID = "" }, want: domain.ErrOrderIDRequired},
		{name: "bad number", mut: func(o *domain.Order) { o.Number = "42" }, want: domain.ErrOrderNumberInvalid},
		{name: "no name", mut: func(o *domain.Order) { o.Customer.Name = "" }, want: domain.ErrNameRequired},
		{name: "no phone", mut: func(o *domain.Order) { o.Customer.Phone = "" }, want: domain.ErrPhoneRequired},
		{name: "bad email", mut: func(o *domain.Order) { o.Customer.Email = "not-an-email" }, want: domain.ErrEmailInvalid},
		{name: "zero quantity", mut: func(o *domain.Order) { o.Customer.Quantity = 0 }, want: domain.ErrQuantityInvalid},
		{name: "huge quantity", mut: func(o *domain.Order) { o.Customer.Quantity = domain.MaxQuantity + 1 }, want: domain.ErrQuantityInvalid},
		{name: "unknown mode", mut: func(o *domain.Order) { o.Customer.DeliveryMode = "drone" }, want: domain.ErrDeliveryModeInvalid},
		{name: "delivery without address", mut: func(o *domain.Order) { o.Customer.Address = "" }, want: domain.ErrAddressRequired},
		{name: "notes too long", mut: func(o *domain.Order) { o.Customer.Notes = strings.Repeat("x", domain.MaxNotesLength+1) }, want: domain.ErrNotesTooLong},
		{name: "status of other mode", mut: func(o *domain.Order) { o.Status = domain.OrderStatusReadyForPickup }, want: domain.ErrInvalidStatus},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := makeOrder()
			tc.mut(&order)

			errs := order.ValidateInvariants()
			if len(errs) == 0 {
				t.Fatalf("expected validation errors for case %s", tc.name)
			}
			if !errors.Is(errors.Join(errs...), tc.want) {
				t.Fatalf("expected %v among %v", tc.want, errs)
			}
		})
	}
}

func TestCustomerDataNormalize_PickupDropsAddress(t *testing.T) {
	c := domain.CustomerData{
		Name:         "  Ayhan ",
		Phone:        " 06 ",
		DeliveryMode: " Pickup ",
		Address:      "somewhere",
		Quantity:     1,
	}.Normalize()

	if c.Name != "Ayhan" || c.Phone != "06" {
		t.Fatalf("expected trimmed fields, got %+v", c)
	}
	if c.DeliveryMode != domain.DeliveryModePickup {
		t.Fatalf("expected pickup mode, got %q", c.DeliveryMode)
	}
	if c.Address != "" {
		t.Fatalf("expected empty address for pickup, got %q", c.Address)
	}
	if errs := c.Validate(); len(errs) != 0 {
		t.Fatalf("expected valid pickup data, got %v", errs)
	}
}

func TestNewValidationError(t *testing.T) {
	if err := domain.NewValidationError(nil); err != nil {
		t.Fatalf("expected nil for empty problems, got %v", err)
	}

	err := domain.NewValidationError([]error{domain.ErrNameRequired, domain.ErrAddressRequired})
	if !errors.Is(err, domain.ErrInvalidOrder) {
		t.Fatalf("expected ErrInvalidOrder, got %v", err)
	}
	if !errors.Is(err, domain.ErrAddressRequired) {
		t.Fatalf("expected wrapped ErrAddressRequired, got %v", err)
	}
	if !domain.IsValidation(err) {
		t.Fatal("expected IsValidation to be true")
	}
}

func TestOrderNumberFormatAndParse(t *testing.T) {
	cases := []struct {
		n    int64
		want string
	}{
		{1, "ORDER-001"},
		{42, "ORDER-042"},
		{999, "ORDER-999"},
		{1000, "ORDER-1000"},
	}
	for _, tc := range cases {
		got := domain.FormatOrderNumber(tc.n)
		if got != tc.want {
			t.Fatalf("FormatOrderNumber(%d) = %s, want %s", tc.n, got, tc.want)
		}
		back, err := domain.ParseOrderNumber(got)
		if err != nil || back != tc.n {
			t.Fatalf("ParseOrderNumber(%s) = %d, %v", got, back, err)
		}
	}

	for _, bad := range []string{"", "ORDER-", "ORDER-abc", "order-001", "ORDER-000", "ORDER--1"} {
		if _, err := domain.ParseOrderNumber(bad); !errors.Is(err, domain.ErrOrderNumberInvalid) {
			t.Fatalf("expected ErrOrderNumberInvalid for %q, got %v", bad, err)
		}
	}
}
