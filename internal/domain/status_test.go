package domain_test

import (
	"testing"

	"github.com/vladislavdragonenkov/lahmacun/internal/domain"
)

var modes = []struct {
	name       string
	isDelivery bool
}{
	{name: "pickup", isDelivery: false},
	{name: "delivery", isDelivery: true},
}

func TestNextStatus_StaysRelevantUntilTerminal(t *testing.T) {
	for _, m := range modes {
		for _, s := range domain.AllStatuses() {
			if domain.IsTerminal(s, m.isDelivery) || !domain.IsRelevant(s, m.isDelivery) {
				continue
			}
			next := domain.NextStatus(s, m.isDelivery)
			if !domain.IsRelevant(next, m.isDelivery) {
				t.Fatalf("%s: next of %s is %s which is not relevant", m.name, s, next)
			}
			if next == s {
				t.Fatalf("%s: non-terminal %s did not advance", m.name, s)
			}
		}
	}
}

func TestNextStatus_TerminalIsStable(t *testing.T) {
	if got := domain.NextStatus(domain.OrderStatusReadyForPickup, false); got != domain.OrderStatusReadyForPickup {
		t.Fatalf("pickup terminal moved to %s", got)
	}
	if got := domain.NextStatus(domain.OrderStatusDelivered, true); got != domain.OrderStatusDelivered {
		t.Fatalf("delivery terminal moved to %s", got)
	}
}

func TestNextStatus_UnknownOrForeignIsNoop(t *testing.T) {
	cases := []struct {
		status     domain.OrderStatus
		isDelivery bool
	}{
		{status: "cooking", isDelivery: true},
		{status: "", isDelivery: false},
		{status: domain.OrderStatusDelivering, isDelivery: false},
		{status: domain.OrderStatusReadyForPickup, isDelivery: true},
	}
	for _, tc := range cases {
		if got := domain.NextStatus(tc.status, tc.isDelivery); got != tc.status {
			t.Fatalf("NextStatus(%q, %v) = %q, want unchanged", tc.status, tc.isDelivery, got)
		}
	}
}

func TestNextStatus_PickupSequence(t *testing.T) {
	want := []domain.OrderStatus{
		domain.OrderStatusPreparing,
		domain.OrderStatusReadyForPickup,
		domain.OrderStatusReadyForPickup,
	}
	current := domain.OrderStatusPending
	for i, w := range want {
		current = domain.NextStatus(current, false)
		if current != w {
			t.Fatalf("step %d: got %s, want %s", i+1, current, w)
		}
	}
}

func TestNextStatus_DeliverySequence(t *testing.T) {
	want := []domain.OrderStatus{
		domain.OrderStatusPreparing,
		domain.OrderStatusDelivering,
		domain.OrderStatusDelivered,
		domain.OrderStatusDelivered,
	}
	current := domain.OrderStatusPending
	for i, w := range want {
		current = domain.NextStatus(current, true)
		if current != w {
			t.Fatalf("step %d: got %s, want %s", i+1, current, w)
		}
	}
}

func TestIsRelevant(t *testing.T) {
	cases := []struct {
		status     domain.OrderStatus
		isDelivery bool
		want       bool
	}{
		{domain.OrderStatusPending, false, true},
		{domain.OrderStatusPending, true, true},
		{domain.OrderStatusPreparing, false, true},
		{domain.OrderStatusPreparing, true, true},
		{domain.OrderStatusReadyForPickup, false, true},
		{domain.OrderStatusReadyForPickup, true, false},
		{domain.OrderStatusDelivering, false, false},
		{domain.OrderStatusDelivering, true, true},
		{domain.OrderStatusDelivered, false, false},
		{domain.OrderStatusDelivered, true, true},
		{"unknown", true, false},
	}
	for _, tc := range cases {
		if got := domain.IsRelevant(tc.status, tc.isDelivery); got != tc.want {
			t.Fatalf("IsRelevant(%s, %v) = %v, want %v", tc.status, tc.isDelivery, got, tc.want)
		}
	}
}

func TestCanAdvance(t *testing.T) {
	cases := []struct {
		name   string
		mode   domain.DeliveryMode
		status domain.OrderStatus
		want   bool
	}{
		{"pickup pending", domain.DeliveryModePickup, domain.OrderStatusPending, true},
		{"pickup preparing", domain.DeliveryModePickup, domain.OrderStatusPreparing, true},
		{"pickup terminal", domain.DeliveryModePickup, domain.OrderStatusReadyForPickup, false},
		{"pickup with delivery status", domain.DeliveryModePickup, domain.OrderStatusDelivering, false},
		{"delivery pending", domain.DeliveryModeDelivery, domain.OrderStatusPending, true},
		{"delivery delivering", domain.DeliveryModeDelivery, domain.OrderStatusDelivering, true},
		{"delivery terminal", domain.DeliveryModeDelivery, domain.OrderStatusDelivered, false},
		{"delivery with pickup status", domain.DeliveryModeDelivery, domain.OrderStatusReadyForPickup, false},
		{"corrupt status", domain.DeliveryModeDelivery, "???", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := domain.Order{Status: tc.status, Customer: domain.CustomerData{DeliveryMode: tc.mode}}
			if got := order.CanAdvance(); got != tc.want {
				t.Fatalf("CanAdvance() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestNotesEditable(t *testing.T) {
	for _, s := range domain.AllStatuses() {
		want := s != domain.OrderStatusPreparing
		if got := domain.NotesEditable(s); got != want {
			t.Fatalf("NotesEditable(%s) = %v, want %v", s, got, want)
		}
	}
}

func TestDeliveryScenario_AdvanceToTerminal(t *testing.T) {
	order := domain.Order{
		Status:   domain.OrderStatusPending,
		Customer: domain.CustomerData{DeliveryMode: domain.DeliveryModeDelivery},
	}
	for i := 0; i < 3; i++ {
		if !order.CanAdvance() {
			t.Fatalf("step %d: expected order to be advanceable from %s", i+1, order.Status)
		}
		order.Status = order.NextStatus()
	}
	if order.Status != domain.OrderStatusDelivered {
		t.Fatalf("expected delivered, got %s", order.Status)
	}
	if order.CanAdvance() {
		t.Fatal("delivered order must not be advanceable")
	}
}

func TestLabels_CoverAllStatuses(t *testing.T) {
	for _, s := range domain.AllStatuses() {
		if !s.Known() {
			t.Fatalf("%s should be known", s)
		}
		if domain.StatusLabel(s) == "Statut inconnu" || domain.StatusShortLabel(s) == "Statut inconnu" {
			t.Fatalf("%s has no label", s)
		}
		if domain.StatusStageOf(s) == domain.StageUnknown {
			t.Fatalf("%s has no stage", s)
		}
	}

	if got := domain.StatusLabel("lost"); got != "Statut inconnu" {
		t.Fatalf("unexpected label for unknown status: %s", got)
	}
	if got := domain.StatusShortLabel(domain.OrderStatusReadyForPickup); got != "Prête" {
		t.Fatalf("unexpected short label: %s", got)
	}
	if got := domain.StatusColor("lost"); got == "" {
		t.Fatal("unknown status must still have a color")
	}
	if got := domain.StatusStageOf("lost"); got != domain.StageUnknown {
		t.Fatalf("unexpected stage for unknown status: %s", got)
	}
}

func TestStatusSequence_ReturnsCopy(t *testing.T) {
	seq := domain.StatusSequence(true)
	seq[0] = "mutated"
	if domain.StatusSequence(true)[0] != domain.OrderStatusPending {
		t.Fatal("StatusSequence must not expose internal slice")
	}
	if got := len(domain.StatusSequence(false)); got != 3 {
		t.Fatalf("pickup sequence length = %d, want 3", got)
	}
}

func TestParseOrderStatus(t *testing.T) {
	if s, err := domain.ParseOrderStatus("delivering"); err != nil || s != domain.OrderStatusDelivering {
		t.Fatalf("unexpected parse result %q, %v", s, err)
	}
	if _, err := domain.ParseOrderStatus("ready_pickup"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestDeliveryModeLabels(t *testing.T) {
	if domain.DeliveryModeDelivery.Label() != "Livraison" {
		t.Fatal("unexpected delivery label")
	}
	if domain.DeliveryModePickup.Label() != "À emporter" {
		t.Fatal("unexpected pickup label")
	}
	if domain.DeliveryMode("x").Valid() {
		t.Fatal("unknown mode must be invalid")
	}
}
