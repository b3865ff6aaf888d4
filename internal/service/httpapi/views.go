package httpapi

import (
	"time"

	"github.com/vladislavdragonenkov/lahmacun/internal/domain"
)

type orderView struct {
	ID                string              `json:"id"`
	OrderNumber       string              `json:"orderNumber"`
	Status            domain.OrderStatus  `json:"status"`
	StatusLabel       string              `json:"statusLabel"`
	StatusShortLabel  string              `json:"statusShortLabel"`
	StatusColor       string              `json:"statusColor"`
	StatusStage       domain.StatusStage  `json:"statusStage"`
	StatusSequence    []statusStep        `json:"statusSequence"`
	NextStatus        domain.OrderStatus  `json:"nextStatus,omitempty"`
	NextStatusLabel   string              `json:"nextStatusLabel,omitempty"`
	CanAdvance        bool                `json:"canAdvance"`
	NotesEditable     bool                `json:"notesEditable"`
	DeliveryMode      domain.DeliveryMode `json:"deliveryMode"`
	DeliveryModeLabel string              `json:"deliveryModeLabel"`
	DeliveryModeColor string              `json:"deliveryModeColor"`
	Name              string              `json:"name"`
	Email             string              `json:"email,omitempty"`
	Phone             string              `json:"phone"`
	Address           string              `json:"address,omitempty"`
	Quantity          int                 `json:"quantity"`
	Notes             string              `json:"notes"`
	CreatedAt         time.Time           `json:"createdAt"`
	UpdatedAt         time.Time           `json:"updatedAt"`
}

// statusStep: шаг прогресса на странице отслеживания.
type statusStep struct {
	Status  domain.OrderStatus `json:"status"`
	Label   string             `json:"label"`
	Done    bool               `json:"done"`
	Current bool               `json:"current"`
}

func newOrderView(o domain.Order) orderView {
	mode := o.Customer.DeliveryMode
	v := orderView{
		ID:                o.ID,
		OrderNumber:       o.Number,
		Status:            o.Status,
		StatusLabel:       domain.StatusLabel(o.Status),
		StatusShortLabel:  domain.StatusShortLabel(o.Status),
		StatusColor:       domain.StatusColor(o.Status),
		StatusStage:       domain.StatusStageOf(o.Status),
		StatusSequence:    statusSteps(o),
		CanAdvance:        o.CanAdvance(),
		NotesEditable:     o.NotesEditable(),
		DeliveryMode:      mode,
		DeliveryModeLabel: mode.Label(),
		DeliveryModeColor: mode.Color(),
		Name:              o.Customer.Name,
		Email:             o.Customer.Email,
		Phone:             o.Customer.Phone,
		Address:           o.Customer.Address,
		Quantity:          o.Customer.Quantity,
		Notes:             o.Customer.Notes,
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
	}
	if v.CanAdvance {
		v.NextStatus = o.NextStatus()
		v.NextStatusLabel = domain.StatusLabel(v.NextStatus)
	}
	return v
}

func statusSteps(o domain.Order) []statusStep {
	seq := domain.StatusSequence(o.IsDelivery())
	current := -1
	for i, s := range seq {
		if s == o.Status {
			current = i
			break
		}
	}

	steps := make([]statusStep, 0, len(seq))
	for i, s := range seq {
		steps = append(steps, statusStep{
			Status:  s,
			Label:   domain.StatusLabel(s),
			Done:    current >= 0 && i < current,
			Current: i == current,
		})
	}
	return steps
}

func newOrderViews(list []domain.Order) []orderView {
	views := make([]orderView, 0, len(list))
	for _, o := range list {
		views = append(views, newOrderView(o))
	}
	return views
}

type timelineEntryView struct {
	Seq     int64     `json:"seq"`
	Kind    string    `json:"kind"`
	From    string    `json:"from,omitempty"`
	To      string    `json:"to,omitempty"`
	Summary string    `json:"summary"`
	At      time.Time `json:"at"`
}

func newTimelineViews(entries []domain.TimelineEntry) []timelineEntryView {
	views := make([]timelineEntryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, timelineEntryView{
			Seq:     e.Seq,
			Kind:    string(e.Kind),
			From:    string(e.From),
			To:      string(e.To),
			Summary: e.Summary(),
			At:      e.At,
		})
	}
	return views
}

type statsView struct {
	Total      int `json:"total"`
	Today      int `json:"today"`
	Active     int `json:"active"`
	Delivering int `json:"delivering"`
}
