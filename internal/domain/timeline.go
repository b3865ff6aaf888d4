package domain

import (
	"fmt"
	"time"
)

// TimelineKind: вид записи в истории заказа.
type TimelineKind string

const (
	TimelinePlaced        TimelineKind = "placed"
	TimelineStatusChanged TimelineKind = "status_changed"
	TimelineNotesUpdated  TimelineKind = "notes_updated"
)

// TimelineEntry: запись истории заказа. From и To заполнены только у
// status_changed, Seq назначает хранилище.
type TimelineEntry struct {
	Seq     int64
	OrderID string
	Kind    TimelineKind
	From    OrderStatus
	To      OrderStatus
	Detail  string
	At      time.Time
}

func PlacedEntry(order Order) TimelineEntry {
	return TimelineEntry{
		OrderID: order.ID,
		Kind:    TimelinePlaced,
		To:      order.Status,
		Detail:  order.Number,
		At:      order.CreatedAt,
	}
}

func StatusEntry(order Order, from OrderStatus) TimelineEntry {
	return TimelineEntry{
		OrderID: order.ID,
		Kind:    TimelineStatusChanged,
		From:    from,
		To:      order.Status,
		At:      order.UpdatedAt,
	}
}

func NotesEntry(order Order) TimelineEntry {
	return TimelineEntry{
		OrderID: order.ID,
		Kind:    TimelineNotesUpdated,
		Detail:  order.Customer.Notes,
		At:      order.UpdatedAt,
	}
}

// Summary: строка для ленты в админке.
func (e TimelineEntry) Summary() string {
	switch e.Kind {
	case TimelinePlaced:
		return fmt.Sprintf("placed as %s", e.Detail)
	case TimelineStatusChanged:
		return fmt.Sprintf("%s -> %s", e.From, e.To)
	case TimelineNotesUpdated:
		if e.Detail == "" {
			return "notes cleared"
		}
		return "notes updated"
	default:
		return string(e.Kind)
	}
}
