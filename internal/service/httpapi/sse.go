package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/lahmacun/internal/domain"
)

const (
	sseEventOrder  = "order"
	sseBufferSize  = 16
	sseRetryMillis = 2000
)

// OrderEvents: GET /api/orders/{id}/events: состояние заказа и его изменения.
func (h *Handler) OrderEvents(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.stream(w, r, order.ID, &order)
}

// AdminEvents: GET /api/admin/events: изменения всех заказов.
func (h *Handler) AdminEvents(w http.ResponseWriter, r *http.Request) {
	h.stream(w, r, "", nil)
}

// stream держит SSE-соединение до отключения клиента.
// Медленный клиент теряет промежуточные события, а не тормозит публикацию.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request, orderID string, initial *domain.Order) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "streaming is not supported"})
		return
	}

	subscriberID := uuid.NewString()
	entry := h.logger.WithFields(log.Fields{
		"subscriber_id": subscriberID,
		"order_id":      orderID,
	})

	updates := make(chan domain.Order, sseBufferSize)
	unsubscribe := h.orders.Subscribe(orderID, func(o domain.Order) {
		select {
		case updates <- o:
		default:
			entry.Warn("sse client is too slow, update dropped")
		}
	})
	defer unsubscribe()

	h.metrics.SSEClientConnected()
	defer h.metrics.SSEClientDisconnected()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, ": connected\n\n")
	fmt.Fprintf(w, "retry: %d\n\n", sseRetryMillis)
	if initial != nil {
		if err := writeOrderEvent(w, *initial); err != nil {
			entry.WithError(err).Warn("failed to write initial sse event")
			return
		}
	}
	flusher.Flush()
	entry.Debug("sse client connected")

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			entry.Debug("sse client disconnected")
			return
		case <-h.streamsDone:
			return
		case <-ticker.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()
		case order := <-updates:
			if err := writeOrderEvent(w, order); err != nil {
				entry.WithError(err).Warn("failed to write sse event")
				return
			}
			flusher.Flush()
		}
	}
}

func writeOrderEvent(w http.ResponseWriter, order domain.Order) error {
	data, err := json.Marshal(newOrderView(order))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s-%d\nevent: %s\ndata: %s\n\n",
		order.ID, order.UpdatedAt.UnixNano(), sseEventOrder, data)
	return err
}
