package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/lahmacun/internal/domain"
	"github.com/vladislavdragonenkov/lahmacun/internal/service/auth"
	"github.com/vladislavdragonenkov/lahmacun/internal/service/orders"
)

const idempotencyKeyHeader = "Idempotency-Key"

type placeOrderRequest struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	DeliveryMode string `json:"deliveryMode"`
	Address      string `json:"address"`
	Quantity     int    `json:"quantity"`
	Notes        string `json:"notes"`
}

type placeOrderResponse struct {
	ID           string             `json:"id"`
	OrderNumber  string             `json:"orderNumber"`
	Status       domain.OrderStatus `json:"status"`
	TrackingPath string             `json:"trackingPath"`
	// Notification: queued или failed. Заказ сохранён в обоих случаях.
	Notification string `json:"notification"`
	Replayed     bool   `json:"replayed,omitempty"`
}

type notesRequest struct {
	Notes string `json:"notes"`
}

type advanceRequest struct {
	ExpectedStatus domain.OrderStatus `json:"expectedStatus"`
}

type advanceResponse struct {
	Advanced bool               `json:"advanced"`
	From     domain.OrderStatus `json:"from"`
	Order    orderView          `json:"order"`
}

type loginRequest struct {
	Password string `json:"password"`
}

type sessionResponse struct {
	ExpiresAt time.Time `json:"expiresAt"`
}

// PlaceOrder: POST /api/orders.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.orders.PlaceOrder(r.Context(), orders.PlaceOrderInput{
		Customer: domain.CustomerData{
			Name:         req.Name,
			Email:        req.Email,
			Phone:        req.Phone,
			DeliveryMode: domain.DeliveryMode(req.DeliveryMode),
			Address:      req.Address,
			Quantity:     req.Quantity,
			Notes:        req.Notes,
		},
		IdempotencyKey: r.Header.Get(idempotencyKeyHeader),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	notification := "queued"
	if !res.NotificationQueued {
		notification = "failed"
	}
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, placeOrderResponse{
		ID:           res.Order.ID,
		OrderNumber:  res.Order.Number,
		Status:       res.Order.Status,
		TrackingPath: "/orders/" + res.Order.Number,
		Notification: notification,
		Replayed:     res.Replayed,
	})
}

// GetOrder: GET /api/orders/{id}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderView(order))
}

// GetOrderByNumber: GET /api/orders/by-number/{orderNumber}.
func (h *Handler) GetOrderByNumber(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetOrderByNumber(r.Context(), chi.URLParam(r, "orderNumber"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderView(order))
}

// UpdateNotes: PATCH /api/orders/{id}/notes и /api/admin/orders/{id}/notes.
func (h *Handler) UpdateNotes(w http.ResponseWriter, r *http.Request) {
	var req notesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	order, err := h.orders.UpdateNotes(r.Context(), chi.URLParam(r, "id"), req.Notes)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderView(order))
}

// ListOrders: GET /api/admin/orders?status=pending,preparing&mode=delivery&q=&limit=.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	filter, err := parseOrderFilter(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	list, err := h.orders.ListOrders(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": newOrderViews(list)})
}

// Timeline: GET /api/admin/orders/{id}/timeline.
func (h *Handler) Timeline(w http.ResponseWriter, r *http.Request) {
	entries, err := h.orders.Timeline(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": newTimelineViews(entries)})
}

// AdvanceStatus: POST /api/admin/orders/{id}/advance. Тело необязательно.
func (h *Handler) AdvanceStatus(w http.ResponseWriter, r *http.Request) {
	var req advanceRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			h.writeError(w, r, err)
			return
		}
	}

	res, err := h.orders.AdvanceStatus(r.Context(), chi.URLParam(r, "id"), req.ExpectedStatus)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, advanceResponse{
		Advanced: res.Advanced,
		From:     res.From,
		Order:    newOrderView(res.Order),
	})
}

// Stats: GET /api/admin/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.orders.Stats(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statsView(stats))
}

// Login: POST /api/admin/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if h.auth == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "admin access is not configured"})
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	session, token, err := h.auth.Login(r.Context(), req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		MaxAge:   int(h.auth.TTL().Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, sessionResponse{ExpiresAt: session.ExpiresAt})
}

// Logout: POST /api/admin/logout. Без сессии тоже отвечает 204.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(auth.CookieName); err == nil && h.auth != nil {
		if err := h.auth.Logout(r.Context(), cookie.Value); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	h.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// Session: GET /api/admin/session, проверка входа для UI.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	session, _ := auth.SessionFromContext(r.Context())
	writeJSON(w, http.StatusOK, sessionResponse{ExpiresAt: session.ExpiresAt})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func parseOrderFilter(r *http.Request) (domain.OrderFilter, error) {
	q := r.URL.Query()
	var filter domain.OrderFilter

	for _, raw := range q["status"] {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" || part == "all" {
				continue
			}
			status, err := domain.ParseOrderStatus(part)
			if err != nil {
				return domain.OrderFilter{}, err
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	if mode := strings.TrimSpace(q.Get("mode")); mode != "" && mode != "all" {
		filter.Mode = domain.DeliveryMode(mode)
	}
	filter.Search = q.Get("q")

	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return domain.OrderFilter{}, fmt.Errorf("%w: limit must be a non-negative integer", errBadRequest)
		}
		filter.Limit = limit
	}
	return filter, nil
}
