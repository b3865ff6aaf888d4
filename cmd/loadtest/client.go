package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"strings"
	"time"
)

const idempotencyHeader = "Idempotency-Key"

// Имена вызовов в отчёте.
const (
	callScenario    = "scenario"
	callPlaceOrder  = "PlaceOrder"
	callTrackOrder  = "TrackOrder"
	callAdvance     = "AdvanceStatus"
	callAdminLogin  = "AdminLogin"
	callUpdateNotes = "UpdateNotes"
)

type placeOrderBody struct {
	Name         string `json:"name"`
	Email        string `json:"email,omitempty"`
	Phone        string `json:"phone"`
	DeliveryMode string `json:"deliveryMode"`
	Address      string `json:"address,omitempty"`
	Quantity     int    `json:"quantity"`
	Notes        string `json:"notes,omitempty"`
}

type placedOrder struct {
	ID          string `json:"id"`
	OrderNumber string `json:"orderNumber"`
	Status      string `json:"status"`
}

type trackedOrder struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	CanAdvance bool   `json:"canAdvance"`
}

type advanceBody struct {
	ExpectedStatus string `json:"expectedStatus"`
}

type advanceReply struct {
	Advanced bool         `json:"advanced"`
	Order    trackedOrder `json:"order"`
}

// apiClient: тонкий HTTP-клиент к API заказов.
type apiClient struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	col     *collector
}

func newAPIClient(baseURL string, timeout time.Duration, connections int, col *collector) (*apiClient, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = connections
	transport.MaxConnsPerHost = connections

	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Transport: transport, Jar: jar},
		timeout: timeout,
		col:     col,
	}, nil
}

// do выполняет запрос, пишет метрику и разбирает JSON-ответ в out.
func (c *apiClient) do(name, method, path string, headers map[string]string, in, out any, okStatuses ...int) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.col.record(name, time.Since(start), resultTransportError, false)
		return err
	}
	defer resp.Body.Close()

	payload, readErr := io.ReadAll(resp.Body)
	latency := time.Since(start)
	code := strconv.Itoa(resp.StatusCode)

	accepted := false
	for _, s := range okStatuses {
		if resp.StatusCode == s {
			accepted = true
			break
		}
	}
	if !accepted {
		c.col.record(name, latency, code, false)
		return fmt.Errorf("%s %s: unexpected status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	if readErr != nil {
		c.col.record(name, latency, resultTransportError, false)
		return readErr
	}
	if out != nil && len(payload) > 0 {
		if err := json.Unmarshal(payload, out); err != nil {
			c.col.record(name, latency, resultBadResponse, false)
			return fmt.Errorf("%s %s: decode response: %w", method, path, err)
		}
	}
	c.col.record(name, latency, code, true)
	return nil
}

func (c *apiClient) login(password string) error {
	return c.do(callAdminLogin, http.MethodPost, "/api/admin/login", nil,
		map[string]string{"password": password}, nil, http.StatusOK)
}

func (c *apiClient) placeOrder(body placeOrderBody, key string) (placedOrder, error) {
	var out placedOrder
	err := c.do(callPlaceOrder, http.MethodPost, "/api/orders",
		map[string]string{idempotencyHeader: key}, body, &out,
		http.StatusCreated, http.StatusOK)
	if err == nil && out.ID == "" {
		err = errors.New("place order returned empty id")
	}
	return out, err
}

func (c *apiClient) trackOrder(number string) (trackedOrder, error) {
	var out trackedOrder
	err := c.do(callTrackOrder, http.MethodGet, "/api/orders/by-number/"+number, nil, nil, &out, http.StatusOK)
	return out, err
}

func (c *apiClient) updateNotes(id, notes string) error {
	return c.do(callUpdateNotes, http.MethodPatch, "/api/orders/"+id+"/notes", nil,
		map[string]string{"notes": notes}, nil, http.StatusOK)
}

func (c *apiClient) advance(id, expected string) (advanceReply, error) {
	var out advanceReply
	err := c.do(callAdvance, http.MethodPost, "/api/admin/orders/"+id+"/advance", nil,
		advanceBody{ExpectedStatus: expected}, &out, http.StatusOK)
	return out, err
}
