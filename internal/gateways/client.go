package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/nimasrn/school-payment/internal/model"
	"github.com/nimasrn/school-payment/pkg/logger"
	"github.com/nimasrn/school-payment/pkg/prom"
	"github.com/valyala/fasthttp"
)

type Config struct {
	ServerKey string
	// SnapURL is the full charge session endpoint.
	SnapURL string
	// APIURL is the base of the core API; status lives at /v2/{order_id}/status.
	APIURL          string
	FinishURL       string
	Timeout         time.Duration
	MaxConns        int
	ReadBufferSize  int
	WriteBufferSize int
}

type ChargeResponse struct {
	Token         string   `json:"token"`
	RedirectURL   string   `json:"redirect_url"`
	ErrorMessages []string `json:"error_messages"`
}

type chargeRequest struct {
	TransactionDetails struct {
		OrderID     string `json:"order_id"`
		GrossAmount int64  `json:"gross_amount"`
	} `json:"transaction_details"`
	CustomerDetails struct {
		FirstName string `json:"first_name"`
		Email     string `json:"email"`
	} `json:"customer_details"`
	Callbacks struct {
		Finish string `json:"finish"`
	} `json:"callbacks"`
	ItemDetails []model.LineItem `json:"item_details"`
}

// Client talks to the payment gateway. It never retries; a failed call is
// reported to the caller as is.
type Client struct {
	config *Config
	http   *fasthttp.Client
	auth   string
}

func NewClient(config *Config) (*Client, error) {
	return NewClientWithHTTP(config, &fasthttp.Client{
		MaxConnsPerHost:     config.MaxConns,
		ReadTimeout:         config.Timeout,
		WriteTimeout:        config.Timeout,
		MaxIdleConnDuration: 60 * time.Second,
		ReadBufferSize:      config.ReadBufferSize,
		WriteBufferSize:     config.WriteBufferSize,
	})
}

// NewClientWithHTTP lets tests plug a client dialing an in-memory listener.
func NewClientWithHTTP(config *Config, httpClient *fasthttp.Client) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("gateway config is required")
	}
	if config.ServerKey == "" {
		return nil, fmt.Errorf("gateway server key is required")
	}
	if config.SnapURL == "" || config.APIURL == "" {
		return nil, fmt.Errorf("gateway snap and api urls are required")
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	logger.Info("Gateway client initialized", "snap_url", config.SnapURL, "api_url", config.APIURL, "timeout", config.Timeout)

	return &Client{
		config: config,
		http:   httpClient,
		auth:   "Basic " + base64.StdEncoding.EncodeToString([]byte(config.ServerKey+":")),
	}, nil
}

// LineItems returns items unchanged when they add up to gross, otherwise a
// single item covering the whole amount.
func LineItems(orderID string, gross int64, items []model.LineItem) []model.LineItem {
	var sum int64
	for _, it := range items {
		sum += it.Price * it.Quantity
	}
	if len(items) > 0 && sum == gross {
		return items
	}
	return []model.LineItem{{
		ID:       "payment-" + orderID,
		Name:     "Invoice payment",
		Price:    gross,
		Quantity: 1,
	}}
}

func (c *Client) FinishURL(orderID string) string {
	return strings.TrimRight(c.config.FinishURL, "/") + "/#/payment-result?order_id=" + url.QueryEscape(orderID)
}

// CreateChargeSession opens a hosted payment page for the order.
func (c *Client) CreateChargeSession(ctx context.Context, req model.ChargeRequest) (*ChargeResponse, error) {
	if req.OrderID == "" || req.GrossAmount <= 0 {
		return nil, fmt.Errorf("%w: order id and positive gross amount are required", model.ErrValidation)
	}

	var body chargeRequest
	body.TransactionDetails.OrderID = req.OrderID
	body.TransactionDetails.GrossAmount = req.GrossAmount
	body.CustomerDetails.FirstName = req.CustomerName
	body.CustomerDetails.Email = req.CustomerEmail
	body.Callbacks.Finish = c.FinishURL(req.OrderID)
	body.ItemDetails = LineItems(req.OrderID, req.GrossAmount, req.LineItems)

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	started := time.Now()
	status, respBody, err := c.doRequest(ctx, fasthttp.MethodPost, c.config.SnapURL, payload)
	prom.ObserveGatewayRequest("charge", started)
	if err != nil {
		logger.Warn("Charge session request failed", "order_id", req.OrderID, "error", err)
		return nil, err
	}

	var resp ChargeResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		if status >= fasthttp.StatusInternalServerError {
			return nil, fmt.Errorf("%w: status %d", model.ErrGatewayUnavailable, status)
		}
		return nil, fmt.Errorf("%w: unreadable response (status %d)", model.ErrGatewayRejected, status)
	}
	if len(resp.ErrorMessages) > 0 {
		logger.Warn("Charge session rejected", "order_id", req.OrderID, "errors", resp.ErrorMessages)
		return nil, fmt.Errorf("%w: %s", model.ErrGatewayRejected, strings.Join(resp.ErrorMessages, "; "))
	}
	if status >= fasthttp.StatusInternalServerError {
		return nil, fmt.Errorf("%w: status %d", model.ErrGatewayUnavailable, status)
	}
	if resp.Token == "" {
		return nil, fmt.Errorf("%w: no token in response (status %d)", model.ErrGatewayRejected, status)
	}

	logger.Info("Charge session created", "order_id", req.OrderID, "gross_amount", req.GrossAmount, "latency_ms", time.Since(started).Milliseconds())
	return &resp, nil
}

// PollStatus asks the gateway for the current state of an order.
func (c *Client) PollStatus(ctx context.Context, orderID string) (*model.GatewayStatusPayload, error) {
	endpoint := strings.TrimRight(c.config.APIURL, "/") + "/v2/" + url.PathEscape(orderID) + "/status"

	started := time.Now()
	status, respBody, err := c.doRequest(ctx, fasthttp.MethodGet, endpoint, nil)
	prom.ObserveGatewayRequest("status", started)
	if err != nil {
		return nil, err
	}
	if status >= fasthttp.StatusInternalServerError {
		return nil, fmt.Errorf("%w: status %d", model.ErrGatewayUnavailable, status)
	}

	var payload model.GatewayStatusPayload
	if err := json.Unmarshal(respBody, &payload); err != nil {
		return nil, fmt.Errorf("%w: unreadable status response: %v", model.ErrGatewayRejected, err)
	}
	if status != fasthttp.StatusOK || payload.TransactionStatus == "" {
		return nil, fmt.Errorf("%w: no status for order %s (status %d, code %s)", model.ErrGatewayRejected, orderID, status, payload.StatusCode)
	}
	if payload.OrderID == "" {
		payload.OrderID = orderID
	}
	payload.Raw = respBody

	return &payload, nil
}

// doRequest performs one HTTP call bounded by the ctx deadline or the
// configured timeout, whichever comes first. Transport failures are reported
// as model.ErrGatewayUnavailable.
func (c *Client) doRequest(ctx context.Context, method, uri string, body []byte) (int, []byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(uri)
	req.Header.SetMethod(method)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")
	req.Header.Set(fasthttp.HeaderAuthorization, c.auth)
	if body != nil {
		req.Header.SetContentType("application/json")
		req.SetBody(body)
	}

	deadline := time.Now().Add(c.config.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return 0, nil, fmt.Errorf("%w: %v", model.ErrGatewayUnavailable, err)
	}

	result := make([]byte, len(resp.Body()))
	copy(result, resp.Body())

	return resp.StatusCode(), result, nil
}
