package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gateway "github.com/nimasrn/school-payment/internal/gateways"
	"github.com/rs/zerolog/log"
)

const gatewayTimeLayout = "2006-01-02 15:04:05"

type chargeRequest struct {
	TransactionDetails struct {
		OrderID     string `json:"order_id" binding:"required"`
		GrossAmount int64  `json:"gross_amount" binding:"required,gt=0"`
	} `json:"transaction_details" binding:"required"`
	CustomerDetails struct {
		FirstName string `json:"first_name"`
		Email     string `json:"email"`
	} `json:"customer_details"`
}

type simulateRequest struct {
	TransactionStatus string `json:"transaction_status" binding:"required"`
	FraudStatus       string `json:"fraud_status"`
	PaymentType       string `json:"payment_type"`
	// GrossAmount overrides the amount reported for this notification only.
	GrossAmount int64 `json:"gross_amount"`
}

type order struct {
	OrderID     string
	GrossAmount int64
	Status      string
	FraudStatus string
	PaymentType string
	Token       string
	CreatedAt   time.Time
	SettledAt   *time.Time
}

// notification is what the gateway reports about an order, on the status
// endpoint and in pushed callbacks alike.
type notification struct {
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	StatusMessage     string `json:"status_message"`
	GrossAmount       string `json:"gross_amount"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status,omitempty"`
	PaymentType       string `json:"payment_type"`
	TransactionID     string `json:"transaction_id"`
	TransactionTime   string `json:"transaction_time"`
	SettlementTime    string `json:"settlement_time,omitempty"`
	ApprovalCode      string `json:"approval_code,omitempty"`
	SignatureKey      string `json:"signature_key"`
}

// MockGateway simulates the hosted payment gateway: it opens charge sessions,
// answers status polls and pushes signed notifications on demand.
type MockGateway struct {
	mu          sync.RWMutex
	orders      map[string]*order
	serverKey   string
	callbackURL string
	publicURL   string
	client      *http.Client
}

func NewMockGateway(serverKey, callbackURL, publicURL string) *MockGateway {
	return &MockGateway{
		orders:      make(map[string]*order),
		serverKey:   serverKey,
		callbackURL: callbackURL,
		publicURL:   publicURL,
		client:      &http.Client{Timeout: 10 * time.Second},
	}
}

func (m *MockGateway) authorized(c *gin.Context) bool {
	user, _, ok := c.Request.BasicAuth()
	return ok && user == m.serverKey
}

func statusCodeFor(status string) string {
	switch status {
	case "capture", "settlement", "refund", "partial_refund":
		return "200"
	case "pending":
		return "201"
	default:
		return "202"
	}
}

func (m *MockGateway) notificationFor(o *order, gross int64) notification {
	n := notification{
		OrderID:           o.OrderID,
		StatusCode:        statusCodeFor(o.Status),
		StatusMessage:     "Success, transaction is found",
		GrossAmount:       fmt.Sprintf("%d.00", gross),
		TransactionStatus: o.Status,
		FraudStatus:       o.FraudStatus,
		PaymentType:       o.PaymentType,
		TransactionID:     o.Token,
		TransactionTime:   o.CreatedAt.Format(gatewayTimeLayout),
	}
	if o.SettledAt != nil {
		n.SettlementTime = o.SettledAt.Format(gatewayTimeLayout)
		n.ApprovalCode = "MOCK" + o.Token[:8]
	}
	n.SignatureKey = gateway.Sign(n.OrderID, n.StatusCode, n.GrossAmount, m.serverKey)
	return n
}

// CreateTransaction handles charge session requests
func (m *MockGateway) CreateTransaction(c *gin.Context) {
	if !m.authorized(c) {
		c.JSON(http.StatusUnauthorized, gin.H{"error_messages": []string{"Access denied due to unauthorized transaction"}})
		return
	}

	var req chargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error_messages": []string{err.Error()}})
		return
	}
	orderID := req.TransactionDetails.OrderID

	m.mu.Lock()
	if _, ok := m.orders[orderID]; ok {
		m.mu.Unlock()
		c.JSON(http.StatusBadRequest, gin.H{"error_messages": []string{"transaction_details.order_id has already been taken"}})
		return
	}
	o := &order{
		OrderID:     orderID,
		GrossAmount: req.TransactionDetails.GrossAmount,
		Status:      "pending",
		PaymentType: "bank_transfer",
		Token:       uuid.NewString(),
		CreatedAt:   time.Now(),
	}
	m.orders[orderID] = o
	m.mu.Unlock()

	log.Info().
		Str("order_id", orderID).
		Int64("gross_amount", o.GrossAmount).
		Str("email", req.CustomerDetails.Email).
		Msg("Charge session created")

	c.JSON(http.StatusCreated, gin.H{
		"token":        o.Token,
		"redirect_url": m.publicURL + "/snap/v2/vtweb/" + o.Token,
	})
}

// GetStatus handles status poll requests
func (m *MockGateway) GetStatus(c *gin.Context) {
	if !m.authorized(c) {
		c.JSON(http.StatusUnauthorized, gin.H{"status_code": "401", "status_message": "Unknown Merchant server_key/id"})
		return
	}

	m.mu.RLock()
	o, ok := m.orders[c.Param("order_id")]
	var n notification
	if ok {
		n = m.notificationFor(o, o.GrossAmount)
	}
	m.mu.RUnlock()

	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"status_code": "404", "status_message": "Transaction doesn't exist."})
		return
	}
	c.JSON(http.StatusOK, n)
}

// Simulate moves an order to a new status and pushes the notification to the
// callback url.
func (m *MockGateway) Simulate(c *gin.Context) {
	var req simulateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	m.mu.Lock()
	o, ok := m.orders[c.Param("order_id")]
	var n notification
	if ok {
		o.Status = req.TransactionStatus
		o.FraudStatus = req.FraudStatus
		if req.PaymentType != "" {
			o.PaymentType = req.PaymentType
		}
		if o.Status == "settlement" && o.SettledAt == nil {
			now := time.Now()
			o.SettledAt = &now
		}
		gross := o.GrossAmount
		if req.GrossAmount > 0 {
			gross = req.GrossAmount
		}
		n = m.notificationFor(o, gross)
	}
	m.mu.Unlock()

	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown order"})
		return
	}

	if m.callbackURL == "" {
		c.JSON(http.StatusOK, gin.H{"notification": n, "delivered": false})
		return
	}

	status, err := m.push(c.Request.Context(), n)
	if err != nil {
		log.Warn().Err(err).Str("order_id", n.OrderID).Msg("Notification delivery failed")
		c.JSON(http.StatusBadGateway, gin.H{"notification": n, "delivered": false, "error": err.Error()})
		return
	}

	log.Info().
		Str("order_id", n.OrderID).
		Str("transaction_status", n.TransactionStatus).
		Int("callback_status", status).
		Msg("Notification delivered")

	c.JSON(http.StatusOK, gin.H{"notification": n, "delivered": true, "callback_status": status})
}

func (m *MockGateway) push(ctx context.Context, n notification) (int, error) {
	body, err := json.Marshal(n)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.callbackURL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := m.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

// HealthCheck handles health check requests
func (m *MockGateway) HealthCheck(c *gin.Context) {
	m.mu.RLock()
	n := len(m.orders)
	m.mu.RUnlock()
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "orders": n, "timestamp": time.Now()})
}

// SetupRouter configures all routes
func SetupRouter(m *MockGateway) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request processed")
	})

	router.POST("/snap/v1/transactions", m.CreateTransaction)
	router.GET("/v2/:order_id/status", m.GetStatus)
	router.POST("/simulate/:order_id", m.Simulate)
	router.GET("/health", m.HealthCheck)

	return router
}
