package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nimasrn/school-payment/internal/app"
	"github.com/nimasrn/school-payment/internal/config"
	"github.com/nimasrn/school-payment/internal/handlers"
	"github.com/nimasrn/school-payment/internal/model"
	"github.com/nimasrn/school-payment/internal/processor"
	"github.com/nimasrn/school-payment/internal/repository"
	"github.com/nimasrn/school-payment/pkg/pg"
	xhttp "github.com/nimasrn/school-payment/pkg/http"
	"github.com/nimasrn/school-payment/test/fixtures"
	"github.com/nimasrn/school-payment/test/helpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

const serverKey = "SB-Mid-server-e2e"

// fakeGateway records charge sessions and answers status polls with whatever
// status the test set for the order.
type fakeGateway struct {
	mu       sync.Mutex
	charges  map[string]int64
	statuses map[string]string
}

func (g *fakeGateway) setStatus(orderID, status string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses[orderID] = status
}

func (g *fakeGateway) charged(orderID string) (int64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	v, ok := g.charges[orderID]
	return v, ok
}

func (g *fakeGateway) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /snap/v1/transactions", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			TransactionDetails struct {
				OrderID     string `json:"order_id"`
				GrossAmount int64  `json:"gross_amount"`
			} `json:"transaction_details"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		g.mu.Lock()
		g.charges[body.TransactionDetails.OrderID] = body.TransactionDetails.GrossAmount
		g.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"token":        "tok-" + body.TransactionDetails.OrderID,
			"redirect_url": "https://pay.example/" + body.TransactionDetails.OrderID,
		})
	})
	mux.HandleFunc("GET /v2/{order_id}/status", func(w http.ResponseWriter, r *http.Request) {
		orderID := r.PathValue("order_id")
		g.mu.Lock()
		status, ok := g.statuses[orderID]
		gross := g.charges[orderID]
		g.mu.Unlock()
		if !ok {
			status = "pending"
		}
		report := fixtures.StatusReport(orderID, status, formatGross(gross))
		_ = json.NewEncoder(w).Encode(report)
	})
	return mux
}

type environment struct {
	db      *pg.DB
	mr      *miniredis.Miniredis
	gateway *fakeGateway
	handler xhttp.RequestHandler
	audit   *repository.AuditLogRepository
}

func setupEnvironment(t *testing.T) *environment {
	db := helpers.SetupTestDB(t)
	mr, rdb := helpers.SetupTestRedis(t)

	gw := &fakeGateway{charges: map[string]int64{}, statuses: map[string]string{}}
	gwServer := httptest.NewServer(gw.routes())
	t.Cleanup(gwServer.Close)

	cfg := &config.Config{
		GatewayServerKey:        serverKey,
		GatewaySnapURL:          gwServer.URL + "/snap/v1/transactions",
		GatewayAPIURL:           gwServer.URL,
		GatewayFinishURL:        "https://school.example",
		GatewayTimeout:          2 * time.Second,
		SettlementLockTTL:       30 * time.Second,
		SettlementLockWait:      10 * time.Second,
		EventsStream:            "payment-events",
		EventsConsumerGroup:     "audit",
		EventsConsumerName:      "e2e",
		EventsMaxRetries:        3,
		EventsVisibilityTimeout: 5 * time.Second,
		EventsPollInterval:      20 * time.Millisecond,
		EventsBatchSize:         20,
	}

	svc, err := app.NewPaymentService(cfg, db, rdb)
	require.NoError(t, err)

	e := xhttp.CreateServer()
	e.Use(xhttp.RecoverMiddleware)
	e.Use(xhttp.RequestIDMiddleware)
	handlers.RegisterPaymentRoutes(e.Group("/api/v1"), handlers.NewPaymentHandler(svc))

	auditRepo := repository.NewAuditLogRepository(db)
	events := processor.NewProcessorService(rdb,
		processor.NewAuditProcessor(auditRepo, processor.NewIdempotencyService(rdb, processor.DefaultIdempotencyConfig())),
		processor.Options{Queue: app.EventsQueueConfig(cfg), Consumers: 1, Workers: 2},
	)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, events.Start(ctx))
	t.Cleanup(func() {
		cancel()
		events.Stop()
	})

	return &environment{db: db, mr: mr, gateway: gw, handler: e.Handler(), audit: auditRepo}
}

func (env *environment) do(method, uri string, body []byte, headers map[string]string) *fasthttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(uri)
	for k, v := range headers {
		ctx.Request.Header.Set(k, v)
	}
	if body != nil {
		ctx.Request.Header.SetContentType("application/json")
		ctx.Request.SetBody(body)
	}
	env.handler(ctx)
	return ctx
}

func (env *environment) invoice(t *testing.T, id int64) *model.Invoice {
	inv, err := repository.NewInvoiceRepository(env.db).Get(context.Background(), id)
	require.NoError(t, err)
	return inv
}

func (env *environment) receipts(t *testing.T, invoiceID int64) int64 {
	n, err := repository.NewReceiptRepository(env.db).CountByInvoiceID(context.Background(), invoiceID)
	require.NoError(t, err)
	return n
}

func (env *environment) auditActions(t *testing.T, orderID string) []string {
	logs, err := env.audit.ListForEntity(context.Background(), "transaction", orderID)
	require.NoError(t, err)
	actions := make([]string, 0, len(logs))
	for _, l := range logs {
		actions = append(actions, l.Action)
	}
	return actions
}

func formatGross(v int64) string {
	return fmtInt(v) + ".00"
}

func fmtInt(v int64) string {
	return strconv.FormatInt(v, 10)
}

func decode[T any](t *testing.T, ctx *fasthttp.RequestCtx) T {
	var v T
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &v), string(ctx.Response.Body()))
	return v
}

func payInvoice(t *testing.T, env *environment, invoiceID int64, user model.ActingUser) model.ChargeSession {
	res := env.do(fasthttp.MethodPost, "/api/v1/invoices/"+fmtInt(invoiceID)+"/pay", nil, fixtures.Headers(user))
	require.Equal(t, fasthttp.StatusCreated, res.Response.StatusCode(), string(res.Response.Body()))
	return decode[model.ChargeSession](t, res)
}

func TestE2E_PayInvoiceSettledByWebhook(t *testing.T) {
	env := setupEnvironment(t)
	student := helpers.CreateTestStudent(t, env.db, fixtures.ParentID)
	inv := helpers.CreateTestInvoice(t, env.db, student.ID, 150000)

	session := payInvoice(t, env, inv.ID, fixtures.Parent)
	assert.NotEmpty(t, session.Token)
	gross, ok := env.gateway.charged(session.OrderID)
	require.True(t, ok)
	assert.Equal(t, int64(150000), gross)

	res := env.do(fasthttp.MethodPost, "/api/v1/gateway/callback",
		helpers.SignedWebhook(session.OrderID, "settlement", "accept", "150000.00", serverKey), nil)
	require.Equal(t, fasthttp.StatusOK, res.Response.StatusCode(), string(res.Response.Body()))

	paid := env.invoice(t, inv.ID)
	assert.Equal(t, model.InvoiceStatusPaid, paid.Status)
	assert.Equal(t, "150000", paid.PaidAmount.String())
	assert.Equal(t, int64(1), env.receipts(t, inv.ID))

	status := env.do(fasthttp.MethodGet, "/api/v1/payments/status/"+session.OrderID, nil, nil)
	require.Equal(t, fasthttp.StatusOK, status.Response.StatusCode())
	view := decode[model.TransactionView](t, status)
	assert.Equal(t, model.TransactionStatusSettlement, view.Status)

	helpers.AssertEventually(t, 5*time.Second, func() bool {
		actions := env.auditActions(t, session.OrderID)
		return len(actions) == 1 && actions[0] == string(model.EventInvoicePaid)
	}, "settlement event never reached the audit log")
}

func TestE2E_WebhookRedeliveryCreditsOnce(t *testing.T) {
	env := setupEnvironment(t)
	student := helpers.CreateTestStudent(t, env.db, fixtures.ParentID)
	inv := helpers.CreateTestInvoice(t, env.db, student.ID, 200000)
	session := payInvoice(t, env, inv.ID, fixtures.Parent)

	body := helpers.SignedWebhook(session.OrderID, "settlement", "accept", "200000.00", serverKey)

	var wg sync.WaitGroup
	codes := make([]int, 6)
	for i := range codes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = env.do(fasthttp.MethodPost, "/api/v1/gateway/callback", body, nil).Response.StatusCode()
		}(i)
	}
	wg.Wait()

	for _, code := range codes {
		assert.Equal(t, fasthttp.StatusOK, code)
	}
	paid := env.invoice(t, inv.ID)
	assert.Equal(t, "200000", paid.PaidAmount.String())
	assert.Equal(t, model.InvoiceStatusPaid, paid.Status)
	assert.Equal(t, int64(1), env.receipts(t, inv.ID))

	// every delivery publishes an event, only one of them credits
	helpers.AssertEventually(t, 5*time.Second, func() bool {
		return len(env.auditActions(t, session.OrderID)) == len(codes)
	}, "settlement events never reached the audit log")

	var paidEvents int
	for _, a := range env.auditActions(t, session.OrderID) {
		if a == string(model.EventInvoicePaid) {
			paidEvents++
		}
	}
	assert.Equal(t, 1, paidEvents)
}

func TestE2E_PartialPaymentsThenPolledSettlement(t *testing.T) {
	env := setupEnvironment(t)
	student := helpers.CreateTestStudent(t, env.db, fixtures.ParentID)
	inv := helpers.CreateTestInvoice(t, env.db, student.ID, 300000)

	first := helpers.CreateTestTransaction(t, env.db, inv.ID, 100000)
	res := env.do(fasthttp.MethodPost, "/api/v1/gateway/callback",
		helpers.SignedWebhook(first.OrderID, "settlement", "accept", "100000.00", serverKey), nil)
	require.Equal(t, fasthttp.StatusOK, res.Response.StatusCode())

	partial := env.invoice(t, inv.ID)
	assert.Equal(t, model.InvoiceStatusPartial, partial.Status)
	assert.Equal(t, int64(0), env.receipts(t, inv.ID))

	// the charge covers exactly what is left
	session := payInvoice(t, env, inv.ID, fixtures.Parent)
	gross, _ := env.gateway.charged(session.OrderID)
	assert.Equal(t, int64(200000), gross)

	env.gateway.setStatus(session.OrderID, "settlement")
	status := env.do(fasthttp.MethodGet, "/api/v1/payments/status/"+session.OrderID, nil, nil)
	require.Equal(t, fasthttp.StatusOK, status.Response.StatusCode())
	assert.Equal(t, model.TransactionStatusSettlement, decode[model.TransactionView](t, status).Status)

	paid := env.invoice(t, inv.ID)
	assert.Equal(t, model.InvoiceStatusPaid, paid.Status)
	assert.Equal(t, "300000", paid.PaidAmount.String())
	assert.Equal(t, int64(1), env.receipts(t, inv.ID))

	list := env.do(fasthttp.MethodGet, "/api/v1/invoices/"+fmtInt(inv.ID)+"/transactions", nil, fixtures.Headers(fixtures.Treasurer))
	require.Equal(t, fasthttp.StatusOK, list.Response.StatusCode())
	page := decode[struct {
		Items []model.TransactionView `json:"items"`
		Total int64                   `json:"total"`
	}](t, list)
	assert.Equal(t, int64(2), page.Total)
}

func TestE2E_RejectedRequests(t *testing.T) {
	env := setupEnvironment(t)
	student := helpers.CreateTestStudent(t, env.db, fixtures.ParentID)
	inv := helpers.CreateTestInvoice(t, env.db, student.ID, 50000)
	session := payInvoice(t, env, inv.ID, fixtures.Parent)

	tampered := helpers.SignedWebhook(session.OrderID, "settlement", "accept", "50000.00", "wrong-key")
	res := env.do(fasthttp.MethodPost, "/api/v1/gateway/callback", tampered, nil)
	assert.Equal(t, fasthttp.StatusUnauthorized, res.Response.StatusCode())

	unknown := helpers.SignedWebhook("ORDER-404", "settlement", "accept", "50000.00", serverKey)
	res = env.do(fasthttp.MethodPost, "/api/v1/gateway/callback", unknown, nil)
	assert.Equal(t, fasthttp.StatusNotFound, res.Response.StatusCode())

	res = env.do(fasthttp.MethodPost, "/api/v1/invoices/"+fmtInt(inv.ID)+"/pay", nil, fixtures.Headers(fixtures.StrangerParent))
	assert.Equal(t, fasthttp.StatusForbidden, res.Response.StatusCode())

	res = env.do(fasthttp.MethodPost, "/api/v1/invoices/"+fmtInt(inv.ID)+"/pay", nil, nil)
	assert.Equal(t, fasthttp.StatusUnauthorized, res.Response.StatusCode())

	assert.Equal(t, model.InvoiceStatusUnpaid, env.invoice(t, inv.ID).Status)
}

func TestE2E_StudentSeesOnlyOwnTransactions(t *testing.T) {
	env := setupEnvironment(t)
	mine := helpers.CreateTestStudent(t, env.db, fixtures.ParentID)
	other := helpers.CreateTestStudent(t, env.db, fixtures.OtherParent)
	helpers.CreateTestTransaction(t, env.db, helpers.CreateTestInvoice(t, env.db, mine.ID, 10000).ID, 10000)
	helpers.CreateTestTransaction(t, env.db, helpers.CreateTestInvoice(t, env.db, other.ID, 10000).ID, 10000)

	res := env.do(fasthttp.MethodGet, "/api/v1/transactions", nil, fixtures.Headers(fixtures.StudentUser(mine.ID)))
	require.Equal(t, fasthttp.StatusOK, res.Response.StatusCode())
	page := decode[struct {
		Total int64 `json:"total"`
	}](t, res)
	assert.Equal(t, int64(1), page.Total)

	res = env.do(fasthttp.MethodGet, "/api/v1/transactions", nil, fixtures.Headers(fixtures.Treasurer))
	require.Equal(t, fasthttp.StatusOK, res.Response.StatusCode())
	page = decode[struct {
		Total int64 `json:"total"`
	}](t, res)
	assert.Equal(t, int64(2), page.Total)
}
