package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gateway "github.com/nimasrn/school-payment/internal/gateways"
	"github.com/nimasrn/school-payment/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testServerKey = "SB-Mid-server-test"

func init() {
	gin.SetMode(gin.TestMode)
}

func startMock(t *testing.T, callbackURL string) (*httptest.Server, *gateway.Client) {
	srv := httptest.NewServer(SetupRouter(NewMockGateway(testServerKey, callbackURL, "http://pay.local")))
	t.Cleanup(srv.Close)

	client, err := gateway.NewClient(&gateway.Config{
		ServerKey: testServerKey,
		SnapURL:   srv.URL + "/snap/v1/transactions",
		APIURL:    srv.URL,
		FinishURL: "http://school.local",
		Timeout:   2 * time.Second,
	})
	require.NoError(t, err)
	return srv, client
}

func simulate(t *testing.T, srv *httptest.Server, orderID string, body map[string]any) *http.Response {
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+"/simulate/"+orderID, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestMockGateway_ChargeAndPoll(t *testing.T) {
	srv, client := startMock(t, "")
	ctx := context.Background()

	session, err := client.CreateChargeSession(ctx, model.ChargeRequest{
		OrderID:       "INV-1-1751364000",
		GrossAmount:   150000,
		CustomerName:  "Budi",
		CustomerEmail: "budi@example.com",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)
	assert.Equal(t, "http://pay.local/snap/v2/vtweb/"+session.Token, session.RedirectURL)

	status, err := client.PollStatus(ctx, "INV-1-1751364000")
	require.NoError(t, err)
	assert.Equal(t, "pending", status.TransactionStatus)
	assert.Equal(t, "150000.00", status.GrossAmount)

	resp := simulate(t, srv, "INV-1-1751364000", map[string]any{"transaction_status": "settlement"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	status, err = client.PollStatus(ctx, "INV-1-1751364000")
	require.NoError(t, err)
	assert.Equal(t, "settlement", status.TransactionStatus)
	assert.Equal(t, "200", status.StatusCode)
	assert.NotEmpty(t, status.SettlementTime)
	assert.NotEmpty(t, status.ReferenceNumber())
}

func TestMockGateway_DuplicateOrderRejected(t *testing.T) {
	_, client := startMock(t, "")
	req := model.ChargeRequest{OrderID: "INV-2-1", GrossAmount: 1000}

	_, err := client.CreateChargeSession(context.Background(), req)
	require.NoError(t, err)

	_, err = client.CreateChargeSession(context.Background(), req)
	assert.ErrorIs(t, err, model.ErrGatewayRejected)
}

func TestMockGateway_WrongKey(t *testing.T) {
	srv, _ := startMock(t, "")
	client, err := gateway.NewClient(&gateway.Config{
		ServerKey: "someone-else",
		SnapURL:   srv.URL + "/snap/v1/transactions",
		APIURL:    srv.URL,
	})
	require.NoError(t, err)

	_, err = client.CreateChargeSession(context.Background(), model.ChargeRequest{OrderID: "INV-3-1", GrossAmount: 1000})
	assert.ErrorIs(t, err, model.ErrGatewayRejected)
}

func TestMockGateway_UnknownOrderPoll(t *testing.T) {
	_, client := startMock(t, "")
	_, err := client.PollStatus(context.Background(), "INV-404-1")
	assert.ErrorIs(t, err, model.ErrGatewayRejected)
}

func TestMockGateway_SimulatePushesSignedNotification(t *testing.T) {
	received := make(chan []byte, 1)
	callback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		received <- b
		w.WriteHeader(http.StatusOK)
	}))
	defer callback.Close()

	srv, client := startMock(t, callback.URL)
	_, err := client.CreateChargeSession(context.Background(), model.ChargeRequest{OrderID: "INV-4-1", GrossAmount: 250000})
	require.NoError(t, err)

	resp := simulate(t, srv, "INV-4-1", map[string]any{"transaction_status": "capture", "fraud_status": "accept"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload model.WebhookPayload
	select {
	case b := <-received:
		require.NoError(t, json.Unmarshal(b, &payload))
	case <-time.After(2 * time.Second):
		t.Fatal("no notification delivered")
	}

	assert.Equal(t, "INV-4-1", payload.OrderID)
	assert.Equal(t, "capture", payload.TransactionStatus)
	assert.Equal(t, "250000.00", payload.GrossAmount)
	assert.True(t, gateway.NewSignatureVerifier(testServerKey).Verify(&payload))
	assert.False(t, gateway.NewSignatureVerifier("other").Verify(&payload))
	assert.Equal(t, model.TransactionStatusCapture, gateway.MapStatus(payload.TransactionStatus, payload.FraudStatus))
}

func TestMockGateway_SimulateUnknownOrder(t *testing.T) {
	srv, _ := startMock(t, "")
	resp := simulate(t, srv, "nope", map[string]any{"transaction_status": "settlement"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = simulate(t, srv, "nope", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
