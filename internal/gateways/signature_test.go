package gateway

import (
	"crypto/sha512"
	"encoding/hex"
	"testing"

	"github.com/nimasrn/school-payment/internal/model"
	"github.com/stretchr/testify/assert"
)

func signedPayload(key string) *model.WebhookPayload {
	p := &model.WebhookPayload{
		GatewayStatusPayload: model.GatewayStatusPayload{
			OrderID:     "ORDER-1-20250101000000-ABCDEF",
			StatusCode:  "200",
			GrossAmount: "500000.00",
		},
	}
	p.SignatureKey = Sign(p.OrderID, p.StatusCode, p.GrossAmount, key)
	return p
}

func TestSign(t *testing.T) {
	sum := sha512.Sum512([]byte("ORDER-1" + "200" + "100.00" + "secret"))
	assert.Equal(t, hex.EncodeToString(sum[:]), Sign("ORDER-1", "200", "100.00", "secret"))
}

func TestSignatureVerifier_Verify(t *testing.T) {
	v := NewSignatureVerifier("secret")

	assert.True(t, v.Verify(signedPayload("secret")))
	assert.False(t, v.Verify(signedPayload("other-secret")))
	assert.False(t, v.Verify(nil))

	tamper := map[string]func(p *model.WebhookPayload){
		"order id":    func(p *model.WebhookPayload) { p.OrderID += "X" },
		"status code": func(p *model.WebhookPayload) { p.StatusCode = "201" },
		"gross":       func(p *model.WebhookPayload) { p.GrossAmount = "1.00" },
		"signature":   func(p *model.WebhookPayload) { p.SignatureKey = flipLast(p.SignatureKey) },
		"empty":       func(p *model.WebhookPayload) { p.SignatureKey = "" },
	}
	for name, fn := range tamper {
		t.Run(name, func(t *testing.T) {
			p := signedPayload("secret")
			fn(p)
			assert.False(t, v.Verify(p))
		})
	}

	assert.False(t, NewSignatureVerifier("").Verify(signedPayload("")))
}

func flipLast(s string) string {
	last := "0"
	if s[len(s)-1] == '0' {
		last = "1"
	}
	return s[:len(s)-1] + last
}
