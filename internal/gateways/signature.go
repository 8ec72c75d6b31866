package gateway

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"

	"github.com/nimasrn/school-payment/internal/model"
)

// Sign returns the hex SHA-512 of orderID+statusCode+grossAmount+serverKey,
// which is what the gateway puts in signature_key.
func Sign(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

type SignatureVerifier struct {
	serverKey string
}

func NewSignatureVerifier(serverKey string) *SignatureVerifier {
	return &SignatureVerifier{serverKey: serverKey}
}

func (v *SignatureVerifier) Verify(p *model.WebhookPayload) bool {
	if p == nil || p.SignatureKey == "" || v.serverKey == "" {
		return false
	}
	expected := Sign(p.OrderID, p.StatusCode, p.GrossAmount, v.serverKey)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(p.SignatureKey)) == 1
}
