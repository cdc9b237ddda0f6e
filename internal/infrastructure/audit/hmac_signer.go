package audit

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"

	"github.com/turtacn/apishield/internal/domain/models"
	"github.com/turtacn/apishield/internal/domain/service"
)

// SignAttempt calculates the HMAC-SHA256 signature of an attempt record,
// computed over its JSON form with the Signature field empty.
func SignAttempt(a models.AttemptRecord, secretKey string) (string, error) {
	a.Signature = ""
	payload, err := json.Marshal(a)
	if err != nil {
		return "", err
	}

	h := hmac.New(sha256.New, []byte(secretKey))
	h.Write(payload)
	return base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
}

// VerifyAttempt reports whether a carries a valid signature for secretKey.
func VerifyAttempt(a models.AttemptRecord, secretKey string) bool {
	want, err := SignAttempt(a, secretKey)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(want), []byte(a.Signature))
}

// SigningSink signs attempts before handing them to next. The signature is set
// on a copy so other sinks see the record unchanged.
type SigningSink struct {
	next   service.AuditSink
	secret string
}

func NewSigningSink(next service.AuditSink, secret string) *SigningSink {
	return &SigningSink{next: next, secret: secret}
}

func (s *SigningSink) Record(ctx context.Context, a *models.AttemptRecord) error {
	signed := *a
	sig, err := SignAttempt(signed, s.secret)
	if err != nil {
		return err
	}
	signed.Signature = sig
	return s.next.Record(ctx, &signed)
}
