package crypto

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"payment-orchestrator/internal/payerr"
)

// DefaultTokenTTL bounds payment token validity.
const DefaultTokenTTL = 15 * time.Minute

type paymentClaims struct {
	Data map[string]interface{} `json:"data"`
	jwt.RegisteredClaims
}

// GeneratePaymentToken issues a signed, time-limited token binding the
// given payment data. A non-positive ttl falls back to DefaultTokenTTL.
func (e *PaymentEncryption) GeneratePaymentToken(data map[string]interface{}, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	now := time.Now()
	claims := paymentClaims{
		Data: data,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(e.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign payment token: %w", err)
	}
	return signed, nil
}

// VerifyPaymentToken validates a token and returns the bound payment data.
// Expired tokens fail with ErrTokenExpired so callers can re-issue; any
// other verification failure is ErrTokenInvalid.
func (e *PaymentEncryption) VerifyPaymentToken(tokenString string) (map[string]interface{}, error) {
	claims := &paymentClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return e.jwtSecret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", payerr.ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", payerr.ErrTokenInvalid, err)
	}

	return claims.Data, nil
}
