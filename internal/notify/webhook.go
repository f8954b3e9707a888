package notify

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/glowcloud/glow/internal/model"
)

const webhookTimeout = 5 * time.Second

// WebhookClaims is the payload of the token sent with each delivery.
type WebhookClaims struct {
	EventSHA256 string `json:"event_sha256"`
	jwt.RegisteredClaims
}

// WebhookSink POSTs events as JSON. When a secret is configured every
// request carries an HS256 bearer token binding the body hash.
type WebhookSink struct {
	url    string
	secret []byte
	client *http.Client
}

func NewWebhookSink(url, secret string) *WebhookSink {
	return &WebhookSink{
		url:    url,
		secret: []byte(secret),
		client: &http.Client{Timeout: webhookTimeout},
	}
}

func (w *WebhookSink) Name() string { return "webhook" }

func (w *WebhookSink) Deliver(ctx context.Context, ev model.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "glow-webhook")
	req.Header.Set("X-Glow-Event", ev.Type)

	if len(w.secret) > 0 {
		token, err := w.sign(ev, body)
		if err != nil {
			return fmt.Errorf("sign webhook: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}

func (w *WebhookSink) sign(ev model.Event, body []byte) (string, error) {
	sum := sha256.Sum256(body)
	claims := WebhookClaims{
		EventSHA256: hex.EncodeToString(sum[:]),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "glow",
			Subject:   ev.Type,
			ID:        ev.ID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(w.secret)
}

// VerifyWebhook checks a delivery's bearer token against secret and body.
// Receivers written in Go can use it directly.
func VerifyWebhook(secret []byte, token string, body []byte) (*WebhookClaims, error) {
	claims := &WebhookClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithIssuer("glow"))
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("invalid webhook token")
	}
	sum := sha256.Sum256(body)
	if claims.EventSHA256 != hex.EncodeToString(sum[:]) {
		return nil, fmt.Errorf("webhook body does not match token")
	}
	return claims, nil
}
