package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/glowcloud/glow/internal/wallet"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Config{URL: srv.URL, APIKey: "daemon-secret", Network: "regtest"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestGetInfo(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/info" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer daemon-secret" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("X-Wallet-Network"); got != "regtest" {
			t.Errorf("network header = %q", got)
		}
		json.NewEncoder(w).Encode(wallet.Info{BalanceSats: 42000, MaxPayableSats: 41000})
	})

	info, err := c.GetInfo(context.Background())
	if err != nil {
		t.Fatalf("GetInfo: %v", err)
	}
	if info.BalanceSats != 42000 || info.MaxPayableSats != 41000 {
		t.Errorf("info = %+v", info)
	}
}

func TestPrepareClientErrorIsInvalidDestination(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message":"unsupported destination format"}`))
	})

	_, err := c.PrepareSendPayment(context.Background(), wallet.PrepareRequest{Destination: "garbage"})
	if !errors.Is(err, wallet.ErrInvalidDestination) {
		t.Fatalf("got %v, want ErrInvalidDestination", err)
	}
}

func TestServerErrorIsNotInvalidDestination(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "node offline", http.StatusServiceUnavailable)
	})

	_, err := c.PrepareSendPayment(context.Background(), wallet.PrepareRequest{Destination: "lnbc1"})
	if errors.Is(err, wallet.ErrInvalidDestination) {
		t.Fatal("5xx must not be reported as an invalid destination")
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("got %v", err)
	}
	if apiErr.Message != "node offline" {
		t.Errorf("message = %q", apiErr.Message)
	}
}

func TestSendRoundTrip(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var p wallet.PreparedPayment
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("decode: %v", err)
			return
		}
		if p.Handle != "h-1" || p.AmountSats != 1500 {
			t.Errorf("prepared payment = %+v", p)
		}
		json.NewEncoder(w).Encode(wallet.SendResult{PaymentID: "pay-1", Status: "pending"})
	})

	res, err := c.SendPayment(context.Background(), &wallet.PreparedPayment{Handle: "h-1", AmountSats: 1500})
	if err != nil {
		t.Fatalf("SendPayment: %v", err)
	}
	if res.PaymentID != "pay-1" {
		t.Errorf("payment id = %q", res.PaymentID)
	}
}

func TestListPaymentsQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("offset") != "10" || r.URL.Query().Get("limit") != "5" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"payments":null}`))
	})

	ps, err := c.ListPayments(context.Background(), wallet.ListPaymentsRequest{Offset: 10, Limit: 5})
	if err != nil {
		t.Fatalf("ListPayments: %v", err)
	}
	if ps == nil || len(ps) != 0 {
		t.Errorf("payments = %#v, want empty slice", ps)
	}
}

func TestNewValidatesURL(t *testing.T) {
	for _, u := range []string{"", "ftp://wallet", "://bad"} {
		if _, err := New(Config{URL: u}); err == nil {
			t.Errorf("New(%q) should fail", u)
		}
	}
}
