package binanceclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func newTestClient(serverURL string) *Client {
	c := NewClient(serverURL)
	c.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return c
}

func TestEncodeParamsPreservesOrder(t *testing.T) {
	got := encodeParams([]param{
		{"recvWindow", "5000"},
		{"timestamp", "1700000000000"},
		{"needBtcValuation", "true"},
	})
	want := "recvWindow=5000&timestamp=1700000000000&needBtcValuation=true"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestSignedPayloadIsDeterministic(t *testing.T) {
	c := newTestClient("http://unused")

	tests := []struct {
		name  string
		extra []param
		want  string
	}{
		{
			name: "no extra params",
			want: "recvWindow=5000&timestamp=1700000000000" +
				"&signature=e80444d3300edcb80b05d266439eb51c0f9551b00a09836c26b05dea9af0eba3",
		},
		{
			name:  "extra param after the standard set",
			extra: []param{{"needBtcValuation", "true"}},
			want: "recvWindow=5000&timestamp=1700000000000&needBtcValuation=true" +
				"&signature=8c90c3878de4e3cdec4567f39f9d426698cc4d938bd5e81fa80d5be636a7171f",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.signedPayload("test-secret", tt.extra)
			if got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestVerifyAccountSendsSignedQuery(t *testing.T) {
	var gotPath, gotQuery, gotAPIKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAPIKey = r.Header.Get("X-MBX-APIKEY")
		w.Write([]byte(`{"accountType":"SPOT","canTrade":true,"canWithdraw":true,"canDeposit":true,"updateTime":1700000000000}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	account, err := c.VerifyAccount(context.Background(), "the-key", "test-secret")
	if err != nil {
		t.Fatalf("VerifyAccount returned error: %v", err)
	}

	if gotPath != "/api/v3/account" {
		t.Fatalf("expected account path, got %q", gotPath)
	}
	if gotAPIKey != "the-key" {
		t.Fatalf("expected API key in header, got %q", gotAPIKey)
	}
	wantQuery := "recvWindow=5000&timestamp=1700000000000" +
		"&signature=e80444d3300edcb80b05d266439eb51c0f9551b00a09836c26b05dea9af0eba3"
	if gotQuery != wantQuery {
		t.Fatalf("expected query %q, got %q", wantQuery, gotQuery)
	}
	if account.AccountType != "SPOT" || !account.CanTrade {
		t.Fatalf("unexpected account: %+v", account)
	}
}

func TestVerifyAccountPassesExchangeErrorThrough(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"code":-2014,"msg":"API-key format invalid."}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	_, err := c.VerifyAccount(context.Background(), "bad", "bad")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.Kind != KindCredentialsRejected {
		t.Fatalf("expected credentials_rejected, got %s", apiErr.Kind)
	}
	if apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", apiErr.Status)
	}
	if apiErr.Code != -2014 || apiErr.Message != "API-key format invalid." {
		t.Fatalf("expected exchange message passed through, got %+v", apiErr)
	}
}

func TestVerifyAccountRateLimitKinds(t *testing.T) {
	for _, status := range []int{http.StatusTooManyRequests, http.StatusTeapot} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		c := newTestClient(server.URL)
		_, err := c.VerifyAccount(context.Background(), "k", "s")
		server.Close()

		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Kind != KindRateLimited {
			t.Fatalf("status %d: expected rate_limited, got %v", status, err)
		}
	}
}

func TestVerifyAccountUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused from here on

	c := newTestClient(server.URL)
	_, err := c.VerifyAccount(context.Background(), "k", "s")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.Kind != KindUnreachable {
		t.Fatalf("expected unreachable, got %s", apiErr.Kind)
	}
	if apiErr.Status != 0 {
		t.Fatalf("expected no HTTP status, got %d", apiErr.Status)
	}
}

func TestVerifyAccountEmptyBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	_, err := c.VerifyAccount(context.Background(), "k", "s")

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Kind != KindMalformedResponse {
		t.Fatalf("expected malformed_response, got %v", err)
	}
}

func TestFetchWalletBalanceUSD(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sapi/v3/asset/getUserAsset":
			if r.Method != http.MethodPost {
				t.Errorf("expected POST to asset endpoint, got %s", r.Method)
			}
			if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
				t.Errorf("expected form content type, got %q", ct)
			}
			if r.URL.RawQuery != "" {
				t.Errorf("signed POST payload must travel in the body, found query %q", r.URL.RawQuery)
			}
			body, _ := io.ReadAll(r.Body)
			if !strings.Contains(string(body), "needBtcValuation=true") {
				t.Errorf("expected needBtcValuation in body, got %q", body)
			}
			if r.Header.Get("X-MBX-APIKEY") != "the-key" {
				t.Errorf("expected API key in header, got %q", r.Header.Get("X-MBX-APIKEY"))
			}
			if strings.Contains(string(body), "the-key") {
				t.Error("API key must never appear in the request body")
			}
			w.Write([]byte(`[
				{"asset":"BTC","free":"0.4","locked":"0","btcValuation":"0.4"},
				{"asset":"ETH","free":"2","locked":"0","btcValuation":"0.1"},
				{"asset":"DUST","free":"1","locked":"0","btcValuation":"not-a-number"}
			]`))
		case "/api/v3/ticker/price":
			if got := r.URL.Query().Get("symbol"); got != "BTCUSDT" {
				t.Errorf("expected BTCUSDT symbol, got %q", got)
			}
			w.Write([]byte(`{"symbol":"BTCUSDT","price":"60000.00"}`))
		default:
			t.Errorf("unexpected request to %s", r.URL.Path)
		}
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	total, err := c.FetchWalletBalanceUSD(context.Background(), "the-key", "test-secret")
	if err != nil {
		t.Fatalf("FetchWalletBalanceUSD returned error: %v", err)
	}

	// 0.5 BTC at 60000, with the non-numeric valuation counted as zero.
	if !total.Equal(decimal.RequireFromString("30000.00")) {
		t.Fatalf("expected 30000.00, got %s", total)
	}
}

func TestFetchWalletBalanceUSDZeroShortCircuits(t *testing.T) {
	pricedCalled := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sapi/v3/asset/getUserAsset":
			w.Write([]byte(`[{"asset":"BTC","free":"0","locked":"0","btcValuation":"0"}]`))
		case "/api/v3/ticker/price":
			pricedCalled = true
			w.Write([]byte(`{"symbol":"BTCUSDT","price":"60000.00"}`))
		}
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	total, err := c.FetchWalletBalanceUSD(context.Background(), "k", "s")
	if err != nil {
		t.Fatalf("FetchWalletBalanceUSD returned error: %v", err)
	}
	if !total.IsZero() {
		t.Fatalf("expected zero balance, got %s", total)
	}
	if pricedCalled {
		t.Fatal("zero valuation must not hit the price endpoint")
	}
}

func TestFetchWalletBalanceUSDInvalidPrice(t *testing.T) {
	tests := []struct {
		name  string
		price string
	}{
		{name: "non-numeric price", price: `"abc"`},
		{name: "zero price", price: `"0"`},
		{name: "negative price", price: `"-1"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				switch r.URL.Path {
				case "/sapi/v3/asset/getUserAsset":
					w.Write([]byte(`[{"asset":"BTC","free":"1","locked":"0","btcValuation":"1"}]`))
				case "/api/v3/ticker/price":
					w.Write([]byte(`{"symbol":"BTCUSDT","price":` + tt.price + `}`))
				}
			}))
			defer server.Close()

			c := newTestClient(server.URL)
			_, err := c.FetchWalletBalanceUSD(context.Background(), "k", "s")

			var apiErr *APIError
			if !errors.As(err, &apiErr) || apiErr.Kind != KindInvalidPriceData {
				t.Fatalf("expected invalid_price_data, got %v", err)
			}
		})
	}
}
