/**
 * @description
 * HTTP handlers for the exchange credential verification surface. These
 * endpoints take an API key/secret pair, prove it against the exchange,
 * and report capabilities or aggregate balance. Secrets are used for the
 * single outbound call and never stored.
 *
 * Error bodies are JSON objects ({"error": ...}) and upstream statuses
 * are passed through where the exchange supplied one.
 */
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/algoflow/subscription-service/pkg/binanceclient"
)

// ExchangeClient is the interface the handlers need from the exchange
// integration. Satisfied by *binanceclient.Client.
type ExchangeClient interface {
	VerifyAccount(ctx context.Context, apiKey, apiSecret string) (*binanceclient.AccountInformation, error)
	FetchWalletBalanceUSD(ctx context.Context, apiKey, apiSecret string) (decimal.Decimal, error)
}

type exchangeCredentialsRequest struct {
	APIKey    string `json:"apiKey"`
	APISecret string `json:"apiSecret"`
}

// handleVerifyAccount verifies an API key/secret pair against the
// exchange's account endpoint.
func (h *Handler) handleVerifyAccount(w http.ResponseWriter, r *http.Request) {
	if !h.consumeVerifyBudget(w, r) {
		return
	}

	creds, ok := decodeCredentials(w, r)
	if !ok {
		return
	}

	account, err := h.exchange.VerifyAccount(r.Context(), creds.APIKey, creds.APISecret)
	if err != nil {
		respondExchangeError(w, err, http.StatusInternalServerError)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{"account": account})
}

// handleWalletBalance reports the aggregate wallet balance in USD.
func (h *Handler) handleWalletBalance(w http.ResponseWriter, r *http.Request) {
	if !h.consumeVerifyBudget(w, r) {
		return
	}

	creds, ok := decodeCredentials(w, r)
	if !ok {
		return
	}

	total, err := h.exchange.FetchWalletBalanceUSD(r.Context(), creds.APIKey, creds.APISecret)
	if err != nil {
		respondExchangeError(w, err, http.StatusBadGateway)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{"totalBalanceUSD": total})
}

func decodeCredentials(w http.ResponseWriter, r *http.Request) (exchangeCredentialsRequest, bool) {
	var req exchangeCredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON body")
		return req, false
	}

	req.APIKey = strings.TrimSpace(req.APIKey)
	req.APISecret = strings.TrimSpace(req.APISecret)
	if req.APIKey == "" || req.APISecret == "" {
		respondWithError(w, http.StatusBadRequest, "Exchange API key and secret are both required.")
		return req, false
	}
	return req, true
}

// consumeVerifyBudget applies the per-client rate limit for exchange
// calls. Limiting failures are logged by the limiter and treated as
// allows, so a Redis outage never blocks verification.
func (h *Handler) consumeVerifyBudget(w http.ResponseWriter, r *http.Request) bool {
	if h.limiter == nil {
		return true
	}

	count, retryAfter, err := h.limiter.ConsumeRateLimit(r.Context(), "exchange_verify", clientIP(r), h.verifyLimit, h.verifyWindow)
	if err != nil {
		return true
	}
	if h.verifyLimit > 0 && count > h.verifyLimit {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		respondWithError(w, http.StatusTooManyRequests, fmt.Sprintf("Too many verification attempts. Retry in %d seconds.", retryAfter))
		return false
	}
	return true
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// respondExchangeError maps an exchange client failure to a response.
// The exchange's own status is passed through when present; fallback is
// the supplied default (500 for verification, 502 for wallet reads).
func respondExchangeError(w http.ResponseWriter, err error, fallback int) {
	var apiErr *binanceclient.APIError
	if errors.As(err, &apiErr) {
		status := apiErr.Status
		if status == 0 {
			status = fallback
		}
		respondWithError(w, status, apiErr.Message)
		return
	}
	respondWithError(w, fallback, "Unexpected error contacting the exchange. Please try again.")
}

// respondWithError writes a JSON error body.
func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}
