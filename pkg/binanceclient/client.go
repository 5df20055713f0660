/**
 * @description
 * This package provides a client for Binance's account and asset
 * endpoints. It is used to prove that a supplied API key/secret pair is
 * valid and to report an account's aggregate wallet balance in USD,
 * without ever persisting the secret.
 *
 * Signed requests follow Binance's HMAC scheme: the parameter set is
 * serialized as a query string in construction order, signed with
 * HMAC-SHA256 keyed by the API secret, and the hex signature is appended
 * as the final parameter. The API key travels only in the X-MBX-APIKEY
 * header, never in the body or query.
 *
 * Every call is a single attempt with a bounded timeout; callers decide
 * whether to re-invoke.
 */
package binanceclient

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	defaultBaseURL = "https://api.binance.com"
	recvWindow     = "5000"

	accountPath     = "/api/v3/account"
	userAssetPath   = "/sapi/v3/asset/getUserAsset"
	tickerPricePath = "/api/v3/ticker/price"
	btcUSDTSymbol   = "BTCUSDT"
)

// ErrorKind classifies an exchange failure for callers.
type ErrorKind string

const (
	KindUnreachable         ErrorKind = "unreachable"          // transport failure, no HTTP status
	KindCredentialsRejected ErrorKind = "credentials_rejected" // 4xx from the exchange
	KindRateLimited         ErrorKind = "rate_limited"         // 429 / 418
	KindServerError         ErrorKind = "server_error"         // 5xx
	KindMalformedResponse   ErrorKind = "malformed_response"   // empty or non-JSON body
	KindInvalidPriceData    ErrorKind = "invalid_price_data"   // non-numeric or non-positive spot price
)

// APIError represents a failure reported by or while contacting the
// exchange. Status is 0 when the exchange was unreachable. Message
// carries the exchange's own text when one was returned.
type APIError struct {
	Kind    ErrorKind
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("binance api error (%d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("binance api error: %s", e.Message)
}

func classifyStatus(status int) ErrorKind {
	switch {
	case status == http.StatusTooManyRequests || status == http.StatusTeapot:
		return KindRateLimited
	case status >= 400 && status < 500:
		return KindCredentialsRejected
	default:
		return KindServerError
	}
}

// AccountInformation is the subset of the account endpoint's response
// the platform cares about.
type AccountInformation struct {
	AccountType string `json:"accountType"`
	CanTrade    bool   `json:"canTrade"`
	CanWithdraw bool   `json:"canWithdraw"`
	CanDeposit  bool   `json:"canDeposit"`
	UpdateTime  int64  `json:"updateTime"`
}

// UserAsset is one balance entry from the asset enumeration endpoint.
type UserAsset struct {
	Asset        string `json:"asset"`
	Free         string `json:"free"`
	Locked       string `json:"locked"`
	BtcValuation string `json:"btcValuation"`
}

type tickerPrice struct {
	Price string `json:"price"`
}

// Client is a client for the Binance API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	// now is the timestamp source for signed requests; injectable so
	// the signature can be tested as a pure function of its inputs.
	now func() time.Time
}

// NewClient creates a new Binance API client. An empty baseURL selects
// the production endpoint.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		now: time.Now,
	}
}

// param is one request parameter. A slice of params keeps the exact
// construction order, which the signature depends on.
type param struct {
	key   string
	value string
}

func encodeParams(params []param) string {
	var b strings.Builder
	for i, p := range params {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.value))
	}
	return b.String()
}

// sign computes the hex HMAC-SHA256 of the payload keyed by the secret.
func sign(apiSecret, payload string) string {
	mac := hmac.New(sha256.New, []byte(apiSecret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// signedPayload serializes the standard parameter set plus any extras
// and appends the signature. Exposed internally so tests can pin the
// timestamp and assert byte-identical output.
func (c *Client) signedPayload(apiSecret string, extra []param) string {
	params := []param{
		{"recvWindow", recvWindow},
		{"timestamp", strconv.FormatInt(c.now().UnixMilli(), 10)},
	}
	params = append(params, extra...)
	serialized := encodeParams(params)
	return serialized + "&signature=" + sign(apiSecret, serialized)
}

// signedRequest issues one signed request and returns the raw response
// body. For GET the payload travels in the query string; for POST it is
// the form-encoded body.
func (c *Client) signedRequest(ctx context.Context, apiKey, apiSecret, method, path string, extra []param) ([]byte, error) {
	payload := c.signedPayload(apiSecret, extra)

	var (
		requestURL = c.BaseURL + path
		body       io.Reader
	)
	if method == http.MethodGet {
		requestURL += "?" + payload
	} else {
		body = strings.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create exchange request: %w", err)
	}
	req.Header.Set("X-MBX-APIKEY", apiKey)
	if method != http.MethodGet {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &APIError{Kind: KindUnreachable, Message: err.Error()}
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{Kind: KindUnreachable, Message: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{
			Kind:    classifyStatus(resp.StatusCode),
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("exchange API error (%d)", resp.StatusCode),
		}
		// Pass the exchange's own message through unchanged when present.
		var payload struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
		}
		if jsonErr := json.Unmarshal(bodyBytes, &payload); jsonErr == nil && payload.Msg != "" {
			apiErr.Code = payload.Code
			apiErr.Message = payload.Msg
		}
		return nil, apiErr
	}

	if len(bodyBytes) == 0 {
		return nil, &APIError{
			Kind:    KindMalformedResponse,
			Status:  resp.StatusCode,
			Message: "received empty response from exchange",
		}
	}
	return bodyBytes, nil
}

// VerifyAccount issues one signed GET to the account endpoint to prove
// the key pair is valid, and reports the account's capabilities.
func (c *Client) VerifyAccount(ctx context.Context, apiKey, apiSecret string) (*AccountInformation, error) {
	body, err := c.signedRequest(ctx, apiKey, apiSecret, http.MethodGet, accountPath, nil)
	if err != nil {
		return nil, err
	}

	var account AccountInformation
	if err := json.Unmarshal(body, &account); err != nil {
		return nil, &APIError{Kind: KindMalformedResponse, Message: "unexpected account response from exchange"}
	}
	return &account, nil
}

// FetchWalletBalanceUSD enumerates the account's assets with BTC
// valuations, sums them, and converts the total to USD using the spot
// BTCUSDT price. A non-positive aggregate valuation short-circuits to
// zero without calling the price endpoint.
func (c *Client) FetchWalletBalanceUSD(ctx context.Context, apiKey, apiSecret string) (decimal.Decimal, error) {
	body, err := c.signedRequest(ctx, apiKey, apiSecret, http.MethodPost, userAssetPath,
		[]param{{"needBtcValuation", "true"}})
	if err != nil {
		return decimal.Zero, err
	}

	var assets []UserAsset
	if err := json.Unmarshal(body, &assets); err != nil {
		return decimal.Zero, &APIError{Kind: KindMalformedResponse, Message: "unexpected response when retrieving exchange assets"}
	}

	totalBTC := decimal.Zero
	for _, asset := range assets {
		if asset.BtcValuation == "" {
			continue
		}
		valuation, err := decimal.NewFromString(asset.BtcValuation)
		if err != nil {
			continue // non-numeric valuations count as zero
		}
		totalBTC = totalBTC.Add(valuation)
	}

	if !totalBTC.IsPositive() {
		return decimal.Zero, nil
	}

	price, err := c.fetchBTCPrice(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return totalBTC.Mul(price), nil
}

// fetchBTCPrice issues one unsigned GET for the BTCUSDT spot price.
func (c *Client) fetchBTCPrice(ctx context.Context) (decimal.Decimal, error) {
	requestURL := c.BaseURL + tickerPricePath + "?symbol=" + btcUSDTSymbol

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to create price request: %w", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return decimal.Zero, &APIError{Kind: KindUnreachable, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decimal.Zero, &APIError{
			Kind:    classifyStatus(resp.StatusCode),
			Status:  resp.StatusCode,
			Message: "unable to retrieve BTC price for valuation",
		}
	}

	var ticker tickerPrice
	if err := json.NewDecoder(resp.Body).Decode(&ticker); err != nil {
		return decimal.Zero, &APIError{Kind: KindMalformedResponse, Message: "unexpected price response from exchange"}
	}

	price, err := decimal.NewFromString(ticker.Price)
	if err != nil || !price.IsPositive() {
		return decimal.Zero, &APIError{Kind: KindInvalidPriceData, Message: "received invalid BTC price from exchange"}
	}
	return price, nil
}
