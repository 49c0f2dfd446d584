package bitmarket

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
)

// Credentials are the merchant API key pair from gateway settings.
type Credentials struct {
	APIKey    string
	APISecret string
}

// ButtonRequest is the payment request created for one checkout attempt.
// Custom carries the host order id and is echoed back on the callback.
type ButtonRequest struct {
	Name             string `json:"name"`
	PriceString      string `json:"price_string"`
	PriceCurrencyISO string `json:"price_currency_iso"`
	CallbackURL      string `json:"callback_url"`
	Custom           string `json:"custom"`
	SuccessURL       string `json:"success_url"`
	CancelURL        string `json:"cancel_url"`
}

// Gateway creates payment requests on the processor and returns the opaque
// checkout code used to build the customer redirect.
type Gateway interface {
	CreateButton(ctx context.Context, creds Credentials, req ButtonRequest) (string, error)
}

type buttonResponse struct {
	Success bool `json:"success"`
	Button  struct {
		Code string `json:"code"`
	} `json:"button"`
	Errors []string `json:"errors"`
}

type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
}

func NewClient(baseURL string) *Client {
	settings := gobreaker.Settings{
		Name:    "bitmarket-api",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}

	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

func (c *Client) CreateButton(ctx context.Context, creds Credentials, req ButtonRequest) (string, error) {
	body, err := json.Marshal(map[string]ButtonRequest{"button": req})
	if err != nil {
		return "", err
	}

	url := c.baseURL + "/buttons"

	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.post(ctx, url, creds, body)
	})
	if err != nil {
		return "", err
	}

	parsed := res.(*buttonResponse)
	if !parsed.Success || parsed.Button.Code == "" {
		return "", fmt.Errorf("bitmarket rejected button: %v", parsed.Errors)
	}
	return parsed.Button.Code, nil
}

func (c *Client) post(ctx context.Context, url string, creds Credentials, body []byte) (*buttonResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	nonce := strconv.FormatInt(time.Now().UnixNano(), 10)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("ACCESS_KEY", creds.APIKey)
	httpReq.Header.Set("ACCESS_NONCE", nonce)
	httpReq.Header.Set("ACCESS_SIGNATURE", sign(creds.APISecret, nonce+url+string(body)))

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("bitmarket api status %d", resp.StatusCode)
	}

	var parsed buttonResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("bitmarket api response: %w", err)
	}
	return &parsed, nil
}

// sign computes the request signature the same way the processor's SDKs do:
// HMAC-SHA256 over nonce + url + body, hex encoded.
func sign(secret, msg string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(msg))
	return hex.EncodeToString(mac.Sum(nil))
}
