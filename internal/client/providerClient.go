package client

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"storefront-checkout/internal/config"
	"storefront-checkout/internal/model"
	"time"

	"github.com/sony/gobreaker/v2"
)

var ErrInvalidSignature = errors.New("webhook signature mismatch")

// RejectedError means the provider answered but refused the request.
// Anything else returned by the client is a transport or decoding failure.
type RejectedError struct {
	StatusCode int
	Message    string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("provider rejected request: status=%d message=%s", e.StatusCode, e.Message)
}

type ProviderClient interface {
	InitializeTransaction(ctx context.Context, req *model.ProviderInitializeRequest) (*model.ProviderAuthorization, error)
	VerifyTransaction(ctx context.Context, reference string) (*model.ProviderTransaction, error)
	VerifyWebhookSignature(body []byte, signature string) error
}

type providerClientImpl struct {
	httpClient *http.Client
	baseURL    string
	secretKey  string
	breaker    *gobreaker.CircuitBreaker[*model.ProviderEnvelope]
}

func NewProviderClient(cfg *config.Provider) ProviderClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker[*model.ProviderEnvelope](gobreaker.Settings{
		Name:        "payment-provider",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// a refusal means the provider is up
		IsSuccessful: func(err error) bool {
			var rejected *RejectedError
			return err == nil || errors.As(err, &rejected)
		},
	})

	return &providerClientImpl{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL:   cfg.BaseURL,
		secretKey: cfg.SecretKey,
		breaker:   breaker,
	}
}

func (c *providerClientImpl) InitializeTransaction(ctx context.Context, payload *model.ProviderInitializeRequest) (*model.ProviderAuthorization, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal req payload: %w", err)
	}

	envelope, err := c.breaker.Execute(func() (*model.ProviderEnvelope, error) {
		return c.do(ctx, http.MethodPost, c.baseURL+"/transaction/initialize", body)
	})
	if err != nil {
		return nil, fmt.Errorf("initialize transaction: %w", err)
	}

	var auth model.ProviderAuthorization
	if err := json.Unmarshal(envelope.Data, &auth); err != nil {
		return nil, fmt.Errorf("decode initialize data: %w", err)
	}

	return &auth, nil
}

func (c *providerClientImpl) VerifyTransaction(ctx context.Context, reference string) (*model.ProviderTransaction, error) {
	endpoint := fmt.Sprintf("%s/transaction/verify/%s", c.baseURL, url.PathEscape(reference))

	envelope, err := c.breaker.Execute(func() (*model.ProviderEnvelope, error) {
		return c.do(ctx, http.MethodGet, endpoint, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("verify transaction: %w", err)
	}

	var tx model.ProviderTransaction
	if err := json.Unmarshal(envelope.Data, &tx); err != nil {
		return nil, fmt.Errorf("decode verify data: %w", err)
	}

	return &tx, nil
}

// VerifyWebhookSignature checks the hex HMAC-SHA512 of the raw body keyed
// with the secret key.
func (c *providerClientImpl) VerifyWebhookSignature(body []byte, signature string) error {
	expected := SignPayload(c.secretKey, body)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrInvalidSignature
	}
	return nil
}

func SignPayload(secretKey string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secretKey))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *providerClientImpl) do(ctx context.Context, method, endpoint string, body []byte) (*model.ProviderEnvelope, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("http new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http client do: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read provider response: %w", err)
	}

	var envelope model.ProviderEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode provider response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK || !envelope.Status {
		msg := envelope.Message
		if msg == "" {
			msg = "Unknown error"
		}
		return nil, &RejectedError{StatusCode: resp.StatusCode, Message: msg}
	}

	return &envelope, nil
}
