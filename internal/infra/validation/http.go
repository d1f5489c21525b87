package validation

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/vietddude/purchasekit/internal/core/domain"
)

// HTTPValidator validates receipts against a JSON/HTTP endpoint.
type HTTPValidator struct {
	endpoint   string
	httpClient *http.Client
}

// Config holds validator connection configuration.
type Config struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// NewHTTPValidator creates a receipt validator client.
func NewHTTPValidator(cfg Config) *HTTPValidator {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPValidator{
		endpoint: cfg.URL,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

func (v *HTTPValidator) ValidateReceipt(ctx context.Context, data []byte) (domain.ReceiptValidation, error) {
	if len(data) == 0 {
		return domain.ReceiptValidation{}, domain.ErrInvalidReceipt
	}

	payload, err := json.Marshal(map[string]string{
		"receipt": base64.StdEncoding.EncodeToString(data),
	})
	if err != nil {
		return domain.ReceiptValidation{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint+"/v1/receipts/validate", bytes.NewReader(payload))
	if err != nil {
		return domain.ReceiptValidation{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return domain.ReceiptValidation{}, fmt.Errorf("%w: %v", domain.ErrRequestTimeout, err)
		}
		if errors.Is(err, context.Canceled) {
			return domain.ReceiptValidation{}, err
		}
		return domain.ReceiptValidation{}, fmt.Errorf("%w: %v", domain.ErrNetworkUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.ReceiptValidation{}, fmt.Errorf("%w: %v", domain.ErrNetworkUnavailable, err)
	}

	switch {
	case resp.StatusCode >= 500:
		// Server-side validation failures are transient; the receipt may
		// verify fine on the next attempt.
		return domain.ReceiptValidation{}, fmt.Errorf("%w: http %d: %s", domain.ErrServerValidation, resp.StatusCode, body)
	case resp.StatusCode == http.StatusBadRequest, resp.StatusCode == http.StatusUnprocessableEntity:
		return domain.ReceiptValidation{}, fmt.Errorf("%w: %s", domain.ErrInvalidReceipt, body)
	case resp.StatusCode != http.StatusOK:
		return domain.ReceiptValidation{}, fmt.Errorf("http %d: %s", resp.StatusCode, body)
	}

	var result domain.ReceiptValidation
	if err := json.Unmarshal(body, &result); err != nil {
		return domain.ReceiptValidation{}, fmt.Errorf("parse response: %w", err)
	}
	return result, nil
}
