// Package minter calls the external mint service that assigns a purchased
// NFT to the buyer.
package minter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/nftcheckout/internal/config"
	"github.com/smallbiznis/nftcheckout/internal/delivery/domain"
	obsmetrics "github.com/smallbiznis/nftcheckout/internal/observability/metrics"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const IdempotencyHeader = "Idempotency-Key"

type Client struct {
	url    string
	apiKey string
	http   *http.Client
	log    *zap.Logger
}

func NewClient(cfg config.Config, log *zap.Logger) domain.Minter {
	return newClient(cfg.Mint, log)
}

func newClient(cfg config.MintConfig, log *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		url:    strings.TrimSpace(cfg.URL),
		apiKey: cfg.APIKey,
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   timeout,
		},
		log: log.Named("mint.client"),
	}
}

type mintResponse struct {
	Success bool `json:"success"`
	domain.MintResult
	Error string `json:"error"`
}

// Mint posts the request with the transaction id as idempotency key.
// Unavailability and 5xx answers are retryable; other 4xx answers except
// 404, 409 and 429 are wrapped in ErrMintRejected.
func (c *Client) Mint(ctx context.Context, req domain.MintRequest) (domain.MintResult, error) {
	if c.url == "" {
		return domain.MintResult{}, domain.ErrMintNotConfigured
	}

	body, err := json.Marshal(req)
	if err != nil {
		return domain.MintResult{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return domain.MintResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(IdempotencyHeader, req.TransactionID)
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return domain.MintResult{}, fmt.Errorf("mint request: %w", errors.Join(obsmetrics.ErrUpstream, err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.MintResult{}, fmt.Errorf("mint read body: %w", errors.Join(obsmetrics.ErrUpstream, err))
	}

	var decoded mintResponse
	_ = json.Unmarshal(raw, &decoded)

	switch {
	case resp.StatusCode >= 500:
		return domain.MintResult{}, fmt.Errorf("mint status %d: %w", resp.StatusCode, obsmetrics.ErrUpstream)
	case resp.StatusCode == http.StatusNotFound,
		resp.StatusCode == http.StatusConflict,
		resp.StatusCode == http.StatusTooManyRequests:
		return domain.MintResult{}, fmt.Errorf("mint status %d: %s", resp.StatusCode, decoded.Error)
	case resp.StatusCode >= 400:
		c.log.Warn("mint rejected request",
			zap.String("transaction_id", req.TransactionID),
			zap.Int("status", resp.StatusCode),
			zap.String("error", decoded.Error),
		)
		return domain.MintResult{}, fmt.Errorf("mint status %d: %s: %w", resp.StatusCode, decoded.Error, domain.ErrMintRejected)
	}

	if !decoded.Success {
		return domain.MintResult{}, fmt.Errorf("mint reported failure: %s", decoded.Error)
	}
	return decoded.MintResult, nil
}
