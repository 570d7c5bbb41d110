// Package catalog reads NFT listings from the storefront catalog API.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/nftcheckout/internal/config"
	obsmetrics "github.com/smallbiznis/nftcheckout/internal/observability/metrics"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	ErrListingNotFound    = errors.New("listing_not_found")
	ErrListingUnavailable = errors.New("listing_unavailable")
	ErrUnsupportedPrice   = errors.New("listing_price_unavailable")
)

var Module = fx.Module("catalog",
	fx.Provide(NewClient),
)

type Listing struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	PriceUSD        decimal.Decimal `json:"price_usd"`
	PriceINR        decimal.Decimal `json:"price_inr"`
	IsSold          bool            `json:"is_sold"`
	IsReserved      bool            `json:"is_reserved"`
	ContractAddress string          `json:"contract_address"`
	TokenID         string          `json:"token_id"`
}

// Available reports whether the listing can still be bought.
func (l Listing) Available() bool {
	return !l.IsSold && !l.IsReserved
}

// Price returns the listed price for currency (USD or INR).
func (l Listing) Price(currency string) (decimal.Decimal, error) {
	var price decimal.Decimal
	switch strings.ToUpper(currency) {
	case "USD":
		price = l.PriceUSD
	case "INR":
		price = l.PriceINR
	default:
		return decimal.Zero, ErrUnsupportedPrice
	}
	if !price.IsPositive() {
		return decimal.Zero, ErrUnsupportedPrice
	}
	return price, nil
}

type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

func NewClient(cfg config.Config, log *zap.Logger) *Client {
	timeout := cfg.Catalog.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.Catalog.URL, "/"),
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   timeout,
		},
		log: log.Named("catalog.client"),
	}
}

// Configured is false when CATALOG_URL is unset; callers then trust the
// price sent by the storefront.
func (c *Client) Configured() bool {
	return c != nil && c.baseURL != ""
}

func (c *Client) GetListing(ctx context.Context, id string) (Listing, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Listing{}, ErrListingNotFound
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/nfts/"+url.PathEscape(id), nil)
	if err != nil {
		return Listing{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Listing{}, fmt.Errorf("catalog get %s: %w", id, errors.Join(obsmetrics.ErrUpstream, err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Listing{}, ErrListingNotFound
	case resp.StatusCode >= 300:
		c.log.Warn("catalog error", zap.String("nft_id", id), zap.Int("status", resp.StatusCode))
		return Listing{}, fmt.Errorf("catalog status %d: %w", resp.StatusCode, obsmetrics.ErrUpstream)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Listing{}, fmt.Errorf("catalog read body: %w", errors.Join(obsmetrics.ErrUpstream, err))
	}

	// The catalog answers either a bare listing or {"success":true,"data":{...}}.
	var envelope struct {
		Data *Listing `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Data != nil {
		return *envelope.Data, nil
	}
	var listing Listing
	if err := json.Unmarshal(raw, &listing); err != nil {
		return Listing{}, fmt.Errorf("catalog decode: %w", errors.Join(obsmetrics.ErrUpstream, err))
	}
	return listing, nil
}
