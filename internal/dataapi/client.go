package dataapi

// client.go - the Data-API REST boundary backing optionchain.ChainSource
// (spec.md §4.3 bootstrap): live-snapshot fetch when the exchange is open,
// closing-snapshot fallback otherwise, plus future-expiry listing. Calls
// are funneled through feed.RESTClient so they share the ingestor's
// rate-limit/channel-block discipline (CategoryData: <=5 rps, 401/403/429
// backoff) instead of opening a second, ungoverned HTTP path to the
// vendor. Response parsing uses encoding/json, not the ingestor's
// jsoniter choice: this is a low-volume bootstrap call, not the
// tick-decode hot path that choice was made for.

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"dhancore/internal/feed"
	"dhancore/internal/models"
	"dhancore/internal/optionchain"
)

var _ optionchain.ChainSource = (*Client)(nil)

// Client is the vendor Data-API client for option-chain bootstrap.
type Client struct {
	rest    *feed.RESTClient
	baseURL string
	token   string
}

// New builds a Client targeting baseURL, authenticating with token (sent
// as the vendor's access-token header).
func New(rest *feed.RESTClient, baseURL, token string) *Client {
	return &Client{rest: rest, baseURL: baseURL, token: token}
}

type optionChainResponse struct {
	Status string `json:"status"`
	Data   struct {
		LastPrice float64 `json:"last_price"`
		LotSize   int     `json:"lot_size"`
		Strikes   map[string]struct {
			CE optionLegJSON `json:"ce"`
			PE optionLegJSON `json:"pe"`
		} `json:"oc"`
	} `json:"data"`
}

type optionLegJSON struct {
	LTP    float64 `json:"last_price"`
	Bid    float64 `json:"top_bid_price"`
	Ask    float64 `json:"top_ask_price"`
	OI     int64   `json:"oi"`
	Volume int64   `json:"volume"`
	IV     float64 `json:"implied_volatility"`
}

type expiryListResponse struct {
	Status string   `json:"status"`
	Data   []string `json:"data"`
}

// FetchLiveSnapshot fetches the current option chain for (underlying,
// expiry) from the vendor's live quote endpoint.
func (c *Client) FetchLiveSnapshot(ctx context.Context, underlying, expiry string) (*models.OptionChainSkeleton, error) {
	return c.fetchSnapshot(ctx, "/v2/optionchain", underlying, expiry)
}

// FetchClosingSnapshot fetches the last recorded closing option chain for
// (underlying, expiry), used when the exchange is currently shut.
func (c *Client) FetchClosingSnapshot(ctx context.Context, underlying, expiry string) (*models.OptionChainSkeleton, error) {
	return c.fetchSnapshot(ctx, "/v2/optionchain/closing", underlying, expiry)
}

func (c *Client) fetchSnapshot(ctx context.Context, path, underlying, expiry string) (*models.OptionChainSkeleton, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()
	q.Set("underlying", underlying)
	q.Set("expiry", expiry)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("access-token", c.token)

	resp, err := c.rest.Do(ctx, feed.CategoryData, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dataapi: %s returned %d", path, resp.StatusCode)
	}

	var body optionChainResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("dataapi: decoding %s response: %w", path, err)
	}

	skel := &models.OptionChainSkeleton{
		Underlying:  underlying,
		Expiry:      expiry,
		LotSize:     body.Data.LotSize,
		ATM:         body.Data.LastPrice,
		Strikes:     make(map[float64]*models.StrikeData, len(body.Data.Strikes)),
		LastUpdated: time.Now(),
	}
	for strikeStr, leg := range body.Data.Strikes {
		var strike float64
		if _, err := fmt.Sscanf(strikeStr, "%f", &strike); err != nil {
			continue
		}
		skel.Strikes[strike] = &models.StrikeData{
			Strike: strike,
			CE:     toLeg(leg.CE),
			PE:     toLeg(leg.PE),
		}
	}
	return skel, nil
}

func toLeg(j optionLegJSON) *models.OptionLeg {
	return &models.OptionLeg{
		LTP:       j.LTP,
		Bid:       j.Bid,
		Ask:       j.Ask,
		OI:        j.OI,
		Volume:    j.Volume,
		IV:        j.IV,
		UpdatedAt: time.Now(),
	}
}

// FetchExpiries returns the vendor's future-expiry list for underlying, in
// ascending chronological order as the vendor already returns it.
func (c *Client) FetchExpiries(ctx context.Context, underlying string) ([]string, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/v2/optionchain/expirylist", nil)
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()
	q.Set("underlying", underlying)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("access-token", c.token)

	resp, err := c.rest.Do(ctx, feed.CategoryData, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dataapi: expirylist returned %d", resp.StatusCode)
	}

	var body expiryListResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("dataapi: decoding expirylist response: %w", err)
	}
	return body.Data, nil
}
