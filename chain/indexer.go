package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/ratelimit"
)

// TransferEvent is one confirmed token transfer as reported by the indexing
// service.
type TransferEvent struct {
	TxHash      string    `json:"tx_hash"`
	LogIndex    uint      `json:"log_index"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	RawValue    string    `json:"value"` // base-unit integer as string
	Decimals    int       `json:"decimals"`
	BlockNumber uint64    `json:"block_number"`
	BlockTime   time.Time `json:"block_time"`
}

// TransferPage is one page of ascending-block transfer history plus the
// opaque cursor for the next page (empty when exhausted).
type TransferPage struct {
	Transfers  []TransferEvent `json:"transfers"`
	NextCursor string          `json:"next_cursor"`
}

// TransferPager abstracts the paginated transfer-history endpoint so the
// reconciliation loop can run against a fake in tests.
type TransferPager interface {
	FetchPage(ctx context.Context, wallet, token string, fromBlock uint64, cursor string, limit int) (*TransferPage, error)
}

// HTTPIndexerClient pages the indexing service's REST endpoint. A blocking
// rate limiter paces page fetches to stay inside the provider's quota.
type HTTPIndexerClient struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	limiter    ratelimit.Limiter
}

// NewHTTPIndexerClient builds a client limited to pagesPerSec page requests.
func NewHTTPIndexerClient(baseURL, apiKey string, pagesPerSec int) *HTTPIndexerClient {
	if pagesPerSec <= 0 {
		pagesPerSec = 4
	}
	return &HTTPIndexerClient{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: ratelimit.New(pagesPerSec),
	}
}

// FetchPage retrieves one page of transfers for (wallet, token) starting at
// fromBlock, resuming from cursor when set. 429 and 5xx responses surface as
// errors so the caller can retry on the next invocation without touching its
// sync cursor.
func (c *HTTPIndexerClient) FetchPage(ctx context.Context, wallet, token string, fromBlock uint64, cursor string, limit int) (*TransferPage, error) {
	c.limiter.Take()

	base, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid indexer base URL %q: %w", c.BaseURL, err)
	}
	endpoint := base.JoinPath("/api/v1/token-transfers")
	q := endpoint.Query()
	q.Set("wallet", wallet)
	q.Set("contract", token)
	q.Set("from_block", strconv.FormatUint(fromBlock, 10))
	q.Set("sort", "asc")
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.APIKey != "" {
		req.Header.Set("X-API-Key", c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call indexer: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("indexer rate limited (429)")
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("indexer returned status %d: %s", resp.StatusCode, string(body))
	}

	var page TransferPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode indexer response: %w", err)
	}
	return &page, nil
}
