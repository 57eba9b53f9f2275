package rest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/solanatracker/data-api-sdk/decoder"
	"github.com/solanatracker/data-api-sdk/logging"
	"github.com/solanatracker/data-api-sdk/models"
)

const defaultRequestTimeout = 30 * time.Second

// RateLimitError reports a 429 response. RetryAfter is zero when the
// server sent no Retry-After header.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
	}
	return "rate limited"
}

// EventsClient fetches binary trade-event payloads from the REST API and
// decodes them into the same event records the streaming path uses.
type EventsClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *logging.Logger
}

// NewEventsClient creates a client against the given API base URL.
func NewEventsClient(baseURL, apiKey string) *EventsClient {
	return &EventsClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: defaultRequestTimeout},
		logger:  logging.NewLogger("datastream", "events-client"),
	}
}

// TokenEvents fetches and decodes the trade history of a token.
func (c *EventsClient) TokenEvents(ctx context.Context, token string) ([]models.TradeEvent, error) {
	return c.fetch(ctx, c.baseURL+"/events/"+token)
}

// PoolEvents fetches and decodes the trade history of one pool of a token.
func (c *EventsClient) PoolEvents(ctx context.Context, token, pool string) ([]models.TradeEvent, error) {
	return c.fetch(ctx, c.baseURL+"/events/"+token+"/"+pool)
}

func (c *EventsClient) fetch(ctx context.Context, url string) ([]models.TradeEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build events request: %w", err)
	}
	req.Header.Set("Accept", "application/octet-stream")
	if c.apiKey != "" {
		req.Header.Set("X-API-KEY", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch events: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &RateLimitError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("events request failed with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read events body: %w", err)
	}

	events, err := decoder.DecodeTradeEvents(body)
	if err != nil {
		c.logger.DecodeFailed(len(body), err)
		return nil, fmt.Errorf("decode events: %w", err)
	}
	return events, nil
}

// parseRetryAfter handles the delta-seconds form of the header. The
// HTTP-date form comes back as zero.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
