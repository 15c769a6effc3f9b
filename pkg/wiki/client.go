package wiki

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"catalog-sync/pkg/httpclient"

	"github.com/dustin/go-humanize"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

var (
	// ErrBadStatus is returned when the API answers with a non-2xx status.
	ErrBadStatus = eris.New("wiki: non-success response status")
	// ErrBadEnvelope is returned when a response lacks the expected envelope.
	ErrBadEnvelope = eris.New("wiki: response lacks the expected envelope")
	// ErrRetryBudgetExceeded is returned when maxlag retries run out.
	ErrRetryBudgetExceeded = eris.New("wiki: maxlag retry budget exceeded")
	// ErrMissingPage is returned by ParsedPage for a title with no article.
	ErrMissingPage = eris.New("wiki: page does not exist")
)

// MaxBatch is the largest number of titles the API accepts per request.
const MaxBatch = 50

// ResponseCache stores raw API responses by request URL.
type ResponseCache interface {
	Get(ctx context.Context, url string) ([]byte, bool, error)
	Put(ctx context.Context, url string, body []byte) error
}

// Options configures a Client.
type Options struct {
	APIURL     string
	UserAgent  string
	Maxlag     int
	MaxRetries int
	BatchSize  int

	LogNormalizedTitles bool
	LogNormalizedImages bool

	Cache  ResponseCache
	Stats  *Stats
	Logger *zap.Logger
}

// Client talks to a MediaWiki api.php endpoint.
type Client struct {
	http       *httpclient.HTTPClient
	apiURL     string
	maxlag     int
	maxRetries int
	batchSize  int
	logTitles  bool
	logImages  bool
	cache      ResponseCache
	stats      *Stats
	logger     *zap.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewClient creates a new wiki API client.
func NewClient(opts Options) *Client {
	batch := opts.BatchSize
	if batch <= 0 || batch > MaxBatch {
		batch = MaxBatch
	}
	stats := opts.Stats
	if stats == nil {
		stats = &Stats{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		http:       httpclient.NewClient(httpclient.APIClient, opts.UserAgent),
		apiURL:     opts.APIURL,
		maxlag:     opts.Maxlag,
		maxRetries: opts.MaxRetries,
		batchSize:  batch,
		logTitles:  opts.LogNormalizedTitles,
		logImages:  opts.LogNormalizedImages,
		cache:      opts.Cache,
		stats:      stats,
		logger:     logger,
		sleep:      sleepContext,
	}
}

// Stats returns the client's telemetry counters.
func (c *Client) Stats() *Stats {
	return c.stats
}

// SetSleep replaces the function used to wait out maxlag delays.
func (c *Client) SetSleep(fn func(ctx context.Context, d time.Duration) error) {
	c.sleep = fn
}

// apiError is the error object the API returns instead of a result.
type apiError struct {
	Code string  `json:"code"`
	Info string  `json:"info"`
	Lag  float64 `json:"lag"`
}

// get issues one API request, waiting out maxlag signals and re-issuing the
// same request up to the retry budget.
func (c *Client) get(ctx context.Context, params url.Values) ([]byte, error) {
	params.Set("format", "json")
	if c.maxlag > 0 {
		params.Set("maxlag", strconv.Itoa(c.maxlag))
	}
	reqURL := c.apiURL + "?" + params.Encode()

	if c.cache != nil {
		body, ok, err := c.cache.Get(ctx, reqURL)
		if err != nil {
			c.logger.Warn("wiki: response cache read failed", zap.Error(err))
		} else if ok {
			return body, nil
		}
	}

	for attempt := 0; ; attempt++ {
		body, lag, err := c.fetch(ctx, reqURL)
		if err != nil {
			return nil, err
		}
		if lag < 0 {
			if c.cache != nil {
				if err := c.cache.Put(ctx, reqURL, body); err != nil {
					c.logger.Warn("wiki: response cache write failed", zap.Error(err))
				}
			}
			return body, nil
		}

		if attempt >= c.maxRetries {
			return nil, eris.Wrapf(ErrRetryBudgetExceeded, "after %d retries", attempt)
		}
		c.logger.Warn("wiki: server lagged, retrying",
			zap.Duration("delay", lag),
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", c.maxRetries))
		if err := c.sleep(ctx, lag); err != nil {
			return nil, eris.Wrap(err, "wiki: wait for maxlag")
		}
	}
}

// fetch performs a single request. A non-negative lag means the server asked
// the client to back off for that long.
func (c *Client) fetch(ctx context.Context, reqURL string) ([]byte, time.Duration, error) {
	resp, err := c.http.Get(ctx, reqURL)
	if err != nil {
		return nil, 0, eris.Wrap(err, "wiki: request failed")
	}
	defer resp.Body.Close()
	c.stats.Requests++

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, eris.Wrap(err, "wiki: read response")
	}
	c.stats.APIBytes += int64(len(body))

	var envelope struct {
		Error *apiError `json:"error"`
	}
	_ = json.Unmarshal(body, &envelope)

	lagged := envelope.Error != nil && envelope.Error.Code == "maxlag"
	if resp.StatusCode == http.StatusServiceUnavailable && resp.Header.Get("Retry-After") != "" {
		lagged = true
	}
	if lagged {
		return nil, lagDelay(resp.Header.Get("Retry-After"), envelope.Error), nil
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, 0, eris.Wrapf(ErrBadStatus, "status %d for %s", resp.StatusCode, reqURL)
	}
	if envelope.Error != nil {
		return nil, 0, eris.Wrapf(ErrBadEnvelope, "api error %s: %s", envelope.Error.Code, envelope.Error.Info)
	}

	c.logger.Debug("wiki: received response", zap.String("size", humanize.Bytes(uint64(len(body)))))
	return body, -1, nil
}

// lagDelay converts the server-specified delay in seconds to a duration.
func lagDelay(retryAfter string, apiErr *apiError) time.Duration {
	seconds := 1.0
	if v, err := strconv.ParseFloat(strings.TrimSpace(retryAfter), 64); err == nil && v >= 0 {
		seconds = v
	} else if apiErr != nil && apiErr.Lag > 0 {
		seconds = apiErr.Lag
	}
	return time.Duration(seconds*1000) * time.Millisecond
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
