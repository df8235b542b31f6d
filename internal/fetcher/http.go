package fetcher

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/wikitools/delsort/internal/config"
	"github.com/wikitools/delsort/internal/observability"
	"github.com/wikitools/delsort/internal/types"
)

// Client talks to a MediaWiki Action API endpoint. It keeps a cookie jar so a
// login session carries over to later requests.
type Client struct {
	client   *http.Client
	apiURL   string
	cfg      *config.WikiConfig
	linksCfg *config.LinksConfig
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewClient creates a new API client.
func NewClient(cfg *config.Config, logger *slog.Logger) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     cfg.Wiki.IdleConnTimeout,
		TLSHandshakeTimeout: 10 * time.Second,
		DisableCompression:  true, // We handle decompression ourselves (including brotli)
	}

	return &Client{
		client: &http.Client{
			Transport: transport,
			Jar:       jar,
			Timeout:   cfg.Wiki.RequestTimeout,
		},
		apiURL:   cfg.Wiki.APIURL,
		cfg:      &cfg.Wiki,
		linksCfg: &cfg.Links,
		logger:   logger.With("component", "mediawiki_client"),
	}, nil
}

// SetMetrics attaches a metrics sink. A nil sink disables counting.
func (c *Client) SetMetrics(m *observability.Metrics) {
	c.metrics = m
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// apiResponse is the subset of an Action API reply this client reads.
type apiResponse struct {
	Error    *types.APIError `json:"error"`
	Continue map[string]any  `json:"continue"`
	Query    *queryResult    `json:"query"`
	Login    *loginResult    `json:"login"`
	Parse    *parseResult    `json:"parse"`
}

// continueParams returns the continuation parameters as strings.
func (r *apiResponse) continueParams() map[string]string {
	if len(r.Continue) == 0 {
		return nil
	}
	params := make(map[string]string, len(r.Continue))
	for k, v := range r.Continue {
		params[k] = fmt.Sprint(v)
	}
	return params
}

// get issues a GET request against the API.
func (c *Client) get(ctx context.Context, params url.Values) (*apiResponse, error) {
	return c.do(ctx, http.MethodGet, params)
}

// post issues a form POST against the API. Login requires POST.
func (c *Client) post(ctx context.Context, params url.Values) (*apiResponse, error) {
	return c.do(ctx, http.MethodPost, params)
}

func (c *Client) do(ctx context.Context, method string, params url.Values) (*apiResponse, error) {
	params.Set("format", "json")
	params.Set("formatversion", "2")

	var (
		httpReq *http.Request
		err     error
	)
	if method == http.MethodPost {
		httpReq, err = http.NewRequestWithContext(ctx, method, c.apiURL, strings.NewReader(params.Encode()))
		if err == nil {
			httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		httpReq, err = http.NewRequestWithContext(ctx, method, c.apiURL+"?"+params.Encode(), nil)
	}
	if err != nil {
		return nil, &types.FetchError{URL: c.apiURL, Err: err}
	}

	httpReq.Header.Set("User-Agent", c.cfg.UserAgent)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Accept-Encoding", "gzip, deflate, br")

	c.count(func(m *observability.Metrics) { m.APIRequests.Add(1) })

	start := time.Now()
	httpResp, err := c.client.Do(httpReq)
	duration := time.Since(start)
	if err != nil {
		c.count(func(m *observability.Metrics) { m.APIErrors.Add(1) })
		return nil, &types.FetchError{URL: c.apiURL, Err: err}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(httpResp.Body, 512))
		c.count(func(m *observability.Metrics) { m.APIErrors.Add(1) })
		return nil, &types.FetchError{
			URL:        c.apiURL,
			StatusCode: httpResp.StatusCode,
			Err:        fmt.Errorf("HTTP %d: %s", httpResp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	// Decompress if needed (gzip, deflate, brotli)
	reader, err := decompressReader(httpResp, httpResp.Body)
	if err != nil {
		return nil, &types.FetchError{URL: c.apiURL, Err: err}
	}

	// The limit applies to the decoded body. One extra byte tells a body of
	// exactly MaxBodySize apart from an oversized one.
	limit := c.cfg.MaxBodySize
	if limit > 0 {
		reader = io.LimitReader(reader, limit+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, &types.FetchError{URL: c.apiURL, Err: err}
	}
	if limit > 0 && int64(len(body)) > limit {
		c.count(func(m *observability.Metrics) { m.APIErrors.Add(1) })
		return nil, &types.FetchError{URL: c.apiURL, Err: fmt.Errorf("response body exceeds %d bytes", limit)}
	}
	c.count(func(m *observability.Metrics) { m.BytesDownloaded.Add(int64(len(body))) })

	// UseNumber keeps numeric continuation offsets out of float formatting.
	var resp apiResponse
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&resp); err != nil {
		return nil, &types.FetchError{URL: c.apiURL, Err: fmt.Errorf("decode response: %w", err)}
	}

	c.logger.Debug("api request complete",
		"action", params.Get("action"),
		"titles", params.Get("titles"),
		"size", len(body),
		"duration", duration,
	)

	if resp.Error != nil {
		c.count(func(m *observability.Metrics) { m.APIErrors.Add(1) })
		return &resp, resp.Error
	}
	return &resp, nil
}

func (c *Client) count(fn func(*observability.Metrics)) {
	if c.metrics != nil {
		fn(c.metrics)
	}
}

// decompressReader wraps a reader with the appropriate decompressor.
// Handles gzip, deflate, and brotli (br) encodings.
func decompressReader(resp *http.Response, reader io.Reader) (io.Reader, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(reader)
	case "deflate":
		return flate.NewReader(reader), nil
	case "br":
		return brotli.NewReader(reader), nil
	default:
		return reader, nil
	}
}
