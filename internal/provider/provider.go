// Package provider consumes the upstream point-of-interest API. The upstream
// is a black box returning place records for a coordinate and radius; only
// the minimal shape (stable id, name, coordinate) is relied on.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mealradar/placecache/internal/core/httpclient"
	"github.com/mealradar/placecache/internal/core/model"
	"github.com/mealradar/placecache/internal/observability"
)

// Client is the upstream contract: one nearby search, one detail lookup.
type Client interface {
	SearchNearby(ctx context.Context, center model.Coordinate, radiusMeters int, category string, limit int) ([]model.Place, error)
	Details(ctx context.Context, id string) (*model.Place, error)
}

// DefaultTimeout bounds one upstream call, independent of the shared-store
// timeout.
const DefaultTimeout = 10 * time.Second

type placePayload struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Category  string  `json:"category"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Address   string  `json:"address"`
	Phone     string  `json:"phone"`
	Hours     string  `json:"hours"`
	PriceTier int     `json:"price_tier"`
	Open      *bool   `json:"open"`
	ImageURL  string  `json:"image_url"`
}

type searchPayload struct {
	Places []placePayload `json:"places"`
}

// HTTP implements Client over JSON/HTTP.
type HTTP struct {
	base    *url.URL
	key     string
	http    *http.Client
	logger  *slog.Logger
	timeout time.Duration
}

type Option func(*HTTP)

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *HTTP) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient swaps the underlying transport, for tests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *HTTP) { c.http = h }
}

func NewHTTP(baseURL, apiKey string, logger *slog.Logger, opts ...Option) (*HTTP, error) {
	if baseURL == "" {
		return nil, errors.New("provider base url is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse provider url: %w", err)
	}

	c := &HTTP{
		base:    u,
		key:     apiKey,
		http:    httpclient.NewOutbound(),
		logger:  logger,
		timeout: DefaultTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func (c *HTTP) SearchNearby(ctx context.Context, center model.Coordinate, radiusMeters int, category string, limit int) ([]model.Place, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(center.Lat, 'f', 6, 64))
	q.Set("lng", strconv.FormatFloat(center.Lng, 'f', 6, 64))
	q.Set("radius", strconv.Itoa(radiusMeters))
	if category != "" {
		q.Set("category", category)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var payload searchPayload
	if err := c.getJSON(ctx, "nearby", q, &payload); err != nil {
		return nil, err
	}

	out := make([]model.Place, 0, len(payload.Places))
	for _, p := range payload.Places {
		out = append(out, toPlace(p))
	}
	return out, nil
}

func (c *HTTP) Details(ctx context.Context, id string) (*model.Place, error) {
	if id == "" {
		return nil, errors.New("provider details: empty id")
	}
	var payload placePayload
	if err := c.getJSON(ctx, "place/"+url.PathEscape(id), nil, &payload); err != nil {
		return nil, err
	}
	p := toPlace(payload)
	return &p, nil
}

func (c *HTTP) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := *c.base
	u.Path, _ = url.JoinPath(u.Path, path)
	if q == nil {
		q = url.Values{}
	}
	if c.key != "" {
		q.Set("key", c.key)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("provider request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		observability.ObserveProvider("network_error", time.Since(start).Seconds())
		return fmt.Errorf("provider call %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		observability.ObserveProvider("http_"+strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())
		// drain a little for connection reuse, the body is not interesting
		_, _ = io.CopyN(io.Discard, resp.Body, 4096)
		return fmt.Errorf("provider call %s: status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		observability.ObserveProvider("bad_payload", time.Since(start).Seconds())
		return fmt.Errorf("provider decode %s: %w", path, err)
	}
	observability.ObserveProvider("ok", time.Since(start).Seconds())
	return nil
}

func toPlace(p placePayload) model.Place {
	return model.Place{
		ID:         p.ID,
		Name:       p.Name,
		Category:   p.Category,
		Coordinate: model.Coordinate{Lat: p.Lat, Lng: p.Lng},
		Address:    p.Address,
		Phone:      p.Phone,
		Hours:      p.Hours,
		PriceTier:  p.PriceTier,
		Open:       p.Open,
		ImageURL:   p.ImageURL,
		Provenance: model.ProvenanceProvider,
	}
}
