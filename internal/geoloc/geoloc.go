// Package geoloc resolves a client IP to a country and coordinates via
// the ip-api.com JSON endpoint.
package geoloc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

// Location is a resolved client position. Country is a lowercase ISO
// 3166-1 alpha-2 code, or "xx" when unresolved.
type Location struct {
	Country string
	Lat     float32
	Lon     float32
}

// Unknown is returned for private addresses and lookup failures.
var Unknown = Location{Country: "xx"}

// Client queries ip-api.com.
type Client struct {
	http    *http.Client
	baseURL string
}

// New builds a geolocation client with a sane request timeout.
func New() *Client {
	return &Client{
		http:    &http.Client{Timeout: 4 * time.Second},
		baseURL: "http://ip-api.com/json",
	}
}

// NewWithBase builds a client against a custom endpoint, for tests.
func NewWithBase(baseURL string) *Client {
	c := New()
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

type apiResponse struct {
	Status      string  `json:"status"`
	CountryCode string  `json:"countryCode"`
	Lat         float32 `json:"lat"`
	Lon         float32 `json:"lon"`
}

// Lookup resolves ip. Private and loopback addresses short-circuit to
// Unknown without a network call.
func (c *Client) Lookup(ctx context.Context, ip string) Location {
	if parsed := net.ParseIP(ip); parsed == nil || parsed.IsLoopback() || parsed.IsPrivate() {
		return Unknown
	}

	loc, err := c.fetch(ctx, ip)
	if err != nil {
		slog.Warn("geolocation lookup failed", "ip", ip, "err", err)
		return Unknown
	}
	return loc
}

func (c *Client) fetch(ctx context.Context, ip string) (Location, error) {
	url := fmt.Sprintf("%s/%s?fields=status,countryCode,lat,lon", c.baseURL, ip)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Unknown, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Unknown, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Unknown, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Unknown, fmt.Errorf("decode response: %w", err)
	}
	if body.Status != "success" || body.CountryCode == "" {
		return Unknown, fmt.Errorf("lookup unsuccessful")
	}
	return Location{
		Country: strings.ToLower(body.CountryCode),
		Lat:     body.Lat,
		Lon:     body.Lon,
	}, nil
}
