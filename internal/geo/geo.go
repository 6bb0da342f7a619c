// Package geo resolves coordinate pairs to human-readable place names and
// caches the answers in the catalog, since many files share one spot.
package geo

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dkrugman/pf-aspect/internal/httpclient"
	"github.com/dkrugman/pf-aspect/internal/store"
)

const (
	DefaultUserAgent = "pf-aspect/1.0 (https://github.com/dkrugman/pf-aspect)"

	// Nominatim's usage policy caps clients at one request per second.
	minRequestInterval = 1100 * time.Millisecond
)

// Resolver turns coordinates into a place description.
type Resolver interface {
	Resolve(ctx context.Context, lat, lon float64) (string, error)
}

var _ Resolver = (*Client)(nil)
var _ Resolver = (*CachedResolver)(nil)

type Client struct {
	http      *httpclient.Client
	baseURL   string
	email     string
	userAgent string
}

// NewClient creates a reverse-geocoding client against a Nominatim-style
// endpoint. The email identifies the deployment per the service's etiquette.
func NewClient(baseURL, email string) *Client {
	return &Client{
		http:      httpclient.NewClient(nil, minRequestInterval),
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		email:     email,
		userAgent: DefaultUserAgent,
	}
}

// Resolve looks up the address of a coordinate pair. The description prefers
// the most local place name available, then state and country.
func (c *Client) Resolve(ctx context.Context, lat, lon float64) (string, error) {
	params := url.Values{}
	params.Set("format", "jsonv2")
	params.Set("lat", fmt.Sprintf("%f", lat))
	params.Set("lon", fmt.Sprintf("%f", lon))
	if c.email != "" {
		params.Set("email", c.email)
	}

	var resp struct {
		DisplayName string `json:"display_name"`
		Address     struct {
			City    string `json:"city"`
			Town    string `json:"town"`
			Village string `json:"village"`
			Hamlet  string `json:"hamlet"`
			State   string `json:"state"`
			Country string `json:"country"`
		} `json:"address"`
	}

	u := c.baseURL + "?" + params.Encode()
	headers := map[string]string{"User-Agent": c.userAgent}
	if err := c.http.GetJSON(ctx, u, headers, &resp); err != nil {
		return "", fmt.Errorf("failed to reverse geocode %f,%f: %w", lat, lon, err)
	}

	var parts []string
	for _, p := range []string{resp.Address.City, resp.Address.Town, resp.Address.Village, resp.Address.Hamlet} {
		if p != "" {
			parts = append(parts, p)
			break
		}
	}
	if resp.Address.State != "" {
		parts = append(parts, resp.Address.State)
	}
	if resp.Address.Country != "" {
		parts = append(parts, resp.Address.Country)
	}
	if len(parts) == 0 {
		return resp.DisplayName, nil
	}
	return strings.Join(parts, ", "), nil
}

// CachedResolver serves lookups from the location table and only reaches the
// network for coordinates never seen before.
type CachedResolver struct {
	resolver Resolver
	db       *store.DB
}

func NewCachedResolver(resolver Resolver, db *store.DB) *CachedResolver {
	return &CachedResolver{resolver: resolver, db: db}
}

func (c *CachedResolver) Resolve(ctx context.Context, lat, lon float64) (string, error) {
	loc, err := c.db.GetLocation(lat, lon)
	if err != nil {
		return "", err
	}
	if loc != nil {
		return loc.Description, nil
	}

	description, err := c.resolver.Resolve(ctx, lat, lon)
	if err != nil {
		return "", err
	}
	if description == "" {
		return "", nil
	}
	if err := c.db.SaveLocation(lat, lon, description); err != nil {
		return description, err
	}
	return description, nil
}
