package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// HTTPProvider queries a JSON IP-geolocation endpoint. The endpoint URL
// contains a "%s" placeholder for the IP address; responses are
// expected to carry latitude/longitude plus optional city/country under
// the common field names used by public lookup APIs.
type HTTPProvider struct {
	name        string
	endpointURL string
	client      *http.Client
}

// NewHTTPProvider creates a provider for one lookup endpoint
func NewHTTPProvider(name, endpointURL string, client *http.Client) *HTTPProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPProvider{
		name:        name,
		endpointURL: endpointURL,
		client:      client,
	}
}

func (p *HTTPProvider) Name() string {
	return p.name
}

// providerResponse covers the field spellings of the common public
// lookup APIs; whichever pair is populated wins.
type providerResponse struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Lat       *float64 `json:"lat"`
	Lon       *float64 `json:"lon"`
	City      string   `json:"city"`
	Country   string   `json:"country"`
	CountryA  string   `json:"country_name"`
	Status    string   `json:"status"`
}

func (p *HTTPProvider) Lookup(ctx context.Context, ip string) (*Location, error) {
	endpoint := strings.Replace(p.endpointURL, "%s", url.PathEscape(ip), 1)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("lookup %s: unexpected status %d", p.name, resp.StatusCode)
	}

	var body providerResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("lookup %s: decode response: %w", p.name, err)
	}

	if body.Status != "" && body.Status != "success" {
		return nil, fmt.Errorf("lookup %s: provider status %q", p.name, body.Status)
	}

	lat, lon := body.Latitude, body.Longitude
	if lat == nil || lon == nil {
		lat, lon = body.Lat, body.Lon
	}
	if lat == nil || lon == nil {
		return nil, fmt.Errorf("lookup %s: response missing coordinates", p.name)
	}

	country := body.Country
	if country == "" {
		country = body.CountryA
	}

	return &Location{
		Latitude:  *lat,
		Longitude: *lon,
		City:      body.City,
		Country:   country,
	}, nil
}

// ProvidersFromURLs builds the prioritized provider chain from config
func ProvidersFromURLs(urls []string, client *http.Client) []Provider {
	providers := make([]Provider, 0, len(urls))
	for i, u := range urls {
		providers = append(providers, NewHTTPProvider(fmt.Sprintf("provider-%d", i+1), u, client))
	}
	return providers
}
