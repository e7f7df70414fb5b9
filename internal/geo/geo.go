// Package geo turns free-form addresses into coordinates for the public map.
package geo

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

	"github.com/tbourn/ecoprenda-backend/internal/config"
)

var (
	// ErrDisabled is returned when no geocoder key is configured.
	ErrDisabled = errors.New("geocoder disabled")
	// ErrNoResults is returned when the address could not be located.
	ErrNoResults = errors.New("address not found")
)

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Geocoder resolves addresses.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (Point, error)
}

// Disabled is a Geocoder that always returns ErrDisabled.
type Disabled struct{}

// Geocode implements Geocoder.
func (Disabled) Geocode(context.Context, string) (Point, error) { return Point{}, ErrDisabled }

// Geoapify calls the Geoapify forward-geocoding API.
type Geoapify struct {
	HTTP    *http.Client
	BaseURL string
	APIKey  string
}

// NewGeoapify returns a client, or Disabled when cfg carries no key.
func NewGeoapify(cfg config.GeocoderConfig, timeout time.Duration) Geocoder {
	if cfg.APIKey == "" {
		return Disabled{}
	}
	return &Geoapify{HTTP: &http.Client{Timeout: timeout}, BaseURL: cfg.BaseURL, APIKey: cfg.APIKey}
}

type geoapifyResponse struct {
	Features []struct {
		Geometry struct {
			Coordinates []float64 `json:"coordinates"` // [lng, lat]
		} `json:"geometry"`
	} `json:"features"`
}

// Geocode implements Geocoder.
func (g *Geoapify) Geocode(ctx context.Context, address string) (Point, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return Point{}, ErrNoResults
	}
	q := url.Values{}
	q.Set("text", address)
	q.Set("limit", "1")
	q.Set("apiKey", g.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.BaseURL+"/v1/geocode/search?"+q.Encode(), nil)
	if err != nil {
		return Point{}, err
	}
	resp, err := g.HTTP.Do(req)
	if err != nil {
		return Point{}, fmt.Errorf("geoapify request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return Point{}, fmt.Errorf("geoapify http %d", resp.StatusCode)
	}

	var out geoapifyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return Point{}, fmt.Errorf("geoapify decode: %w", err)
	}
	if len(out.Features) == 0 || len(out.Features[0].Geometry.Coordinates) < 2 {
		return Point{}, ErrNoResults
	}
	c := out.Features[0].Geometry.Coordinates
	return Point{Lat: c[1], Lng: c[0]}, nil
}
