// Package geocode — прокси к Nominatim для поиска места проведения термина.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"vereinsportal/internal/application/entity"
	"vereinsportal/pkg/httpclient"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	maxResults   = 5
	maxBodyBytes = 1 << 20
)

type Geocoder interface {
	Search(ctx context.Context, query string) ([]entity.GeoResult, error)
}

type Nominatim struct {
	client  httpclient.HTTPClient
	baseURL string
	limiter *rate.Limiter
	logger  *zap.SugaredLogger
}

// NewNominatim: rps ограничивает исходящие запросы, у публичного Nominatim лимит 1 rps.
func NewNominatim(client httpclient.HTTPClient, baseURL string, rps float64, logger *zap.SugaredLogger) *Nominatim {
	if rps <= 0 {
		rps = 1
	}
	return &Nominatim{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		logger:  logger,
	}
}

type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

func (n *Nominatim) Search(ctx context.Context, query string) ([]entity.GeoResult, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("geocode throttle: %w", err)
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("limit", fmt.Sprint(maxResults))
	params.Set("countrycodes", "de")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build geocode request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", "de")

	resp, err := n.client.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("geocode upstream status %d", resp.StatusCode)
	}

	var places []nominatimPlace
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&places); err != nil {
		return nil, fmt.Errorf("decode geocode response: %w", err)
	}

	res := make([]entity.GeoResult, 0, len(places))
	for _, p := range places {
		res = append(res, entity.GeoResult{Lat: p.Lat, Lon: p.Lon, DisplayName: p.DisplayName})
	}
	n.logger.Debugf("[geocode] %d result(s) for query of length %d", len(res), len(query))
	return res, nil
}
