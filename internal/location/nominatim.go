package location

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// UnknownPlace is reported when the geocoder has no locality for a position.
const UnknownPlace = "Unknown location"

// NominatimGeocoder reverse geocodes against an OpenStreetMap Nominatim
// compatible endpoint.
type NominatimGeocoder struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
}

// NewNominatimGeocoder creates a geocoder for baseURL. Nominatim's usage
// policy requires an identifying User-Agent.
func NewNominatimGeocoder(baseURL, userAgent string, timeout time.Duration) *NominatimGeocoder {
	return &NominatimGeocoder{
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type nominatimResponse struct {
	Address map[string]string `json:"address"`
	Error   string            `json:"error"`
}

// localityKeys in order of preference.
var localityKeys = []string{"city", "town", "village", "county"}

// Reverse returns the locality name for p.
func (g *NominatimGeocoder) Reverse(ctx context.Context, p Position) (string, error) {
	params := url.Values{}
	params.Set("format", "json")
	params.Set("lat", fmt.Sprintf("%.6f", p.Latitude))
	params.Set("lon", fmt.Sprintf("%.6f", p.Longitude))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/reverse?"+params.Encode(), nil)
	if err != nil {
		return "", err
	}
	if g.userAgent != "" {
		req.Header.Set("User-Agent", g.userAgent)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call geocoder: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("geocoder error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result nominatimResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to parse geocoder response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("geocoder: %s", result.Error)
	}

	return placeName(result.Address), nil
}

func placeName(address map[string]string) string {
	for _, k := range localityKeys {
		if v := strings.TrimSpace(address[k]); v != "" {
			return v
		}
	}
	return UnknownPlace
}
