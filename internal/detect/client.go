package detect

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg" // Register JPEG decoder for DecodeDataURL
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/anthonynsimon/bild/imgio"

	"github.com/ironsheep/pothole-cam/internal/location"
	"github.com/ironsheep/pothole-cam/internal/logger"
	"github.com/ironsheep/pothole-cam/internal/metrics"
)

// DefaultQuality is the JPEG quality used for submitted frames.
const DefaultQuality = 92

// Client talks to the remote detection service.
type Client struct {
	baseURL    string
	quality    int
	httpClient *http.Client

	// Metrics is optional.
	Metrics *metrics.Metrics
}

// NewClient creates a client for the service rooted at baseURL, e.g.
// "http://127.0.0.1:8000/api". A non-positive quality uses DefaultQuality.
func NewClient(baseURL string, timeout time.Duration, quality int) *Client {
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		quality:    quality,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type detectRequest struct {
	Image     string   `json:"image"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	City      string   `json:"city,omitempty"`
	DeviceID  string   `json:"deviceId"`
}

// Submit sends one frame for detection. It makes a single attempt; all
// failures are returned as *NetworkError except frame encoding errors.
func (c *Client) Submit(ctx context.Context, img image.Image, enr location.Enrichment, deviceID string) (*Response, error) {
	dataURL, err := EncodeDataURL(img, c.quality)
	if err != nil {
		return nil, err
	}

	payload := detectRequest{
		Image:    dataURL,
		City:     enr.PlaceName,
		DeviceID: deviceID,
	}
	if enr.HasPosition() {
		lat, lng := enr.Position.Latitude, enr.Position.Longitude
		payload.Latitude = &lat
		payload.Longitude = &lng
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/detect/", bytes.NewReader(body))
	if err != nil {
		return nil, &NetworkError{Op: "detect", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: "detect", Err: err}
	}
	defer resp.Body.Close()
	c.Metrics.ObserveDetect(time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError("detect", resp)
	}

	var result Response
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &NetworkError{Op: "detect", Err: fmt.Errorf("decode response: %w", err)}
	}

	logger.Debug("Detect", "service returned %d detections in %v", len(result.Detections), time.Since(start))
	return &result, nil
}

// Latest fetches the most recent stored detection for deviceID.
func (c *Client) Latest(ctx context.Context, deviceID string) (*Latest, error) {
	endpoint := c.baseURL + "/latest/" + url.PathEscape(deviceID) + "/"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &NetworkError{Op: "latest", Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: "latest", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("latest for device %s: %w", deviceID, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError("latest", resp)
	}

	var latest Latest
	if err := json.NewDecoder(resp.Body).Decode(&latest); err != nil {
		return nil, &NetworkError{Op: "latest", Err: fmt.Errorf("decode response: %w", err)}
	}
	if latest.ID == "" {
		return nil, fmt.Errorf("latest for device %s: %w", deviceID, ErrNotFound)
	}
	return &latest, nil
}

// statusError builds a NetworkError from a non-2xx response, surfacing the
// service's {"error": "..."} body when present.
func statusError(op string, resp *http.Response) *NetworkError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var body struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		msg = body.Error
	}
	return &NetworkError{
		Op:         op,
		StatusCode: resp.StatusCode,
		Message:    msg,
		Err:        fmt.Errorf("unexpected status %s", resp.Status),
	}
}

// EncodeDataURL encodes img as JPEG and wraps it in a
// "data:image/jpeg;base64," URL.
func EncodeDataURL(img image.Image, quality int) (string, error) {
	var buf bytes.Buffer
	if err := imgio.JPEGEncoder(quality)(&buf, img); err != nil {
		return "", fmt.Errorf("encode frame: %w", err)
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodeDataURL reverses EncodeDataURL.
func DecodeDataURL(s string) (image.Image, error) {
	const prefix = "data:image/jpeg;base64,"
	if !strings.HasPrefix(s, prefix) {
		return nil, fmt.Errorf("not a JPEG data URL")
	}
	raw, err := base64.StdEncoding.DecodeString(s[len(prefix):])
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}
