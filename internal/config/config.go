// Package config holds the runtime configuration for pothole-cam.
//
// Values come from Default, are overridden by POTHOLE_* environment
// variables through ApplyEnv, and finally by command-line flags bound in
// cmd/pothole-cam.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config defines every tunable of the capture pipeline and its host.
type Config struct {
	// APIBaseURL is the detection service root, e.g. "http://127.0.0.1:8000/api".
	APIBaseURL string
	// ShareBaseURL is the public origin hosting the shared-detection page.
	ShareBaseURL string
	// GeocoderURL is the Nominatim-compatible reverse geocoding root.
	GeocoderURL string
	// UserAgent is sent to the geocoder, which rejects anonymous clients.
	UserAgent string

	// StateDir holds durable client state such as the device identifier.
	StateDir string

	CameraWidth  int
	CameraHeight int
	CameraFPS    float64
	// StillImage, when set, replaces the webcam with a still image file.
	StillImage string

	// Latitude and Longitude pin the device position. HasPosition reports
	// whether they were set; without it geolocation is unsupported.
	Latitude    float64
	Longitude   float64
	HasPosition bool

	ToastDuration  time.Duration
	HTTPTimeout    time.Duration
	GeocodeTimeout time.Duration
	JPEGQuality    int

	BoxColor     string
	BadgeColor   string
	BadgeOpacity float64

	LogLevel    string
	LogColor    bool
	MetricsAddr string
	FakeAPI     bool
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	stateDir := filepath.Join(os.TempDir(), "pothole-cam")
	if dir, err := os.UserConfigDir(); err == nil {
		stateDir = filepath.Join(dir, "pothole-cam")
	}

	return Config{
		APIBaseURL:     "http://127.0.0.1:8000/api",
		ShareBaseURL:   "https://localhost:5173",
		GeocoderURL:    "https://nominatim.openstreetmap.org",
		UserAgent:      "pothole-cam/0.1",
		StateDir:       stateDir,
		CameraWidth:    1280,
		CameraHeight:   720,
		CameraFPS:      30,
		ToastDuration:  2 * time.Second,
		HTTPTimeout:    30 * time.Second,
		GeocodeTimeout: 10 * time.Second,
		JPEGQuality:    92,
		BoxColor:       "#FF0000",
		BadgeColor:     "#000000",
		BadgeOpacity:   0.6,
		LogLevel:       "info",
		LogColor:       false,
	}
}

// ApplyEnv overrides fields from POTHOLE_* variables read through getenv.
// Malformed numeric values are reported and leave the field untouched.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	var errs []error

	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v := getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) bool {
		if v := getenv(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return false
			}
			*dst = f
			return true
		}
		return false
	}
	duration := func(key string, dst *time.Duration) {
		if v := getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("POTHOLE_API_URL", &c.APIBaseURL)
	str("POTHOLE_SHARE_URL", &c.ShareBaseURL)
	str("POTHOLE_GEOCODER_URL", &c.GeocoderURL)
	str("POTHOLE_USER_AGENT", &c.UserAgent)
	str("POTHOLE_STATE_DIR", &c.StateDir)
	str("POTHOLE_STILL_IMAGE", &c.StillImage)
	integer("POTHOLE_CAMERA_WIDTH", &c.CameraWidth)
	integer("POTHOLE_CAMERA_HEIGHT", &c.CameraHeight)
	float("POTHOLE_CAMERA_FPS", &c.CameraFPS)
	latSet := float("POTHOLE_LATITUDE", &c.Latitude)
	lonSet := float("POTHOLE_LONGITUDE", &c.Longitude)
	if latSet && lonSet {
		c.HasPosition = true
	}
	duration("POTHOLE_TOAST_DURATION", &c.ToastDuration)
	duration("POTHOLE_HTTP_TIMEOUT", &c.HTTPTimeout)
	integer("POTHOLE_JPEG_QUALITY", &c.JPEGQuality)
	str("POTHOLE_BOX_COLOR", &c.BoxColor)
	str("POTHOLE_LOG_LEVEL", &c.LogLevel)
	str("POTHOLE_METRICS_ADDR", &c.MetricsAddr)
	if v := getenv("POTHOLE_FAKE_API"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("POTHOLE_FAKE_API: %w", err))
		} else {
			c.FakeAPI = b
		}
	}

	return errors.Join(errs...)
}

// Validate checks that the configuration can drive the pipeline.
func (c Config) Validate() error {
	var errs []error

	for name, raw := range map[string]string{
		"api url":      c.APIBaseURL,
		"share url":    c.ShareBaseURL,
		"geocoder url": c.GeocoderURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("%s %q is not an absolute URL", name, raw))
		}
	}
	if c.CameraWidth <= 0 || c.CameraHeight <= 0 {
		errs = append(errs, fmt.Errorf("camera resolution %dx%d must be positive", c.CameraWidth, c.CameraHeight))
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("jpeg quality %d outside 1-100", c.JPEGQuality))
	}
	if c.BadgeOpacity < 0 || c.BadgeOpacity > 1 {
		errs = append(errs, fmt.Errorf("badge opacity %.2f outside 0-1", c.BadgeOpacity))
	}
	if c.ToastDuration <= 0 {
		errs = append(errs, errors.New("toast duration must be positive"))
	}
	if c.HasPosition && (c.Latitude < -90 || c.Latitude > 90 || c.Longitude < -180 || c.Longitude > 180) {
		errs = append(errs, fmt.Errorf("position %.5f,%.5f out of range", c.Latitude, c.Longitude))
	}

	return errors.Join(errs...)
}
