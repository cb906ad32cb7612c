package config

import (
	"strings"
	"testing"
	"time"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.CameraWidth != 1280 || cfg.CameraHeight != 720 {
		t.Errorf("camera resolution: got %dx%d, want 1280x720", cfg.CameraWidth, cfg.CameraHeight)
	}
	if cfg.CameraFPS != 30 {
		t.Errorf("CameraFPS: got %v, want 30", cfg.CameraFPS)
	}
	if cfg.ToastDuration != 2*time.Second {
		t.Errorf("ToastDuration: got %v, want 2s", cfg.ToastDuration)
	}
	if cfg.HasPosition {
		t.Error("default config should not pin a position")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"POTHOLE_API_URL":        "http://detector:9000/api",
		"POTHOLE_LATITUDE":       "12.9",
		"POTHOLE_LONGITUDE":      "77.6",
		"POTHOLE_TOAST_DURATION": "500ms",
		"POTHOLE_JPEG_QUALITY":   "70",
		"POTHOLE_FAKE_API":       "true",
	}))
	if err != nil {
		t.Fatalf("ApplyEnv failed: %v", err)
	}

	if cfg.APIBaseURL != "http://detector:9000/api" {
		t.Errorf("APIBaseURL: got %q", cfg.APIBaseURL)
	}
	if !cfg.HasPosition || cfg.Latitude != 12.9 || cfg.Longitude != 77.6 {
		t.Errorf("position: got %v,%v (set=%v)", cfg.Latitude, cfg.Longitude, cfg.HasPosition)
	}
	if cfg.ToastDuration != 500*time.Millisecond {
		t.Errorf("ToastDuration: got %v", cfg.ToastDuration)
	}
	if cfg.JPEGQuality != 70 {
		t.Errorf("JPEGQuality: got %d", cfg.JPEGQuality)
	}
	if !cfg.FakeAPI {
		t.Error("FakeAPI should be enabled")
	}
}

func TestApplyEnv_LatitudeAloneDoesNotPinPosition(t *testing.T) {
	cfg := Default()
	if err := cfg.ApplyEnv(envMap(map[string]string{"POTHOLE_LATITUDE": "1.5"})); err != nil {
		t.Fatalf("ApplyEnv failed: %v", err)
	}
	if cfg.HasPosition {
		t.Error("HasPosition should need both coordinates")
	}
}

func TestApplyEnv_Malformed(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"POTHOLE_CAMERA_WIDTH":   "wide",
		"POTHOLE_TOAST_DURATION": "soon",
	}))
	if err == nil {
		t.Fatal("expected error for malformed values")
	}
	if !strings.Contains(err.Error(), "POTHOLE_CAMERA_WIDTH") || !strings.Contains(err.Error(), "POTHOLE_TOAST_DURATION") {
		t.Errorf("error should name both keys, got %v", err)
	}
	if cfg.CameraWidth != 1280 {
		t.Errorf("CameraWidth changed to %d on malformed input", cfg.CameraWidth)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"relative api url", func(c *Config) { c.APIBaseURL = "/api" }},
		{"zero width", func(c *Config) { c.CameraWidth = 0 }},
		{"jpeg quality", func(c *Config) { c.JPEGQuality = 101 }},
		{"opacity", func(c *Config) { c.BadgeOpacity = 1.5 }},
		{"toast", func(c *Config) { c.ToastDuration = 0 }},
		{"latitude", func(c *Config) { c.HasPosition = true; c.Latitude = 91 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
