package detect_test

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ironsheep/pothole-cam/internal/detect"
	"github.com/ironsheep/pothole-cam/internal/fakeapi"
	"github.com/ironsheep/pothole-cam/internal/location"
	"github.com/ironsheep/pothole-cam/internal/metrics"
)

// createTestFrame creates a solid grey frame.
func createTestFrame(t *testing.T, width, height int) *image.RGBA {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{128, 128, 128, 255})
		}
	}
	return img
}

func newFakeService(t *testing.T, detector fakeapi.Detector) (*fakeapi.Service, string) {
	t.Helper()
	svc := fakeapi.New(detector)
	srv := httptest.NewServer(svc.Handler())
	t.Cleanup(srv.Close)
	return svc, srv.URL + "/api"
}

func resolved(lat, lng float64, city string) location.Enrichment {
	return location.Enrichment{
		Status:    location.Resolved,
		Position:  &location.Position{Latitude: lat, Longitude: lng},
		PlaceName: city,
	}
}

func TestSubmit_WithDetections(t *testing.T) {
	want := detect.Detection{BBox: [4]float64{10, 10, 50, 50}, Class: "pothole", Confidence: 0.87}
	svc, base := newFakeService(t, fakeapi.StaticDetector(want))
	m := metrics.New()

	c := detect.NewClient(base, 5*time.Second, 0)
	c.Metrics = m
	resp, err := c.Submit(context.Background(), createTestFrame(t, 64, 64), resolved(12.9, 77.6, "Bengaluru"), "dev-1")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if len(resp.Detections) != 1 || resp.Detections[0] != want {
		t.Errorf("Detections: got %+v, want [%+v]", resp.Detections, want)
	}

	reqs := svc.Requests()
	if len(reqs) != 1 {
		t.Fatalf("requests: got %d, want 1", len(reqs))
	}
	got := reqs[0]
	if !strings.HasPrefix(got.Image, "data:image/jpeg;base64,") {
		t.Errorf("image is not a JPEG data URL: %.40s", got.Image)
	}
	if got.Latitude == nil || *got.Latitude != 12.9 || got.Longitude == nil || *got.Longitude != 77.6 {
		t.Errorf("coordinates: got %v, %v", got.Latitude, got.Longitude)
	}
	if got.City != "Bengaluru" || got.DeviceID != "dev-1" {
		t.Errorf("city/deviceId: got %q, %q", got.City, got.DeviceID)
	}
}

func TestSubmit_WithoutLocation(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/detect/" {
			t.Errorf("path: got %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&body)
		w.Write([]byte(`{"detections": []}`))
	}))
	defer srv.Close()

	c := detect.NewClient(srv.URL+"/api/", time.Second, 80)
	enr := location.Enrichment{Status: location.Failed}
	resp, err := c.Submit(context.Background(), createTestFrame(t, 8, 8), enr, "dev-2")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if len(resp.Detections) != 0 {
		t.Errorf("Detections: got %d, want 0", len(resp.Detections))
	}

	for _, k := range []string{"latitude", "longitude", "city"} {
		if _, ok := body[k]; ok {
			t.Errorf("field %q should be omitted without location", k)
		}
	}
	if body["deviceId"] != "dev-2" {
		t.Errorf("deviceId: got %v", body["deviceId"])
	}
}

func TestSubmit_EmptyWithMessage(t *testing.T) {
	_, base := newFakeService(t, fakeapi.StaticDetector())

	c := detect.NewClient(base, time.Second, 0)
	resp, err := c.Submit(context.Background(), createTestFrame(t, 16, 16), location.Enrichment{}, "dev")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if len(resp.Detections) != 0 || resp.Message != fakeapi.NoDetectionMessage {
		t.Errorf("got %+v, want empty with message", resp)
	}
}

func TestSubmit_NetworkErrors(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantStatus int
		wantMsg    string
	}{
		{
			name: "error body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"error": "No image provided"}`))
			},
			wantStatus: http.StatusBadRequest,
			wantMsg:    "No image provided",
		},
		{
			name: "plain body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "gateway down", http.StatusBadGateway)
			},
			wantStatus: http.StatusBadGateway,
			wantMsg:    "gateway down",
		},
		{
			name: "malformed json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"detections": [`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := detect.NewClient(srv.URL, time.Second, 0)
			_, err := c.Submit(context.Background(), createTestFrame(t, 8, 8), location.Enrichment{}, "dev")

			var ne *detect.NetworkError
			if !errors.As(err, &ne) {
				t.Fatalf("got %v, want *NetworkError", err)
			}
			if ne.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode: got %d, want %d", ne.StatusCode, tt.wantStatus)
			}
			if ne.Message != tt.wantMsg {
				t.Errorf("Message: got %q, want %q", ne.Message, tt.wantMsg)
			}
		})
	}
}

func TestSubmit_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c := detect.NewClient(base, time.Second, 0)
	_, err := c.Submit(context.Background(), createTestFrame(t, 8, 8), location.Enrichment{}, "dev")

	var ne *detect.NetworkError
	if !errors.As(err, &ne) || ne.StatusCode != 0 {
		t.Errorf("got %v, want transport NetworkError", err)
	}
}

func TestLatest(t *testing.T) {
	det := detect.Detection{BBox: [4]float64{1, 2, 3, 4}, Class: "pothole", Confidence: 0.5}
	_, base := newFakeService(t, fakeapi.StaticDetector(det))
	c := detect.NewClient(base, time.Second, 0)
	ctx := context.Background()

	if _, err := c.Latest(ctx, "dev-1"); !errors.Is(err, detect.ErrNotFound) {
		t.Fatalf("before any detection: got %v, want ErrNotFound", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := c.Submit(ctx, createTestFrame(t, 8, 8), resolved(1, 2, "Pune"), "dev-1"); err != nil {
			t.Fatal(err)
		}
	}

	latest, err := c.Latest(ctx, "dev-1")
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if latest.ID != "2" {
		t.Errorf("ID: got %q, want 2", latest.ID)
	}
	if latest.City != "Pune" {
		t.Errorf("City: got %q", latest.City)
	}

	if _, err := c.Latest(ctx, "someone-else"); !errors.Is(err, detect.ErrNotFound) {
		t.Errorf("other device: got %v, want ErrNotFound", err)
	}
}

func TestIDUnmarshal(t *testing.T) {
	tests := []struct {
		in      string
		want    detect.ID
		wantErr bool
	}{
		{`42`, "42", false},
		{`"abc"`, "abc", false},
		{`null`, "", false},
		{`true`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var id detect.ID
			err := json.Unmarshal([]byte(tt.in), &id)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err: got %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && id != tt.want {
				t.Errorf("got %q, want %q", id, tt.want)
			}
		})
	}
}

func TestDataURLRoundTrip(t *testing.T) {
	s, err := detect.EncodeDataURL(createTestFrame(t, 20, 10), 90)
	if err != nil {
		t.Fatalf("EncodeDataURL failed: %v", err)
	}
	img, err := detect.DecodeDataURL(s)
	if err != nil {
		t.Fatalf("DecodeDataURL failed: %v", err)
	}
	if img.Bounds().Dx() != 20 || img.Bounds().Dy() != 10 {
		t.Errorf("size: got %v", img.Bounds())
	}

	if _, err := detect.DecodeDataURL("data:image/png;base64,AAAA"); err == nil {
		t.Error("expected error for non-JPEG data URL")
	}
}

func TestDetectionRect(t *testing.T) {
	d := detect.Detection{BBox: [4]float64{10.4, 10.6, 49.5, 50}}
	if got, want := d.Rect(), image.Rect(10, 11, 50, 50); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}
