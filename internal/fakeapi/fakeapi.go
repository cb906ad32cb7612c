// Package fakeapi is an in-process stand-in for the pothole detection
// service. It serves the same routes and record shapes, stores detections
// in memory, and is used by tests and the -fake-api demo mode.
package fakeapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/ironsheep/pothole-cam/internal/detect"
	"github.com/ironsheep/pothole-cam/internal/logger"
)

// NoDetectionMessage is returned alongside an empty detection list.
const NoDetectionMessage = "No pothole detected."

// Detector finds objects in a submitted frame.
type Detector func(img image.Image) []detect.Detection

// DetectRequest is the body the client posts to /detect/.
type DetectRequest struct {
	Image     string   `json:"image"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	City      string   `json:"city"`
	DeviceID  string   `json:"deviceId"`
}

// Record is a stored detection.
type Record struct {
	ID         int                `json:"id"`
	DeviceID   string             `json:"-"`
	ImageURL   string             `json:"image_url"`
	Result     []detect.Detection `json:"result"`
	Latitude   *float64           `json:"latitude"`
	Longitude  *float64           `json:"longitude"`
	City       string             `json:"city"`
	DetectedAt time.Time          `json:"detected_at"`

	jpeg []byte
}

type failure struct {
	status int
	msg    string
}

// Service is the fake detection service.
type Service struct {
	detector Detector

	mu       sync.RWMutex
	records  []*Record
	nextID   int
	requests []DetectRequest
	failures []failure
	hold     chan struct{}
}

// New creates a service using detector. A nil detector uses
// DarkRegionDetector.
func New(detector Detector) *Service {
	if detector == nil {
		detector = DarkRegionDetector(DefaultDarkThreshold)
	}
	return &Service{detector: detector, nextID: 1}
}

// Handler returns the router. Routes live under /api like the real service.
func (s *Service) Handler() http.Handler {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/detect/", s.handleDetect).Methods("POST")
	api.HandleFunc("/latest/{deviceId}/", s.handleLatest).Methods("GET")
	api.HandleFunc("/share/{id:[0-9]+}/", s.handleShare).Methods("GET")
	r.HandleFunc("/media/detections/{id:[0-9]+}.jpg", s.handleMedia).Methods("GET")
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	}).Methods("GET")

	return r
}

// FailNext makes the next detect request fail with status and an
// {"error": msg} body.
func (s *Service) FailNext(status int, msg string) {
	s.mu.Lock()
	s.failures = append(s.failures, failure{status, msg})
	s.mu.Unlock()
}

// Hold blocks detect requests until the returned release func is called.
func (s *Service) Hold() (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.hold = ch
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.hold == ch {
				s.hold = nil
			}
			s.mu.Unlock()
			close(ch)
		})
	}
}

// Requests returns the detect requests received so far.
func (s *Service) Requests() []DetectRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]DetectRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// Records returns the stored detections, oldest first.
func (s *Service) Records() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, len(s.records))
	for i, r := range s.records {
		out[i] = *r
	}
	return out
}

func (s *Service) handleDetect(w http.ResponseWriter, r *http.Request) {
	var req DetectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	s.mu.Lock()
	s.requests = append(s.requests, req)
	hold := s.hold
	var fail *failure
	if len(s.failures) > 0 {
		fail = &s.failures[0]
		s.failures = s.failures[1:]
	}
	s.mu.Unlock()

	if hold != nil {
		if !wait(r.Context(), hold) {
			return
		}
	}
	if fail != nil {
		writeError(w, fail.status, fail.msg)
		return
	}

	if req.Image == "" {
		writeError(w, http.StatusBadRequest, "No image provided")
		return
	}
	jpeg, err := decodeJPEG(req.Image)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	img, err := detect.DecodeDataURL(req.Image)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	dets := s.detector(img)
	if len(dets) == 0 {
		writeJSON(w, http.StatusOK, detect.Response{Detections: []detect.Detection{}, Message: NoDetectionMessage})
		return
	}

	s.mu.Lock()
	rec := &Record{
		ID:         s.nextID,
		DeviceID:   req.DeviceID,
		Result:     dets,
		Latitude:   req.Latitude,
		Longitude:  req.Longitude,
		City:       req.City,
		DetectedAt: time.Now().UTC(),
		jpeg:       jpeg,
	}
	rec.ImageURL = fmt.Sprintf("/media/detections/%d.jpg", rec.ID)
	s.nextID++
	s.records = append(s.records, rec)
	s.mu.Unlock()

	logger.Debug("FakeAPI", "stored detection %d for device %s", rec.ID, req.DeviceID)
	writeJSON(w, http.StatusOK, detect.Response{Detections: dets})
}

func (s *Service) handleLatest(w http.ResponseWriter, r *http.Request) {
	deviceID := mux.Vars(r)["deviceId"]

	s.mu.RLock()
	var latest *Record
	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].DeviceID == deviceID {
			latest = s.records[i]
			break
		}
	}
	s.mu.RUnlock()

	if latest == nil {
		writeError(w, http.StatusNotFound, "No detections found")
		return
	}
	writeJSON(w, http.StatusOK, latest)
}

func (s *Service) handleShare(w http.ResponseWriter, r *http.Request) {
	rec := s.lookup(mux.Vars(r)["id"])
	if rec == nil {
		writeError(w, http.StatusNotFound, "Detection not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Service) handleMedia(w http.ResponseWriter, r *http.Request) {
	rec := s.lookup(mux.Vars(r)["id"])
	if rec == nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Write(rec.jpeg)
}

func (s *Service) lookup(idStr string) *Record {
	id, err := strconv.Atoi(idStr)
	if err != nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.records {
		if rec.ID == id {
			return rec
		}
	}
	return nil
}

func wait(ctx context.Context, ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	case <-ctx.Done():
		return false
	}
}

func decodeJPEG(dataURL string) ([]byte, error) {
	_, payload, ok := strings.Cut(dataURL, ",")
	if !ok {
		return nil, fmt.Errorf("malformed data URL")
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 image: %w", err)
	}
	return raw, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
