package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"github.com/anthonynsimon/bild/imgio"

	"github.com/ironsheep/pothole-cam/internal/annotate"
	"github.com/ironsheep/pothole-cam/internal/detect"
	"github.com/ironsheep/pothole-cam/internal/notify"
	"github.com/ironsheep/pothole-cam/internal/pipeline"
	"github.com/ironsheep/pothole-cam/internal/share"
)

// LocationResult is the location part of StateResult.
type LocationResult struct {
	Status    string   `json:"status"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	PlaceName string   `json:"place_name,omitempty"`
}

// StateResult is the result of every pipeline/* method.
type StateResult struct {
	State          string             `json:"state"`
	CaptureEnabled bool               `json:"capture_enabled"`
	CameraError    string             `json:"camera_error,omitempty"`
	ShareVisible   bool               `json:"share_visible"`
	Location       LocationResult     `json:"location"`
	Badge          bool               `json:"badge"`
	Detections     []detect.Detection `json:"detections"`
	Labels         []annotate.Label   `json:"labels,omitempty"`
	Message        string             `json:"message,omitempty"`
	Toast          *notify.Toast      `json:"toast,omitempty"`
	DeviceID       string             `json:"device_id"`

	// Set by pipeline/capture only.
	Discarded bool   `json:"discarded,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (s *Server) stateResult() *StateResult {
	snap := s.ctrl.Snapshot()

	r := &StateResult{
		State:          snap.State.String(),
		CaptureEnabled: snap.CaptureEnabled,
		ShareVisible:   snap.ShareVisible,
		Location:       LocationResult{Status: snap.Location.Status.String(), PlaceName: snap.Location.PlaceName},
		Badge:          snap.Badge,
		Detections:     snap.Detections,
		Labels:         snap.Labels,
		Message:        snap.Message,
		Toast:          snap.Toast,
		DeviceID:       s.ctrl.DeviceID(),
	}
	if r.Detections == nil {
		r.Detections = []detect.Detection{}
	}
	if snap.CameraError != nil {
		r.CameraError = snap.CameraError.Error()
	}
	if p := snap.Location.Position; p != nil {
		r.Location.Latitude = &p.Latitude
		r.Location.Longitude = &p.Longitude
	}
	return r
}

func (s *Server) handleState(req *Request) *Response {
	return s.result(req.ID, s.stateResult())
}

// handleCapture runs a capture to completion. Detection failures are not
// JSON-RPC errors: the pipeline has already reported them to the user and
// moved to frozen_no_result, so they are returned in the result's error
// field.
func (s *Server) handleCapture(ctx context.Context, req *Request) *Response {
	err := s.ctrl.Capture(ctx)
	switch {
	case errors.Is(err, pipeline.ErrBusy), errors.Is(err, pipeline.ErrCaptureDisabled):
		return s.errorResponse(req.ID, CodeCaptureRejected, "Capture rejected", err.Error())
	case errors.Is(err, pipeline.ErrStale):
		r := s.stateResult()
		r.Discarded = true
		return s.result(req.ID, r)
	case err != nil:
		r := s.stateResult()
		r.Error = err.Error()
		return s.result(req.ID, r)
	}
	return s.result(req.ID, s.stateResult())
}

func (s *Server) handleReset(req *Request) *Response {
	s.ctrl.Reset()
	return s.result(req.ID, s.stateResult())
}

func (s *Server) handleShare(ctx context.Context, req *Request) *Response {
	h, err := s.ctrl.Share(ctx)
	if err != nil {
		data := map[string]string{"error": err.Error()}
		var se *share.Error
		if errors.As(err, &se) {
			data["kind"] = se.Kind.String()
		}
		if errors.Is(err, pipeline.ErrShareUnavailable) {
			data["kind"] = "unavailable"
		}
		return s.errorResponse(req.ID, CodeShareFailed, "Share failed", data)
	}
	return s.result(req.ID, h)
}

// FrameSaveParams are the parameters of frame/save.
type FrameSaveParams struct {
	// Path is where to write the frame. The extension selects the format:
	// .png, .jpg/.jpeg or .bmp.
	Path string `json:"path"`

	// Quality is the JPEG quality (1-100), default 92.
	Quality int `json:"quality,omitempty"`
}

func (s *Server) handleFrameSave(req *Request) *Response {
	var params FrameSaveParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, CodeInvalidParams, "Invalid params", err.Error())
	}
	if params.Path == "" {
		return s.errorResponse(req.ID, CodeInvalidParams, "Invalid params", "path is required")
	}

	encoder, err := encoderFor(params.Path, params.Quality)
	if err != nil {
		return s.errorResponse(req.ID, CodeInvalidParams, "Invalid params", err.Error())
	}

	img := s.ctrl.Frame()
	if img == nil {
		return s.errorResponse(req.ID, CodeFrameFailed, "No frozen frame", "capture a frame first")
	}

	if err := imgio.Save(params.Path, img, encoder); err != nil {
		return s.errorResponse(req.ID, CodeFrameFailed, "Save failed", err.Error())
	}

	b := img.Bounds()
	return s.result(req.ID, map[string]interface{}{
		"path":   params.Path,
		"width":  b.Dx(),
		"height": b.Dy(),
	})
}

// encoderFor picks the bild encoder for path's extension.
func encoderFor(path string, quality int) (imgio.Encoder, error) {
	if quality <= 0 || quality > 100 {
		quality = detect.DefaultQuality
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return imgio.PNGEncoder(), nil
	case ".jpg", ".jpeg":
		return imgio.JPEGEncoder(quality), nil
	case ".bmp":
		return imgio.BMPEncoder(), nil
	default:
		return nil, fmt.Errorf("unsupported frame format %q", filepath.Ext(path))
	}
}

// FrameResult contains the frozen frame as base64 PNG.
type FrameResult struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

func (s *Server) handleFrameGet(req *Request) *Response {
	img := s.ctrl.Frame()
	if img == nil {
		return s.errorResponse(req.ID, CodeFrameFailed, "No frozen frame", "capture a frame first")
	}

	res, err := encodeFrame(img)
	if err != nil {
		return s.errorResponse(req.ID, CodeFrameFailed, "Encode failed", err.Error())
	}
	return s.result(req.ID, res)
}

func encodeFrame(img image.Image) (*FrameResult, error) {
	var buf bytes.Buffer
	if err := imgio.PNGEncoder()(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	b := img.Bounds()
	return &FrameResult{
		Width:       b.Dx(),
		Height:      b.Dy(),
		ImageBase64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		MimeType:    "image/png",
	}, nil
}

func (s *Server) result(id interface{}, v interface{}) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      id,
		Result:  v,
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message string, data interface{}) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      id,
		Error: &RPCError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}
