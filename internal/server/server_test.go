package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/draw"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ironsheep/pothole-cam/internal/annotate"
	"github.com/ironsheep/pothole-cam/internal/capture"
	"github.com/ironsheep/pothole-cam/internal/detect"
	"github.com/ironsheep/pothole-cam/internal/fakeapi"
	"github.com/ironsheep/pothole-cam/internal/identity"
	"github.com/ironsheep/pothole-cam/internal/kvstore"
	"github.com/ironsheep/pothole-cam/internal/notify"
	"github.com/ironsheep/pothole-cam/internal/pipeline"
	"github.com/ironsheep/pothole-cam/internal/share"
)

type memClipboard struct{ text string }

func (c *memClipboard) Available() bool             { return true }
func (c *memClipboard) WriteText(text string) error { c.text = text; return nil }

type fixture struct {
	srv  *Server
	ctrl *pipeline.Controller
	svc  *fakeapi.Service
	clip *memClipboard
}

// newFixture builds a server around a live pipeline backed by a still
// camera and an in-process detection service.
func newFixture(t *testing.T, detector fakeapi.Detector, in io.Reader, out io.Writer) *fixture {
	t.Helper()

	svc := fakeapi.New(detector)
	api := httptest.NewServer(svc.Handler())
	t.Cleanup(api.Close)

	frame := image.NewNRGBA(image.Rect(0, 0, 320, 240))
	draw.Draw(frame, frame.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	renderer, err := annotate.NewRenderer(annotate.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}

	n := notify.New(time.Minute)
	clip := &memClipboard{}
	client := detect.NewClient(api.URL+"/api", 5*time.Second, 0)

	ctrl := pipeline.New(pipeline.Deps{
		Surface:  capture.NewSurface(capture.NewStillCameraFromImage(frame), capture.DefaultConstraints()),
		Identity: identity.NewStore(kvstore.NewMemoryStore()),
		Detector: client,
		Renderer: renderer,
		Notifier: n,
		Share:    share.NewCoordinator(client, "https://pothole.example", nil, clip, n),
	})
	t.Cleanup(ctrl.OnScreenExit)

	if err := ctrl.OnScreenEnter(context.Background()); err != nil {
		t.Fatalf("OnScreenEnter failed: %v", err)
	}

	if out == nil {
		out = io.Discard
	}
	return &fixture{srv: New(ctrl, in, out), ctrl: ctrl, svc: svc, clip: clip}
}

// readMessages decodes every line written by the server.
func readMessages(t *testing.T, out *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var msgs []map[string]interface{}
	scanner := bufio.NewScanner(out)
	for scanner.Scan() {
		var m map[string]interface{}
		if err := json.Unmarshal(scanner.Bytes(), &m); err != nil {
			t.Fatalf("invalid output line %q: %v", scanner.Text(), err)
		}
		msgs = append(msgs, m)
	}
	return msgs
}

func TestRequest_Unmarshal(t *testing.T) {
	tests := []struct {
		name       string
		json       string
		wantID     interface{}
		wantMethod string
	}{
		{
			"string id",
			`{"jsonrpc":"2.0","id":"test-1","method":"methods/list"}`,
			"test-1",
			"methods/list",
		},
		{
			"number id",
			`{"jsonrpc":"2.0","id":42,"method":"ping"}`,
			float64(42), // JSON numbers decode as float64
			"ping",
		},
		{
			"null id",
			`{"jsonrpc":"2.0","id":null,"method":"initialize"}`,
			nil,
			"initialize",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req Request
			if err := json.Unmarshal([]byte(tt.json), &req); err != nil {
				t.Fatalf("Failed to unmarshal: %v", err)
			}

			if req.ID != tt.wantID {
				t.Errorf("ID: got %v (%T), want %v (%T)", req.ID, req.ID, tt.wantID, tt.wantID)
			}
			if req.Method != tt.wantMethod {
				t.Errorf("Method: got %s, want %s", req.Method, tt.wantMethod)
			}
		})
	}
}

func TestResponse_OmitsEmptyFields(t *testing.T) {
	data, err := json.Marshal(Response{
		JSONRPC: "2.0",
		ID:      1,
		Error:   &RPCError{Code: CodeMethodNotFound, Message: "Method not found"},
	})
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}
	if strings.Contains(string(data), `"result"`) {
		t.Errorf("error response carries a result: %s", data)
	}
	if strings.Contains(string(data), `"data"`) {
		t.Errorf("nil data was not omitted: %s", data)
	}
}

func TestHandleRequest_Routing(t *testing.T) {
	f := newFixture(t, nil, nil, nil)

	tests := []struct {
		method   string
		wantNil  bool
		wantCode int
	}{
		{"initialize", false, 0},
		{"notifications/initialized", true, 0},
		{"ping", false, 0},
		{"methods/list", false, 0},
		{"pipeline/state", false, 0},
		{"pipeline/reset", false, 0},
		{"frame/get", false, CodeFrameFailed},
		{"tools/call", false, CodeMethodNotFound},
		{"nonexistent/method", false, CodeMethodNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			resp := f.srv.handleRequest(context.Background(), &Request{JSONRPC: "2.0", ID: 7, Method: tt.method})

			if tt.wantNil {
				if resp != nil {
					t.Errorf("expected no response, got %+v", resp)
				}
				return
			}
			if resp == nil {
				t.Fatal("handleRequest returned nil")
			}
			if resp.ID != 7 {
				t.Errorf("ID: got %v, want 7", resp.ID)
			}
			switch {
			case tt.wantCode == 0 && resp.Error != nil:
				t.Errorf("unexpected error: %+v", resp.Error)
			case tt.wantCode != 0 && (resp.Error == nil || resp.Error.Code != tt.wantCode):
				t.Errorf("error: got %+v, want code %d", resp.Error, tt.wantCode)
			}
		})
	}
}

func TestHandleInitialize(t *testing.T) {
	f := newFixture(t, nil, nil, nil)

	resp := f.srv.handleInitialize(&Request{JSONRPC: "2.0", ID: "init-1"})

	if resp.ID != "init-1" {
		t.Errorf("ID: got %v, want init-1", resp.ID)
	}

	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatal("Result should be a map")
	}
	serverInfo, ok := result["serverInfo"].(map[string]interface{})
	if !ok {
		t.Fatal("serverInfo should be a map")
	}
	if serverInfo["name"] != "pothole-cam" {
		t.Errorf("serverInfo.name: got %v", serverInfo["name"])
	}
	if result["deviceId"] != f.ctrl.DeviceID() || f.ctrl.DeviceID() == "" {
		t.Errorf("deviceId: got %v, want %q", result["deviceId"], f.ctrl.DeviceID())
	}
}

func TestMethodDefinitions(t *testing.T) {
	expected := []string{
		"pipeline/state",
		"pipeline/capture",
		"pipeline/reset",
		"pipeline/share",
		"frame/get",
		"frame/save",
	}

	methods := MethodDefinitions()
	byName := make(map[string]Method)
	for _, m := range methods {
		byName[m.Name] = m
	}

	for _, name := range expected {
		m, ok := byName[name]
		if !ok {
			t.Errorf("method %s not listed", name)
			continue
		}
		if m.Description == "" {
			t.Errorf("%s: empty description", name)
		}
		if m.ParamsSchema["type"] != "object" {
			t.Errorf("%s: schema type %v, want object", name, m.ParamsSchema["type"])
		}
	}
	if len(methods) != len(expected) {
		t.Errorf("got %d methods, want %d", len(methods), len(expected))
	}

	required, _ := byName["frame/save"].ParamsSchema["required"].([]string)
	if len(required) != 1 || required[0] != "path" {
		t.Errorf("frame/save required: got %v, want [path]", required)
	}
}

func TestRun_ServesRequestsUntilEOF(t *testing.T) {
	in := strings.NewReader(strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize"}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		``,
		`{"jsonrpc":"2.0","id":2,"method":"ping"}`,
		`{not json`,
		`{"jsonrpc":"2.0","id":3,"method":"bogus"}`,
	}, "\n"))
	var out bytes.Buffer
	f := newFixture(t, nil, in, &out)

	if err := f.srv.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	msgs := readMessages(t, &out)
	if len(msgs) != 4 {
		t.Fatalf("got %d messages, want 4: %v", len(msgs), msgs)
	}

	byID := make(map[interface{}]map[string]interface{})
	for _, m := range msgs {
		byID[m["id"]] = m
	}

	if m := byID[float64(1)]; m == nil || m["result"] == nil {
		t.Errorf("initialize: got %v", m)
	}
	if m := byID[float64(2)]; m == nil || m["error"] != nil {
		t.Errorf("ping: got %v", m)
	}
	if m := byID[float64(3)]; m == nil || m["error"].(map[string]interface{})["code"] != float64(CodeMethodNotFound) {
		t.Errorf("bogus: got %v", m)
	}
	if m := byID[nil]; m == nil || m["error"].(map[string]interface{})["code"] != float64(CodeParseError) {
		t.Errorf("parse error: got %v", m)
	}
}

func TestRun_ForwardsToasts(t *testing.T) {
	in := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"pipeline/capture"}` + "\n")
	var out bytes.Buffer
	f := newFixture(t, fakeapi.StaticDetector(detect.Detection{BBox: [4]float64{10, 10, 50, 50}, Class: "pothole", Confidence: 0.9}), in, &out)

	if err := f.srv.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	var toast, result map[string]interface{}
	for _, m := range readMessages(t, &out) {
		switch {
		case m["method"] == "notifications/toast":
			toast = m
		case m["id"] == float64(1):
			result = m
		}
	}

	if toast == nil {
		t.Fatal("no toast notification written")
	}
	if _, hasID := toast["id"]; hasID {
		t.Error("notification must not carry an id")
	}
	params := toast["params"].(map[string]interface{})
	if params["text"] != pipeline.MsgDetected {
		t.Errorf("toast text: got %v, want %q", params["text"], pipeline.MsgDetected)
	}
	if params["duration_ms"] != float64(time.Minute.Milliseconds()) {
		t.Errorf("duration_ms: got %v", params["duration_ms"])
	}

	if result == nil {
		t.Fatal("no capture response")
	}
	if state := result["result"].(map[string]interface{})["state"]; state != "frozen_result" {
		t.Errorf("state: got %v, want frozen_result", state)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	f := newFixture(t, nil, pr, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.srv.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run: got %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
