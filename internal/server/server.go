package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/ironsheep/pothole-cam/internal/logger"
	"github.com/ironsheep/pothole-cam/internal/notify"
	"github.com/ironsheep/pothole-cam/internal/pipeline"
)

// Version is reported by initialize.
var Version = "0.1.0"

// Server drives a pipeline controller over JSON-RPC.
type Server struct {
	ctrl *pipeline.Controller
	in   io.Reader

	mu  sync.Mutex // guards enc
	enc *json.Encoder

	wg sync.WaitGroup
}

// Request represents an incoming JSON-RPC request
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response represents an outgoing JSON-RPC response
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC error
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Notification represents an outgoing notification (no ID)
type Notification struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// JSON-RPC error codes.
const (
	CodeParseError      = -32700
	CodeInvalidParams   = -32602
	CodeMethodNotFound  = -32601
	CodeCaptureRejected = -32001
	CodeShareFailed     = -32002
	CodeFrameFailed     = -32003
)

// New creates a server reading requests from in and writing responses and
// notifications to out.
func New(ctrl *pipeline.Controller, in io.Reader, out io.Writer) *Server {
	return &Server{
		ctrl: ctrl,
		in:   in,
		enc:  json.NewEncoder(out),
	}
}

// Run serves requests until in is exhausted or ctx is cancelled. Each
// request is handled on its own goroutine so a reset can overtake an
// in-flight capture; responses carry the request ID.
func (s *Server) Run(ctx context.Context) error {
	unsubscribe := s.ctrl.Notifier().Subscribe(s.forwardToast)
	defer unsubscribe()

	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(s.in)
		// Increase buffer size for large requests
		buf := make([]byte, 0, 64*1024)
		scanner.Buffer(buf, 1024*1024)

		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	defer s.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-scanErr:
			if err != nil {
				return fmt.Errorf("scanner error: %w", err)
			}
			return nil
		case line := <-lines:
			if len(line) == 0 {
				continue
			}

			var req Request
			if err := json.Unmarshal(line, &req); err != nil {
				logger.Warn("Server", "failed to parse request: %v", err)
				s.send(s.errorResponse(nil, CodeParseError, "Parse error", err.Error()))
				continue
			}

			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				if resp := s.handleRequest(ctx, &req); resp != nil {
					s.send(resp)
				}
			}()
		}
	}
}

func (s *Server) send(v interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(v); err != nil {
		logger.Error("Server", "failed to encode message: %v", err)
	}
}

// forwardToast relays notification channel events to the client.
func (s *Server) forwardToast(e notify.Event) {
	method := "notifications/toast"
	if e.Kind == notify.Cleared {
		method = "notifications/toast_cleared"
	}
	s.send(&Notification{
		JSONRPC: "2.0",
		Method:  method,
		Params: map[string]interface{}{
			"id":          e.Toast.ID,
			"text":        e.Toast.Text,
			"duration_ms": e.Toast.Duration.Milliseconds(),
		},
	})
}

// handleRequest routes requests to appropriate handlers
func (s *Server) handleRequest(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "notifications/initialized":
		// Client acknowledgment, no response needed
		return nil
	case "methods/list":
		return s.handleMethodsList(req)
	case "ping":
		return &Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  map[string]interface{}{},
		}
	case "pipeline/state":
		return s.handleState(req)
	case "pipeline/capture":
		return s.handleCapture(ctx, req)
	case "pipeline/reset":
		return s.handleReset(req)
	case "pipeline/share":
		return s.handleShare(ctx, req)
	case "frame/save":
		return s.handleFrameSave(req)
	case "frame/get":
		return s.handleFrameGet(req)
	default:
		return &Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error: &RPCError{
				Code:    CodeMethodNotFound,
				Message: fmt.Sprintf("Method not found: %s", req.Method),
			},
		}
	}
}

// handleInitialize responds to the initialize request
func (s *Server) handleInitialize(req *Request) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"protocolVersion": "1.0",
			"capabilities": map[string]interface{}{
				"notifications": []string{"notifications/toast", "notifications/toast_cleared"},
			},
			"serverInfo": map[string]interface{}{
				"name":    "pothole-cam",
				"version": Version,
			},
			"deviceId": s.ctrl.DeviceID(),
		},
	}
}
