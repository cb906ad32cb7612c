// Package server hosts the pothole capture pipeline behind a JSON-RPC 2.0
// interface so a UI shell, script or test harness can drive it.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses and notifications on stdout
//
// Requests are handled concurrently. A pipeline/reset sent while a
// pipeline/capture is waiting on the detection service is answered at
// once; the capture then answers with "discarded": true.
//
// Supported methods:
//   - initialize: Handshake; reports the server version and device ID
//   - methods/list: Enumerate the pipeline methods
//   - ping: Health check
//   - pipeline/state: Current state, location, detections and toast
//   - pipeline/capture: Freeze, annotate and submit the current frame
//   - pipeline/reset: Return to the live preview
//   - pipeline/share: Share the latest detection
//   - frame/get: The frozen frame as base64 PNG
//   - frame/save: Write the frozen frame to disk
//
// # Notifications
//
// Toasts raised by the pipeline are pushed to the client as they happen:
//
//	{"jsonrpc":"2.0","method":"notifications/toast","params":{"id":3,"text":"Pothole detected!","duration_ms":2000}}
//	{"jsonrpc":"2.0","method":"notifications/toast_cleared","params":{"id":3,...}}
//
// # Error Handling
//
// Failures the user has already been told about through a toast (no
// detections, detection service errors) are not JSON-RPC errors; they are
// reported in the state result. JSON-RPC errors are used for:
//   - -32700: unparseable request line
//   - -32601: unknown method
//   - -32602: invalid params
//   - -32001: capture rejected (camera not ready or frame already frozen)
//   - -32002: share failed; data.kind is not_found, unsupported, failed or unavailable
//   - -32003: no frozen frame, or the frame could not be written
//
// # Usage
//
//	srv := server.New(ctrl, os.Stdin, os.Stdout)
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server
