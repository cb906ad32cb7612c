// Package capture manages the live camera stream and the frozen frame that
// detections are drawn on.
//
// # Overview
//
// A Surface sits between a Camera and the rest of the pipeline. It has two
// display states:
//
//   - Live: the camera stream is shown and a capture may be taken.
//   - Frozen: a still copy of one stream frame is shown with overlays.
//
// Capture copies the current frame at the stream's native resolution, so
// bounding boxes returned by the detection service line up with the pixels
// that were submitted. Reset discards the frame and its overlays and
// returns to Live without reopening the stream.
//
// # Camera Failures
//
// Acquire reports failures as *CameraError with one of three kinds:
//
//   - PermissionDenied: the user or OS refused camera access
//   - NoDevice: no capture device exists
//   - Unavailable: anything else, such as a busy device
//
// A surface whose Acquire failed stays usable. Capture returns ErrNotReady
// until a later Acquire succeeds.
//
// # Implementations
//
// StillCamera serves an image file and is used for headless runs. The
// webcam package provides a Camera backed by a real capture device.
package capture
