package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/pothole-cam/internal/annotate"
	"github.com/ironsheep/pothole-cam/internal/capture"
	"github.com/ironsheep/pothole-cam/internal/detect"
	"github.com/ironsheep/pothole-cam/internal/location"
	"github.com/ironsheep/pothole-cam/internal/logger"
	"github.com/ironsheep/pothole-cam/internal/metrics"
	"github.com/ironsheep/pothole-cam/internal/notify"
	"github.com/ironsheep/pothole-cam/internal/share"
)

// User-facing notifications.
const (
	MsgDetected     = "Pothole detected!"
	MsgNoDetection  = "No pothole detected."
	MsgDetectFailed = "Detection failed. Please try again."
)

var (
	// ErrCaptureDisabled is returned by Capture when the camera is not ready.
	ErrCaptureDisabled = errors.New("capture disabled: camera not ready")

	// ErrBusy is returned by Capture when the controller is not Live.
	ErrBusy = errors.New("capture already in progress or frame frozen")

	// ErrStale is returned by Capture when Reset ran while the detection
	// request was in flight. The response was discarded.
	ErrStale = errors.New("detection response discarded after reset")

	// ErrShareUnavailable is returned by Share before a successful detection.
	ErrShareUnavailable = errors.New("nothing to share")
)

// Detector submits frames for detection.
type Detector interface {
	Submit(ctx context.Context, img image.Image, enr location.Enrichment, deviceID string) (*detect.Response, error)
}

// Sharer shares the latest detection of a device.
type Sharer interface {
	Share(ctx context.Context, deviceID string) (*share.Handle, error)
}

// Identity provides the device identifier.
type Identity interface {
	GetOrCreate() string
}

// Deps are the collaborators of a Controller. Location and Share may be
// nil.
type Deps struct {
	Surface  *capture.Surface
	Location *location.Enricher
	Identity Identity
	Detector Detector
	Renderer *annotate.Renderer
	Notifier *notify.Channel
	Share    Sharer
	Metrics  *metrics.Metrics
}

// Controller is the capture-annotate-share state machine.
//
// Transitions are serialised by mu, which is never held across the
// detection round trip. Every Reset bumps gen so a response that arrives
// afterwards is recognised as stale and dropped.
type Controller struct {
	surface  *capture.Surface
	location *location.Enricher
	detector Detector
	renderer *annotate.Renderer
	notifier *notify.Channel
	sharer   Sharer
	metrics  *metrics.Metrics
	deviceID string

	mu           sync.Mutex
	state        State
	gen          uint64
	enrichment   location.Enrichment
	badge        bool
	detections   []detect.Detection
	labels       []annotate.Label
	message      string
	shareVisible bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a controller and obtains the device identifier.
func New(d Deps) *Controller {
	if d.Location == nil {
		d.Location = location.NewEnricher(nil, nil)
	}
	if d.Notifier == nil {
		d.Notifier = notify.New(notify.DefaultDuration)
	}

	c := &Controller{
		surface:  d.Surface,
		location: d.Location,
		detector: d.Detector,
		renderer: d.Renderer,
		notifier: d.Notifier,
		sharer:   d.Share,
		metrics:  d.Metrics,
	}
	if d.Identity != nil {
		c.deviceID = d.Identity.GetOrCreate()
	}
	return c
}

// DeviceID returns the identifier sent with every detection.
func (c *Controller) DeviceID() string {
	return c.deviceID
}

// Notifier returns the notification channel.
func (c *Controller) Notifier() *notify.Channel {
	return c.notifier
}

// OnScreenEnter starts location resolution in the background and acquires
// the camera. A camera failure leaves capture disabled; the error is
// returned for logging only.
func (c *Controller) OnScreenEnter(ctx context.Context) error {
	bg, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.cancel = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.location.Resolve(bg)
	}()

	if err := c.surface.Acquire(ctx); err != nil {
		c.metrics.Inc(metrics.CameraFailures)
		return err
	}
	return nil
}

// OnScreenExit stops background work and releases the camera.
func (c *Controller) OnScreenExit() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.Reset()
	if err := c.surface.Release(); err != nil {
		logger.Warn("Pipeline", "releasing camera: %v", err)
	}
	c.wg.Wait()
}

// Capture freezes the current frame, stamps the location badge, submits
// the frame and renders the outcome. Detection failures are reported to the
// notifier and also returned; the controller is then FrozenNoResult.
//
// mu is released while the frame is read and while the detection request is
// in flight. Notifications are sent after mu is released.
func (c *Controller) Capture(ctx context.Context) error {
	c.mu.Lock()
	if c.state != Live {
		c.mu.Unlock()
		return ErrBusy
	}
	if !c.surface.Ready() {
		c.mu.Unlock()
		return ErrCaptureDisabled
	}
	gen := c.gen
	c.state = Capturing
	c.mu.Unlock()

	frame, err := c.surface.Capture(ctx)

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		c.metrics.Inc(metrics.StaleResponses)
		return ErrStale
	}
	if err != nil {
		c.state = Live
		c.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrCaptureDisabled, err)
	}
	enr := c.location.Snapshot()
	c.enrichment = enr
	c.badge = c.renderer.DrawEnrichmentBadge(frame.Image, enr)
	c.mu.Unlock()

	c.metrics.Inc(metrics.Captures)
	logger.Debug("Pipeline", "captured %dx%d frame, location %s", frame.Image.Bounds().Dx(), frame.Image.Bounds().Dy(), enr.Status)

	resp, err := c.detector.Submit(ctx, frame.Image, enr, c.deviceID)

	msg, err := c.apply(gen, frame, resp, err)
	if msg != "" {
		c.notifier.Notify(msg)
	}
	return err
}

// apply records the detection outcome for generation gen and returns the
// message to show.
func (c *Controller) apply(gen uint64, frame *capture.Frame, resp *detect.Response, err error) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen != gen {
		c.metrics.Inc(metrics.StaleResponses)
		logger.Debug("Pipeline", "dropping detection response from generation %d", gen)
		return "", ErrStale
	}

	if err != nil {
		c.state = FrozenNoResult
		c.message = MsgDetectFailed
		c.metrics.Inc(metrics.DetectionFailures)
		logger.Warn("Pipeline", "detection failed: %v", err)
		return MsgDetectFailed, err
	}

	if len(resp.Detections) == 0 {
		msg := resp.Message
		if msg == "" {
			msg = MsgNoDetection
		}
		c.state = FrozenNoResult
		c.message = msg
		c.metrics.Inc(metrics.EmptyResults)
		return msg, nil
	}

	c.detections = resp.Detections
	c.labels = c.renderer.DrawDetections(frame.Image, resp.Detections)
	c.state = FrozenResult
	c.message = MsgDetected
	c.shareVisible = true
	c.metrics.Inc(metrics.DetectionsFound)
	logger.Info("Pipeline", "%d detections", len(resp.Detections))
	return MsgDetected, nil
}

// Reset returns to Live from any state, discarding the frozen frame, its
// overlays and the share affordance. Calling it repeatedly is harmless.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	c.state = Live
	c.enrichment = location.Enrichment{}
	c.badge = false
	c.detections = nil
	c.labels = nil
	c.message = ""
	c.shareVisible = false
	c.surface.Reset()
}

// Share shares the latest detection. It is only available after a
// successful detection in the current frame.
func (c *Controller) Share(ctx context.Context) (*share.Handle, error) {
	c.mu.Lock()
	visible := c.shareVisible
	c.mu.Unlock()

	if !visible || c.sharer == nil {
		return nil, ErrShareUnavailable
	}
	return c.sharer.Share(ctx, c.deviceID)
}

// Snapshot is a consistent view of the controller.
type Snapshot struct {
	State          State
	CaptureEnabled bool
	CameraError    *capture.CameraError
	ShareVisible   bool
	Location       location.Enrichment
	Badge          bool
	Detections     []detect.Detection
	Labels         []annotate.Label
	Message        string
	Toast          *notify.Toast
}

// Snapshot returns the current state. Location is the live enrichment
// while Live and the one used for the capture otherwise.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	s := Snapshot{
		State:          c.state,
		CaptureEnabled: c.state == Live && c.surface.Ready(),
		CameraError:    c.surface.Err(),
		ShareVisible:   c.shareVisible,
		Location:       c.enrichment,
		Badge:          c.badge,
		Detections:     append([]detect.Detection(nil), c.detections...),
		Labels:         append([]annotate.Label(nil), c.labels...),
		Message:        c.message,
	}
	c.mu.Unlock()

	if s.State == Live {
		s.Location = c.location.Snapshot()
	}
	if t, ok := c.notifier.Current(); ok {
		s.Toast = &t
	}
	return s
}

// Frame returns a copy of the frozen, annotated frame, or nil when Live.
func (c *Controller) Frame() image.Image {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Live {
		return nil
	}
	f := c.surface.Frame()
	if f == nil {
		return nil
	}
	return imaging.Clone(f.Image)
}
