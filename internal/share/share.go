// Package share turns the device's most recent detection into a shareable
// link and hands it to the native share facility, falling back to the
// clipboard.
package share

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/ironsheep/pothole-cam/internal/detect"
	"github.com/ironsheep/pothole-cam/internal/logger"
	"github.com/ironsheep/pothole-cam/internal/metrics"
)

// User-facing notifications.
const (
	MsgCopied      = "Link copied to clipboard!"
	MsgUnsupported = "Sharing is not supported on this device."
	MsgNotFound    = "No recent detection to share."
	MsgFailed      = "Could not create share link. Please try again."
)

// ErrCancelled is returned by a Sharer when the user dismisses the share
// sheet. It ends the share without a clipboard fallback.
var ErrCancelled = errors.New("share cancelled")

// Payload is what gets shared.
type Payload struct {
	Title string `json:"title"`
	Text  string `json:"text"`
	URL   string `json:"url"`
}

// Sharer is a native share facility.
type Sharer interface {
	Share(ctx context.Context, p Payload) error
}

// Clipboard writes text to the system clipboard.
type Clipboard interface {
	Available() bool
	WriteText(text string) error
}

// LatestFetcher returns the most recent stored detection for a device.
type LatestFetcher interface {
	Latest(ctx context.Context, deviceID string) (*detect.Latest, error)
}

// Notifier shows user-facing messages.
type Notifier interface {
	Notify(text string)
}

// Method is how a share was delivered.
type Method string

const (
	MethodNative    Method = "native"
	MethodClipboard Method = "clipboard"
)

// Handle describes a completed share.
type Handle struct {
	DetectionID string `json:"detection_id"`
	City        string `json:"city"`
	ShareURL    string `json:"share_url"`
	Text        string `json:"text"`
	Method      Method `json:"method"`
	Cancelled   bool   `json:"cancelled,omitempty"`
}

// ErrorKind classifies share failures.
type ErrorKind int

const (
	NotFound ErrorKind = iota
	Unsupported
	Failed
)

func (k ErrorKind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case Unsupported:
		return "unsupported"
	default:
		return "failed"
	}
}

// Error is returned by Coordinator.Share.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "share " + e.Kind.String()
	}
	return fmt.Sprintf("share %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Coordinator builds and delivers share messages.
type Coordinator struct {
	latest    LatestFetcher
	shareBase string
	sharer    Sharer
	clipboard Clipboard
	notifier  Notifier

	// Metrics is optional.
	Metrics *metrics.Metrics
}

// NewCoordinator creates a coordinator. sharer and clipboard may be nil
// when the host lacks them.
func NewCoordinator(latest LatestFetcher, shareBase string, sharer Sharer, clipboard Clipboard, notifier Notifier) *Coordinator {
	return &Coordinator{
		latest:    latest,
		shareBase: strings.TrimRight(shareBase, "/"),
		sharer:    sharer,
		clipboard: clipboard,
		notifier:  notifier,
	}
}

// Share fetches the latest detection for deviceID and shares a link to it.
// Every outcome is terminal; nothing is retried.
func (c *Coordinator) Share(ctx context.Context, deviceID string) (*Handle, error) {
	latest, err := c.latest.Latest(ctx, deviceID)
	if err != nil {
		c.Metrics.Inc(metrics.ShareFailures)
		if errors.Is(err, detect.ErrNotFound) {
			c.notify(MsgNotFound)
			return nil, &Error{Kind: NotFound, Err: err}
		}
		logger.Warn("Share", "fetching latest detection: %v", err)
		c.notify(MsgFailed)
		return nil, &Error{Kind: Failed, Err: err}
	}

	h := &Handle{
		DetectionID: string(latest.ID),
		City:        latest.City,
		ShareURL:    c.ShareURL(string(latest.ID)),
	}
	h.Text = Message(h.City, h.ShareURL)

	if c.sharer != nil {
		err := c.sharer.Share(ctx, Payload{Title: "Pothole detected", Text: h.Text, URL: h.ShareURL})
		switch {
		case err == nil:
			h.Method = MethodNative
			c.Metrics.Inc(metrics.SharesNative)
			logger.Info("Share", "shared detection %s natively", h.DetectionID)
			return h, nil
		case errors.Is(err, ErrCancelled):
			h.Method = MethodNative
			h.Cancelled = true
			logger.Debug("Share", "share of detection %s cancelled", h.DetectionID)
			return h, nil
		default:
			logger.Warn("Share", "native share failed, falling back to clipboard: %v", err)
		}
	}

	if c.clipboard == nil || !c.clipboard.Available() {
		c.Metrics.Inc(metrics.ShareFailures)
		c.notify(MsgUnsupported)
		return nil, &Error{Kind: Unsupported}
	}
	if err := c.clipboard.WriteText(h.Text); err != nil {
		c.Metrics.Inc(metrics.ShareFailures)
		c.notify(MsgUnsupported)
		return nil, &Error{Kind: Unsupported, Err: err}
	}

	h.Method = MethodClipboard
	c.Metrics.Inc(metrics.SharesClipboard)
	c.notify(MsgCopied)
	return h, nil
}

// ShareURL returns the public detail link for a detection.
func (c *Coordinator) ShareURL(id string) string {
	return c.shareBase + "/share/" + url.PathEscape(id)
}

// Message builds the share text.
func Message(city, link string) string {
	if city == "" {
		city = "an unknown location"
	}
	return fmt.Sprintf("Pothole detected in %s. View it here: %s", city, link)
}

func (c *Coordinator) notify(text string) {
	if c.notifier != nil {
		c.notifier.Notify(text)
	}
}
