// Package notify shows short-lived status messages ("toasts").
//
// At most one toast is visible. A new toast replaces the current one and
// restarts the dismissal timer.
package notify

import (
	"sync"
	"time"

	"github.com/ironsheep/pothole-cam/internal/logger"
)

// DefaultDuration is how long a toast stays visible.
const DefaultDuration = 2 * time.Second

// Toast is a visible message.
type Toast struct {
	ID       uint64        `json:"id"`
	Text     string        `json:"text"`
	ShownAt  time.Time     `json:"shown_at"`
	Duration time.Duration `json:"duration"`
}

// EventKind distinguishes show and clear events.
type EventKind int

const (
	Shown EventKind = iota
	Cleared
)

func (k EventKind) String() string {
	if k == Cleared {
		return "cleared"
	}
	return "shown"
}

// Event is delivered to subscribers when a toast appears or goes away.
type Event struct {
	Kind  EventKind
	Toast Toast
}

// Channel is the notification channel.
type Channel struct {
	duration time.Duration

	// pub serialises state changes with their delivery so subscribers see
	// events in the order the changes happened.
	pub sync.Mutex

	mu      sync.Mutex
	current *Toast
	nextID  uint64
	timer   *time.Timer
	subs    map[int]func(Event)
	nextSub int
}

// New creates a channel. A non-positive duration uses DefaultDuration.
func New(duration time.Duration) *Channel {
	if duration <= 0 {
		duration = DefaultDuration
	}
	return &Channel{duration: duration, subs: make(map[int]func(Event))}
}

// Notify shows text for the default duration.
func (c *Channel) Notify(text string) {
	c.NotifyFor(text, c.duration)
}

// NotifyFor shows text for d, replacing any visible toast.
func (c *Channel) NotifyFor(text string, d time.Duration) {
	if d <= 0 {
		d = c.duration
	}

	c.pub.Lock()
	defer c.pub.Unlock()

	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
	}
	c.nextID++
	t := Toast{ID: c.nextID, Text: text, ShownAt: time.Now(), Duration: d}
	c.current = &t
	id := t.ID
	c.timer = time.AfterFunc(d, func() { c.expire(id) })
	subs := c.subscribers()
	c.mu.Unlock()

	logger.Debug("Notify", "toast %d: %s", t.ID, text)
	publish(subs, Event{Kind: Shown, Toast: t})
}

// expire clears toast id if it is still the visible one. A timer that
// fires after a replacement is a no-op.
func (c *Channel) expire(id uint64) {
	c.pub.Lock()
	defer c.pub.Unlock()

	c.mu.Lock()
	if c.current == nil || c.current.ID != id {
		c.mu.Unlock()
		return
	}
	t := *c.current
	c.current = nil
	c.timer = nil
	subs := c.subscribers()
	c.mu.Unlock()

	publish(subs, Event{Kind: Cleared, Toast: t})
}

// Dismiss clears the visible toast immediately.
func (c *Channel) Dismiss() {
	c.pub.Lock()
	defer c.pub.Unlock()

	c.mu.Lock()
	if c.current == nil {
		c.mu.Unlock()
		return
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	t := *c.current
	c.current = nil
	subs := c.subscribers()
	c.mu.Unlock()

	publish(subs, Event{Kind: Cleared, Toast: t})
}

// Current returns the visible toast, if any.
func (c *Channel) Current() (Toast, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return Toast{}, false
	}
	return *c.current, true
}

// Subscribe registers fn for toast events and returns a func that removes
// it. fn is called without the state lock held, so it may call Current,
// but it must not call Notify, NotifyFor or Dismiss.
func (c *Channel) Subscribe(fn func(Event)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

func (c *Channel) subscribers() []func(Event) {
	out := make([]func(Event), 0, len(c.subs))
	for i := 0; i < c.nextSub; i++ {
		if fn, ok := c.subs[i]; ok {
			out = append(out, fn)
		}
	}
	return out
}

func publish(subs []func(Event), e Event) {
	for _, fn := range subs {
		fn(e)
	}
}
