// Package notify collects transient user-facing messages produced by
// operation handlers, plus a map of per-operation inline errors.
package notify

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/fattura-reconcile/internal/common"
)

// DefaultDuration is how long a notification stays up when none is given.
const DefaultDuration = 5 * time.Second

// Type classifies a notification.
type Type string

// Notification types.
const (
	Success Type = "success"
	Error   Type = "error"
	Warning Type = "warning"
	Info    Type = "info"
)

// Action is an optional follow-up offered with a notification.
type Action struct {
	Label   string `json:"label"`
	Command string `json:"command"`
}

// Notification is one queued message. A zero Duration keeps it until dismissed.
type Notification struct {
	CreatedAt time.Time     `json:"created_at"`
	Action    *Action       `json:"action,omitempty"`
	ID        string        `json:"id"`
	Type      Type          `json:"type"`
	Title     string        `json:"title"`
	Message   string        `json:"message"`
	Duration  time.Duration `json:"duration"`
}

// Timer is the part of *time.Timer the center needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d.
type AfterFunc func(d time.Duration, f func()) Timer

// Center is the process-wide notification queue. It is safe for concurrent use.
type Center struct {
	now       func() time.Time
	afterFunc AfterFunc
	timers    map[string]Timer
	errors    map[string]error
	items     []Notification
	duration  time.Duration
	mu        sync.Mutex
	closed    bool
}

// Option configures a Center.
type Option func(*Center)

// WithClock overrides the clock used to stamp notifications.
func WithClock(now func() time.Time) Option {
	return func(c *Center) { c.now = now }
}

// WithAfterFunc overrides how expiry timers are scheduled.
func WithAfterFunc(fn AfterFunc) Option {
	return func(c *Center) { c.afterFunc = fn }
}

// WithDuration sets the duration used by the typed helpers.
func WithDuration(d time.Duration) Option {
	return func(c *Center) { c.duration = d }
}

// NewCenter creates an empty notification center.
func NewCenter(opts ...Option) *Center {
	c := &Center{
		now: time.Now,
		afterFunc: func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		},
		timers:   make(map[string]Timer),
		errors:   make(map[string]error),
		duration: DefaultDuration,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Push appends n and schedules its removal after n.Duration. It returns the
// notification id, generating one when n.ID is empty.
func (c *Center) Push(n Notification) string {
	if n.ID == "" {
		n.ID = newID()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if n.CreatedAt.IsZero() {
		n.CreatedAt = c.now()
	}
	c.items = append(c.items, n)
	if n.Duration > 0 && !c.closed {
		id := n.ID
		c.timers[id] = c.afterFunc(n.Duration, func() { c.Dismiss(id) })
	}

	logNotification(n)
	return n.ID
}

// Success pushes a success notification with the default duration.
func (c *Center) Success(title, message string) string {
	return c.Push(Notification{Type: Success, Title: title, Message: message, Duration: c.duration})
}

// Error pushes an error notification with the default duration.
func (c *Center) Error(title string, err error) string {
	return c.Push(Notification{Type: Error, Title: title, Message: err.Error(), Duration: c.duration})
}

// Warning pushes a warning notification with the default duration.
func (c *Center) Warning(title, message string) string {
	return c.Push(Notification{Type: Warning, Title: title, Message: message, Duration: c.duration})
}

// Info pushes an informational notification with the default duration.
func (c *Center) Info(title, message string) string {
	return c.Push(Notification{Type: Info, Title: title, Message: message, Duration: c.duration})
}

// Dismiss removes the notification with id. Unknown ids are ignored.
func (c *Center) Dismiss(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t, ok := c.timers[id]; ok {
		t.Stop()
		delete(c.timers, id)
	}
	c.items = slices.DeleteFunc(c.items, func(n Notification) bool { return n.ID == id })
}

// List returns the queued notifications, oldest first.
func (c *Center) List() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.items)
}

// Drain returns the queued notifications and empties the queue.
func (c *Center) Drain() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, t := range c.timers {
		t.Stop()
		delete(c.timers, id)
	}
	out := c.items
	c.items = nil
	return out
}

// SetError records err as the inline error of operation.
func (c *Center) SetError(operation string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors[operation] = err
}

// ClearError forgets the inline error of operation.
func (c *Center) ClearError(operation string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.errors, operation)
}

// Err returns the inline error of operation, if any.
func (c *Center) Err(operation string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errors[operation]
}

// Errors returns a copy of the inline error map.
func (c *Center) Errors() map[string]error {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]error, len(c.errors))
	for k, v := range c.errors {
		out[k] = v
	}
	return out
}

// Close stops every pending expiry timer. Queued notifications stay listed,
// and later pushes are kept until dismissed.
func (c *Center) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, t := range c.timers {
		t.Stop()
		delete(c.timers, id)
	}
	c.closed = true
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func logNotification(n Notification) {
	fields := common.Fields{"id": n.ID, "type": string(n.Type), "title": n.Title}
	switch n.Type {
	case Error:
		slog.Error("notification: "+n.Message, "id", n.ID, "title", n.Title)
	case Warning:
		slog.Warn("notification: "+n.Message, "id", n.ID, "title", n.Title)
	case Success:
		common.LogInfo("notification: "+n.Message, fields)
	default:
		common.LogDebug("notification: "+n.Message, fields)
	}
}
