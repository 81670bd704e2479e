package notify

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/pipedeck/pipedeck/internal/client"
)

// Type is the closed set of banner kinds.
type Type string

const (
	Danger  Type = "danger"
	Success Type = "success"
	Warning Type = "warning"
	Info    Type = "info"
)

const (
	// DefaultDuration is how long a short banner stays visible.
	DefaultDuration = 4500 * time.Millisecond
	// ExtendedDuration is used for messages longer than LongMessageThreshold.
	ExtendedDuration = 20 * time.Second
	// LongMessageThreshold is the message length, in characters, past which
	// the extended duration applies.
	LongMessageThreshold = 60

	DefaultDirection = "right"
	DefaultContainer = ".notifications"
)

// Config describes one banner. Zero values take the documented defaults:
// Type info, Direction right, Container .notifications, and Duration derived
// from the message length.
type Config struct {
	Title     string
	Message   string
	Type      Type
	Direction string
	Duration  time.Duration
	Container string
}

// Validate rejects unknown types and negative durations.
func (c Config) Validate() error {
	switch c.Type {
	case "", Danger, Success, Warning, Info:
	default:
		return fmt.Errorf("unknown notification type %q", c.Type)
	}
	if c.Duration < 0 {
		return fmt.Errorf("notification duration must not be negative")
	}
	return nil
}

// Notification is a banner ready for presentation.
type Notification struct {
	ID string
	Config
	CreatedAt time.Time
}

// Sink renders notifications. Show must not block for long.
type Sink interface {
	Show(n Notification)
}

// DurationFor returns def for messages up to the threshold and the extended
// duration past it.
func DurationFor(message string, def time.Duration) time.Duration {
	if utf8.RuneCountInString(message) > LongMessageThreshold {
		return ExtendedDuration
	}
	return def
}

// Presenter turns outcomes into banners. It is the single global error handler.
type Presenter struct {
	sink            Sink
	defaultDuration time.Duration
	logger          *slog.Logger
}

// NewPresenter creates a presenter. A non-positive defaultDuration uses DefaultDuration.
func NewPresenter(sink Sink, defaultDuration time.Duration, logger *slog.Logger) *Presenter {
	if defaultDuration <= 0 {
		defaultDuration = DefaultDuration
	}
	return &Presenter{sink: sink, defaultDuration: defaultDuration, logger: logger}
}

// Notify presents one banner. Invalid configs are logged and dropped.
func (p *Presenter) Notify(cfg Config) {
	if err := cfg.Validate(); err != nil {
		p.logger.Warn("Dropping notification", "error", err)
		return
	}
	p.sink.Show(p.build(cfg))
}

func (p *Presenter) build(cfg Config) Notification {
	if cfg.Type == "" {
		cfg.Type = Info
	}
	if cfg.Direction == "" {
		cfg.Direction = DefaultDirection
	}
	if cfg.Container == "" {
		cfg.Container = DefaultContainer
	}
	if cfg.Duration == 0 {
		cfg.Duration = DurationFor(cfg.Message, p.defaultDuration)
	}
	return Notification{
		ID:        uuid.NewString(),
		Config:    cfg,
		CreatedAt: time.Now(),
	}
}

// OnSuccess presents a success banner.
func (p *Presenter) OnSuccess(title, message string) {
	p.Notify(Config{Title: title, Message: message, Type: Success})
}

// OnError presents exactly one banner for a failed exchange.
func (p *Presenter) OnError(err error) {
	if err == nil {
		return
	}
	cfg := Classify(err)
	p.logger.Debug("Presenting error", "title", cfg.Title, "error", err)
	p.Notify(cfg)
}

// Classify maps an error to a banner: a response from the server, a request
// without response, or a request that could not be built. Each branch only
// reads the fields its error kind carries.
func Classify(err error) Config {
	var respErr *client.ResponseError
	var trErr *client.TransportError
	var reqErr *client.RequestError

	switch {
	case errors.As(err, &respErr):
		return Config{
			Title:   fmt.Sprintf("Error: %d", respErr.Status),
			Message: responseMessage(respErr),
			Type:    Danger,
		}
	case errors.As(err, &trErr):
		return Config{
			Title:   "Error: No response received!",
			Message: fmt.Sprintf("%s %s: %v", trErr.Method, trErr.URL, trErr.Err),
			Type:    Danger,
		}
	case errors.As(err, &reqErr):
		return Config{
			Title:   "Error: Cannot setup request!",
			Message: reqErr.Err.Error(),
			Type:    Danger,
		}
	default:
		return Config{
			Title:   "Error",
			Message: err.Error(),
			Type:    Danger,
		}
	}
}

func responseMessage(e *client.ResponseError) string {
	if e.Message != "" {
		return e.Message
	}
	if body := strings.TrimSpace(e.Body); body != "" {
		return body
	}
	switch e.Status {
	case http.StatusNotFound:
		return "Not found"
	case http.StatusForbidden:
		return "Not authorized. Please login first."
	default:
		return http.StatusText(e.Status)
	}
}
