package amq

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"github.com/nanachan-bot/nanachan/metrics"
)

// Handler handles one AMQ command.
type Handler func(ctx context.Context, data jsontext.Value) error

// Dispatcher routes AMQ commands to handlers by name.
type Dispatcher struct {
	handlers map[string]Handler
	logger   *slog.Logger
	// Events counts dispatched commands by name. It may be nil.
	Events metrics.Observer
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(lg *slog.Logger) *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler), logger: lg}
}

// Handle registers a handler. A later registration replaces an earlier one.
func (d *Dispatcher) Handle(name string, h Handler) {
	d.handlers[name] = h
}

// Dispatch calls the handler for a command. Unknown commands are ignored and
// handler failures are logged.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, data jsontext.Value) {
	h, ok := d.handlers[name]
	if !ok {
		d.logger.DebugContext(ctx, "unhandled AMQ command", slog.String("command", name))
		return
	}
	metrics.Observe(d.Events, 1, name)
	defer func() {
		if r := recover(); r != nil {
			d.logger.ErrorContext(ctx, "AMQ handler panicked", slog.String("command", name), slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
		}
	}()
	if err := h(ctx, data); err != nil {
		d.logger.ErrorContext(ctx, "AMQ handler failed", slog.String("command", name), slog.Any("err", err))
	}
}

// Names returns the registered command names.
func (d *Dispatcher) Names() []string {
	r := make([]string, 0, len(d.handlers))
	for k := range d.handlers {
		r = append(r, k)
	}
	return r
}

// envelope is the argument of the "command" socket event.
type envelope struct {
	Command string         `json:"command"`
	Data    jsontext.Value `json:"data"`
}

// decodeHandler wraps a typed handler.
func decodeHandler[T any](f func(ctx context.Context, v *T) error) Handler {
	return func(ctx context.Context, data jsontext.Value) error {
		var v T
		if len(data) != 0 {
			if err := json.Unmarshal(data, &v); err != nil {
				return fmt.Errorf("couldn't decode command data: %w", err)
			}
		}
		return f(ctx, &v)
	}
}
