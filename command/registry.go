package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"

	"github.com/nanachan-bot/nanachan/metrics"
)

// Error is a command failure with a message for the invoking user.
type Error struct {
	Msg string
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Failf creates an error shown to the user as is.
func Failf(format string, args ...any) error {
	return &Error{Msg: fmt.Sprintf(format, args...)}
}

// Fail wraps err with a message shown to the user in its place.
func Fail(err error, msg string) error {
	return &Error{Msg: msg, Err: err}
}

// Registry routes interactions to commands.
type Registry struct {
	robo  *Robot
	defs  []*discordgo.ApplicationCommand
	funcs map[string]Func
	comps map[string]Component

	// Count counts invocations by path. It may be nil.
	Count metrics.Observer
	// Latency observes handling time in seconds by path. It may be nil.
	Latency metrics.Observer
}

// NewRegistry creates a registry of commands using robo.
func NewRegistry(robo *Robot) *Registry {
	return &Registry{
		robo:  robo,
		funcs: make(map[string]Func),
		comps: make(map[string]Component),
	}
}

// Add registers commands. It panics if a command or component prefix is
// registered twice.
func (r *Registry) Add(cmds ...*Command) {
	for _, c := range cmds {
		name := c.Def.Name
		if c.Func != nil {
			r.add(name, c.Func)
		}
		for sub, f := range c.Subs {
			r.add(name+" "+sub, f)
		}
		for prefix, f := range c.Components {
			r.Component(prefix, f)
		}
		r.defs = append(r.defs, c.Def)
	}
}

// Component registers a component handler outside any command.
func (r *Registry) Component(prefix string, f Component) {
	if strings.Contains(prefix, ":") {
		panic("command: component prefix " + prefix + " contains a colon")
	}
	if _, ok := r.comps[prefix]; ok {
		panic("command: duplicate component prefix " + prefix)
	}
	r.comps[prefix] = f
}

func (r *Registry) add(path string, f Func) {
	if _, ok := r.funcs[path]; ok {
		panic("command: duplicate command " + path)
	}
	r.funcs[path] = f
}

// Defs returns the application command definitions for registration.
func (r *Registry) Defs() []*discordgo.ApplicationCommand {
	return r.defs
}

// Has reports whether a command path is registered.
func (r *Registry) Has(path string) bool {
	_, ok := r.funcs[path]
	return ok
}

// Path flattens the subcommand structure of command data into a space
// separated path and the leaf options.
func Path(data *discordgo.ApplicationCommandInteractionData) (string, []*discordgo.ApplicationCommandInteractionDataOption) {
	path := data.Name
	opts := data.Options
	for len(opts) == 1 {
		o := opts[0]
		if o.Type != discordgo.ApplicationCommandOptionSubCommand && o.Type != discordgo.ApplicationCommandOptionSubCommandGroup {
			break
		}
		path += " " + o.Name
		opts = o.Options
	}
	return path, opts
}

// Handle routes an interaction to its command or component.
func (r *Registry) Handle(ctx context.Context, s Session, i *discordgo.Interaction) {
	call := &Invocation{
		Interaction: i,
		Resp:        NewResponder(s, i),
	}
	if i.Member != nil && i.Member.User != nil {
		call.User = i.Member.User
	} else {
		call.User = i.User
	}
	if call.User == nil {
		r.robo.Log.WarnContext(ctx, "interaction without user", slog.String("id", i.ID))
		return
	}
	var run func() error
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		data := i.ApplicationCommandData()
		path, opts := Path(&data)
		call.Path = path
		call.Options = make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(opts))
		for _, o := range opts {
			call.Options[o.Name] = o
		}
		f := r.funcs[path]
		if f == nil {
			r.robo.Log.WarnContext(ctx, "unknown command", slog.String("command", path))
			return
		}
		run = func() error { return f(ctx, r.robo, call) }
	case discordgo.InteractionMessageComponent:
		prefix, payload, _ := strings.Cut(i.MessageComponentData().CustomID, ":")
		call.Path = prefix
		f := r.comps[prefix]
		if f == nil {
			r.robo.Log.WarnContext(ctx, "unknown component", slog.String("prefix", prefix))
			return
		}
		run = func() error { return f(ctx, r.robo, call, payload) }
	default:
		return
	}
	call.Log = r.robo.Log.With(slog.String("trace", uuid.NewString()), slog.String("command", call.Path), slog.String("user", call.User.ID))
	start := time.Now()
	err := protect(run)
	metrics.Observe(r.Count, 1, call.Path)
	metrics.Observe(r.Latency, time.Since(start).Seconds(), call.Path)
	if err == nil {
		call.Log.InfoContext(ctx, "command done", slog.Duration("took", time.Since(start)))
		return
	}
	report(ctx, call, err)
}

// protect runs f, converting a panic into an error.
func protect(f func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return f()
}

func report(ctx context.Context, call *Invocation, err error) {
	msg := "Something went wrong. Sorry!"
	var ce *Error
	if errors.As(err, &ce) {
		msg = ce.Msg
	}
	if ce != nil && ce.Err == nil {
		call.Log.InfoContext(ctx, "command refused", slog.String("reason", ce.Msg))
	} else {
		call.Log.ErrorContext(ctx, "command failed", slog.Any("err", err))
	}
	if err := call.Resp.ReplyEphemeral(ctx, msg); err != nil {
		call.Log.ErrorContext(ctx, "couldn't report command failure", slog.Any("err", err))
	}
}
