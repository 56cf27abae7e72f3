package twitch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Ledger records which streams have been announced.
type Ledger interface {
	// Announced reports whether the stream with the given ID was announced.
	Announced(ctx context.Context, streamID string) (bool, error)
	// Record notes that a stream was announced.
	Record(ctx context.Context, s *Stream, at time.Time) error
	// Last returns the most recent stream recorded for a user login and when.
	// The ID is empty if there is none.
	Last(ctx context.Context, user string) (string, time.Time, error)
}

// Poller watches a set of streamers and calls Announce once per stream when
// they go live.
type Poller struct {
	Client Client
	// Logins are the streamers to watch. At most 100 are queried.
	Logins []string
	// Interval is the time between checks.
	Interval time.Duration
	// Ledger remembers announced streams across restarts.
	Ledger Ledger
	// Grace is how soon after an announcement a new stream by the same user
	// counts as a reconnect. Reconnects are recorded but not announced.
	Grace time.Duration
	// Announce is called for each newly live stream.
	Announce func(ctx context.Context, s *Stream) error
	Logger   *slog.Logger

	// streams is reused between polls.
	streams []Stream
}

// Run polls until the context is canceled.
func (p *Poller) Run(ctx context.Context) error {
	if len(p.Logins) == 0 {
		return nil
	}
	if err := p.Resolve(ctx); err != nil {
		p.Logger.WarnContext(ctx, "couldn't check streamers", slog.Any("err", err))
	}
	t := time.NewTicker(p.Interval)
	defer t.Stop()
	for {
		if err := p.Poll(ctx); err != nil {
			p.Logger.ErrorContext(ctx, "stream poll failed", slog.Any("err", err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Resolve looks up the watched logins and drops the ones Twitch doesn't know.
// Only the logins that are polled are checked.
func (p *Poller) Resolve(ctx context.Context) error {
	n := min(len(p.Logins), 100)
	users := make([]User, 0, n)
	for _, l := range p.Logins[:n] {
		users = append(users, User{Login: l})
	}
	found, err := Users(ctx, p.Client, users)
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(found))
	for _, u := range found {
		known[strings.ToLower(u.Login)] = true
	}
	logins := make([]string, 0, len(p.Logins))
	for _, l := range p.Logins[:n] {
		if !known[strings.ToLower(l)] {
			p.Logger.WarnContext(ctx, "unknown streamer", slog.String("login", l))
			continue
		}
		logins = append(logins, l)
	}
	p.Logins = append(logins, p.Logins[n:]...)
	return nil
}

// Poll checks the watched streamers once and announces new streams.
func (p *Poller) Poll(ctx context.Context) error {
	logins := p.Logins
	if len(logins) > 100 {
		logins = logins[:100]
	}
	p.streams = p.streams[:0]
	for _, l := range logins {
		p.streams = append(p.streams, Stream{UserLogin: l})
	}
	live, err := UserStreams(ctx, p.Client, p.streams)
	if err != nil {
		return err
	}
	p.streams = live
	for i := range live {
		s := &live[i]
		if s.Type != "" && s.Type != "live" {
			continue
		}
		seen, err := p.Ledger.Announced(ctx, s.ID)
		if err != nil {
			return fmt.Errorf("couldn't check announcement for %s: %w", s.UserLogin, err)
		}
		if seen {
			continue
		}
		now := time.Now()
		prev, at, err := p.Ledger.Last(ctx, s.UserLogin)
		if err != nil {
			return fmt.Errorf("couldn't find last announcement for %s: %w", s.UserLogin, err)
		}
		if prev != "" && now.Sub(at) < p.Grace {
			p.Logger.InfoContext(ctx, "stream restarted", slog.String("user", s.UserLogin), slog.String("stream", s.ID), slog.String("previous", prev))
		} else {
			p.Logger.InfoContext(ctx, "stream live", slog.String("user", s.UserLogin), slog.String("stream", s.ID), slog.String("title", s.Title))
			if err := p.Announce(ctx, s); err != nil {
				p.Logger.ErrorContext(ctx, "couldn't announce stream", slog.String("user", s.UserLogin), slog.Any("err", err))
				continue
			}
		}
		if err := p.Ledger.Record(ctx, s, now); err != nil {
			return fmt.Errorf("couldn't record announcement for %s: %w", s.UserLogin, err)
		}
	}
	return nil
}
