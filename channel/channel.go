// Package channel holds per-channel feature settings.
package channel

import (
	"regexp"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Feature is a message-driven feature that can be enabled per channel.
type Feature uint8

const (
	// Embed reposts links with fixed embeds.
	Embed Feature = 1 << iota
	// AI records messages for AI chat and answers mentions.
	AI
	// Rewards grants waicolle moecoins and condition rewards.
	Rewards
	// Drops allows waicolle drops.
	Drops
)

// All is every feature.
const All = Embed | AI | Rewards | Drops

// Channel is the configuration of a Discord channel.
type Channel struct {
	// ID is the channel ID.
	ID string
	// Name is a label for logs.
	Name string
	// Features is the set of enabled features.
	Features Feature
	// Block is a regex that matches messages which features ignore.
	// Nil matches nothing.
	Block *regexp.Regexp
	// Rate is the rate limiter for unprompted replies such as AI answers to
	// mentions. Attempts in excess of the limit are dropped.
	Rate *rate.Limiter
	// Silent is the earliest time that features run in the channel as
	// nanoseconds from the Unix epoch.
	Silent atomic.Int64
}

// SilentTime returns the time until which the channel is silent.
func (ch *Channel) SilentTime() time.Time {
	return time.Unix(0, ch.Silent.Load())
}

// Silence stops features in the channel until t.
func (ch *Channel) Silence(t time.Time) {
	ch.Silent.Store(t.UnixNano())
}

// Allows reports whether a feature should handle a message sent at t.
func (ch *Channel) Allows(f Feature, text string, t time.Time) bool {
	if ch.Features&f == 0 {
		return false
	}
	if t.Before(ch.SilentTime()) {
		return false
	}
	return ch.Block == nil || !ch.Block.MatchString(text)
}

// Speak reports whether the rate limit permits an unprompted reply at t.
// A nil limiter permits everything.
func (ch *Channel) Speak(t time.Time) bool {
	return ch.Rate == nil || ch.Rate.AllowN(t, 1)
}

// Lookup finds the configuration for a channel, falling back to the parent
// of a thread and then to a default. def may be nil.
func Lookup(chans map[string]*Channel, id, parent string, def *Channel) *Channel {
	if ch := chans[id]; ch != nil {
		return ch
	}
	if ch := chans[parent]; ch != nil && parent != "" {
		return ch
	}
	return def
}
