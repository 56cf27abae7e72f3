package waicolle

import (
	"math/rand/v2"
	"regexp"
	"time"

	"github.com/nanachan-bot/nanachan/syncmap"
)

// Condition is a rule that rewards certain messages.
type Condition interface {
	// Check evaluates a message. It may record state, e.g. cooldowns.
	Check(m *Msg) Reward
}

// Keyword rewards messages matching a pattern, at most once per cooldown per
// user.
type Keyword struct {
	Pattern  *regexp.Regexp
	Reward   Reward
	Cooldown time.Duration

	last *syncmap.Map[string, time.Time]
}

// NewKeyword creates a keyword condition.
func NewKeyword(pattern *regexp.Regexp, r Reward, cooldown time.Duration) *Keyword {
	return &Keyword{Pattern: pattern, Reward: r, Cooldown: cooldown, last: syncmap.New[string, time.Time]()}
}

func (k *Keyword) Check(m *Msg) Reward {
	if !k.Pattern.MatchString(m.Content) {
		return Reward{}
	}
	ok := false
	k.last.Update(m.User, func(old time.Time, had bool) (time.Time, bool) {
		if had && m.Time.Sub(old) < k.Cooldown {
			return old, true
		}
		ok = true
		return m.Time, true
	})
	if !ok {
		return Reward{}
	}
	return k.Reward
}

// DailyFirst rewards each user's first message of the day.
type DailyFirst struct {
	Reward Reward
	// Location determines day boundaries. Nil means UTC.
	Location *time.Location

	seen *syncmap.Map[string, string]
}

// NewDailyFirst creates a daily-first condition.
func NewDailyFirst(r Reward, loc *time.Location) *DailyFirst {
	return &DailyFirst{Reward: r, Location: loc, seen: syncmap.New[string, string]()}
}

func (d *DailyFirst) Check(m *Msg) Reward {
	loc := d.Location
	if loc == nil {
		loc = time.UTC
	}
	day := m.Time.In(loc).Format(time.DateOnly)
	first := false
	d.seen.Update(m.User, func(old string, _ bool) (string, bool) {
		first = old != day
		return day, true
	})
	if !first {
		return Reward{}
	}
	return d.Reward
}

// Channel rewards messages in certain channels with some chance.
type Channel struct {
	IDs    map[string]bool
	Chance float64
	Reward Reward

	rand func() float64
}

// NewChannel creates a channel condition.
func NewChannel(ids []string, chance float64, r Reward) *Channel {
	m := make(map[string]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return &Channel{IDs: m, Chance: chance, Reward: r, rand: rand.Float64}
}

func (c *Channel) Check(m *Msg) Reward {
	if !c.IDs[m.Channel] || c.rand() >= c.Chance {
		return Reward{}
	}
	return c.Reward
}

// Evaluate checks all conditions against a message and sums their rewards.
func Evaluate(conds []Condition, m *Msg) Reward {
	var r Reward
	for _, c := range conds {
		r = r.Add(c.Check(m))
	}
	return r
}
