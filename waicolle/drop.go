package waicolle

import (
	"errors"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"gitlab.com/zephyrtronium/pick"

	"github.com/nanachan-bot/nanachan/syncmap"
)

// Dropper decides when a message causes a drop.
type Dropper struct {
	// Rate is the base probability of a drop per eligible message.
	Rate float64
	// Pity is the number of messages after which a drop is forced.
	// Zero disables pity.
	Pity int

	mu     sync.Mutex
	counts map[string]int
	rand   func() float64
}

// NewDropper creates a dropper.
func NewDropper(rate float64, pity int) *Dropper {
	return &Dropper{Rate: rate, Pity: pity, counts: make(map[string]int), rand: rand.Float64}
}

// Message counts an eligible message in a guild and reports whether it
// drops, at the base rate scaled by mult. The guild's counter resets on a
// drop.
func (d *Dropper) Message(guild string, mult float64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := d.counts[guild] + 1
	if (d.Pity > 0 && n >= d.Pity) || d.rand() < d.Rate*mult {
		delete(d.counts, guild)
		return true
	}
	d.counts[guild] = n
	return false
}

// Count returns the number of messages since the last drop in a guild.
func (d *Dropper) Count(guild string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.counts[guild]
}

// dropSizes is the distribution of waifus per drop.
var dropSizes = pick.New([]pick.Case[int]{
	{E: 1, W: 80},
	{E: 2, W: 15},
	{E: 3, W: 5},
})

// DropSize picks the number of waifus in a drop.
func DropSize() int {
	return dropSizes.Pick(rand.Uint32())
}

var (
	// ErrNoDrop is returned when claiming a drop that doesn't exist or expired.
	ErrNoDrop = errors.New("no such drop")
	// ErrClaimed is returned when a drop was already claimed.
	ErrClaimed = errors.New("drop already claimed")
)

// Drop is a pending drop waiting for a claimer.
type Drop struct {
	ID      string
	Guild   string
	Channel string
	Size    int
	Reason  string
	Expires time.Time

	claimed atomic.Bool
}

// DropBook tracks pending drops.
type DropBook struct {
	drops *syncmap.Map[string, *Drop]
}

// NewDropBook creates an empty drop book.
func NewDropBook() *DropBook {
	return &DropBook{drops: syncmap.New[string, *Drop]()}
}

// Add registers a drop.
func (b *DropBook) Add(d *Drop) {
	b.drops.Store(d.ID, d)
}

// Claim claims a drop. Exactly one claim succeeds; later claims
// get ErrClaimed.
func (b *DropBook) Claim(id string, now time.Time) (*Drop, error) {
	d, ok := b.drops.Load(id)
	if !ok || now.After(d.Expires) {
		return nil, ErrNoDrop
	}
	if !d.claimed.CompareAndSwap(false, true) {
		return nil, ErrClaimed
	}
	return d, nil
}

// Unclaim reopens a claimed drop after a failed delivery.
func (b *DropBook) Unclaim(d *Drop) {
	d.claimed.Store(false)
}

// Sweep removes expired drops and returns those nobody claimed.
func (b *DropBook) Sweep(now time.Time) []*Drop {
	var r []*Drop
	b.drops.DeleteFunc(func(_ string, d *Drop) bool {
		if now.After(d.Expires) {
			if !d.claimed.Load() {
				r = append(r, d)
			}
			return true
		}
		return false
	})
	return r
}

// Len returns the number of drops in the book, claimed or not.
func (b *DropBook) Len() int {
	return b.drops.Len()
}
