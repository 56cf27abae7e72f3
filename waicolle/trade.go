package waicolle

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nanachan-bot/nanachan/nanapi"
	"github.com/nanachan-bot/nanachan/syncmap"
)

var (
	// ErrNoOffer is returned for unknown or expired offers.
	ErrNoOffer = errors.New("no such trade offer")
	// ErrNotParty is returned when a user acts on an offer they can't act on.
	ErrNotParty = errors.New("not your trade offer")
	// ErrSettled is returned when an offer was already accepted or withdrawn.
	ErrSettled = errors.New("trade offer already settled")
)

const (
	offerOpen int32 = iota
	offerSettling
	offerDone
)

// Offer is a trade offer from Author to Recipient.
type Offer struct {
	ID        uuid.UUID
	Author    string
	Recipient string
	// Offered are the author's waifu IDs given to the recipient.
	Offered []string
	// Requested are the recipient's waifu IDs given to the author.
	Requested []string
	Coins     int
	Expires   time.Time
	// Upstream is the nanapi trade ID.
	Upstream string

	state atomic.Int32
}

// TradeBook tracks open trade offers.
type TradeBook struct {
	API API
	// TTL is how long offers stay open.
	TTL    time.Duration
	offers *syncmap.Map[uuid.UUID, *Offer]
}

// NewTradeBook creates an empty trade book.
func NewTradeBook(api API, ttl time.Duration) *TradeBook {
	return &TradeBook{API: api, TTL: ttl, offers: syncmap.New[uuid.UUID, *Offer]()}
}

// Offer creates an offer upstream and opens it.
func (b *TradeBook) Offer(ctx context.Context, author, recipient string, offered, requested []string, coins int, now time.Time) (*Offer, error) {
	if author == recipient {
		return nil, errors.New("can't trade with yourself")
	}
	if len(offered) == 0 && len(requested) == 0 && coins == 0 {
		return nil, errors.New("empty trade")
	}
	t, err := b.API.CreateTrade(ctx, &nanapi.TradeCreate{
		PlayerA:   author,
		WaifusA:   offered,
		MoecoinsA: coins,
		PlayerB:   recipient,
		WaifusB:   requested,
	})
	if err != nil {
		return nil, fmt.Errorf("couldn't create trade: %w", err)
	}
	o := &Offer{
		ID:        uuid.New(),
		Author:    author,
		Recipient: recipient,
		Offered:   offered,
		Requested: requested,
		Coins:     coins,
		Expires:   now.Add(b.TTL),
		Upstream:  t.ID,
	}
	b.offers.Store(o.ID, o)
	return o, nil
}

// Get returns an open offer.
func (b *TradeBook) Get(id uuid.UUID) (*Offer, bool) {
	return b.offers.Load(id)
}

// settle claims an offer for one final action.
func (b *TradeBook) settle(id uuid.UUID, allowed func(*Offer) bool, now time.Time) (*Offer, error) {
	o, ok := b.offers.Load(id)
	if !ok || now.After(o.Expires) {
		return nil, ErrNoOffer
	}
	if !allowed(o) {
		return nil, ErrNotParty
	}
	if !o.state.CompareAndSwap(offerOpen, offerSettling) {
		return nil, ErrSettled
	}
	return o, nil
}

// finish completes a settlement. On failure the offer reopens.
func (b *TradeBook) finish(o *Offer, err error) error {
	if err != nil {
		o.state.Store(offerOpen)
		return err
	}
	o.state.Store(offerDone)
	b.offers.Delete(o.ID)
	return nil
}

// Accept commits an offer. Only the recipient may accept, and an offer is
// committed at most once.
func (b *TradeBook) Accept(ctx context.Context, id uuid.UUID, user string, now time.Time) (*Offer, error) {
	o, err := b.settle(id, func(o *Offer) bool { return o.Recipient == user }, now)
	if err != nil {
		return nil, err
	}
	err = b.API.CommitTrade(ctx, o.Upstream)
	if err != nil {
		err = fmt.Errorf("couldn't commit trade: %w", err)
	}
	return o, b.finish(o, err)
}

// Decline rejects an offer. Only the recipient may decline.
func (b *TradeBook) Decline(ctx context.Context, id uuid.UUID, user string, now time.Time) (*Offer, error) {
	o, err := b.settle(id, func(o *Offer) bool { return o.Recipient == user }, now)
	if err != nil {
		return nil, err
	}
	return o, b.finish(o, b.delete(ctx, o))
}

// Cancel withdraws an offer. Only the author may cancel.
func (b *TradeBook) Cancel(ctx context.Context, id uuid.UUID, user string, now time.Time) (*Offer, error) {
	o, err := b.settle(id, func(o *Offer) bool { return o.Author == user }, now)
	if err != nil {
		return nil, err
	}
	return o, b.finish(o, b.delete(ctx, o))
}

func (b *TradeBook) delete(ctx context.Context, o *Offer) error {
	err := b.API.DeleteTrade(ctx, o.Upstream)
	if err != nil && !errors.Is(err, nanapi.ErrNotFound) {
		return fmt.Errorf("couldn't delete trade: %w", err)
	}
	return nil
}

// Sweep removes expired offers and deletes them upstream. It returns the
// removed offers and any errors from deleting them.
func (b *TradeBook) Sweep(ctx context.Context, now time.Time) ([]*Offer, error) {
	var exp []*Offer
	b.offers.DeleteFunc(func(_ uuid.UUID, o *Offer) bool {
		if !now.After(o.Expires) || !o.state.CompareAndSwap(offerOpen, offerDone) {
			return false
		}
		exp = append(exp, o)
		return true
	})
	var errs []error
	for _, o := range exp {
		if err := b.delete(ctx, o); err != nil {
			errs = append(errs, err)
		}
	}
	return exp, errors.Join(errs...)
}

// Len returns the number of open offers.
func (b *TradeBook) Len() int {
	return b.offers.Len()
}
