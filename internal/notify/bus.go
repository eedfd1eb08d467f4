// Package notify routes contig events between the views that have a
// contig open. Delivery is synchronous and never blocks on a listener.
package notify

import (
	"context"
	"sync"

	"github.com/kobzarvs/gapedit/internal/contig"
	"github.com/kobzarvs/gapedit/internal/logger"
	"github.com/kobzarvs/gapedit/internal/metrics"
)

// Listener receives the events of the contig it was registered for.
type Listener func(ctx context.Context, contigID int, ev contig.Event)

type subscription struct {
	id       int
	contigID int
	fn       Listener
}

// Bus implements contig.Notifier. The zero value is not usable; call New.
type Bus struct {
	mu   sync.Mutex
	next int
	subs []*subscription
}

func New() *Bus {
	return &Bus{next: 1}
}

// Register adds fn as a listener of contigID and returns a handle for
// Unregister.
func (b *Bus) Register(contigID int, fn Listener) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	b.subs = append(b.subs, &subscription{id: id, contigID: contigID, fn: fn})
	return id
}

func (b *Bus) Unregister(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Listeners reports how many listeners contigID has.
func (b *Bus) Listeners(contigID int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, s := range b.subs {
		if s.contigID == contigID {
			n++
		}
	}
	return n
}

func (b *Bus) snapshot(contigID int) []Listener {
	b.mu.Lock()
	defer b.mu.Unlock()
	var fns []Listener
	for _, s := range b.subs {
		if s.contigID == contigID {
			fns = append(fns, s.fn)
		}
	}
	return fns
}

// Notify delivers ev to every listener of contigID in registration
// order. Listeners may register or unregister while being called.
func (b *Bus) Notify(ctx context.Context, contigID int, ev contig.Event) {
	fns := b.snapshot(contigID)
	logger.Debug("contig event", "contig", contigID, "kind", ev.Kind.String(), "listeners", len(fns))
	metrics.Event(ev.Kind.String())
	for _, fn := range fns {
		fn(ctx, contigID, ev)
	}
}

func (b *Bus) move(from, to int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, s := range b.subs {
		if s.contigID == from {
			s.contigID = to
			n++
		}
	}
	return n
}

// Merge moves the listeners of contig from onto contig into, after a
// join has emptied from.
func (b *Bus) Merge(from, into int) {
	if from == into {
		return
	}
	n := b.move(from, into)
	logger.Debug("listeners merged", "from", from, "into", into, "moved", n)
}

// Renumber moves the listeners of contig from to its new number and
// tells them about it.
func (b *Bus) Renumber(ctx context.Context, from, to int) {
	if from == to {
		return
	}
	if b.move(from, to) == 0 {
		return
	}
	b.Notify(ctx, to, contig.Event{Kind: contig.EventRenumber, Into: to})
}
