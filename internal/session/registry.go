// Package session keeps track of open contig editors. Editors on the same
// contig share one editing database; the last one to close frees it.
// Cursor and display positions survive between runs in a JSON state file.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kobzarvs/gapedit/internal/contig"
	"github.com/kobzarvs/gapedit/internal/logger"
	"github.com/kobzarvs/gapedit/internal/notify"
	"github.com/kobzarvs/gapedit/internal/store"
)

var ErrStaleHandle = errors.New("editor handle is closed")

// Handle names an open editor. A handle stays invalid once its editor
// closes, even if the slot is reused.
type Handle struct {
	slot int
	gen  uint32
}

func (h Handle) String() string { return fmt.Sprintf("editor#%d.%d", h.slot, h.gen) }

type shared struct {
	db   *contig.DB
	refs int
	sub  int
	key  string
}

type editor struct {
	gen    uint32
	open   bool
	shared *shared
}

// Registry owns the open editors.
type Registry struct {
	mu     sync.Mutex
	store  store.Store
	name   string
	opts   contig.Options
	bus    *notify.Bus
	views  *Manager
	slots  []editor
	free   []int
	byID   map[int]*shared
	closed func(h Handle)
}

// NewRegistry creates a registry over s. name identifies the store in
// saved view keys; views may be nil to skip view persistence.
func NewRegistry(s store.Store, name string, opts contig.Options, bus *notify.Bus, views *Manager) *Registry {
	if bus == nil {
		bus = notify.New()
	}
	opts.Notifier = bus
	return &Registry{
		store: s,
		name:  name,
		opts:  opts,
		bus:   bus,
		views: views,
		byID:  make(map[int]*shared),
	}
}

func (r *Registry) Bus() *notify.Bus { return r.bus }

// OnClose registers fn to run for every editor closed by the registry
// itself, such as the editors of a contig joined into another.
func (r *Registry) OnClose(fn func(h Handle)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = fn
}

// Open opens an editor on contig id, sharing the database of any editor
// already open on it.
func (r *Registry) Open(ctx context.Context, id int) (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sh := r.byID[id]
	if sh == nil {
		db, err := contig.Load(ctx, r.store, id, r.opts)
		if err != nil {
			return Handle{}, err
		}
		sh = &shared{db: db, key: r.viewKey(db)}
		r.restoreView(sh)
		sh.sub = r.bus.Register(id, r.listener(sh))
		r.byID[id] = sh
		logger.Debug("contig opened", "contig", id, "readings", db.NumReadings())
	}
	sh.refs++

	var slot int
	if n := len(r.free); n > 0 {
		slot = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		slot = len(r.slots)
		r.slots = append(r.slots, editor{})
	}
	e := &r.slots[slot]
	e.gen++
	e.open = true
	e.shared = sh
	return Handle{slot: slot, gen: e.gen}, nil
}

func (r *Registry) lookup(h Handle) (*editor, error) {
	if h.slot < 0 || h.slot >= len(r.slots) {
		return nil, fmt.Errorf("%w: %s", ErrStaleHandle, h)
	}
	e := &r.slots[h.slot]
	if !e.open || e.gen != h.gen {
		return nil, fmt.Errorf("%w: %s", ErrStaleHandle, h)
	}
	return e, nil
}

// DB returns the editing database behind h.
func (r *Registry) DB(h Handle) (*contig.DB, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, err := r.lookup(h)
	if err != nil {
		return nil, err
	}
	return e.shared.db, nil
}

// Close closes the editor h. The last editor of a contig records its
// view state and frees the database; unsaved edits are discarded.
func (r *Registry) Close(h Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, err := r.lookup(h)
	if err != nil {
		return err
	}
	r.release(h.slot, e)
	return nil
}

func (r *Registry) release(slot int, e *editor) {
	sh := e.shared
	e.open = false
	e.shared = nil
	r.free = append(r.free, slot)

	sh.refs--
	if sh.refs > 0 {
		return
	}
	r.bus.Unregister(sh.sub)
	if r.byID[sh.db.ContigID] == sh {
		delete(r.byID, sh.db.ContigID)
	}
	r.saveView(sh)
	if sh.db.Modified() {
		logger.Warn("discarding unsaved edits", "contig", sh.db.ContigID)
	}
	sh.db.Free()
}

// Refs reports how many editors share the database of contig id.
func (r *Registry) Refs(id int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sh := r.byID[id]; sh != nil {
		return sh.refs
	}
	return 0
}

// Len is the number of open editors.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots) - len(r.free)
}

// CloseAll closes every editor.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.slots {
		if e := &r.slots[i]; e.open {
			r.release(i, e)
		}
	}
}

// listener follows events that change which contig a shared database
// stands for. Both events come from the joiner, never from a registry
// method, so taking the registry lock here is safe.
func (r *Registry) listener(sh *shared) notify.Listener {
	return func(ctx context.Context, id int, ev contig.Event) {
		switch ev.Kind {
		case contig.EventRenumber:
			r.mu.Lock()
			if r.byID[id] == nil || r.byID[id] == sh {
				for old, s := range r.byID {
					if s == sh {
						delete(r.byID, old)
					}
				}
				sh.db.ContigID = ev.Into
				r.byID[ev.Into] = sh
			}
			r.mu.Unlock()
			logger.Debug("editor contig renumbered", "contig", ev.Into)
		case contig.EventJoin:
			r.mu.Lock()
			var handles []Handle
			for i := range r.slots {
				e := &r.slots[i]
				if e.open && e.shared == sh {
					handles = append(handles, Handle{slot: i, gen: e.gen})
				}
			}
			if r.byID[id] == sh {
				delete(r.byID, id)
			}
			r.bus.Unregister(sh.sub)
			for _, h := range handles {
				e := &r.slots[h.slot]
				e.open = false
				e.shared = nil
				r.free = append(r.free, h.slot)
			}
			sh.refs = 0
			if r.views != nil {
				r.views.ForgetView(sh.key)
			}
			closed := r.closed
			r.mu.Unlock()
			logger.Info("editors closed by join", "contig", id, "into", ev.Into, "editors", len(handles))
			if closed != nil {
				for _, h := range handles {
					closed(h)
				}
			}
		}
	}
}

// viewKey names a contig by its leftmost reading, which keeps its number
// when contigs are renumbered.
func (r *Registry) viewKey(db *contig.DB) string {
	first := db.First()
	if first == 0 {
		return fmt.Sprintf("%s:contig-%d", r.name, db.ContigID)
	}
	rec, err := db.Record(first)
	if err != nil {
		return fmt.Sprintf("%s:contig-%d", r.name, db.ContigID)
	}
	return fmt.Sprintf("%s:%s", r.name, rec.Name)
}

func (r *Registry) restoreView(sh *shared) {
	if r.views == nil {
		return
	}
	st, ok := r.views.View(sh.key)
	if !ok {
		return
	}
	if err := sh.db.SetCursor(st.CursorSeq, st.CursorPos); err != nil {
		logger.Debug("saved cursor no longer valid", "key", sh.key, "err", err)
	}
	if st.Display > 0 {
		sh.db.SetDisplayPos(min(st.Display, max(1, sh.db.ConsensusLength())))
	}
}

func (r *Registry) saveView(sh *shared) {
	if r.views == nil {
		return
	}
	c := sh.db.Cursor()
	r.views.SetView(sh.key, ViewState{CursorSeq: c.Seq, CursorPos: c.Pos, Display: sh.db.DisplayPos()})
}
