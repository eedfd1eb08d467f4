// Package contig is the in-memory editing database for one contig: the
// records (consensus plus readings), their position order, annotations,
// the undo log, and the operations that edit, complement and save them.
package contig

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/kobzarvs/gapedit/internal/config"
	"github.com/kobzarvs/gapedit/internal/logger"
	"github.com/kobzarvs/gapedit/internal/store"
)

var (
	ErrBusy            = errors.New("contig busy")
	ErrReadOnly        = errors.New("contig opened read-only")
	ErrBoundsExceeded  = errors.New("position out of bounds")
	ErrIO              = errors.New("store i/o error")
	ErrNotFound        = errors.New("no such record")
	ErrTransactionOpen = errors.New("undo transaction open")
	ErrNothingToUndo   = errors.New("nothing to undo")
	ErrNothingToRedo   = errors.New("nothing to redo")
)

// Redisplay describes what a change invalidated.
type Redisplay uint

const (
	RedisplayRead Redisplay = 1 << iota
	RedisplayConsensus
	RedisplayPositions
	RedisplayCursor
	RedisplayTags

	RedisplayAll = RedisplayRead | RedisplayConsensus | RedisplayPositions | RedisplayCursor | RedisplayTags
)

// RedisplayFunc receives change notifications; seq and pos locate the
// change when it is local.
type RedisplayFunc func(what Redisplay, seq, pos int)

type EventKind int

const (
	EventLength EventKind = iota
	EventJoin
	EventComplement
	EventCursor
	EventQuit
	EventRenumber
)

func (k EventKind) String() string {
	switch k {
	case EventLength:
		return "length"
	case EventJoin:
		return "join"
	case EventComplement:
		return "complement"
	case EventCursor:
		return "cursor"
	case EventQuit:
		return "quit"
	case EventRenumber:
		return "renumber"
	}
	return "unknown"
}

// Event is a contig-level notification.
type Event struct {
	Kind   EventKind
	Length int
	// Into and Offset describe a join: this contig was merged into
	// contig Into with its positions shifted by Offset. For a renumber
	// Into is the new contig number.
	Into   int
	Offset int
	Cursor Cursor
}

// Notifier delivers contig events to other listeners of the same contig.
type Notifier interface {
	Notify(ctx context.Context, contig int, ev Event)
}

type Options struct {
	MaxRecords int
	UndoBudget int
	PadBlock   int
	ReadOnly   bool
	Notifier   Notifier
}

func OptionsFromConfig(cfg config.EditorOptions) Options {
	return Options{
		MaxRecords: cfg.MaxRecords,
		UndoBudget: cfg.UndoBudget,
		PadBlock:   cfg.PadBlock,
	}
}

// Note is a free-text note attached to the contig.
type Note struct {
	ID   int
	Type store.TagType
	Text string
}

// DB is the editing database of one contig. Record 0 is the consensus;
// records 1..N are readings. It is not safe for concurrent use.
type DB struct {
	ContigID int

	store store.Store
	opts  Options

	recs  []*Record
	order []int
	slot  []int

	undo      *UndoLog
	cursor    Cursor
	display   int
	redisplay RedisplayFunc

	notes      []Note
	notesSaved int

	savedLength int
	maxLen      int
}

// Load reads contig id and all its readings, tags and notes from s.
func Load(ctx context.Context, s store.Store, id int, opts Options) (*DB, error) {
	c, err := s.Contig(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: contig %d: %v", ErrIO, id, err)
	}

	db := &DB{
		ContigID:    id,
		store:       s,
		opts:        opts,
		undo:        NewUndoLog(opts.UndoBudget),
		savedLength: c.Length,
		cursor:      Cursor{Seq: 0, Pos: 1},
		display:     1,
	}

	cons := &Record{Name: "consensus", RelPos: 1, Flags: FlagLoaded, tags: &Tag{}}
	db.recs = append(db.recs, cons)

	for rid := c.Left; rid != 0; {
		if opts.MaxRecords > 0 && len(db.recs) > opts.MaxRecords {
			return nil, fmt.Errorf("%w: contig %d has more than %d readings", ErrIO, id, opts.MaxRecords)
		}
		rd, err := s.Reading(ctx, rid)
		if err != nil {
			return nil, fmt.Errorf("%w: reading %d: %v", ErrIO, rid, err)
		}
		r := newRecordFromReading(rd)
		if err := db.loadTags(ctx, r, rd.TagHead); err != nil {
			return nil, err
		}
		db.recs = append(db.recs, r)
		db.maxLen = max(db.maxLen, r.Length)
		rid = rd.Right
	}

	if err := db.loadTags(ctx, cons, c.TagHead); err != nil {
		return nil, err
	}

	notes, err := store.NoteChain(ctx, s, c.NoteHead)
	if err != nil {
		return nil, fmt.Errorf("%w: notes of contig %d: %v", ErrIO, id, err)
	}
	for _, n := range notes {
		db.notes = append(db.notes, Note{ID: n.ID, Type: n.Type, Text: n.Text})
	}
	db.notesSaved = len(db.notes)

	db.buildOrder()
	for _, r := range db.recs {
		r.Flags &^= FlagModified
	}
	cons.Length = db.computeLength()

	logger.Debug("contig loaded", "contig", id, "readings", db.NumReadings(), "length", cons.Length)
	return db, nil
}

func (db *DB) loadTags(ctx context.Context, r *Record, head int) error {
	tags, err := store.TagChain(ctx, db.store, head)
	if err != nil {
		return fmt.Errorf("%w: tags of %q: %v", ErrIO, r.Name, err)
	}
	last := r.tags
	for _, st := range tags {
		t := &Tag{
			Position:   st.Position,
			Length:     st.Length,
			Type:       st.Type,
			Sense:      st.Sense,
			OriginalID: st.ID,
			commentID:  st.Comment,
			diskNext:   st.Next,
		}
		last.next = t
		last = t
		r.savedIDs = append(r.savedIDs, st.ID)
	}
	return nil
}

// Free releases the in-memory state. The DB must not be used afterwards.
func (db *DB) Free() {
	db.undo.reset()
	db.recs = nil
	db.order = nil
	db.slot = nil
	db.notes = nil
}

func (db *DB) Store() store.Store { return db.store }

func (db *DB) NumReadings() int { return len(db.recs) - 1 }

// Record returns record seq, 0 being the consensus.
func (db *DB) Record(seq int) (*Record, error) {
	if seq < 0 || seq >= len(db.recs) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, seq)
	}
	return db.recs[seq], nil
}

// Lookup finds a reading by name.
func (db *DB) Lookup(name string) (int, bool) {
	for i := 1; i < len(db.recs); i++ {
		if db.recs[i].Name == name {
			return i, true
		}
	}
	return 0, false
}

func (db *DB) ConsensusLength() int { return db.recs[0].Length }

// Order returns the reading indexes in position order.
func (db *DB) Order() []int { return append([]int(nil), db.order...) }

// First and Last are the leftmost and rightmost readings, 0 if empty.
func (db *DB) First() int {
	if len(db.order) == 0 {
		return 0
	}
	return db.order[0]
}

func (db *DB) Last() int {
	if len(db.order) == 0 {
		return 0
	}
	return db.order[len(db.order)-1]
}

func (db *DB) Notes() []Note { return append([]Note(nil), db.notes...) }

// AddNote appends a note; it is written on the next Save.
func (db *DB) AddNote(typ, text string) {
	db.notes = append(db.notes, Note{Type: store.NewTagType(typ), Text: text})
	db.recs[0].Flags |= FlagNoteModified
}

func (db *DB) Cursor() Cursor         { return db.cursor }
func (db *DB) DisplayPos() int        { return db.display }
func (db *DB) ReadOnly() bool         { return db.opts.ReadOnly }
func (db *DB) Options() Options       { return db.opts }
func (db *DB) UndoLog() *UndoLog      { return db.undo }
func (db *DB) SetNotifier(n Notifier) { db.opts.Notifier = n }

func (db *DB) SetRedisplay(fn RedisplayFunc) { db.redisplay = fn }

func (db *DB) redraw(what Redisplay, seq, pos int) {
	if db.redisplay != nil {
		db.redisplay(what, seq, pos)
	}
}

func (db *DB) notify(ctx context.Context, ev Event) {
	if db.opts.Notifier != nil {
		db.opts.Notifier.Notify(ctx, db.ContigID, ev)
	}
}

// Modified reports whether any record has unsaved changes.
func (db *DB) Modified() bool {
	for _, r := range db.recs {
		if r.Flags&FlagModified != 0 {
			return true
		}
	}
	return false
}

// buildOrder sorts every reading by position, ties broken by index.
func (db *DB) buildOrder() {
	n := len(db.recs) - 1
	db.order = make([]int, n)
	for i := range db.order {
		db.order[i] = i + 1
	}
	sort.SliceStable(db.order, func(a, b int) bool {
		return db.less(db.order[a], db.order[b])
	})
	db.slot = make([]int, len(db.recs))
	for k, seq := range db.order {
		db.slot[seq] = k
	}
	db.relink(0, n-1)
}

func (db *DB) less(a, b int) bool {
	ra, rb := db.recs[a], db.recs[b]
	if ra.RelPos != rb.RelPos {
		return ra.RelPos < rb.RelPos
	}
	return a < b
}

// relink refreshes prev/next of the readings in slots lo..hi and their
// outer neighbours, marking changed links.
func (db *DB) relink(lo, hi int) {
	lo = max(lo-1, 0)
	hi = min(hi+1, len(db.order)-1)
	for k := lo; k <= hi; k++ {
		r := db.recs[db.order[k]]
		prev, next := 0, 0
		if k > 0 {
			prev = db.order[k-1]
		}
		if k+1 < len(db.order) {
			next = db.order[k+1]
		}
		if r.prev != prev || r.next != next {
			r.prev, r.next = prev, next
			if r.Flags&FlagLoaded != 0 {
				r.Flags |= FlagRelModified
			}
		}
	}
}

// moveTo puts seq at slot k of the order, sliding the records between.
func (db *DB) moveTo(seq, k int) {
	from := db.slot[seq]
	if from == k {
		return
	}
	if from < k {
		copy(db.order[from:k], db.order[from+1:k+1])
	} else {
		copy(db.order[k+1:from+1], db.order[k:from])
	}
	db.order[k] = seq
	lo, hi := min(from, k), max(from, k)
	for s := lo; s <= hi; s++ {
		db.slot[db.order[s]] = s
	}
	db.relink(lo, hi)
}

// sortedSlot returns where seq belongs given its current position.
func (db *DB) sortedSlot(seq int) int {
	k := db.slot[seq]
	for k > 0 && db.less(seq, db.order[k-1]) {
		k--
	}
	if k != db.slot[seq] {
		return k
	}
	for k+1 < len(db.order) && db.less(db.order[k+1], seq) {
		k++
	}
	return k
}

// PositionToIndex returns the first reading in position order that
// covers pos or starts after it, or 0 when there is none.
func (db *DB) PositionToIndex(pos int) int {
	n := len(db.order)
	k := sort.Search(n, func(i int) bool { return db.recs[db.order[i]].RelPos >= pos })
	for i := k - 1; i >= 0; i-- {
		r := db.recs[db.order[i]]
		if r.RelPos+db.maxLen <= pos {
			break
		}
		if r.Last() >= pos {
			k = i
		}
	}
	if k >= n {
		return 0
	}
	return db.order[k]
}

// computeLength is the rightmost column covered by any reading.
func (db *DB) computeLength() int {
	length := 0
	for _, r := range db.recs[1:] {
		length = max(length, r.Last())
	}
	return length
}

// Covering lists the readings covering column pos, in position order.
func (db *DB) Covering(pos int) []int {
	var out []int
	for _, seq := range db.order {
		r := db.recs[seq]
		if r.RelPos > pos {
			break
		}
		if r.Last() >= pos {
			out = append(out, seq)
		}
	}
	return out
}

func (db *DB) writable() error {
	if db.opts.ReadOnly {
		return ErrReadOnly
	}
	if db.recs == nil {
		return fmt.Errorf("%w: contig %d freed", ErrNotFound, db.ContigID)
	}
	return nil
}

func (db *DB) reading(seq int) (*Record, error) {
	if seq < 1 || seq >= len(db.recs) {
		return nil, fmt.Errorf("%w: reading %d", ErrNotFound, seq)
	}
	return db.recs[seq], nil
}

// Reload replaces the in-memory state with contig id as persisted,
// keeping the redisplay callback.
func (db *DB) Reload(ctx context.Context, id int) error {
	fresh, err := Load(ctx, db.store, id, db.opts)
	if err != nil {
		return err
	}
	redisplay := db.redisplay
	*db = *fresh
	db.redisplay = redisplay
	db.redraw(RedisplayAll, 0, 0)
	return nil
}
