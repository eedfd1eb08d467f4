package contig

import (
	"go.uber.org/multierr"

	"github.com/kobzarvs/gapedit/internal/logger"
	"github.com/kobzarvs/gapedit/internal/metrics"
	"github.com/kobzarvs/gapedit/internal/store"
)

// Outcome reports whether an applied edit was recorded for undo.
type Outcome int

const (
	Applied Outcome = iota
	// AppliedNotUndoable means the edit took effect but the undo log ran
	// out of room and its history was discarded.
	AppliedNotUndoable
)

func (o Outcome) String() string {
	if o == AppliedNotUndoable {
		return "applied-not-undoable"
	}
	return "applied"
}

// Command names the kind of an undo entry.
type Command int

const (
	CmdShift Command = iota
	CmdInsertBases
	CmdDeleteBases
	CmdReplaceBases
	CmdReorder
	CmdConsensusLength
	CmdAdjustCursor
	CmdAdjustEnds
	CmdBaseConf
	CmdTranspose
	CmdAdjustPositionAnnotation
	CmdAdjustLengthAnnotation
	CmdModifyAnnotation
	CmdInsertAnnotation
	CmdDeleteAnnotation
	CmdDestroyAnnotation
	CmdSetFlags
	CmdSetReference
	CmdAdjustDisplay
)

var commandNames = [...]string{
	CmdShift:                    "shift",
	CmdInsertBases:              "insert-bases",
	CmdDeleteBases:              "delete-bases",
	CmdReplaceBases:             "replace-bases",
	CmdReorder:                  "reorder",
	CmdConsensusLength:          "consensus-length",
	CmdAdjustCursor:             "adjust-cursor",
	CmdAdjustEnds:               "adjust-ends",
	CmdBaseConf:                 "base-conf",
	CmdTranspose:                "transpose",
	CmdAdjustPositionAnnotation: "adjust-position-annotation",
	CmdAdjustLengthAnnotation:   "adjust-length-annotation",
	CmdModifyAnnotation:         "modify-annotation",
	CmdInsertAnnotation:         "insert-annotation",
	CmdDeleteAnnotation:         "delete-annotation",
	CmdDestroyAnnotation:        "destroy-annotation",
	CmdSetFlags:                 "set-flags",
	CmdSetReference:             "set-reference",
	CmdAdjustDisplay:            "adjust-display",
}

func (c Command) String() string {
	if int(c) < len(commandNames) {
		return commandNames[c]
	}
	return "unknown"
}

// entry is one reversible step. Applying it performs the inverse of the
// edit that recorded it and records the inverse of that in turn.
type entry interface {
	base() *entryBase
	command() Command
	size() int
}

// entryBase carries the record flags as they were before the edit;
// they are put back once the inverse has been applied.
type entryBase struct {
	db    *DB
	seq   int
	flags Flags
}

func (b *entryBase) base() *entryBase { return b }

const entryOverhead = 48

type group struct {
	entries []entry
	size    int
}

func (g *group) add(e entry) {
	g.entries = append(g.entries, e)
	g.size += e.size()
}

// UndoLog is a stack of entry groups, one group per transaction. Two
// databases may share a log so that an edit spanning both undoes as a
// unit.
type UndoLog struct {
	groups   []*group
	redo     []*group
	cur      *group
	depth    int
	replay   *group
	budget   int
	used     int
	degraded bool
	// commits counts groups ever recorded; it never goes down.
	commits int
}

// NewUndoLog returns a log bounded to roughly budget bytes of entries.
// A budget of zero or less means unbounded.
func NewUndoLog(budget int) *UndoLog {
	return &UndoLog{budget: budget}
}

func (l *UndoLog) CanUndo() bool { return len(l.groups) > 0 && l.depth == 0 }
func (l *UndoLog) CanRedo() bool { return len(l.redo) > 0 && l.depth == 0 }
func (l *UndoLog) Open() bool    { return l.depth > 0 }

// Len is the number of undoable transactions.
func (l *UndoLog) Len() int { return len(l.groups) }

// Commits is the number of transactions recorded over the log's life.
// Undo, redo and budget trimming leave it unchanged.
func (l *UndoLog) Commits() int { return l.commits }

func (l *UndoLog) begin() {
	if l.depth == 0 {
		l.cur = &group{}
		l.degraded = false
	}
	l.depth++
}

func (l *UndoLog) end() Outcome {
	if l.depth == 0 {
		return Applied
	}
	l.depth--
	if l.depth > 0 {
		if l.degraded {
			return AppliedNotUndoable
		}
		return Applied
	}
	g := l.cur
	l.cur = nil
	if l.degraded {
		l.degraded = false
		metrics.Undo("degraded")
		return AppliedNotUndoable
	}
	if len(g.entries) > 0 {
		l.groups = append(l.groups, g)
		l.commits++
	}
	return Applied
}

func (l *UndoLog) push(e entry) {
	if l.replay != nil {
		l.replay.add(e)
		return
	}
	if l.cur == nil {
		l.begin()
		defer l.end()
	}
	if l.degraded {
		return
	}
	l.clearRedo()

	sz := e.size()
	for l.budget > 0 && l.used+sz > l.budget && len(l.groups) > 0 {
		l.used -= l.groups[0].size
		l.groups[0] = nil
		l.groups = l.groups[1:]
	}
	if l.budget > 0 && l.used+sz > l.budget {
		logger.Warn("undo budget exhausted, discarding history",
			"budget", l.budget, "entry", e.command().String(), "size", sz)
		l.cur.entries = nil
		l.cur.size = 0
		l.used = 0
		l.degraded = true
		return
	}
	l.cur.add(e)
	l.used += sz
}

func (l *UndoLog) clearRedo() {
	for _, g := range l.redo {
		l.used -= g.size
	}
	l.redo = nil
}

// Undo reverts the most recent transaction. It fails while a
// transaction is open or when nothing is recorded.
func (l *UndoLog) Undo() error {
	if l.depth > 0 {
		return ErrTransactionOpen
	}
	if len(l.groups) == 0 {
		return ErrNothingToUndo
	}
	g := l.groups[len(l.groups)-1]
	l.groups = l.groups[:len(l.groups)-1]
	l.used -= g.size

	inverse := &group{}
	err := l.play(g, inverse)
	if len(inverse.entries) > 0 {
		l.redo = append(l.redo, inverse)
		l.used += inverse.size
	}
	if err != nil {
		metrics.Undo("failed")
		return err
	}
	metrics.Undo("undo")
	return nil
}

// Rollback reverts the most recent transaction and leaves nothing to
// redo in its place.
func (l *UndoLog) Rollback() error {
	n := len(l.redo)
	err := l.Undo()
	if len(l.redo) > n {
		l.used -= l.redo[n].size
		l.redo = l.redo[:n]
	}
	return err
}

// Redo reapplies the most recently undone transaction.
func (l *UndoLog) Redo() error {
	if l.depth > 0 {
		return ErrTransactionOpen
	}
	if len(l.redo) == 0 {
		return ErrNothingToRedo
	}
	g := l.redo[len(l.redo)-1]
	l.redo = l.redo[:len(l.redo)-1]
	l.used -= g.size

	inverse := &group{}
	err := l.play(g, inverse)
	if len(inverse.entries) > 0 {
		l.groups = append(l.groups, inverse)
		l.used += inverse.size
	}
	if err != nil {
		metrics.Undo("failed")
		return err
	}
	metrics.Undo("redo")
	return nil
}

func (l *UndoLog) play(g *group, inverse *group) error {
	l.replay = inverse
	defer func() { l.replay = nil }()

	var err error
	touched := make(map[*DB]bool)
	for i := len(g.entries) - 1; i >= 0; i-- {
		e := g.entries[i]
		b := e.base()
		if aerr := b.db.apply(e); aerr != nil {
			logger.Error("undo entry failed", "command", e.command().String(), "seq", b.seq, "err", aerr)
			err = multierr.Append(err, aerr)
			continue
		}
		if b.seq >= 0 && b.seq < len(b.db.recs) {
			b.db.recs[b.seq].Flags = b.flags
		}
		touched[b.db] = true
	}
	for db := range touched {
		db.redraw(RedisplayAll, 0, 0)
	}
	return err
}

// reset drops all recorded history.
func (l *UndoLog) reset() {
	l.groups = nil
	l.redo = nil
	l.used = 0
	if l.cur != nil {
		l.cur.entries = nil
		l.cur.size = 0
	}
}

type shiftEntry struct {
	entryBase
	delta int
}

func (e *shiftEntry) command() Command { return CmdShift }
func (e *shiftEntry) size() int        { return entryOverhead }

// insertBasesEntry restores bases removed by a delete.
type insertBasesEntry struct {
	entryBase
	pos   int
	bases []byte
	conf  []byte
	opos  []int
}

func (e *insertBasesEntry) command() Command { return CmdInsertBases }
func (e *insertBasesEntry) size() int {
	return entryOverhead + len(e.bases) + len(e.conf) + 8*len(e.opos)
}

// deleteBasesEntry removes bases added by an insert.
type deleteBasesEntry struct {
	entryBase
	pos int
	n   int
}

func (e *deleteBasesEntry) command() Command { return CmdDeleteBases }
func (e *deleteBasesEntry) size() int        { return entryOverhead }

type replaceBasesEntry struct {
	entryBase
	pos   int
	bases []byte
	conf  []byte
	opos  []int
}

func (e *replaceBasesEntry) command() Command { return CmdReplaceBases }
func (e *replaceBasesEntry) size() int {
	return entryOverhead + len(e.bases) + len(e.conf) + 8*len(e.opos)
}

type reorderEntry struct {
	entryBase
	slot int
}

func (e *reorderEntry) command() Command { return CmdReorder }
func (e *reorderEntry) size() int        { return entryOverhead }

type consensusLengthEntry struct {
	entryBase
	length int
}

func (e *consensusLengthEntry) command() Command { return CmdConsensusLength }
func (e *consensusLengthEntry) size() int        { return entryOverhead }

type cursorEntry struct {
	entryBase
	cursor Cursor
}

func (e *cursorEntry) command() Command { return CmdAdjustCursor }
func (e *cursorEntry) size() int        { return entryOverhead }

type endsEntry struct {
	entryBase
	start, end, length, relPos int
}

func (e *endsEntry) command() Command { return CmdAdjustEnds }
func (e *endsEntry) size() int        { return entryOverhead }

type confEntry struct {
	entryBase
	pos  int
	conf byte
}

func (e *confEntry) command() Command { return CmdBaseConf }
func (e *confEntry) size() int        { return entryOverhead }

type transposeEntry struct {
	entryBase
	pos int
}

func (e *transposeEntry) command() Command { return CmdTranspose }
func (e *transposeEntry) size() int        { return entryOverhead }

type tagPositionEntry struct {
	entryBase
	tag *Tag
	pos int
}

func (e *tagPositionEntry) command() Command { return CmdAdjustPositionAnnotation }
func (e *tagPositionEntry) size() int        { return entryOverhead }

type tagLengthEntry struct {
	entryBase
	tag    *Tag
	length int
}

func (e *tagLengthEntry) command() Command { return CmdAdjustLengthAnnotation }
func (e *tagLengthEntry) size() int        { return entryOverhead }

type tagModifyEntry struct {
	entryBase
	tag     *Tag
	typ     store.TagType
	sense   int
	comment string
}

func (e *tagModifyEntry) command() Command { return CmdModifyAnnotation }
func (e *tagModifyEntry) size() int        { return entryOverhead + len(e.comment) }

// tagInsertEntry relinks a tag that was removed from its list.
type tagInsertEntry struct {
	entryBase
	tag *Tag
}

func (e *tagInsertEntry) command() Command { return CmdInsertAnnotation }
func (e *tagInsertEntry) size() int        { return entryOverhead }

// tagDeleteEntry unlinks a tag that was relinked.
type tagDeleteEntry struct {
	entryBase
	tag *Tag
}

func (e *tagDeleteEntry) command() Command { return CmdDeleteAnnotation }
func (e *tagDeleteEntry) size() int        { return entryOverhead }

// tagDestroyEntry unlinks a tag that was created in this session.
type tagDestroyEntry struct {
	entryBase
	tag *Tag
}

func (e *tagDestroyEntry) command() Command { return CmdDestroyAnnotation }
func (e *tagDestroyEntry) size() int        { return entryOverhead }

// flagsEntry only restores the saved flags.
type flagsEntry struct {
	entryBase
}

func (e *flagsEntry) command() Command { return CmdSetFlags }
func (e *flagsEntry) size() int        { return entryOverhead }

type referenceEntry struct {
	entryBase
	offset int
}

func (e *referenceEntry) command() Command { return CmdSetReference }
func (e *referenceEntry) size() int        { return entryOverhead }

type displayEntry struct {
	entryBase
	pos int
}

func (e *displayEntry) command() Command { return CmdAdjustDisplay }
func (e *displayEntry) size() int        { return entryOverhead }
