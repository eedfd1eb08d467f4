package contig

import (
	"fmt"
	"slices"

	"github.com/kobzarvs/gapedit/internal/coord"
	"github.com/kobzarvs/gapedit/internal/metrics"
)

// InsertConf is the confidence given to bases typed by the user.
const InsertConf = 100

func (db *DB) record(e entry, seq int) {
	db.recordFlags(e, seq, db.recs[seq].Flags)
}

func (db *DB) recordFlags(e entry, seq int, flags Flags) {
	b := e.base()
	b.db = db
	b.seq = seq
	b.flags = flags
	db.undo.push(e)
}

func (db *DB) edited(command string, what Redisplay, seq, pos int) {
	metrics.Edit(command)
	db.redraw(what, seq, pos)
}

// Begin opens an undo transaction; edits until the matching Commit undo
// as one step. Transactions nest.
func (db *DB) Begin() { db.undo.begin() }

// Commit closes the innermost transaction.
func (db *DB) Commit() Outcome { return db.undo.end() }

func (db *DB) Undo() error { return db.undo.Undo() }
func (db *DB) Redo() error { return db.undo.Redo() }

// ResetEdits forgets the undo history and marks every record clean.
func (db *DB) ResetEdits() {
	db.undo.reset()
	for _, r := range db.recs {
		r.Flags &^= FlagModified
	}
}

// ShareUndo makes other record into this database's undo log, so a
// transaction can span both. other's own history is dropped.
func (db *DB) ShareUndo(other *DB) error {
	if db.undo.Open() || other.undo.Open() {
		return ErrTransactionOpen
	}
	other.undo.reset()
	other.undo = db.undo
	return nil
}

// DetachUndo gives db a fresh log of its own.
func (db *DB) DetachUndo() {
	db.undo = NewUndoLog(db.opts.UndoBudget)
}

// apply replays an undo entry through the primitives, which record the
// inverse.
func (db *DB) apply(e entry) error {
	seq := e.base().seq
	if seq < 0 || seq >= len(db.recs) {
		return fmt.Errorf("%w: undo %s on record %d", ErrNotFound, e.command(), seq)
	}
	switch e := e.(type) {
	case *shiftEntry:
		db.shiftSeq(seq, e.delta)
	case *insertBasesEntry:
		db.insertBases(seq, e.pos, e.bases, e.conf, e.opos)
	case *deleteBasesEntry:
		db.deleteBases(seq, e.pos, e.n)
	case *replaceBasesEntry:
		db.replaceBases(seq, e.pos, e.bases, e.conf, e.opos)
	case *reorderEntry:
		db.reorder(seq, min(e.slot, len(db.order)-1))
	case *consensusLengthEntry:
		db.setConsensusLength(e.length)
	case *cursorEntry:
		db.setCursor(e.cursor)
	case *endsEntry:
		db.setEnds(seq, e.start, e.end, e.relPos)
	case *confEntry:
		db.setConf(seq, e.pos, e.conf)
	case *transposeEntry:
		db.transpose(seq, e.pos)
	case *tagPositionEntry:
		db.setTagPosition(seq, e.tag, e.pos)
	case *tagLengthEntry:
		db.setTagLength(seq, e.tag, e.length)
	case *tagModifyEntry:
		db.modifyTag(seq, e.tag, e.typ, e.sense, e.comment)
	case *tagInsertEntry:
		db.relinkTag(seq, e.tag)
	case *tagDeleteEntry:
		db.deleteTag(seq, e.tag)
	case *tagDestroyEntry:
		db.deleteTag(seq, e.tag)
	case *flagsEntry:
		db.record(&flagsEntry{}, seq)
	case *referenceEntry:
		db.setReference(seq, db.recs[seq].Flags, e.offset)
	case *displayEntry:
		db.setDisplay(e.pos)
	default:
		return fmt.Errorf("unknown undo entry %T", e)
	}
	return nil
}

// insertBases puts bases before used position pos of seq. For the
// consensus only the consensus annotations move; readings are padded by
// the caller.
func (db *DB) insertBases(seq, pos int, bases, conf []byte, opos []int) {
	n := len(bases)
	r := db.recs[seq]
	db.record(&deleteBasesEntry{pos: pos, n: n}, seq)
	if seq == 0 {
		db.shiftTagsForInsert(0, pos, n)
		return
	}

	raw := r.Start + pos - 1
	if conf == nil {
		conf = make([]byte, n)
		for i := range conf {
			conf[i] = InsertConf
		}
	}
	if opos == nil {
		opos = make([]int, n)
	}
	r.Seq = slices.Insert(r.Seq, raw, bases...)
	r.Conf = slices.Insert(r.Conf, raw, conf...)
	r.OrigPos = slices.Insert(r.OrigPos, raw, opos...)
	r.Length += n
	r.Length2 += n
	r.End += n
	db.shiftTagsForInsert(seq, raw+1, n)
	r.Flags |= FlagSeqModified
	db.maxLen = max(db.maxLen, r.Length)
}

// deleteBases removes n bases from used position pos of seq. Annotation
// entries are recorded before the bases entry so that undo restores the
// bases first and then the absolute annotation values.
func (db *DB) deleteBases(seq, pos, n int) {
	r := db.recs[seq]
	flags := r.Flags
	if seq == 0 {
		db.shiftTagsForDelete(0, pos, n)
		db.recordFlags(&insertBasesEntry{pos: pos, bases: make([]byte, n)}, 0, flags)
		return
	}

	raw := r.Start + pos - 1
	db.shiftTagsForDelete(seq, raw+1, n)
	db.recordFlags(&insertBasesEntry{
		pos:   pos,
		bases: slices.Clone(r.Seq[raw : raw+n]),
		conf:  slices.Clone(r.Conf[raw : raw+n]),
		opos:  slices.Clone(r.OrigPos[raw : raw+n]),
	}, seq, flags)

	r.Seq = slices.Delete(r.Seq, raw, raw+n)
	r.Conf = slices.Delete(r.Conf, raw, raw+n)
	r.OrigPos = slices.Delete(r.OrigPos, raw, raw+n)
	r.Length -= n
	r.Length2 -= n
	r.End -= n
	r.Flags |= FlagSeqModified
}

func (db *DB) replaceBases(seq, pos int, bases, conf []byte, opos []int) {
	r := db.recs[seq]
	raw := r.Start + pos - 1
	n := len(bases)
	db.record(&replaceBasesEntry{
		pos:   pos,
		bases: slices.Clone(r.Seq[raw : raw+n]),
		conf:  slices.Clone(r.Conf[raw : raw+n]),
		opos:  slices.Clone(r.OrigPos[raw : raw+n]),
	}, seq)
	copy(r.Seq[raw:], bases)
	copy(r.Conf[raw:], conf)
	copy(r.OrigPos[raw:], opos)
	r.Flags |= FlagSeqModified
}

// shiftSeq moves seq by delta columns. The reorder entry goes first so
// that undo shifts back before it restores the slot.
func (db *DB) shiftSeq(seq, delta int) {
	r := db.recs[seq]
	db.record(&reorderEntry{slot: db.slot[seq]}, seq)
	db.record(&shiftEntry{delta: -delta}, seq)
	r.RelPos += delta
	db.moveTo(seq, db.sortedSlot(seq))
	r.Flags |= FlagRelModified
}

func (db *DB) reorder(seq, k int) {
	db.record(&reorderEntry{slot: db.slot[seq]}, seq)
	db.moveTo(seq, k)
}

func (db *DB) setConsensusLength(n int) {
	db.record(&consensusLengthEntry{length: db.recs[0].Length}, 0)
	db.recs[0].Length = n
}

// syncLength records a consensus length change if the readings moved
// its right end.
func (db *DB) syncLength() {
	if n := db.computeLength(); n != db.recs[0].Length {
		db.setConsensusLength(n)
	}
}

func (db *DB) setCursor(c Cursor) {
	db.record(&cursorEntry{cursor: db.cursor}, 0)
	db.cursor = c
}

func (db *DB) setDisplay(pos int) {
	db.record(&displayEntry{pos: db.display}, 0)
	db.display = pos
}

func (db *DB) setEnds(seq, start, end, relPos int) {
	r := db.recs[seq]
	db.record(&reorderEntry{slot: db.slot[seq]}, seq)
	db.record(&endsEntry{start: r.Start, end: r.End, length: r.Length, relPos: r.RelPos}, seq)
	r.Start = start
	r.End = end
	r.Length = end - start - 1
	r.RelPos = relPos
	db.moveTo(seq, db.sortedSlot(seq))
	r.Flags |= FlagSeqModified | FlagRelModified
	db.maxLen = max(db.maxLen, r.Length)
}

func (db *DB) setConf(seq, pos int, conf byte) {
	r := db.recs[seq]
	raw := r.Start + pos - 1
	db.record(&confEntry{pos: pos, conf: r.Conf[raw]}, seq)
	r.Conf[raw] = conf
	r.Flags |= FlagSeqModified
}

func (db *DB) transpose(seq, pos int) {
	r := db.recs[seq]
	raw := r.Start + pos - 1
	db.record(&transposeEntry{pos: pos}, seq)
	r.Seq[raw], r.Seq[raw+1] = r.Seq[raw+1], r.Seq[raw]
	r.Conf[raw], r.Conf[raw+1] = r.Conf[raw+1], r.Conf[raw]
	r.OrigPos[raw], r.OrigPos[raw+1] = r.OrigPos[raw+1], r.OrigPos[raw]
	r.Flags |= FlagSeqModified
}

func (db *DB) setFlags(seq int, flags Flags) {
	db.record(&flagsEntry{}, seq)
	db.recs[seq].Flags = flags
}

func (db *DB) setReference(seq int, flags Flags, offset int) {
	r := db.recs[seq]
	db.record(&referenceEntry{offset: r.RefOffset}, seq)
	r.RefOffset = offset
	r.Flags = flags
}

func validBases(bases []byte) error {
	for _, b := range bases {
		switch {
		case b >= 'A' && b <= 'Z', b >= 'a' && b <= 'z', b == coord.Pad, b == '-':
		default:
			return fmt.Errorf("%w: invalid base %q", ErrBoundsExceeded, b)
		}
	}
	return nil
}

// InsertBases inserts bases before used position pos of reading seq.
// Inserting into the consensus (seq 0) inserts pad columns instead.
func (db *DB) InsertBases(seq, pos int, bases []byte) (Outcome, error) {
	if seq == 0 {
		return db.InsertBasesConsensus(pos, len(bases))
	}
	if err := db.writable(); err != nil {
		return Applied, err
	}
	r, err := db.reading(seq)
	if err != nil {
		return Applied, err
	}
	if len(bases) == 0 || pos < 1 || pos > r.Length+1 {
		return Applied, fmt.Errorf("%w: insert %d at %d into %q (length %d)", ErrBoundsExceeded, len(bases), pos, r.Name, r.Length)
	}
	if err := validBases(bases); err != nil {
		return Applied, err
	}

	db.undo.begin()
	db.insertBases(seq, pos, slices.Clone(bases), nil, nil)
	if db.cursor.Seq == seq && db.cursor.Pos >= pos {
		db.setCursor(Cursor{Seq: seq, Pos: db.cursor.Pos + len(bases)})
	}
	db.syncLength()
	out := db.undo.end()
	db.edited("insert", RedisplayRead|RedisplayConsensus, seq, pos)
	return out, nil
}

// DeleteBases removes up to n bases from used position pos of reading
// seq. n is clamped to the end of the reading; a delete that would
// empty the reading is rejected.
func (db *DB) DeleteBases(seq, pos, n int) (Outcome, error) {
	if seq == 0 {
		return db.DeleteBasesConsensus(pos, n)
	}
	if err := db.writable(); err != nil {
		return Applied, err
	}
	r, err := db.reading(seq)
	if err != nil {
		return Applied, err
	}
	if pos < 1 || pos > r.Length {
		return Applied, fmt.Errorf("%w: delete at %d of %q (length %d)", ErrBoundsExceeded, pos, r.Name, r.Length)
	}
	n = min(n, r.Length-pos+1)
	if n <= 0 || r.Length-n <= 0 {
		return Applied, fmt.Errorf("%w: delete %d at %d would empty %q", ErrBoundsExceeded, n, pos, r.Name)
	}

	db.undo.begin()
	db.deleteBases(seq, pos, n)
	if db.cursor.Seq == seq && db.cursor.Pos > pos {
		db.setCursor(Cursor{Seq: seq, Pos: max(pos, db.cursor.Pos-n)})
	}
	db.syncLength()
	out := db.undo.end()
	db.edited("delete", RedisplayRead|RedisplayConsensus, seq, pos)
	return out, nil
}

// ReplaceBases overwrites bases starting at used position pos.
func (db *DB) ReplaceBases(seq, pos int, bases []byte) (Outcome, error) {
	if err := db.writable(); err != nil {
		return Applied, err
	}
	r, err := db.reading(seq)
	if err != nil {
		return Applied, err
	}
	if len(bases) == 0 || pos < 1 || pos+len(bases)-1 > r.Length {
		return Applied, fmt.Errorf("%w: replace %d at %d of %q", ErrBoundsExceeded, len(bases), pos, r.Name)
	}
	if err := validBases(bases); err != nil {
		return Applied, err
	}
	conf := make([]byte, len(bases))
	for i := range conf {
		conf[i] = InsertConf
	}

	db.undo.begin()
	db.replaceBases(seq, pos, bases, conf, make([]int, len(bases)))
	out := db.undo.end()
	db.edited("replace", RedisplayRead|RedisplayConsensus, seq, pos)
	return out, nil
}

// ShiftRight moves reading seq n columns right.
func (db *DB) ShiftRight(seq, n int) (Outcome, error) {
	if err := db.writable(); err != nil {
		return Applied, err
	}
	if _, err := db.reading(seq); err != nil {
		return Applied, err
	}
	if n <= 0 {
		return Applied, fmt.Errorf("%w: shift by %d", ErrBoundsExceeded, n)
	}
	db.undo.begin()
	db.shiftSeq(seq, n)
	db.syncLength()
	out := db.undo.end()
	db.edited("shift", RedisplayPositions, seq, 0)
	return out, nil
}

// ShiftLeft moves reading seq up to n columns left, never past column 1.
func (db *DB) ShiftLeft(seq, n int) (Outcome, error) {
	if err := db.writable(); err != nil {
		return Applied, err
	}
	r, err := db.reading(seq)
	if err != nil {
		return Applied, err
	}
	n = min(n, r.RelPos-1)
	if n <= 0 {
		return Applied, fmt.Errorf("%w: %q cannot move left", ErrBoundsExceeded, r.Name)
	}
	db.undo.begin()
	db.shiftSeq(seq, -n)
	db.syncLength()
	out := db.undo.end()
	db.edited("shift", RedisplayPositions, seq, 0)
	return out, nil
}

// AdjustEnds moves the cutoff boundaries of reading seq. Positive left
// reveals left cutoff bases, shifting the reading left to keep its
// bases in their columns; positive right reveals right cutoff bases.
// Negative values hide bases.
func (db *DB) AdjustEnds(seq, left, right int) (Outcome, error) {
	if err := db.writable(); err != nil {
		return Applied, err
	}
	r, err := db.reading(seq)
	if err != nil {
		return Applied, err
	}
	start, end, relPos := r.Start-left, r.End+right, r.RelPos-left
	if start < 0 || end > r.Length2+1 || end-start-1 < 1 || relPos < 1 {
		return Applied, fmt.Errorf("%w: ends %+d/%+d of %q", ErrBoundsExceeded, left, right, r.Name)
	}
	db.undo.begin()
	db.setEnds(seq, start, end, relPos)
	db.syncLength()
	out := db.undo.end()
	db.edited("adjust-ends", RedisplayRead|RedisplayConsensus, seq, 0)
	return out, nil
}

func (db *DB) AdjustBaseConf(seq, pos int, conf byte) (Outcome, error) {
	if err := db.writable(); err != nil {
		return Applied, err
	}
	r, err := db.reading(seq)
	if err != nil {
		return Applied, err
	}
	if pos < 1 || pos > r.Length {
		return Applied, fmt.Errorf("%w: confidence at %d of %q", ErrBoundsExceeded, pos, r.Name)
	}
	db.undo.begin()
	db.setConf(seq, pos, conf)
	out := db.undo.end()
	db.edited("conf", RedisplayRead, seq, pos)
	return out, nil
}

// TransposeBases swaps the bases at used positions pos and pos+1.
func (db *DB) TransposeBases(seq, pos int) (Outcome, error) {
	if err := db.writable(); err != nil {
		return Applied, err
	}
	r, err := db.reading(seq)
	if err != nil {
		return Applied, err
	}
	if pos < 1 || pos+1 > r.Length {
		return Applied, fmt.Errorf("%w: transpose at %d of %q", ErrBoundsExceeded, pos, r.Name)
	}
	db.undo.begin()
	db.transpose(seq, pos)
	out := db.undo.end()
	db.edited("transpose", RedisplayRead|RedisplayConsensus, seq, pos)
	return out, nil
}

// SetFlags sets the bits in set and then clears those in clear on record
// seq. FlagLoaded belongs to the database and is never changed.
func (db *DB) SetFlags(seq int, set, clear Flags) (Outcome, error) {
	if _, err := db.Record(seq); err != nil {
		return Applied, err
	}
	flags := (db.recs[seq].Flags | set&^FlagLoaded) &^ (clear &^ FlagLoaded)
	db.undo.begin()
	db.setFlags(seq, flags)
	out := db.undo.end()
	db.edited("set-flags", RedisplayRead, seq, 0)
	return out, nil
}

// SetSelected toggles the selection flag of a record.
func (db *DB) SetSelected(seq int, on bool) (Outcome, error) {
	if on {
		return db.SetFlags(seq, FlagSelected, 0)
	}
	return db.SetFlags(seq, 0, FlagSelected)
}

// SetReference marks reading seq as the numbering reference, with
// offset added to its positions. At most one reading is the reference.
func (db *DB) SetReference(seq int, on bool, offset int) (Outcome, error) {
	if err := db.writable(); err != nil {
		return Applied, err
	}
	if _, err := db.reading(seq); err != nil {
		return Applied, err
	}
	db.undo.begin()
	if on {
		for i := 1; i < len(db.recs); i++ {
			if i != seq && db.recs[i].Flags&FlagReference != 0 {
				db.setReference(i, db.recs[i].Flags&^FlagReference, 0)
			}
		}
		db.setReference(seq, db.recs[seq].Flags|FlagReference, offset)
	} else {
		db.setReference(seq, db.recs[seq].Flags&^FlagReference, 0)
	}
	out := db.undo.end()
	db.edited("reference", RedisplayRead, seq, 0)
	return out, nil
}

// Reference returns the reference reading, 0 if none.
func (db *DB) Reference() int {
	for i := 1; i < len(db.recs); i++ {
		if db.recs[i].Flags&FlagReference != 0 {
			return i
		}
	}
	return 0
}

// SetCursor moves the edit cursor without recording undo.
func (db *DB) SetCursor(seq, pos int) error {
	r, err := db.Record(seq)
	if err != nil {
		return err
	}
	if pos < 1 || pos > r.Length+1 {
		return fmt.Errorf("%w: cursor %d on record %d", ErrBoundsExceeded, pos, seq)
	}
	db.cursor = Cursor{Seq: seq, Pos: pos}
	db.redraw(RedisplayCursor, seq, pos)
	return nil
}

// SetDisplayPos scrolls the display to contig column pos.
func (db *DB) SetDisplayPos(pos int) {
	db.display = max(1, pos)
	db.redraw(RedisplayPositions, 0, db.display)
}

// OrigPos maps used position pos of reading seq back to its original
// base number.
func (db *DB) OrigPos(seq, pos int) (int, error) {
	r, err := db.reading(seq)
	if err != nil {
		return 0, err
	}
	return coord.OrigPos(r.OrigPos, r.Start+pos, r.Complemented), nil
}
