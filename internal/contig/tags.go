package contig

import (
	"context"
	"fmt"

	"github.com/kobzarvs/gapedit/internal/store"
)

// TagFlags mark which persisted fields of a tag are stale.
type TagFlags uint8

const (
	TagPositionChanged TagFlags = 1 << iota
	TagLengthChanged
	TagTypeChanged
	TagCommentChanged
	TagSenseChanged
	TagInserted
	TagNextChanged

	tagChanged = TagPositionChanged | TagLengthChanged | TagTypeChanged |
		TagCommentChanged | TagSenseChanged | TagInserted
)

// Tag is an annotation. Reading tags are positioned in the full buffer
// (cutoffs included) in the reading's current orientation; consensus
// tags in contig columns.
type Tag struct {
	Position int
	Length   int
	Type     store.TagType
	Sense    int
	// OriginalID is the persisted tag id, 0 until first saved.
	OriginalID int
	Flags      TagFlags

	comment       string
	commentID     int
	commentLoaded bool
	diskNext      int
	next          *Tag
}

// End is the last position covered.
func (t *Tag) End() int { return t.Position + t.Length - 1 }

// insertSorted links t after every tag at or before its position.
func insertSorted(head, t *Tag) {
	p := head
	for p.next != nil && p.next.Position <= t.Position {
		p = p.next
	}
	t.next = p.next
	p.next = t
	p.Flags |= TagNextChanged
}

func unlink(head, t *Tag) bool {
	for p := head; p.next != nil; p = p.next {
		if p.next == t {
			p.next = t.next
			p.Flags |= TagNextChanged
			t.next = nil
			return true
		}
	}
	return false
}

// resort moves t if a position change broke the list order.
func resort(head, t *Tag) {
	var prev *Tag
	for p := head; p.next != nil; p = p.next {
		if p.next == t {
			prev = p
			break
		}
	}
	if prev == nil {
		return
	}
	if (prev == head || prev.Position <= t.Position) && (t.next == nil || t.Position <= t.next.Position) {
		return
	}
	unlink(head, t)
	insertSorted(head, t)
}

// shiftTagsForInsert adjusts the tags of r for n bases inserted before
// raw position p. Tags ending before p stay, tags starting at or after p
// move right, tags spanning p grow. No undo entries are needed: deleting
// the same bases reverses each case exactly.
func (db *DB) shiftTagsForInsert(seq, p, n int) {
	r := db.recs[seq]
	changed := false
	for t := r.tags.next; t != nil; t = t.next {
		switch {
		case t.End() < p:
		case t.Position >= p:
			t.Position += n
			t.Flags |= TagPositionChanged
			changed = true
		default:
			t.Length += n
			t.Flags |= TagLengthChanged
			changed = true
		}
	}
	if changed {
		r.Flags |= FlagTagModified
	}
}

type tagDeleteCase struct {
	name  string
	match func(s, e, p, q int) bool
	apply func(db *DB, seq int, t *Tag, p, q, n int)
}

// tagDeleteCases decides the fate of a tag [s, e] when raw positions
// [p, q] (n = q-p+1) are removed. Cases that lose information record
// undo entries with absolute values; the rest are reversed by the
// matching insert.
var tagDeleteCases = []tagDeleteCase{
	{
		name:  "before",
		match: func(s, e, p, q int) bool { return e < p },
		apply: func(db *DB, seq int, t *Tag, p, q, n int) {},
	},
	{
		name:  "right-clipped",
		match: func(s, e, p, q int) bool { return s < p && e >= p && e <= q },
		apply: func(db *DB, seq int, t *Tag, p, q, n int) {
			db.setTagLength(seq, t, p-t.Position)
		},
	},
	{
		name:  "spanning",
		match: func(s, e, p, q int) bool { return s < p && e > q },
		apply: func(db *DB, seq int, t *Tag, p, q, n int) {
			t.Length -= n
			t.Flags |= TagLengthChanged
		},
	},
	{
		name:  "consumed",
		match: func(s, e, p, q int) bool { return s >= p && e <= q },
		apply: func(db *DB, seq int, t *Tag, p, q, n int) {
			db.deleteTag(seq, t)
		},
	},
	{
		name:  "left-clipped",
		match: func(s, e, p, q int) bool { return s >= p && s <= q && e > q },
		apply: func(db *DB, seq int, t *Tag, p, q, n int) {
			end := t.End()
			db.setTagPosition(seq, t, p)
			db.setTagLength(seq, t, end-q)
		},
	},
	{
		name:  "after",
		match: func(s, e, p, q int) bool { return s > q },
		apply: func(db *DB, seq int, t *Tag, p, q, n int) {
			t.Position -= n
			t.Flags |= TagPositionChanged
		},
	},
}

func classifyTagDelete(s, e, p, q int) int {
	for i, c := range tagDeleteCases {
		if c.match(s, e, p, q) {
			return i
		}
	}
	return 0
}

// shiftTagsForDelete applies tagDeleteCases to every tag of seq for the
// removal of n raw positions starting at p.
func (db *DB) shiftTagsForDelete(seq, p, n int) {
	r := db.recs[seq]
	q := p + n - 1
	tags := r.Tags()
	if len(tags) == 0 {
		return
	}
	for _, t := range tags {
		c := tagDeleteCases[classifyTagDelete(t.Position, t.End(), p, q)]
		c.apply(db, seq, t, p, q, n)
	}
	r.Flags |= FlagTagModified
}

func (db *DB) setTagPosition(seq int, t *Tag, pos int) {
	db.record(&tagPositionEntry{tag: t, pos: t.Position}, seq)
	r := db.recs[seq]
	t.Position = pos
	t.Flags |= TagPositionChanged
	resort(r.tags, t)
	r.Flags |= FlagTagModified
}

func (db *DB) setTagLength(seq int, t *Tag, length int) {
	db.record(&tagLengthEntry{tag: t, length: t.Length}, seq)
	t.Length = length
	t.Flags |= TagLengthChanged
	db.recs[seq].Flags |= FlagTagModified
}

func (db *DB) modifyTag(seq int, t *Tag, typ store.TagType, sense int, comment string) {
	db.record(&tagModifyEntry{tag: t, typ: t.Type, sense: t.Sense, comment: t.comment}, seq)
	if t.Type != typ {
		t.Type = typ
		t.Flags |= TagTypeChanged
	}
	if t.Sense != sense {
		t.Sense = sense
		t.Flags |= TagSenseChanged
	}
	if !t.commentLoaded || t.comment != comment {
		t.comment = comment
		t.commentLoaded = true
		t.Flags |= TagCommentChanged
	}
	db.recs[seq].Flags |= FlagTagModified
}

// deleteTag unlinks t; the tag object stays alive in the undo log.
func (db *DB) deleteTag(seq int, t *Tag) {
	db.record(&tagInsertEntry{tag: t}, seq)
	unlink(db.recs[seq].tags, t)
	db.recs[seq].Flags |= FlagTagModified
}

func (db *DB) relinkTag(seq int, t *Tag) {
	db.record(&tagDeleteEntry{tag: t}, seq)
	insertSorted(db.recs[seq].tags, t)
	db.recs[seq].Flags |= FlagTagModified
}

func (db *DB) createTag(seq int, t *Tag) {
	db.record(&tagDestroyEntry{tag: t}, seq)
	t.Flags |= TagInserted
	insertSorted(db.recs[seq].tags, t)
	db.recs[seq].Flags |= FlagTagModified
}

// TagComment returns the comment of t, reading it from the store on
// first use.
func (db *DB) TagComment(ctx context.Context, t *Tag) (string, error) {
	if t.commentLoaded || t.commentID == 0 {
		return t.comment, nil
	}
	text, err := db.store.Comment(ctx, t.commentID)
	if err != nil {
		return "", fmt.Errorf("%w: comment %d: %v", ErrIO, t.commentID, err)
	}
	t.comment = text
	t.commentLoaded = true
	return text, nil
}

// TagSpec describes a new annotation.
type TagSpec struct {
	Type     string
	Position int
	Length   int
	Sense    int
	Comment  string
}

func (db *DB) checkTagRange(seq, pos, length int) error {
	r, err := db.Record(seq)
	if err != nil {
		return err
	}
	limit := r.Length2
	if seq == 0 {
		limit = r.Length
	}
	if length < 1 || pos < 1 || pos+length-1 > limit {
		return fmt.Errorf("%w: tag %d+%d on record %d (limit %d)", ErrBoundsExceeded, pos, length, seq, limit)
	}
	return nil
}

// CreateTag adds an annotation to record seq (0 for the consensus).
func (db *DB) CreateTag(seq int, spec TagSpec) (*Tag, Outcome, error) {
	if err := db.writable(); err != nil {
		return nil, Applied, err
	}
	if err := db.checkTagRange(seq, spec.Position, spec.Length); err != nil {
		return nil, Applied, err
	}
	t := &Tag{
		Position:      spec.Position,
		Length:        spec.Length,
		Type:          store.NewTagType(spec.Type),
		Sense:         spec.Sense,
		comment:       spec.Comment,
		commentLoaded: true,
	}
	if spec.Comment != "" {
		t.Flags |= TagCommentChanged
	}
	db.undo.begin()
	db.createTag(seq, t)
	out := db.undo.end()
	db.edited("create-tag", RedisplayTags, seq, spec.Position)
	return t, out, nil
}

func (db *DB) findTag(seq int, t *Tag) error {
	r, err := db.Record(seq)
	if err != nil {
		return err
	}
	for p := r.tags.next; p != nil; p = p.next {
		if p == t {
			return nil
		}
	}
	return fmt.Errorf("%w: tag on record %d", ErrNotFound, seq)
}

// DeleteTag removes an annotation.
func (db *DB) DeleteTag(seq int, t *Tag) (Outcome, error) {
	if err := db.writable(); err != nil {
		return Applied, err
	}
	if err := db.findTag(seq, t); err != nil {
		return Applied, err
	}
	db.undo.begin()
	db.deleteTag(seq, t)
	out := db.undo.end()
	db.edited("delete-tag", RedisplayTags, seq, t.Position)
	return out, nil
}

// MoveTag repositions and resizes an annotation.
func (db *DB) MoveTag(seq int, t *Tag, pos, length int) (Outcome, error) {
	if err := db.writable(); err != nil {
		return Applied, err
	}
	if err := db.findTag(seq, t); err != nil {
		return Applied, err
	}
	if err := db.checkTagRange(seq, pos, length); err != nil {
		return Applied, err
	}
	db.undo.begin()
	if pos != t.Position {
		db.setTagPosition(seq, t, pos)
	}
	if length != t.Length {
		db.setTagLength(seq, t, length)
	}
	out := db.undo.end()
	db.edited("move-tag", RedisplayTags, seq, pos)
	return out, nil
}

// EditTag changes the type, sense and comment of an annotation.
func (db *DB) EditTag(ctx context.Context, seq int, t *Tag, typ string, sense int, comment string) (Outcome, error) {
	if err := db.writable(); err != nil {
		return Applied, err
	}
	if err := db.findTag(seq, t); err != nil {
		return Applied, err
	}
	if _, err := db.TagComment(ctx, t); err != nil {
		return Applied, err
	}
	db.undo.begin()
	db.modifyTag(seq, t, store.NewTagType(typ), sense, comment)
	out := db.undo.end()
	db.edited("edit-tag", RedisplayTags, seq, t.Position)
	return out, nil
}
