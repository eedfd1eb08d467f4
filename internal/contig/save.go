package contig

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/kobzarvs/gapedit/internal/logger"
	"github.com/kobzarvs/gapedit/internal/store"
)

func (db *DB) storeID(seq int) int {
	if seq == 0 {
		return 0
	}
	return db.recs[seq].ID
}

// Save writes every modified reading, the annotation lists, new notes and
// the contig record. Failures are collected and returned together; on
// success the undo history is dropped and listeners learn of a length
// change.
func (db *DB) Save(ctx context.Context) error {
	if err := db.writable(); err != nil {
		return err
	}

	var errs error
	written := 0
	for seq := 1; seq < len(db.recs); seq++ {
		r := db.recs[seq]
		if r.Flags&FlagModified == 0 {
			continue
		}
		head, err := db.writeTagList(ctx, r)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		rd := r.reading(db.storeID(r.prev), db.storeID(r.next), head)
		if err := db.store.PutReading(ctx, rd); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%w: reading %q: %v", ErrIO, r.Name, err))
			continue
		}
		r.Flags &^= FlagModified
		written++
	}

	cons := db.recs[0]
	tagHead, err := db.writeTagList(ctx, cons)
	if err != nil {
		errs = multierr.Append(errs, err)
	}
	noteHead, err := db.writeNotes(ctx)
	if err != nil {
		errs = multierr.Append(errs, err)
	}
	c := store.Contig{
		ID:       db.ContigID,
		Length:   cons.Length,
		Left:     db.storeID(db.First()),
		Right:    db.storeID(db.Last()),
		TagHead:  tagHead,
		NoteHead: noteHead,
	}
	if err := db.store.PutContig(ctx, c); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("%w: contig %d: %v", ErrIO, db.ContigID, err))
	}

	if errs != nil {
		logger.Error("save failed", "contig", db.ContigID, "errors", len(multierr.Errors(errs)), "err", errs)
		return errs
	}

	lengthChanged := db.savedLength != cons.Length
	db.savedLength = cons.Length
	db.ResetEdits()
	logger.Info("contig saved", "contig", db.ContigID, "readings", written, "length", cons.Length)
	if lengthChanged {
		db.notify(ctx, Event{Kind: EventLength, Length: cons.Length})
	}
	return nil
}

// writeTagList writes r's annotation list in one forward pass. A tag is
// rewritten when its fields changed or its persisted successor differs;
// ids for new tags are allocated as the pass reaches them. Persisted
// tags no longer in the list are freed. It returns the id of the head.
func (db *DB) writeTagList(ctx context.Context, r *Record) (int, error) {
	s := db.store
	ensure := func(t *Tag) error {
		if t.OriginalID != 0 {
			return nil
		}
		id, err := s.AllocTag(ctx)
		if err != nil {
			return fmt.Errorf("%w: allocate tag: %v", ErrIO, err)
		}
		t.OriginalID = id
		t.Flags |= TagInserted
		return nil
	}

	first := r.tags.next
	head := 0
	if first != nil {
		if err := ensure(first); err != nil {
			return 0, err
		}
		head = first.OriginalID
	}

	var errs error
	present := make(map[int]bool)
	var ids []int
	for t := first; t != nil; t = t.next {
		next := 0
		if t.next != nil {
			if err := ensure(t.next); err != nil {
				return 0, err
			}
			next = t.next.OriginalID
		}
		present[t.OriginalID] = true
		ids = append(ids, t.OriginalID)
		if t.Flags&tagChanged == 0 && t.diskNext == next {
			continue
		}

		if t.Flags&TagCommentChanged != 0 {
			if t.commentID != 0 {
				if err := s.FreeComment(ctx, t.commentID); err != nil {
					errs = multierr.Append(errs, fmt.Errorf("%w: free comment %d: %v", ErrIO, t.commentID, err))
				}
				t.commentID = 0
			}
			if t.comment != "" {
				id, err := s.PutComment(ctx, t.comment)
				if err != nil {
					errs = multierr.Append(errs, fmt.Errorf("%w: write comment: %v", ErrIO, err))
					continue
				}
				t.commentID = id
			}
		}

		err := s.PutTag(ctx, store.Tag{
			ID:       t.OriginalID,
			Position: t.Position,
			Length:   t.Length,
			Type:     t.Type,
			Sense:    t.Sense,
			Comment:  t.commentID,
			Next:     next,
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%w: tag %d: %v", ErrIO, t.OriginalID, err))
			continue
		}
		t.diskNext = next
		t.Flags = 0
	}

	for _, id := range r.savedIDs {
		if present[id] {
			continue
		}
		if st, err := s.Tag(ctx, id); err == nil && st.Comment != 0 {
			if err := s.FreeComment(ctx, st.Comment); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%w: free comment %d: %v", ErrIO, st.Comment, err))
			}
		}
		if err := s.FreeTag(ctx, id); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%w: free tag %d: %v", ErrIO, id, err))
		}
	}
	r.savedIDs = ids
	return head, errs
}

// writeNotes persists notes added since the last save, linking them
// after the saved ones, and returns the chain head.
func (db *DB) writeNotes(ctx context.Context) (int, error) {
	if len(db.notes) == 0 {
		return 0, nil
	}
	if db.notesSaved < len(db.notes) {
		next := 0
		for i := len(db.notes) - 1; i >= db.notesSaved; i-- {
			n := db.notes[i]
			id, err := db.store.PutNote(ctx, store.Note{ID: n.ID, Type: n.Type, Text: n.Text, Next: next})
			if err != nil {
				return 0, fmt.Errorf("%w: note: %v", ErrIO, err)
			}
			db.notes[i].ID = id
			next = id
		}
		if db.notesSaved > 0 {
			n := db.notes[db.notesSaved-1]
			if _, err := db.store.PutNote(ctx, store.Note{ID: n.ID, Type: n.Type, Text: n.Text, Next: next}); err != nil {
				return 0, fmt.Errorf("%w: note %d: %v", ErrIO, n.ID, err)
			}
		}
		db.notesSaved = len(db.notes)
	}
	return db.notes[0].ID, nil
}
