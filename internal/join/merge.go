package join

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/kobzarvs/gapedit/internal/contig"
	"github.com/kobzarvs/gapedit/internal/logger"
	"github.com/kobzarvs/gapedit/internal/metrics"
	"github.com/kobzarvs/gapedit/internal/store"
)

func readingChain(ctx context.Context, s store.Store, head int) ([]store.Reading, error) {
	var out []store.Reading
	for id := head; id != 0; {
		r, err := s.Reading(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
		id = r.Right
	}
	return out, nil
}

// mergeByPosition merges two position-sorted lists; on equal positions
// the left contig's item comes first.
func mergeByPosition[T any](a, b []T, pos func(T) int) []T {
	out := make([]T, 0, len(a)+len(b))
	i, k := 0, 0
	for i < len(a) && k < len(b) {
		if pos(b[k]) < pos(a[i]) {
			out = append(out, b[k])
			k++
		} else {
			out = append(out, a[i])
			i++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[k:]...)
}

func lockBoth(ctx context.Context, s store.Store, a, b int) error {
	ok, err := s.LockWrite(ctx, a)
	if err != nil {
		return fmt.Errorf("%w: lock contig %d: %v", contig.ErrIO, a, err)
	}
	if !ok {
		return fmt.Errorf("%w: contig %d is locked", contig.ErrBusy, a)
	}
	ok, err = s.LockWrite(ctx, b)
	if err == nil && !ok {
		err = fmt.Errorf("%w: contig %d is locked", contig.ErrBusy, b)
	} else if err != nil {
		err = fmt.Errorf("%w: lock contig %d: %v", contig.ErrIO, b, err)
	}
	if err != nil {
		if uerr := s.Unlock(ctx, a); uerr != nil {
			logger.Error("unlock after failed lock", "contig", a, "err", uerr)
		}
		return err
	}
	return nil
}

// Join merges contig r into contig l with r's column x placed on l's
// column x+offset; a negative offset moves l right instead. Both
// databases are saved first. Afterwards l holds the merged contig and r
// is freed. The merged contig's number is returned: deleting r may have
// renumbered it.
func (j *Joiner) Join(ctx context.Context, l, r *contig.DB, offset int) (int, error) {
	if l == r || l.ContigID == r.ContigID {
		return 0, ErrSameContig
	}
	s := l.Store()
	if err := multierr.Combine(l.Save(ctx), r.Save(ctx)); err != nil {
		metrics.Join("save-failed")
		return 0, err
	}
	leftID, rightID := l.ContigID, r.ContigID
	if err := lockBoth(ctx, s, leftID, rightID); err != nil {
		metrics.Join("busy")
		return 0, err
	}

	anchor, length, shiftR, err := j.splice(ctx, s, leftID, rightID, offset)
	if err != nil {
		if uerr := multierr.Combine(s.Unlock(ctx, leftID), s.Unlock(ctx, rightID)); uerr != nil {
			logger.Error("unlock after failed join", "err", uerr)
		}
		metrics.Join("failed")
		return 0, err
	}

	// Deleting the right contig renumbers the highest contig into its
	// slot, so the left contig is found again through one of its
	// readings.
	j.notify(ctx, rightID, contig.Event{Kind: contig.EventJoin, Into: leftID, Offset: shiftR})
	if j.bus != nil {
		j.bus.Merge(rightID, leftID)
	}
	last, err := s.NumContigs(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: count contigs: %v", contig.ErrIO, err)
	}
	if err := s.DeleteContig(ctx, rightID); err != nil {
		return 0, fmt.Errorf("%w: delete contig %d: %v", contig.ErrIO, rightID, err)
	}
	if rightID != last && j.bus != nil {
		j.bus.Renumber(ctx, last, rightID)
	}
	switch {
	case anchor != 0:
		if leftID, err = store.ContigOfReading(ctx, s, anchor); err != nil {
			return 0, fmt.Errorf("%w: find joined contig: %v", contig.ErrIO, err)
		}
	case leftID == last:
		leftID = rightID
	}
	if err := s.Unlock(ctx, leftID); err != nil {
		logger.Error("unlock joined contig", "contig", leftID, "err", err)
	}

	r.Free()
	if err := l.Reload(ctx, leftID); err != nil {
		return leftID, err
	}
	j.notify(ctx, leftID, contig.Event{Kind: contig.EventLength, Length: length})
	metrics.Join("ok")
	logger.Info("contigs joined", "contig", leftID, "from", rightID, "offset", offset, "length", length)
	return leftID, nil
}

func (j *Joiner) notify(ctx context.Context, id int, ev contig.Event) {
	if j.bus != nil {
		j.bus.Notify(ctx, id, ev)
	}
}

// splice rewrites the store so that contig leftID holds both contigs'
// readings, consensus tags and notes. It returns a reading of the merged
// contig (0 if it has none), the merged length and the shift applied to
// the right contig.
func (j *Joiner) splice(ctx context.Context, s store.Store, leftID, rightID, offset int) (int, int, int, error) {
	lc, err := s.Contig(ctx, leftID)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("%w: contig %d: %v", contig.ErrIO, leftID, err)
	}
	rc, err := s.Contig(ctx, rightID)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("%w: contig %d: %v", contig.ErrIO, rightID, err)
	}
	shiftL, shiftR := max(0, -offset), max(0, offset)

	lr, err := readingChain(ctx, s, lc.Left)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("%w: readings of %d: %v", contig.ErrIO, leftID, err)
	}
	rr, err := readingChain(ctx, s, rc.Left)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("%w: readings of %d: %v", contig.ErrIO, rightID, err)
	}
	for i := range lr {
		lr[i].Position += shiftL
	}
	for i := range rr {
		rr[i].Position += shiftR
	}
	reads := mergeByPosition(lr, rr, func(r store.Reading) int { return r.Position })
	var errs error
	for k := range reads {
		reads[k].Left, reads[k].Right = 0, 0
		if k > 0 {
			reads[k].Left = reads[k-1].ID
		}
		if k+1 < len(reads) {
			reads[k].Right = reads[k+1].ID
		}
		if err := s.PutReading(ctx, reads[k]); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%w: reading %q: %v", contig.ErrIO, reads[k].Name, err))
		}
	}

	lt, err := store.TagChain(ctx, s, lc.TagHead)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("%w: tags of %d: %v", contig.ErrIO, leftID, err)
	}
	rt, err := store.TagChain(ctx, s, rc.TagHead)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("%w: tags of %d: %v", contig.ErrIO, rightID, err)
	}
	for i := range lt {
		lt[i].Position += shiftL
	}
	for i := range rt {
		rt[i].Position += shiftR
	}
	tags := mergeByPosition(lt, rt, func(t store.Tag) int { return t.Position })
	for k := range tags {
		tags[k].Next = 0
		if k+1 < len(tags) {
			tags[k].Next = tags[k+1].ID
		}
		if err := s.PutTag(ctx, tags[k]); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%w: tag %d: %v", contig.ErrIO, tags[k].ID, err))
		}
	}

	ln, err := store.NoteChain(ctx, s, lc.NoteHead)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("%w: notes of %d: %v", contig.ErrIO, leftID, err)
	}
	noteHead := lc.NoteHead
	switch {
	case noteHead == 0:
		noteHead = rc.NoteHead
	case rc.NoteHead != 0:
		n := ln[len(ln)-1]
		n.Next = rc.NoteHead
		if _, err := s.PutNote(ctx, n); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%w: note %d: %v", contig.ErrIO, n.ID, err))
		}
	}

	merged := store.Contig{
		ID:       leftID,
		Length:   max(lc.Length+shiftL, rc.Length+shiftR),
		NoteHead: noteHead,
	}
	if len(reads) > 0 {
		merged.Left = reads[0].ID
		merged.Right = reads[len(reads)-1].ID
	}
	if len(tags) > 0 {
		merged.TagHead = tags[0].ID
	}
	if err := s.PutContig(ctx, merged); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("%w: contig %d: %v", contig.ErrIO, leftID, err))
	}
	if errs != nil {
		return 0, 0, 0, errs
	}
	anchor := 0
	if len(reads) > 0 {
		anchor = reads[0].ID
	}
	return anchor, merged.Length, shiftR, nil
}
