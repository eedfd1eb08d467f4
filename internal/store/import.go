package store

import (
	"context"
	"fmt"
	"slices"

	"github.com/kobzarvs/gapedit/internal/config"
)

// Import appends the contigs described by f to s and returns their
// numbers. Reads are linked in position order.
func Import(ctx context.Context, s Store, f config.ImportFile) ([]int, error) {
	var ids []int
	for _, ic := range f.Contigs {
		id, err := importContig(ctx, s, ic)
		if err != nil {
			return ids, fmt.Errorf("import contig %q: %w", ic.Name, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func importContig(ctx context.Context, s Store, ic config.ImportContig) (int, error) {
	reads := slices.Clone(ic.Reads)
	slices.SortStableFunc(reads, func(a, b config.ImportRead) int { return a.Position - b.Position })

	id, err := s.AddContig(ctx)
	if err != nil {
		return 0, err
	}
	ids := make([]int, len(reads))
	for i := range reads {
		if ids[i], err = s.AllocReading(ctx); err != nil {
			return 0, err
		}
	}

	c := Contig{ID: id}
	for i, r := range reads {
		if r.Position < 1 {
			return 0, fmt.Errorf("read %q: position %d", r.Name, r.Position)
		}
		used := len(r.Used())
		if used == 0 {
			return 0, fmt.Errorf("read %q: no bases inside the cutoffs", r.Name)
		}
		rd := Reading{
			ID:       ids[i],
			Name:     r.Name,
			Position: r.Position,
			Length:   used,
			Start:    r.LeftCutoff,
			End:      r.LeftCutoff + used + 1,
			Sequence: []byte(r.Sequence),
		}
		if r.Complemented {
			rd.Length = -used
		}
		if len(r.Confidence) > 0 {
			rd.Confidence = make([]byte, len(r.Sequence))
			for k := range rd.Confidence {
				if k < len(r.Confidence) {
					rd.Confidence[k] = byte(min(max(r.Confidence[k], 0), 100))
				}
			}
		}
		if i > 0 {
			rd.Left = ids[i-1]
		}
		if i+1 < len(reads) {
			rd.Right = ids[i+1]
		}
		if rd.TagHead, err = importTags(ctx, s, r.Tags); err != nil {
			return 0, fmt.Errorf("read %q: %w", r.Name, err)
		}
		if err := s.PutReading(ctx, rd); err != nil {
			return 0, err
		}
		c.Length = max(c.Length, r.Position+used-1)
	}
	if len(ids) > 0 {
		c.Left, c.Right = ids[0], ids[len(ids)-1]
	}
	if c.TagHead, err = importTags(ctx, s, ic.Tags); err != nil {
		return 0, err
	}

	next := 0
	for i := len(ic.Notes) - 1; i >= 0; i-- {
		if next, err = s.PutNote(ctx, Note{Type: NewTagType("NOTE"), Text: ic.Notes[i], Next: next}); err != nil {
			return 0, err
		}
	}
	c.NoteHead = next

	if err := s.PutContig(ctx, c); err != nil {
		return 0, err
	}
	return id, nil
}

// importTags writes tags as a chain sorted by position and returns its
// head.
func importTags(ctx context.Context, s Store, in []config.ImportTag) (int, error) {
	tags := slices.Clone(in)
	slices.SortStableFunc(tags, func(a, b config.ImportTag) int { return a.Position - b.Position })
	ids := make([]int, len(tags))
	var err error
	for i := range tags {
		if ids[i], err = s.AllocTag(ctx); err != nil {
			return 0, err
		}
	}
	for i, it := range tags {
		t := Tag{
			ID:       ids[i],
			Position: it.Position,
			Length:   it.Length,
			Type:     NewTagType(it.Type),
			Sense:    it.Sense,
		}
		if it.Comment != "" {
			if t.Comment, err = s.PutComment(ctx, it.Comment); err != nil {
				return 0, err
			}
		}
		if i+1 < len(tags) {
			t.Next = ids[i+1]
		}
		if err := s.PutTag(ctx, t); err != nil {
			return 0, err
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}
	return ids[0], nil
}
