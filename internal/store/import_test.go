package store_test

import (
	"context"
	"testing"

	"github.com/kobzarvs/gapedit/internal/config"
	"github.com/kobzarvs/gapedit/internal/store"
	"github.com/kobzarvs/gapedit/internal/store/memstore"
)

func TestImportLinksReadsByPosition(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	f := config.ImportFile{Contigs: []config.ImportContig{{
		Name:  "c1",
		Notes: []string{"first", "second"},
		Tags:  []config.ImportTag{{Type: "COMM", Position: 9, Length: 2, Comment: "late"}, {Type: "COMM", Position: 2, Length: 1}},
		Reads: []config.ImportRead{
			{Name: "b", Position: 5, Sequence: "NNACGTAC", LeftCutoff: 2, Complemented: true},
			{Name: "a", Position: 1, Sequence: "ACGTACGT", Confidence: []int{10, 200, -3}},
		},
	}}}

	ids, err := store.Import(ctx, s, f)
	if err != nil {
		t.Fatalf("Import error: %v", err)
	}
	if len(ids) != 1 || ids[0] != 1 {
		t.Fatalf("ids = %v, want [1]", ids)
	}
	c, err := s.Contig(ctx, 1)
	if err != nil {
		t.Fatalf("Contig error: %v", err)
	}
	if c.Length != 10 {
		t.Fatalf("Length = %d, want 10", c.Length)
	}

	a, _ := s.Reading(ctx, c.Left)
	b, _ := s.Reading(ctx, c.Right)
	if a.Name != "a" || b.Name != "b" || a.Right != b.ID || b.Left != a.ID {
		t.Fatalf("chain = %s(%d)->%s(%d), want a->b", a.Name, a.Right, b.Name, b.Left)
	}
	if b.Length != -6 || b.Start != 2 || b.End != 9 {
		t.Fatalf("b length/start/end = %d/%d/%d, want -6/2/9", b.Length, b.Start, b.End)
	}
	if got := a.Confidence[:4]; got[0] != 10 || got[1] != 100 || got[2] != 0 || got[3] != 0 {
		t.Fatalf("confidence = %v, want clamped [10 100 0 0]", got)
	}

	tags, err := store.TagChain(ctx, s, c.TagHead)
	if err != nil {
		t.Fatalf("TagChain error: %v", err)
	}
	if len(tags) != 2 || tags[0].Position != 2 || tags[1].Position != 9 {
		t.Fatalf("tags = %+v, want positions 2 then 9", tags)
	}
	if text, _ := s.Comment(ctx, tags[1].Comment); text != "late" {
		t.Fatalf("comment = %q, want %q", text, "late")
	}

	notes, err := store.NoteChain(ctx, s, c.NoteHead)
	if err != nil {
		t.Fatalf("NoteChain error: %v", err)
	}
	if len(notes) != 2 || notes[0].Text != "first" || notes[1].Text != "second" {
		t.Fatalf("notes = %+v, want first, second", notes)
	}
}

func TestImportRejectsEmptyRead(t *testing.T) {
	s := memstore.New()
	f := config.ImportFile{Contigs: []config.ImportContig{{
		Name:  "c1",
		Reads: []config.ImportRead{{Name: "x", Position: 1, Sequence: "AC", LeftCutoff: 1, RightCutoff: 1}},
	}}}
	if _, err := store.Import(context.Background(), s, f); err == nil {
		t.Fatalf("Import error = nil, want an error")
	}
}
