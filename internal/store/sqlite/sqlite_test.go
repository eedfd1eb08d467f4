package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/kobzarvs/gapedit/internal/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "gap.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestReadingRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	id, err := s.AllocReading(ctx)
	if err != nil {
		t.Fatalf("AllocReading: %v", err)
	}
	want := store.Reading{
		ID: id, Name: "r1", Position: 12, Length: -4, Start: 1, End: 6,
		Sequence:   []byte("NACGTN"),
		Confidence: []byte{5, 30, 40, 50, 60, 5},
		OrigPos:    []int{1, 2, 0, 4, 5, 6},
		TagHead:    9,
	}
	if err := s.PutReading(ctx, want); err != nil {
		t.Fatalf("PutReading: %v", err)
	}
	got, err := s.Reading(ctx, id)
	if err != nil {
		t.Fatalf("Reading: %v", err)
	}
	if got.Name != want.Name || got.Position != 12 || got.Length != -4 || got.End != 6 || got.TagHead != 9 {
		t.Fatalf("Reading = %+v, want %+v", got, want)
	}
	if string(got.Sequence) != "NACGTN" {
		t.Fatalf("Sequence = %q, want NACGTN", got.Sequence)
	}
	for i := range want.OrigPos {
		if got.OrigPos[i] != want.OrigPos[i] {
			t.Fatalf("OrigPos[%d] = %d, want %d", i, got.OrigPos[i], want.OrigPos[i])
		}
	}
}

func TestOrigPosKeepsLargeValues(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	id, err := s.AllocReading(ctx)
	if err != nil {
		t.Fatalf("AllocReading: %v", err)
	}
	big := 1<<33 + 5
	r := store.Reading{ID: id, Name: "r", Sequence: []byte("ACG"), Confidence: []byte{1, 2, 3}, OrigPos: []int{big, -big, 3}}
	if err := s.PutReading(ctx, r); err != nil {
		t.Fatalf("PutReading: %v", err)
	}
	got, err := s.Reading(ctx, id)
	if err != nil {
		t.Fatalf("Reading: %v", err)
	}
	if len(got.OrigPos) != 3 || got.OrigPos[0] != big || got.OrigPos[1] != -big || got.OrigPos[2] != 3 {
		t.Fatalf("OrigPos = %v, want [%d %d 3]", got.OrigPos, big, -big)
	}
}

func TestTagsCommentsNotes(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	cid, err := s.PutComment(ctx, "hello")
	if err != nil {
		t.Fatalf("PutComment: %v", err)
	}
	tid, _ := s.AllocTag(ctx)
	tag := store.Tag{ID: tid, Position: 3, Length: 4, Type: store.NewTagType("COMM"), Sense: 1, Comment: cid}
	if err := s.PutTag(ctx, tag); err != nil {
		t.Fatalf("PutTag: %v", err)
	}
	got, err := s.Tag(ctx, tid)
	if err != nil || got != tag {
		t.Fatalf("Tag = %+v, %v, want %+v", got, err, tag)
	}
	text, err := s.Comment(ctx, cid)
	if err != nil || text != "hello" {
		t.Fatalf("Comment = %q, %v, want hello", text, err)
	}
	_ = s.FreeTag(ctx, tid)
	if _, err := s.Tag(ctx, tid); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Tag after free err = %v, want ErrNotFound", err)
	}

	nid, err := s.PutNote(ctx, store.Note{Type: store.NewTagType("NOTE"), Text: "first"})
	if err != nil {
		t.Fatalf("PutNote: %v", err)
	}
	n, err := s.Note(ctx, nid)
	if err != nil || n.Text != "first" || n.Type.String() != "NOTE" {
		t.Fatalf("Note = %+v, %v", n, err)
	}
}

func TestDeleteContigRenumbers(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	for i := 1; i <= 3; i++ {
		id, err := s.AddContig(ctx)
		if err != nil || id != i {
			t.Fatalf("AddContig = %d, %v, want %d", id, err, i)
		}
		if err := s.PutContig(ctx, store.Contig{ID: id, Length: i * 10, Left: i}); err != nil {
			t.Fatalf("PutContig: %v", err)
		}
	}
	if ok, _ := s.LockWrite(ctx, 3); !ok {
		t.Fatalf("LockWrite(3) = false, want true")
	}
	if err := s.DeleteContig(ctx, 2); err != nil {
		t.Fatalf("DeleteContig: %v", err)
	}
	c, err := s.Contig(ctx, 2)
	if err != nil || c.Length != 30 {
		t.Fatalf("Contig(2) = %+v, %v, want old contig 3", c, err)
	}
	if ok, _ := s.LockWrite(ctx, 2); ok {
		t.Fatalf("LockWrite(2) = true, want lock carried over from contig 3")
	}
	n, _ := s.NumContigs(ctx)
	if n != 2 {
		t.Fatalf("NumContigs = %d, want 2", n)
	}
}
