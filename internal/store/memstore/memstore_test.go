package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/kobzarvs/gapedit/internal/store"
)

func TestReadingCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	id, _ := s.AllocReading(ctx)
	r := store.Reading{ID: id, Sequence: []byte("ACGT")}
	if err := s.PutReading(ctx, r); err != nil {
		t.Fatalf("PutReading: %v", err)
	}
	r.Sequence[0] = 'T'
	got, err := s.Reading(ctx, id)
	if err != nil {
		t.Fatalf("Reading: %v", err)
	}
	if string(got.Sequence) != "ACGT" {
		t.Fatalf("Sequence = %q, want ACGT", got.Sequence)
	}
}

func TestDeleteContigRenumbers(t *testing.T) {
	ctx := context.Background()
	s := New()
	for i := 0; i < 3; i++ {
		id, _ := s.AddContig(ctx)
		if err := s.PutContig(ctx, store.Contig{ID: id, Length: 10 * id, Left: 100 + id}); err != nil {
			t.Fatalf("PutContig: %v", err)
		}
	}
	if err := s.DeleteContig(ctx, 1); err != nil {
		t.Fatalf("DeleteContig: %v", err)
	}
	n, _ := s.NumContigs(ctx)
	if n != 2 {
		t.Fatalf("NumContigs = %d, want 2", n)
	}
	c, _ := s.Contig(ctx, 1)
	if c.Left != 103 || c.ID != 1 {
		t.Fatalf("contig 1 = %+v, want old contig 3 renumbered", c)
	}
	if _, err := s.Contig(ctx, 3); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Contig(3) err = %v, want ErrNotFound", err)
	}
}

func TestLockWrite(t *testing.T) {
	ctx := context.Background()
	s := New()
	ok, _ := s.LockWrite(ctx, 1)
	if !ok {
		t.Fatalf("first LockWrite = false, want true")
	}
	ok, _ = s.LockWrite(ctx, 1)
	if ok {
		t.Fatalf("second LockWrite = true, want false")
	}
	_ = s.Unlock(ctx, 1)
	ok, _ = s.LockWrite(ctx, 1)
	if !ok {
		t.Fatalf("LockWrite after Unlock = false, want true")
	}
}

func TestContigOfReading(t *testing.T) {
	ctx := context.Background()
	s := New()
	c1, _ := s.AddContig(ctx)
	c2, _ := s.AddContig(ctx)
	a, _ := s.AllocReading(ctx)
	b, _ := s.AllocReading(ctx)
	c, _ := s.AllocReading(ctx)
	_ = s.PutReading(ctx, store.Reading{ID: a, Right: b})
	_ = s.PutReading(ctx, store.Reading{ID: b, Left: a})
	_ = s.PutReading(ctx, store.Reading{ID: c})
	_ = s.PutContig(ctx, store.Contig{ID: c1, Left: a, Right: b})
	_ = s.PutContig(ctx, store.Contig{ID: c2, Left: c, Right: c})

	got, err := store.ContigOfReading(ctx, s, b)
	if err != nil || got != c1 {
		t.Fatalf("ContigOfReading(b) = %d, %v, want %d", got, err, c1)
	}
	_ = s.DeleteContig(ctx, c1)
	got, err = store.ContigOfReading(ctx, s, c)
	if err != nil || got != 1 {
		t.Fatalf("ContigOfReading(c) after delete = %d, %v, want 1", got, err)
	}
}
