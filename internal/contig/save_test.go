package contig

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/multierr"

	"github.com/kobzarvs/gapedit/internal/store"
	"github.com/kobzarvs/gapedit/internal/store/memstore"
)

type recordingNotifier struct {
	events []Event
}

func (n *recordingNotifier) Notify(ctx context.Context, contig int, ev Event) {
	n.events = append(n.events, ev)
}

var errDisk = errors.New("disk full")

type failingStore struct {
	*memstore.Store
}

func (s failingStore) PutReading(ctx context.Context, r store.Reading) error {
	return errDisk
}

func TestSaveRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, id := newTestStore(t,
		testRead{name: "a", pos: 1, seq: "ACGTACGTAC"},
		testRead{name: "b", pos: 5, seq: "ACGTTTGCAA", left: "nnn"},
	)
	db, err := Load(ctx, s, id, Options{})
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	n := &recordingNotifier{}
	db.SetNotifier(n)

	a, b := mustSeq(t, db, "a"), mustSeq(t, db, "b")
	if _, err := db.InsertBases(a, 3, []byte("GG")); err != nil {
		t.Fatalf("InsertBases error: %v", err)
	}
	if _, err := db.ShiftRight(b, 4); err != nil {
		t.Fatalf("ShiftRight error: %v", err)
	}
	if _, _, err := db.CreateTag(b, TagSpec{Type: "COMM", Position: 4, Length: 2, Comment: "check"}); err != nil {
		t.Fatalf("CreateTag error: %v", err)
	}
	if _, _, err := db.CreateTag(0, TagSpec{Type: "CONS", Position: 1, Length: 5}); err != nil {
		t.Fatalf("CreateTag error: %v", err)
	}
	db.AddNote("NOTE", "edited by test")

	if err := db.Save(ctx); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if db.Modified() {
		t.Fatalf("contig still modified after save")
	}
	if err := db.Undo(); !errors.Is(err, ErrNothingToUndo) {
		t.Fatalf("undo after save err = %v, want ErrNothingToUndo", err)
	}
	if len(n.events) != 1 || n.events[0].Kind != EventLength || n.events[0].Length != 18 {
		t.Fatalf("events = %+v, want one length event of 18", n.events)
	}

	fresh, err := Load(ctx, s, id, Options{})
	if err != nil {
		t.Fatalf("reload error: %v", err)
	}
	if got := positions(fresh); got != "a@1 b@9 " {
		t.Fatalf("positions = %q, want %q", got, "a@1 b@9 ")
	}
	if got := string(fresh.recs[a].Used()); got != "ACGGGTACGTAC" {
		t.Fatalf("a = %q, want ACGGGTACGTAC", got)
	}
	if got := fresh.ConsensusLength(); got != 18 {
		t.Fatalf("length = %d, want 18", got)
	}
	bt := fresh.recs[b].Tags()
	if len(bt) != 1 || bt[0].Position != 4 || bt[0].Length != 2 {
		t.Fatalf("reading tags = %v", tagSpans(fresh.recs[b]))
	}
	if c, _ := fresh.TagComment(ctx, bt[0]); c != "check" {
		t.Fatalf("comment = %q, want check", c)
	}
	if len(fresh.recs[0].Tags()) != 1 {
		t.Fatalf("consensus tags = %d, want 1", len(fresh.recs[0].Tags()))
	}
	notes := fresh.Notes()
	if len(notes) != 1 || notes[0].Text != "edited by test" {
		t.Fatalf("notes = %+v", notes)
	}

	tags := s.NumTags()
	if err := db.Save(ctx); err != nil {
		t.Fatalf("second Save error: %v", err)
	}
	if s.NumTags() != tags || len(n.events) != 1 {
		t.Fatalf("second save changed the store: tags %d->%d, events %d", tags, s.NumTags(), len(n.events))
	}
}

func TestSaveFreesDeletedTags(t *testing.T) {
	ctx := context.Background()
	s, id := newTestStore(t, testRead{name: "a", pos: 1, seq: "ACGTACGTACGTACGT"})
	db, err := Load(ctx, s, id, Options{})
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	a := mustSeq(t, db, "a")
	var tags []*Tag
	for _, pos := range []int{2, 6, 10} {
		tag, _, err := db.CreateTag(a, TagSpec{Type: "COMM", Position: pos, Length: 2})
		if err != nil {
			t.Fatalf("CreateTag error: %v", err)
		}
		tags = append(tags, tag)
	}
	if err := db.Save(ctx); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if got := s.NumTags(); got != 3 {
		t.Fatalf("stored tags = %d, want 3", got)
	}

	if _, err := db.DeleteTag(a, tags[1]); err != nil {
		t.Fatalf("DeleteTag error: %v", err)
	}
	if err := db.Save(ctx); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if got := s.NumTags(); got != 2 {
		t.Fatalf("stored tags = %d, want 2", got)
	}
	if _, err := s.Tag(ctx, tags[1].OriginalID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("deleted tag still stored: %v", err)
	}
	fresh, err := Load(ctx, s, id, Options{})
	if err != nil {
		t.Fatalf("reload error: %v", err)
	}
	if got := tagSpans(fresh.recs[a]); len(got) != 2 || got[0].pos != 2 || got[1].pos != 10 {
		t.Fatalf("reloaded tags = %v", got)
	}
}

func TestSaveAppendsNotes(t *testing.T) {
	ctx := context.Background()
	s, id := newTestStore(t, testRead{name: "a", pos: 1, seq: "ACGT"})
	db, err := Load(ctx, s, id, Options{})
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	db.AddNote("NOTE", "one")
	if err := db.Save(ctx); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	db.AddNote("NOTE", "two")
	db.AddNote("NOTE", "three")
	if err := db.Save(ctx); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	fresh, err := Load(ctx, s, id, Options{})
	if err != nil {
		t.Fatalf("reload error: %v", err)
	}
	var texts []string
	for _, n := range fresh.Notes() {
		texts = append(texts, n.Text)
	}
	if len(texts) != 3 || texts[0] != "one" || texts[1] != "two" || texts[2] != "three" {
		t.Fatalf("notes = %v, want [one two three]", texts)
	}
}

func TestSaveCollectsErrors(t *testing.T) {
	ctx := context.Background()
	mem, id := newTestStore(t,
		testRead{name: "a", pos: 1, seq: "ACGTACGT"},
		testRead{name: "b", pos: 3, seq: "GTACGT"},
	)
	db, err := Load(ctx, failingStore{mem}, id, Options{})
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	for _, name := range []string{"a", "b"} {
		if _, err := db.ShiftRight(mustSeq(t, db, name), 1); err != nil {
			t.Fatalf("ShiftRight error: %v", err)
		}
	}
	err = db.Save(ctx)
	if err == nil {
		t.Fatalf("Save succeeded on a failing store")
	}
	if got := len(multierr.Errors(err)); got != 2 {
		t.Fatalf("errors = %d, want 2: %v", got, err)
	}
	if !errors.Is(err, ErrIO) {
		t.Fatalf("err = %v, want ErrIO", err)
	}
	if !db.Modified() {
		t.Fatalf("failed save cleared the modified flags")
	}
	if !db.UndoLog().CanUndo() {
		t.Fatalf("failed save dropped the undo history")
	}
}
