package contig

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/kobzarvs/gapedit/internal/store"
	"github.com/kobzarvs/gapedit/internal/store/memstore"
)

type testRead struct {
	name  string
	pos   int
	seq   string
	left  string
	right string
	comp  bool
}

func newTestStore(t *testing.T, reads ...testRead) (*memstore.Store, int) {
	t.Helper()
	ctx := context.Background()
	s := memstore.New()
	id, err := s.AddContig(ctx)
	if err != nil {
		t.Fatalf("AddContig error: %v", err)
	}
	ids := make([]int, len(reads))
	for i := range reads {
		if ids[i], err = s.AllocReading(ctx); err != nil {
			t.Fatalf("AllocReading error: %v", err)
		}
	}
	idx := make([]int, len(reads))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return reads[idx[a]].pos < reads[idx[b]].pos })

	c := store.Contig{ID: id}
	for k, i := range idx {
		r := reads[i]
		full := r.left + r.seq + r.right
		prev, next := 0, 0
		if k > 0 {
			prev = ids[idx[k-1]]
		}
		if k+1 < len(idx) {
			next = ids[idx[k+1]]
		}
		length := len(r.seq)
		if r.comp {
			length = -length
		}
		conf := make([]byte, len(full))
		for j := range conf {
			conf[j] = byte(10 + j%30)
		}
		err := s.PutReading(ctx, store.Reading{
			ID:         ids[i],
			Name:       r.name,
			Position:   r.pos,
			Length:     length,
			Left:       prev,
			Right:      next,
			Start:      len(r.left),
			End:        len(r.left) + len(r.seq) + 1,
			Sequence:   []byte(full),
			Confidence: conf,
		})
		if err != nil {
			t.Fatalf("PutReading error: %v", err)
		}
		c.Length = max(c.Length, r.pos+len(r.seq)-1)
	}
	if len(idx) > 0 {
		c.Left = ids[idx[0]]
		c.Right = ids[idx[len(idx)-1]]
	}
	if err := s.PutContig(ctx, c); err != nil {
		t.Fatalf("PutContig error: %v", err)
	}
	return s, id
}

func newTestDB(t *testing.T, reads ...testRead) *DB {
	t.Helper()
	s, id := newTestStore(t, reads...)
	db, err := Load(context.Background(), s, id, Options{MaxRecords: 1000})
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	return db
}

func mustSeq(t *testing.T, db *DB, name string) int {
	t.Helper()
	seq, ok := db.Lookup(name)
	if !ok {
		t.Fatalf("reading %q not found", name)
	}
	return seq
}

func checkInvariants(t *testing.T, db *DB) {
	t.Helper()
	for k := 1; k < len(db.order); k++ {
		a, b := db.recs[db.order[k-1]], db.recs[db.order[k]]
		if a.RelPos > b.RelPos {
			t.Fatalf("order broken at slot %d: %d > %d", k, a.RelPos, b.RelPos)
		}
	}
	for k, seq := range db.order {
		if db.slot[seq] != k {
			t.Fatalf("slot[%d] = %d, want %d", seq, db.slot[seq], k)
		}
		r := db.recs[seq]
		wantPrev, wantNext := 0, 0
		if k > 0 {
			wantPrev = db.order[k-1]
		}
		if k+1 < len(db.order) {
			wantNext = db.order[k+1]
		}
		if r.prev != wantPrev || r.next != wantNext {
			t.Fatalf("%s links = %d/%d, want %d/%d", r.Name, r.prev, r.next, wantPrev, wantNext)
		}
		if len(r.Seq) != r.Length2 || len(r.Conf) != r.Length2 || len(r.OrigPos) != r.Length2 {
			t.Fatalf("%s buffers = %d/%d/%d, want %d", r.Name, len(r.Seq), len(r.Conf), len(r.OrigPos), r.Length2)
		}
		if r.End != r.Start+r.Length+1 {
			t.Fatalf("%s end = %d, want %d", r.Name, r.End, r.Start+r.Length+1)
		}
	}
	if got, want := db.ConsensusLength(), db.computeLength(); got != want {
		t.Fatalf("consensus length = %d, want %d", got, want)
	}
	for _, r := range db.recs {
		tags := r.Tags()
		for i := 1; i < len(tags); i++ {
			if tags[i-1].Position > tags[i].Position {
				t.Fatalf("%s tags out of order: %d > %d", r.Name, tags[i-1].Position, tags[i].Position)
			}
		}
	}
}

func positions(db *DB) string {
	var out string
	for _, seq := range db.order {
		r := db.recs[seq]
		out += fmt.Sprintf("%s@%d ", r.Name, r.RelPos)
	}
	return out
}

func TestLoadBuildsOrderAndLength(t *testing.T) {
	db := newTestDB(t,
		testRead{name: "c", pos: 8, seq: "GGGGGGGGGG"},
		testRead{name: "a", pos: 1, seq: "AAAAAAAAAA"},
		testRead{name: "b", pos: 5, seq: "CCCCCCCCCC", left: "nn"},
	)
	if got := positions(db); got != "a@1 b@5 c@8 " {
		t.Fatalf("order = %q, want %q", got, "a@1 b@5 c@8 ")
	}
	if got := db.ConsensusLength(); got != 17 {
		t.Fatalf("length = %d, want 17", got)
	}
	if db.Modified() {
		t.Fatalf("freshly loaded contig reports modified")
	}
	b, _ := db.Record(mustSeq(t, db, "b"))
	if b.LenLeftCutoff() != 2 || b.LenRightCutoff() != 0 {
		t.Fatalf("cutoffs = %d/%d, want 2/0", b.LenLeftCutoff(), b.LenRightCutoff())
	}
	if got := string(b.Used()); got != "CCCCCCCCCC" {
		t.Fatalf("used = %q, want CCCCCCCCCC", got)
	}
	checkInvariants(t, db)
}

func TestLoadRejectsTooManyReadings(t *testing.T) {
	s, id := newTestStore(t,
		testRead{name: "a", pos: 1, seq: "ACGT"},
		testRead{name: "b", pos: 2, seq: "ACGT"},
		testRead{name: "c", pos: 3, seq: "ACGT"},
	)
	_, err := Load(context.Background(), s, id, Options{MaxRecords: 2})
	if !errors.Is(err, ErrIO) {
		t.Fatalf("err = %v, want ErrIO", err)
	}
}

func TestLoadMissingContig(t *testing.T) {
	_, err := Load(context.Background(), memstore.New(), 7, Options{})
	if !errors.Is(err, ErrIO) {
		t.Fatalf("err = %v, want ErrIO", err)
	}
}

func TestPositionToIndex(t *testing.T) {
	db := newTestDB(t,
		testRead{name: "a", pos: 1, seq: "AAAAAAAAAA"},
		testRead{name: "b", pos: 5, seq: "CCC"},
		testRead{name: "c", pos: 20, seq: "GGGGG"},
	)
	a, c := mustSeq(t, db, "a"), mustSeq(t, db, "c")
	if got := db.PositionToIndex(6); got != a {
		t.Fatalf("index(6) = %d, want %d", got, a)
	}
	if got := db.PositionToIndex(12); got != c {
		t.Fatalf("index(12) = %d, want %d", got, c)
	}
	if got := db.PositionToIndex(30); got != 0 {
		t.Fatalf("index(30) = %d, want 0", got)
	}

	empty := newTestDB(t)
	if got := empty.PositionToIndex(1); got != 0 {
		t.Fatalf("empty index = %d, want 0", got)
	}
	if got := empty.ConsensusLength(); got != 0 {
		t.Fatalf("empty length = %d, want 0", got)
	}
}

func TestConsensusMajority(t *testing.T) {
	db := newTestDB(t,
		testRead{name: "a", pos: 1, seq: "ACGT"},
		testRead{name: "b", pos: 1, seq: "CCGA"},
		testRead{name: "c", pos: 2, seq: "CG"},
		testRead{name: "d", pos: 7, seq: "GG"},
	)
	if got := string(db.Consensus(1, 8)); got != "ACGA--GG" {
		t.Fatalf("consensus = %q, want %q", got, "ACGA--GG")
	}
	if got := string(db.Consensus(0, 100)); got != "ACGA--GG" {
		t.Fatalf("clamped consensus = %q, want %q", got, "ACGA--GG")
	}
	if got := db.Consensus(5, 4); got != nil {
		t.Fatalf("empty range = %q, want nil", got)
	}
}

func TestCoveringAndRecordErrors(t *testing.T) {
	db := newTestDB(t,
		testRead{name: "a", pos: 1, seq: "AAAA"},
		testRead{name: "b", pos: 3, seq: "CCCC"},
	)
	if got := len(db.Covering(3)); got != 2 {
		t.Fatalf("covering(3) = %d, want 2", got)
	}
	if got := len(db.Covering(6)); got != 1 {
		t.Fatalf("covering(6) = %d, want 1", got)
	}
	if _, err := db.Record(9); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
