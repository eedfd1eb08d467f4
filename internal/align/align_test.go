package align

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kobzarvs/gapedit/internal/config"
	"github.com/kobzarvs/gapedit/internal/logger"
)

func randomSeq(seed int64, n int) []byte {
	r := rand.New(rand.NewSource(seed))
	out := make([]byte, n)
	for i := range out {
		out[i] = "ACGT"[r.Intn(4)]
	}
	return out
}

func join(parts ...[]byte) []byte {
	return bytes.Join(parts, nil)
}

func consumed(script []Run) (int, int) {
	var n, m int
	for _, run := range script {
		switch run.Op {
		case OpMatch:
			n += run.Len
			m += run.Len
		case OpGap1:
			m += run.Len
		case OpGap2:
			n += run.Len
		}
	}
	return n, m
}

func TestAlignIdentical(t *testing.T) {
	e := New(config.Default().Align)
	s := randomSeq(1, 200)
	res, err := e.Align(s, s, FixedEnds)
	if err != nil {
		t.Fatalf("Align error: %v", err)
	}
	if len(res.Script) != 1 || res.Script[0] != (Run{OpMatch, 200}) {
		t.Fatalf("script = %v, want [M200]", res.Script)
	}
	if res.Identity != 1 {
		t.Fatalf("identity = %v, want 1", res.Identity)
	}
	if res.Method != MethodDP {
		t.Fatalf("method = %q, want dp", res.Method)
	}
}

func TestAlignOverlapWithFreeEnds(t *testing.T) {
	e := New(config.Default().Align)
	overlap := randomSeq(2, 20)
	a := join(randomSeq(3, 6), overlap)
	b := join(overlap, randomSeq(4, 6))

	res, err := e.Align(a, b, FreeEnds)
	if err != nil {
		t.Fatalf("Align error: %v", err)
	}
	want := []Run{{OpGap2, 6}, {OpMatch, 20}, {OpGap1, 6}}
	if len(res.Script) != len(want) {
		t.Fatalf("script = %v, want %v", res.Script, want)
	}
	for i := range want {
		if res.Script[i] != want[i] {
			t.Fatalf("script = %v, want %v", res.Script, want)
		}
	}
	if got := len(res.Insertions()); got != 0 {
		t.Fatalf("insertions = %d, want 0", got)
	}
	pairs := res.Pairs()
	if len(pairs) != 20 || pairs[0] != (Pair{6, 0}) {
		t.Fatalf("pairs = %v, want 20 starting at {6 0}", pairs)
	}
}

func TestAlignFindsInsertion(t *testing.T) {
	e := New(config.Default().Align)
	left, right := randomSeq(5, 60), randomSeq(6, 60)
	a := join(left, right)
	b := join(left, []byte("TTTT"), right)

	res, err := e.Align(a, b, FixedEnds)
	if err != nil {
		t.Fatalf("Align error: %v", err)
	}
	n, m := consumed(res.Script)
	if n != len(a) || m != len(b) {
		t.Fatalf("consumed = %d/%d, want %d/%d", n, m, len(a), len(b))
	}
	ins := res.Insertions()
	total := 0
	for _, in := range ins {
		if in.Seq != 1 {
			t.Fatalf("insertion in seq %d, want 1", in.Seq)
		}
		total += in.Count
	}
	if total != 4 {
		t.Fatalf("pads in seq1 = %d, want 4", total)
	}
	s1, s2 := res.Strings(a, b)
	if len(s1) != len(s2) {
		t.Fatalf("rows differ in length: %d vs %d", len(s1), len(s2))
	}
}

func TestAlignLongUsesSeeds(t *testing.T) {
	cfg := config.Default().Align
	cfg.SmallThreshold = 500
	e := New(cfg)

	a := randomSeq(7, 3000)
	b := append([]byte(nil), a...)
	b[1500] = "ACGT"[(bytes.IndexByte([]byte("ACGT"), a[1500])+1)%4]

	res, err := e.Align(a, b, FixedEnds)
	if err != nil {
		t.Fatalf("Align error: %v", err)
	}
	if res.Method != MethodSeed {
		t.Fatalf("method = %q, want seed", res.Method)
	}
	if res.Matches != 2999 || res.Columns != 3000 {
		t.Fatalf("matches/columns = %d/%d, want 2999/3000", res.Matches, res.Columns)
	}
	n, m := consumed(res.Script)
	if n != 3000 || m != 3000 {
		t.Fatalf("consumed = %d/%d, want 3000/3000", n, m)
	}
}

func lowIdentityPair() ([]byte, []byte) {
	shared1, shared2 := randomSeq(10, 100), randomSeq(11, 100)
	a := join(shared1, randomSeq(12, 800), shared2)
	b := join(shared1, randomSeq(13, 800), shared2)
	return a, b
}

func TestAlignLowIdentityFallsBackToDP(t *testing.T) {
	cfg := config.Default().Align
	cfg.SmallThreshold = 500
	e := New(cfg)

	a, b := lowIdentityPair()
	res, err := e.Align(a, b, FixedEnds)
	if err != nil {
		t.Fatalf("Align error: %v", err)
	}
	if res.Method != MethodDP {
		t.Fatalf("method = %q, want dp", res.Method)
	}
}

func TestAlignLowIdentityAcceptedWithWarning(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	logger.Use(zap.New(core))
	defer logger.Use(zap.NewNop())

	cfg := config.Default().Align
	cfg.SmallThreshold = 500
	cfg.MaxDPCells = 1
	e := New(cfg)

	a, b := lowIdentityPair()
	res, err := e.Align(a, b, FixedEnds)
	if err != nil {
		t.Fatalf("Align error: %v", err)
	}
	if res.Method != MethodSeed {
		t.Fatalf("method = %q, want seed", res.Method)
	}
	if res.Identity >= cfg.MinIdentity {
		t.Fatalf("identity = %v, want below %v", res.Identity, cfg.MinIdentity)
	}
	if got := logs.FilterMessage("accepting low identity alignment").Len(); got != 1 {
		t.Fatalf("warnings = %d, want 1", got)
	}
}

func TestAlignFailsWithoutSeedsOrRoom(t *testing.T) {
	logger.Use(zap.NewNop())
	cfg := config.Default().Align
	cfg.SmallThreshold = 500
	cfg.MaxDPCells = 1
	e := New(cfg)

	_, err := e.Align(randomSeq(20, 2000), randomSeq(21, 2000), FreeEnds)
	if !errors.Is(err, ErrAlignmentFailed) {
		t.Fatalf("err = %v, want ErrAlignmentFailed", err)
	}
}

func TestAlignEmptyInput(t *testing.T) {
	e := New(config.Default().Align)
	res, err := e.Align(nil, []byte("ACGT"), FreeEnds)
	if err != nil {
		t.Fatalf("Align error: %v", err)
	}
	if len(res.Script) != 1 || res.Script[0] != (Run{OpGap1, 4}) {
		t.Fatalf("script = %v, want [I4]", res.Script)
	}
}

func TestFindBlocksSkipsRepeatedKmers(t *testing.T) {
	poly := bytes.Repeat([]byte("A"), 3000)
	if blocks := findBlocks(poly, poly, 12, 20); len(blocks) != 0 {
		t.Fatalf("blocks on a homopolymer = %d, want 0", len(blocks))
	}
}

func TestAlignLowComplexityUsesFlanks(t *testing.T) {
	cfg := config.Default().Align
	cfg.SmallThreshold = 500
	cfg.MaxDPCells = 1
	e := New(cfg)

	a := join(randomSeq(30, 400), bytes.Repeat([]byte("CA"), 2000), randomSeq(31, 400))
	res, err := e.Align(a, a, FixedEnds)
	if err != nil {
		t.Fatalf("Align error: %v", err)
	}
	if res.Method != MethodSeed {
		t.Fatalf("method = %q, want seed", res.Method)
	}
	if res.Matches != len(a) || res.Columns != len(a) {
		t.Fatalf("matches/columns = %d/%d, want %d/%d", res.Matches, res.Columns, len(a), len(a))
	}
}
