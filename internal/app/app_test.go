package app

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const twoContigs = `
[[contig]]
name = "c1"
notes = ["hand made"]

[[contig.read]]
name = "a"
position = 1
sequence = "ACGTACGTAC"

[[contig]]
name = "c2"

[[contig.read]]
name = "b"
position = 1
sequence = "GGGGCCCCAA"
`

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("WriteFile(%s) error: %v", path, err)
	}
}

// testEnv points config, state and log files into a temp dir and returns
// a database path with two imported contigs.
func testEnv(t *testing.T) (dir, db string) {
	t.Helper()
	dir = t.TempDir()
	t.Setenv("GAPEDIT_CONFIG_HOME", dir)
	t.Setenv("XDG_STATE_HOME", dir)
	t.Setenv("GAPEDIT_LOG_FILE", filepath.Join(dir, "gapedit.log"))
	db = filepath.Join(dir, "gap.db")
	src := filepath.Join(dir, "contigs.toml")
	writeFile(t, src, twoContigs)
	out := run(t, "import", "-db", db, src)
	if !strings.Contains(out, "imported contig 1 (c1)") || !strings.Contains(out, "imported contig 2 (c2)") {
		t.Fatalf("import output = %q", out)
	}
	return dir, db
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	var stdout, stderr bytes.Buffer
	a := New(args)
	a.SetOutput(&stdout, &stderr)
	if err := a.Run(); err != nil {
		t.Fatalf("gapedit %v error: %v (stderr %q)", args, err, stderr.String())
	}
	return stdout.String()
}

func TestInfo(t *testing.T) {
	_, db := testEnv(t)
	out := run(t, "info", "-db", db, "-contig", "1", "-reads", "-consensus")
	for _, want := range []string{"contig 1: length 10, 1 readings, 0 tags, 1 notes", "ACGTACGTAC"} {
		if !strings.Contains(out, want) {
			t.Fatalf("info output = %q, want it to contain %q", out, want)
		}
	}

	out = run(t, "info", "-db", db)
	if !strings.Contains(out, "contig 2: length 10") {
		t.Fatalf("info output = %q, want both contigs", out)
	}
}

func TestUndoDemoLeavesContigUnchanged(t *testing.T) {
	dir, db := testEnv(t)
	metricsFile := filepath.Join(dir, "metrics.prom")
	writeFile(t, filepath.Join(dir, "config.toml"), "[metrics]\nfile = \""+filepath.ToSlash(metricsFile)+"\"\n")

	out := run(t, "undo-demo", "-db", db, "-contig", "1", "-reading", "a", "-pos", "1", "-insert", "g")
	for _, want := range []string{"before  ACGTACGTAC", "edited  GACGTACGTAC", "undone  ACGTACGTAC", "redone  GACGTACGTAC"} {
		if !strings.Contains(out, want) {
			t.Fatalf("undo-demo output = %q, want it to contain %q", out, want)
		}
	}
	if out := run(t, "info", "-db", db, "-contig", "1"); !strings.Contains(out, "length 10") {
		t.Fatalf("info after undo-demo = %q, want length 10", out)
	}

	data, err := os.ReadFile(metricsFile)
	if err != nil {
		t.Fatalf("metrics file: %v", err)
	}
	if !strings.Contains(string(data), "gapedit_edits_total") {
		t.Fatalf("metrics file lacks gapedit_edits_total")
	}
}

func TestUndoDemoSave(t *testing.T) {
	_, db := testEnv(t)
	run(t, "undo-demo", "-db", db, "-contig", "1", "-reading", "a", "-pos", "11", "-insert", "TT", "-save")
	out := run(t, "info", "-db", db, "-contig", "1", "-consensus")
	if !strings.Contains(out, "length 12") || !strings.Contains(out, "ACGTACGTACTT") {
		t.Fatalf("info after saved edit = %q", out)
	}
}

func TestComplement(t *testing.T) {
	_, db := testEnv(t)
	run(t, "complement", "-db", db, "-contig", "2")
	out := run(t, "info", "-db", db, "-contig", "2", "-reads", "-consensus")
	if !strings.Contains(out, "TTGGGGCCCC") {
		t.Fatalf("info after complement = %q, want reverse complement", out)
	}
	if !strings.Contains(out, " - tags=0") {
		t.Fatalf("info after complement = %q, want reading marked complemented", out)
	}
}

func TestJoinWithoutAlignment(t *testing.T) {
	_, db := testEnv(t)
	out := run(t, "join", "-db", db, "-left", "1", "-right", "2", "-offset", "10", "-no-align")
	if !strings.Contains(out, "joined contig 2 into contig 1") {
		t.Fatalf("join output = %q", out)
	}
	out = run(t, "info", "-db", db, "-consensus")
	if !strings.Contains(out, "contig 1: length 20, 2 readings") || !strings.Contains(out, "ACGTACGTACGGGGCCCCAA") {
		t.Fatalf("info after join = %q", out)
	}
	if strings.Contains(out, "contig 2") {
		t.Fatalf("info after join = %q, want a single contig", out)
	}
}

func TestUsageErrors(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("GAPEDIT_CONFIG_HOME", dir)
	t.Setenv("XDG_STATE_HOME", dir)
	t.Setenv("GAPEDIT_LOG_FILE", filepath.Join(dir, "gapedit.log"))

	for _, args := range [][]string{nil, {"frobnicate"}} {
		a := New(args)
		a.SetOutput(&bytes.Buffer{}, &bytes.Buffer{})
		if err := a.Run(); !errors.Is(err, ErrUsage) {
			t.Fatalf("Run(%v) err = %v, want ErrUsage", args, err)
		}
	}
}
