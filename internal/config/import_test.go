package config

import (
	"path/filepath"
	"testing"
)

func TestLoadImport(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "contigs.toml")
	writeFile(t, path, `
[[contig]]
name = "c1"
notes = ["assembled by hand"]

[[contig.tag]]
type = "COMM"
position = 3
length = 2
comment = "check this"

[[contig.read]]
name = "r1"
position = 1
sequence = "nnacgt acgt"
left-cutoff = 2

[[contig.read.tag]]
type = "OLIG"
position = 4
length = 3
`)

	f, err := LoadImport(path)
	if err != nil {
		t.Fatalf("LoadImport error: %v", err)
	}
	if len(f.Contigs) != 1 {
		t.Fatalf("Contigs len = %d, want 1", len(f.Contigs))
	}
	c := f.Contigs[0]
	if len(c.Reads) != 1 || len(c.Tags) != 1 || len(c.Notes) != 1 {
		t.Fatalf("contig = %+v, want 1 read, 1 tag, 1 note", c)
	}
	r := c.Reads[0]
	if r.Sequence != "NNACGTACGT" {
		t.Fatalf("Sequence = %q, want %q", r.Sequence, "NNACGTACGT")
	}
	if got := r.Used(); got != "ACGTACGT" {
		t.Fatalf("Used = %q, want %q", got, "ACGTACGT")
	}
	if len(r.Tags) != 1 || r.Tags[0].Type != "OLIG" {
		t.Fatalf("read tags = %+v, want one OLIG", r.Tags)
	}
}
