package config

import (
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// ImportTag is an annotation in an import file. Position is 1-based in the
// read's cutoff-inclusive sequence, or in contig coordinates for consensus tags.
type ImportTag struct {
	Type     string `toml:"type"`
	Position int    `toml:"position"`
	Length   int    `toml:"length"`
	Sense    int    `toml:"sense"`
	Comment  string `toml:"comment"`
}

type ImportRead struct {
	Name         string      `toml:"name"`
	Position     int         `toml:"position"`
	Sequence     string      `toml:"sequence"`
	Confidence   []int       `toml:"confidence"`
	LeftCutoff   int         `toml:"left-cutoff"`
	RightCutoff  int         `toml:"right-cutoff"`
	Complemented bool        `toml:"complemented"`
	Tags         []ImportTag `toml:"tag"`
}

type ImportContig struct {
	Name  string       `toml:"name"`
	Reads []ImportRead `toml:"read"`
	Tags  []ImportTag  `toml:"tag"`
	Notes []string     `toml:"notes"`
}

type ImportFile struct {
	Contigs []ImportContig `toml:"contig"`
}

// Used returns the clipped part of the read sequence.
func (r ImportRead) Used() string {
	end := len(r.Sequence) - r.RightCutoff
	if r.LeftCutoff > end {
		return ""
	}
	return r.Sequence[r.LeftCutoff:end]
}

func LoadImport(path string) (ImportFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ImportFile{}, err
	}
	var f ImportFile
	if _, err := toml.Decode(string(data), &f); err != nil {
		return ImportFile{}, err
	}
	for i := range f.Contigs {
		for j := range f.Contigs[i].Reads {
			r := &f.Contigs[i].Reads[j]
			r.Sequence = strings.ToUpper(strings.Join(strings.Fields(r.Sequence), ""))
		}
	}
	return f, nil
}
