// Package align computes pairwise alignments between two consensus
// windows. Short inputs go through a banded affine-gap dynamic program;
// long inputs go through a k-mer seed-and-extend pass, falling back to
// the dynamic program when the seed result is poor and the matrix fits.
package align

import (
	"errors"
	"strings"

	"github.com/kobzarvs/gapedit/internal/config"
	"github.com/kobzarvs/gapedit/internal/logger"
	"github.com/kobzarvs/gapedit/internal/metrics"
)

var ErrAlignmentFailed = errors.New("alignment failed")

// Ends selects which sequence ends are anchored. Unanchored ends may
// overhang without penalty.
type Ends uint8

const (
	FreeEnds  Ends = 0
	FixedLeft Ends = 1 << iota
	FixedRight
	FixedEnds = FixedLeft | FixedRight
)

type Op uint8

const (
	// OpMatch aligns a base of each sequence (match or mismatch).
	OpMatch Op = iota
	// OpGap1 consumes a base of the second sequence against a pad in the first.
	OpGap1
	// OpGap2 consumes a base of the first sequence against a pad in the second.
	OpGap2
)

func (o Op) String() string {
	switch o {
	case OpMatch:
		return "M"
	case OpGap1:
		return "I"
	case OpGap2:
		return "D"
	}
	return "?"
}

type Run struct {
	Op  Op
	Len int
}

type Method string

const (
	MethodDP   Method = "dp"
	MethodSeed Method = "seed"
)

type Result struct {
	Script   []Run
	Score    int
	Identity float64
	Matches  int
	Columns  int
	Method   Method
}

// Pair is one aligned column, as 0-based indexes into each input.
type Pair struct {
	I, J int
}

// Pairs lists the columns where both sequences contribute a base.
func (r Result) Pairs() []Pair {
	var out []Pair
	i, j := 0, 0
	for _, run := range r.Script {
		switch run.Op {
		case OpMatch:
			for k := 0; k < run.Len; k++ {
				out = append(out, Pair{i + k, j + k})
			}
			i += run.Len
			j += run.Len
		case OpGap1:
			j += run.Len
		case OpGap2:
			i += run.Len
		}
	}
	return out
}

// Insertion is a block of pads that the alignment places inside one of
// the sequences: Count pads before the base at 0-based Offset.
type Insertion struct {
	Seq    int
	Offset int
	Count  int
}

// Insertions lists the internal gaps of the alignment. Leading and
// trailing gaps are overhangs, not pads.
func (r Result) Insertions() []Insertion {
	var out []Insertion
	first, last := -1, -1
	for k, run := range r.Script {
		if run.Op == OpMatch {
			if first < 0 {
				first = k
			}
			last = k
		}
	}
	i, j := 0, 0
	for k, run := range r.Script {
		internal := k > first && k < last
		switch run.Op {
		case OpMatch:
			i += run.Len
			j += run.Len
		case OpGap1:
			if internal {
				out = append(out, Insertion{Seq: 1, Offset: i, Count: run.Len})
			}
			j += run.Len
		case OpGap2:
			if internal {
				out = append(out, Insertion{Seq: 2, Offset: j, Count: run.Len})
			}
			i += run.Len
		}
	}
	return out
}

// Strings renders both aligned rows with '*' for pads.
func (r Result) Strings(a, b []byte) (string, string) {
	var s1, s2 strings.Builder
	i, j := 0, 0
	for _, run := range r.Script {
		for k := 0; k < run.Len; k++ {
			switch run.Op {
			case OpMatch:
				s1.WriteByte(a[i])
				s2.WriteByte(b[j])
				i++
				j++
			case OpGap1:
				s1.WriteByte('*')
				s2.WriteByte(b[j])
				j++
			case OpGap2:
				s1.WriteByte(a[i])
				s2.WriteByte('*')
				i++
			}
		}
	}
	return s1.String(), s2.String()
}

type Scoring struct {
	Match, Mismatch, GapOpen, GapExtend int
}

func (s Scoring) pair(x, y byte) int32 {
	x, y = upper(x), upper(y)
	if x == 'N' || y == 'N' || x == '-' || y == '-' {
		return 0
	}
	if x == y {
		return int32(s.Match)
	}
	return int32(s.Mismatch)
}

type Engine struct {
	cfg     config.AlignOptions
	scoring Scoring
}

func New(cfg config.AlignOptions) *Engine {
	return &Engine{
		cfg: cfg,
		scoring: Scoring{
			Match:     cfg.Match,
			Mismatch:  cfg.Mismatch,
			GapOpen:   cfg.GapOpen,
			GapExtend: cfg.GapExtend,
		},
	}
}

// Align aligns a against b. The resulting script consumes both inputs
// completely.
func (e *Engine) Align(a, b []byte, ends Ends) (Result, error) {
	if len(a) == 0 || len(b) == 0 {
		res := finish(gapOnly(len(a), len(b)), a, b, e.scoring)
		res.Method = MethodDP
		return res, nil
	}

	if max(len(a), len(b)) < e.cfg.SmallThreshold {
		res := e.dp(a, b, ends)
		metrics.Alignment(string(MethodDP), "ok")
		return res, nil
	}

	cellsOK := dpCells(len(a), len(b), e.cfg.BandMin) <= e.cfg.MaxDPCells
	res, ok := seedAlign(a, b, ends, e.scoring, e.cfg)
	if !ok {
		if cellsOK {
			logger.Debug("no seed matches, using dynamic programming", "len1", len(a), "len2", len(b))
			res = e.dp(a, b, ends)
			metrics.Alignment(string(MethodDP), "fallback")
			return res, nil
		}
		metrics.Alignment(string(MethodSeed), "failed")
		logger.Warn("alignment failed", "len1", len(a), "len2", len(b), "reason", "no seed matches")
		return Result{}, ErrAlignmentFailed
	}

	if res.Identity < e.cfg.MinIdentity {
		if cellsOK {
			logger.Debug("low seed identity, retrying with dynamic programming",
				"identity", res.Identity, "min", e.cfg.MinIdentity)
			res = e.dp(a, b, ends)
			metrics.Alignment(string(MethodDP), "fallback")
			return res, nil
		}
		logger.Warn("accepting low identity alignment",
			"identity", res.Identity, "min", e.cfg.MinIdentity, "len1", len(a), "len2", len(b))
		metrics.Alignment(string(MethodSeed), "low_identity")
		return res, nil
	}

	metrics.Alignment(string(MethodSeed), "ok")
	return res, nil
}

func (e *Engine) dp(a, b []byte, ends Ends) Result {
	res := bandedAlign(a, b, ends, e.scoring, bandWidth(len(a), len(b), e.cfg.BandMin))
	res.Method = MethodDP
	return res
}

func bandWidth(n, m, bandMin int) int {
	return max(bandMin, min(n, m)/10)
}

func dpCells(n, m, bandMin int) int {
	w := bandWidth(n, m, bandMin)
	d := n - m
	if d < 0 {
		d = -d
	}
	return (n + 1) * (d + 2*w + 1)
}

func gapOnly(n, m int) []Run {
	var out []Run
	if n > 0 {
		out = append(out, Run{OpGap2, n})
	}
	if m > 0 {
		out = append(out, Run{OpGap1, m})
	}
	return out
}

// finish merges adjacent runs and scores the script. Identity counts
// matching columns over all aligned columns between the first and last
// match, so overhangs do not dilute it.
func finish(script []Run, a, b []byte, sc Scoring) Result {
	script = compact(script)
	res := Result{Script: script}

	first, last := -1, -1
	for k, run := range script {
		if run.Op == OpMatch {
			if first < 0 {
				first = k
			}
			last = k
		}
	}

	i, j := 0, 0
	var score int32
	for k, run := range script {
		internal := k > first && k < last
		switch run.Op {
		case OpMatch:
			for x := 0; x < run.Len; x++ {
				score += sc.pair(a[i+x], b[j+x])
				if upper(a[i+x]) == upper(b[j+x]) {
					res.Matches++
				}
			}
			res.Columns += run.Len
			i += run.Len
			j += run.Len
		case OpGap1, OpGap2:
			if internal {
				res.Columns += run.Len
				score += int32(sc.GapOpen + sc.GapExtend*run.Len)
			}
			if run.Op == OpGap1 {
				j += run.Len
			} else {
				i += run.Len
			}
		}
	}
	res.Score = int(score)
	if res.Columns > 0 {
		res.Identity = float64(res.Matches) / float64(res.Columns)
	}
	return res
}

func compact(script []Run) []Run {
	out := script[:0]
	for _, run := range script {
		if run.Len <= 0 {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Op == run.Op {
			out[n-1].Len += run.Len
			continue
		}
		out = append(out, run)
	}
	return out
}

func upper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - 'a' + 'A'
	}
	return c
}
