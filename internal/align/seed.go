package align

import (
	"sort"

	"github.com/kobzarvs/gapedit/internal/config"
)

// fillCells bounds the full-matrix dynamic program used between seeds.
const fillCells = 1 << 20

// maxKmerOcc drops k-mers seen more often than this in the indexed
// sequence, keeping seed lookup linear on low-complexity input.
const maxKmerOcc = 32

type block struct {
	i, j, n int
}

// seedAlign finds exact k-mer matches of a in b, extends them into
// diagonal blocks, chains the heaviest consistent set of blocks and
// fills the regions between them. ok is false when no block reaches the
// minimum match length.
func seedAlign(a, b []byte, ends Ends, sc Scoring, cfg config.AlignOptions) (Result, bool) {
	k := cfg.Kmer
	if k > 32 {
		k = 32
	}
	shorter := min(len(a), len(b))
	if k <= 0 || shorter < k {
		return Result{}, false
	}
	minMatch := max(k, min(shorter/20, cfg.MaxSeedMatch))

	blocks := findBlocks(a, b, k, minMatch)
	if len(blocks) == 0 {
		return Result{}, false
	}
	chain := heaviestChain(blocks)

	var script []Run
	pi, pj := 0, 0
	for n, blk := range chain {
		regionEnds := FixedEnds
		if n == 0 {
			regionEnds = ends | FixedRight
		}
		script = append(script, fill(a[pi:blk.i], b[pj:blk.j], regionEnds, sc)...)
		script = append(script, Run{OpMatch, blk.n})
		pi, pj = blk.i+blk.n, blk.j+blk.n
	}
	script = append(script, fillTail(a[pi:], b[pj:], ends|FixedLeft, sc)...)

	res := finish(script, a, b, sc)
	res.Method = MethodSeed
	return res, true
}

func findBlocks(a, b []byte, k, minMatch int) []block {
	index := make(map[uint64][]int)
	kmers(b, k, func(pos int, key uint64) {
		index[key] = append(index[key], pos)
	})
	for key, at := range index {
		if len(at) > maxKmerOcc {
			delete(index, key)
		}
	}

	// reach[d] is the end of the last block found on diagonal d; hits
	// inside it are already covered.
	reach := make(map[int]int)
	var blocks []block
	kmers(a, k, func(i int, key uint64) {
		for _, j := range index[key] {
			d := j - i
			if end, ok := reach[d]; ok && i < end {
				continue
			}
			s, e := i, i+k
			for s > 0 && s+d > 0 && upper(a[s-1]) == upper(b[s-1+d]) {
				s--
			}
			for e < len(a) && e+d < len(b) && upper(a[e]) == upper(b[e+d]) {
				e++
			}
			reach[d] = e
			if e-s >= minMatch {
				blocks = append(blocks, block{i: s, j: s + d, n: e - s})
			}
		}
	})
	return blocks
}

// kmers calls fn for every k-mer of s made only of A, C, G and T, with
// its 2-bit packed key.
func kmers(s []byte, k int, fn func(pos int, key uint64)) {
	var key uint64
	mask := uint64(1)<<(2*uint(k)) - 1
	if k == 32 {
		mask = ^uint64(0)
	}
	valid := 0
	for p, c := range s {
		var code uint64
		switch upper(c) {
		case 'A':
			code = 0
		case 'C':
			code = 1
		case 'G':
			code = 2
		case 'T':
			code = 3
		default:
			valid = 0
			key = 0
			continue
		}
		key = (key<<2 | code) & mask
		valid++
		if valid >= k {
			fn(p-k+1, key)
		}
	}
}

// heaviestChain picks the set of non-overlapping blocks, increasing in
// both sequences, with the largest total length.
func heaviestChain(blocks []block) []block {
	sort.Slice(blocks, func(x, y int) bool {
		if blocks[x].i != blocks[y].i {
			return blocks[x].i < blocks[y].i
		}
		return blocks[x].j < blocks[y].j
	})

	weight := make([]int, len(blocks))
	prev := make([]int, len(blocks))
	bestEnd := 0
	for x := range blocks {
		weight[x] = blocks[x].n
		prev[x] = -1
		for y := 0; y < x; y++ {
			if blocks[y].i+blocks[y].n > blocks[x].i || blocks[y].j+blocks[y].n > blocks[x].j {
				continue
			}
			if w := weight[y] + blocks[x].n; w > weight[x] {
				weight[x] = w
				prev[x] = y
			}
		}
		if weight[x] > weight[bestEnd] {
			bestEnd = x
		}
	}

	var chain []block
	for x := bestEnd; x >= 0; x = prev[x] {
		chain = append(chain, blocks[x])
	}
	for l, r := 0, len(chain)-1; l < r; l, r = l+1, r-1 {
		chain[l], chain[r] = chain[r], chain[l]
	}
	return chain
}

// fill aligns the region in front of a block.
func fill(a, b []byte, ends Ends, sc Scoring) []Run {
	if len(a) == 0 || len(b) == 0 {
		return gapOnly(len(a), len(b))
	}
	if len(a)*len(b) <= fillCells {
		return bandedAlign(a, b, ends, sc, max(len(a), len(b))).Script
	}
	// Too large for a full matrix: keep the diagonal next to the block
	// and put the length difference in one gap run away from it.
	n := min(len(a), len(b))
	runs := gapOnly(len(a)-n, len(b)-n)
	return append(runs, Run{OpMatch, n})
}

func fillTail(a, b []byte, ends Ends, sc Scoring) []Run {
	if len(a) == 0 || len(b) == 0 {
		return gapOnly(len(a), len(b))
	}
	if len(a)*len(b) <= fillCells {
		return bandedAlign(a, b, ends, sc, max(len(a), len(b))).Script
	}
	n := min(len(a), len(b))
	return append([]Run{{OpMatch, n}}, gapOnly(len(a)-n, len(b)-n)...)
}
