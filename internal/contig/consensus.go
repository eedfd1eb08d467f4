package contig

import (
	"bytes"
	"fmt"

	"github.com/kobzarvs/gapedit/internal/coord"
)

const consensusSymbols = "ACGT*N"

func symbolIndex(b byte) int {
	switch b {
	case 'A', 'a':
		return 0
	case 'C', 'c':
		return 1
	case 'G', 'g':
		return 2
	case 'T', 't':
		return 3
	case coord.Pad:
		return 4
	}
	return 5
}

// Consensus returns the majority base for columns from..to inclusive.
// Ties go to the symbol first in "ACGT*N"; uncovered columns are '-'.
func (db *DB) Consensus(from, to int) []byte {
	from = max(from, 1)
	to = min(to, db.recs[0].Length)
	if to < from {
		return nil
	}
	counts := make([][len(consensusSymbols)]int, to-from+1)
	for _, seq := range db.order {
		r := db.recs[seq]
		if r.RelPos > to {
			break
		}
		if r.Last() < from {
			continue
		}
		used := r.Used()
		for col := max(from, r.RelPos); col <= min(to, r.Last()); col++ {
			counts[col-from][symbolIndex(used[col-r.RelPos])]++
		}
	}
	out := make([]byte, len(counts))
	for i, c := range counts {
		best, bestN := -1, 0
		for k, n := range c {
			if n > bestN {
				best, bestN = k, n
			}
		}
		if best < 0 {
			out[i] = '-'
			continue
		}
		out[i] = consensusSymbols[best]
	}
	return out
}

// DepaddedConsensus returns the consensus of from..to with pads removed
// and, for each kept base, its contig column.
func (db *DB) DepaddedConsensus(from, to int) ([]byte, []int) {
	cons := db.Consensus(from, to)
	depadded, index := coord.Depad(cons)
	for i := range index {
		index[i] += max(from, 1)
	}
	return depadded, index
}

// padConf is the confidence of a pad inserted at raw index raw of r:
// the lower of its neighbours.
func padConf(r *Record, raw int) byte {
	var left, right byte = 0, 0
	haveLeft, haveRight := raw > 0, raw < len(r.Conf)
	if haveLeft {
		left = r.Conf[raw-1]
	}
	if haveRight {
		right = r.Conf[raw]
	}
	switch {
	case haveLeft && haveRight:
		return min(left, right)
	case haveLeft:
		return left
	case haveRight:
		return right
	}
	return 0
}

// InsertBasesConsensus inserts n pad columns before contig column pos:
// readings spanning the column get pads, readings starting at or after
// it move right.
func (db *DB) InsertBasesConsensus(pos, n int) (Outcome, error) {
	if err := db.writable(); err != nil {
		return Applied, err
	}
	if n <= 0 || pos < 1 || pos > db.recs[0].Length+1 {
		return Applied, fmt.Errorf("%w: insert %d columns at %d (length %d)", ErrBoundsExceeded, n, pos, db.recs[0].Length)
	}

	db.undo.begin()
	db.insertColumns(pos, n)
	out := db.undo.end()
	db.edited("insert-consensus", RedisplayAll, 0, pos)
	return out, nil
}

func (db *DB) insertColumns(pos, n int) {
	pads := bytes.Repeat([]byte{coord.Pad}, n)
	for k := len(db.order) - 1; k >= 0; k-- {
		seq := db.order[k]
		r := db.recs[seq]
		switch {
		case r.RelPos >= pos:
			db.shiftSeq(seq, n)
		case r.Last() >= pos:
			at := pos - r.RelPos + 1
			conf := bytes.Repeat([]byte{padConf(r, r.Start+at-1)}, n)
			db.insertBases(seq, at, pads, conf, make([]int, n))
			if db.cursor.Seq == seq && db.cursor.Pos >= at {
				db.setCursor(Cursor{Seq: seq, Pos: db.cursor.Pos + n})
			}
		}
	}
	db.insertBases(0, pos, pads, nil, nil)
	if db.cursor.Seq == 0 && db.cursor.Pos >= pos {
		db.setCursor(Cursor{Seq: 0, Pos: db.cursor.Pos + n})
	}
	if db.display > pos {
		db.setDisplay(db.display + n)
	}
	db.syncLength()
}

// DeleteBasesConsensus removes up to n contig columns starting at pos
// from every reading. Readings starting inside the range move to pos,
// readings after it move left by n. A reading lying wholly inside the
// range would vanish, so that is rejected.
func (db *DB) DeleteBasesConsensus(pos, n int) (Outcome, error) {
	if err := db.writable(); err != nil {
		return Applied, err
	}
	length := db.recs[0].Length
	if pos < 1 || pos > length {
		return Applied, fmt.Errorf("%w: delete at column %d (length %d)", ErrBoundsExceeded, pos, length)
	}
	n = min(n, length-pos+1)
	if n <= 0 {
		return Applied, fmt.Errorf("%w: delete %d columns", ErrBoundsExceeded, n)
	}
	q := pos + n - 1
	for _, seq := range db.order {
		r := db.recs[seq]
		if r.RelPos >= pos && r.Last() <= q {
			return Applied, fmt.Errorf("%w: deleting columns %d-%d would empty %q", ErrBoundsExceeded, pos, q, r.Name)
		}
	}

	db.undo.begin()
	for _, seq := range db.Order() {
		r := db.recs[seq]
		a, b := r.RelPos, r.Last()
		if lo, hi := max(a, pos), min(b, q); lo <= hi {
			db.deleteBases(seq, lo-a+1, hi-lo+1)
			if db.cursor.Seq == seq && db.cursor.Pos > lo-a+1 {
				db.setCursor(Cursor{Seq: seq, Pos: max(lo-a+1, db.cursor.Pos-(hi-lo+1))})
			}
		}
		switch {
		case a > q:
			db.shiftSeq(seq, -n)
		case a > pos:
			db.shiftSeq(seq, pos-a)
		}
	}
	db.deleteBases(0, pos, n)
	if db.cursor.Seq == 0 && db.cursor.Pos > pos {
		db.setCursor(Cursor{Seq: 0, Pos: max(pos, db.cursor.Pos-n)})
	}
	if db.display > pos {
		db.setDisplay(max(pos, db.display-n))
	}
	db.syncLength()
	out := db.undo.end()
	db.edited("delete-consensus", RedisplayAll, 0, pos)
	return out, nil
}
