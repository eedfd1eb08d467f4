package contig

import (
	"github.com/kobzarvs/gapedit/internal/coord"
	"github.com/kobzarvs/gapedit/internal/store"
)

// Flags track per-record state; the modified bits decide what Save writes.
type Flags uint32

const (
	FlagSeqModified Flags = 1 << iota
	FlagRelModified
	FlagTagModified
	FlagNoteModified
	FlagLoaded
	FlagSelected
	FlagReference

	FlagModified = FlagSeqModified | FlagRelModified | FlagTagModified | FlagNoteModified
)

// Record is one reading in the contig, or the consensus at index 0.
//
// The used region of Seq is Seq[Start : Start+Length]; Start bases are
// cut off on the left and Length2-End+1 on the right.
type Record struct {
	Name         string
	RelPos       int
	Length       int
	Length2      int
	Start        int
	End          int
	Complemented bool
	Seq          []byte
	Conf         []byte
	OrigPos      []int
	Flags        Flags
	RefOffset    int

	// ID is the reading id in the store; zero for the consensus.
	ID int

	tags     *Tag
	savedIDs []int
	prev     int
	next     int
}

func (r *Record) LenLeftCutoff() int  { return coord.LenLeftCutoff(r.Start) }
func (r *Record) LenRightCutoff() int { return coord.LenRightCutoff(r.Length2, r.End) }

// Last is the last contig column covered by the record.
func (r *Record) Last() int { return r.RelPos + r.Length - 1 }

// Used returns the visible bases.
func (r *Record) Used() []byte { return r.Seq[r.Start : r.Start+r.Length] }

func (r *Record) Prev() int { return r.prev }
func (r *Record) Next() int { return r.next }

// Tags lists the record's annotations in position order.
func (r *Record) Tags() []*Tag {
	var out []*Tag
	for t := r.tags.next; t != nil; t = t.next {
		out = append(out, t)
	}
	return out
}

func newRecordFromReading(rd store.Reading) *Record {
	length := rd.Length
	comp := false
	if length < 0 {
		length = -length
		comp = true
	}
	r := &Record{
		Name:         rd.Name,
		RelPos:       rd.Position,
		Length:       length,
		Length2:      len(rd.Sequence),
		Start:        rd.Start,
		End:          rd.End,
		Complemented: comp,
		Seq:          append([]byte(nil), rd.Sequence...),
		Conf:         append([]byte(nil), rd.Confidence...),
		OrigPos:      append([]int(nil), rd.OrigPos...),
		ID:           rd.ID,
		Flags:        FlagLoaded,
		tags:         &Tag{},
	}
	if len(r.Conf) < r.Length2 {
		r.Conf = append(r.Conf, make([]byte, r.Length2-len(r.Conf))...)
	}
	if len(r.OrigPos) < r.Length2 {
		for i := len(r.OrigPos); i < r.Length2; i++ {
			r.OrigPos = append(r.OrigPos, i+1)
		}
	}
	return r
}

func (r *Record) reading(prev, next int, tagHead int) store.Reading {
	length := r.Length
	if r.Complemented {
		length = -length
	}
	return store.Reading{
		ID:         r.ID,
		Name:       r.Name,
		Position:   r.RelPos,
		Length:     length,
		Left:       prev,
		Right:      next,
		Start:      r.Start,
		End:        r.End,
		Sequence:   append([]byte(nil), r.Seq...),
		Confidence: append([]byte(nil), r.Conf...),
		OrigPos:    append([]int(nil), r.OrigPos...),
		TagHead:    tagHead,
	}
}

// Cursor is the edit position: a record index and a 1-based column
// within its used region.
type Cursor struct {
	Seq int
	Pos int
}
