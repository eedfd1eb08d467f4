// Package store describes the persisted assembly layout the editing core
// mirrors and the Store interface backends implement.
package store

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("store: record not found")
	ErrLocked   = errors.New("store: contig locked")
)

// TagType is a four character annotation code such as "COMM" or "OLIG".
type TagType [4]byte

func NewTagType(s string) TagType {
	var t TagType
	copy(t[:], "    ")
	copy(t[:], s)
	return t
}

func (t TagType) String() string { return string(t[:]) }

// Reading is one read. Length is negative when the read is complemented.
// Sequence, Confidence and OrigPos cover the full cutoff-inclusive buffer;
// the used region is Sequence[Start : End-1].
type Reading struct {
	ID         int
	Name       string
	Position   int
	Length     int
	Left       int
	Right      int
	Start      int
	End        int
	Sequence   []byte
	Confidence []byte
	OrigPos    []int
	TagHead    int
}

type Contig struct {
	ID       int
	Length   int
	Left     int
	Right    int
	TagHead  int
	NoteHead int
}

type Tag struct {
	ID       int
	Position int
	Length   int
	Type     TagType
	Sense    int
	Comment  int
	Next     int
}

type Note struct {
	ID   int
	Type TagType
	Text string
	Next int
}

// Store is the backing store consumed by the editing core.
type Store interface {
	NumContigs(ctx context.Context) (int, error)
	Contig(ctx context.Context, id int) (Contig, error)
	// AddContig appends an empty contig and returns its number.
	AddContig(ctx context.Context) (int, error)
	PutContig(ctx context.Context, c Contig) error
	// DeleteContig removes contig id. The highest numbered contig is moved
	// into the freed slot, so contig numbers are not stable across a delete.
	DeleteContig(ctx context.Context, id int) error

	Reading(ctx context.Context, id int) (Reading, error)
	AllocReading(ctx context.Context) (int, error)
	PutReading(ctx context.Context, r Reading) error

	Tag(ctx context.Context, id int) (Tag, error)
	PutTag(ctx context.Context, t Tag) error
	AllocTag(ctx context.Context) (int, error)
	FreeTag(ctx context.Context, id int) error

	Comment(ctx context.Context, id int) (string, error)
	PutComment(ctx context.Context, text string) (int, error)
	FreeComment(ctx context.Context, id int) error

	Note(ctx context.Context, id int) (Note, error)
	// PutNote writes n, allocating a new note when n.ID is zero.
	PutNote(ctx context.Context, n Note) (int, error)

	// LockWrite takes the advisory exclusive write lock on a contig. It
	// never blocks: false means another holder has it.
	LockWrite(ctx context.Context, contig int) (bool, error)
	Unlock(ctx context.Context, contig int) error
}

// ContigOfReading resolves the contig currently holding reading id by
// walking to the leftmost reading of its chain. Reading numbers survive
// contig renumbering, so this is how a retained contig is re-resolved.
func ContigOfReading(ctx context.Context, s Store, id int) (int, error) {
	seen := 0
	for {
		r, err := s.Reading(ctx, id)
		if err != nil {
			return 0, err
		}
		if r.Left == 0 {
			break
		}
		id = r.Left
		seen++
		if seen > 1<<24 {
			return 0, errors.New("store: reading chain loops")
		}
	}
	n, err := s.NumContigs(ctx)
	if err != nil {
		return 0, err
	}
	for c := 1; c <= n; c++ {
		ct, err := s.Contig(ctx, c)
		if err != nil {
			return 0, err
		}
		if ct.Left == id {
			return c, nil
		}
	}
	return 0, ErrNotFound
}

// TagChain reads a persisted tag chain starting at head.
func TagChain(ctx context.Context, s Store, head int) ([]Tag, error) {
	var tags []Tag
	for id := head; id != 0; {
		t, err := s.Tag(ctx, id)
		if err != nil {
			return nil, err
		}
		tags = append(tags, t)
		id = t.Next
		if len(tags) > 1<<24 {
			return nil, errors.New("store: tag chain loops")
		}
	}
	return tags, nil
}

// NoteChain reads a persisted note chain starting at head.
func NoteChain(ctx context.Context, s Store, head int) ([]Note, error) {
	var notes []Note
	for id := head; id != 0; {
		n, err := s.Note(ctx, id)
		if err != nil {
			return nil, err
		}
		notes = append(notes, n)
		id = n.Next
		if len(notes) > 1<<24 {
			return nil, errors.New("store: note chain loops")
		}
	}
	return notes, nil
}
