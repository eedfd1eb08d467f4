// Package memstore is a map-backed store.Store. Every value is copied on the
// way in and out so callers never alias stored buffers.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/kobzarvs/gapedit/internal/store"
)

type Store struct {
	mu       sync.Mutex
	contigs  []store.Contig // index 0 unused
	readings map[int]store.Reading
	tags     map[int]store.Tag
	comments map[int]string
	notes    map[int]store.Note
	locks    map[int]bool
	next     int
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		contigs:  make([]store.Contig, 1),
		readings: make(map[int]store.Reading),
		tags:     make(map[int]store.Tag),
		comments: make(map[int]string),
		notes:    make(map[int]store.Note),
		locks:    make(map[int]bool),
	}
}

func (s *Store) alloc() int {
	s.next++
	return s.next
}

func (s *Store) NumContigs(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.contigs) - 1, nil
}

func (s *Store) Contig(ctx context.Context, id int) (store.Contig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id < 1 || id >= len(s.contigs) {
		return store.Contig{}, fmt.Errorf("contig %d: %w", id, store.ErrNotFound)
	}
	return s.contigs[id], nil
}

func (s *Store) AddContig(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := len(s.contigs)
	s.contigs = append(s.contigs, store.Contig{ID: id})
	return id, nil
}

func (s *Store) PutContig(ctx context.Context, c store.Contig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID < 1 || c.ID >= len(s.contigs) {
		return fmt.Errorf("contig %d: %w", c.ID, store.ErrNotFound)
	}
	s.contigs[c.ID] = c
	return nil
}

func (s *Store) DeleteContig(ctx context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	last := len(s.contigs) - 1
	if id < 1 || id > last {
		return fmt.Errorf("contig %d: %w", id, store.ErrNotFound)
	}
	if id != last {
		moved := s.contigs[last]
		moved.ID = id
		s.contigs[id] = moved
		s.locks[id] = s.locks[last]
	} else {
		delete(s.locks, id)
	}
	delete(s.locks, last)
	s.contigs = s.contigs[:last]
	return nil
}

func copyReading(r store.Reading) store.Reading {
	r.Sequence = slices.Clone(r.Sequence)
	r.Confidence = slices.Clone(r.Confidence)
	r.OrigPos = slices.Clone(r.OrigPos)
	return r
}

func (s *Store) Reading(ctx context.Context, id int) (store.Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.readings[id]
	if !ok {
		return store.Reading{}, fmt.Errorf("reading %d: %w", id, store.ErrNotFound)
	}
	return copyReading(r), nil
}

func (s *Store) AllocReading(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.alloc()
	s.readings[id] = store.Reading{ID: id}
	return id, nil
}

func (s *Store) PutReading(ctx context.Context, r store.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.readings[r.ID]; !ok {
		return fmt.Errorf("reading %d: %w", r.ID, store.ErrNotFound)
	}
	s.readings[r.ID] = copyReading(r)
	return nil
}

func (s *Store) Tag(ctx context.Context, id int) (store.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tags[id]
	if !ok {
		return store.Tag{}, fmt.Errorf("tag %d: %w", id, store.ErrNotFound)
	}
	return t, nil
}

func (s *Store) PutTag(ctx context.Context, t store.Tag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tags[t.ID]; !ok {
		return fmt.Errorf("tag %d: %w", t.ID, store.ErrNotFound)
	}
	s.tags[t.ID] = t
	return nil
}

func (s *Store) AllocTag(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.alloc()
	s.tags[id] = store.Tag{ID: id}
	return id, nil
}

func (s *Store) FreeTag(ctx context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tags, id)
	return nil
}

// NumTags reports how many tag records are allocated.
func (s *Store) NumTags() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tags)
}

func (s *Store) Comment(ctx context.Context, id int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.comments[id]
	if !ok {
		return "", fmt.Errorf("comment %d: %w", id, store.ErrNotFound)
	}
	return c, nil
}

func (s *Store) PutComment(ctx context.Context, text string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.alloc()
	s.comments[id] = text
	return id, nil
}

func (s *Store) FreeComment(ctx context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.comments, id)
	return nil
}

func (s *Store) Note(ctx context.Context, id int) (store.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notes[id]
	if !ok {
		return store.Note{}, fmt.Errorf("note %d: %w", id, store.ErrNotFound)
	}
	return n, nil
}

func (s *Store) PutNote(ctx context.Context, n store.Note) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.ID == 0 {
		n.ID = s.alloc()
	}
	s.notes[n.ID] = n
	return n.ID, nil
}

func (s *Store) LockWrite(ctx context.Context, contig int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locks[contig] {
		return false, nil
	}
	s.locks[contig] = true
	return true, nil
}

func (s *Store) Unlock(ctx context.Context, contig int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, contig)
	return nil
}
