// Package sqlite persists the assembly layout in a SQLite database using the
// pure-Go ncruces driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/kobzarvs/gapedit/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS contigs (
    id INTEGER PRIMARY KEY,
    length INTEGER NOT NULL DEFAULT 0,
    left_read INTEGER NOT NULL DEFAULT 0,
    right_read INTEGER NOT NULL DEFAULT 0,
    tag_head INTEGER NOT NULL DEFAULT 0,
    note_head INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS readings (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL DEFAULT '',
    position INTEGER NOT NULL DEFAULT 0,
    length INTEGER NOT NULL DEFAULT 0,
    left_read INTEGER NOT NULL DEFAULT 0,
    right_read INTEGER NOT NULL DEFAULT 0,
    start INTEGER NOT NULL DEFAULT 0,
    "end" INTEGER NOT NULL DEFAULT 0,
    sequence BLOB,
    confidence BLOB,
    opos BLOB,
    tag_head INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS tags (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    position INTEGER NOT NULL DEFAULT 0,
    length INTEGER NOT NULL DEFAULT 0,
    type BLOB,
    sense INTEGER NOT NULL DEFAULT 0,
    comment INTEGER NOT NULL DEFAULT 0,
    next INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS comments (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    text TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS notes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    type BLOB,
    text TEXT NOT NULL DEFAULT '',
    next INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS locks (
    contig INTEGER PRIMARY KEY
);
`

// Store is the SQLite-backed store.Store.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	// Locks are advisory and belong to a running process.
	if _, err := db.Exec(`DELETE FROM locks`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to clear locks: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func notFound(kind string, id int, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %d: %w", kind, id, store.ErrNotFound)
	}
	return err
}

func mustAffect(res sql.Result, kind string, id int) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", kind, id, store.ErrNotFound)
	}
	return nil
}

// encodeInts packs v as little-endian int64 values.
func encodeInts(v []int) []byte {
	buf := make([]byte, 8*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint64(buf[8*i:], uint64(int64(x)))
	}
	return buf
}

func decodeInts(b []byte) []int {
	if len(b) == 0 {
		return nil
	}
	v := make([]int, len(b)/8)
	for i := range v {
		v[i] = int(int64(binary.LittleEndian.Uint64(b[8*i:])))
	}
	return v
}

func (s *Store) NumContigs(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM contigs`).Scan(&n)
	return n, err
}

func (s *Store) Contig(ctx context.Context, id int) (store.Contig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := store.Contig{ID: id}
	err := s.db.QueryRowContext(ctx, `
		SELECT length, left_read, right_read, tag_head, note_head
		FROM contigs WHERE id = ?
	`, id).Scan(&c.Length, &c.Left, &c.Right, &c.TagHead, &c.NoteHead)
	if err != nil {
		return store.Contig{}, notFound("contig", id, err)
	}
	return c, nil
}

func (s *Store) AddContig(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM contigs`).Scan(&n); err != nil {
		return 0, err
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO contigs (id) VALUES (?)`, n+1); err != nil {
		return 0, err
	}
	return n + 1, nil
}

func (s *Store) PutContig(ctx context.Context, c store.Contig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `
		UPDATE contigs SET length = ?, left_read = ?, right_read = ?, tag_head = ?, note_head = ?
		WHERE id = ?
	`, c.Length, c.Left, c.Right, c.TagHead, c.NoteHead, c.ID)
	if err != nil {
		return err
	}
	return mustAffect(res, "contig", c.ID)
}

func (s *Store) DeleteContig(ctx context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var last int
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM contigs`).Scan(&last); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM contigs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if err := mustAffect(res, "contig", id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM locks WHERE contig = ?`, id); err != nil {
		return err
	}
	if id != last {
		if _, err := tx.ExecContext(ctx, `UPDATE contigs SET id = ? WHERE id = ?`, id, last); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE locks SET contig = ? WHERE contig = ?`, id, last); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) Reading(ctx context.Context, id int) (store.Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := store.Reading{ID: id}
	var opos []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT name, position, length, left_read, right_read, start, "end",
			sequence, confidence, opos, tag_head
		FROM readings WHERE id = ?
	`, id).Scan(&r.Name, &r.Position, &r.Length, &r.Left, &r.Right, &r.Start, &r.End,
		&r.Sequence, &r.Confidence, &opos, &r.TagHead)
	if err != nil {
		return store.Reading{}, notFound("reading", id, err)
	}
	r.OrigPos = decodeInts(opos)
	return r, nil
}

func (s *Store) AllocReading(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `INSERT INTO readings DEFAULT VALUES`)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	return int(id), err
}

func (s *Store) PutReading(ctx context.Context, r store.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `
		UPDATE readings SET name = ?, position = ?, length = ?, left_read = ?, right_read = ?,
			start = ?, "end" = ?, sequence = ?, confidence = ?, opos = ?, tag_head = ?
		WHERE id = ?
	`, r.Name, r.Position, r.Length, r.Left, r.Right, r.Start, r.End,
		r.Sequence, r.Confidence, encodeInts(r.OrigPos), r.TagHead, r.ID)
	if err != nil {
		return err
	}
	return mustAffect(res, "reading", r.ID)
}

func (s *Store) Tag(ctx context.Context, id int) (store.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := store.Tag{ID: id}
	var typ []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT position, length, type, sense, comment, next FROM tags WHERE id = ?
	`, id).Scan(&t.Position, &t.Length, &typ, &t.Sense, &t.Comment, &t.Next)
	if err != nil {
		return store.Tag{}, notFound("tag", id, err)
	}
	copy(t.Type[:], typ)
	return t, nil
}

func (s *Store) PutTag(ctx context.Context, t store.Tag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `
		UPDATE tags SET position = ?, length = ?, type = ?, sense = ?, comment = ?, next = ?
		WHERE id = ?
	`, t.Position, t.Length, t.Type[:], t.Sense, t.Comment, t.Next, t.ID)
	if err != nil {
		return err
	}
	return mustAffect(res, "tag", t.ID)
}

func (s *Store) AllocTag(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `INSERT INTO tags DEFAULT VALUES`)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	return int(id), err
}

func (s *Store) FreeTag(ctx context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM tags WHERE id = ?`, id)
	return err
}

func (s *Store) Comment(ctx context.Context, id int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var text string
	err := s.db.QueryRowContext(ctx, `SELECT text FROM comments WHERE id = ?`, id).Scan(&text)
	if err != nil {
		return "", notFound("comment", id, err)
	}
	return text, nil
}

func (s *Store) PutComment(ctx context.Context, text string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `INSERT INTO comments (text) VALUES (?)`, text)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	return int(id), err
}

func (s *Store) FreeComment(ctx context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM comments WHERE id = ?`, id)
	return err
}

func (s *Store) Note(ctx context.Context, id int) (store.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := store.Note{ID: id}
	var typ []byte
	err := s.db.QueryRowContext(ctx, `SELECT type, text, next FROM notes WHERE id = ?`, id).
		Scan(&typ, &n.Text, &n.Next)
	if err != nil {
		return store.Note{}, notFound("note", id, err)
	}
	copy(n.Type[:], typ)
	return n, nil
}

func (s *Store) PutNote(ctx context.Context, n store.Note) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.ID == 0 {
		res, err := s.db.ExecContext(ctx, `INSERT INTO notes (type, text, next) VALUES (?, ?, ?)`,
			n.Type[:], n.Text, n.Next)
		if err != nil {
			return 0, err
		}
		id, err := res.LastInsertId()
		return int(id), err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE notes SET type = ?, text = ?, next = ? WHERE id = ?`,
		n.Type[:], n.Text, n.Next, n.ID)
	if err != nil {
		return 0, err
	}
	return n.ID, mustAffect(res, "note", n.ID)
}

func (s *Store) LockWrite(ctx context.Context, contig int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO locks (contig) VALUES (?)`, contig)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Store) Unlock(ctx context.Context, contig int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM locks WHERE contig = ?`, contig)
	return err
}
