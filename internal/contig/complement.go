package contig

import (
	"context"
	"fmt"
	"sort"

	"github.com/kobzarvs/gapedit/internal/coord"
	"github.com/kobzarvs/gapedit/internal/logger"
	"github.com/kobzarvs/gapedit/internal/metrics"
)

// Complement reverse-complements the whole contig in place. It needs the
// contig's exclusive write lock and cannot be undone: the undo log is
// cleared.
func (db *DB) Complement(ctx context.Context) error {
	if err := db.writable(); err != nil {
		return err
	}
	ok, err := db.store.LockWrite(ctx, db.ContigID)
	if err != nil {
		return fmt.Errorf("%w: lock contig %d: %v", ErrIO, db.ContigID, err)
	}
	if !ok {
		return fmt.Errorf("%w: contig %d is locked", ErrBusy, db.ContigID)
	}
	defer func() {
		if err := db.store.Unlock(ctx, db.ContigID); err != nil {
			logger.Error("unlock after complement", "contig", db.ContigID, "err", err)
		}
	}()

	consLen := db.recs[0].Length
	for _, r := range db.recs[1:] {
		r.RelPos = consLen - r.Last() + 1
		coord.ReverseComplement(r.Seq)
		coord.Reverse(r.Conf)
		coord.Reverse(r.OrigPos)
		r.Start, r.End = r.Length2-r.End+1, r.Length2-r.Start+1
		r.Complemented = !r.Complemented
		complementTags(r.tags, r.Length2, false)
		r.Flags |= FlagSeqModified | FlagRelModified | FlagTagModified
	}
	complementTags(db.recs[0].tags, consLen, true)
	db.recs[0].Flags |= FlagTagModified

	db.buildOrder()
	if len(db.order) > 0 {
		if first := db.recs[db.order[0]].RelPos; first != 1 {
			for _, r := range db.recs[1:] {
				r.RelPos += 1 - first
			}
			for t := db.recs[0].tags.next; t != nil; t = t.next {
				t.Position += 1 - first
			}
		}
	}
	db.recs[0].Length = db.computeLength()

	db.cursor.Pos = db.recs[db.cursor.Seq].Length + 2 - db.cursor.Pos
	db.display = max(1, consLen-db.display+1)
	db.undo.reset()

	logger.Info("contig complemented", "contig", db.ContigID, "length", db.recs[0].Length)
	metrics.Edit("complement")
	db.notify(ctx, Event{Kind: EventComplement, Length: db.recs[0].Length})
	db.redraw(RedisplayAll, 0, 0)
	return nil
}

// complementTags mirrors every tag onto the other strand of a sequence
// of length total and restores position order.
func complementTags(head *Tag, total int, flipSense bool) {
	var tags []*Tag
	for t := head.next; t != nil; t = t.next {
		tags = append(tags, t)
	}
	coord.Reverse(tags)
	for _, t := range tags {
		t.Position = coord.ComplementInterval(total, t.Position, t.Length)
		t.Flags |= TagPositionChanged
		if flipSense && t.Sense < 2 {
			t.Sense = 1 - t.Sense
			t.Flags |= TagSenseChanged
		}
	}
	sort.SliceStable(tags, func(a, b int) bool { return tags[a].Position < tags[b].Position })
	p := head
	for _, t := range tags {
		p.next = t
		p = t
	}
	p.next = nil
}
