// Package join merges two contigs. Aligning their overlap pads both so
// that the overlapping consensus agrees column for column; merging then
// splices the right contig's readings, annotations and notes onto the
// left contig in the store and deletes the right contig.
package join

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/kobzarvs/gapedit/internal/align"
	"github.com/kobzarvs/gapedit/internal/config"
	"github.com/kobzarvs/gapedit/internal/contig"
	"github.com/kobzarvs/gapedit/internal/logger"
	"github.com/kobzarvs/gapedit/internal/metrics"
)

var (
	ErrNoOverlap   = errors.New("contigs do not overlap")
	ErrSameContig  = errors.New("cannot join a contig to itself")
	ErrUnusableHit = errors.New("alignment has no matching columns")
)

// Bus is what the joiner needs from the notification bus.
type Bus interface {
	contig.Notifier
	Merge(from, into int)
	Renumber(ctx context.Context, from, to int)
}

// Request places the right contig against the left one: right column x
// lies on left column x+Offset.
type Request struct {
	Offset int
	Ends   align.Ends
	// From and To, when set, pin the window ends at these left columns
	// (the editors' cursors) and anchor the alignment there.
	From, To int
}

// Window is the stretch of each contig handed to the aligner, in the
// contigs' own columns.
type Window struct {
	LeftFrom, LeftTo   int
	RightFrom, RightTo int
}

// Plan is an applied alignment.
type Plan struct {
	Window  Window
	Result  align.Result
	Offset  int
	Pads    int
	Outcome contig.Outcome
}

type Joiner struct {
	engine *align.Engine
	bus    Bus
	margin float64
}

func New(engine *align.Engine, bus Bus, cfg config.JoinOptions) *Joiner {
	return &Joiner{engine: engine, bus: bus, margin: cfg.Margin}
}

// OverlapWindow computes the alignment window for contigs of lengths
// lenL and lenR at offset. Free ends are widened by margin times the
// overlap length to leave room for indels; every end is clipped to its
// contig.
func OverlapWindow(lenL, lenR int, req Request, margin float64) (Window, align.Ends, error) {
	lo := max(1, req.Offset+1)
	hi := min(lenL, req.Offset+lenR)
	ends := req.Ends
	if req.From > 0 {
		lo = max(lo, req.From)
		ends |= align.FixedLeft
	}
	if req.To > 0 {
		hi = min(hi, req.To)
		ends |= align.FixedRight
	}
	if lo > hi {
		return Window{}, ends, fmt.Errorf("%w: offset %d, lengths %d and %d", ErrNoOverlap, req.Offset, lenL, lenR)
	}

	m := int(math.Ceil(margin * float64(hi-lo+1)))
	w := Window{
		LeftFrom:  lo,
		LeftTo:    hi,
		RightFrom: lo - req.Offset,
		RightTo:   hi - req.Offset,
	}
	if ends&align.FixedLeft == 0 {
		w.LeftFrom = max(1, w.LeftFrom-m)
		w.RightFrom = max(1, w.RightFrom-m)
	}
	if ends&align.FixedRight == 0 {
		w.LeftTo = min(lenL, w.LeftTo+m)
		w.RightTo = min(lenR, w.RightTo+m)
	}
	return w, ends, nil
}

// alignment is an overlap alignment together with the contig column of
// every aligned consensus base.
type alignment struct {
	window Window
	result align.Result
	colsL  []int
	colsR  []int
}

func (j *Joiner) alignOverlap(l, r *contig.DB, req Request) (alignment, error) {
	w, ends, err := OverlapWindow(l.ConsensusLength(), r.ConsensusLength(), req, j.margin)
	if err != nil {
		return alignment{}, err
	}
	a, colsL := l.DepaddedConsensus(w.LeftFrom, w.LeftTo)
	b, colsR := r.DepaddedConsensus(w.RightFrom, w.RightTo)
	res, err := j.engine.Align(a, b, ends)
	if err != nil {
		return alignment{}, err
	}
	logger.Info("overlap aligned",
		"left", l.ContigID, "right", r.ContigID,
		"window", fmt.Sprintf("%d-%d/%d-%d", w.LeftFrom, w.LeftTo, w.RightFrom, w.RightTo),
		"method", string(res.Method), "identity", res.Identity, "score", res.Score)
	return alignment{window: w, result: res, colsL: colsL, colsR: colsR}, nil
}

// Align aligns the overlap of l and r and pads both contigs to match.
// The two contigs share one undo log afterwards, and all padding is a
// single undo step. When alignment fails neither contig is touched.
func (j *Joiner) Align(ctx context.Context, l, r *contig.DB, req Request) (Plan, error) {
	if l == r || l.ContigID == r.ContigID {
		return Plan{}, ErrSameContig
	}
	al, err := j.alignOverlap(l, r, req)
	if err != nil {
		metrics.Join("align-failed")
		return Plan{}, err
	}
	pairs := al.result.Pairs()
	if len(pairs) == 0 {
		metrics.Join("align-failed")
		return Plan{}, ErrUnusableHit
	}
	first := pairs[0]
	plan := Plan{
		Window: al.window,
		Result: al.result,
		Offset: al.colsL[first.I] - al.colsR[first.J],
	}

	if err := l.ShareUndo(r); err != nil {
		return Plan{}, err
	}
	before := l.UndoLog().Commits()
	l.Begin()
	r.Begin()
	plan.Pads, err = applyPadding(l, r, reconcile(al))
	outR := r.Commit()
	outL := l.Commit()
	if err != nil {
		if l.UndoLog().Commits() > before {
			if uerr := l.UndoLog().Rollback(); uerr != nil {
				logger.Error("rolling back join padding", "left", l.ContigID, "right", r.ContigID, "err", uerr)
			}
		} else if plan.Pads > 0 {
			logger.Warn("join padding left in place", "left", l.ContigID, "right", r.ContigID, "pads", plan.Pads)
		}
		r.DetachUndo()
		metrics.Join("pad-failed")
		return Plan{}, err
	}
	plan.Outcome = outL
	if outR == contig.AppliedNotUndoable {
		plan.Outcome = outR
	}
	logger.Info("join padding applied", "left", l.ContigID, "right", r.ContigID, "pads", plan.Pads, "offset", plan.Offset)
	return plan, nil
}

// padding is a run of pad columns to insert before col in one contig.
type padding struct {
	left bool
	col  int
	n    int
}

// reconcile compares the column span between each pair of consecutive
// aligned bases in the two contigs and pads the shorter span, so that
// existing pads and alignment gaps both end up matched. The result runs
// right to left, keeping the pending columns of each contig valid.
func reconcile(al alignment) []padding {
	pairs := al.result.Pairs()
	var out []padding
	for k := len(pairs) - 1; k > 0; k-- {
		p, q := pairs[k-1], pairs[k]
		spanL := al.colsL[q.I] - al.colsL[p.I]
		spanR := al.colsR[q.J] - al.colsR[p.J]
		switch {
		case spanL > spanR:
			out = append(out, padding{col: al.colsR[q.J], n: spanL - spanR})
		case spanR > spanL:
			out = append(out, padding{left: true, col: al.colsL[q.I], n: spanR - spanL})
		}
	}
	return out
}

// applyPadding inserts pads and returns how many went in.
func applyPadding(l, r *contig.DB, pads []padding) (int, error) {
	total := 0
	for _, p := range pads {
		db := r
		if p.left {
			db = l
		}
		done, err := addPads(db, p.col, p.n)
		total += done
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// addPads inserts n pad columns before column col, in blocks no larger
// than the contig's pad block, and returns how many went in.
func addPads(db *contig.DB, col, n int) (int, error) {
	block := db.Options().PadBlock
	if block <= 0 {
		block = n
	}
	done := 0
	for done < n {
		k := min(block, n-done)
		if _, err := db.InsertBasesConsensus(col, k); err != nil {
			return done, fmt.Errorf("pad contig %d at %d: %w", db.ContigID, col, err)
		}
		done += k
	}
	return done, nil
}

// Run aligns and then merges r into l. It returns the surviving contig
// number, which may differ from l's number before the call.
func (j *Joiner) Run(ctx context.Context, l, r *contig.DB, req Request) (int, error) {
	plan, err := j.Align(ctx, l, r, req)
	if err != nil {
		return 0, err
	}
	return j.Join(ctx, l, r, plan.Offset)
}
