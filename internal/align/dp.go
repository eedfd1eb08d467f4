package align

import "math"

const negInf = math.MinInt32 / 4

const (
	stM = iota
	stX // base of a against a pad
	stY // base of b against a pad
)

// bandedAlign runs a three-state Gotoh alignment restricted to the
// diagonals j-i in [min(0, m-n)-w, max(0, m-n)+w]. Score rows are rolled;
// traceback keeps one byte per cell holding the source state of M, X and Y.
func bandedAlign(a, b []byte, ends Ends, sc Scoring, w int) Result {
	n, m := len(a), len(b)
	lo := min(0, m-n) - w
	hi := max(0, m-n) + w
	width := hi - lo + 1

	freeLeft := ends&FixedLeft == 0
	freeRight := ends&FixedRight == 0
	open := int32(sc.GapOpen + sc.GapExtend)
	ext := int32(sc.GapExtend)

	edge := func(k int) int32 {
		if freeLeft {
			return 0
		}
		return int32(sc.GapOpen + sc.GapExtend*k)
	}

	prevM, prevX, prevY := newRow(width), newRow(width), newRow(width)
	curM, curX, curY := newRow(width), newRow(width), newRow(width)
	trace := make([]byte, (n+1)*width)

	type end struct {
		i, j, state int
		score       int32
	}
	best := end{score: negInf - 1}
	consider := func(i, j int, sm, sx, sy int32) {
		for st, s := range [3]int32{sm, sx, sy} {
			if s > best.score {
				best = end{i: i, j: j, state: st, score: s}
			}
		}
	}

	for k := 0; k < width; k++ {
		j := lo + k
		switch {
		case j == 0:
			prevM[k] = 0
		case j > 0 && j <= m:
			prevY[k] = edge(j)
		}
	}
	if freeRight && m <= hi {
		k := m - lo
		consider(0, m, prevM[k], prevX[k], prevY[k])
	}

	for i := 1; i <= n; i++ {
		for k := 0; k < width; k++ {
			curM[k], curX[k], curY[k] = negInf, negInf, negInf
			j := i + lo + k
			if j < 0 || j > m {
				continue
			}
			if j == 0 {
				curX[k] = edge(i)
				continue
			}

			var tb byte

			if s, src := max3(prevM[k], prevX[k], prevY[k]); s > negInf {
				curM[k] = s + sc.pair(a[i-1], b[j-1])
				tb |= byte(src)
			}

			if k+1 < width {
				s, src := max3(prevM[k+1]+open, prevX[k+1]+ext, prevY[k+1]+open)
				if s > negInf {
					curX[k] = s
					tb |= byte(src) << 2
				}
			}

			if k > 0 {
				s, src := max3(curM[k-1]+open, curX[k-1]+open, curY[k-1]+ext)
				if s > negInf {
					curY[k] = s
					tb |= byte(src) << 4
				}
			}

			trace[i*width+k] = tb

			if freeRight && (j == m || i == n) {
				consider(i, j, curM[k], curX[k], curY[k])
			}
		}
		prevM, curM = curM, prevM
		prevX, curX = curX, prevX
		prevY, curY = curY, prevY
	}

	if !freeRight {
		k := m - n - lo
		best = end{i: n, j: m}
		best.score, best.state = max3(prevM[k], prevX[k], prevY[k])
	}

	var rev []Run
	if best.i < n {
		rev = append(rev, Run{OpGap2, n - best.i})
	}
	if best.j < m {
		rev = append(rev, Run{OpGap1, m - best.j})
	}

	i, j, st := best.i, best.j, best.state
	for i > 0 && j > 0 {
		tb := trace[i*width+(j-i-lo)]
		switch st {
		case stM:
			rev = append(rev, Run{OpMatch, 1})
			st = int(tb & 3)
			i--
			j--
		case stX:
			rev = append(rev, Run{OpGap2, 1})
			st = int(tb >> 2 & 3)
			i--
		default:
			rev = append(rev, Run{OpGap1, 1})
			st = int(tb >> 4 & 3)
			j--
		}
	}
	if i > 0 {
		rev = append(rev, Run{OpGap2, i})
	}
	if j > 0 {
		rev = append(rev, Run{OpGap1, j})
	}

	script := make([]Run, 0, len(rev))
	for k := len(rev) - 1; k >= 0; k-- {
		script = append(script, rev[k])
	}
	return finish(script, a, b, sc)
}

func newRow(n int) []int32 {
	row := make([]int32, n)
	for k := range row {
		row[k] = negInf
	}
	return row
}

// max3 prefers M over X over Y on ties.
func max3(m, x, y int32) (int32, int) {
	s, src := m, stM
	if x > s {
		s, src = x, stX
	}
	if y > s {
		s, src = y, stY
	}
	return s, src
}
