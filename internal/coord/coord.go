// Package coord holds the coordinate arithmetic shared by the editing core:
// base complementing, padded/unpadded position mapping, original-position
// recovery for edited reads and cutoff lengths.
package coord

// Pad is the gap character inserted to keep aligned sequences in step.
const Pad = '*'

var complementTable [256]byte

func init() {
	for i := range complementTable {
		complementTable[i] = byte(i)
	}
	pairs := []struct{ a, b byte }{
		{'A', 'T'}, {'C', 'G'}, {'a', 't'}, {'c', 'g'},
		{'R', 'Y'}, {'K', 'M'}, {'r', 'y'}, {'k', 'm'},
		{'B', 'V'}, {'D', 'H'}, {'b', 'v'}, {'d', 'h'},
	}
	for _, p := range pairs {
		complementTable[p.a] = p.b
		complementTable[p.b] = p.a
	}
	complementTable['U'] = 'A'
	complementTable['u'] = 'a'
}

// ComplementBase returns the Watson-Crick complement of b. Pads, N and
// other symbols complement to themselves.
func ComplementBase(b byte) byte {
	return complementTable[b]
}

// ReverseComplement reverses seq in place and complements every base.
func ReverseComplement(seq []byte) {
	for i, j := 0, len(seq)-1; i <= j; i, j = i+1, j-1 {
		seq[i], seq[j] = complementTable[seq[j]], complementTable[seq[i]]
	}
}

// Reverse reverses s in place.
func Reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// ComplementInterval maps the 1-based interval [pos, pos+n) of a sequence of
// length total onto the reverse strand and returns its new start.
func ComplementInterval(total, pos, n int) int {
	return total - (pos + n - 1) + 1
}

// Depad strips pads from seq. index[i] is the 0-based offset in seq of the
// i-th unpadded base.
func Depad(seq []byte) (depadded []byte, index []int) {
	depadded = make([]byte, 0, len(seq))
	index = make([]int, 0, len(seq))
	for i, b := range seq {
		if b == Pad {
			continue
		}
		depadded = append(depadded, b)
		index = append(index, i)
	}
	return depadded, index
}

// PaddedToUnpadded converts a 1-based padded position into the 1-based
// position of the last unpadded base at or before it.
func PaddedToUnpadded(seq []byte, pos int) int {
	if pos > len(seq) {
		pos = len(seq)
	}
	u := 0
	for i := 0; i < pos; i++ {
		if seq[i] != Pad {
			u++
		}
	}
	return u
}

// UnpaddedToPadded converts a 1-based unpadded position into its padded
// position. Positions past the last base extrapolate linearly.
func UnpaddedToPadded(seq []byte, upos int) int {
	if upos <= 0 {
		return upos
	}
	u := 0
	for i, b := range seq {
		if b == Pad {
			continue
		}
		u++
		if u == upos {
			return i + 1
		}
	}
	return len(seq) + (upos - u)
}

// OrigPos maps the 1-based buffer position pos back to its original,
// pre-edit base number using the opos array (0 marks an edited base).
// Edited bases take the mean of the nearest known neighbours, rounded down
// on forward reads and up on complemented reads so the mapping stays
// monotonic in both orientations.
func OrigPos(opos []int, pos int, complemented bool) int {
	if pos < 1 || pos > len(opos) {
		return 0
	}
	if opos[pos-1] != 0 {
		return opos[pos-1]
	}

	left, right := 0, 0
	for i := pos - 1; i >= 1; i-- {
		if opos[i-1] != 0 {
			left = opos[i-1]
			break
		}
	}
	for i := pos + 1; i <= len(opos); i++ {
		if opos[i-1] != 0 {
			right = opos[i-1]
			break
		}
	}

	switch {
	case left == 0 && right == 0:
		return pos
	case left == 0:
		return right
	case right == 0:
		return left
	}
	if complemented {
		return (left + right + 1) / 2
	}
	return (left + right) / 2
}

// LenLeftCutoff returns the number of clipped bases before the used region.
func LenLeftCutoff(start int) int {
	return start
}

// LenRightCutoff returns the number of clipped bases after the used region.
func LenRightCutoff(length2, end int) int {
	return length2 - end + 1
}
