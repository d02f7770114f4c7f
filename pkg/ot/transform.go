package ot

// Transform rewrites b, conceived as concurrent with a and derived
// from the same base text, so that applying the result after a yields
// the same document as applying the pair in the opposite order on the
// other replica (the TP1 diamond property).
//
// Two inserts at the exact same position are ordered by replica id:
// the insert from the lexicographically smaller replica ends up first.
// Both transform directions apply this same rule, so the relative
// order is identical on every replica.
//
// Transform is total: it never fails, and unknown kinds pass through
// unchanged.
func Transform(a, b Op) Op {
	switch a.Kind {
	case OpInsert:
		switch b.Kind {
		case OpInsert:
			return transformInsertInsert(a, b)
		case OpDelete:
			return transformInsertDelete(a, b)
		}
	case OpDelete:
		switch b.Kind {
		case OpInsert:
			return transformDeleteInsert(a, b)
		case OpDelete:
			return transformDeleteDelete(a, b)
		}
	}
	return b
}

func transformInsertInsert(a, b Op) Op {
	if a.Pos < b.Pos || (a.Pos == b.Pos && a.Replica < b.Replica) {
		b.Pos += len(a.Content)
	}
	return b
}

func transformInsertDelete(a, b Op) Op {
	switch {
	case a.Pos <= b.Pos:
		// Insert before the deleted range: range shifts right.
		b.Pos += len(a.Content)
	case a.Pos >= b.Pos+b.Length:
		// Insert after the deleted range: unchanged.
	default:
		// Insert landed inside the range: the delete grows to also
		// cover the inserted text.
		b.Length += len(a.Content)
	}
	return b
}

func transformDeleteInsert(a, b Op) Op {
	switch {
	case b.Pos <= a.Pos:
		// Insert before the deleted range: unchanged.
	case b.Pos >= a.Pos+a.Length:
		// Insert after the deleted range: shifts left.
		b.Pos -= a.Length
	default:
		// Insert landed inside the deleted range: pinned to the
		// deletion start. The content collapses because the
		// mirrored transform grows the delete to cover it.
		b.Pos = a.Pos
		b.Content = ""
	}
	return b
}

func transformDeleteDelete(a, b Op) Op {
	aEnd := a.Pos + a.Length
	bEnd := b.Pos + b.Length

	switch {
	case aEnd <= b.Pos:
		b.Pos -= a.Length
	case bEnd <= a.Pos:
		// Disjoint, b before a: unchanged.
	default:
		// Overlapping ranges: b keeps only the non-overlapping
		// remainder, clamped at zero.
		overlap := minInt(aEnd, bEnd) - maxInt(a.Pos, b.Pos)
		b.Length -= overlap
		if b.Length < 0 {
			b.Length = 0
		}
		b.Pos = minInt(a.Pos, b.Pos)
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
