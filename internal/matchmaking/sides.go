package matchmaking

import "github.com/match-lifecycle/internal/domain"

// AssignSides gives two teammates a left/right assignment.
//
// An exclusive preference is never overridden unless both players share it, in
// which case the first player keeps it. A flexible player (both or none) takes
// whatever side the other leaves free, and two flexible players go first left,
// second right.
func AssignSides(first, second domain.Side) (domain.Side, domain.Side) {
	switch {
	case first.Exclusive():
		return first, first.Opposite()
	case second.Exclusive():
		return second.Opposite(), second
	default:
		return domain.SideLeft, domain.SideRight
	}
}

// compatible reports whether two preferences can both be honoured
func compatible(a, b domain.Side) bool {
	return !(a.Exclusive() && a == b)
}

// opposite reports whether both preferences are explicit and complementary
func opposite(a, b domain.Side) bool {
	return a.Exclusive() && b == a.Opposite()
}
