package crdt

import "strings"

// alphabet is the ordered digit set used to build dense lexicographic List
// position keys. Ordering by byte value matches ordering by index, so
// plain string comparison sorts positions correctly.
const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// PositionBetween returns a position string strictly between a and b in
// lexicographic order. a == "" means "no lower neighbour" (insert at the
// very start); b == "" means "no upper neighbour" (insert at the very
// end); both empty means "first element in an empty list". Callers must
// ensure a < b when both are non-empty.
func PositionBetween(a, b string) string {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	if n > 0 {
		return a[:n] + positionTail(a[n:], b[n:])
	}
	return positionTail(a, b)
}

// positionTail implements the midpoint search once any shared prefix has
// been stripped, following the classic fractional-indexing midpoint
// algorithm: find a digit strictly between the two leading digits; if none
// exists, borrow b's leading digit (if it has more after it) or extend a
// by one digit and recurse.
func positionTail(a, b string) string {
	digitA := 0
	if len(a) > 0 {
		digitA = strings.IndexByte(alphabet, a[0])
	}
	digitB := len(alphabet)
	if len(b) > 0 {
		digitB = strings.IndexByte(alphabet, b[0])
	}

	if digitB-digitA > 1 {
		mid := (digitA + digitB) / 2
		return string(alphabet[mid])
	}
	if len(b) > 1 {
		return b[:1]
	}
	var tail string
	if len(a) > 0 {
		tail = a[1:]
	}
	return string(alphabet[digitA]) + positionTail(tail, "")
}

// PositionBefore returns a position strictly before b.
func PositionBefore(b string) string { return PositionBetween("", b) }

// PositionAfter returns a position strictly after a.
func PositionAfter(a string) string { return PositionBetween(a, "") }
