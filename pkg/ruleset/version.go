package ruleset

import "slices"

// States of the version comparison: normal text, an integral digit run, a
// fractional digit run, and leading zeros.
const (
	stateNormal = 0
	stateInt    = 3
	stateFrac   = 6
	stateZero   = 9
)

const (
	resultCmp = 2
	resultLen = 3
)

// Indexed by state plus the class of the current byte (other, digit, zero).
var versionNext = [...]int{
	stateNormal, stateInt, stateZero,
	stateNormal, stateInt, stateInt,
	stateNormal, stateFrac, stateFrac,
	stateNormal, stateFrac, stateZero,
}

// Indexed by (state + class of a) * 3 + class of b at the first difference.
var versionResult = [...]int{
	resultCmp, resultCmp, resultCmp, resultCmp, resultLen, resultCmp, resultCmp, resultCmp, resultCmp,
	resultCmp, -1, -1, +1, resultLen, resultLen, +1, resultLen, resultLen,
	resultCmp, resultCmp, resultCmp, resultCmp, resultCmp, resultCmp, resultCmp, resultCmp, resultCmp,
	resultCmp, +1, +1, -1, resultCmp, resultCmp, -1, resultCmp, resultCmp,
}

// VersionCompare orders strings the way strverscmp(3) does. Runs of digits
// compare by numeric value, so "9-foo" sorts before "10-bar". Runs with a
// leading zero are fractional: they sort before integral runs, and a longer
// run of zeros sorts first, giving
//
//	000 < 00 < 01 < 010 < 09 < 0 < 1 < 9 < 10
func VersionCompare(a, b string) int {
	i := 0
	c1, c2 := byteAt(a, 0), byteAt(b, 0)
	state := stateNormal + digitClass(c1)

	for c1 == c2 {
		if c1 == 0 {
			return 0
		}

		state = versionNext[state]
		i++
		c1, c2 = byteAt(a, i), byteAt(b, i)
		state += digitClass(c1)
	}

	diff := int(c1) - int(c2)

	switch result := versionResult[state*3+digitClass(c2)]; result {
	case resultCmp:
		return diff
	case resultLen:
		// The longer digit run is the larger number.
		j := i + 1
		for isDigit(byteAt(a, j)) {
			if !isDigit(byteAt(b, j)) {
				return 1
			}
			j++
		}
		if isDigit(byteAt(b, j)) {
			return -1
		}

		return diff
	default:
		return result
	}
}

// SortVersion sorts names in place by [VersionCompare].
func SortVersion(names []string) {
	slices.SortStableFunc(names, VersionCompare)
}

// byteAt returns s[i], or 0 past the end of s.
func byteAt(s string, i int) byte {
	if i < len(s) {
		return s[i]
	}

	return 0
}

func digitClass(c byte) int {
	switch {
	case c == '0':
		return 2
	case isDigit(c):
		return 1
	}

	return 0
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
