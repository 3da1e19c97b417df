// Package version implements the alpm package version comparator used
// throughout repod wherever an update decision is made: whether a new
// pkgbase supersedes the one currently published, whether a package name
// already claimed by another pkgbase is being legitimately taken over, and
// so on.
package version

import "strings"

// Vercmp compares the pkgver (or pkgrel) segments of two alpm version
// strings following libalpm's vercmp algorithm: runs of digits and runs of
// letters are compared segment by segment, numeric segments always outrank
// alpha segments, and leading zeros are insignificant in numeric segments.
//
// Vercmp returns -1 if a < b, 0 if a == b, and 1 if a > b.
func Vercmp(a, b string) int {
	if a == b {
		return 0
	}

	onePtr, ptr1 := 0, 0
	twoPtr, ptr2 := 0, 0

	for onePtr < len(a) && twoPtr < len(b) {
		for onePtr < len(a) && !isAlnum(a[onePtr]) {
			onePtr++
		}
		for twoPtr < len(b) && !isAlnum(b[twoPtr]) {
			twoPtr++
		}

		if onePtr >= len(a) || twoPtr >= len(b) {
			break
		}

		if (onePtr - ptr1) != (twoPtr - ptr2) {
			if (onePtr - ptr1) < (twoPtr - ptr2) {
				return -1
			}
			return 1
		}

		ptr1 = onePtr
		ptr2 = twoPtr
		one := a[onePtr:]
		two := b[twoPtr:]

		var isNum bool
		if len(one) > 0 && isDigit(one[0]) {
			ptr1 += takeWhile(one, isDigit)
			ptr2 += takeWhile(two, isDigit)
			isNum = true
		} else {
			ptr1 += takeWhile(one, isAlpha)
			ptr2 += takeWhile(two, isAlpha)
			isNum = false
		}

		one = a[onePtr:ptr1]
		two = b[twoPtr:ptr2]

		if len(two) == 0 {
			if isNum {
				return 1
			}
			return -1
		}

		if isNum {
			one = strings.TrimLeft(one, "0")
			two = strings.TrimLeft(two, "0")

			if len(one) > len(two) {
				return 1
			}
			if len(two) > len(one) {
				return -1
			}
		}

		if rc := strcmp(one, two); rc != 0 {
			return rc
		}

		onePtr = ptr1
		twoPtr = ptr2
	}

	one := a[onePtr:]
	two := b[twoPtr:]

	if len(one) == 0 && len(two) == 0 {
		return 0
	}

	if (len(one) == 0 && !isAlpha(two[0])) || (len(one) > 0 && isAlpha(one[0])) {
		return -1
	}
	return 1
}

// PkgVercmp compares two full alpm versions of the form
// [epoch:]pkgver[-pkgrel], comparing epoch, then pkgver, then pkgrel in
// turn and returning the first non-zero result.
func PkgVercmp(a, b string) int {
	epoch1, rest1 := splitEpoch(a)
	epoch2, rest2 := splitEpoch(b)

	if rc := strcmp(epoch1, epoch2); rc != 0 {
		return rc
	}

	pkgver1, pkgrel1 := splitPkgrel(rest1)
	pkgver2, pkgrel2 := splitPkgrel(rest2)

	if rc := Vercmp(pkgver1, pkgver2); rc != 0 {
		return rc
	}

	return Vercmp(pkgrel1, pkgrel2)
}

// splitEpoch separates an optional "epoch:" prefix from the remainder of a
// full version string. Absent an epoch, it defaults to the empty string,
// matching the source project's comparison semantics (an absent epoch
// compares as lexicographically smallest against any present one).
func splitEpoch(v string) (epoch, rest string) {
	if i := strings.IndexByte(v, ':'); i >= 0 {
		return v[:i], v[i+1:]
	}
	return "", v
}

// splitPkgrel separates pkgver from pkgrel at the LAST hyphen, not the
// first: pkgver is permitted to contain embedded hyphens (e.g. "1-rc-1"),
// and only the final hyphen-delimited field is ever the pkgrel.
func splitPkgrel(v string) (pkgver, pkgrel string) {
	if i := strings.LastIndexByte(v, '-'); i >= 0 {
		return v[:i], v[i+1:]
	}
	return v, ""
}

func strcmp(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
func isAlpha(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
func isAlnum(b byte) bool { return isDigit(b) || isAlpha(b) }

func takeWhile(s string, pred func(byte) bool) int {
	n := 0
	for n < len(s) && pred(s[n]) {
		n++
	}
	return n
}
