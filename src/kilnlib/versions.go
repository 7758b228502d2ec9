package kilnlib

import "strings"

// CompareVersions implements a natural ordering over free-form version
// strings. Versions are split into maximal runs of digits and letters;
// any other character only delimits runs. Digit runs compare numerically
// and letter runs lexicographically. When one version runs out of
// segments, the longer one is newer if its next segment is numeric
// (1.2.1 > 1.2) and older if it is alphabetic (2.0-rc1 < 2.0).
// Returns -1, 0 or 1.
func CompareVersions(version1, version2 string) int {
	segments1 := versionSegments(version1)
	segments2 := versionSegments(version2)

	for i := 0; i < len(segments1) && i < len(segments2); i++ {
		s1 := segments1[i]
		s2 := segments2[i]

		digits1 := isDigitSegment(s1)
		digits2 := isDigitSegment(s2)

		// A numeric segment is always newer than an alphabetic one
		if digits1 != digits2 {
			if digits1 {
				return 1
			}
			return -1
		}

		if digits1 {
			if c := compareNumeric(s1, s2); c != 0 {
				return c
			}
		} else {
			if c := strings.Compare(s1, s2); c != 0 {
				return c
			}
		}
	}

	if len(segments1) == len(segments2) {
		return 0
	}

	// One version is a prefix of the other. A trailing numeric segment
	// marks a newer version, a trailing alphabetic segment an older one.
	if len(segments1) > len(segments2) {
		if isDigitSegment(segments1[len(segments2)]) {
			return 1
		}
		return -1
	}
	if isDigitSegment(segments2[len(segments1)]) {
		return -1
	}
	return 1
}

func versionSegments(version string) []string {
	segments := make([]string, 0)
	start := -1
	digits := false

	flush := func(end int) {
		if start >= 0 {
			segments = append(segments, version[start:end])
			start = -1
		}
	}

	for i := 0; i < len(version); i++ {
		c := version[i]
		switch {
		case c >= '0' && c <= '9':
			if start < 0 || !digits {
				flush(i)
				start = i
				digits = true
			}
		case (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z'):
			if start < 0 || digits {
				flush(i)
				start = i
				digits = false
			}
		default:
			flush(i)
		}
	}
	flush(len(version))

	return segments
}

func isDigitSegment(segment string) bool {
	return segment[0] >= '0' && segment[0] <= '9'
}

func compareNumeric(s1, s2 string) int {
	s1 = strings.TrimLeft(s1, "0")
	s2 = strings.TrimLeft(s2, "0")
	if len(s1) != len(s2) {
		if len(s1) > len(s2) {
			return 1
		}
		return -1
	}
	return strings.Compare(s1, s2)
}
