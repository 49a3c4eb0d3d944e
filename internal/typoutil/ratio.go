package typoutil

// IndelDistance computes the insertion/deletion distance between two strings:
// the minimum number of single-character insertions and deletions required to
// change one word into the other. Substitutions cost two operations.
// This implementation properly handles Unicode characters by working with runes.
func IndelDistance(a, b string) int {
	runesA := []rune(a)
	runesB := []rune(b)
	return len(runesA) + len(runesB) - 2*longestCommonSubsequence(runesA, runesB)
}

// Ratio returns the normalized Indel similarity of a and b in the range
// [0, 100]. Identical strings score 100, strings with no common character
// score 0. Two empty strings are considered identical. Ratio(a, b) == Ratio(b, a).
func Ratio(a, b string) float64 {
	runesA := []rune(a)
	runesB := []rune(b)

	total := len(runesA) + len(runesB)
	if total == 0 {
		return 100
	}

	dist := total - 2*longestCommonSubsequence(runesA, runesB)
	return 100 * float64(total-dist) / float64(total)
}

// longestCommonSubsequence uses two rolling rows instead of the full matrix.
func longestCommonSubsequence(runesA, runesB []rune) int {
	lenA := len(runesA)
	lenB := len(runesB)
	if lenA == 0 || lenB == 0 {
		return 0
	}

	prevRow := make([]int, lenB+1)
	currRow := make([]int, lenB+1)

	for i := 1; i <= lenA; i++ {
		currRow[0] = 0
		for j := 1; j <= lenB; j++ {
			if runesA[i-1] == runesB[j-1] {
				currRow[j] = prevRow[j-1] + 1
			} else {
				currRow[j] = max2(prevRow[j], currRow[j-1])
			}
		}
		prevRow, currRow = currRow, prevRow
	}

	return prevRow[lenB]
}

// max2 is a helper function to find the maximum of two integers
func max2(a, b int) int {
	if a > b {
		return a
	}
	return b
}
