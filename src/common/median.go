package common

import "sort"

// Median returns the middle value of input, or the mean of the two middle
// values when the count is even. The input slice is left untouched. An empty
// slice yields 0.
func Median(input []int64) int64 {
	if len(input) == 0 {
		return 0
	}

	s := make([]int64, len(input))
	copy(s, input)
	sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })

	if len(s)%2 == 0 {
		mid := len(s) / 2
		return (s[mid-1] + s[mid]) / 2
	}

	return s[len(s)/2]
}
