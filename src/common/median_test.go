package common

import "testing"

func TestMedian(t *testing.T) {
	for _, c := range []struct {
		in  []int64
		out int64
	}{
		{[]int64{5, 3, 4, 2, 1}, 3},
		{[]int64{6, 3, 2, 4, 5, 1}, 3},
		{[]int64{1}, 1},
		{[]int64{}, 0},
	} {
		got := Median(c.in)
		if got != c.out {
			t.Errorf("Median(%d) => %d != %d", c.in, got, c.out)
		}
	}

	in := []int64{9, 1, 5}
	Median(in)
	if in[0] != 9 || in[1] != 1 || in[2] != 5 {
		t.Errorf("Median should not reorder its input, got %d", in)
	}
}
