package consensus

import (
	"errors"
	"math"
	"testing"
)

var errDown = errors.New("source down")

func TestReduce(t *testing.T) {
	cases := []struct {
		name    string
		samples []Sample
		exp     Result
	}{
		{"plurality", []Sample{{Value: 5}, {Value: 5}, {Value: 7}},
			Result{Max: 7, Min: 5, Avg: 6, Med: 5, Cnt: 3, Ans: 3, Con: 2.0 / 3.0, Win: 5}},
		{"tieLargestWins", []Sample{{Value: 5}, {Value: 5}, {Value: 7}, {Value: 7}},
			Result{Max: 7, Min: 5, Avg: 6, Med: 6, Cnt: 4, Ans: 4, Con: 0.5, Win: 7}},
		{"unanimous", []Sample{{Value: 42}, {Value: 42}, {Value: 42}},
			Result{Max: 42, Min: 42, Avg: 42, Med: 42, Cnt: 3, Ans: 3, Con: 1, Win: 42}},
		{"single", []Sample{{Value: 9}},
			Result{Max: 9, Min: 9, Avg: 9, Med: 9, Cnt: 1, Ans: 1, Con: 1, Win: 9}},
		{"oneFailure", []Sample{{Value: 10}, {Err: errDown}, {Value: 10}, {Value: 11}, {Value: 10}},
			Result{Max: 11, Min: 10, Avg: 10, Med: 10, Cnt: 5, Ans: 4, Con: 0.75, Win: 10}},
		{"avgRounded", []Sample{{Value: 1}, {Value: 2}},
			Result{Max: 2, Min: 1, Avg: 2, Med: 1.5, Cnt: 2, Ans: 2, Con: 0.5, Win: 2}},
	}

	for _, c := range cases {
		got := Reduce(c.samples)
		if got != c.exp {
			t.Errorf("%s: expected %+v, got %+v", c.name, c.exp, got)
		}
	}
}

func TestReduceEmpty(t *testing.T) {
	for _, samples := range [][]Sample{nil, {}, {{Err: errDown}, {Err: errDown}}} {
		got := Reduce(samples)

		if got.Ans != 0 {
			t.Errorf("expected no usable answers, got %d", got.Ans)
		}
		if got.Win != 0 || got.Con != 1 {
			t.Errorf("expected empty vote 0 with full confidence, got win:%v con:%v", got.Win, got.Con)
		}
		if !math.IsNaN(got.Max) || !math.IsNaN(got.Min) || !math.IsNaN(got.Avg) || !math.IsNaN(got.Med) {
			t.Errorf("expected NaN statistics, got %+v", got)
		}
		if got.Cnt != len(samples) {
			t.Errorf("expected cnt %d, got %d", len(samples), got.Cnt)
		}
	}
}

func TestReduceBounds(t *testing.T) {
	got := Reduce([]Sample{{Value: 3}, {Value: 1}, {Value: 2}, {Value: 2}})

	if got.Min > got.Med || got.Med > got.Max {
		t.Errorf("expected min <= med <= max, got %+v", got)
	}
	if got.Win < got.Min || got.Win > got.Max {
		t.Errorf("expected winner within bounds, got %+v", got)
	}
	if got.Con <= 0 || got.Con > 1 {
		t.Errorf("expected confidence in (0,1], got %v", got.Con)
	}
}

func TestPoll(t *testing.T) {
	samples := Poll(5, func(i int) (float64, error) {
		if i == 2 {
			return 0, errDown
		}

		return float64(i * 10), nil
	})

	if len(samples) != 5 {
		t.Errorf("expected 5 samples, got %d", len(samples))
	}

	for i, s := range samples {
		if i == 2 {
			if s.Err == nil {
				t.Errorf("sample 2: expected an error")
			}

			continue
		}

		if s.Err != nil || s.Value != float64(i*10) {
			t.Errorf("sample %d: expected %d, got %+v", i, i*10, s)
		}
	}
}

func TestPollEmpty(t *testing.T) {
	if got := Poll(0, func(i int) (float64, error) { return 0, nil }); len(got) != 0 {
		t.Errorf("expected no samples, got %d", len(got))
	}
}
