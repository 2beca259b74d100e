package camera

import (
	"math"
	"sort"
)

// stepTable is a sorted list of legal values for one setting.
type stepTable []float64

func newStepTable(values []float64) stepTable {
	seen := make(map[float64]bool, len(values))
	t := make(stepTable, 0, len(values))
	for _, v := range values {
		if math.IsNaN(v) || seen[v] {
			continue
		}
		seen[v] = true
		t = append(t, v)
	}
	sort.Float64s(t)
	return t
}

// rangeSteps returns lo, lo+1, ... up to hi.
func rangeSteps(lo, hi float64) []float64 {
	var out []float64
	for v := lo; v <= hi; v++ {
		out = append(out, v)
	}
	return out
}

// next returns the smallest step above v, or the top step.
func (t stepTable) next(v float64) float64 {
	if len(t) == 0 {
		return v
	}
	i := sort.Search(len(t), func(i int) bool { return t[i] > v })
	if i == len(t) {
		return t[len(t)-1]
	}
	return t[i]
}

// prev returns the largest step below v, or the bottom step.
func (t stepTable) prev(v float64) float64 {
	if len(t) == 0 {
		return v
	}
	i := sort.Search(len(t), func(i int) bool { return t[i] >= v })
	if i == 0 {
		return t[0]
	}
	return t[i-1]
}
