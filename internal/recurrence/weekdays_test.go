package recurrence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeWeekdays(t *testing.T) {
	tests := []struct {
		name string
		in   []any
		want []int
	}{
		{"numbers", []any{5, 1, 3}, []int{1, 3, 5}},
		{"json numbers", []any{float64(0), float64(6)}, []int{0, 6}},
		{"fractional json number dropped", []any{1.5, float64(2)}, []int{2}},
		{"numeric strings", []any{"0", " 4 "}, []int{0, 4}},
		{"names and abbreviations", []any{"Sunday", "mon", "TUE", "wednesday", "Thu", "fri", "Sat"}, []int{0, 1, 2, 3, 4, 5, 6}},
		{"duplicates collapse", []any{1, "1", "monday", "Mon"}, []int{1}},
		{"unknown dropped", []any{"funday", 7, -1, nil, true, "9"}, []int{}},
		{"empty", nil, []int{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeWeekdays(tt.in))
		})
	}
}

func TestWeekdaySet(t *testing.T) {
	s := NewWeekdaySet(6, 0, 3, 9)
	assert.Equal(t, []int{0, 3, 6}, s.Days())
	assert.True(t, s.Contains(3))
	assert.False(t, s.Contains(2))
	assert.False(t, s.Contains(9))
	assert.False(t, s.Empty())
	assert.True(t, NewWeekdaySet().Empty())
}
