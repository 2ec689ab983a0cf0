package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeFilter_Consecutive(t *testing.T) {
	var f DedupeFilter

	assert.True(t, f.Check("a").ShouldEmit)
	res := f.Check("a")
	assert.False(t, res.ShouldEmit)
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, 3, f.Check("a").Count)

	assert.True(t, f.Check("b").ShouldEmit)
	assert.True(t, f.Check("a").ShouldEmit, "non-consecutive repeat is emitted again")
	assert.Equal(t, 1, f.Check("b").Count)
}

func TestDedupeFilter_EmptyFirstLine(t *testing.T) {
	var f DedupeFilter
	assert.True(t, f.Check("").ShouldEmit, "zero value has no previous line")
	assert.False(t, f.Check("").ShouldEmit)
}

func TestCollapseLines(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"no repeats", "a\nb\n", "a\nb\n"},
		{"run collapsed", "start\nretry\nretry\nretry\nok\n", "start\nretry (x3)\nok\n"},
		{"no trailing newline", "x\nx", "x (x2)"},
		{"separated runs", "a\na\nb\na\n", "a (x2)\nb\na\n"},
		{"blank lines", "\n\nend\n", " (x2)\nend\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CollapseLines(tt.in))
		})
	}
}
