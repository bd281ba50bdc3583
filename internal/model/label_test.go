package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func attached(ids ...int64) map[int64]bool {
	m := make(map[int64]bool)
	for _, id := range ids {
		m[id] = true
	}
	return m
}

func TestLabelFilterMatchOr(t *testing.T) {
	tests := []struct {
		name      string
		labels    []int64
		notLabels []int64
		attached  map[int64]bool
		want      bool
	}{
		{"empty filter matches", nil, nil, attached(1), true},
		{"any included attached", []int64{1, 2}, nil, attached(2, 9), true},
		{"no included attached", []int64{1, 2}, nil, attached(9), false},
		{"none excluded attached", nil, []int64{5}, attached(9), true},
		{"excluded attached", nil, []int64{5}, attached(5), false},
		{"included or clean of excluded", []int64{1}, []int64{5}, attached(5, 1), true},
		{"neither branch holds", []int64{1}, []int64{5}, attached(5), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := LabelFilter{Labels: tt.labels, NotLabels: tt.notLabels, Condition: LabelsConditionOr}
			assert.Equal(t, tt.want, f.Match(tt.attached))
		})
	}
}

func TestLabelFilterMatchAnd(t *testing.T) {
	tests := []struct {
		name      string
		labels    []int64
		notLabels []int64
		attached  map[int64]bool
		want      bool
	}{
		{"all included attached", []int64{1, 2}, nil, attached(1, 2, 9), true},
		{"one included missing", []int64{1, 2}, nil, attached(1), false},
		{"all included but excluded attached", []int64{1}, []int64{5}, attached(1, 5), false},
		{"all included none excluded", []int64{1}, []int64{5}, attached(1), true},
		{"only exclusions clean", nil, []int64{5}, attached(9), true},
		{"only exclusions dirty", nil, []int64{5}, attached(5), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := LabelFilter{Labels: tt.labels, NotLabels: tt.notLabels, Condition: LabelsConditionAnd}
			assert.Equal(t, tt.want, f.Match(tt.attached))
		})
	}
}
