package refs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []int64
	}{
		{"none", "plain text", nil},
		{"single", "see attachments/42/ here", []int64{42}},
		{"multiple", "A attachments/11/ B attachments/22/", []int64{11, 22}},
		{"duplicate", "attachments/7/ and attachments/7/", []int64{7, 7}},
		{"no trailing slash", "attachments/9", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Extract(tt.text))
		})
	}
}

func TestExtractUnique(t *testing.T) {
	got := ExtractUnique("attachments/7/ attachments/3/ attachments/7/")
	assert.Equal(t, []int64{7, 3}, got)
}

func TestRewrite(t *testing.T) {
	mapping := map[int64]int64{11: 51, 22: 52}

	got := Rewrite("A attachments/11/ B attachments/22/", mapping)
	assert.Equal(t, "A attachments/51/ B attachments/52/", got)

	// Unmapped ids are left untouched.
	got = Rewrite("attachments/11/ attachments/99/", mapping)
	assert.Equal(t, "attachments/51/ attachments/99/", got)

	// Empty mapping is a no-op.
	text := "attachments/11/"
	assert.Equal(t, text, Rewrite(text, nil))
}
