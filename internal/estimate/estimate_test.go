package estimate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuriguchi/testy/internal/apperr"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int64
	}{
		{"bare seconds", "3600", 3600},
		{"clock hms", "1:02:00", 3720},
		{"clock ms", "02:30", 150},
		{"day and hours", "1d 2h", 8*3600 + 2*3600},
		{"full units", "5h 34m 56s", 5*3600 + 34*60 + 56},
		{"single unit", "45m", 2700},
		{"zero", "0", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		code  apperr.ErrorCode
	}{
		{"negative", "-5", apperr.CodeEstimateNegative},
		{"week unit", "2w", apperr.CodeEstimateWeek},
		{"garbage", "soon", apperr.CodeEstimateInvalid},
		{"empty", "", apperr.CodeEstimateInvalid},
		{"bad clock", "1:99:00", apperr.CodeEstimateInvalid},
		{"duplicate unit", "1h 2h", apperr.CodeEstimateInvalid},
		{"over ceiling", "999999999999", apperr.CodeEstimateTooBig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			require.Error(t, err)
			assert.True(t, apperr.Is(err, tt.code), "got %v", err)
		})
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		secs int64
		want string
	}{
		{0, "0s"},
		{56, "56s"},
		{2700, "45m"},
		{3720, "1h 2m"},
		{8*3600 + 2*3600, "1d 2h"},
		{5*3600 + 34*60 + 56, "5h 34m 56s"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Format(tt.secs))
	}
}

func TestParseFormatRoundTrip(t *testing.T) {
	for _, s := range []string{"1d 2h", "5h 34m 56s", "45m", "3s"} {
		secs, err := Parse(s)
		require.NoError(t, err)
		assert.Equal(t, s, Format(secs))
	}
}

func TestToPeriod(t *testing.T) {
	assert.Equal(t, 60.0, ToPeriod(3600, "minutes"))
	assert.Equal(t, 1.0, ToPeriod(3600, "hours"))
	assert.Equal(t, 1.0, ToPeriod(8*3600, "days"))
}
