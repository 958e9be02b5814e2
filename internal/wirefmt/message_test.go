package wirefmt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForceReportFormat(t *testing.T) {
	tests := []struct {
		name     string
		report   ForceReport
		expected string
	}{
		{
			name:     "typical reading",
			report:   ForceReport{ElapsedMs: 1234, Pounds: 15.3},
			expected: "1234|15.3",
		},
		{
			name:     "zero force",
			report:   ForceReport{ElapsedMs: 0, Pounds: 0},
			expected: "0|0.0",
		},
		{
			name:     "one decimal digit rounding",
			report:   ForceReport{ElapsedMs: 10, Pounds: 2.449},
			expected: "10|2.4",
		},
		{
			name:     "negative force clamped on the wire",
			report:   ForceReport{ElapsedMs: 55, Pounds: -3.2},
			expected: "55|0.0",
		},
		{
			name:     "max elapsed ms",
			report:   ForceReport{ElapsedMs: 4294967295, Pounds: 1.5},
			expected: "4294967295|1.5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, string(tt.report.Format()))
		})
	}
}

func TestParseForceReport(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		for _, r := range []ForceReport{
			{ElapsedMs: 0, Pounds: 0},
			{ElapsedMs: 1234, Pounds: 15.3},
			{ElapsedMs: 4294967295, Pounds: 999.9},
		} {
			parsed, err := ParseForceReport(r.Format())
			require.NoError(t, err)
			assert.Equal(t, r, parsed)
		}
	})

	tests := []struct {
		name    string
		payload string
	}{
		{name: "no delimiter", payload: "not-a-number"},
		{name: "two delimiters", payload: "12|3.0|4"},
		{name: "empty", payload: ""},
		{name: "non-numeric ms", payload: "abc|1.0"},
		{name: "non-numeric force", payload: "12|high"},
		{name: "negative ms", payload: "-5|1.0"},
		{name: "ms overflows uint32", payload: "4294967296|1.0"},
		{name: "negative force", payload: "12|-1.0"},
		{name: "nan force", payload: "12|NaN"},
		{name: "inf force", payload: "12|+Inf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseForceReport([]byte(tt.payload))
			assert.Error(t, err)
		})
	}
}

func TestBaseReport(t *testing.T) {
	t.Run("format uses two decimal digits", func(t *testing.T) {
		assert.Equal(t, "BASE:12.50", string(BaseReport{Pounds: 12.5}.Format()))
		assert.Equal(t, "BASE:-0.25", string(BaseReport{Pounds: -0.25}.Format()))
	})

	t.Run("round trip", func(t *testing.T) {
		parsed, err := ParseBaseReport(BaseReport{Pounds: 7.25}.Format())
		require.NoError(t, err)
		assert.Equal(t, BaseReport{Pounds: 7.25}, parsed)
	})

	t.Run("missing prefix rejected", func(t *testing.T) {
		_, err := ParseBaseReport([]byte("12.50"))
		assert.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("non-numeric rejected", func(t *testing.T) {
		_, err := ParseBaseReport([]byte("BASE:twelve"))
		assert.ErrorIs(t, err, ErrMalformed)
	})
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate([]byte("1234|15.3")))
	assert.NoError(t, Validate([]byte("BASE:3.25")))
	assert.Error(t, Validate([]byte("not-a-number")))
	assert.Error(t, Validate([]byte("BASE:junk")))
}

func TestChunk(t *testing.T) {
	t.Run("short payload is one chunk", func(t *testing.T) {
		chunks := Chunk([]byte("1234|15.3"), MaxNotificationLen)
		require.Len(t, chunks, 1)
		assert.Equal(t, "1234|15.3", string(chunks[0]))
	})

	t.Run("long payload splits at size boundary", func(t *testing.T) {
		payload := []byte("abcdefghijklmnopqrstuvwxyz0123456789")
		chunks := Chunk(payload, 20)
		require.Len(t, chunks, 2)
		assert.Equal(t, "abcdefghijklmnopqrst", string(chunks[0]))
		assert.Equal(t, "uvwxyz0123456789", string(chunks[1]))
	})

	t.Run("empty payload yields no chunks", func(t *testing.T) {
		assert.Nil(t, Chunk(nil, 20))
	})

	t.Run("non-positive size falls back to default", func(t *testing.T) {
		chunks := Chunk(make([]byte, 45), 0)
		assert.Len(t, chunks, 3)
	})
}
