package motor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		expected Command
		wantErr  bool
	}{
		{
			name:     "up with rate",
			payload:  "UP 1500",
			expected: Command{Direction: DirectionUp, StepsPerSec: 1500},
		},
		{
			name:     "down lowercase",
			payload:  "down 200",
			expected: Command{Direction: DirectionDown, StepsPerSec: 200},
		},
		{
			name:     "rate clamped high",
			payload:  "up 5000",
			expected: Command{Direction: DirectionUp, StepsPerSec: 3000},
		},
		{
			name:     "rate clamped low",
			payload:  "down 10",
			expected: Command{Direction: DirectionDown, StepsPerSec: 50},
		},
		{
			name:     "missing rate uses default",
			payload:  "UP",
			expected: Command{Direction: DirectionUp, StepsPerSec: DefaultStepsPerSec},
		},
		{
			name:     "stop any case",
			payload:  "sToP",
			expected: Command{Stop: true},
		},
		{
			name:    "unknown verb",
			payload: "LEFT 100",
			wantErr: true,
		},
		{
			name:    "empty payload",
			payload: "   ",
			wantErr: true,
		},
		{
			name:    "non-numeric rate",
			payload: "up fast",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := ParseCommand([]byte(tt.payload))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownCommand)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, cmd)
		})
	}
}

func TestControllerApply(t *testing.T) {
	c := NewController()
	assert.False(t, c.Running())
	assert.False(t, c.StepLineHigh())

	require.NoError(t, c.HandleWrite([]byte("up 5000")))
	assert.True(t, c.Running())
	assert.True(t, c.StepLineHigh())
	assert.Equal(t, DirectionUp, c.Direction())
	assert.Equal(t, 3000, c.StepsPerSec())

	require.NoError(t, c.HandleWrite([]byte("down 10")))
	assert.Equal(t, DirectionDown, c.Direction())
	assert.Equal(t, 50, c.StepsPerSec())

	require.NoError(t, c.HandleWrite([]byte("STOP")))
	assert.False(t, c.Running())
	assert.False(t, c.StepLineHigh())
	assert.Equal(t, DirectionNone, c.Direction())
	assert.Equal(t, 0, c.StepsPerSec())
}

func TestControllerIgnoresUnknownWrites(t *testing.T) {
	c := NewController()
	require.NoError(t, c.HandleWrite([]byte("up 100")))

	err := c.HandleWrite([]byte("sideways"))
	assert.ErrorIs(t, err, ErrUnknownCommand)

	// State untouched by the bad write.
	assert.True(t, c.Running())
	assert.Equal(t, DirectionUp, c.Direction())
	assert.Equal(t, 100, c.StepsPerSec())
}
