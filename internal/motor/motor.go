// Package motor parses the stepper command channel and tracks the resulting
// drive state. Pulse generation is a hardware concern and lives outside this
// package; what is modeled here is the command contract: direction, a
// steps-per-second rate clamped to the mechanically safe window, and the
// step line being driven low whenever the motor is halted.
package motor

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Steps-per-second limits enforced on every rate-bearing command.
const (
	MinStepsPerSec     = 50
	MaxStepsPerSec     = 3000
	DefaultStepsPerSec = 500
)

// ErrUnknownCommand marks a payload whose first token is not a recognized
// motor verb. Callers ignore these silently; the channel sends no error
// response.
var ErrUnknownCommand = errors.New("unknown motor command")

// Direction of travel while the motor runs.
type Direction int

const (
	DirectionNone Direction = iota
	DirectionUp
	DirectionDown
)

func (d Direction) String() string {
	switch d {
	case DirectionUp:
		return "up"
	case DirectionDown:
		return "down"
	default:
		return "none"
	}
}

// Command is one parsed instruction from the write channel.
type Command struct {
	Direction   Direction
	StepsPerSec int
	Stop        bool
}

// ParseCommand parses an ASCII motor command. The first token is
// case-insensitive UP, DOWN, or STOP; UP and DOWN accept an optional second
// token giving steps per second, clamped to [MinStepsPerSec, MaxStepsPerSec].
func ParseCommand(payload []byte) (Command, error) {
	fields := strings.Fields(string(payload))
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("%w: empty payload", ErrUnknownCommand)
	}

	verb := strings.ToUpper(fields[0])
	switch verb {
	case "STOP":
		return Command{Stop: true}, nil
	case "UP", "DOWN":
		dir := DirectionUp
		if verb == "DOWN" {
			dir = DirectionDown
		}

		sps := DefaultStepsPerSec
		if len(fields) > 1 {
			parsed, err := strconv.Atoi(fields[1])
			if err != nil {
				return Command{}, fmt.Errorf("%w: bad rate %q", ErrUnknownCommand, fields[1])
			}
			sps = clampRate(parsed)
		}
		return Command{Direction: dir, StepsPerSec: sps}, nil
	default:
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, fields[0])
	}
}

func clampRate(sps int) int {
	if sps < MinStepsPerSec {
		return MinStepsPerSec
	}
	if sps > MaxStepsPerSec {
		return MaxStepsPerSec
	}
	return sps
}

// Controller holds the drive state produced by applying commands in order.
// It is mutated only from the scheduler goroutine.
type Controller struct {
	direction   Direction
	stepsPerSec int
	running     bool
	stepLine    bool
}

// NewController returns a halted controller with the step line low.
func NewController() *Controller {
	return &Controller{}
}

// Apply transitions the controller per one command.
func (c *Controller) Apply(cmd Command) {
	if cmd.Stop {
		c.direction = DirectionNone
		c.stepsPerSec = 0
		c.running = false
		c.stepLine = false
		return
	}
	c.direction = cmd.Direction
	c.stepsPerSec = cmd.StepsPerSec
	c.running = true
	c.stepLine = true
}

// HandleWrite parses and applies a raw channel write. Unrecognized payloads
// leave the state untouched and return the parse error for optional logging.
func (c *Controller) HandleWrite(payload []byte) error {
	cmd, err := ParseCommand(payload)
	if err != nil {
		return err
	}
	c.Apply(cmd)
	return nil
}

// Running reports whether the motor is currently driven.
func (c *Controller) Running() bool { return c.running }

// Direction returns the current direction of travel.
func (c *Controller) Direction() Direction { return c.direction }

// StepsPerSec returns the current commanded step rate.
func (c *Controller) StepsPerSec() int { return c.stepsPerSec }

// StepLineHigh reports the level of the step output line.
func (c *Controller) StepLineHigh() bool { return c.stepLine }
