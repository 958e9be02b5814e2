// Package wirefmt implements the ASCII payload formats carried over the
// rig's BLE characteristics: timestamped force reports from sensor nodes,
// base-station relay reports, and the stepper command channel.
//
// Receivers validate strictly and drop malformed payloads; a bad message is
// never forwarded downstream.
package wirefmt

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MaxNotificationLen is the largest payload sent in a single notification or
// write without MTU negotiation. Longer messages must be chunked.
const MaxNotificationLen = 20

// basePrefix marks a relay report from a base node.
const basePrefix = "BASE:"

var (
	// ErrMalformed indicates a payload that does not match any known format.
	ErrMalformed = errors.New("malformed payload")

	// ErrOutOfRange indicates a payload whose numeric fields parse but fall
	// outside their allowed domain.
	ErrOutOfRange = errors.New("value out of range")
)

// ForceReport is a timestamped force reading from a sensor node, encoded on
// the wire as "<elapsed_ms>|<force>" with exactly one decimal digit of force.
type ForceReport struct {
	ElapsedMs uint32
	Pounds    float64
}

// Format renders the report in wire form. Force is published with one
// decimal digit; sensors are unidirectional so negative values never appear
// on the wire.
func (r ForceReport) Format() []byte {
	pounds := r.Pounds
	if pounds < 0 || math.IsNaN(pounds) {
		pounds = 0
	}
	return []byte(fmt.Sprintf("%d|%.1f", r.ElapsedMs, pounds))
}

// ParseForceReport parses a "<elapsed_ms>|<force>" payload. The payload must
// contain exactly one '|', the first field must parse as an unsigned 32-bit
// integer and the second as a non-negative finite float.
func ParseForceReport(payload []byte) (ForceReport, error) {
	s := string(payload)
	if strings.Count(s, "|") != 1 {
		return ForceReport{}, fmt.Errorf("%w: %q", ErrMalformed, s)
	}

	msPart, forcePart, _ := strings.Cut(s, "|")
	ms, err := strconv.ParseUint(strings.TrimSpace(msPart), 10, 32)
	if err != nil {
		return ForceReport{}, fmt.Errorf("%w: elapsed ms %q: %v", ErrMalformed, msPart, err)
	}

	pounds, err := strconv.ParseFloat(strings.TrimSpace(forcePart), 64)
	if err != nil {
		return ForceReport{}, fmt.Errorf("%w: force %q: %v", ErrMalformed, forcePart, err)
	}
	if math.IsNaN(pounds) || math.IsInf(pounds, 0) || pounds < 0 {
		return ForceReport{}, fmt.Errorf("%w: force %q", ErrOutOfRange, forcePart)
	}

	return ForceReport{ElapsedMs: uint32(ms), Pounds: pounds}, nil
}

// BaseReport is a relay reading from a base node, encoded as
// "BASE:<force>" with two decimal digits.
type BaseReport struct {
	Pounds float64
}

// Format renders the report in wire form. Base reports may carry sign.
func (r BaseReport) Format() []byte {
	return []byte(fmt.Sprintf("%s%.2f", basePrefix, r.Pounds))
}

// ParseBaseReport parses a "BASE:<force>" payload.
func ParseBaseReport(payload []byte) (BaseReport, error) {
	s := string(payload)
	if !strings.HasPrefix(s, basePrefix) {
		return BaseReport{}, fmt.Errorf("%w: %q", ErrMalformed, s)
	}

	pounds, err := strconv.ParseFloat(strings.TrimSpace(s[len(basePrefix):]), 64)
	if err != nil {
		return BaseReport{}, fmt.Errorf("%w: force in %q: %v", ErrMalformed, s, err)
	}
	if math.IsNaN(pounds) || math.IsInf(pounds, 0) {
		return BaseReport{}, fmt.Errorf("%w: force in %q", ErrOutOfRange, s)
	}

	return BaseReport{Pounds: pounds}, nil
}

// Validate reports whether the payload is a well-formed force or base report.
// Relays that interpret traffic use this to discard garbage without caring
// which of the two formats arrived.
func Validate(payload []byte) error {
	if bytes.HasPrefix(payload, []byte(basePrefix)) {
		_, err := ParseBaseReport(payload)
		return err
	}
	_, err := ParseForceReport(payload)
	return err
}

// Chunk splits a payload into pieces no longer than size bytes, for the
// free-text channel where messages may exceed a single attribute transfer
// unit. A non-positive size falls back to MaxNotificationLen.
func Chunk(payload []byte, size int) [][]byte {
	if size <= 0 {
		size = MaxNotificationLen
	}
	if len(payload) == 0 {
		return nil
	}

	chunks := make([][]byte, 0, (len(payload)+size-1)/size)
	for len(payload) > size {
		chunks = append(chunks, payload[:size])
		payload = payload[size:]
	}
	return append(chunks, payload)
}
