// Package slotgrid defines the two daily appointment grids and the mapping
// between them. Everything here is pure so it can be used both to render
// selectable options and to validate submitted labels.
package slotgrid

import (
	"fmt"
	"strconv"
	"strings"

	dErrors "minister/pkg/domain-errors"
)

// Mode selects the active grid definition.
type Mode string

const (
	// Standard is a uniform grid of 30-minute slots starting at 00:00.
	Standard Mode = "standard"
	// Offset starts with a 15-minute 00:00 slot, then slots at :15 and :45,
	// ending with the 15-minute 23:45 slot.
	Offset Mode = "offset"
)

const (
	minutesPerDay = 24 * 60
	slotWidth     = 30
	offsetShift   = 15
	lastOffset    = 23*60 + 45
	lastStandard  = 23*60 + 30
)

// ParseMode constructs a Mode from external input.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if !m.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown slot mode %q", s))
	}
	return m, nil
}

// IsValid reports whether m is one of the two grid modes.
func (m Mode) IsValid() bool {
	return m == Standard || m == Offset
}

func (m Mode) String() string { return string(m) }

// Slots returns the ordered labels of the grid for mode.
// Unknown modes yield nil.
func Slots(mode Mode) []string {
	switch mode {
	case Standard:
		out := make([]string, 0, minutesPerDay/slotWidth)
		for m := 0; m < minutesPerDay; m += slotWidth {
			out = append(out, Format(m))
		}
		return out
	case Offset:
		out := make([]string, 0, minutesPerDay/slotWidth+1)
		out = append(out, Format(0))
		for m := offsetShift; m < minutesPerDay; m += slotWidth {
			out = append(out, Format(m))
		}
		return out
	default:
		return nil
	}
}

// Parse converts an HH:MM label into minutes past midnight.
func Parse(label string) (int, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(label), ":")
	if !ok || !twoDigits(h) || !twoDigits(m) {
		return 0, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("slot %q is not in HH:MM form", label))
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("slot %q has an invalid hour", label))
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return 0, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("slot %q has an invalid minute", label))
	}
	return hour*60 + minute, nil
}

func twoDigits(s string) bool {
	return len(s) == 2 && s[0] >= '0' && s[0] <= '9' && s[1] >= '0' && s[1] <= '9'
}

// Format renders minutes past midnight as HH:MM.
func Format(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// Validate checks that label is well formed and lies on the grid of mode.
// It returns the canonical label.
func Validate(mode Mode, label string) (string, error) {
	if !mode.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown slot mode %q", mode))
	}
	minutes, err := Parse(label)
	if err != nil {
		return "", err
	}
	if !onGrid(mode, minutes) {
		return "", dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("slot %s is not valid in %s mode", Format(minutes), mode))
	}
	return Format(minutes), nil
}

func onGrid(mode Mode, minutes int) bool {
	if minutes == 0 {
		return true
	}
	switch mode {
	case Standard:
		return minutes%slotWidth == 0
	case Offset:
		return minutes%slotWidth == offsetShift
	}
	return false
}

// Migrate maps a label from one grid onto the other.
//
// Standard→Offset moves every slot 15 minutes earlier except 00:00.
// Offset→Standard moves every slot 15 minutes later except 00:00, and clamps
// 23:45 onto 23:30 because the standard grid has no slot after 23:30. The
// mapping is therefore not an involution: 23:30 → 23:15 → 23:30, but
// 23:45 → 23:30 → 23:15.
func Migrate(label string, from, to Mode) (string, error) {
	if !from.IsValid() || !to.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "unknown slot mode")
	}
	minutes, err := Parse(label)
	if err != nil {
		return "", err
	}
	if from == to || minutes == 0 {
		return Format(minutes), nil
	}
	if from == Standard {
		return Format(minutes - offsetShift), nil
	}
	if minutes == lastOffset {
		return Format(lastStandard), nil
	}
	return Format(minutes + offsetShift), nil
}

// Less orders labels chronologically; malformed labels sort last.
func Less(a, b string) bool {
	ma, errA := Parse(a)
	mb, errB := Parse(b)
	switch {
	case errA != nil && errB != nil:
		return a < b
	case errA != nil:
		return false
	case errB != nil:
		return true
	}
	return ma < mb
}
