package memory

import "dmgcore/jeebie/bit"

// JoypadKey represents a key on the Gameboy joypad
type JoypadKey uint8

const (
	JoypadRight JoypadKey = iota
	JoypadLeft
	JoypadUp
	JoypadDown
	JoypadA
	JoypadB
	JoypadSelect
	JoypadStart
)

// Joypad owns the P1 register's full semantics: the button/d-pad state (1 =
// released, 0 = pressed, matching real hardware polarity), the group
// selection bits written by the game, and the read-back value those
// combine into.
type Joypad struct {
	buttons uint8 // low nibble: A/B/Select/Start, 1 = released
	dpad    uint8 // low nibble: Right/Left/Up/Down, 1 = released
	select_ uint8 // bits 4-5 as last written to P1
}

// NewJoypad creates a new Joypad instance with no buttons pressed.
func NewJoypad() *Joypad {
	return &Joypad{
		buttons: 0x0F,
		dpad:    0x0F,
	}
}

// Read returns the full P1 register value: bits 6-7 always 1, bits 4-5 the
// last-written selection, bits 0-3 the selected button group (or the AND of
// both groups if both are selected, or all-1 if neither is).
func (j *Joypad) Read() uint8 {
	result := uint8(0xC0) | (j.select_ & 0x30)

	selectDpad := !bit.IsSet(4, j.select_)
	selectButtons := !bit.IsSet(5, j.select_)

	switch {
	case selectButtons && !selectDpad:
		result |= j.buttons & 0x0F
	case selectDpad && !selectButtons:
		result |= j.dpad & 0x0F
	case selectButtons && selectDpad:
		result |= j.buttons & j.dpad & 0x0F
	default:
		result |= 0x0F
	}

	return result
}

// Write sets the group-selection bits (4-5); the rest of P1 is read-only.
func (j *Joypad) Write(value uint8) {
	j.select_ = value & 0x30
}

// Press marks key as held down, returning true if this is a 1->0 transition
// on the currently selected group (the condition that raises the joypad
// interrupt on real hardware).
func (j *Joypad) Press(key JoypadKey) bool {
	before := j.Read() & 0x0F
	j.setKey(key, false)
	after := j.Read() & 0x0F
	return before&^after != 0
}

// Release marks key as no longer held.
func (j *Joypad) Release(key JoypadKey) {
	j.setKey(key, true)
}

func (j *Joypad) setKey(key JoypadKey, released bool) {
	set := bit.Set
	if !released {
		set = bit.Reset
	}

	switch key {
	case JoypadRight:
		j.dpad = set(0, j.dpad)
	case JoypadLeft:
		j.dpad = set(1, j.dpad)
	case JoypadUp:
		j.dpad = set(2, j.dpad)
	case JoypadDown:
		j.dpad = set(3, j.dpad)
	case JoypadA:
		j.buttons = set(0, j.buttons)
	case JoypadB:
		j.buttons = set(1, j.buttons)
	case JoypadSelect:
		j.buttons = set(2, j.buttons)
	case JoypadStart:
		j.buttons = set(3, j.buttons)
	}
}
