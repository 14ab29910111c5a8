package cpu

import (
	"fmt"

	"dmgcore/jeebie/addr"
	"dmgcore/jeebie/dmgerr"
)

// Flag is one of the 4 possible flags used in the flag register (high part of AF)
type Flag uint8

const (
	zeroFlag      Flag = 0x80
	subFlag       Flag = 0x40
	halfCarryFlag Flag = 0x20
	carryFlag     Flag = 0x10
)

// Bus is the minimal view of the address space the CPU needs: plain byte
// access. The CPU itself does not advance the rest of the machine; the
// caller driving Tick is expected to do so afterwards with the cycle count
// Tick returns (see MMU.Tick), so every component observes the same total
// without any one instruction ticking it twice.
type Bus interface {
	Read(address uint16) uint8
	Write(address uint16, value uint8)
}

// interrupt dispatch, in priority order (lowest address wins when more than
// one bit of IF&IE is set).
var interruptVectors = []struct {
	flag   uint8
	vector uint16
}{
	{1 << 0, 0x40}, // VBlank
	{1 << 1, 0x48}, // LCD STAT
	{1 << 2, 0x50}, // Timer
	{1 << 3, 0x58}, // Serial
	{1 << 4, 0x60}, // Joypad
}

// CPU is the main struct holding Sharp SM83 state: the 8 registers (viewed
// as bytes, combined pairwise by the accessors in registers.go), the stack
// pointer and program counter, and the handful of flags a real Game Boy CPU
// core needs beyond the register file (IME with its one-instruction delay,
// HALT/STOP, the halt bug).
type CPU struct {
	bus Bus

	a, b, c, d, e, h, l, f uint8
	sp, pc                 uint16

	currentOpcode uint16

	interruptsEnabled bool
	eiDelay           uint8 // 2 when EI has just executed, counts down to 0 across the next two Ticks before IME actually goes live
	halted            bool
	haltBug           bool
	stopped           bool

	cycles uint64

	// err records the first IllegalOperation/UnknownInstruction encountered;
	// Tick surfaces it to the caller instead of panicking, so a host can
	// decide whether to halt the console or keep limping along.
	err error
}

// New returns a CPU wired to the given bus, with registers at their
// post-boot-ROM values (the state a real DMG has right after the internal
// boot ROM hands control to the cartridge).
func New(bus Bus) *CPU {
	return &CPU{
		bus: bus,
		a:   0x01, f: 0xB0,
		b: 0x00, c: 0x13,
		d: 0x00, e: 0xD8,
		h: 0x01, l: 0x4D,
		sp: 0xFFFE,
		pc: 0x0100,
	}
}

// NewAtBootROM returns a CPU starting at the reset vector (PC 0x0000) with
// a zeroed register file, the state a DMG is in before its internal boot
// ROM runs. Used when a boot ROM image has been mapped into the bus; the
// boot ROM itself is responsible for leaving registers at the values New
// hardcodes by the time it jumps to 0x0100.
func NewAtBootROM(bus Bus) *CPU {
	return &CPU{
		bus: bus,
		sp:  0x0000,
		pc:  0x0000,
	}
}

// Decode peeks at the byte(s) at PC without moving it, resolving the CB
// prefix if present, and returns the Opcode function that implements it.
// cpu.currentOpcode is set as a side effect so error messages and tests can
// report which instruction was decoded.
func Decode(cpu *CPU) Opcode {
	first := cpu.bus.Read(cpu.pc)

	if first == 0xCB {
		second := cpu.bus.Read(cpu.pc + 1)
		cpu.currentOpcode = 0xCB00 | uint16(second)
		return decode(cpu.currentOpcode)
	}

	cpu.currentOpcode = uint16(first)
	return decode(cpu.currentOpcode)
}

// Err returns the first unrecoverable error the CPU hit (illegal opcode,
// unknown opcode), or nil if execution has been clean so far.
func (c *CPU) Err() error {
	return c.err
}

// Tick executes exactly one instruction (servicing a pending interrupt
// first, if IME allows it) and returns the number of cycles spent. It does
// not advance anything else; the caller is expected to feed that count to
// the rest of the machine (MMU.Tick, the PPU) right after.
func (c *CPU) Tick() int {
	// EI's IME latch takes effect only after the instruction following EI has
	// executed, so the decrement (and the flip to enabled) happens here,
	// before dispatchInterrupts observes IME for this Tick's instruction -
	// not at the tail of the Tick that ran EI itself.
	if c.eiDelay > 0 {
		c.eiDelay--
		if c.eiDelay == 0 {
			c.interruptsEnabled = true
		}
	}

	pending, dispatched := c.dispatchInterrupts()

	if pending && c.halted {
		c.halted = false
		if !c.interruptsEnabled && !dispatched {
			c.haltBug = true
		}
	}

	if dispatched {
		return 20
	}

	if c.halted || c.stopped {
		c.cycles += 4
		return 4
	}

	opcode := Decode(c)
	advance := uint16(1)
	if c.currentOpcode&0xCB00 != 0 {
		advance = 2
	}
	if c.haltBug {
		advance = 0
		c.haltBug = false
	}
	c.pc += advance

	cycles := opcode(c)

	c.cycles += uint64(cycles)
	return cycles
}

// handleInterrupts is the entry point exercised directly by tests: it
// reports whether an interrupt is pending (regardless of IME) and, as a
// side effect, dispatches it when IME allows. Tick uses dispatchInterrupts,
// which exposes both outcomes distinctly.
func (c *CPU) handleInterrupts() bool {
	pending, _ := c.dispatchInterrupts()
	return pending
}

// dispatchInterrupts checks IF&IE and, if IME is set and a bit matches,
// dispatches to the corresponding vector: pushes PC, jumps, clears IME and
// the serviced IF bit. It reports (pending, dispatched) so callers can tell
// a merely-pending interrupt (used to wake HALT) from one actually serviced.
func (c *CPU) dispatchInterrupts() (pending bool, dispatched bool) {
	ifReg := c.bus.Read(addr.IF)
	ieReg := c.bus.Read(addr.IE)
	bits := ifReg & ieReg & 0x1F

	if bits == 0 {
		return false, false
	}

	if !c.interruptsEnabled {
		return true, false
	}

	for _, iv := range interruptVectors {
		if bits&iv.flag == 0 {
			continue
		}

		c.interruptsEnabled = false
		c.bus.Write(addr.IF, ifReg&^iv.flag)
		c.pushStack(c.pc)
		c.pc = iv.vector
		c.cycles += 20
		return true, true
	}

	return true, false
}

func (c *CPU) fail(kind dmgerr.Kind) {
	if c.err == nil {
		c.err = dmgerr.New(kind, fmt.Sprintf("opcode 0x%X at pc 0x%04X", c.currentOpcode, c.pc))
	}
}
