package cpu

import "fmt"

// The accessors below expose CPU state read-only for debuggers and
// disassembly views (ExtractDebugData). Nothing in
// the execution path uses them; opcodes always go through the unexported
// register fields directly.

func (c *CPU) GetA() uint8 { return c.a }
func (c *CPU) GetF() uint8 { return c.f }
func (c *CPU) GetB() uint8 { return c.b }
func (c *CPU) GetC() uint8 { return c.c }
func (c *CPU) GetD() uint8 { return c.d }
func (c *CPU) GetE() uint8 { return c.e }
func (c *CPU) GetH() uint8 { return c.h }
func (c *CPU) GetL() uint8 { return c.l }

func (c *CPU) GetSP() uint16 { return c.sp }
func (c *CPU) GetPC() uint16 { return c.pc }

func (c *CPU) GetIME() bool { return c.interruptsEnabled }

func (c *CPU) GetCycles() uint64 { return c.cycles }

// GetFlagString renders the Z/N/H/C flags as a 4-character string, set flags
// uppercase and cleared ones as a dash, e.g. "Z-HC".
func (c *CPU) GetFlagString() string {
	flag := func(f Flag, ch byte) byte {
		if c.isSetFlag(f) {
			return ch
		}
		return '-'
	}

	return fmt.Sprintf("%c%c%c%c",
		flag(zeroFlag, 'Z'),
		flag(subFlag, 'N'),
		flag(halfCarryFlag, 'H'),
		flag(carryFlag, 'C'),
	)
}
