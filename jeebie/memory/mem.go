package memory

import (
	"fmt"
	"log/slog"

	"dmgcore/jeebie/addr"
	"dmgcore/jeebie/audio"
	"dmgcore/jeebie/bit"
	"dmgcore/jeebie/serial"
)

type memRegion uint8

const (
	regionROM memRegion = iota
	regionVRAM
	regionExtRAM
	regionWRAM
	regionEcho
	regionOAM
	regionUnused
	regionIO
	regionHRAM
)

// SerialPort is the minimal interface for a serial device connected to SB/SC.
// Implementations MUST only accept reads/writes to addr.SB and addr.SC.
type SerialPort interface {
	Write(address uint16, value byte)
	Read(address uint16) byte
	Tick(cycles int)
	Reset()
	Outbound() []byte
}

// bootROMSize is the fixed size of the DMG boot ROM (0x0000-0x00FF).
const bootROMSize = 256

// MMU allows access to all memory mapped I/O and data/registers
type MMU struct {
	cart      *Cartridge
	mbc       MBC
	memory    []byte
	APU       *audio.APU
	regionMap [256]memRegion

	joypad *Joypad
	dma    *DMA

	serial SerialPort
	timer  Timer

	bootROM        [bootROMSize]byte
	bootROMEnabled bool
}

// New creates a new memory unity with default data, i.e. nothing cartridge loaded.
// Equivalent to turning on a Gameboy without a cartridge in.
func New() *MMU {
	mmu := &MMU{
		memory: make([]byte, 0x10000),
		cart:   NewCartridge(),
		APU:    audio.New(),
		joypad: NewJoypad(),
		dma:    NewDMA(),
	}
	mmu.serial = serial.NewPort(func() { mmu.RequestInterrupt(addr.SerialInterrupt) })
	mmu.timer.TimerInterruptHandler = func() { mmu.RequestInterrupt(addr.TimerInterrupt) }
	initRegionMap(mmu)
	return mmu
}

// Tick advances every component that needs to observe elapsed CPU cycles:
// the timer, the serial port, an in-flight OAM DMA transfer, and the APU's
// length counters. Driven once per CPU instruction with the exact cycle
// cost of that instruction.
func (m *MMU) Tick(cycles int) {
	m.timer.Tick(cycles)
	if m.serial != nil {
		m.serial.Tick(cycles)
	}
	m.dma.Step(m, cycles)
	m.APU.Tick(cycles)
}

// SetTimerSeed initializes the internal timer divider seed and DIV register.
func (m *MMU) SetTimerSeed(seed uint16) {
	m.timer.SetSeed(seed)
}

// LoadBootROM installs a 256-byte DMG boot ROM, overlaying addresses
// 0x0000-0x00FF until the game writes a non-zero value to BootROMDisable
// (0xFF50). Returns an error if data isn't exactly bootROMSize bytes.
func (m *MMU) LoadBootROM(data []byte) error {
	if len(data) != bootROMSize {
		return fmt.Errorf("boot rom must be %d bytes, got %d", bootROMSize, len(data))
	}

	copy(m.bootROM[:], data)
	m.bootROMEnabled = true
	return nil
}

// NewWithCartridge creates a new memory unit with the provided cartridge data loaded.
// Equivalent to turning on a Gameboy with a cartridge in.
func NewWithCartridge(cart *Cartridge) *MMU {
	mmu := New()
	mmu.cart = cart

	switch cart.mbcType {
	case NoMBCType:
		mmu.mbc = NewNoMBC(cart.data)
	case MBC1Type:
		mmu.mbc = NewMBC1(cart.data, cart.hasBattery, cart.ramBankCount)
	case MBC1MultiType:
		mmu.mbc = NewMBC1(cart.data, cart.hasBattery, cart.ramBankCount) // FIXME: add support for multicart
	case MBC2Type:
		mmu.mbc = NewMBC2(cart.data)
	case MBC3Type:
		mmu.mbc = NewMBC3(cart.data, cart.hasRTC, cart.ramBankCount)
	case MBC5Type:
		mmu.mbc = NewMBC5(cart.data, cart.hasRumble, cart.ramBankCount)
	case MBCUnknownType:
		panic("unsupported MBC type: unknown")
	default:
		panic(fmt.Sprintf("unsupported MBC type: %d", cart.mbcType))
	}

	return mmu
}

func initRegionMap(m *MMU) {
	// ROM: 0x0000-0x7FFF
	for i := 0x00; i <= 0x7F; i++ {
		m.regionMap[i] = regionROM
	}
	// VRAM: 0x8000-0x9FFF
	for i := 0x80; i <= 0x9F; i++ {
		m.regionMap[i] = regionVRAM
	}
	// External RAM: 0xA000-0xBFFF
	for i := 0xA0; i <= 0xBF; i++ {
		m.regionMap[i] = regionExtRAM
	}
	// Work RAM: 0xC000-0xDFFF
	for i := 0xC0; i <= 0xDF; i++ {
		m.regionMap[i] = regionWRAM
	}
	// Echo RAM: 0xE000-0xFDFF
	for i := 0xE0; i <= 0xFD; i++ {
		m.regionMap[i] = regionEcho
	}
	// OAM: 0xFE00-0xFE9F, Unused: 0xFEA0-0xFEFF
	m.regionMap[0xFE] = regionOAM
	// IO + HRAM: 0xFF00-0xFFFF
	m.regionMap[0xFF] = regionIO
}

// RequestInterrupt sets the interrupt flag (IF register) of the chosen interrupt to 1.
func (m *MMU) RequestInterrupt(interrupt addr.Interrupt) {
	interruptFlags := m.Read(addr.IF)

	var bitPos uint8
	switch interrupt {
	case addr.VBlankInterrupt:
		bitPos = 0
	case addr.LCDSTATInterrupt:
		bitPos = 1
	case addr.TimerInterrupt:
		bitPos = 2
	case addr.SerialInterrupt:
		bitPos = 3
	case addr.JoypadInterrupt:
		bitPos = 4
	default:
		panic(fmt.Sprintf("Unknown interrupt: 0x%02X", uint8(interrupt)))
	}

	newFlags := bit.Set(bitPos, interruptFlags)

	m.Write(addr.IF, newFlags)
}

func (m *MMU) ReadBit(index uint8, address uint16) bool {
	return bit.IsSet(index, m.Read(address))
}

func (m *MMU) SetBit(index uint8, address uint16, set bool) {
	value := m.Read(address)
	if set {
		value = bit.Set(index, value)
	} else {
		value = bit.Reset(index, value)
	}
	m.Write(address, value)
}

// PPU mode values, matching STAT register bits 1-0 (video.GpuMode mirrors
// these; duplicated here rather than imported to avoid a memory<->video
// import cycle, since the video package already imports memory).
const (
	ppuModeHBlank    = 0
	ppuModeVBlank    = 1
	ppuModeOAMScan   = 2
	ppuModeVRAMRead  = 3
	lcdDisplayEnable = 7
)

// ppuMode reports the PPU's current mode from the STAT register, but only
// while the display is enabled: a disabled LCD freezes the PPU and leaves
// VRAM/OAM freely accessible regardless of whatever STAT's mode bits still
// hold from before it was switched off.
func (m *MMU) ppuMode() byte {
	if !bit.IsSet(lcdDisplayEnable, m.memory[addr.LCDC]) {
		return ppuModeHBlank
	}
	return m.memory[addr.STAT] & 0x03
}

func (m *MMU) Read(address uint16) byte {
	if m.bootROMEnabled && address < bootROMSize {
		return m.bootROM[address]
	}

	switch m.regionMap[address>>8] {
	case regionROM, regionExtRAM:
		if m.mbc == nil {
			slog.Warn("Reading from ROM/external RAM with no cartridge", "addr", fmt.Sprintf("0x%04X", address))
			return 0xFF
		}
		return m.mbc.Read(address)
	case regionVRAM:
		if m.ppuMode() == ppuModeVRAMRead {
			// PPU is pulling tile/map data for the current scanline; the CPU
			// sees the same 0xFF a real DMG reads off the bus during mode 3.
			return 0xFF
		}
		return m.memory[address]
	case regionWRAM:
		return m.memory[address]
	case regionEcho:
		if address <= 0xFDFF {
			return m.memory[address-0x2000]
		}
		return m.memory[address-0x2000]
	case regionOAM:
		if m.dma.Active() {
			// the bus is busy shoveling bytes into OAM; a real DMG CPU sees
			// garbage if it pokes OAM mid-transfer.
			return 0xFF
		}
		if mode := m.ppuMode(); mode == ppuModeOAMScan || mode == ppuModeVRAMRead {
			return 0xFF
		}
		return m.memory[address]
	case regionIO:
		if address == addr.P1 {
			return m.joypad.Read()
		}
		if address == addr.SB || address == addr.SC {
			return m.serial.Read(address)
		}
		if address == addr.DIV || address == addr.TIMA || address == addr.TMA || address == addr.TAC {
			return m.timer.Read(address)
		}
		if address >= 0xFF10 && address <= 0xFF3F {
			return m.APU.ReadRegister(address)
		}
		// Just in case, we always read the upper 3 bits of IF as 1.
		// They're not used, but have caused me some headaches when checking for
		// when the halt bug triggers (IF != 0).
		if address == addr.IF {
			return m.memory[address] | 0xE0
		}
		if address == addr.DMA {
			return m.dma.Register()
		}
		if address >= 0xFF80 {
			// HRAM
			return m.memory[address]
		}
		// Other IO registers
		return m.memory[address]
	default:
		panic(fmt.Sprintf("Attempted read at unmapped address: 0x%X", address))
	}
}

func (m *MMU) Write(address uint16, value byte) {
	switch m.regionMap[address>>8] {
	case regionROM:
		if m.mbc == nil {
			slog.Warn("Writing to ROM with no cartridge", "addr", fmt.Sprintf("0x%04X", address), "value", fmt.Sprintf("0x%02X", value))
			return
		}
		m.mbc.Write(address, value)
	case regionVRAM:
		if m.ppuMode() == ppuModeVRAMRead {
			return
		}
		m.memory[address] = value
	case regionExtRAM:
		if m.mbc == nil {
			slog.Warn("Writing to external RAM with no cartridge", "addr", fmt.Sprintf("0x%04X", address), "value", fmt.Sprintf("0x%02X", value))
			return
		}
		m.mbc.Write(address, value)
	case regionWRAM:
		m.memory[address] = value
	case regionEcho:
		if address <= 0xFDFF {
			m.memory[address-0x2000] = value
		}
	case regionOAM:
		if m.dma.Active() {
			return
		}
		if mode := m.ppuMode(); mode == ppuModeOAMScan || mode == ppuModeVRAMRead {
			return
		}
		m.memory[address] = value
	case regionIO:
		if address == addr.P1 {
			m.joypad.Write(value)
			return
		}
		if address == addr.SB || address == addr.SC {
			m.serial.Write(address, value)
			return
		}
		if address == addr.DIV || address == addr.TIMA || address == addr.TMA || address == addr.TAC {
			m.timer.Write(address, value)
			return
		}
		if address >= 0xFF10 && address <= 0xFF3F {
			m.APU.WriteRegister(address, value)
			return
		}
		if address == addr.IF {
			// This goddamn register has its upper 3 bits always set as 1...
			// Beware if you're trying to match halt bug behavior.
			m.memory[address] = value | 0xE0
			return
		}
		if address == addr.DMA {
			m.dma.Start(value)
			return
		}
		if address == addr.BootROMDisable {
			if value != 0 {
				m.bootROMEnabled = false
			}
			return
		}
		if address >= 0xFF80 {
			// HRAM
			m.memory[address] = value
			return
		}
		// Other IO registers
		m.memory[address] = value
	default:
		panic(fmt.Sprintf("Attempted write at unmapped address: 0x%X", address))
	}
}

// HandleKeyPress marks key as held down and requests the joypad interrupt
// if this causes a high-to-low transition on the currently selected group.
func (m *MMU) HandleKeyPress(key JoypadKey) {
	if m.joypad.Press(key) {
		m.RequestInterrupt(addr.JoypadInterrupt)
	}
}

// HandleKeyRelease marks key as no longer held.
func (m *MMU) HandleKeyRelease(key JoypadKey) {
	m.joypad.Release(key)
}

// SerialOutbound returns every byte shifted out over the serial port so
// far, in transfer order. Useful for snapshotting or test-ROM harnesses
// that communicate results over the link cable register.
func (m *MMU) SerialOutbound() []byte {
	return m.serial.Outbound()
}

// ReadDMASource reads a byte from wherever the active DMA transfer's source
// page points. Source addresses falling in ROM/ExtRAM go through the MBC;
// everything else (VRAM, WRAM, HRAM) is read straight out of backing memory,
// matching what a real transfer sees regardless of PPU mode.
func (m *MMU) ReadDMASource(address uint16) uint8 {
	switch m.regionMap[address>>8] {
	case regionROM, regionExtRAM:
		if m.mbc == nil {
			return 0xFF
		}
		return m.mbc.Read(address)
	case regionEcho:
		return m.memory[address-0x2000]
	default:
		return m.memory[address]
	}
}

// WriteOAMByte writes directly into OAM, bypassing the DMA-in-flight gate
// that blocks the CPU's own bus access (used only by the DMA controller
// itself while it is copying).
func (m *MMU) WriteOAMByte(index uint16, value uint8) {
	m.memory[0xFE00+index] = value
}
