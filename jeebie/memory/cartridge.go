package memory

import (
	"strings"

	"dmgcore/jeebie/bit"
	"dmgcore/jeebie/dmgerr"
)

const titleLength = 11

const (
	entryPointAddress       = 0x100
	logoAddress             = 0x104
	titleAddress            = 0x134
	manufacturerCodeAddress = 0x13F
	cgbFlagAddress          = 0x143
	newLicenseCodeAddress   = 0x144
	sgbFlagAddress          = 0x146
	cartridgeTypeAddress    = 0x147
	romSizeAddress          = 0x148
	ramSizeAddress          = 0x149
	destinationCodeAddress  = 0x14A
	oldLicenseCodeAddress   = 0x14B
	versionNumberAddress    = 0x14C
	headerChecksumAddress   = 0x14D
	globalChecksumAddress   = 0x14E
)

// MBCType identifies the memory bank controller family a cartridge uses, as
// derived from the cart type byte at 0x147. Only the families this core
// actually emulates get a dedicated Read/Write implementation; the rest are
// recognized (so header parsing doesn't fail on real-world ROMs) but fall
// back to MBCUnknownType.
type MBCType uint8

const (
	NoMBCType MBCType = iota
	MBC1Type
	MBC1MultiType
	MBC2Type
	MBC3Type
	MBC5Type
	MBCUnknownType
)

func (t MBCType) String() string {
	switch t {
	case NoMBCType:
		return "none"
	case MBC1Type:
		return "MBC1"
	case MBC1MultiType:
		return "MBC1 (multicart)"
	case MBC2Type:
		return "MBC2"
	case MBC3Type:
		return "MBC3"
	case MBC5Type:
		return "MBC5"
	default:
		return "unknown"
	}
}

// parseMBCType maps a cart type header byte to the mapper family plus the
// feature flags (RAM/battery/timer/rumble) that byte implies.
func parseMBCType(cartType uint8) (mbcType MBCType, hasRAM, hasBattery, hasRTC, hasRumble bool) {
	switch cartType {
	case 0x00:
		return NoMBCType, false, false, false, false
	case 0x01:
		return MBC1Type, false, false, false, false
	case 0x02:
		return MBC1Type, true, false, false, false
	case 0x03:
		return MBC1Type, true, true, false, false
	case 0x05:
		return MBC2Type, false, false, false, false
	case 0x06:
		return MBC2Type, false, true, false, false
	case 0x0F:
		return MBC3Type, false, true, true, false
	case 0x10:
		return MBC3Type, true, true, true, false
	case 0x11:
		return MBC3Type, false, false, false, false
	case 0x12:
		return MBC3Type, true, false, false, false
	case 0x13:
		return MBC3Type, true, true, false, false
	case 0x19:
		return MBC5Type, false, false, false, false
	case 0x1A:
		return MBC5Type, true, false, false, false
	case 0x1B:
		return MBC5Type, true, true, false, false
	case 0x1C:
		return MBC5Type, false, false, false, true
	case 0x1D:
		return MBC5Type, true, false, false, true
	case 0x1E:
		return MBC5Type, true, true, false, true
	default:
		// MMM01, MBC6, MBC7, PocketCamera, BandaiTama5, HuC1, HuC3 and any
		// other byte this core does not model a controller for.
		return MBCUnknownType, false, false, false, false
	}
}

// ramBankCountFromHeader decodes the RAM size byte at 0x149 into a bank
// count (each bank is 8KB). Unrecognized values are treated as no RAM
// rather than failing outright, since several early cartridges set this
// byte to 0x01 even though it carries no official meaning.
func ramBankCountFromHeader(ramSize uint8) uint8 {
	switch ramSize {
	case 0x00, 0x01:
		return 0
	case 0x02:
		return 1
	case 0x03:
		return 4
	case 0x04:
		return 16
	case 0x05:
		return 8
	default:
		return 0
	}
}

type Cartridge struct {
	data           []byte
	title          string
	manufacturer   string
	headerChecksum uint16
	globalChecksum uint16
	version        uint8
	cartType       uint8
	romSize        uint8
	ramSize        uint8
	cgbFlag        bool
	sgbFlag        bool

	mbcType      MBCType
	hasBattery   bool
	hasRTC       bool
	hasRumble    bool
	ramBankCount uint8
}

// NewCartridge creates an empty cartridge, useful only for debugging purposes.
func NewCartridge() *Cartridge {
	return &Cartridge{
		data:    make([]byte, 0x10000),
		mbcType: NoMBCType,
	}
}

// NewCartridgeWithData initializes a new Cartridge from a slice of bytes,
// parsing the header at 0x100-0x14F. Returns a *dmgerr.Error of kind
// HeaderParsing if the ROM is too short to contain a header or carries a
// cart type byte this core cannot map to a known MBC family.
func NewCartridgeWithData(bytes []byte) (*Cartridge, error) {
	if len(bytes) <= int(globalChecksumAddress+1) {
		return nil, dmgerr.New(dmgerr.HeaderParsing, "rom shorter than its own header")
	}

	titleBytes := bytes[titleAddress : titleAddress+titleLength]
	mbcType, _, hasBattery, hasRTC, hasRumble := parseMBCType(bytes[cartridgeTypeAddress])

	ramBanks := ramBankCountFromHeader(bytes[ramSizeAddress])
	if ramBanks == 0 && mbcType == MBC2Type {
		// MBC2's 512x4bit RAM is built into the controller and is never
		// reflected in the header's RAM size byte.
		ramBanks = 1
	}

	cart := &Cartridge{
		data:           make([]byte, len(bytes)),
		title:          cleanGameboyTitle(titleBytes),
		manufacturer:   strings.TrimRight(string(bytes[manufacturerCodeAddress:manufacturerCodeAddress+4]), "\x00"),
		headerChecksum: uint16(bytes[headerChecksumAddress]),
		globalChecksum: bit.Combine(bytes[globalChecksumAddress], bytes[globalChecksumAddress+1]),
		version:        bytes[versionNumberAddress],
		cartType:       bytes[cartridgeTypeAddress],
		romSize:        bytes[romSizeAddress],
		ramSize:        bytes[ramSizeAddress],
		cgbFlag:        bytes[cgbFlagAddress] == 0xC0,
		sgbFlag:        bytes[sgbFlagAddress] == 0x03,
		mbcType:        mbcType,
		hasBattery:     hasBattery,
		hasRTC:         hasRTC,
		hasRumble:      hasRumble,
		ramBankCount:   ramBanks,
	}

	copy(cart.data, bytes)

	return cart, nil
}

// Title returns the game title encoded in the cartridge header.
func (c *Cartridge) Title() string {
	return c.title
}

// MBCType returns the detected memory bank controller family.
func (c *Cartridge) MBCType() MBCType {
	return c.mbcType
}

// RAMBankCount returns the number of 8KB external RAM banks the cartridge
// declares.
func (c *Cartridge) RAMBankCount() uint8 {
	return c.ramBankCount
}

// HasBattery reports whether the cartridge's RAM (or RTC) is battery-backed.
func (c *Cartridge) HasBattery() bool {
	return c.hasBattery
}

// ReadByte reads a byte at the specified address. Does not check bounds, so the caller must make sure the
// address is valid for the cartridge.
func (c Cartridge) ReadByte(addr uint16) uint8 {
	return c.data[addr]
}

// WriteByte attempts a write to the specified address. Writing to a cartridge has sense if the cartridge
// has extra RAM or for some special operations, like switching ROM banks.
func (c Cartridge) WriteByte(addr uint16, value uint8) uint8 {
	return c.data[addr]
}
