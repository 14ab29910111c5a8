package serial

import (
	"log/slog"

	"dmgcore/jeebie/addr"
	"dmgcore/jeebie/bit"
)

// Port implements the DMG serial link (SB/SC) for the loopback/log-sink
// case spec.md §4.7 describes: an internal-clock transfer completes and
// raises the Serial interrupt, an external-clock one never does (this core
// has no link-cable peer to transfer with). Every completed byte is kept
// in an outbound log a debugger or test harness can read back, in addition
// to the human-readable line buffering used for quick boot-ROM/test-ROM
// debugging.
type Port struct {
	irqHandler     func()
	sb, sc         byte
	transferActive bool
	countdown      int
	logger         *slog.Logger

	// settings
	immediate bool
	defaultRX byte // returned value on SB when no transfer is active

	outbound []byte // every byte completed by an internal-clock transfer
	line     []byte // buffered until a line terminator, for readable logging
}

type PortOption func(*Port)

// WithFixedTiming sets the port to complete transfers after a fixed countdown
// (~4096 CPU cycles per byte on DMG) instead of immediately.
func WithFixedTiming() PortOption { return func(p *Port) { p.immediate = false } }

// NewPort creates a new serial port. The passed function is called when a
// transfer completes, and should be wired to request the Serial interrupt.
func NewPort(irq func(), opts ...PortOption) *Port {
	p := &Port{
		irqHandler: irq,
		immediate:  true,
		defaultRX:  0xFF,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.Reset()
	return p
}

func (p *Port) Write(address uint16, value byte) {
	switch address {
	case addr.SB:
		p.sb = value
	case addr.SC:
		p.sc = value
		p.maybeStartTransfer()
	default:
		panic("serial.Port: invalid write address")
	}
}

func (p *Port) Read(address uint16) byte {
	switch address {
	case addr.SB:
		return p.sb
	case addr.SC:
		return p.sc
	default:
		panic("serial.Port: invalid read address")
	}
}

func (p *Port) Tick(cycles int) {
	if p.immediate || !p.transferActive {
		return
	}
	p.countdown -= cycles
	if p.countdown <= 0 {
		p.completeTransfer()
		p.countdown = 0
	}
}

func (p *Port) Reset() {
	p.sb = 0x00
	p.sc = 0x00
	p.transferActive = false
	p.countdown = 0
	p.outbound = p.outbound[:0]
	p.line = p.line[:0]
}

// Outbound returns every byte the guest has shifted out over an
// internal-clock transfer so far, in transfer order.
func (p *Port) Outbound() []byte {
	return p.outbound
}

func (p *Port) maybeStartTransfer() {
	if p.transferActive {
		return
	}
	// a transfer starts when bit 7 (start) and bit 0 (clock source) of SC are set.
	if !bit.IsSet(7, p.sc) || !bit.IsSet(0, p.sc) {
		return
	}

	b := p.sb
	p.outbound = append(p.outbound, b)

	if b == 0 || b == '\n' || b == '\r' {
		if len(p.line) > 0 {
			p.logger.Info("serial", "line", string(p.line))
			p.line = p.line[:0]
		}
	} else {
		p.line = append(p.line, b)
	}

	if p.immediate {
		p.completeTransfer()
		return
	}

	// fixed timing: DMG ~4096 CPU cycles per byte
	p.transferActive = true
	p.countdown = 4096
}

func (p *Port) completeTransfer() {
	p.sb = p.defaultRX
	// Clear start bit (bit7) to indicate completion
	p.sc = bit.Clear(7, p.sc)
	p.transferActive = false
	if p.irqHandler != nil {
		p.irqHandler()
	}
}
