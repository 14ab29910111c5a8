package jeebie

import (
	"dmgcore/jeebie/addr"
	"dmgcore/jeebie/memory"
	"dmgcore/jeebie/video"
)

// Bus is the component the Console drives once per instruction: it owns
// everything memory-mapped (MBC, PPU, APU, OAM/DMA, timer, serial,
// interrupt controller, HRAM - all reachable through the MMU) plus the PPU
// itself, and reports back whether this step crossed into VBlank so the
// Console knows a frame just finished.
type Bus struct {
	mmu *memory.MMU
	gpu *video.GPU
}

// NewBus wires a fresh MMU to a GPU that reads/writes through it.
func NewBus(mmu *memory.MMU) *Bus {
	return &Bus{
		mmu: mmu,
		gpu: video.NewGpu(mmu),
	}
}

func (b *Bus) Read(address uint16) byte {
	return b.mmu.Read(address)
}

func (b *Bus) Write(address uint16, value byte) {
	b.mmu.Write(address, value)
}

// Step advances every ticking component (timer, serial, DMA, APU via
// MMU.Tick, and the PPU) by cycles, and reports whether the PPU crossed
// the HBlank->VBlank edge during this step.
func (b *Bus) Step(cycles int) (enteredVBlank bool) {
	b.mmu.Tick(cycles)
	return b.gpu.Tick(cycles)
}

func (b *Bus) RequestInterrupt(interrupt addr.Interrupt) {
	b.mmu.RequestInterrupt(interrupt)
}

func (b *Bus) ReadBit(index uint8, address uint16) bool {
	return b.mmu.ReadBit(index, address)
}

func (b *Bus) GetFrameBuffer() *video.FrameBuffer {
	return b.gpu.GetFrameBuffer()
}

func (b *Bus) HandleKeyPress(key memory.JoypadKey) {
	b.mmu.HandleKeyPress(key)
}

func (b *Bus) HandleKeyRelease(key memory.JoypadKey) {
	b.mmu.HandleKeyRelease(key)
}

func (b *Bus) MMU() *memory.MMU {
	return b.mmu
}
