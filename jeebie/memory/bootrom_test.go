package memory

import (
	"testing"

	"dmgcore/jeebie/addr"
)

func TestLoadBootROM(t *testing.T) {
	t.Run("rejects wrong size", func(t *testing.T) {
		mmu := New()
		if err := mmu.LoadBootROM(make([]byte, 255)); err == nil {
			t.Fatal("expected an error for a non-256-byte boot rom")
		}
	})

	t.Run("overlays 0x0000-0x00FF until disabled", func(t *testing.T) {
		data := makeHeaderedROM(0x00, 0x00, 0x00, "TESTGAME")
		data[0] = 0x11 // distinguishable from the boot rom's first byte below
		cart, err := NewCartridgeWithData(data)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		mmu := NewWithCartridge(cart)

		bootROM := make([]byte, bootROMSize)
		for i := range bootROM {
			bootROM[i] = uint8(0xAA + i)
		}
		if err := mmu.LoadBootROM(bootROM); err != nil {
			t.Fatalf("LoadBootROM failed: %v", err)
		}

		for i := uint16(0); i < bootROMSize; i++ {
			if got := mmu.Read(i); got != bootROM[i] {
				t.Fatalf("Read(0x%04X) = 0x%02X; want 0x%02X", i, got, bootROM[i])
			}
		}

		mmu.Write(addr.BootROMDisable, 0)
		if got := mmu.Read(0); got != bootROM[0] {
			t.Fatalf("writing 0 to BootROMDisable should not unmap the boot rom, got 0x%02X", got)
		}

		mmu.Write(addr.BootROMDisable, 1)
		if got := mmu.Read(0); got != data[0] {
			t.Fatalf("Read(0) after disabling boot rom = 0x%02X; want cartridge byte 0x%02X", got, data[0])
		}
	})
}
