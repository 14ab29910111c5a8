package memory

import "testing"

func TestMBC2(t *testing.T) {
	rom := make([]uint8, 4*0x4000)
	for i := range rom {
		rom[i] = uint8(i / 0x4000)
	}

	t.Run("RAM is 4-bit and nibble-addressed", func(t *testing.T) {
		mbc := NewMBC2(rom)
		mbc.Write(0x0000, 0x0A) // enable RAM (bit 8 of addr clear)
		mbc.Write(0xA000, 0xFF)
		got := mbc.Read(0xA000)
		if got != 0xFF {
			t.Errorf("Read(0xA000) = 0x%02X; want 0xFF (low nibble all set, high nibble forced 1)", got)
		}

		mbc.Write(0xA000, 0x03)
		got = mbc.Read(0xA000)
		if got != 0xF3 {
			t.Errorf("Read(0xA000) = 0x%02X; want 0xF3", got)
		}
	})

	t.Run("ROM bank select uses bit 8 of the address", func(t *testing.T) {
		mbc := NewMBC2(rom)
		mbc.Write(0x2100, 3) // bit 8 set -> ROM bank write
		got := mbc.Read(0x4000)
		if got != 3 {
			t.Errorf("Read(0x4000) = %d; want bank 3", got)
		}
	})
}

func TestMBC3(t *testing.T) {
	rom := make([]uint8, 8*0x4000)
	for i := range rom {
		rom[i] = uint8(i / 0x4000)
	}

	t.Run("ROM bank uses the full 7 bits", func(t *testing.T) {
		mbc := NewMBC3(rom, false, 0)
		mbc.Write(0x2000, 7)
		got := mbc.Read(0x4000)
		if got != 7 {
			t.Errorf("Read(0x4000) = %d; want bank 7", got)
		}
	})

	t.Run("RTC registers are addressable via the RAM bank window", func(t *testing.T) {
		mbc := NewMBC3(rom, true, 4)
		mbc.Write(0x0000, 0x0A) // enable RAM/RTC
		mbc.Write(0x4000, 0x08) // select RTC seconds register
		mbc.Write(0xA000, 42)
		got := mbc.Read(0xA000)
		if got != 42 {
			t.Errorf("RTC seconds register = %d; want 42", got)
		}

		mbc.Write(0x4000, 0) // back to RAM bank 0
		mbc.Write(0xA000, 9)
		got = mbc.Read(0xA000)
		if got != 9 {
			t.Errorf("RAM bank 0 = %d; want 9 (independent of RTC registers)", got)
		}
	})
}

func TestMBC5(t *testing.T) {
	rom := make([]uint8, 300*0x4000)
	for i := range rom {
		rom[i] = uint8((i / 0x4000) & 0xFF)
	}

	t.Run("ROM bank number is 9 bits", func(t *testing.T) {
		mbc := NewMBC5(rom, false, 0)
		mbc.Write(0x2000, 0xFF) // low 8 bits
		mbc.Write(0x3000, 0x01) // bit 8
		got := mbc.romBank
		if got != 0x1FF {
			t.Errorf("romBank = 0x%03X; want 0x1FF", got)
		}
	})

	t.Run("RAM bank is a plain 4-bit selector", func(t *testing.T) {
		mbc := NewMBC5(rom, true, 16)
		mbc.Write(0x0000, 0x0A)
		mbc.Write(0x4000, 5)
		mbc.Write(0xA000, 0x77)
		if got := mbc.Read(0xA000); got != 0x77 {
			t.Errorf("Read(0xA000) = 0x%02X; want 0x77", got)
		}
	})
}
