package jeebie

import (
	"fmt"
	"hash/fnv"
	"log/slog"
	"os"
	"sync"

	"dmgcore/jeebie/addr"
	"dmgcore/jeebie/cpu"
	"dmgcore/jeebie/debug"
	"dmgcore/jeebie/memory"
	"dmgcore/jeebie/video"
)

// DebuggerState is the run state of the Console: the emu-state-machine
// driven by the event mailbox and by CPU/Bus errors surfacing at a frame
// boundary.
type DebuggerState int

const (
	DebuggerRunning   DebuggerState = iota // Normal execution
	DebuggerPaused                         // Paused, waiting for commands
	DebuggerStep                           // Execute one instruction then pause
	DebuggerStepFrame                      // Execute one frame then pause
	DebuggerError                          // Stopped after an unrecoverable CPU/Bus error
)

// Command is anything postable to a Console's event mailbox. It mirrors
// the Start/Pause/Stop/Step/Input/UpdateSettings/Debug set a host can send
// between frames.
type Command interface {
	isCommand()
}

type StartCommand struct{}
type PauseCommand struct{}
type StopCommand struct{}
type StepInstructionCommand struct{}

type InputCommand struct {
	Key     memory.JoypadKey
	Pressed bool
}

type UpdateSettingsCommand struct {
	SkipBootROM bool
}

type DebugCommandKind int

const (
	SetBreakpoint DebugCommandKind = iota
	ClearBreakpoint
	DumpVRAM
)

type DebugCommand struct {
	Kind    DebugCommandKind
	Address uint16
}

func (StartCommand) isCommand()           {}
func (PauseCommand) isCommand()           {}
func (StopCommand) isCommand()            {}
func (StepInstructionCommand) isCommand() {}
func (InputCommand) isCommand()           {}
func (UpdateSettingsCommand) isCommand()  {}
func (DebugCommand) isCommand()           {}

// commandMailboxSize bounds the host->core command queue. The model is
// single-producer/single-consumer and cooperative (no timeouts), so a
// generous buffer is enough; PostCommand never blocks the caller.
const commandMailboxSize = 32

// Console is the root struct and entry point for running the emulation.
// It owns the CPU and the Bus exclusively (the Bus in turn owns MBC, PPU,
// APU, OAM/DMA, timer, serial, and the interrupt controller), and exposes
// StepToVBlank as its single thread of execution, to be driven by a host
// loop that paces frames on its own.
type Console struct {
	cpu *cpu.CPU
	bus *Bus

	romPath string // empty when booted without a cartridge; used by Stop/reset

	commands    chan Command
	breakpoints map[uint16]bool

	// Debugger/run state
	debuggerState    DebuggerState
	debuggerMutex    sync.RWMutex
	stepRequested    bool
	frameRequested   bool
	instructionCount uint64
	frameCount       uint64
	lastErr          error

	// Snapshot mailbox: single slot, latest-wins. Updated every VBlank edge.
	frameMutex sync.Mutex
	frameCopy  *video.FrameBuffer

	// Completion detection, for driving headless/test-ROM runs that never
	// exit on their own: a blargg test ROM settles on a final screen and
	// keeps redrawing it forever, so "the same frame hash N times in a row"
	// is the signal that the test has finished.
	completionMaxFrames  uint64
	completionMinLoop    int
	completionLastHash   uint64
	completionLoopCount  int
}

func (c *Console) init(mem *memory.MMU) {
	c.bus = NewBus(mem)
	c.cpu = cpu.New(c.bus)
	c.commands = make(chan Command, commandMailboxSize)
	c.breakpoints = make(map[uint16]bool)

	mem.SetTimerSeed(0xABCC)
}

// initAtBootROM wires the Console the same way init does, but starts the
// CPU at the reset vector instead of the post-boot-ROM state, so that the
// already-mapped boot ROM drives it there instead.
func (c *Console) initAtBootROM(mem *memory.MMU) {
	c.bus = NewBus(mem)
	c.cpu = cpu.NewAtBootROM(c.bus)
	c.commands = make(chan Command, commandMailboxSize)
	c.breakpoints = make(map[uint16]bool)
}

// New creates a new Console instance with no cartridge loaded, equivalent
// to turning on a Game Boy with nothing in the cartridge slot.
func New() *Console {
	c := &Console{}
	c.init(memory.NewWithCartridge(memory.NewCartridge()))

	return c
}

// NewWithFile creates a new Console and loads the cartridge at path into it.
// The CPU starts directly at post-boot-ROM state (the boot ROM is skipped),
// matching UpdateSettingsCommand{SkipBootROM: true}.
func NewWithFile(path string) (*Console, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	slog.Debug("Loaded ROM data", "size", len(data))

	cart, err := memory.NewCartridgeWithData(data)
	if err != nil {
		return nil, err
	}

	c := &Console{romPath: path}
	c.init(memory.NewWithCartridge(cart))

	return c, nil
}

// NewWithBootROM creates a new Console that loads and runs the given boot
// ROM image before handing control to the cartridge at cartPath, matching
// the CLI's `boot_rom_path cart_rom_path` contract.
func NewWithBootROM(bootPath, cartPath string) (*Console, error) {
	bootData, err := os.ReadFile(bootPath)
	if err != nil {
		return nil, err
	}

	cartData, err := os.ReadFile(cartPath)
	if err != nil {
		return nil, err
	}

	cart, err := memory.NewCartridgeWithData(cartData)
	if err != nil {
		return nil, err
	}

	mem := memory.NewWithCartridge(cart)
	if err := mem.LoadBootROM(bootData); err != nil {
		return nil, err
	}

	c := &Console{romPath: cartPath}
	c.initAtBootROM(mem)

	return c, nil
}

// PostCommand enqueues a host command for the next StepToVBlank call to
// pick up. It never blocks: a full mailbox drops the command with a
// warning, since the core has no timeout mechanism of its own.
func (c *Console) PostCommand(cmd Command) {
	select {
	case c.commands <- cmd:
	default:
		slog.Warn("Console: command mailbox full, dropping command", "command", fmt.Sprintf("%T", cmd))
	}
}

// drainCommands applies every command currently queued, in order. Called
// once at the top of every StepToVBlank, matching spec's "polls the event
// mailbox between frames".
func (c *Console) drainCommands() {
	for {
		select {
		case cmd := <-c.commands:
			c.applyCommand(cmd)
		default:
			return
		}
	}
}

func (c *Console) applyCommand(cmd Command) {
	switch cmd := cmd.(type) {
	case StartCommand:
		c.DebuggerResume()
	case PauseCommand:
		c.DebuggerPause()
	case StopCommand:
		c.reset()
	case StepInstructionCommand:
		c.DebuggerStepInstruction()
	case InputCommand:
		if cmd.Pressed {
			c.bus.HandleKeyPress(cmd.Key)
		} else {
			c.bus.HandleKeyRelease(cmd.Key)
		}
	case UpdateSettingsCommand:
		slog.Debug("Console: settings update requested", "skip_boot_rom", cmd.SkipBootROM)
	case DebugCommand:
		c.applyDebugCommand(cmd)
	}
}

func (c *Console) applyDebugCommand(cmd DebugCommand) {
	switch cmd.Kind {
	case SetBreakpoint:
		c.breakpoints[cmd.Address] = true
	case ClearBreakpoint:
		delete(c.breakpoints, cmd.Address)
	case DumpVRAM:
		slog.Info("Console: VRAM dump requested (not persisted, see snapshot mailbox)")
	}
}

// reset reloads the cartridge from scratch, resetting the machine to its
// post-boot state. Mirrors a Stop command per the concurrency model: "Stop
// resets the entire machine to post-boot state at the next event-poll
// boundary."
func (c *Console) reset() {
	var mem *memory.MMU
	if c.romPath != "" {
		data, err := os.ReadFile(c.romPath)
		if err != nil {
			slog.Error("Console: failed to reload ROM on Stop", "path", c.romPath, "error", err)
			return
		}
		cart, err := memory.NewCartridgeWithData(data)
		if err != nil {
			slog.Error("Console: failed to reparse ROM on Stop", "path", c.romPath, "error", err)
			return
		}
		mem = memory.NewWithCartridge(cart)
	} else {
		mem = memory.NewWithCartridge(memory.NewCartridge())
	}

	c.init(mem)
	c.instructionCount = 0
	c.frameCount = 0
	c.lastErr = nil
	c.SetDebuggerState(DebuggerPaused)
}

// StepToVBlank executes instructions until the PPU crosses into VBlank
// (one frame's worth of work), honoring the debugger state and draining
// any commands queued since the last call. On an unrecoverable CPU/Bus
// error it transitions to DebuggerError and stops ticking until a Stop
// command is received.
func (c *Console) StepToVBlank() {
	c.drainCommands()

	state := c.GetDebuggerState()

	if state == DebuggerPaused || state == DebuggerError {
		return
	}

	if state == DebuggerStep {
		c.debuggerMutex.Lock()
		requested := c.stepRequested
		if requested {
			c.stepRequested = false
		}
		c.debuggerMutex.Unlock()

		if requested {
			c.step()
			c.SetDebuggerState(DebuggerPaused)
		}
		return
	}

	if state == DebuggerStepFrame {
		c.debuggerMutex.Lock()
		requested := c.frameRequested
		if requested {
			c.frameRequested = false
		}
		c.debuggerMutex.Unlock()

		if requested {
			c.runToVBlank()
			slog.Debug("Frame step completed", "frame", c.frameCount, "instructions", c.instructionCount)
			c.SetDebuggerState(DebuggerPaused)
		}
		return
	}

	// Normal execution (DebuggerRunning)
	c.runToVBlank()
}

// step executes exactly one instruction and returns whether it crossed
// into VBlank.
func (c *Console) step() bool {
	oldPC := c.cpu.GetPC()
	cycles := c.cpu.Tick()
	vblank := c.bus.Step(cycles)
	c.instructionCount++

	if err := c.cpu.Err(); err != nil && c.lastErr == nil {
		c.lastErr = err
		c.SetDebuggerState(DebuggerError)
		slog.Error("Console: unrecoverable CPU error", "pc", fmt.Sprintf("0x%04X", oldPC), "error", err)
	}

	if c.breakpoints[c.cpu.GetPC()] {
		c.SetDebuggerState(DebuggerPaused)
	}

	return vblank
}

func (c *Console) runToVBlank() {
	for {
		vblank := c.step()

		if c.GetDebuggerState() == DebuggerError {
			return
		}

		if vblank {
			c.frameCount++
			c.publishFrame()
			if c.frameCount%60 == 0 {
				slog.Debug("Frame completed", "frame", c.frameCount, "pc", fmt.Sprintf("0x%04X", c.cpu.GetPC()))
			}
			return
		}

		if c.GetDebuggerState() == DebuggerPaused {
			return
		}
	}
}

// publishFrame copies the current framebuffer into the single-slot
// snapshot mailbox. Copying (rather than handing out the live buffer)
// means a reader never observes a frame mid-render.
func (c *Console) publishFrame() {
	fb := *c.bus.GetFrameBuffer()
	c.frameMutex.Lock()
	c.frameCopy = &fb
	c.frameMutex.Unlock()
}

// GetCurrentFrame returns the most recently published frame, latest-wins.
func (c *Console) GetCurrentFrame() *video.FrameBuffer {
	c.frameMutex.Lock()
	defer c.frameMutex.Unlock()
	if c.frameCopy == nil {
		return c.bus.GetFrameBuffer()
	}
	return c.frameCopy
}

// RunUntilFrame is an alias for StepToVBlank, kept for callers that think
// in terms of "run until the next frame is ready" rather than VBlank.
func (c *Console) RunUntilFrame() {
	c.StepToVBlank()
}

// ConfigureCompletionDetection arms RunUntilComplete: it will stop once the
// current frame has hashed identically minLoopCount times in a row (a
// blargg-style test ROM settles on its final screen and redraws it forever)
// or once maxFrames have run, whichever comes first.
func (c *Console) ConfigureCompletionDetection(maxFrames uint64, minLoopCount int) {
	c.completionMaxFrames = maxFrames
	c.completionMinLoop = minLoopCount
	c.completionLastHash = 0
	c.completionLoopCount = 0
}

// RunUntilComplete repeatedly steps to the next frame until completion
// detection (see ConfigureCompletionDetection) fires or the debugger stops
// due to an error. Must be
// configured first; otherwise it returns immediately.
func (c *Console) RunUntilComplete() {
	if c.completionMaxFrames == 0 {
		return
	}

	for c.frameCount < c.completionMaxFrames {
		c.StepToVBlank()

		if c.GetDebuggerState() == DebuggerError {
			return
		}

		hash := hashFrame(c.GetCurrentFrame())
		if hash == c.completionLastHash {
			c.completionLoopCount++
			if c.completionLoopCount >= c.completionMinLoop {
				return
			}
		} else {
			c.completionLastHash = hash
			c.completionLoopCount = 0
		}
	}
}

func hashFrame(fb *video.FrameBuffer) uint64 {
	h := fnv.New64a()
	h.Write(fb.ToGrayscale())
	return h.Sum64()
}

func (c *Console) HandleKeyPress(key memory.JoypadKey) {
	c.bus.HandleKeyPress(key)
}

func (c *Console) HandleKeyRelease(key memory.JoypadKey) {
	c.bus.HandleKeyRelease(key)
}

func (c *Console) GetCPU() *cpu.CPU {
	return c.cpu
}

// Err returns the error that put the Console into DebuggerError, if any.
func (c *Console) Err() error {
	return c.lastErr
}

// Debugger control methods
func (c *Console) SetDebuggerState(state DebuggerState) {
	c.debuggerMutex.Lock()
	defer c.debuggerMutex.Unlock()
	c.debuggerState = state
	slog.Debug("Debugger state changed", "state", state)
}

func (c *Console) GetDebuggerState() DebuggerState {
	c.debuggerMutex.RLock()
	defer c.debuggerMutex.RUnlock()
	return c.debuggerState
}

func (c *Console) DebuggerPause() {
	c.SetDebuggerState(DebuggerPaused)
	slog.Info("Console paused")
}

func (c *Console) DebuggerResume() {
	c.SetDebuggerState(DebuggerRunning)
	slog.Info("Console resumed")
}

func (c *Console) DebuggerStepInstruction() {
	c.debuggerMutex.Lock()
	defer c.debuggerMutex.Unlock()
	c.stepRequested = true
	c.debuggerState = DebuggerStep
	slog.Info("Step instruction requested")
}

func (c *Console) DebuggerStepFrame() {
	c.debuggerMutex.Lock()
	defer c.debuggerMutex.Unlock()
	c.frameRequested = true
	c.debuggerState = DebuggerStepFrame
	slog.Info("Step frame requested")
}

func (c *Console) GetInstructionCount() uint64 {
	return c.instructionCount
}

func (c *Console) GetFrameCount() uint64 {
	return c.frameCount
}

func (c *Console) GetMMU() *memory.MMU {
	return c.bus.MMU()
}

// debugSnapshotRadius is how many bytes before/after PC ExtractDebugData
// includes in its MemorySnapshot, enough for a handful of disassembled
// instructions in either direction.
const debugSnapshotRadius = 32

// ExtractDebugData gathers a point-in-time view of CPU, OAM and VRAM state
// for debug UIs. Returns nil if the Console has no bus/cpu wired yet (the
// zero-value Console).
func (c *Console) ExtractDebugData() *debug.CompleteDebugData {
	if c.bus == nil || c.cpu == nil {
		return nil
	}

	pc := c.cpu.GetPC()
	start := pc - debugSnapshotRadius
	if pc < debugSnapshotRadius {
		start = 0
	}
	size := debugSnapshotRadius * 2
	if uint32(start)+uint32(size) > 0x10000 {
		size = int(0x10000 - uint32(start))
	}
	snapshotBytes := make([]uint8, size)
	for i := 0; i < size; i++ {
		snapshotBytes[i] = c.bus.Read(start + uint16(i))
	}

	currentLine := int(c.bus.Read(addr.LY))
	spriteHeight := 8
	if c.bus.ReadBit(2, addr.LCDC) {
		spriteHeight = 16
	}

	var debuggerState debug.DebuggerState
	switch c.GetDebuggerState() {
	case DebuggerRunning:
		debuggerState = debug.DebuggerRunning
	case DebuggerStep:
		debuggerState = debug.DebuggerStepInstruction
	case DebuggerStepFrame:
		debuggerState = debug.DebuggerStepFrame
	default:
		debuggerState = debug.DebuggerPaused
	}

	return &debug.CompleteDebugData{
		OAM:   debug.ExtractOAMData(c.bus, currentLine, spriteHeight),
		VRAM:  debug.ExtractVRAMData(c.bus),
		Audio: debug.ExtractAudioData(c.bus, nil),
		CPU: &debug.CPUState{
			A: c.cpu.GetA(), F: c.cpu.GetF(),
			B: c.cpu.GetB(), C: c.cpu.GetC(),
			D: c.cpu.GetD(), E: c.cpu.GetE(),
			H: c.cpu.GetH(), L: c.cpu.GetL(),
			SP:     c.cpu.GetSP(),
			PC:     pc,
			IME:    c.cpu.GetIME(),
			Cycles: c.cpu.GetCycles(),
		},
		Memory: &debug.MemorySnapshot{
			StartAddr: start,
			Bytes:     snapshotBytes,
		},
		DebuggerState:   debuggerState,
		InterruptEnable: c.bus.Read(addr.IE),
		InterruptFlags:  c.bus.Read(addr.IF),
	}
}
