package proc

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/arch/x86/x86asm"
)

// AssemblyFlavour is the assembly syntax to display.
type AssemblyFlavour int

const (
	// GNUFlavour will display GNU assembly syntax.
	GNUFlavour = AssemblyFlavour(iota)
	// IntelFlavour will display Intel assembly syntax.
	IntelFlavour
	// GoFlavour will display Go assembly syntax.
	GoFlavour
)

// ParseAssemblyFlavour converts the name of a syntax ("gnu", "intel" or
// "go") to an AssemblyFlavour.
func ParseAssemblyFlavour(s string) (AssemblyFlavour, error) {
	switch s {
	case "", "gnu", "att":
		return GNUFlavour, nil
	case "intel":
		return IntelFlavour, nil
	case "go":
		return GoFlavour, nil
	}
	return GNUFlavour, fmt.Errorf("unknown assembly flavour %q", s)
}

const (
	maxX86InstructionLength = 15
	decodeCacheSize         = 1024
)

// MemoryTarget is what the Disassembler needs from a stopped process.
type MemoryTarget interface {
	// ReadMemoryWithoutTraps reads memory with the original contents of
	// enabled breakpoint sites in place of their trap instructions.
	ReadMemoryWithoutTraps(addr VirtualAddress, n int) ([]byte, error)
	PC() VirtualAddress
}

// Instruction is one decoded machine instruction.
type Instruction struct {
	Address VirtualAddress
	Bytes   []byte
	Text    string
}

// Disassembler decodes x86-64 instructions from the memory of a target.
type Disassembler struct {
	mem     MemoryTarget
	flavour AssemblyFlavour
	cache   *lru.Cache
}

type decodeKey struct {
	addr VirtualAddress
	raw  string
}

// NewDisassembler returns a disassembler reading from mem.
func NewDisassembler(mem MemoryTarget, flavour AssemblyFlavour) *Disassembler {
	cache, _ := lru.New(decodeCacheSize)
	return &Disassembler{mem: mem, flavour: flavour, cache: cache}
}

// SetFlavour changes the syntax of the disassembled text.
func (d *Disassembler) SetFlavour(flavour AssemblyFlavour) {
	if flavour != d.flavour {
		d.flavour = flavour
		d.Reset()
	}
}

// Reset forgets every instruction decoded so far.
func (d *Disassembler) Reset() {
	d.cache.Purge()
}

// Disassemble decodes n instructions starting at the current program
// counter.
func (d *Disassembler) Disassemble(n int) ([]Instruction, error) {
	return d.DisassembleAt(d.mem.PC(), n)
}

// DisassembleAt decodes n instructions starting at addr. Bytes that do not
// decode to an instruction are returned as one byte "(bad)" instructions.
// Fewer than n instructions are returned if the memory window runs out.
func (d *Disassembler) DisassembleAt(addr VirtualAddress, n int) ([]Instruction, error) {
	if n <= 0 {
		return nil, nil
	}
	mem, err := d.mem.ReadMemoryWithoutTraps(addr, n*maxX86InstructionLength)
	if err != nil {
		return nil, err
	}

	r := make([]Instruction, 0, n)
	pc := addr
	for len(r) < n && len(mem) > 0 {
		inst := d.decode(pc, mem)
		r = append(r, inst)
		pc = pc.Add(int64(len(inst.Bytes)))
		mem = mem[len(inst.Bytes):]
	}
	return r, nil
}

func (d *Disassembler) decode(pc VirtualAddress, mem []byte) Instruction {
	window := mem
	if len(window) > maxX86InstructionLength {
		window = window[:maxX86InstructionLength]
	}
	key := decodeKey{addr: pc, raw: string(window)}
	if v, ok := d.cache.Get(key); ok {
		return v.(Instruction)
	}

	var inst Instruction
	x, err := x86asm.Decode(window, 64)
	if err != nil {
		inst = Instruction{Address: pc, Bytes: []byte{window[0]}, Text: "(bad)"}
	} else {
		inst = Instruction{
			Address: pc,
			Bytes:   append([]byte(nil), window[:x.Len]...),
			Text:    d.text(x, pc),
		}
	}
	d.cache.Add(key, inst)
	return inst
}

func (d *Disassembler) text(inst x86asm.Inst, pc VirtualAddress) string {
	switch d.flavour {
	case GoFlavour:
		return x86asm.GoSyntax(inst, uint64(pc), nil)
	case IntelFlavour:
		return x86asm.IntelSyntax(inst, uint64(pc), nil)
	case GNUFlavour:
		fallthrough
	default:
		return x86asm.GNUSyntax(inst, uint64(pc), nil)
	}
}
