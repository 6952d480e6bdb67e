package proc

import (
	"strings"
	"testing"
)

type fakeMemory struct {
	base VirtualAddress
	data []byte
	pc   VirtualAddress
}

func (m *fakeMemory) ReadMemoryWithoutTraps(addr VirtualAddress, n int) ([]byte, error) {
	off := int(addr - m.base)
	end := off + n
	if end > len(m.data) {
		end = len(m.data)
	}
	return append([]byte(nil), m.data[off:end]...), nil
}

func (m *fakeMemory) PC() VirtualAddress { return m.pc }

func TestDisassemble(t *testing.T) {
	mem := &fakeMemory{
		base: 0x1000,
		// push rbp; mov rbp, rsp; ret; push es (invalid in 64 bit mode); ret
		data: []byte{0x55, 0x48, 0x89, 0xe5, 0xc3, 0x06, 0xc3},
		pc:   0x1000,
	}
	d := NewDisassembler(mem, IntelFlavour)
	insts, err := d.Disassemble(3)
	assertNoError(err, t, "Disassemble")
	if len(insts) != 3 {
		t.Fatalf("expected 3 instructions, got %d", len(insts))
	}
	want := []struct {
		addr VirtualAddress
		size int
		text string
	}{
		{0x1000, 1, "push rbp"},
		{0x1001, 3, "mov rbp, rsp"},
		{0x1004, 1, "ret"},
	}
	for i, w := range want {
		if insts[i].Address != w.addr || len(insts[i].Bytes) != w.size || !strings.HasPrefix(insts[i].Text, w.text) {
			t.Errorf("instruction %d: %s %x %q", i, insts[i].Address, insts[i].Bytes, insts[i].Text)
		}
	}

	insts, err = d.DisassembleAt(0x1005, 2)
	assertNoError(err, t, "DisassembleAt")
	if len(insts) != 2 {
		t.Fatalf("expected 2 instructions, got %v", insts)
	}
	if insts[0].Address != 0x1005 || insts[0].Text != "(bad)" || len(insts[0].Bytes) != 1 {
		t.Errorf("expected a one byte (bad) instruction, got %v", insts[0])
	}
	if insts[1].Address != 0x1006 || !strings.HasPrefix(insts[1].Text, "ret") {
		t.Errorf("decoding did not resume after the bad byte: %v", insts[1])
	}

	d.SetFlavour(GNUFlavour)
	insts, err = d.Disassemble(1)
	assertNoError(err, t, "Disassemble")
	if !strings.HasPrefix(insts[0].Text, "push") || !strings.Contains(insts[0].Text, "%rbp") {
		t.Errorf("unexpected GNU syntax %q", insts[0].Text)
	}
}
