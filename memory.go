package coresim

import "sort"

// Region is the four-operation contract every memory-mapped device
// implements (spec §4.A). Reads/writes must report faults via
// *MemoryFault with the given agent attached.
type Region interface {
	// Read fills out[0:nbytes) from offset within the region.
	Read(agent Agent, offset uint64, nbytes int, out []byte) error
	// Write applies in[0:nbytes) at offset within the region.
	Write(agent Agent, offset uint64, nbytes int, in []byte) error
	// Init bulk-initializes the region. RAM copies the bytes in even
	// when it is read-only; the register regions (ESR, PLIC, DM,
	// sysctrl) treat it as an ordinary Write.
	Init(agent Agent, offset uint64, nbytes int, in []byte) error
	// DumpData writes a debug snapshot of [offset, offset+nbytes) to w.
	DumpData(w DumpWriter, offset uint64, nbytes int) error
}

// DumpWriter is the minimal sink a Region's DumpData writes to; any
// io.Writer satisfies it, kept narrow so regions don't need to import
// io themselves for this single method.
type DumpWriter interface {
	Write(p []byte) (int, error)
}

type mapping struct {
	base, size uint64
	region     Region
	name       string
}

// AddressSpace is the process-wide physical address space (spec
// §4.A): a dispatch table of non-overlapping regions. It generalizes
// the teacher's single flat Bus interface (cpu.go) to many regions,
// each policing its own size/alignment rules.
type AddressSpace struct {
	mappings []mapping
}

// NewAddressSpace returns an empty address space.
func NewAddressSpace() *AddressSpace { return &AddressSpace{} }

// Map installs a region at [base, base+size). Panics on overlap with
// an existing mapping — that is a configuration bug, not a runtime
// fault.
func (a *AddressSpace) Map(name string, base, size uint64, r Region) {
	for _, m := range a.mappings {
		if base < m.base+m.size && m.base < base+size {
			panic("coresim: overlapping memory mapping: " + name + " vs " + m.name)
		}
	}
	a.mappings = append(a.mappings, mapping{base: base, size: size, region: r, name: name})
	sort.Slice(a.mappings, func(i, j int) bool { return a.mappings[i].base < a.mappings[j].base })
}

func (a *AddressSpace) find(addr uint64, n int) (mapping, bool) {
	for _, m := range a.mappings {
		if addr >= m.base && addr+uint64(n) <= m.base+m.size {
			return m, true
		}
	}
	return mapping{}, false
}

// Read dispatches a read to the owning region, or raises
// FaultUnmapped.
func (a *AddressSpace) Read(agent Agent, addr uint64, n int, out []byte) error {
	m, ok := a.find(addr, n)
	if !ok {
		return NewMemoryFault(FaultUnmapped, agent, addr, n)
	}
	return m.region.Read(agent, addr-m.base, n, out)
}

// Write dispatches a write to the owning region, or raises
// FaultUnmapped.
func (a *AddressSpace) Write(agent Agent, addr uint64, n int, in []byte) error {
	m, ok := a.find(addr, n)
	if !ok {
		return NewMemoryFault(FaultUnmapped, agent, addr, n)
	}
	return m.region.Write(agent, addr-m.base, n, in)
}

// Init dispatches a bulk-init request.
func (a *AddressSpace) Init(agent Agent, addr uint64, n int, in []byte) error {
	m, ok := a.find(addr, n)
	if !ok {
		return NewMemoryFault(FaultUnmapped, agent, addr, n)
	}
	return m.region.Init(agent, addr-m.base, n, in)
}

// DumpData dispatches a debug snapshot request.
func (a *AddressSpace) DumpData(w DumpWriter, addr uint64, n int) error {
	m, ok := a.find(addr, n)
	if !ok {
		return NewMemoryFault(FaultUnmapped, AgentCLI, addr, n)
	}
	return m.region.DumpData(w, addr-m.base, n)
}

// readUintLE/writeUintLE are convenience helpers used throughout the
// ESR/PLIC/sysctrl regions, which all operate in fixed-width words.
func readUintLE(b []byte, n int) uint64 {
	var v uint64
	for i := n - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func writeUintLE(b []byte, n int, v uint64) {
	for i := 0; i < n; i++ {
		b[i] = byte(v)
		v >>= 8
	}
}

// RAM is a flat byte-addressed region (the MRAM/bootrom regions
// exercised by §8 scenarios 1-2). It accepts any size/alignment,
// matching real DRAM/ROM behavior. Its only access control is the
// readOnly flag (the bootrom), which rejects Write but not Init; no
// other policy such as fetch restriction is applied.
type RAM struct {
	data     []byte
	readOnly bool
}

// NewRAM allocates a zero-filled RAM region of the given size.
func NewRAM(size uint64) *RAM { return &RAM{data: make([]byte, size)} }

// NewReadOnlyRAM allocates a RAM region that rejects writes (models
// the bootrom in §8 scenario 2).
func NewReadOnlyRAM(size uint64) *RAM { return &RAM{data: make([]byte, size), readOnly: true} }

func (r *RAM) Read(agent Agent, offset uint64, n int, out []byte) error {
	if offset+uint64(n) > uint64(len(r.data)) {
		return NewMemoryFault(FaultUnmapped, agent, offset, n)
	}
	copy(out[:n], r.data[offset:offset+uint64(n)])
	return nil
}

func (r *RAM) Write(agent Agent, offset uint64, n int, in []byte) error {
	if r.readOnly {
		return NewMemoryFault(FaultReadOnly, agent, offset, n)
	}
	if offset+uint64(n) > uint64(len(r.data)) {
		return NewMemoryFault(FaultUnmapped, agent, offset, n)
	}
	copy(r.data[offset:offset+uint64(n)], in[:n])
	return nil
}

func (r *RAM) Init(agent Agent, offset uint64, n int, in []byte) error {
	if offset+uint64(n) > uint64(len(r.data)) {
		return NewMemoryFault(FaultUnmapped, agent, offset, n)
	}
	copy(r.data[offset:offset+uint64(n)], in[:n])
	return nil
}

func (r *RAM) DumpData(w DumpWriter, offset uint64, n int) error {
	if offset+uint64(n) > uint64(len(r.data)) {
		return NewMemoryFault(FaultUnmapped, AgentCLI, offset, n)
	}
	_, err := w.Write(r.data[offset : offset+uint64(n)])
	return err
}
