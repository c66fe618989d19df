package interp

// Memory is the interpreter's linear, byte-addressed scratch space.
type Memory struct {
	store []byte
}

func newMemory() *Memory { return &Memory{} }

func (m *Memory) resize(size uint64) {
	if uint64(len(m.store)) < size {
		m.store = append(m.store, make([]byte, size-uint64(len(m.store)))...)
	}
}

// Set writes data at offset, growing the backing store as needed.
func (m *Memory) Set(offset, size uint64, data []byte) {
	if size == 0 {
		return
	}
	m.resize(offset + size)
	copy(m.store[offset:offset+size], data)
}

// Get reads size bytes at offset, zero-padding past the end like the EVM does.
func (m *Memory) Get(offset, size uint64) []byte {
	out := make([]byte, size)
	if offset >= uint64(len(m.store)) {
		return out
	}
	end := offset + size
	if end > uint64(len(m.store)) {
		end = uint64(len(m.store))
	}
	copy(out, m.store[offset:end])
	return out
}

// Len reports the current backing-store size.
func (m *Memory) Len() int { return len(m.store) }

// Clone deep-copies the memory (used for continuation snapshots, §3).
func (m *Memory) Clone() *Memory {
	return &Memory{store: append([]byte(nil), m.store...)}
}
