package store

import (
	"io"

	"github.com/juju/errors"
)

// Medium is byte addressable non-volatile region.
// Writes may be buffered until Commit.
type Medium interface {
	io.ReaderAt
	io.WriterAt
	Size() int
	Commit() error
	Close() error
}

// Erased flash cells read as 0xff.
const ErasedByte byte = 0xff

type MemoryMedium struct {
	b       []byte
	Commits int
	// test hook, returned from Commit
	CommitErr error
}

func NewMemoryMedium(size int) *MemoryMedium {
	m := &MemoryMedium{b: make([]byte, size)}
	m.Erase()
	return m
}

func (m *MemoryMedium) Size() int { return len(m.b) }

// Bytes exposes underlying region, used to emulate corruption.
func (m *MemoryMedium) Bytes() []byte { return m.b }

func (m *MemoryMedium) Erase() {
	for i := range m.b {
		m.b[i] = ErasedByte
	}
}

func (m *MemoryMedium) ReadAt(p []byte, off int64) (int, error) {
	return readRegion(m.b, p, off)
}

func (m *MemoryMedium) WriteAt(p []byte, off int64) (int, error) {
	return writeRegion(m.b, p, off)
}

func (m *MemoryMedium) Commit() error {
	m.Commits++
	return m.CommitErr
}

func (m *MemoryMedium) Close() error { return nil }

func readRegion(region, p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > int64(len(region)) {
		return 0, errors.Errorf("read out of region off=%d len=%d size=%d", off, len(p), len(region))
	}
	return copy(p, region[off:]), nil
}

func writeRegion(region, p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > int64(len(region)) {
		return 0, errors.Errorf("write out of region off=%d len=%d size=%d", off, len(p), len(region))
	}
	return copy(region[off:], p), nil
}
