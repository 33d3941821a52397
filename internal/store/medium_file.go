package store

import (
	"io"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/extremofile"
	"github.com/temoto/wifionoff/log2"
)

type fileStorage interface {
	Read() ([]byte, error)
	io.Writer
}

// FileMedium emulates EEPROM on Linux filesystem.
// Region image is kept in memory, Commit writes whole image atomically with backup copy.
type FileMedium struct {
	mu      sync.Mutex
	b       []byte
	log     *log2.Log
	storage fileStorage
}

func OpenFileMedium(dir string, size int, log *log2.Log) (*FileMedium, error) {
	if dir == "" {
		return nil, errors.NotValidf("store path empty")
	}
	m := &FileMedium{
		b:   make([]byte, size),
		log: log,
		storage: extremofile.New(extremofile.Config{
			Dir:      dir,
			DirPerm:  0755,
			FilePerm: 0644,
		}),
	}
	for i := range m.b {
		m.b[i] = ErasedByte
	}

	tbegin := time.Now()
	data, err := m.storage.Read()
	m.log.Debugf("store file read dir=%s len=%d duration=%v", dir, len(data), time.Since(tbegin))
	switch {
	case extremofile.IsCorrupt(err):
		// same as blank flash, store validation reinitializes it
		m.log.Errorf("store file dir=%s corrupt, start erased", dir)
		data = nil
	case extremofile.IsCritical(err):
		return nil, errors.Annotatef(err, "store file dir=%s", dir)
	case err != nil:
		// not fatal, checksum validation decides whether content is usable
		m.log.Errorf("store file dir=%s ignore non-critical err=%v", dir, err)
	}
	if len(data) != 0 && len(data) != size {
		m.log.Errorf("store file dir=%s size=%d expected=%d", dir, len(data), size)
	}
	copy(m.b, data)
	return m, nil
}

func (m *FileMedium) Size() int { return len(m.b) }

func (m *FileMedium) ReadAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return readRegion(m.b, p, off)
}

func (m *FileMedium) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return writeRegion(m.b, p, off)
}

func (m *FileMedium) Commit() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tbegin := time.Now()
	_, err := m.storage.Write(m.b)
	m.log.Debugf("store file write duration=%v", time.Since(tbegin))
	return errors.Annotate(err, "store file commit")
}

func (m *FileMedium) Close() error { return nil }
