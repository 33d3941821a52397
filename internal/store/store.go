// Package store keeps device configuration in fixed layout non-volatile region.
// Region is protected by schema version byte and CRC-32 over all field bytes.
// Any mismatch is treated as total corruption: whole region is reset to defaults.
package store

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
	"sync"

	"github.com/juju/errors"
	"github.com/temoto/wifionoff/crc"
	"github.com/temoto/wifionoff/log2"
)

type InitResult struct {
	Valid            bool
	WasReinitialized bool
}

type Store struct {
	mu     sync.Mutex
	layout Layout
	medium Medium
	log    *log2.Log
}

func New(medium Medium, layout Layout, log *log2.Log) (*Store, error) {
	if medium.Size() < layout.Size {
		return nil, errors.NotValidf("store medium size=%d less than layout=%s size=%d", medium.Size(), layout.Name, layout.Size)
	}
	return &Store{layout: layout, medium: medium, log: log}, nil
}

func (s *Store) Layout() Layout { return s.layout }

// InitializeIfInvalid validates version and checksum.
// On any mismatch, prior content is destroyed and replaced with defaults.
func (s *Store) InitializeIfInvalid() (InitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	version := s.readSlot(FieldVersion)[0]
	stored := s.storedChecksum()
	computed := s.checksum()
	if version == s.layout.Version && stored == computed {
		s.log.Debugf("store valid layout=%s version=%d checksum=%08x", s.layout.Name, version, stored)
		return InitResult{Valid: true}, nil
	}

	s.log.Errorf("store invalid layout=%s version=%d expected=%d checksum stored=%08x computed=%08x, reinitialize",
		s.layout.Name, version, s.layout.Version, stored, computed)
	if err := s.reinitialize(); err != nil {
		return InitResult{}, err
	}
	return InitResult{Valid: true, WasReinitialized: true}, nil
}

// Reinitialize resets whole region to defaults. Used by factory reset.
func (s *Store) Reinitialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reinitialize()
}

// Erase fills region with erased bytes, like blank flash.
// Next InitializeIfInvalid reports WasReinitialized.
func (s *Store) Erase() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	region := bytes.Repeat([]byte{ErasedByte}, s.layout.Size)
	if _, err := s.medium.WriteAt(region, 0); err != nil {
		return errors.Annotate(err, "store erase")
	}
	return errors.Annotate(s.medium.Commit(), "store erase")
}

// ReadField returns copy of raw slot bytes, whatever the content.
func (s *Store) ReadField(f FieldID) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readSlot(f)
}

// WriteField stores value zero padded to slot size, then updates checksum and commits.
// Caller validates size, oversized value is code error.
func (s *Store) WriteField(f FieldID, value []byte) error {
	switch f {
	case FieldVersion, FieldChecksum:
		return errors.Errorf("code error store WriteField field=%s is managed by store", f.String())
	}
	slot := s.layout.mustSlot(f)
	if len(value) > slot.Size {
		return errors.Errorf("code error store WriteField field=%s len=%d > slot=%d", f.String(), len(value), slot.Size)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, slot.Size)
	copy(buf, value)
	if _, err := s.medium.WriteAt(buf, int64(slot.Offset)); err != nil {
		return errors.Annotatef(err, "store write field=%s", f.String())
	}
	return s.sealCommit()
}

func (s *Store) ReadFlag(f FieldID) bool { return s.ReadField(f)[0] == FlagEnabled }

func (s *Store) WriteFlag(f FieldID, value bool) error {
	b := FlagDisabled
	if value {
		b = FlagEnabled
	}
	return s.WriteField(f, []byte{b})
}

// ReadString returns slot content up to first zero byte.
func (s *Store) ReadString(f FieldID) string {
	b := s.ReadField(f)
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func (s *Store) WriteString(f FieldID, value string) error {
	if limit := s.layout.MaxString(f); len(value) > limit {
		return errors.Errorf("code error store WriteString field=%s len=%d > max=%d", f.String(), len(value), limit)
	}
	return s.WriteField(f, []byte(value))
}

// Checksum computes CRC over current content.
func (s *Store) Checksum() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checksum()
}

func (s *Store) StoredChecksum() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storedChecksum()
}

func (s *Store) Version() byte { return s.ReadField(FieldVersion)[0] }

func (s *Store) Dump() string {
	b := strings.Builder{}
	fmt.Fprintf(&b, "layout=%s size=%d version=%d expected=%d\n", s.layout.Name, s.layout.Size, s.Version(), s.layout.Version)
	fmt.Fprintf(&b, "checksum stored=%08x computed=%08x\n", s.StoredChecksum(), s.Checksum())
	for _, f := range []FieldID{FieldNetworkConfigured, FieldMqttConfigured, FieldMqttServer, FieldOTAPassword} {
		if !s.layout.Has(f) {
			continue
		}
		switch f {
		case FieldMqttServer:
			fmt.Fprintf(&b, "%s=%q\n", f.String(), s.ReadString(f))
		case FieldOTAPassword:
			fmt.Fprintf(&b, "%s=(%d bytes)\n", f.String(), len(s.ReadString(f)))
		default:
			fmt.Fprintf(&b, "%s=%t (%02x)\n", f.String(), s.ReadFlag(f), s.ReadField(f)[0])
		}
	}
	return b.String()
}

func (s *Store) reinitialize() error {
	region := make([]byte, s.layout.Size)
	region[offsetVersion] = s.layout.Version
	if _, err := s.medium.WriteAt(region, 0); err != nil {
		return errors.Annotate(err, "store reinitialize")
	}
	return errors.Annotate(s.sealCommit(), "store reinitialize")
}

func (s *Store) sealCommit() error {
	var b [sizeChecksum]byte
	binary.LittleEndian.PutUint32(b[:], s.checksum())
	if _, err := s.medium.WriteAt(b[:], offsetChecksum); err != nil {
		return errors.Annotate(err, "store write checksum")
	}
	return errors.Annotate(s.medium.Commit(), "store commit")
}

func (s *Store) checksum() uint32 {
	covered := make([]byte, s.layout.Size-offsetCovered)
	if _, err := s.medium.ReadAt(covered, offsetCovered); err != nil {
		// New() guarantees region size, so only broken medium gets here
		s.log.Errorf("store checksum read err=%v", err)
		return 0
	}
	return crc.CRC32(covered)
}

func (s *Store) storedChecksum() uint32 {
	return binary.LittleEndian.Uint32(s.readSlot(FieldChecksum))
}

func (s *Store) readSlot(f FieldID) []byte {
	slot := s.layout.mustSlot(f)
	b := make([]byte, slot.Size)
	if _, err := s.medium.ReadAt(b, int64(slot.Offset)); err != nil {
		s.log.Errorf("store read field=%s err=%v", f.String(), err)
	}
	return b
}
