package settings

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/ambience-earth/ambience/internal/region"
)

// Version is the configuration block format version.
const Version = 1

const headerSize = 4 // checksum, version, payload length (2)

var (
	// ErrChecksum reports a block whose checksum does not match its bytes.
	ErrChecksum = errors.New("settings: checksum mismatch")
	// ErrVersion reports a block written by another format version.
	ErrVersion = errors.New("settings: version mismatch")
	// ErrTooLarge reports a configuration that does not fit its region.
	ErrTooLarge = errors.New("settings: configuration does not fit region")
)

// Store loads and saves the configuration block in a region.
type Store struct {
	mu       sync.Mutex
	region   region.Region
	cfg      Config
	restored error
}

// Open loads the configuration from r. A block that fails verification is
// replaced by Defaults and re-persisted; Restored reports why. Open only
// fails when the defaults cannot be written.
func Open(r region.Region) (*Store, error) {
	s := &Store{region: r}
	cfg, err := s.load()
	if err == nil {
		s.cfg = cfg
		return s, nil
	}

	s.restored = err
	s.cfg = Defaults()
	if err := s.save(); err != nil {
		return nil, fmt.Errorf("could not persist default settings: %w", err)
	}
	return s, nil
}

// Restored returns the reason defaults were restored by Open, or nil when
// the stored block was valid.
func (s *Store) Restored() error {
	return s.restored
}

// Config returns a copy of the current configuration.
func (s *Store) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Update applies fn to the configuration and saves it. The in-memory copy is
// only replaced when the save succeeds.
func (s *Store) Update(fn func(*Config)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.cfg
	fn(&next)
	prev := s.cfg
	s.cfg = next
	if err := s.save(); err != nil {
		s.cfg = prev
		return err
	}
	return nil
}

// Reset restores Defaults and saves them.
func (s *Store) Reset() error {
	return s.Update(func(c *Config) { *c = Defaults() })
}

func checksum(block []byte) uint8 {
	h := fnv.New64a()
	h.Write(block[1:])
	return uint8(h.Sum64())
}

func (s *Store) load() (Config, error) {
	var hdr [headerSize]byte
	if _, err := s.region.ReadAt(hdr[:], 0); err != nil {
		return Config{}, fmt.Errorf("could not read settings header: %w", err)
	}
	if hdr[1] != Version {
		return Config{}, fmt.Errorf("%w: stored %d, expected %d", ErrVersion, hdr[1], Version)
	}
	n := int64(binary.LittleEndian.Uint16(hdr[2:4]))
	if headerSize+n > s.region.Size() {
		return Config{}, fmt.Errorf("%w: payload length %d", ErrChecksum, n)
	}

	block := make([]byte, headerSize+n)
	if _, err := s.region.ReadAt(block, 0); err != nil {
		return Config{}, fmt.Errorf("could not read settings block: %w", err)
	}
	if checksum(block) != block[0] {
		return Config{}, ErrChecksum
	}

	var cfg Config
	if err := msgpack.Unmarshal(block[headerSize:], &cfg); err != nil {
		return Config{}, fmt.Errorf("could not decode settings: %w", err)
	}
	return cfg, nil
}

func (s *Store) save() error {
	payload, err := msgpack.Marshal(&s.cfg)
	if err != nil {
		return fmt.Errorf("could not encode settings: %w", err)
	}
	if int64(headerSize+len(payload)) > s.region.Size() || len(payload) > 0xFFFF {
		return ErrTooLarge
	}

	block := make([]byte, headerSize+len(payload))
	block[1] = Version
	binary.LittleEndian.PutUint16(block[2:4], uint16(len(payload)))
	copy(block[headerSize:], payload)
	block[0] = checksum(block)

	if _, err := s.region.WriteAt(block, 0); err != nil {
		return fmt.Errorf("could not write settings: %w", err)
	}
	return nil
}
