package eventlog

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ambience-earth/ambience/internal/region"
	"github.com/ambience-earth/ambience/internal/rtc"
)

// FormatVersion is the on-disk layout version. A store written with any
// other version is wiped on Init.
const FormatVersion = 3

const (
	metaSize       = 3 // epoch (2) + version (1)
	versionOffset  = 2
	headRecordSize = 4
	ringDivisor    = 20
	maxSlots       = 0xFFFE
)

// ErrNoSlots is returned when the region cannot hold a single record.
var ErrNoSlots = errors.New("eventlog: region too small for any log slot")

// ErrBadSlot is returned for slot indexes outside the store.
var ErrBadSlot = errors.New("eventlog: slot index out of range")

// Layout sizes the head ring and the slot area.
type Layout struct {
	RingRecords int
	Slots       int
}

// DefaultLayout reserves about 5% of the log area for the head ring, rounded
// down to whole ring records with a minimum of one, and fills the rest with
// slots.
func DefaultLayout(size int64) (Layout, error) {
	area := size - metaSize
	if area <= 0 {
		return Layout{}, ErrNoSlots
	}
	ring := area / ringDivisor
	ring &^= headRecordSize - 1
	if ring < headRecordSize {
		ring = headRecordSize
	}
	slots := (area - ring) / EntrySize
	if slots <= 0 {
		return Layout{}, ErrNoSlots
	}
	if slots > maxSlots {
		slots = maxSlots
	}
	return Layout{RingRecords: int(ring / headRecordSize), Slots: int(slots)}, nil
}

// Bytes returns the region size the layout occupies.
func (l Layout) Bytes() int64 {
	return metaSize + int64(l.RingRecords)*headRecordSize + int64(l.Slots)*EntrySize
}

func (l Layout) slotsOffset() int64 {
	return metaSize + int64(l.RingRecords)*headRecordSize
}

// Store is the circular event log. It has a single writer; callers serialise
// access.
type Store struct {
	region   region.Region
	layout   Layout
	lightsOn uint16

	epoch      uint16
	ringHead   int
	latestSlot int
	latest     Entry

	cursor cursor
}

type cursor struct {
	slot  int
	entry Entry
	epoch uint16
}

// Open sizes a store for r with DefaultLayout and initialises it.
func Open(r region.Region) (*Store, error) {
	layout, err := DefaultLayout(r.Size())
	if err != nil {
		return nil, err
	}
	return OpenWithLayout(r, layout)
}

// OpenWithLayout initialises a store with an explicit layout.
func OpenWithLayout(r region.Region, layout Layout) (*Store, error) {
	if layout.Slots <= 0 || layout.RingRecords <= 0 || layout.Slots > maxSlots {
		return nil, ErrNoSlots
	}
	if layout.Bytes() > r.Size() {
		return nil, fmt.Errorf("eventlog: layout needs %d bytes, region has %d", layout.Bytes(), r.Size())
	}
	s := &Store{region: r, layout: layout}
	if err := s.Init(); err != nil {
		return nil, err
	}
	return s, nil
}

// Layout returns the store's layout.
func (s *Store) Layout() Layout {
	return s.layout
}

// SetLightsOn sets the lights-on minute used to stamp light-day keys.
func (s *Store) SetLightsOn(minutes uint16) {
	s.lightsOn = minutes
}

// Epoch returns the persisted wrap counter.
func (s *Store) Epoch() uint16 {
	return s.epoch
}

// Init loads the store state from the region. A format version mismatch
// wipes the region. Otherwise the head ring is scanned for the newest
// record; the store is empty if none is found.
func (s *Store) Init() error {
	s.reset()

	var meta [metaSize]byte
	if _, err := s.region.ReadAt(meta[:], 0); err != nil {
		return fmt.Errorf("could not read log metadata: %w", err)
	}
	if meta[versionOffset] != FormatVersion {
		return s.Wipe()
	}
	s.epoch = binary.LittleEndian.Uint16(meta[0:2])

	s.findLatestFromHead()
	s.GotoLatest()
	return nil
}

func (s *Store) reset() {
	s.epoch = 0
	s.ringHead = -1
	s.latestSlot = -1
	s.latest = Entry{}
	s.cursor = cursor{slot: -1}
}

func (s *Store) findLatestFromHead() {
	var best uint16
	bestSlot := -1
	for i := 0; i < s.layout.RingRecords; i++ {
		seq, slot, ok := s.readHeadRecord(i)
		if !ok || seq == 0 || slot >= s.layout.Slots {
			continue
		}
		if bestSlot < 0 || IsLater(seq, best) {
			best = seq
			bestSlot = slot
			s.ringHead = i
		}
	}
	if bestSlot < 0 {
		return
	}

	e := s.readSlot(bestSlot)
	if e.Seq != best {
		// The ring points at a slot that no longer holds its record.
		s.scanAllSlots()
		return
	}
	s.latestSlot = bestSlot
	s.latest = e

	// A record written just before power loss may be missing its ring entry.
	next := s.nextSlot(bestSlot)
	want, _ := nextSeq(best)
	if n := s.readSlot(next); n.Seq == want {
		s.latestSlot = next
		s.latest = n
	}
}

// scanAllSlots finds the newest record by reading every slot. Used only when
// the head ring is inconsistent with the slots.
func (s *Store) scanAllSlots() {
	for i := 0; i < s.layout.Slots; i++ {
		e := s.readSlot(i)
		if e.Empty() {
			continue
		}
		if s.latestSlot < 0 || IsLater(e.Seq, s.latest.Seq) {
			s.latestSlot = i
			s.latest = e
		}
	}
}

func (s *Store) readHeadRecord(i int) (seq uint16, slot int, ok bool) {
	var rec [headRecordSize]byte
	off := int64(metaSize + i*headRecordSize)
	if _, err := s.region.ReadAt(rec[:], off); err != nil {
		return 0, 0, false
	}
	return binary.LittleEndian.Uint16(rec[0:2]), int(binary.LittleEndian.Uint16(rec[2:4])), true
}

func (s *Store) writeHeadRecord(seq uint16, slot int) error {
	s.ringHead++
	if s.ringHead >= s.layout.RingRecords {
		s.ringHead = 0
	}
	var rec [headRecordSize]byte
	binary.LittleEndian.PutUint16(rec[0:2], seq)
	binary.LittleEndian.PutUint16(rec[2:4], uint16(slot))
	_, err := s.region.WriteAt(rec[:], int64(metaSize+s.ringHead*headRecordSize))
	return err
}

func (s *Store) slotOffset(slot int) int64 {
	return s.layout.slotsOffset() + int64(slot)*EntrySize
}

// readSlot returns the record at slot. Read failures yield an empty entry.
func (s *Store) readSlot(slot int) Entry {
	if slot < 0 || slot >= s.layout.Slots {
		return Entry{}
	}
	var rec [EntrySize]byte
	if _, err := s.region.ReadAt(rec[:], s.slotOffset(slot)); err != nil {
		return Entry{}
	}
	return Decode(rec[:])
}

func (s *Store) nextSlot(slot int) int {
	slot++
	if slot >= s.layout.Slots {
		return 0
	}
	return slot
}

func (s *Store) prevSlot(slot int) int {
	if slot <= 0 {
		return s.layout.Slots - 1
	}
	return slot - 1
}

func (s *Store) writeEpoch() error {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], s.epoch)
	_, err := s.region.WriteAt(b[:], 0)
	return err
}

// Append assigns the next sequence number, stamps the light-day key and
// writes e into the slot after the newest record, overwriting the oldest
// record once the store is full. It returns the entry as written. An entry
// without a usable date takes the light-day key of the newest record, so
// keys never step back.
func (s *Store) Append(e Entry) (Entry, error) {
	seq, wrapped := nextSeq(s.latest.Seq)
	slot := 0
	if s.latestSlot >= 0 {
		slot = s.nextSlot(s.latestSlot)
	}

	e.Seq = seq
	if d := e.stampDate(); d.Valid() {
		e.LightDayKey = rtc.LightDayKey(d, s.lightsOn)
	} else {
		e.LightDayKey = s.latest.LightDayKey
	}

	rec := Encode(e)
	if _, err := s.region.WriteAt(rec[:], s.slotOffset(slot)); err != nil {
		return Entry{}, fmt.Errorf("could not write log slot %d: %w", slot, err)
	}

	var errs []error
	if wrapped {
		s.epoch++
		if err := s.writeEpoch(); err != nil {
			errs = append(errs, fmt.Errorf("could not persist epoch: %w", err))
		}
	}
	if err := s.writeHeadRecord(seq, slot); err != nil {
		errs = append(errs, fmt.Errorf("could not write head record: %w", err))
	}

	s.latestSlot = slot
	s.latest = e
	s.GotoLatest()
	return e, errors.Join(errs...)
}

// Latest returns the newest record. ok is false when the store is empty.
func (s *Store) Latest() (e Entry, ok bool) {
	return s.latest, !s.latest.Empty()
}

// LatestSlot returns the slot of the newest record, or -1.
func (s *Store) LatestSlot() int {
	return s.latestSlot
}

// Wipe clears every slot and the head ring, resets the epoch and rewrites
// the format version.
func (s *Store) Wipe() error {
	s.reset()

	zeros := make([]byte, 512)
	off := int64(metaSize)
	end := s.layout.Bytes()
	for off < end {
		n := int64(len(zeros))
		if end-off < n {
			n = end - off
		}
		if _, err := s.region.WriteAt(zeros[:n], off); err != nil {
			return fmt.Errorf("could not clear log region at %d: %w", off, err)
		}
		off += n
	}

	meta := [metaSize]byte{0, 0, FormatVersion}
	if _, err := s.region.WriteAt(meta[:], 0); err != nil {
		return fmt.Errorf("could not write log metadata: %w", err)
	}
	return nil
}

// PatchBaseline rewrites the baseline percent of the record at slot. Only
// that byte is written.
func (s *Store) PatchBaseline(slot int, percent uint8) error {
	if slot < 0 || slot >= s.layout.Slots {
		return ErrBadSlot
	}
	if s.readSlot(slot).Empty() {
		return fmt.Errorf("eventlog: slot %d is empty", slot)
	}
	if _, err := s.region.WriteAt([]byte{percent}, s.slotOffset(slot)+baselineOffset); err != nil {
		return fmt.Errorf("could not patch baseline in slot %d: %w", slot, err)
	}
	if slot == s.latestSlot {
		s.latest.BaselinePercent = percent
	}
	if slot == s.cursor.slot {
		s.cursor.entry.BaselinePercent = percent
	}
	return nil
}
