// Package codec maps raw CAN payloads to and from named signal values.
//
// A Database is the in-memory form of an already-loaded protocol database:
// a set of messages, each a set of scaled bit-packed signals. Parsing of
// on-disk database formats is deliberately not handled here; vehicle
// profiles construct databases from tables.
package codec

import (
	"errors"
	"fmt"
	"math"

	"github.com/kamilk/go-radar-driver/internal/can"
)

// Codec is the capability consumed by the driver: encode a named message,
// decode a payload by arbitration id, and resolve message ids.
type Codec interface {
	Encode(message string, signals map[string]float64) (can.Frame, error)
	Decode(id uint32, data []byte) (map[string]float64, error)
	FrameID(message string) (uint32, bool)
}

// Loader produces a loaded Codec; load failures are fatal to driver start.
type Loader func() (Codec, error)

var (
	ErrUnknownMessage = errors.New("codec: unknown message")
	ErrUnknownSignal  = errors.New("codec: unknown signal")
	ErrOutOfRange     = errors.New("codec: value out of range")
	ErrShortPayload   = errors.New("codec: payload too short")
)

// ByteOrder selects the signal bit layout.
type ByteOrder uint8

const (
	LittleEndian ByteOrder = iota // Intel; Start is the LSB position
	BigEndian                     // Motorola; Start is the MSB position
)

// Signal describes one scaled value packed into a message payload.
// Physical value = raw*Factor + Offset. A zero Factor means 1.
// Min/Max bound the physical value on encode when not both zero.
type Signal struct {
	Name   string
	Start  uint8
	Length uint8
	Order  ByteOrder
	Signed bool
	Factor float64
	Offset float64
	Min    float64
	Max    float64
}

func (s Signal) factor() float64 {
	if s.Factor == 0 {
		return 1
	}
	return s.Factor
}

// Message is a named frame layout.
type Message struct {
	Name    string
	ID      uint32
	Length  uint8
	Signals []Signal
}

// Database holds messages indexed by id and name.
type Database struct {
	byID   map[uint32]*Message
	byName map[string]*Message
}

// NewDatabase validates and indexes the given messages.
func NewDatabase(msgs ...Message) (*Database, error) {
	db := &Database{
		byID:   make(map[uint32]*Message, len(msgs)),
		byName: make(map[string]*Message, len(msgs)),
	}
	for i := range msgs {
		m := msgs[i]
		if m.Name == "" {
			return nil, fmt.Errorf("codec: message 0x%X has no name", m.ID)
		}
		if m.Length == 0 || m.Length > 8 {
			return nil, fmt.Errorf("codec: message %s: invalid length %d", m.Name, m.Length)
		}
		if _, dup := db.byID[m.ID]; dup {
			return nil, fmt.Errorf("codec: duplicate message id 0x%X", m.ID)
		}
		if _, dup := db.byName[m.Name]; dup {
			return nil, fmt.Errorf("codec: duplicate message name %s", m.Name)
		}
		for _, sg := range m.Signals {
			if err := checkSignalBounds(sg, m.Length); err != nil {
				return nil, fmt.Errorf("codec: message %s signal %s: %w", m.Name, sg.Name, err)
			}
		}
		mm := m
		db.byID[m.ID] = &mm
		db.byName[m.Name] = &mm
	}
	return db, nil
}

// MustDatabase is NewDatabase for static tables; panics on invalid input.
func MustDatabase(msgs ...Message) *Database {
	db, err := NewDatabase(msgs...)
	if err != nil {
		panic(err)
	}
	return db
}

func checkSignalBounds(sg Signal, msgLen uint8) error {
	if sg.Length == 0 || sg.Length > 64 {
		return fmt.Errorf("invalid bit length %d", sg.Length)
	}
	bits := int(msgLen) * 8
	switch sg.Order {
	case LittleEndian:
		if int(sg.Start)+int(sg.Length) > bits {
			return fmt.Errorf("signal exceeds %d payload bits", bits)
		}
	case BigEndian:
		pos := int(sg.Start)
		for i := 0; i < int(sg.Length); i++ {
			if pos < 0 || pos >= bits {
				return fmt.Errorf("signal exceeds %d payload bits", bits)
			}
			if pos%8 == 0 {
				pos += 15
			} else {
				pos--
			}
		}
	default:
		return fmt.Errorf("invalid byte order %d", sg.Order)
	}
	return nil
}

// FrameID resolves a message name to its arbitration id.
func (d *Database) FrameID(message string) (uint32, bool) {
	m, ok := d.byName[message]
	if !ok {
		return 0, false
	}
	return m.ID, true
}

// Encode packs the given physical signal values into a frame for the named
// message. Signals absent from the map encode as raw zero; names not defined
// by the message are an error, as are values outside a signal's range.
func (d *Database) Encode(message string, signals map[string]float64) (can.Frame, error) {
	m, ok := d.byName[message]
	if !ok {
		return can.Frame{}, fmt.Errorf("%w: %s", ErrUnknownMessage, message)
	}
	known := make(map[string]struct{}, len(m.Signals))
	var data [8]byte
	for _, sg := range m.Signals {
		known[sg.Name] = struct{}{}
		val, present := signals[sg.Name]
		if !present {
			continue
		}
		raw, err := sg.toRaw(val)
		if err != nil {
			return can.Frame{}, fmt.Errorf("%s.%s: %w", message, sg.Name, err)
		}
		insertBits(data[:m.Length], sg, raw)
	}
	for name := range signals {
		if _, ok := known[name]; !ok {
			return can.Frame{}, fmt.Errorf("%w: %s.%s", ErrUnknownSignal, message, name)
		}
	}
	fr := can.Frame{ID: m.ID, Len: m.Length}
	copy(fr.Data[:], data[:])
	return fr, nil
}

// Decode unpacks a payload for the message registered under the given
// arbitration id into physical signal values.
func (d *Database) Decode(id uint32, data []byte) (map[string]float64, error) {
	m, ok := d.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: id 0x%X", ErrUnknownMessage, id)
	}
	if len(data) < int(m.Length) {
		return nil, fmt.Errorf("%w: %s wants %d bytes, got %d", ErrShortPayload, m.Name, m.Length, len(data))
	}
	out := make(map[string]float64, len(m.Signals))
	for _, sg := range m.Signals {
		raw := extractBits(data[:m.Length], sg)
		var v float64
		if sg.Signed {
			v = float64(signExtend(raw, sg.Length))
		} else {
			v = float64(raw)
		}
		out[sg.Name] = v*sg.factor() + sg.Offset
	}
	return out, nil
}

func (sg Signal) toRaw(val float64) (uint64, error) {
	if sg.Min != 0 || sg.Max != 0 {
		if val < sg.Min || val > sg.Max {
			return 0, fmt.Errorf("%w: %v not in [%v, %v]", ErrOutOfRange, val, sg.Min, sg.Max)
		}
	}
	raw := math.Round((val - sg.Offset) / sg.factor())
	if sg.Signed {
		lo := -(float64(uint64(1) << (sg.Length - 1)))
		hi := -lo - 1
		if raw < lo || raw > hi {
			return 0, fmt.Errorf("%w: raw %v exceeds %d signed bits", ErrOutOfRange, raw, sg.Length)
		}
		return uint64(int64(raw)) & mask(sg.Length), nil
	}
	hi := float64(mask(sg.Length))
	if raw < 0 || raw > hi {
		return 0, fmt.Errorf("%w: raw %v exceeds %d bits", ErrOutOfRange, raw, sg.Length)
	}
	return uint64(raw), nil
}

func mask(length uint8) uint64 {
	if length >= 64 {
		return math.MaxUint64
	}
	return (uint64(1) << length) - 1
}

func signExtend(raw uint64, length uint8) int64 {
	shift := 64 - length
	return int64(raw<<shift) >> shift
}

// extractBits pulls the raw signal value out of the payload. Little-endian
// signals index bits LSB-first across the payload; big-endian (Motorola)
// signals walk MSB-first with the usual sawtooth byte progression.
func extractBits(data []byte, sg Signal) uint64 {
	if sg.Order == LittleEndian {
		var v uint64
		for i := 0; i < len(data); i++ {
			v |= uint64(data[i]) << (8 * i)
		}
		return (v >> sg.Start) & mask(sg.Length)
	}
	var v uint64
	pos := int(sg.Start)
	for i := 0; i < int(sg.Length); i++ {
		bit := (data[pos/8] >> (pos % 8)) & 1
		v = v<<1 | uint64(bit)
		if pos%8 == 0 {
			pos += 15
		} else {
			pos--
		}
	}
	return v
}

func insertBits(data []byte, sg Signal, raw uint64) {
	raw &= mask(sg.Length)
	if sg.Order == LittleEndian {
		pos := int(sg.Start)
		for i := 0; i < int(sg.Length); i++ {
			if raw>>i&1 == 1 {
				data[pos/8] |= 1 << (pos % 8)
			} else {
				data[pos/8] &^= 1 << (pos % 8)
			}
			pos++
		}
		return
	}
	pos := int(sg.Start)
	for i := int(sg.Length) - 1; i >= 0; i-- {
		if raw>>i&1 == 1 {
			data[pos/8] |= 1 << (pos % 8)
		} else {
			data[pos/8] &^= 1 << (pos % 8)
		}
		if pos%8 == 0 {
			pos += 15
		} else {
			pos--
		}
	}
}

var _ Codec = (*Database)(nil)
