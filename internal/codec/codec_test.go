package codec

import (
	"errors"
	"math"
	"testing"
)

func testDB(t *testing.T) *Database {
	t.Helper()
	db, err := NewDatabase(Message{
		Name: "TRACK", ID: 0x210, Length: 8,
		Signals: []Signal{
			{Name: "LONG_DIST", Start: 7, Length: 13, Order: BigEndian, Factor: 0.05},
			{Name: "LAT_DIST", Start: 10, Length: 11, Order: BigEndian, Signed: true, Factor: 0.04},
			{Name: "REL_SPEED", Start: 31, Length: 12, Order: BigEndian, Signed: true, Factor: 0.025},
			{Name: "VALID", Start: 34, Length: 1, Order: BigEndian},
		},
	}, Message{
		Name: "CTRL", ID: 0x343, Length: 8,
		Signals: []Signal{
			{Name: "CMD", Start: 4, Length: 8, Order: LittleEndian, Min: 0, Max: 200},
		},
	})
	if err != nil {
		t.Fatalf("NewDatabase: %v", err)
	}
	return db
}

// Pins the Motorola bit layout: LONG_DIST raw 200 occupies byte0 and the top
// five bits of byte1.
func TestDecodeBigEndianLayout(t *testing.T) {
	db := testDB(t)
	data := []byte{0x06, 0x40, 0x00, 0x00, 0x04, 0x00, 0x00, 0x00}
	sigs, err := db.Decode(0x210, data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := sigs["LONG_DIST"]; math.Abs(got-10.0) > 1e-9 {
		t.Fatalf("LONG_DIST: got %v want 10.0", got)
	}
	if got := sigs["VALID"]; got != 1 {
		t.Fatalf("VALID: got %v want 1", got)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	db := testDB(t)
	in := map[string]float64{
		"LONG_DIST": 42.5,
		"LAT_DIST":  -3.2,
		"REL_SPEED": -2.5,
		"VALID":     1,
	}
	fr, err := db.Encode("TRACK", in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if fr.ID != 0x210 || fr.Len != 8 {
		t.Fatalf("frame header: id=0x%X len=%d", fr.ID, fr.Len)
	}
	out, err := db.Decode(0x210, fr.Payload())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for name, want := range in {
		if got := out[name]; math.Abs(got-want) > 0.05 {
			t.Fatalf("%s: got %v want %v", name, got, want)
		}
	}
}

func TestDecodeLittleEndian(t *testing.T) {
	db := testDB(t)
	// CMD is bits 4..11 LSB-first: raw 0xAB straddles bytes 0 and 1.
	data := []byte{0xB0, 0x0A, 0, 0, 0, 0, 0, 0}
	sigs, err := db.Decode(0x343, data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := sigs["CMD"]; got != 0xAB {
		t.Fatalf("CMD: got %v want %d", got, 0xAB)
	}
}

func TestEncodeUnknownSignal(t *testing.T) {
	db := testDB(t)
	_, err := db.Encode("TRACK", map[string]float64{"BOGUS": 1})
	if !errors.Is(err, ErrUnknownSignal) {
		t.Fatalf("expected ErrUnknownSignal, got %v", err)
	}
}

func TestEncodeUnknownMessage(t *testing.T) {
	db := testDB(t)
	if _, err := db.Encode("NOPE", nil); !errors.Is(err, ErrUnknownMessage) {
		t.Fatalf("expected ErrUnknownMessage, got %v", err)
	}
}

func TestEncodeOutOfRange(t *testing.T) {
	db := testDB(t)
	if _, err := db.Encode("CTRL", map[string]float64{"CMD": 500}); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	// Raw overflow without explicit bounds: VALID is one bit.
	if _, err := db.Encode("TRACK", map[string]float64{"VALID": 2}); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange for raw overflow, got %v", err)
	}
}

func TestDecodeUnknownIDAndShortPayload(t *testing.T) {
	db := testDB(t)
	if _, err := db.Decode(0x999, make([]byte, 8)); !errors.Is(err, ErrUnknownMessage) {
		t.Fatalf("expected ErrUnknownMessage, got %v", err)
	}
	if _, err := db.Decode(0x210, make([]byte, 3)); !errors.Is(err, ErrShortPayload) {
		t.Fatalf("expected ErrShortPayload, got %v", err)
	}
}

func TestFrameID(t *testing.T) {
	db := testDB(t)
	id, ok := db.FrameID("CTRL")
	if !ok || id != 0x343 {
		t.Fatalf("FrameID: got 0x%X ok=%v", id, ok)
	}
	if _, ok := db.FrameID("NOPE"); ok {
		t.Fatalf("FrameID should miss unknown messages")
	}
}

func TestNewDatabaseRejectsBadLayout(t *testing.T) {
	// Signal walking off the end of the payload.
	_, err := NewDatabase(Message{
		Name: "BAD", ID: 1, Length: 2,
		Signals: []Signal{{Name: "X", Start: 7, Length: 20, Order: BigEndian}},
	})
	if err == nil {
		t.Fatalf("expected bounds error")
	}
	// Duplicate id.
	_, err = NewDatabase(
		Message{Name: "A", ID: 1, Length: 1},
		Message{Name: "B", ID: 1, Length: 1},
	)
	if err == nil {
		t.Fatalf("expected duplicate id error")
	}
}
