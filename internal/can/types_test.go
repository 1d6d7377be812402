package can

import "testing"

func TestArbitrationIDStripsFlags(t *testing.T) {
	fr := Frame{ID: 0x21F | EFFFlag}
	if got := fr.ArbitrationID(); got != 0x21F {
		t.Fatalf("extended id: got 0x%X", got)
	}
	fr = Frame{ID: 0x343}
	if got := fr.ArbitrationID(); got != 0x343 {
		t.Fatalf("standard id: got 0x%X", got)
	}
}

func TestNewTruncatesPayload(t *testing.T) {
	fr := New(0x4CB, make([]byte, 12))
	if fr.Len != 8 {
		t.Fatalf("expected len 8, got %d", fr.Len)
	}
}

func TestIDRange(t *testing.T) {
	r := IDRange{First: 0x210, Last: 0x21F}
	if !r.Contains(0x210) || !r.Contains(0x21F) {
		t.Fatalf("window endpoints must be inclusive")
	}
	if r.Contains(0x20F) || r.Contains(0x220) {
		t.Fatalf("window must exclude neighbors")
	}
	if r.Width() != 16 {
		t.Fatalf("expected width 16, got %d", r.Width())
	}
}
