package bhash

import (
	"bytes"
	"testing"
)

func TestSum256Deterministic(t *testing.T) {
	a := Sum256([]byte("hello"))
	b := Sum256([]byte("hello"))
	if a != b {
		t.Fatalf("Sum256 not deterministic: %s != %s", a, b)
	}
	c := Sum256([]byte("world"))
	if a == c {
		t.Fatalf("Sum256 collided on distinct inputs")
	}
}

func TestFromBytesRoundtrip(t *testing.T) {
	h := Sum256([]byte("payload"))
	got := FromBytes(h.Bytes())
	if got != h {
		t.Fatalf("FromBytes(h.Bytes()) = %s, want %s", got, h)
	}
}

func TestFromBytesPads(t *testing.T) {
	h := FromBytes([]byte{1, 2, 3})
	if !bytes.Equal(h[:3], []byte{1, 2, 3}) {
		t.Fatalf("FromBytes didn't copy short input")
	}
	for _, b := range h[3:] {
		if b != 0 {
			t.Fatalf("FromBytes left nonzero padding: %v", h)
		}
	}
}

func TestIsZero(t *testing.T) {
	var z Hash
	if !z.IsZero() {
		t.Fatalf("zero-value Hash reports non-zero")
	}
	if Zero != z {
		t.Fatalf("Zero constant is not the zero value")
	}
	nz := Sum256([]byte("x"))
	if nz.IsZero() {
		t.Fatalf("non-zero hash reports zero")
	}
}

func TestMarshalTextRoundtrip(t *testing.T) {
	h := Sum256([]byte("roundtrip"))
	text, err := h.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %s", err)
	}
	var got Hash
	if err := got.UnmarshalText(text); err != nil {
		t.Fatalf("UnmarshalText: %s", err)
	}
	if got != h {
		t.Fatalf("roundtrip mismatch: got %s, want %s", got, h)
	}
}

func TestUnmarshalTextBadLength(t *testing.T) {
	var h Hash
	if err := h.UnmarshalText([]byte("not-a-hash")); err == nil {
		t.Fatalf("expected an error for a malformed hex string")
	}
}

func TestValueAndScanRoundtrip(t *testing.T) {
	h := Sum256([]byte("sql-roundtrip"))
	v, err := h.Value()
	if err != nil {
		t.Fatalf("Value: %s", err)
	}
	b, ok := v.([]byte)
	if !ok {
		t.Fatalf("Value returned %T, want []byte", v)
	}
	var got Hash
	if err := got.Scan(b); err != nil {
		t.Fatalf("Scan: %s", err)
	}
	if got != h {
		t.Fatalf("scan roundtrip mismatch: got %s, want %s", got, h)
	}
}

func TestScanRejectsBadLength(t *testing.T) {
	var h Hash
	if err := h.Scan([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected an error scanning a short byte slice")
	}
	if err := h.Scan("not bytes"); err == nil {
		t.Fatalf("expected an error scanning a non-[]byte value")
	}
}
