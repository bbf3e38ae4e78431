package fast

import (
	"bytes"
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestAppendUint(t *testing.T) {
	tests := []struct {
		in   uint64
		want []byte
	}{
		{0, []byte{0x80}},
		{1, []byte{0x81}},
		{127, []byte{0xff}},
		{128, []byte{0x01, 0x80}},
		{942755, []byte{0x39, 0x45, 0xa3}},
	}
	for _, tt := range tests {
		if got := AppendUint(nil, tt.in); !bytes.Equal(got, tt.want) {
			t.Errorf("AppendUint(%d) = %x, want %x", tt.in, got, tt.want)
		}
	}
}

func TestAppendInt(t *testing.T) {
	tests := []struct {
		in   int64
		want []byte
	}{
		{0, []byte{0x80}},
		{-1, []byte{0xff}},
		{63, []byte{0xbf}},
		{64, []byte{0x00, 0xc0}},
		{-64, []byte{0xc0}},
		{-65, []byte{0x7f, 0xbf}},
		{8193, []byte{0x00, 0x40, 0x81}},
		{-8193, []byte{0x7f, 0x3f, 0xff}},
		{942755, []byte{0x39, 0x45, 0xa3}},
		{-942755, []byte{0x46, 0x3a, 0xdd}},
	}
	for _, tt := range tests {
		if got := AppendInt(nil, tt.in); !bytes.Equal(got, tt.want) {
			t.Errorf("AppendInt(%d) = %x, want %x", tt.in, got, tt.want)
		}
	}
}

func TestNullableEncodings(t *testing.T) {
	got, _ := AppendNullableUint(nil, 0, true)
	if !bytes.Equal(got, []byte{0x80}) {
		t.Errorf("null uint = %x, want 80", got)
	}
	got, _ = AppendNullableUint(nil, 0, false)
	if !bytes.Equal(got, []byte{0x81}) {
		t.Errorf("nullable uint 0 = %x, want 81", got)
	}
	got, _ = AppendNullableInt(nil, -1, false)
	if !bytes.Equal(got, []byte{0xff}) {
		t.Errorf("nullable int -1 = %x, want ff", got)
	}

	r := &reader{buf: []byte{0x80, 0x81, 0xff}}
	if _, null, err := r.nullableUint(); err != nil || !null {
		t.Errorf("nullableUint() null = %v, %v", null, err)
	}
	if v, null, err := r.nullableUint(); err != nil || null || v != 0 {
		t.Errorf("nullableUint() = %d, %v, %v, want 0", v, null, err)
	}
	if v, null, err := r.nullableInt(); err != nil || null || v != -1 {
		t.Errorf("nullableInt() = %d, %v, %v, want -1", v, null, err)
	}
}

func TestASCII(t *testing.T) {
	got, err := AppendASCII(nil, "ABC", false, false)
	if err != nil || !bytes.Equal(got, []byte{0x41, 0x42, 0xc3}) {
		t.Errorf("AppendASCII(ABC) = %x, %v", got, err)
	}
	got, _ = AppendASCII(nil, "", true, false)
	if !bytes.Equal(got, []byte{0x00, 0x80}) {
		t.Errorf("nullable empty = %x, want 0080", got)
	}
	if _, err := AppendASCII(nil, "caf\xc3\xa9", false, false); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("AppendASCII(non-ascii) error = %v, want ErrInvalidValue", err)
	}

	r := &reader{buf: []byte{0x80, 0x00, 0x80, 0x80, 0x41, 0xc2}}
	if s, null, err := r.ascii(true); err != nil || !null {
		t.Errorf("ascii(nullable) = %q, %v, %v, want null", s, null, err)
	}
	if s, null, err := r.ascii(true); err != nil || null || s != "" {
		t.Errorf("ascii(nullable) = %q, %v, %v, want empty", s, null, err)
	}
	if s, null, err := r.ascii(false); err != nil || null || s != "" {
		t.Errorf("ascii() = %q, %v, %v, want empty", s, null, err)
	}
	if s, _, err := r.ascii(false); err != nil || s != "AB" {
		t.Errorf("ascii() = %q, %v, want AB", s, err)
	}
}

func TestReader_Errors(t *testing.T) {
	r := &reader{buf: []byte{0x01, 0x02}}
	if _, err := r.uint(); !errors.Is(err, ErrTruncated) {
		t.Errorf("uint() error = %v, want ErrTruncated", err)
	}

	long := append(bytes.Repeat([]byte{0x7f}, 10), 0xff)
	r = &reader{buf: long}
	if _, err := r.uint(); !errors.Is(err, ErrOverflow) {
		t.Errorf("uint() error = %v, want ErrOverflow", err)
	}

	r = &reader{buf: []byte{0x05, 0x01}}
	if _, _, err := r.bytes(false); !errors.Is(err, ErrTruncated) {
		t.Errorf("bytes() error = %v, want ErrTruncated", err)
	}
}

func TestPMap(t *testing.T) {
	var w pmapWriter
	for _, b := range []bool{true, false, true, false, false, false, false, true} {
		w.set(b)
	}
	got := w.appendTo(nil)
	want := []byte{0xa0, 0x81}
	if !bytes.Equal(got, want) {
		t.Fatalf("appendTo() = %x, want %x", got, want)
	}

	var trailing pmapWriter
	for i := 0; i < 10; i++ {
		trailing.set(i == 0)
	}
	if got := trailing.appendTo(nil); !bytes.Equal(got, []byte{0x81}) {
		t.Errorf("trailing clear bits not truncated: %x", got)
	}

	pm, err := readPMap(&reader{buf: want})
	if err != nil {
		t.Fatalf("readPMap() error = %v", err)
	}
	var bits []bool
	for i := 0; i < 16; i++ {
		bits = append(bits, pm.next())
	}
	for i, b := range []bool{true, false, true, false, false, false, false, true} {
		if bits[i] != b {
			t.Errorf("bit %d = %v, want %v", i, bits[i], b)
		}
	}
	for i := 8; i < 16; i++ {
		if bits[i] {
			t.Errorf("bit %d beyond map = true, want false", i)
		}
	}

	if _, err := readPMap(&reader{buf: []byte{0x80, 0x02}}); !errors.Is(err, ErrPresenceMapTruncated) {
		t.Errorf("readPMap(no stop bit) error = %v, want ErrPresenceMapTruncated", err)
	}
}

func TestProperty_IntegerRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("signed stop-bit round trip", prop.ForAll(
		func(v int64) bool {
			r := &reader{buf: AppendInt(nil, v)}
			got, err := r.int()
			return err == nil && got == v && r.remaining() == 0
		},
		gen.Int64(),
	))

	properties.Property("unsigned stop-bit round trip", prop.ForAll(
		func(v uint64) bool {
			r := &reader{buf: AppendUint(nil, v)}
			got, err := r.uint()
			return err == nil && got == v && r.remaining() == 0
		},
		gen.UInt64(),
	))

	properties.Property("string delta round trip", prop.ForAll(
		func(base, v string) bool {
			sub, diff := stringDelta(base, v)
			got, err := applyStringDelta(base, sub, diff)
			return err == nil && got == v
		},
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
