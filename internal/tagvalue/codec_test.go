package tagvalue

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/solatis/fixengine/internal/dictionary"
	"github.com/solatis/fixengine/internal/message"
)

const sendingTime = "20240102-10:11:12.000"

func soh(s string) []byte {
	return []byte(strings.ReplaceAll(s, "|", "\x01"))
}

// frameMsg wraps body fields (starting at 35) with BeginString, BodyLength
// and a correct CheckSum.
func frameMsg(body string) []byte {
	b := soh(body)
	out := []byte(fmt.Sprintf("8=FIX.4.4\x019=%d\x01", len(b)))
	out = append(out, b...)
	return append(out, []byte("10="+FormatChecksum(Checksum(out))+"\x01")...)
}

func newLogon() *message.Message {
	m := &message.Message{}
	m.Header.Set(8, "FIX.4.4")
	m.Header.Set(35, "A")
	m.Header.Set(49, "CLIENT")
	m.Header.Set(56, "SERVER")
	m.Header.Set(34, "1")
	m.Header.Set(52, sendingTime)
	m.Body.Set(98, "0")
	m.Body.Set(108, "30")
	return m
}

func codec() (*Encoder, *Decoder) {
	d := dictionary.FIX44()
	return NewEncoder(d, DefaultConfig()), NewDecoder(d, DefaultConfig())
}

func TestEncode_LogonExample(t *testing.T) {
	enc, _ := codec()
	out, err := enc.Encode(newLogon())
	if err != nil {
		t.Fatalf("Encode() error = %v, want nil", err)
	}
	want := soh("8=FIX.4.4|9=67|35=A|49=CLIENT|56=SERVER|34=1|52=20240102-10:11:12.000|98=0|108=30|10=122|")
	if !bytes.Equal(out, want) {
		t.Errorf("Encode() =\n%q\nwant\n%q", out, want)
	}
}

func TestEncode_DataFieldGetsLength(t *testing.T) {
	enc, dec := codec()
	m := newLogon()
	m.Body.Set(96, "a\x01b")

	out, err := enc.Encode(m)
	if err != nil {
		t.Fatalf("Encode() error = %v, want nil", err)
	}
	want := soh("8=FIX.4.4|9=79|35=A|49=CLIENT|56=SERVER|34=1|52=20240102-10:11:12.000|98=0|108=30|95=3|96=a|b|10=205|")
	if !bytes.Equal(out, want) {
		t.Fatalf("Encode() =\n%q\nwant\n%q", out, want)
	}

	got, n, err := dec.Decode(out)
	if err != nil {
		t.Fatalf("Decode() error = %v, want nil", err)
	}
	if n != len(out) {
		t.Errorf("Decode() n = %d, want %d", n, len(out))
	}
	if v, _ := got.Body.Get(96); v != "a\x01b" {
		t.Errorf("RawData = %q, want %q", v, "a\x01b")
	}
}

func TestDecode_Logon(t *testing.T) {
	enc, dec := codec()
	want := newLogon()
	out, err := enc.Encode(want)
	if err != nil {
		t.Fatalf("Encode() error = %v, want nil", err)
	}

	got, n, err := dec.Decode(out)
	if err != nil {
		t.Fatalf("Decode() error = %v, want nil", err)
	}
	if n != len(out) {
		t.Errorf("Decode() n = %d, want %d", n, len(out))
	}
	if !got.Equal(want) {
		t.Errorf("Decode() = %s, want %s", got, want)
	}
	if got.Header.Has(9) || got.Trailer.Has(10) {
		t.Errorf("decoded message stores derived fields: %s", got)
	}
}

func TestDecode_TrailingBytesLeftForNextCall(t *testing.T) {
	_, dec := codec()
	first := frameMsg("35=0|49=C|56=S|34=1|52=" + sendingTime + "|")
	second := frameMsg("35=0|49=C|56=S|34=2|52=" + sendingTime + "|")
	buf := append(append([]byte{}, first...), second...)

	m, n, err := dec.Decode(buf)
	if err != nil {
		t.Fatalf("Decode() error = %v, want nil", err)
	}
	if n != len(first) {
		t.Fatalf("Decode() n = %d, want %d", n, len(first))
	}
	if seq, _ := m.SeqNum(); seq != 1 {
		t.Errorf("first SeqNum() = %d, want 1", seq)
	}
	m, _, err = dec.Decode(buf[n:])
	if err != nil {
		t.Fatalf("Decode() second error = %v, want nil", err)
	}
	if seq, _ := m.SeqNum(); seq != 2 {
		t.Errorf("second SeqNum() = %d, want 2", seq)
	}
}

func TestDecode_Incomplete(t *testing.T) {
	_, dec := codec()
	full := frameMsg("35=0|49=C|56=S|34=1|52=" + sendingTime + "|")
	for i := 0; i < len(full); i++ {
		_, n, err := dec.Decode(full[:i])
		if !errors.Is(err, ErrIncomplete) {
			t.Fatalf("Decode(prefix %d) error = %v, want ErrIncomplete", i, err)
		}
		if n != 0 {
			t.Fatalf("Decode(prefix %d) n = %d, want 0", i, n)
		}
	}
}

func TestDecode_RepeatingGroups(t *testing.T) {
	_, dec := codec()
	buf := frameMsg("35=W|49=C|56=S|34=4|52=" + sendingTime +
		"|55=EUR/USD|268=2|269=0|270=1.1|271=1000|269=1|270=1.2|271=500|")

	m, _, err := dec.Decode(buf)
	if err != nil {
		t.Fatalf("Decode() error = %v, want nil", err)
	}
	entries, ok := m.Body.Group(268)
	if !ok || len(entries) != 2 {
		t.Fatalf("Group(268) = %v, %v, want 2 entries", entries, ok)
	}
	if px, _ := entries[1].Get(270); px != "1.2" {
		t.Errorf("entry[1] MDEntryPx = %q, want 1.2", px)
	}
}

func TestDecode_NestedGroups(t *testing.T) {
	enc, dec := codec()
	buf := frameMsg("35=D|49=C|56=S|34=5|52=" + sendingTime +
		"|11=ord-1|453=1|448=P1|447=D|452=3|802=2|523=a|803=1|523=b|803=2" +
		"|55=IBM|54=1|60=" + sendingTime + "|38=100|40=1|")

	m, _, err := dec.Decode(buf)
	if err != nil {
		t.Fatalf("Decode() error = %v, want nil", err)
	}
	parties, _ := m.Body.Group(453)
	if len(parties) != 1 {
		t.Fatalf("len(parties) = %d, want 1", len(parties))
	}
	subs, ok := parties[0].Group(802)
	if !ok || len(subs) != 2 {
		t.Fatalf("Group(802) = %v, %v, want 2 entries", subs, ok)
	}
	if v, _ := subs[1].Get(523); v != "b" {
		t.Errorf("sub[1] PartySubID = %q, want b", v)
	}

	out, err := enc.Encode(m)
	if err != nil {
		t.Fatalf("Encode() error = %v, want nil", err)
	}
	if !bytes.Equal(out, buf) {
		t.Errorf("re-encode =\n%q\nwant\n%q", out, buf)
	}
}

func TestDecode_UnknownTopLevelTagPreserved(t *testing.T) {
	_, dec := codec()
	buf := frameMsg("35=A|49=C|56=S|34=1|52=" + sendingTime + "|98=0|108=30|5000=hello|")
	m, _, err := dec.Decode(buf)
	if err != nil {
		t.Fatalf("Decode() error = %v, want nil", err)
	}
	if v, ok := m.Body.Get(5000); !ok || v != "hello" {
		t.Errorf("Body.Get(5000) = %q, %v, want hello", v, ok)
	}
}

func TestDecode_UnknownTagAfterCompletedGroup(t *testing.T) {
	_, dec := codec()
	buf := frameMsg("35=V|49=C|56=S|34=3|52=" + sendingTime +
		"|262=r1|263=0|264=1|267=1|269=0|9999=x|146=1|55=IBM|")
	m, _, err := dec.Decode(buf)
	if err != nil {
		t.Fatalf("Decode() error = %v, want nil", err)
	}
	if !m.Body.Has(9999) {
		t.Errorf("tag 9999 after a completed group was dropped")
	}
}

func TestDecode_RecoverableErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		want   error
		refTag int
		reason int
	}{
		{
			name:   "missing required field",
			body:   "35=A|49=C|56=S|34=2|52=" + sendingTime + "|98=0|",
			want:   ErrMissingRequiredField,
			refTag: 108,
			reason: RejectRequiredTagMissing,
		},
		{
			name:   "unknown message type",
			body:   "35=ZZ|49=C|56=S|34=2|52=" + sendingTime + "|",
			want:   ErrUnknownMessageType,
			refTag: 35,
			reason: RejectInvalidMsgType,
		},
		{
			name:   "non-numeric tag",
			body:   "35=A|49=C|56=S|34=2|x9=1|",
			want:   ErrMalformedTag,
			reason: RejectInvalidTagNumber,
		},
		{
			name:   "incorrect data format",
			body:   "35=A|49=C|56=S|34=2|52=" + sendingTime + "|98=x|108=30|",
			want:   ErrIncorrectDataFormat,
			refTag: 98,
			reason: RejectIncorrectDataFormat,
		},
		{
			name:   "enum value out of range",
			body:   "35=A|49=C|56=S|34=2|52=" + sendingTime + "|98=9|108=30|",
			want:   ErrValueOutOfRange,
			refTag: 98,
			reason: RejectValueIncorrect,
		},
		{
			name:   "empty value",
			body:   "35=A|49=C|56=S|34=2|52=" + sendingTime + "|98=0|108=30|58=|",
			want:   ErrEmptyValue,
			refTag: 58,
			reason: RejectTagWithoutValue,
		},
		{
			name:   "duplicate tag",
			body:   "35=A|49=C|56=S|34=2|52=" + sendingTime + "|98=0|108=30|108=31|",
			want:   ErrDuplicateTag,
			refTag: 108,
			reason: RejectTagAppearsMoreThanOnce,
		},
		{
			name:   "group count larger than entries",
			body:   "35=V|49=C|56=S|34=2|52=" + sendingTime + "|262=r1|263=0|264=1|267=2|269=0|146=1|55=IBM|",
			want:   ErrGroupCountMismatch,
			refTag: 267,
			reason: RejectIncorrectNumInGroup,
		},
		{
			name:   "group count smaller than entries",
			body:   "35=V|49=C|56=S|34=2|52=" + sendingTime + "|262=r1|263=0|264=1|267=1|269=0|269=1|146=1|55=IBM|",
			want:   ErrGroupCountMismatch,
			refTag: 267,
			reason: RejectIncorrectNumInGroup,
		},
		{
			name:   "unknown tag inside unfinished group",
			body:   "35=V|49=C|56=S|34=2|52=" + sendingTime + "|262=r1|263=0|264=1|267=2|269=0|9999=x|269=1|146=1|55=IBM|",
			want:   ErrUnknownTagInGroup,
			refTag: 9999,
			reason: RejectTagNotDefinedForMessage,
		},
	}

	_, dec := codec()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := frameMsg(tt.body)
			_, n, err := dec.Decode(buf)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Decode() error = %v, want %v", err, tt.want)
			}
			if n != len(buf) {
				t.Errorf("Decode() n = %d, want %d", n, len(buf))
			}
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("Decode() error type = %T, want *DecodeError", err)
			}
			if de.Fatal() {
				t.Errorf("Fatal() = true, want false")
			}
			if tt.refTag != 0 && de.RefTag != tt.refTag {
				t.Errorf("RefTag = %d, want %d", de.RefTag, tt.refTag)
			}
			if de.RejectReason() != tt.reason {
				t.Errorf("RejectReason() = %d, want %d", de.RejectReason(), tt.reason)
			}
			if de.MsgSeqNum != 2 {
				t.Errorf("MsgSeqNum = %d, want 2", de.MsgSeqNum)
			}
		})
	}
}

func TestDecode_FatalErrors(t *testing.T) {
	valid := frameMsg("35=0|49=C|56=S|34=1|52=" + sendingTime + "|")

	badChecksum := append([]byte{}, valid...)
	copy(badChecksum[len(badChecksum)-4:], "999")

	wrongSum := append([]byte{}, valid...)
	if wrongSum[len(wrongSum)-2] == '0' {
		wrongSum[len(wrongSum)-2] = '1'
	} else {
		wrongSum[len(wrongSum)-2] = '0'
	}

	body := soh("35=0|49=C|56=S|34=1|52=" + sendingTime + "|")
	shortLength := []byte(fmt.Sprintf("8=FIX.4.4\x019=%d\x01", len(body)-1))
	shortLength = append(shortLength, body...)
	shortLength = append(shortLength, []byte("10="+FormatChecksum(Checksum(shortLength))+"\x01")...)

	tests := []struct {
		name string
		buf  []byte
		want error
	}{
		{"checksum not three digits in range", badChecksum, ErrChecksumMismatch},
		{"checksum mismatch", wrongSum, ErrChecksumMismatch},
		{"body length mismatch", shortLength, ErrBodyLengthMismatch},
		{"does not start with BeginString", soh("9=5|8=FIX.4.4|"), ErrGarbled},
		{"body length not numeric", soh("8=FIX.4.4|9=abc|35=0|"), ErrGarbled},
		{"body length above limit", soh("8=FIX.4.4|9=99999999|35=0|"), ErrMessageTooLarge},
	}

	_, dec := codec()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := dec.Decode(tt.buf)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Decode() error = %v, want %v", err, tt.want)
			}
			if !IsFatal(err) {
				t.Errorf("IsFatal() = false, want true")
			}
		})
	}
}

func TestDecode_ChecksumVerificationDisabled(t *testing.T) {
	valid := frameMsg("35=0|49=C|56=S|34=1|52=" + sendingTime + "|")
	buf := append([]byte{}, valid...)
	copy(buf[len(buf)-4:], "000")

	cfg := DefaultConfig()
	cfg.VerifyChecksum = false
	dec := NewDecoder(dictionary.FIX44(), cfg)
	if _, _, err := dec.Decode(buf); err != nil {
		t.Errorf("Decode() error = %v, want nil with checksum verification off", err)
	}
}

func TestCodec_PipeSeparator(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Separator = '|'
	enc := NewEncoder(dictionary.FIX44(), cfg)
	dec := NewDecoder(dictionary.FIX44(), cfg)

	out, err := enc.Encode(newLogon())
	if err != nil {
		t.Fatalf("Encode() error = %v, want nil", err)
	}
	if !bytes.HasPrefix(out, []byte("8=FIX.4.4|9=67|35=A|")) {
		t.Errorf("Encode() = %q, want pipe-separated", out)
	}
	got, _, err := dec.Decode(out)
	if err != nil {
		t.Fatalf("Decode() error = %v, want nil", err)
	}
	if !got.Equal(newLogon()) {
		t.Errorf("Decode() = %s, want %s", got, newLogon())
	}
}

func TestEncode_Errors(t *testing.T) {
	enc, _ := codec()

	missing := newLogon()
	missing.Body.Remove(108)

	unknownType := newLogon()
	unknownType.Header.Set(35, "ZZ")

	sepInValue := newLogon()
	sepInValue.Body.Set(58, "bad\x01text")

	badGroup := message.New("W")
	badGroup.Header.Set(49, "C")
	badGroup.Header.Set(56, "S")
	badGroup.Header.Set(34, "1")
	badGroup.Header.Set(52, sendingTime)
	badGroup.Body.Set(55, "IBM")
	var entry message.FieldSet
	entry.Set(269, "0")
	entry.Set(12345, "x")
	badGroup.Body.SetGroup(268, []message.FieldSet{entry})

	tests := []struct {
		name string
		m    *message.Message
		want error
		tag  int
	}{
		{"missing required body field", missing, ErrMissingRequiredField, 108},
		{"unknown message type", unknownType, ErrUnknownMessageType, 0},
		{"separator in value", sepInValue, ErrSeparatorInValue, 58},
		{"undefined tag in group entry", badGroup, ErrUnknownTagInGroup, 12345},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := enc.Encode(tt.m)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Encode() error = %v, want %v", err, tt.want)
			}
			var ee *EncodeError
			if errors.As(err, &ee) && ee.Tag != tt.tag {
				t.Errorf("EncodeError.Tag = %d, want %d", ee.Tag, tt.tag)
			}
		})
	}
}

func TestSplitFunc(t *testing.T) {
	a := frameMsg("35=0|49=C|56=S|34=1|52=" + sendingTime + "|")
	b := frameMsg("35=0|49=C|56=S|34=2|52=" + sendingTime + "|")
	stream := append(append(append([]byte{}, a...), b...), a[:10]...)

	s := bufio.NewScanner(bytes.NewReader(stream))
	s.Split(SplitFunc(DefaultConfig()))

	var got [][]byte
	for s.Scan() {
		got = append(got, append([]byte{}, s.Bytes()...))
	}
	if len(got) != 2 {
		t.Fatalf("scanned %d messages, want 2", len(got))
	}
	if !bytes.Equal(got[0], a) || !bytes.Equal(got[1], b) {
		t.Errorf("scanned tokens do not match the input frames")
	}
	if !errors.Is(s.Err(), io.ErrUnexpectedEOF) {
		t.Errorf("Err() = %v, want io.ErrUnexpectedEOF", s.Err())
	}
}

func TestSplitFunc_Garbage(t *testing.T) {
	s := bufio.NewScanner(strings.NewReader("hello world"))
	s.Split(SplitFunc(DefaultConfig()))
	if s.Scan() {
		t.Fatalf("Scan() = true on garbage")
	}
	if !IsFatal(s.Err()) {
		t.Errorf("Err() = %v, want fatal DecodeError", s.Err())
	}
}

func TestFormatChecksum(t *testing.T) {
	for in, want := range map[int]string{0: "000", 7: "007", 87: "087", 255: "255", 256: "000"} {
		if got := FormatChecksum(in); got != want {
			t.Errorf("FormatChecksum(%d) = %q, want %q", in, got, want)
		}
	}
}
