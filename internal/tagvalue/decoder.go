package tagvalue

import (
	"bytes"
	"strconv"

	"github.com/solatis/fixengine/internal/dictionary"
	"github.com/solatis/fixengine/internal/message"
	"github.com/solatis/fixengine/internal/types"
)

/*
 * Decoding runs in three stages.
 *
 *   1. frame: locate BeginString, BodyLength and CheckSum by position,
 *      verifying the declared length and the checksum. Failures here are
 *      fatal because the stream cannot be resynchronised reliably.
 *   2. tokenize: split the body into (tag, value) pairs. Data fields whose
 *      Length field has been seen are read by byte count, so they may
 *      contain the separator.
 *   3. parse: walk the tokens against the message layout, rebuilding
 *      header, body, trailer and nested groups, then check required fields
 *      and value conformance.
 *
 * Unknown top-level tags are kept as untyped body fields. Inside a group
 * that has not yet produced its declared number of entries, an undefined
 * tag is an error.
 */

// Decoder parses messages for one dictionary. It holds no per-message
// state and is safe for concurrent use.
type Decoder struct {
	dict *dictionary.Dictionary
	cfg  Config
}

// NewDecoder returns a decoder for d.
func NewDecoder(d *dictionary.Dictionary, cfg Config) *Decoder {
	return &Decoder{dict: d, cfg: cfg.normalized()}
}

// Dictionary returns the decoder's dictionary.
func (d *Decoder) Dictionary() *dictionary.Dictionary {
	return d.dict
}

type frame struct {
	begin     []byte
	bodyStart int
	bodyEnd   int
	size      int
}

// Decode parses the first message in buf and returns the number of bytes
// it occupies. If buf holds only part of a message, Decode returns
// ErrIncomplete and n == 0. On other errors n is the size of the rejected
// message when it could be framed, so the caller can skip it.
func (d *Decoder) Decode(buf []byte) (*message.Message, int, error) {
	fr, err := scanFrame(buf, d.cfg)
	if err != nil {
		return nil, 0, err
	}

	toks, terr := d.tokenize(buf[fr.bodyStart:fr.bodyEnd])
	if terr != nil {
		terr.fillFrom(toks)
		return nil, fr.size, terr
	}

	p := parser{dec: d, toks: toks}
	m, perr := p.parse(string(fr.begin))
	if perr != nil {
		perr.fillFrom(toks)
		return nil, fr.size, perr
	}
	return m, fr.size, nil
}

// scanFrame locates the envelope of the first message in buf.
func scanFrame(buf []byte, cfg Config) (frame, error) {
	var fr frame
	sep := cfg.Separator

	if len(buf) < 2 {
		return fr, ErrIncomplete
	}
	if buf[0] != '8' || buf[1] != '=' {
		return fr, &DecodeError{Err: ErrGarbled, RefTag: dictionary.TagBeginString, fatal: true}
	}
	end := bytes.IndexByte(buf[2:], sep)
	if end < 0 {
		if len(buf) > cfg.MaxMessageSize {
			return fr, &DecodeError{Err: ErrMessageTooLarge, fatal: true}
		}
		return fr, ErrIncomplete
	}
	if end == 0 {
		return fr, &DecodeError{Err: ErrGarbled, RefTag: dictionary.TagBeginString, fatal: true}
	}
	fr.begin = buf[2 : 2+end]
	pos := 2 + end + 1

	if len(buf) < pos+2 {
		return fr, ErrIncomplete
	}
	if buf[pos] != '9' || buf[pos+1] != '=' {
		return fr, &DecodeError{Err: ErrGarbled, RefTag: dictionary.TagBodyLength, fatal: true}
	}
	pos += 2
	end = bytes.IndexByte(buf[pos:], sep)
	if end < 0 {
		if len(buf)-pos > 20 {
			return fr, &DecodeError{Err: ErrGarbled, RefTag: dictionary.TagBodyLength, fatal: true}
		}
		return fr, ErrIncomplete
	}
	bodyLen, ok := parseUint(buf[pos : pos+end])
	if !ok {
		return fr, &DecodeError{Err: ErrGarbled, RefTag: dictionary.TagBodyLength, fatal: true}
	}
	if bodyLen > cfg.MaxMessageSize {
		return fr, &DecodeError{Err: ErrMessageTooLarge, RefTag: dictionary.TagBodyLength, fatal: true}
	}
	fr.bodyStart = pos + end + 1
	fr.bodyEnd = fr.bodyStart + bodyLen

	// "10=" + three digits + separator.
	fr.size = fr.bodyEnd + 7
	if len(buf) < fr.size {
		return fr, ErrIncomplete
	}
	if bodyLen == 0 || buf[fr.bodyEnd-1] != sep ||
		buf[fr.bodyEnd] != '1' || buf[fr.bodyEnd+1] != '0' || buf[fr.bodyEnd+2] != '=' ||
		buf[fr.size-1] != sep {
		return fr, &DecodeError{Err: ErrBodyLengthMismatch, RefTag: dictionary.TagBodyLength, fatal: true}
	}
	declared, ok := parseChecksum(buf[fr.bodyEnd+3 : fr.size-1])
	if !ok {
		return fr, &DecodeError{Err: ErrChecksumMismatch, RefTag: dictionary.TagCheckSum, fatal: true}
	}
	if cfg.VerifyChecksum && declared != Checksum(buf[:fr.bodyEnd]) {
		return fr, &DecodeError{Err: ErrChecksumMismatch, RefTag: dictionary.TagCheckSum, fatal: true}
	}
	return fr, nil
}

func parseUint(b []byte) (int, bool) {
	if len(b) == 0 || len(b) > 9 {
		return 0, false
	}
	n := 0
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

type token struct {
	tag   int
	value string
}

// tokenize splits body bytes into tokens. The last token read before an
// error is still returned so the caller can report MsgType and MsgSeqNum.
func (d *Decoder) tokenize(body []byte) ([]token, *DecodeError) {
	sep := d.cfg.Separator
	var toks []token
	lengths := make(map[int]int)

	for pos := 0; pos < len(body); {
		eq := bytes.IndexByte(body[pos:], '=')
		if eq <= 0 {
			return toks, &DecodeError{Err: ErrMalformedTag}
		}
		tag, ok := parseUint(body[pos : pos+eq])
		if !ok || tag == 0 {
			return toks, &DecodeError{Err: ErrMalformedTag}
		}
		pos += eq + 1

		var value []byte
		def, known := d.dict.FieldByTag(tag)
		n, hasLen := 0, false
		if known && def.LengthTag != 0 {
			n, hasLen = lengths[def.LengthTag]
		}
		if hasLen {
			if pos+n >= len(body) || body[pos+n] != sep {
				return toks, &DecodeError{Err: ErrIncorrectDataFormat, RefTag: tag}
			}
			value = body[pos : pos+n]
			pos += n + 1
		} else {
			end := bytes.IndexByte(body[pos:], sep)
			if end < 0 {
				return toks, &DecodeError{Err: ErrMalformedTag, RefTag: tag}
			}
			value = body[pos : pos+end]
			pos += end + 1
		}
		if len(value) == 0 {
			return toks, &DecodeError{Err: ErrEmptyValue, RefTag: tag}
		}
		if known && def.DataTag != 0 {
			if n, ok := parseUint(value); ok {
				lengths[tag] = n
			}
		}
		toks = append(toks, token{tag: tag, value: string(value)})
	}
	return toks, nil
}

// fillFrom records MsgType, MsgSeqNum and PossDupFlag from whatever tokens
// were read, for use in a Reject.
func (e *DecodeError) fillFrom(toks []token) {
	for _, t := range toks {
		switch t.tag {
		case dictionary.TagMsgType:
			if e.MsgType == "" {
				e.MsgType = t.value
			}
		case dictionary.TagMsgSeqNum:
			if n, err := strconv.Atoi(t.value); err == nil && e.MsgSeqNum == 0 {
				e.MsgSeqNum = n
			}
		case tagPossDupFlag:
			e.PossDup = t.value == "Y"
		}
	}
}

const tagPossDupFlag = 43

type parser struct {
	dec  *Decoder
	toks []token
	pos  int
}

func (p *parser) parse(begin string) (*message.Message, *DecodeError) {
	dict := p.dec.dict
	if len(p.toks) == 0 || p.toks[0].tag != dictionary.TagMsgType {
		return nil, &DecodeError{Err: ErrMissingRequiredField, RefTag: dictionary.TagMsgType}
	}
	msgType := p.toks[0].value
	def, ok := dict.MessageByType(msgType)
	if !ok {
		return nil, &DecodeError{Err: ErrUnknownMessageType, RefTag: dictionary.TagMsgType}
	}

	m := &message.Message{}
	m.Header.Add(dictionary.TagBeginString, begin)
	seen := make(map[int]bool)

	for p.pos < len(p.toks) {
		t := p.toks[p.pos]
		var target *message.FieldSet
		var layout *dictionary.Layout
		switch {
		case dict.IsHeaderTag(t.tag):
			target, layout = &m.Header, dict.Header()
		case dict.IsTrailerTag(t.tag):
			target, layout = &m.Trailer, dict.Trailer()
		default:
			target, layout = &m.Body, &def.Layout
		}

		mem, member := layout.Member(t.tag)
		if member && seen[t.tag] {
			return nil, &DecodeError{Err: ErrDuplicateTag, RefTag: t.tag}
		}
		seen[t.tag] = true

		if member && mem.IsGroup() {
			p.pos++
			f, err := p.group(mem.Group, t, 1)
			if err != nil {
				return nil, err
			}
			target.AddField(f)
			continue
		}
		if err := p.check(t); err != nil {
			return nil, err
		}
		target.Add(t.tag, t.value)
		p.pos++
	}

	for _, req := range []struct {
		layout *dictionary.Layout
		set    *message.FieldSet
	}{
		{dict.Header(), &m.Header},
		{&def.Layout, &m.Body},
		{dict.Trailer(), &m.Trailer},
	} {
		if err := missingRequired(req.layout, req.set); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// group parses count entries of g. The count token has been consumed.
func (p *parser) group(g *dictionary.GroupDefinition, countTok token, depth int) (message.Field, *DecodeError) {
	count, ok := parseUint([]byte(countTok.value))
	if !ok {
		return message.Field{}, &DecodeError{Err: ErrIncorrectDataFormat, RefTag: countTok.tag}
	}
	if count > types.MaxGroupEntries || depth > types.MaxGroupDepth {
		return message.Field{}, &DecodeError{Err: ErrValueOutOfRange, RefTag: countTok.tag}
	}

	entries := make([]message.FieldSet, 0, count)
	var cur *message.FieldSet
	var seen map[int]bool

	for p.pos < len(p.toks) {
		t := p.toks[p.pos]
		if t.tag == g.Delimiter() {
			if len(entries) == count {
				return message.Field{}, &DecodeError{Err: ErrGroupCountMismatch, RefTag: countTok.tag}
			}
			entries = append(entries, message.FieldSet{})
			cur = &entries[len(entries)-1]
			seen = make(map[int]bool)
		}

		mem, member := g.Member(t.tag)
		if !member {
			if _, defined := p.dec.dict.FieldByTag(t.tag); !defined && len(entries) < count {
				return message.Field{}, &DecodeError{Err: ErrUnknownTagInGroup, RefTag: t.tag}
			}
			break
		}
		if cur == nil {
			// A group member before the first delimiter.
			return message.Field{}, &DecodeError{Err: ErrGroupCountMismatch, RefTag: countTok.tag}
		}
		if seen[t.tag] {
			return message.Field{}, &DecodeError{Err: ErrDuplicateTag, RefTag: t.tag}
		}
		seen[t.tag] = true
		p.pos++

		if mem.IsGroup() {
			f, err := p.group(mem.Group, t, depth+1)
			if err != nil {
				return message.Field{}, err
			}
			cur.AddField(f)
			continue
		}
		if err := p.check(t); err != nil {
			return message.Field{}, err
		}
		cur.Add(t.tag, t.value)
	}

	if len(entries) != count {
		return message.Field{}, &DecodeError{Err: ErrGroupCountMismatch, RefTag: countTok.tag}
	}
	for i := range entries {
		if err := missingRequired(&g.Layout, &entries[i]); err != nil {
			return message.Field{}, err
		}
	}
	return message.Field{Tag: countTok.tag, Value: countTok.value, Entries: entries}, nil
}

// check validates a scalar value against its definition.
func (p *parser) check(t token) *DecodeError {
	if !p.dec.cfg.ValidateValues || t.tag == dictionary.TagMsgType {
		return nil
	}
	def, ok := p.dec.dict.FieldByTag(t.tag)
	if !ok {
		return nil
	}
	if err := def.Type.Validate(t.value); err != nil {
		return &DecodeError{Err: ErrIncorrectDataFormat, RefTag: t.tag}
	}
	if !def.IsValidEnum(t.value) {
		return &DecodeError{Err: ErrValueOutOfRange, RefTag: t.tag}
	}
	return nil
}

func missingRequired(l *dictionary.Layout, s *message.FieldSet) *DecodeError {
	for _, tag := range l.RequiredTags() {
		switch tag {
		case dictionary.TagBodyLength, dictionary.TagCheckSum:
			continue
		}
		if !s.Has(tag) {
			return &DecodeError{Err: ErrMissingRequiredField, RefTag: tag}
		}
	}
	return nil
}
