// Package decode implements the pull-style framed binary decoder for trace
// records. The wire format is self-delimiting: each frame is a
// little-endian uvarint length prefix followed by that many body bytes, and
// the body itself is a sequence of uvarint-tagged fields. The format is
// bespoke to this tracing producer, so there is no off-the-shelf parser for
// it — see DESIGN.md for why this one module reaches for encoding/binary
// instead of a third-party codec.
package decode

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrNeedMore signals that buf[offset:] does not yet contain a complete
// frame. The caller must preserve buf[offset:] and retry once more bytes
// have been appended.
var ErrNeedMore = errors.New("decode: need more bytes")

// MalformedError reports that the frame beginning at Offset could not be
// parsed as any known record. Per policy, the caller skips the unreadable
// region and keeps polling rather than aborting the session outright.
type MalformedError struct {
	Offset int
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("decode: malformed frame at offset %d", e.Offset)
}

// maxFrameBody bounds a single frame's declared body length. Real trace
// frames are at most a few KiB (the largest payload is a Start record's
// attribute list); anything claiming to be larger is corrupt framing, not a
// legitimate frame waiting on more bytes.
const maxFrameBody = 16 << 20

// Decode attempts to parse one record from buf starting at offset.
//
// On success it returns the record and the offset of the next frame.
// On ErrNeedMore, offset is unchanged — preserve buf[offset:] verbatim.
// On a *MalformedError, the caller should treat the remainder of the
// currently buffered bytes as unreadable and wait for more data (see
// TraceReader for the escalation-to-reset policy).
func Decode(buf []byte, offset int) (*Record, int, error) {
	frameLen, n := binary.Uvarint(buf[offset:])
	if n == 0 {
		return nil, offset, ErrNeedMore
	}
	if n < 0 {
		return nil, offset, &MalformedError{Offset: offset}
	}
	if frameLen > maxFrameBody {
		return nil, offset, &MalformedError{Offset: offset}
	}

	bodyStart := offset + n
	bodyEnd := bodyStart + int(frameLen)
	if bodyEnd > len(buf) {
		return nil, offset, ErrNeedMore
	}
	if frameLen == 0 {
		return nil, offset, &MalformedError{Offset: offset}
	}

	rec, err := decodeBody(buf[bodyStart:bodyEnd])
	if err != nil {
		return nil, offset, &MalformedError{Offset: offset}
	}
	return rec, bodyEnd, nil
}

var errTruncatedField = errors.New("decode: truncated field")

type cursor struct {
	buf []byte
	pos int
}

func (c *cursor) readByte() (byte, error) {
	if c.pos >= len(c.buf) {
		return 0, errTruncatedField
	}
	b := c.buf[c.pos]
	c.pos++
	return b, nil
}

func (c *cursor) readUvarint() (uint64, error) {
	v, n := binary.Uvarint(c.buf[c.pos:])
	if n <= 0 {
		return 0, errTruncatedField
	}
	c.pos += n
	return v, nil
}

func (c *cursor) readString() (string, error) {
	l, err := c.readUvarint()
	if err != nil {
		return "", err
	}
	end := c.pos + int(l)
	if l > maxFrameBody || end > len(c.buf) || end < c.pos {
		return "", errTruncatedField
	}
	s := string(c.buf[c.pos:end])
	c.pos = end
	return s, nil
}

func (c *cursor) readOptionalID() (*uint64, error) {
	present, err := c.readByte()
	if err != nil {
		return nil, err
	}
	if present == 0 {
		return nil, nil
	}
	v, err := c.readUvarint()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (c *cursor) readValues() ([]KV, error) {
	count, err := c.readUvarint()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	if count > maxFrameBody {
		return nil, errTruncatedField
	}
	values := make([]KV, 0, count)
	for i := uint64(0); i < count; i++ {
		k, err := c.readString()
		if err != nil {
			return nil, err
		}
		v, err := c.readString()
		if err != nil {
			return nil, err
		}
		values = append(values, KV{Key: k, Value: v})
	}
	return values, nil
}

func decodeBody(body []byte) (*Record, error) {
	c := &cursor{buf: body}

	tagByte, err := c.readByte()
	if err != nil {
		return nil, err
	}
	kind := Kind(tagByte)

	rec := &Record{Kind: kind}

	switch kind {
	case KindStart:
		if rec.Ts, err = c.readUvarint(); err != nil {
			return nil, err
		}
		if rec.ID, err = c.readUvarint(); err != nil {
			return nil, err
		}
		if rec.Parent, err = c.readOptionalID(); err != nil {
			return nil, err
		}
		if rec.Name, err = c.readString(); err != nil {
			return nil, err
		}
		if rec.Target, err = c.readString(); err != nil {
			return nil, err
		}
		if rec.Values, err = c.readValues(); err != nil {
			return nil, err
		}
	case KindEnd:
		if rec.Ts, err = c.readUvarint(); err != nil {
			return nil, err
		}
		if rec.ID, err = c.readUvarint(); err != nil {
			return nil, err
		}
	case KindEnter, KindExit:
		if rec.Ts, err = c.readUvarint(); err != nil {
			return nil, err
		}
		if rec.ID, err = c.readUvarint(); err != nil {
			return nil, err
		}
		if rec.ThreadID, err = c.readUvarint(); err != nil {
			return nil, err
		}
	case KindEvent:
		if rec.Ts, err = c.readUvarint(); err != nil {
			return nil, err
		}
		if rec.Parent, err = c.readOptionalID(); err != nil {
			return nil, err
		}
		if rec.Values, err = c.readValues(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("decode: unknown record kind %d", tagByte)
	}

	if c.pos != len(body) {
		return nil, fmt.Errorf("decode: %d trailing bytes in frame", len(body)-c.pos)
	}
	return rec, nil
}
