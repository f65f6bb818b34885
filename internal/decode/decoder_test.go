package decode

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// --- test-only encoder, mirroring the wire format decoder_test builds
// fixtures with. Production code never needs to encode this format — only
// decode it — so this stays test-scoped.

func putUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func putString(buf *bytes.Buffer, s string) {
	putUvarint(buf, uint64(len(s)))
	buf.WriteString(s)
}

func putOptionalID(buf *bytes.Buffer, id *uint64) {
	if id == nil {
		buf.WriteByte(0)
		return
	}
	buf.WriteByte(1)
	putUvarint(buf, *id)
}

func putValues(buf *bytes.Buffer, values []KV) {
	putUvarint(buf, uint64(len(values)))
	for _, kv := range values {
		putString(buf, kv.Key)
		putString(buf, kv.Value)
	}
}

func encodeFrame(body []byte) []byte {
	var out bytes.Buffer
	putUvarint(&out, uint64(len(body)))
	out.Write(body)
	return out.Bytes()
}

func encodeStart(ts, id uint64, parent *uint64, name, target string, values []KV) []byte {
	var body bytes.Buffer
	body.WriteByte(byte(KindStart))
	putUvarint(&body, ts)
	putUvarint(&body, id)
	putOptionalID(&body, parent)
	putString(&body, name)
	putString(&body, target)
	putValues(&body, values)
	return encodeFrame(body.Bytes())
}

func encodeEnd(ts, id uint64) []byte {
	var body bytes.Buffer
	body.WriteByte(byte(KindEnd))
	putUvarint(&body, ts)
	putUvarint(&body, id)
	return encodeFrame(body.Bytes())
}

func encodeEnterExit(kind Kind, ts, id, thread uint64) []byte {
	var body bytes.Buffer
	body.WriteByte(byte(kind))
	putUvarint(&body, ts)
	putUvarint(&body, id)
	putUvarint(&body, thread)
	return encodeFrame(body.Bytes())
}

func encodeEvent(ts uint64, parent *uint64, values []KV) []byte {
	var body bytes.Buffer
	body.WriteByte(byte(KindEvent))
	putUvarint(&body, ts)
	putOptionalID(&body, parent)
	putValues(&body, values)
	return encodeFrame(body.Bytes())
}

func TestDecodeStart(t *testing.T) {
	frame := encodeStart(0, 1, nil, "a", "crate::mod", []KV{{Key: "k", Value: "v"}})
	rec, next, err := Decode(frame, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next != len(frame) {
		t.Fatalf("expected offset %d, got %d", len(frame), next)
	}
	if rec.Kind != KindStart || rec.ID != 1 || rec.Name != "a" || rec.Target != "crate::mod" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.Parent != nil {
		t.Fatalf("expected nil parent, got %v", *rec.Parent)
	}
	if len(rec.Values) != 1 || rec.Values[0].Key != "k" || rec.Values[0].Value != "v" {
		t.Fatalf("unexpected values: %+v", rec.Values)
	}
}

func TestDecodeStartWithParent(t *testing.T) {
	parent := uint64(7)
	frame := encodeStart(5, 2, &parent, "b", "t", nil)
	rec, _, err := Decode(frame, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Parent == nil || *rec.Parent != 7 {
		t.Fatalf("expected parent 7, got %v", rec.Parent)
	}
}

func TestDecodeNeedMoreOnShortBody(t *testing.T) {
	full := encodeStart(0, 1, nil, "a", "t", nil)
	// Truncate mid-body: still enough for the length prefix to parse, but
	// not enough body bytes yet.
	short := full[:len(full)-1]
	_, _, err := Decode(short, 0)
	if err != ErrNeedMore {
		t.Fatalf("expected ErrNeedMore, got %v", err)
	}
}

func TestDecodeNeedMoreOnEmptyBuffer(t *testing.T) {
	_, _, err := Decode(nil, 0)
	if err != ErrNeedMore {
		t.Fatalf("expected ErrNeedMore, got %v", err)
	}
}

func TestDecodeSequenceAdvancesOffset(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(encodeStart(0, 1, nil, "a", "t", nil))
	buf.Write(encodeEnd(10, 1))

	data := buf.Bytes()
	rec1, off1, err := Decode(data, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec1.Kind != KindStart {
		t.Fatalf("expected Start, got %v", rec1.Kind)
	}
	rec2, off2, err := Decode(data, off1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec2.Kind != KindEnd || rec2.ID != 1 {
		t.Fatalf("unexpected second record: %+v", rec2)
	}
	if off2 != len(data) {
		t.Fatalf("expected to reach end of buffer, got %d of %d", off2, len(data))
	}
}

func TestDecodeEnterExit(t *testing.T) {
	frame := encodeEnterExit(KindEnter, 10, 1, 42)
	rec, _, err := Decode(frame, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Kind != KindEnter || rec.Ts != 10 || rec.ID != 1 || rec.ThreadID != 42 {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestDecodeEvent(t *testing.T) {
	parent := uint64(3)
	frame := encodeEvent(99, &parent, []KV{{Key: "msg", Value: "hi"}})
	rec, _, err := Decode(frame, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Kind != KindEvent || rec.Parent == nil || *rec.Parent != 3 {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestDecodeMalformedUnknownKind(t *testing.T) {
	var body bytes.Buffer
	body.WriteByte(0xFF)
	frame := encodeFrame(body.Bytes())

	_, _, err := Decode(frame, 0)
	var merr *MalformedError
	if err == nil {
		t.Fatal("expected malformed error")
	}
	if !asMalformed(err, &merr) {
		t.Fatalf("expected *MalformedError, got %T: %v", err, err)
	}
	if merr.Offset != 0 {
		t.Fatalf("expected offset 0, got %d", merr.Offset)
	}
}

func TestDecodeMalformedTrailingBytes(t *testing.T) {
	// A well-formed End record's body, but with one extra trailing byte
	// inside the declared frame length.
	var body bytes.Buffer
	body.WriteByte(byte(KindEnd))
	putUvarint(&body, 0)
	putUvarint(&body, 1)
	body.WriteByte(0xAB)
	frame := encodeFrame(body.Bytes())

	_, _, err := Decode(frame, 0)
	var merr *MalformedError
	if !asMalformed(err, &merr) {
		t.Fatalf("expected *MalformedError, got %T: %v", err, err)
	}
}

func asMalformed(err error, target **MalformedError) bool {
	if me, ok := err.(*MalformedError); ok {
		*target = me
		return true
	}
	return false
}

func TestDecodeEmptyFrameIsMalformed(t *testing.T) {
	frame := encodeFrame(nil)
	_, _, err := Decode(frame, 0)
	var merr *MalformedError
	if !asMalformed(err, &merr) {
		t.Fatalf("expected *MalformedError for empty frame, got %v", err)
	}
}
