package models

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// TimestampKind tags which scalar a Timestamp carries.
type TimestampKind uint8

const (
	TimestampAbsent TimestampKind = iota
	TimestampNumeric
	TimestampText
)

// Timestamp is the scalar time value attached to a vote transaction. Callers
// may hand the ledger either a numeric unix time or an opaque string.
type Timestamp struct {
	kind    TimestampKind
	numeric float64
	text    string
}

func NumericTimestamp(seconds float64) Timestamp {
	return Timestamp{kind: TimestampNumeric, numeric: seconds}
}

func TextTimestamp(s string) Timestamp {
	return Timestamp{kind: TimestampText, text: s}
}

// TimestampFromTime converts t to fractional unix seconds.
func TimestampFromTime(t time.Time) Timestamp {
	return NumericTimestamp(float64(t.UnixNano()) / float64(time.Second))
}

func (ts Timestamp) Kind() TimestampKind { return ts.kind }

// Valid reports whether the timestamp holds an accepted scalar. NaN and
// infinities are not accepted since they have no stable encoding.
func (ts Timestamp) Valid() bool {
	switch ts.kind {
	case TimestampNumeric:
		return !math.IsNaN(ts.numeric) && !math.IsInf(ts.numeric, 0)
	case TimestampText:
		return true
	default:
		return false
	}
}

func (ts Timestamp) String() string {
	switch ts.kind {
	case TimestampNumeric:
		return strconv.FormatFloat(ts.numeric, 'f', -1, 64)
	case TimestampText:
		return ts.text
	default:
		return ""
	}
}

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	switch ts.kind {
	case TimestampNumeric:
		return json.Marshal(ts.numeric)
	case TimestampText:
		return json.Marshal(ts.text)
	default:
		return []byte("null"), nil
	}
}

func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*ts = Timestamp{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*ts = TextTimestamp(s)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("timestamp must be a number or a string: %v", err)
	}
	*ts = NumericTimestamp(f)
	return nil
}

// Transaction is a single ballot as recorded on the ledger. A zero VoterID,
// ElectionID or CandidateID means the field is missing.
type Transaction struct {
	VoterID     string    `json:"voter_id"`
	ElectionID  int64     `json:"election_id"`
	CandidateID int64     `json:"candidate_id"`
	Timestamp   Timestamp `json:"timestamp"`
}

// WellFormed is the honest-validator admission rule: all identifying fields
// present and a scalar timestamp.
func (tx Transaction) WellFormed() bool {
	return tx.VoterID != "" &&
		tx.ElectionID != 0 &&
		tx.CandidateID != 0 &&
		tx.Timestamp.Valid()
}

// Canonical returns the hashing input for tx. Fields are written in a fixed
// order, strings length-prefixed, integers big-endian.
func (tx Transaction) Canonical() []byte {
	buf := new(bytes.Buffer)
	writeString(buf, tx.VoterID)
	writeInt64(buf, tx.ElectionID)
	writeInt64(buf, tx.CandidateID)
	buf.WriteByte(byte(tx.Timestamp.kind))
	switch tx.Timestamp.kind {
	case TimestampNumeric:
		writeUint64(buf, math.Float64bits(normalizeFloat(tx.Timestamp.numeric)))
	case TimestampText:
		writeString(buf, tx.Timestamp.text)
	}
	return buf.Bytes()
}

// normalizeFloat folds -0 into +0 so equal values encode identically.
func normalizeFloat(f float64) float64 {
	if f == 0 {
		return 0
	}
	return f
}

func writeString(buf *bytes.Buffer, s string) {
	writeBytes(buf, []byte(s))
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	var l [4]byte
	binary.BigEndian.PutUint32(l[:], uint32(len(b)))
	buf.Write(l[:])
	buf.Write(b)
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeInt64(buf *bytes.Buffer, v int64) {
	writeUint64(buf, uint64(v))
}
