// Package record models one bank-statement extraction: a JSON object whose
// key order is significant.
package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Fields lists the recognized statement keys followed by the provenance
// keys appended during extraction.
var Fields = []string{
	"bank_name",
	"account_number",
	"account_holder_name",
	"phone_number",
	"statement_from_date",
	"statement_to_date",
	"opening_balance",
	"closing_balance",
	"total_debits",
	"total_credits",
	"currency",
	"statement_date_generated",
	"branch_name",
	"statement_number",
	"source_file",
	"processing_timestamp",
}

// Field is one key with its raw JSON value.
type Field struct {
	Key   string
	Value json.RawMessage
}

// Record is an ordered JSON object. The zero value is an empty record.
type Record struct {
	fields []Field
}

var errNotObject = errors.New("record: top-level JSON value is not an object")

// Decode parses a JSON object, keeping keys in document order. A repeated key
// keeps its first position and takes the last value.
func Decode(data []byte) (Record, error) {
	var r Record
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return r, fmt.Errorf("record: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return r, errNotObject
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Record{}, fmt.Errorf("record: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return Record{}, fmt.Errorf("record: unexpected token %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return Record{}, fmt.Errorf("record: value of %q: %w", key, err)
		}
		r.Set(key, raw)
	}
	if _, err := dec.Token(); err != nil {
		return Record{}, fmt.Errorf("record: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return Record{}, errors.New("record: trailing data after object")
	}
	return r, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec, err := Decode(data)
	if err != nil {
		return err
	}
	*r = dec
	return nil
}

// Len returns the number of fields.
func (r Record) Len() int { return len(r.fields) }

// Keys returns the keys in order.
func (r Record) Keys() []string {
	keys := make([]string, len(r.fields))
	for i, f := range r.fields {
		keys[i] = f.Key
	}
	return keys
}

// All returns a copy of the fields in order.
func (r Record) All() []Field {
	out := make([]Field, len(r.fields))
	copy(out, r.fields)
	return out
}

// Get returns the raw value stored under key.
func (r Record) Get(key string) (json.RawMessage, bool) {
	for _, f := range r.fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Set replaces the value of an existing key in place or appends a new field.
func (r *Record) Set(key string, value json.RawMessage) {
	v := make(json.RawMessage, len(value))
	copy(v, value)
	for i := range r.fields {
		if r.fields[i].Key == key {
			r.fields[i].Value = v
			return
		}
	}
	r.fields = append(r.fields, Field{Key: key, Value: v})
}

// SetString sets key to a JSON string value.
func (r *Record) SetString(key, value string) {
	r.Set(key, encodeString(value))
}

// MarshalJSON implements json.Marshaler, preserving key order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(encodeString(f.Key))
		buf.WriteByte(':')
		value := f.Value
		if len(bytes.TrimSpace(value)) == 0 {
			value = json.RawMessage("null")
		}
		if err := json.Compact(&buf, value); err != nil {
			return nil, fmt.Errorf("record: value of %q: %w", f.Key, err)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalIndent is like MarshalJSON but applies json.Indent.
func (r Record) MarshalIndent(prefix, indent string) ([]byte, error) {
	compact, err := r.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, compact, prefix, indent); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ValueText renders a raw value the way it reads in a text chunk: strings
// unquoted, numbers verbatim, booleans and null as literals, arrays and
// objects as compact JSON.
func ValueText(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "null"
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return string(trimmed)
		}
		return s
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, trimmed); err != nil {
			return string(trimmed)
		}
		return buf.String()
	default:
		return string(trimmed)
	}
}

func encodeString(s string) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	return []byte(strings.TrimSuffix(buf.String(), "\n"))
}
