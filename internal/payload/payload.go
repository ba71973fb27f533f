// Package payload implements the ordered field mapping carried by each
// record. Field order is the order of the source JSON object and survives a
// decode/encode round trip.
package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrNotObject is returned when the JSON document is valid but is not an object.
var ErrNotObject = errors.New("payload is not a JSON object")

// Field is a single name/value entry. Value is a string for text values and
// json.RawMessage for everything else (numbers, booleans, null, nested
// objects and arrays).
type Field struct {
	Name  string
	Value any
}

// Payload is an insertion-ordered mapping of field name to value.
type Payload struct {
	fields []Field
	index  map[string]int
}

// New returns an empty payload with room for size fields.
func New(size int) *Payload {
	return &Payload{
		fields: make([]Field, 0, size),
		index:  make(map[string]int, size),
	}
}

// Set stores value under name. An existing name keeps its position.
func (p *Payload) Set(name string, value any) {
	if p.index == nil {
		p.index = make(map[string]int)
	}
	if i, ok := p.index[name]; ok {
		p.fields[i].Value = value
		return
	}
	p.index[name] = len(p.fields)
	p.fields = append(p.fields, Field{Name: name, Value: value})
}

// Get returns the value stored under name.
func (p *Payload) Get(name string) (any, bool) {
	if p == nil {
		return nil, false
	}
	i, ok := p.index[name]
	if !ok {
		return nil, false
	}
	return p.fields[i].Value, true
}

// Len returns the number of fields.
func (p *Payload) Len() int {
	if p == nil {
		return 0
	}
	return len(p.fields)
}

// Fields returns the fields in order. The slice is a copy.
func (p *Payload) Fields() []Field {
	if p == nil {
		return nil
	}
	out := make([]Field, len(p.fields))
	copy(out, p.fields)
	return out
}

// Keys returns the field names in order.
func (p *Payload) Keys() []string {
	if p == nil {
		return nil
	}
	keys := make([]string, len(p.fields))
	for i, f := range p.fields {
		keys[i] = f.Name
	}
	return keys
}

// Parse decodes a JSON object into a Payload, keeping key order.
func Parse(data []byte) (*Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	t, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to read opening token: %w", err)
	}
	if delim, ok := t.(json.Delim); !ok || delim != '{' {
		return nil, ErrNotObject
	}

	p := New(8)
	for dec.More() {
		t, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to read field name: %w", err)
		}
		name, ok := t.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected field name token %v", t)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("failed to decode field %q: %w", name, err)
		}

		value, err := decodeValue(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to decode field %q: %w", name, err)
		}
		p.Set(name, value)
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("failed to read closing token: %w", err)
	}

	// Trailing data after the object makes the document invalid.
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("unexpected data after payload object")
	}

	return p, nil
}

// ParseOrEmpty decodes data and substitutes an empty payload when data is not
// a valid JSON object. The boolean reports whether decoding succeeded.
func ParseOrEmpty(data []byte) (*Payload, bool) {
	p, err := Parse(data)
	if err != nil {
		return New(0), false
	}
	return p, true
}

func decodeValue(raw json.RawMessage) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, err
		}
		return s, nil
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, trimmed); err != nil {
		return nil, err
	}
	return json.RawMessage(compact.Bytes()), nil
}

// MarshalJSON encodes the payload in field order using the canonical text
// layout: ", " and ": " separators, non-ASCII escaped as \uXXXX.
func (p *Payload) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if p != nil {
		for i, f := range p.fields {
			if i > 0 {
				buf.WriteString(itemSeparator)
			}
			writeString(&buf, f.Name)
			buf.WriteString(keySeparator)
			if err := encodeValue(&buf, f.Value); err != nil {
				return nil, fmt.Errorf("failed to encode field %q: %w", f.Name, err)
			}
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Payload) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*p = *parsed
	return nil
}

// String returns the JSON encoding, or "{}" if a value cannot be encoded.
func (p *Payload) String() string {
	data, err := p.MarshalJSON()
	if err != nil {
		return "{}"
	}
	return string(data)
}

func encodeValue(buf *bytes.Buffer, v any) error {
	switch v := v.(type) {
	case string:
		writeString(buf, v)
		return nil
	case json.RawMessage:
		if len(v) == 0 {
			buf.WriteString("null")
			return nil
		}
		return writeRaw(buf, v)
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return writeRaw(buf, raw)
}
