package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Field is a single name/value pair inside a snapshot. Values are carried as
// text so decimal columns keep their exact representation.
type Field struct {
	Name  string
	Value string
}

// Snapshot is an ordered field→value mapping describing a full row at one
// point in time. Field order is the declaration order of the entity and is
// preserved through JSON encoding.
type Snapshot struct {
	fields []Field
}

// NewSnapshot builds a snapshot from ordered fields.
func NewSnapshot(fields ...Field) *Snapshot {
	return &Snapshot{fields: fields}
}

// Set appends a field, replacing an existing field of the same name in place.
func (s *Snapshot) Set(name, value string) {
	for i := range s.fields {
		if s.fields[i].Name == name {
			s.fields[i].Value = value
			return
		}
	}
	s.fields = append(s.fields, Field{Name: name, Value: value})
}

// Get returns the value of a field and whether it is present.
func (s *Snapshot) Get(name string) (string, bool) {
	if s == nil {
		return "", false
	}
	for _, f := range s.fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Fields returns the fields in order.
func (s *Snapshot) Fields() []Field {
	if s == nil {
		return nil
	}
	return append([]Field(nil), s.fields...)
}

// Len reports the number of fields.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.fields)
}

// MarshalJSON renders the snapshot as a JSON object preserving field order.
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range s.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object keeping the encountered field order.
// Scalar values of any type are accepted and rendered back as text.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("audit: snapshot must be a JSON object")
	}

	s.fields = s.fields[:0]
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("audit: invalid snapshot key %v", keyTok)
		}
		valTok, err := dec.Token()
		if err != nil {
			return err
		}
		s.fields = append(s.fields, Field{Name: key, Value: scalarText(valTok)})
	}
	_, err = dec.Token() // closing brace
	return err
}

func scalarText(tok json.Token) string {
	switch v := tok.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", v)
	}
}
