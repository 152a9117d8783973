package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"unicode/utf8"
)

// recordField is one key of a rendered record with its compact JSON value.
type recordField struct {
	key   string
	value []byte
}

// renderRecord renders {id, name, ...data} as 2-space indented JSON, byte
// for byte what JSON.stringify(record, null, 2) prints for the same input.
// A data key named id or name replaces that value in place.
func renderRecord(a *Approval) ([]byte, error) {
	id, err := encodeString(a.ID)
	if err != nil {
		return nil, err
	}
	name, err := encodeString(a.Name)
	if err != nil {
		return nil, err
	}
	fields := []recordField{{key: "id", value: id}, {key: "name", value: name}}

	if len(a.Data) > 0 {
		fields, err = spreadObject(fields, a.Data)
		if err != nil {
			return nil, err
		}
	}

	var compact bytes.Buffer
	if err := writeObject(&compact, fields); err != nil {
		return nil, err
	}

	var out bytes.Buffer
	if err := json.Indent(&out, compact.Bytes(), "", "  "); err != nil {
		return nil, fmt.Errorf("indent record: %w", err)
	}
	return out.Bytes(), nil
}

// spreadObject merges the members of a JSON object into fields, in order.
func spreadObject(fields []recordField, raw json.RawMessage) ([]recordField, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, ErrInvalidData
	}
	fields, err = readObject(dec, fields)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	return fields, nil
}

// readObject reads object members up to and including the closing brace.
// The opening brace must already be consumed.
func readObject(dec *json.Decoder, fields []recordField) ([]recordField, error) {
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected object key %v", tok)
		}
		var value bytes.Buffer
		if err := renderValue(dec, &value); err != nil {
			return nil, err
		}
		fields = setField(fields, key, value.Bytes())
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return fields, nil
}

// renderValue reads the next value from dec and writes it to buf in compact
// form, normalized the way a JavaScript parse and stringify round trip
// normalizes it.
func renderValue(dec *json.Decoder, buf *bytes.Buffer) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			fields, err := readObject(dec, nil)
			if err != nil {
				return err
			}
			return writeObject(buf, fields)
		case '[':
			buf.WriteByte('[')
			for i := 0; dec.More(); i++ {
				if i > 0 {
					buf.WriteByte(',')
				}
				if err := renderValue(dec, buf); err != nil {
					return err
				}
			}
			if _, err := dec.Token(); err != nil {
				return err
			}
			buf.WriteByte(']')
			return nil
		}
		return fmt.Errorf("unexpected delimiter %v", v)
	case string:
		s, err := encodeString(v)
		if err != nil {
			return err
		}
		buf.Write(s)
	case json.Number:
		buf.WriteString(formatNumber(v))
	case bool:
		buf.WriteString(strconv.FormatBool(v))
	case nil:
		buf.WriteString("null")
	default:
		return fmt.Errorf("unexpected token %v", tok)
	}
	return nil
}

// writeObject writes fields as a compact JSON object. Array index keys come
// first in ascending numeric order, then the rest in insertion order.
func writeObject(buf *bytes.Buffer, fields []recordField) error {
	ordered := make([]recordField, len(fields))
	copy(ordered, fields)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, aok := arrayIndex(ordered[i].key)
		b, bok := arrayIndex(ordered[j].key)
		if aok && bok {
			return a < b
		}
		return aok && !bok
	})

	buf.WriteByte('{')
	for i, f := range ordered {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := encodeString(f.key)
		if err != nil {
			return err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(f.value)
	}
	buf.WriteByte('}')
	return nil
}

// arrayIndex reports whether key is the canonical decimal form of an
// integer in [0, 2^32-2].
func arrayIndex(key string) (uint64, bool) {
	if key == "" || (len(key) > 1 && key[0] == '0') {
		return 0, false
	}
	n, err := strconv.ParseUint(key, 10, 32)
	if err != nil || n == math.MaxUint32 {
		return 0, false
	}
	return n, true
}

func setField(fields []recordField, key string, value []byte) []recordField {
	for i := range fields {
		if fields[i].key == key {
			fields[i].value = value
			return fields
		}
	}
	return append(fields, recordField{key: key, value: value})
}

// formatNumber prints n as the shortest form of the double it parses to.
// Zero loses its sign and values beyond the double range print as null.
func formatNumber(n json.Number) string {
	f, _ := strconv.ParseFloat(string(n), 64)
	switch {
	case math.IsInf(f, 0):
		return "null"
	case f == 0:
		return "0"
	}
	b, err := json.Marshal(f)
	if err != nil {
		return "null"
	}
	return string(b)
}

// encodeString encodes s as a JSON string without HTML escaping. U+2028 and
// U+2029 are written raw.
func encodeString(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return unescapeLineSeparators(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

func unescapeLineSeparators(b []byte) []byte {
	if !bytes.Contains(b, []byte(`\u202`)) {
		return b
	}
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		if b[i] != '\\' || i+1 >= len(b) {
			out = append(out, b[i])
			continue
		}
		if b[i+1] == 'u' && i+5 < len(b) {
			switch string(b[i+2 : i+6]) {
			case "2028":
				out = utf8.AppendRune(out, '\u2028')
				i += 5
				continue
			case "2029":
				out = utf8.AppendRune(out, '\u2029')
				i += 5
				continue
			}
		}
		out = append(out, b[i], b[i+1])
		i++
	}
	return out
}
