package directline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// Field is a single wire member that the typed struct does not reproduce on
// its own (unknown keys, or known keys carrying null / empty values).
type Field struct {
	Key   string
	Value json.RawMessage
}

// Extra is an ordered list of opaque wire members carried through unmodified.
type Extra []Field

// Get returns the raw value stored under key.
func (e Extra) Get(key string) (json.RawMessage, bool) {
	for _, f := range e {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Keys returns the member names in wire order.
func (e Extra) Keys() []string {
	keys := make([]string, len(e))
	for i, f := range e {
		keys[i] = f.Key
	}
	return keys
}

// knownKeys caches the exact json member names of each alias type.
var knownKeys sync.Map // reflect.Type -> map[string]bool

// jsonKeys returns the member names t's json tags declare.
func jsonKeys(t reflect.Type) map[string]bool {
	if keys, ok := knownKeys.Load(t); ok {
		return keys.(map[string]bool)
	}
	keys := make(map[string]bool, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		switch name {
		case "-":
			continue
		case "":
			name = f.Name
		}
		keys[name] = true
	}
	knownKeys.Store(t, keys)
	return keys
}

// decodeWithExtra unmarshals data into v (a pointer to a method-less alias
// struct) and returns every top-level member of data that re-marshalling v
// would not emit, in wire order. Only members whose key matches a json tag
// exactly reach v; encoding/json would otherwise match case-insensitively.
// When an exact key repeats, the last occurrence wins.
func decodeWithExtra(data []byte, v any) (Extra, error) {
	known := jsonKeys(reflect.TypeOf(v).Elem())

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected JSON object, got %v", tok)
	}

	var members []Field
	var typed bytes.Buffer
	typed.WriteByte('{')
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected object key %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		members = append(members, Field{Key: key, Value: append(json.RawMessage(nil), raw...)})
		if !known[key] {
			continue
		}
		if typed.Len() > 1 {
			typed.WriteByte(',')
		}
		k, _ := json.Marshal(key)
		typed.Write(k)
		typed.WriteByte(':')
		typed.Write(raw)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	typed.WriteByte('}')

	if err := json.Unmarshal(typed.Bytes(), v); err != nil {
		return nil, err
	}

	out, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var emitted map[string]json.RawMessage
	if err := json.Unmarshal(out, &emitted); err != nil {
		return nil, err
	}

	var extra Extra
	for _, m := range members {
		if _, ok := emitted[m.Key]; ok && known[m.Key] {
			continue
		}
		extra = append(extra, m)
	}
	return extra, nil
}

// encodeWithExtra marshals v and appends the members of extra that v did not
// already emit.
func encodeWithExtra(v any, extra Extra) ([]byte, error) {
	typed, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if len(extra) == 0 {
		return typed, nil
	}

	var emitted map[string]json.RawMessage
	if err := json.Unmarshal(typed, &emitted); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Write(typed[:len(typed)-1])
	wrote := len(emitted) > 0
	for _, f := range extra {
		if _, ok := emitted[f.Key]; ok {
			continue
		}
		if wrote {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		if len(f.Value) == 0 {
			buf.WriteString("null")
		} else {
			buf.Write(f.Value)
		}
		wrote = true
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
