package options

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Kind is the runtime type of an option value. A leaf's kind is fixed when the
// document is parsed and never changes for the life of the session.
type Kind int

const (
	KindBool Kind = iota
	KindText
	KindNumber
	KindGroup
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindText:
		return "text"
	case KindNumber:
		return "number"
	case KindGroup:
		return "group"
	default:
		return "unknown"
	}
}

// Value is one node of the options tree: a Bool, Text or Number leaf, or a
// nested *Group. There is no declared schema anywhere; the shape and the kinds
// are entirely whatever the loaded document contained.
type Value interface {
	Kind() Kind
}

type Bool bool

func (Bool) Kind() Kind { return KindBool }

type Text string

func (Text) Kind() Kind { return KindText }

type Number float64

func (Number) Kind() Kind { return KindNumber }

// Group is a named collection of values. Key order is insertion order, which
// for a parsed document is the order the keys appeared on the wire, so
// rendering the same document twice produces the same form.
type Group struct {
	keys   []string
	values map[string]Value
}

func (*Group) Kind() Kind { return KindGroup }

func NewGroup() *Group {
	return &Group{values: map[string]Value{}}
}

func (g *Group) Len() int { return len(g.keys) }

// Keys returns the entry names in insertion order.
func (g *Group) Keys() []string {
	out := make([]string, len(g.keys))
	copy(out, g.keys)
	return out
}

func (g *Group) Get(name string) (Value, bool) {
	v, ok := g.values[name]
	return v, ok
}

// Put inserts or overwrites an entry. It is intended for building trees, not
// for editing a loaded document; edits go through Set so leaf kinds stay
// frozen.
func (g *Group) Put(name string, v Value) {
	if _, ok := g.values[name]; !ok {
		g.keys = append(g.keys, name)
	}
	g.values[name] = v
}

type PathError struct {
	Path string
	Msg  string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("options path %q: %s", e.Path, e.Msg)
}

// Resolve walks a dotted path relative to g and returns the value at it.
func (g *Group) Resolve(path string) (Value, error) {
	cur := Value(g)
	for _, part := range strings.Split(path, ".") {
		grp, ok := cur.(*Group)
		if !ok {
			return nil, &PathError{Path: path, Msg: "not a group"}
		}
		cur, ok = grp.Get(part)
		if !ok {
			return nil, &PathError{Path: path, Msg: "no such entry"}
		}
	}
	return cur, nil
}

// Set writes a new value to an existing leaf. The leaf must already exist and
// the new value must carry the leaf's frozen kind; Set never creates entries
// and never re-infers a kind from the incoming value.
func (g *Group) Set(path string, v Value) error {
	parts := strings.Split(path, ".")
	parent := g
	for _, part := range parts[:len(parts)-1] {
		next, ok := parent.Get(part)
		if !ok {
			return &PathError{Path: path, Msg: "no such entry"}
		}
		parent, ok = next.(*Group)
		if !ok {
			return &PathError{Path: path, Msg: "not a group"}
		}
	}
	name := parts[len(parts)-1]
	cur, ok := parent.Get(name)
	if !ok {
		return &PathError{Path: path, Msg: "no such entry"}
	}
	if cur.Kind() == KindGroup {
		return &PathError{Path: path, Msg: "not a leaf"}
	}
	if cur.Kind() != v.Kind() {
		return &PathError{Path: path, Msg: fmt.Sprintf("kind is %s, got %s", cur.Kind(), v.Kind())}
	}
	parent.values[name] = v
	return nil
}

// Leaf is one addressable scalar in the tree, identified by its dotted path.
type Leaf struct {
	Path  string
	Value Value
}

// Leaves flattens the tree depth-first in key order. prefix is prepended to
// every path, so a document-rooted walk passes "options".
func (g *Group) Leaves(prefix string) []Leaf {
	var out []Leaf
	for _, name := range g.keys {
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}
		switch v := g.values[name].(type) {
		case *Group:
			out = append(out, v.Leaves(path)...)
		default:
			out = append(out, Leaf{Path: path, Value: v})
		}
	}
	return out
}

func (g *Group) Clone() *Group {
	out := NewGroup()
	for _, name := range g.keys {
		switch v := g.values[name].(type) {
		case *Group:
			out.Put(name, v.Clone())
		default:
			out.Put(name, v)
		}
	}
	return out
}

// UnmarshalJSON parses a JSON object into a Group, preserving key order and
// fixing each leaf's kind from its JSON type. Arrays and nulls are rejected;
// the device never produces them inside options.
func (g *Group) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("options: expected object, got %v", tok)
	}
	parsed, err := parseGroup(dec)
	if err != nil {
		return err
	}
	*g = *parsed
	return nil
}

func parseGroup(dec *json.Decoder) (*Group, error) {
	g := NewGroup()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		name, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("options: expected key, got %v", tok)
		}
		v, err := parseValue(dec)
		if err != nil {
			return nil, fmt.Errorf("options: entry %q: %w", name, err)
		}
		g.Put(name, v)
	}
	if _, err := dec.Token(); err != nil { // closing brace
		return nil, err
	}
	return g, nil
}

func parseValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		if t == '{' {
			return parseGroup(dec)
		}
		return nil, fmt.Errorf("arrays are not valid option values")
	case bool:
		return Bool(t), nil
	case string:
		return Text(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return nil, err
		}
		return Number(f), nil
	default:
		return nil, fmt.Errorf("null is not a valid option value")
	}
}

// MarshalJSON writes the group back out in insertion order, so an untouched
// document round-trips with the same structure it was loaded with.
func (g *Group) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range g.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		var raw []byte
		switch v := g.values[name].(type) {
		case Bool:
			raw, err = json.Marshal(bool(v))
		case Text:
			raw, err = json.Marshal(string(v))
		case Number:
			raw, err = json.Marshal(float64(v))
		case *Group:
			raw, err = v.MarshalJSON()
		default:
			err = fmt.Errorf("options: entry %q has no kind", name)
		}
		if err != nil {
			return nil, err
		}
		buf.Write(raw)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
