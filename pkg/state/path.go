package state

import (
	"fmt"
	"strconv"
	"strings"
)

type keyKind uint8

const (
	keyField keyKind = iota
	keyIndex
)

// Key is a single step in a Path: either a record field name or a list index.
type Key struct {
	kind  keyKind
	field string
	index int
}

// Field returns a Key addressing a record field. Field names must not
// contain the canonical-form delimiters '.', '[' or ']': such a name
// would alias a different path in the string form used for accounting.
// Field panics on them, like MustParsePath on malformed input.
func Field(name string) Key {
	if strings.ContainsAny(name, ".[]") {
		panic("state: field name " + strconv.Quote(name) + " contains a path delimiter")
	}
	return Key{kind: keyField, field: name}
}

// Index returns a Key addressing a list element.
func Index(i int) Key {
	return Key{kind: keyIndex, index: i}
}

// IsIndex reports whether the key addresses a list element.
func (k Key) IsIndex() bool { return k.kind == keyIndex }

// FieldName returns the record field name, or "" for index keys.
func (k Key) FieldName() string { return k.field }

// ListIndex returns the list index, or -1 for field keys.
func (k Key) ListIndex() int {
	if k.kind != keyIndex {
		return -1
	}
	return k.index
}

func (k Key) String() string {
	if k.kind == keyIndex {
		return "[" + strconv.Itoa(k.index) + "]"
	}
	return k.field
}

// Path addresses a node in the state tree as an ordered key sequence
// from the root. The empty Path addresses the root itself.
type Path []Key

// FieldPath builds a Path from a sequence of record field names.
func FieldPath(names ...string) Path {
	p := make(Path, len(names))
	for i, n := range names {
		p[i] = Field(n)
	}
	return p
}

// Child returns a new Path extending p by one key. The receiver is not
// modified; the result does not alias the receiver's backing array.
func (p Path) Child(k Key) Path {
	out := make(Path, len(p)+1)
	copy(out, p)
	out[len(p)] = k
	return out
}

// Equal reports whether two paths address the same node.
func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether prefix addresses p or one of its ancestors.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i := range prefix {
		if p[i] != prefix[i] {
			return false
		}
	}
	return true
}

// String returns the canonical form, e.g. "items[2].name". The root path
// renders as "". The form is unambiguous, and safe as a map key, because
// Field rejects names containing the delimiters.
func (p Path) String() string {
	var sb strings.Builder
	for i, k := range p {
		if k.kind == keyField && i > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString(k.String())
	}
	return sb.String()
}

// ParsePath parses the canonical form produced by Path.String.
// The empty string parses to the root path.
func ParsePath(s string) (Path, error) {
	if s == "" {
		return Path{}, nil
	}
	var p Path
	i := 0
	for i < len(s) {
		switch {
		case s[i] == '.':
			if i == 0 || i == len(s)-1 {
				return nil, fmt.Errorf("state: malformed path %q", s)
			}
			i++
		case s[i] == '[':
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("state: unterminated index in path %q", s)
			}
			idx, err := strconv.Atoi(s[i+1 : i+end])
			if err != nil || idx < 0 {
				return nil, fmt.Errorf("state: bad index in path %q", s)
			}
			p = append(p, Index(idx))
			i += end + 1
		default:
			end := i
			for end < len(s) && s[end] != '.' && s[end] != '[' {
				end++
			}
			p = append(p, Field(s[i:end]))
			i = end
		}
	}
	return p, nil
}

// MustParsePath is like ParsePath but panics on malformed input.
// Intended for fixtures and package-level declarations.
func MustParsePath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}
