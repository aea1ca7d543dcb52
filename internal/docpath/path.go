package docpath

import (
	"fmt"
	"strconv"
	"strings"
)

// Step is one hop from a node to a child: either a mapping key or a
// sequence index.
type Step struct {
	Key     string
	Index   int
	isIndex bool
}

// KeyStep addresses a field of a mapping.
func KeyStep(key string) Step {
	return Step{Key: key}
}

// IndexStep addresses an element of a sequence.
func IndexStep(index int) Step {
	return Step{Index: index, isIndex: true}
}

// IsIndex reports whether the step addresses a sequence element.
func (s Step) IsIndex() bool {
	return s.isIndex
}

func (s Step) String() string {
	if s.isIndex {
		return "[" + strconv.Itoa(s.Index) + "]"
	}
	return s.Key
}

// Path is an ordered list of steps from a document root to a target value.
// The zero value addresses the root itself.
type Path []Step

// Root returns the empty path.
func Root() Path {
	return nil
}

// New builds a path from steps.
func New(steps ...Step) Path {
	return append(Path(nil), steps...)
}

// Field returns a copy of p extended by a key step.
func (p Path) Field(key string) Path {
	return p.append(KeyStep(key))
}

// Index returns a copy of p extended by an index step.
func (p Path) Index(i int) Path {
	return p.append(IndexStep(i))
}

// Concat returns p followed by every step of others. The receiver is never
// modified, so Concat is safe to call on shared prefixes.
func (p Path) Concat(others ...Path) Path {
	size := len(p)
	for _, o := range others {
		size += len(o)
	}
	out := make(Path, 0, size)
	out = append(out, p...)
	for _, o := range others {
		out = append(out, o...)
	}
	return out
}

// Parent splits off the final step. ok is false for the root path.
func (p Path) Parent() (parent Path, last Step, ok bool) {
	if len(p) == 0 {
		return nil, Step{}, false
	}
	return p[:len(p)-1:len(p)-1], p[len(p)-1], true
}

// Equal reports whether both paths contain the same steps.
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
	return p[:len(prefix)].Equal(prefix)
}

// String renders the path as `objects[0].children[2].transform`.
func (p Path) String() string {
	if len(p) == 0 {
		return "$"
	}
	var b strings.Builder
	for i, step := range p {
		if !step.isIndex && i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(step.String())
	}
	return b.String()
}

func (p Path) append(step Step) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, step)
}

// Parse reverses String. "$" and "" both denote the root.
func Parse(s string) (Path, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "$" {
		return Root(), nil
	}
	var out Path
	i := 0
	for i < len(s) {
		switch s[i] {
		case '.':
			if i == 0 || i == len(s)-1 || s[i+1] == '.' || s[i+1] == '[' {
				return nil, fmt.Errorf("docpath: unexpected '.' at %d in %q", i, s)
			}
			i++
		case '[':
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("docpath: unterminated index in %q", s)
			}
			n, err := strconv.Atoi(s[i+1 : i+end])
			if err != nil || n < 0 {
				return nil, fmt.Errorf("docpath: invalid index %q in %q", s[i+1:i+end], s)
			}
			out = append(out, IndexStep(n))
			i += end + 1
		default:
			end := strings.IndexAny(s[i:], ".[")
			if end < 0 {
				end = len(s) - i
			}
			out = append(out, KeyStep(s[i:i+end]))
			i += end
		}
	}
	return out, nil
}
