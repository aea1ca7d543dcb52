package document

import (
	"bytes"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/kingrea/pzedit/internal/docpath"
)

// ErrPathNotFound is returned when a path does not match the document shape.
var ErrPathNotFound = errors.New("document: path not found")

// Options tune a single Mutate call.
type Options struct {
	// ArrayInsertion inserts a new sequence element at the final index
	// instead of overwriting the element that is there.
	ArrayInsertion bool

	// CreateKey lets a write add the final key to an existing mapping when
	// it is missing. Without it a missing key is ErrPathNotFound.
	CreateKey bool
}

// Document is a parsed, comment-preserving YAML document. Edits touch only
// the addressed node; every other node keeps its comments and styles.
type Document struct {
	root     *yaml.Node
	revision int
}

// Parse reads a document. Empty input yields an empty mapping.
func Parse(data []byte) (*Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("document: parse: %w", err)
	}
	if root.Kind == 0 || len(root.Content) == 0 {
		root = yaml.Node{
			Kind:    yaml.DocumentNode,
			Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}},
		}
	}
	if root.Kind != yaml.DocumentNode {
		return nil, fmt.Errorf("document: parse: unexpected root kind %d", root.Kind)
	}
	return &Document{root: &root}, nil
}

// New encodes value as a fresh document.
func New(value any) (*Document, error) {
	node, err := toNode(value)
	if err != nil {
		return nil, err
	}
	return &Document{root: &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{node}}}, nil
}

// Bytes serializes the document with two-space indentation.
func (d *Document) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d.root); err != nil {
		return nil, fmt.Errorf("document: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("document: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Revision counts successful writes (Mutate and Delete) since parsing.
func (d *Document) Revision() int {
	return d.revision
}

// Get returns the live node at path.
func (d *Document) Get(path docpath.Path) (*yaml.Node, error) {
	return d.lookup(path)
}

// Has reports whether path addresses an existing node.
func (d *Document) Has(path docpath.Path) bool {
	_, err := d.lookup(path)
	return err == nil
}

// Len returns the number of elements of the sequence at path.
func (d *Document) Len(path docpath.Path) (int, error) {
	node, err := d.lookup(path)
	if err != nil {
		return 0, err
	}
	if node.Kind != yaml.SequenceNode {
		return 0, fmt.Errorf("document: %s is not a sequence: %w", path, ErrPathNotFound)
	}
	return len(node.Content), nil
}

// Decode unmarshals the node at path into out.
func (d *Document) Decode(path docpath.Path, out any) error {
	node, err := d.lookup(path)
	if err != nil {
		return err
	}
	if err := node.Decode(out); err != nil {
		return fmt.Errorf("document: decode %s: %w", path, err)
	}
	return nil
}

// Mutate writes value at path. A *yaml.Node value is inserted as is; any
// other value is encoded first. Intermediate steps must exist. A missing
// final key is appended only with opts.CreateKey; a missing final index is
// an error unless opts.ArrayInsertion is set.
func (d *Document) Mutate(path docpath.Path, value any, opts Options) error {
	node, err := toNode(value)
	if err != nil {
		return err
	}
	parentPath, last, ok := path.Parent()
	if !ok {
		if opts.ArrayInsertion {
			return fmt.Errorf("document: insert at root: %w", ErrPathNotFound)
		}
		adoptPresentation(node, d.root.Content[0])
		d.root.Content[0] = node
		d.revision++
		return nil
	}
	parent, err := d.lookup(parentPath)
	if err != nil {
		return err
	}
	if opts.ArrayInsertion {
		if err := insert(parent, last, node); err != nil {
			return fmt.Errorf("document: insert %s: %w", path, err)
		}
		d.revision++
		return nil
	}
	if err := replace(parent, last, node, opts.CreateKey); err != nil {
		return fmt.Errorf("document: write %s: %w", path, err)
	}
	d.revision++
	return nil
}

// Delete removes the node at path from its parent mapping or sequence.
func (d *Document) Delete(path docpath.Path) error {
	parentPath, last, ok := path.Parent()
	if !ok {
		return fmt.Errorf("document: delete root: %w", ErrPathNotFound)
	}
	parent, err := d.lookup(parentPath)
	if err != nil {
		return err
	}
	if last.IsIndex() {
		if parent.Kind != yaml.SequenceNode || last.Index < 0 || last.Index >= len(parent.Content) {
			return fmt.Errorf("document: delete %s: %w", path, ErrPathNotFound)
		}
		parent.Content = append(parent.Content[:last.Index], parent.Content[last.Index+1:]...)
		d.revision++
		return nil
	}
	if parent.Kind != yaml.MappingNode {
		return fmt.Errorf("document: delete %s: %w", path, ErrPathNotFound)
	}
	i := keyIndex(parent, last.Key)
	if i < 0 {
		return fmt.Errorf("document: delete %s: %w", path, ErrPathNotFound)
	}
	parent.Content = append(parent.Content[:i], parent.Content[i+2:]...)
	d.revision++
	return nil
}

func (d *Document) lookup(path docpath.Path) (*yaml.Node, error) {
	node := d.root.Content[0]
	for i, step := range path {
		node = deref(node)
		next, ok := child(node, step)
		if !ok {
			return nil, fmt.Errorf("document: %s (at %s): %w", path, path[:i+1], ErrPathNotFound)
		}
		node = next
	}
	return deref(node), nil
}

func child(node *yaml.Node, step docpath.Step) (*yaml.Node, bool) {
	if step.IsIndex() {
		if node.Kind != yaml.SequenceNode || step.Index < 0 || step.Index >= len(node.Content) {
			return nil, false
		}
		return node.Content[step.Index], true
	}
	if node.Kind != yaml.MappingNode {
		return nil, false
	}
	i := keyIndex(node, step.Key)
	if i < 0 {
		return nil, false
	}
	return node.Content[i+1], true
}

func insert(parent *yaml.Node, last docpath.Step, node *yaml.Node) error {
	if !last.IsIndex() || parent.Kind != yaml.SequenceNode {
		return ErrPathNotFound
	}
	if last.Index < 0 || last.Index > len(parent.Content) {
		return ErrPathNotFound
	}
	if node.Kind == yaml.MappingNode {
		parent.Style &^= yaml.FlowStyle
	}
	parent.Content = append(parent.Content, nil)
	copy(parent.Content[last.Index+1:], parent.Content[last.Index:])
	parent.Content[last.Index] = node
	return nil
}

func replace(parent *yaml.Node, last docpath.Step, node *yaml.Node, create bool) error {
	if last.IsIndex() {
		if parent.Kind != yaml.SequenceNode || last.Index < 0 || last.Index >= len(parent.Content) {
			return ErrPathNotFound
		}
		adoptPresentation(node, parent.Content[last.Index])
		parent.Content[last.Index] = node
		return nil
	}
	if parent.Kind != yaml.MappingNode {
		return ErrPathNotFound
	}
	i := keyIndex(parent, last.Key)
	if i < 0 {
		if !create {
			return ErrPathNotFound
		}
		key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: last.Key}
		parent.Content = append(parent.Content, key, node)
		return nil
	}
	adoptPresentation(node, parent.Content[i+1])
	parent.Content[i+1] = node
	return nil
}

// adoptPresentation carries the comments and collection style of old over
// to its replacement.
func adoptPresentation(node, old *yaml.Node) {
	if node.HeadComment == "" {
		node.HeadComment = old.HeadComment
	}
	if node.LineComment == "" {
		node.LineComment = old.LineComment
	}
	if node.FootComment == "" {
		node.FootComment = old.FootComment
	}
	if node.Kind != old.Kind {
		return
	}
	switch node.Kind {
	case yaml.MappingNode, yaml.SequenceNode:
		node.Style |= old.Style & yaml.FlowStyle
	case yaml.ScalarNode:
		if node.Tag == old.Tag && node.Tag == "!!str" {
			node.Style |= old.Style & (yaml.DoubleQuotedStyle | yaml.SingleQuotedStyle)
		}
	}
}

func keyIndex(mapping *yaml.Node, key string) int {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return i
		}
	}
	return -1
}

func deref(node *yaml.Node) *yaml.Node {
	for node.Kind == yaml.AliasNode && node.Alias != nil {
		node = node.Alias
	}
	return node
}

func toNode(value any) (*yaml.Node, error) {
	if node, ok := value.(*yaml.Node); ok {
		if node.Kind == yaml.DocumentNode && len(node.Content) == 1 {
			return node.Content[0], nil
		}
		return node, nil
	}
	var node yaml.Node
	if err := node.Encode(value); err != nil {
		return nil, fmt.Errorf("document: encode value: %w", err)
	}
	return &node, nil
}
