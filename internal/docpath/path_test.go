package docpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type vec [3]float32

type transform struct {
	Position vec `yaml:"position,flow"`
	Scale    vec `yaml:"scale,flow"`
}

type node struct {
	ID        string    `yaml:"id"`
	Transform transform `yaml:"transform"`
	Children  []*node   `yaml:"children"`
	Hidden    bool      `yaml:"-"`
	Label     string
}

type root struct {
	Objects []*node `yaml:"objects"`
}

func TestPathStringAndParse(t *testing.T) {
	p := Root().Field("objects").Index(0).Field("children").Index(12).Field("transform")
	assert.Equal(t, "objects[0].children[12].transform", p.String())

	parsed, err := Parse(p.String())
	require.NoError(t, err)
	assert.True(t, parsed.Equal(p))

	rootPath, err := Parse("$")
	require.NoError(t, err)
	assert.Empty(t, rootPath)
	assert.Equal(t, "$", Root().String())
}

func TestParseRejectsMalformedPaths(t *testing.T) {
	for _, input := range []string{".objects", "objects.", "objects[", "objects[x]", "objects[-1]", "a..b", "a.[0]"} {
		_, err := Parse(input)
		assert.Error(t, err, input)
	}
}

func TestPathBuildersDoNotAlias(t *testing.T) {
	base := Root().Field("objects")
	a := base.Index(0)
	b := base.Index(1)
	assert.Equal(t, "objects[0]", a.String())
	assert.Equal(t, "objects[1]", b.String())

	parent, last, ok := a.Parent()
	require.True(t, ok)
	assert.Equal(t, 0, last.Index)
	extended := parent.Field("other")
	assert.Equal(t, "objects[0]", a.String(), "extending a parent must not clobber the child")
	assert.Equal(t, "objects.other", extended.String())
}

func TestFieldUsesYamlKeys(t *testing.T) {
	assert.Equal(t, "transform", Field[*node, transform]("Transform").String())
	assert.Equal(t, "label", Field[node, string]("Label").String())
	assert.Panics(t, func() { Field[*node, string]("Transform") })
	assert.Panics(t, func() { Field[*node, bool]("Hidden") })
	assert.Panics(t, func() { Field[*node, string]("Missing") })
}

func TestSelectorCompositionMatchesConcat(t *testing.T) {
	objects := Field[root, []*node]("Objects")
	children := Field[*node, []*node]("Children")
	xform := Field[*node, transform]("Transform")
	scale := Field[transform, vec]("Scale")

	direct := Then(Then(Then(Then(objects, At[*node](1)), children), At[*node](0)), Then(xform, scale))
	parent := Then(Then(Then(objects, At[*node](1)), children), At[*node](0))
	relative := Then(xform, scale)

	assert.True(t, Resolve(direct).Equal(Resolve(parent).Concat(Resolve(relative))))
	assert.Equal(t, "objects[1].children[0].transform.scale", direct.String())
}

func TestConcatIsAssociative(t *testing.T) {
	a := Root().Field("objects").Index(2)
	b := Root().Field("children").Index(0)
	c := Root().Field("transform").Field("position")
	left := a.Concat(b).Concat(c)
	right := a.Concat(b.Concat(c))
	assert.True(t, left.Equal(right))
	assert.True(t, left.Equal(a.Concat(b, c)))
	assert.True(t, left.HasPrefix(a))
	assert.False(t, a.HasPrefix(left))
}

func TestIdentityResolvesToRoot(t *testing.T) {
	id := Identity[root]()
	objects := Field[root, []*node]("Objects")
	assert.Empty(t, Resolve(id))
	assert.True(t, Resolve(Then(id, objects)).Equal(Resolve(objects)))
}
