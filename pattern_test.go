package harbor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompilerBuiltinTypes(t *testing.T) {
	c := NewCompiler()

	p, err := c.Compile("/users/{id:integer}/posts/{slug:string}")
	require.NoError(t, err)

	captures, ok := p.Match("/users/42/posts/hello-world")
	require.True(t, ok)
	assert.Equal(t, []string{"42", "hello-world"}, captures)

	_, ok = p.Match("/users/not-a-number/posts/hello-world")
	assert.False(t, ok)

	assert.Equal(t, []ParamDescriptor{
		{Name: "id", Type: "integer"},
		{Name: "slug", Type: "string"},
	}, p.Params())
}

func TestCompilerUUIDAndFloat(t *testing.T) {
	c := NewCompiler()

	p, err := c.Compile("/widgets/{id:uuid}/weight/{w:float}")
	require.NoError(t, err)

	captures, ok := p.Match("/widgets/123e4567-e89b-12d3-a456-426614174000/weight/-3.5")
	require.True(t, ok)
	assert.Equal(t, []string{"123e4567-e89b-12d3-a456-426614174000", "-3.5"}, captures)
}

func TestCompilerRejectsUnanchoredTemplate(t *testing.T) {
	c := NewCompiler()

	_, err := c.Compile("users/{id:integer}")
	assert.Error(t, err)
}

func TestCompilerRejectsDuplicateParamName(t *testing.T) {
	c := NewCompiler()

	_, err := c.Compile("/a/{id:integer}/b/{id:string}")
	assert.Error(t, err)
}

func TestCompilerRejectsUnknownType(t *testing.T) {
	c := NewCompiler()

	_, err := c.Compile("/a/{id:nonexistent}")
	assert.Error(t, err)
}

func TestCompilerRegisterType(t *testing.T) {
	c := NewCompiler()

	require.NoError(t, c.RegisterType("slug", `[a-z0-9-]+`))

	p, err := c.Compile("/posts/{slug:slug}")
	require.NoError(t, err)

	_, ok := p.Match("/posts/Hello-World")
	assert.False(t, ok)

	_, ok = p.Match("/posts/hello-world")
	assert.True(t, ok)
}

func TestCompilerLiteralSegmentsCaseInsensitive(t *testing.T) {
	c := NewCompiler()

	p, err := c.Compile("/Status")
	require.NoError(t, err)

	_, ok := p.Match("/status")
	assert.True(t, ok)
}

func TestCompilerRejectsMalformedDynamicSegment(t *testing.T) {
	c := NewCompiler()

	_, err := c.Compile("/a/{oops")
	assert.Error(t, err)
}
