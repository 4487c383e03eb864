package harbor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinTransformers(t *testing.T) {
	v, err := IntTransformer.Transform("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	_, err = IntTransformer.Transform("nope")
	assert.Error(t, err)

	v, err = FloatTransformer.Transform("3.5")
	require.NoError(t, err)
	assert.Equal(t, 3.5, v)

	v, err = BoolTransformer.Transform("true")
	require.NoError(t, err)
	assert.Equal(t, true, v)

	_, err = BoolTransformer.Transform("yes")
	assert.Error(t, err)

	v, err = StringTransformer.Transform("raw")
	require.NoError(t, err)
	assert.Equal(t, "raw", v)
}

func TestRunTransformersReturnsTypedValuesByParamName(t *testing.T) {
	bindings := []TransformerBinding{
		{ParamName: "id", Transformer: IntTransformer, Cacheable: true},
		{ParamName: "slug", Transformer: StringTransformer},
	}

	cache := NewTransformerCache()
	values, err := RunTransformers(bindings, map[string]string{"id": "7", "slug": "hi"}, cache)
	require.Nil(t, err)
	assert.Equal(t, int64(7), values["id"])
	assert.Equal(t, "hi", values["slug"])
}

func TestRunTransformersStopsOnFirstFailure(t *testing.T) {
	bindings := []TransformerBinding{
		{ParamName: "id", Transformer: IntTransformer},
	}

	cache := NewTransformerCache()
	_, tErr := RunTransformers(bindings, map[string]string{"id": "nope"}, cache)
	require.NotNil(t, tErr)
	assert.Equal(t, "id", tErr.Param)

	var asErr error = tErr
	assert.True(t, errors.As(asErr, new(*TransformerError)))
}

type countingTransformer struct {
	calls *int
}

func (c countingTransformer) Transform(input string) (interface{}, error) {
	*c.calls++
	return input, nil
}

func TestRunTransformersCachesCacheableBindingsPerInput(t *testing.T) {
	calls := 0
	binding := TransformerBinding{
		ParamName:   "id",
		Transformer: countingTransformer{calls: &calls},
		Cacheable:   true,
	}

	cache := NewTransformerCache()

	_, err := RunTransformers([]TransformerBinding{binding}, map[string]string{"id": "x"}, cache)
	require.Nil(t, err)

	_, err = RunTransformers([]TransformerBinding{binding}, map[string]string{"id": "x"}, cache)
	require.Nil(t, err)

	assert.Equal(t, 1, calls, "second run with the same input should hit the cache")
}

func TestRunTransformersDoesNotCacheNonCacheableBindings(t *testing.T) {
	calls := 0
	binding := TransformerBinding{
		ParamName:   "id",
		Transformer: countingTransformer{calls: &calls},
		Cacheable:   false,
	}

	cache := NewTransformerCache()

	_, _ = RunTransformers([]TransformerBinding{binding}, map[string]string{"id": "x"}, cache)
	_, _ = RunTransformers([]TransformerBinding{binding}, map[string]string{"id": "x"}, cache)

	assert.Equal(t, 2, calls)
}
