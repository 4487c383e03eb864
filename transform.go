package harbor

import (
	"fmt"
	"reflect"
	"strconv"
	"sync"
)

// Transformer converts a captured path segment into a typed domain value.
// See spec §4.D.
type Transformer interface {
	Transform(input string) (interface{}, error)
}

// TransformerFunc adapts a plain function to the Transformer interface.
type TransformerFunc func(input string) (interface{}, error)

// Transform implements Transformer.
func (f TransformerFunc) Transform(input string) (interface{}, error) {
	return f(input)
}

// TransformerBinding binds a Transformer to one of a pattern's declared
// parameter names, as stored on an endpoint mapping.
type TransformerBinding struct {
	ParamName   string
	Transformer Transformer
	Cacheable   bool
}

// transformerCacheKey identifies one (transformer type, input) pair for the
// dispatch-scoped cache.
type transformerCacheKey struct {
	transformerType reflect.Type
	input           string
}

// TransformerCache memoizes Transformer.Transform results for the lifetime
// of exactly one request or WebSocket message. It must be discarded (or
// cleared) when the dispatch completes; see spec §4.D and §8 property 7.
type TransformerCache struct {
	mu     sync.Mutex
	values map[transformerCacheKey]interface{}
}

// NewTransformerCache returns an empty TransformerCache.
func NewTransformerCache() *TransformerCache {
	return &TransformerCache{values: make(map[transformerCacheKey]interface{})}
}

func (c *TransformerCache) get(key transformerCacheKey) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.values[key]

	return v, ok
}

func (c *TransformerCache) put(key transformerCacheKey, v interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.values[key] = v
}

// RunTransformers runs every binding in bindings against the matching entry
// of captured (keyed by ParamName), returning the typed values keyed by
// param name. If any transformer fails, it returns immediately with a
// TransformerError identifying the first failing parameter; per spec §4.D
// step 3 the caller must then skip the endpoint.
func RunTransformers(
	bindings []TransformerBinding,
	captured map[string]string,
	cache *TransformerCache,
) (map[string]interface{}, *TransformerError) {
	values := make(map[string]interface{}, len(bindings))

	for _, b := range bindings {
		raw, ok := captured[b.ParamName]
		if !ok {
			continue
		}

		if b.Cacheable {
			key := transformerCacheKey{
				transformerType: reflect.TypeOf(b.Transformer),
				input:           raw,
			}

			if v, hit := cache.get(key); hit {
				values[b.ParamName] = v
				continue
			}

			v, err := b.Transformer.Transform(raw)
			if err != nil {
				return nil, &TransformerError{Param: b.ParamName, Err: err}
			}

			cache.put(key, v)
			values[b.ParamName] = v

			continue
		}

		v, err := b.Transformer.Transform(raw)
		if err != nil {
			return nil, &TransformerError{Param: b.ParamName, Err: err}
		}

		values[b.ParamName] = v
	}

	return values, nil
}

// Builtin transformers matching the builtin pattern types (pattern.go).

// IntTransformer parses a captured segment as a base-10 int64.
var IntTransformer = TransformerFunc(func(input string) (interface{}, error) {
	v, err := strconv.ParseInt(input, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("harbor: not an integer: %q", input)
	}

	return v, nil
})

// FloatTransformer parses a captured segment as a float64.
var FloatTransformer = TransformerFunc(func(input string) (interface{}, error) {
	v, err := strconv.ParseFloat(input, 64)
	if err != nil {
		return nil, fmt.Errorf("harbor: not a float: %q", input)
	}

	return v, nil
})

// StringTransformer passes a captured segment through unchanged.
var StringTransformer = TransformerFunc(func(input string) (interface{}, error) {
	return input, nil
})

// BoolTransformer parses a captured segment as a bool ("true"/"false").
var BoolTransformer = TransformerFunc(func(input string) (interface{}, error) {
	switch input {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return nil, fmt.Errorf("harbor: not a bool: %q", input)
	}
})
