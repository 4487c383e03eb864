package harbor

import (
	"fmt"
	"regexp"
	"strings"
)

// ParamDescriptor describes one dynamic path segment captured by a Pattern,
// in declaration order.
type ParamDescriptor struct {
	Name string
	Type string
}

// Pattern is a compiled path template: a slash-delimited string of literal
// and `{name:type}` dynamic segments. See spec §4.A.
type Pattern struct {
	raw    string
	re     *regexp.Regexp
	params []ParamDescriptor
}

// String returns the original template the Pattern was compiled from.
func (p *Pattern) String() string {
	return p.raw
}

// Params returns the parameter descriptors in declaration order.
func (p *Pattern) Params() []ParamDescriptor {
	return p.params
}

// Match reports whether path matches p and, if so, returns the captured
// segment strings in declaration order.
func (p *Pattern) Match(path string) (captures []string, ok bool) {
	m := p.re.FindStringSubmatch(path)
	if m == nil {
		return nil, false
	}

	return m[1:], true
}

// builtinTypes are the match expressions available to every Compiler without
// configuration.
var builtinTypes = map[string]string{
	"string":  `[^/]+`,
	"integer": `-?\d+`,
	"float":   `-?\d+(?:\.\d+)?`,
	"uuid":    `[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`,
}

// Compiler translates path templates into Patterns. Free-form regex types
// may be registered by name via RegisterType, fulfilling the "regex declared
// in configuration" clause of spec §4.A.
type Compiler struct {
	types map[string]string
}

// NewCompiler returns a Compiler seeded with the builtin types (string,
// integer, float, uuid).
func NewCompiler() *Compiler {
	c := &Compiler{types: make(map[string]string, len(builtinTypes))}
	for name, expr := range builtinTypes {
		c.types[name] = expr
	}

	return c
}

// RegisterType adds or overrides a named match expression that `{name:type}`
// segments may reference.
func (c *Compiler) RegisterType(name, expr string) error {
	if _, err := regexp.Compile(expr); err != nil {
		return fmt.Errorf("harbor: invalid type expression for %q: %w", name, err)
	}

	c.types[name] = expr

	return nil
}

var paramSegmentRE = regexp.MustCompile(`^\{([A-Za-z_][A-Za-z0-9_]*):([A-Za-z_][A-Za-z0-9_]*)\}$`)

// Compile compiles template into a Pattern.
//
// Compilation fails if two parameters share a name, if a referenced type is
// unknown, or if the template is not anchored (does not start with "/").
func (c *Compiler) Compile(template string) (*Pattern, error) {
	if !strings.HasPrefix(template, "/") {
		return nil, fmt.Errorf("harbor: pattern %q is not anchored", template)
	}

	segments := strings.Split(strings.TrimPrefix(template, "/"), "/")

	var (
		reBuilder strings.Builder
		params    []ParamDescriptor
		seen      = make(map[string]bool, len(segments))
	)

	reBuilder.WriteByte('^')

	for _, seg := range segments {
		reBuilder.WriteByte('/')

		if m := paramSegmentRE.FindStringSubmatch(seg); m != nil {
			name, typ := m[1], m[2]

			if seen[name] {
				return nil, fmt.Errorf(
					"harbor: pattern %q declares %q more than once",
					template, name,
				)
			}
			seen[name] = true

			expr, ok := c.types[typ]
			if !ok {
				return nil, fmt.Errorf(
					"harbor: pattern %q references unknown type %q",
					template, typ,
				)
			}

			reBuilder.WriteString("(" + expr + ")")
			params = append(params, ParamDescriptor{Name: name, Type: typ})

			continue
		}

		if strings.Contains(seg, "{") || strings.Contains(seg, "}") {
			return nil, fmt.Errorf(
				"harbor: pattern %q has a malformed dynamic segment %q",
				template, seg,
			)
		}

		reBuilder.WriteString("(?i:" + regexp.QuoteMeta(seg) + ")")
	}

	reBuilder.WriteByte('$')

	re, err := regexp.Compile(reBuilder.String())
	if err != nil {
		return nil, fmt.Errorf("harbor: failed to compile pattern %q: %w", template, err)
	}

	return &Pattern{raw: template, re: re, params: params}, nil
}
