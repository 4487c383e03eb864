package harbor

// RouteOption configures one registration call to GET/POST/.../WebSocket.
// See spec §4.B-§4.D for the fields a mapping carries.
type RouteOption func(*routeConfig)

type routeConfig struct {
	domains          []string
	requiredHeaders  []string
	priority         Priority
	httpRequirements []HTTPRequirement
	wsRequirements   []WebSocketRequirement
	transformers     []TransformerBinding
}

func newRouteConfig(opts []RouteOption) *routeConfig {
	cfg := &routeConfig{priority: PriorityNormal}
	for _, o := range opts {
		o(cfg)
	}

	return cfg
}

// WithDomains restricts the route to the given Host values.
func WithDomains(domains ...string) RouteOption {
	return func(c *routeConfig) {
		c.domains = append(c.domains, domains...)
	}
}

// WithRequiredHeader requires name to be present (regardless of value) for
// the registry's own admission filter, before any HTTPRequirement runs.
func WithRequiredHeader(name string) RouteOption {
	return func(c *routeConfig) {
		c.requiredHeaders = append(c.requiredHeaders, name)
	}
}

// WithPriority sets the route's evaluation bucket. The default is
// PriorityNormal.
func WithPriority(p Priority) RouteOption {
	return func(c *routeConfig) {
		c.priority = p
	}
}

// WithHTTPRequirement attaches an HTTPRequirement evaluated after pattern
// matching.
func WithHTTPRequirement(r HTTPRequirement) RouteOption {
	return func(c *routeConfig) {
		c.httpRequirements = append(c.httpRequirements, r)
	}
}

// WithWSRequirement attaches a WebSocketRequirement evaluated after pattern
// matching.
func WithWSRequirement(r WebSocketRequirement) RouteOption {
	return func(c *routeConfig) {
		c.wsRequirements = append(c.wsRequirements, r)
	}
}

// WithTransformer binds a Transformer to one of the pattern's captured
// parameter names.
func WithTransformer(paramName string, t Transformer, cacheable bool) RouteOption {
	return func(c *routeConfig) {
		c.transformers = append(c.transformers, TransformerBinding{
			ParamName:   paramName,
			Transformer: t,
			Cacheable:   cacheable,
		})
	}
}
