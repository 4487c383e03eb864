package harbor

import "net/http"

// Group is a sub-router that prepends a path prefix and a set of shared
// requirements to every route registered through it, while still
// registering into the same parent Harbor. See spec §4's supplemented
// "Group registration sugar" feature, adapted from the teacher's own
// Group.
type Group struct {
	h            *Harbor
	prefix       string
	requirements []HTTPRequirement
}

func (g *Group) withGroupRequirements(opts []RouteOption) []RouteOption {
	out := make([]RouteOption, 0, len(opts)+len(g.requirements))
	for _, r := range g.requirements {
		out = append(out, WithHTTPRequirement(r))
	}

	return append(out, opts...)
}

func (g *Group) register(method, path string, handler HTTPHandler, opts ...RouteOption) (RouteHandle, error) {
	return g.h.registerMethod(method, g.prefix+path, handler, g.withGroupRequirements(opts)...)
}

// GET registers a GET endpoint at prefix+path.
func (g *Group) GET(path string, handler HTTPHandler, opts ...RouteOption) (RouteHandle, error) {
	return g.register(http.MethodGet, path, handler, opts...)
}

// POST registers a POST endpoint at prefix+path.
func (g *Group) POST(path string, handler HTTPHandler, opts ...RouteOption) (RouteHandle, error) {
	return g.register(http.MethodPost, path, handler, opts...)
}

// PUT registers a PUT endpoint at prefix+path.
func (g *Group) PUT(path string, handler HTTPHandler, opts ...RouteOption) (RouteHandle, error) {
	return g.register(http.MethodPut, path, handler, opts...)
}

// PATCH registers a PATCH endpoint at prefix+path.
func (g *Group) PATCH(path string, handler HTTPHandler, opts ...RouteOption) (RouteHandle, error) {
	return g.register(http.MethodPatch, path, handler, opts...)
}

// DELETE registers a DELETE endpoint at prefix+path.
func (g *Group) DELETE(path string, handler HTTPHandler, opts ...RouteOption) (RouteHandle, error) {
	return g.register(http.MethodDelete, path, handler, opts...)
}

// Group returns a nested sub-group whose prefix is this group's prefix
// plus prefix, and whose requirements are this group's requirements plus
// requirements.
func (g *Group) Group(prefix string, requirements ...HTTPRequirement) *Group {
	combined := make([]HTTPRequirement, 0, len(g.requirements)+len(requirements))
	combined = append(combined, g.requirements...)
	combined = append(combined, requirements...)

	return &Group{h: g.h, prefix: g.prefix + prefix, requirements: combined}
}

// Static registers prefix+p as a share mapping rooted at root, inheriting
// the group's own prefix.
func (g *Group) Static(p, root, index string) RouteHandle {
	return g.h.Static(g.prefix+p, root, index)
}
