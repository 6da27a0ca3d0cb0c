package dmcontext

// AncestorOfType returns the nearest context of type T in ctx's ancestry,
// ctx itself included. The ancestry is searched level by level, parents in
// declaration order, so a match at a smaller depth always wins.
func AncestorOfType[T any](ctx Context) (T, bool) {
	var zero T
	if ctx == nil {
		return zero, false
	}
	level := []Context{ctx}
	seen := make(map[string]struct{})
	for len(level) > 0 {
		var next []Context
		for _, c := range level {
			if v, ok := c.(T); ok {
				return v, true
			}
			for _, p := range c.Parents() {
				k := p.Key()
				if _, dup := seen[k]; dup {
					continue
				}
				seen[k] = struct{}{}
				next = append(next, p)
			}
		}
		level = next
	}
	return zero, false
}

// AllAncestorsOfType returns every context of type T in Flatten order,
// without duplicates.
func AllAncestorsOfType[T Context](ctx Context) []T {
	var out []T
	seen := make(map[string]struct{})
	for _, c := range Flatten(ctx) {
		v, ok := c.(T)
		if !ok {
			continue
		}
		k := c.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, v)
	}
	return out
}

// IsAncestorOf reports whether candidate is a strict ancestor of ctx.
func IsAncestorOf(ctx, candidate Context) bool {
	if ctx == nil || candidate == nil {
		return false
	}
	for _, p := range ctx.Parents() {
		if p.Equal(candidate) || IsAncestorOf(p, candidate) {
			return true
		}
	}
	return false
}

// Flatten lists ctx followed by its ancestors, depth first. An ancestor
// reachable through several parents appears once per path.
func Flatten(ctx Context) []Context {
	if ctx == nil {
		return nil
	}
	out := []Context{ctx}
	for _, p := range ctx.Parents() {
		out = append(out, Flatten(p)...)
	}
	return out
}
