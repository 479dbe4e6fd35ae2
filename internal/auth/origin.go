package auth

// OriginGuard validates the Origin header of incoming connection
// attempts against a configured allow-list. Stateless after construction.
type OriginGuard struct {
	allowed map[string]struct{}
}

func NewOriginGuard(origins []string) *OriginGuard {
	g := &OriginGuard{}
	if len(origins) == 0 {
		return g
	}
	g.allowed = make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o == "" {
			continue
		}
		g.allowed[o] = struct{}{}
	}
	return g
}

// Allowed reports whether a connection declaring the given origin may
// proceed. An empty allow-list admits everything (development mode).
// Callers must not invoke this for an absent Origin header: non-browser
// clients cannot set one and are always admitted past this check.
func (g *OriginGuard) Allowed(origin string) bool {
	if len(g.allowed) == 0 {
		return true
	}
	_, ok := g.allowed[origin]
	return ok
}
