package platform

import "sync"

// Router classifies URLs by checking platform policies in registration
// order. Platform specific policies must be registered before Direct.
type Router struct {
	mu       sync.RWMutex
	policies []*Policy
	byName   map[Platform]*Policy
}

// NewRouter creates an empty router
func NewRouter() *Router {
	return &Router{
		policies: make([]*Policy, 0),
		byName:   make(map[Platform]*Policy),
	}
}

// Register appends a policy to the match order.
func (r *Router) Register(p *Policy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policies = append(r.policies, p)
	r.byName[p.Platform] = p
}

// Classify returns the platform for rawURL, or Unknown when the URL is not
// an absolute http(s) URL or matches no policy.
func (r *Router) Classify(rawURL string) Platform {
	if p := r.Match(rawURL); p != nil {
		return p.Platform
	}
	return Unknown
}

// Match returns the first policy whose patterns match rawURL.
func (r *Router) Match(rawURL string) *Policy {
	u, ok := ValidURL(rawURL)
	if !ok {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.policies {
		if p.Matches(u) {
			return p
		}
	}
	return nil
}

// Policy returns the registered policy for a platform.
func (r *Router) Policy(p Platform) (*Policy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pol, ok := r.byName[p]
	return pol, ok
}

// Supported returns all registered platforms in match order.
func (r *Router) Supported() []Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Platform, 0, len(r.policies))
	for _, p := range r.policies {
		out = append(out, p.Platform)
	}
	return out
}

// DefaultRouter creates a router with every built-in platform, direct last.
func DefaultRouter() *Router {
	r := NewRouter()
	r.Register(YouTubePolicy())
	r.Register(FacebookPolicy())
	r.Register(InstagramPolicy())
	r.Register(TikTokPolicy())
	r.Register(TwitterPolicy())
	r.Register(DirectPolicy())
	return r
}
