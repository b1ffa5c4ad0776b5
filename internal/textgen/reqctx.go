package textgen

import (
	"strings"

	"github.com/google/uuid"

	"omnid/internal/engine"
	"omnid/internal/promptcache"
)

// RequestContext is the state private to one in-flight request: its prompt
// cache, its reasoning configuration and usage bookkeeping. It is created
// per request, passed explicitly down the call graph and closed when the
// request ends. The model it points to is shared; the cache is not.
type RequestContext struct {
	ID        string
	Model     engine.Model
	Cache     *promptcache.PromptCache
	Reasoning ReasoningExtractor
	// CachedTokens is the prompt prefix reused from Cache, recorded when
	// generation completes.
	CachedTokens int

	pool   *promptcache.Pool
	failed bool
	closed bool
}

// NewRequestContext binds a request to a model and the model's cache pool.
// pool may be nil, in which case the cache lives only for this request.
func NewRequestContext(m engine.Model, pool *promptcache.Pool) *RequestContext {
	return &RequestContext{
		ID:    "chatcmpl-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:10],
		Model: m,
		pool:  pool,
	}
}

// checkout takes the cache best matching prompt from the pool.
func (rc *RequestContext) checkout(prompt []engine.Token) *promptcache.PromptCache {
	if rc.Cache == nil {
		if rc.pool != nil {
			rc.Cache = rc.pool.Get(prompt)
		} else {
			rc.Cache = promptcache.New()
		}
	}
	return rc.Cache
}

// fail marks the cache state untrustworthy so Close discards it.
func (rc *RequestContext) fail() { rc.failed = true }

// Close hands the cache back to the pool, or discards it after a failure.
// It is safe to call more than once.
func (rc *RequestContext) Close() {
	if rc.closed {
		return
	}
	rc.closed = true
	if rc.Cache == nil {
		return
	}
	switch {
	case rc.failed || rc.pool == nil:
		if rc.pool != nil {
			rc.pool.Discard(rc.Cache)
		} else {
			_ = rc.Cache.Close()
		}
	default:
		rc.pool.Put(rc.Cache)
	}
	rc.Cache = nil
}
