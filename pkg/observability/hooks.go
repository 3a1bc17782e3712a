// Package observability provides hooks for metrics, tracing, and logging.
//
// This package enables optional instrumentation without adding hard dependencies
// on specific observability backends. Consumers register hooks at startup to
// receive events about captcha production, challenge storage and HTTP traffic.
//
// # Architecture
//
// The package uses a simple hooks pattern:
//   - Define hook interfaces for different event categories
//   - Provide no-op default implementations
//   - Allow registration of custom implementations at startup
//
// Hooks are registered by main, not by libraries, so the engine and the
// stores never import a metrics backend.
//
// # Usage
//
// Register hooks at application startup:
//
//	func main() {
//	    observability.SetCaptchaHooks(&myCaptchaHooks{})
//	    observability.SetStoreHooks(&myStoreHooks{})
//	    // ... run application
//	}
//
// Libraries call hooks to emit events:
//
//	observability.Captcha().OnProduceStart(ctx)
//	// ... synthesize ...
//	observability.Captcha().OnProduceComplete(ctx, duration, err)
package observability

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Captcha Hooks
// =============================================================================

// CaptchaHooks receives events from the image synthesis pipeline.
type CaptchaHooks interface {
	OnProduceStart(ctx context.Context)
	// OnStageComplete fires after each pipeline stage (word, background,
	// text, filter, encode).
	OnStageComplete(ctx context.Context, stage string, duration time.Duration, err error)
	OnProduceComplete(ctx context.Context, duration time.Duration, err error)
}

// =============================================================================
// Store Hooks
// =============================================================================

// StoreHooks receives events from challenge store operations.
type StoreHooks interface {
	// OnChallengeHit records a successful lookup.
	OnChallengeHit(ctx context.Context, backend string)

	// OnChallengeMiss records a lookup for an unknown or expired id.
	OnChallengeMiss(ctx context.Context, backend string)

	// OnChallengeSet records a stored challenge.
	OnChallengeSet(ctx context.Context, backend string)
}

// =============================================================================
// HTTP Hooks
// =============================================================================

// HTTPHooks receives events from the HTTP server.
type HTTPHooks interface {
	// OnRequest records an incoming request.
	OnRequest(ctx context.Context, method, path string)

	// OnResponse records the response sent for a request.
	OnResponse(ctx context.Context, method, path string, statusCode int, duration time.Duration)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopCaptchaHooks is a no-op implementation of CaptchaHooks.
type NoopCaptchaHooks struct{}

func (NoopCaptchaHooks) OnProduceStart(context.Context)                                {}
func (NoopCaptchaHooks) OnStageComplete(context.Context, string, time.Duration, error) {}
func (NoopCaptchaHooks) OnProduceComplete(context.Context, time.Duration, error)       {}

// NoopStoreHooks is a no-op implementation of StoreHooks.
type NoopStoreHooks struct{}

func (NoopStoreHooks) OnChallengeHit(context.Context, string)  {}
func (NoopStoreHooks) OnChallengeMiss(context.Context, string) {}
func (NoopStoreHooks) OnChallengeSet(context.Context, string)  {}

// NoopHTTPHooks is a no-op implementation of HTTPHooks.
type NoopHTTPHooks struct{}

func (NoopHTTPHooks) OnRequest(context.Context, string, string)                      {}
func (NoopHTTPHooks) OnResponse(context.Context, string, string, int, time.Duration) {}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	captchaHooks CaptchaHooks = NoopCaptchaHooks{}
	storeHooks   StoreHooks   = NoopStoreHooks{}
	httpHooks    HTTPHooks    = NoopHTTPHooks{}
	hooksMu      sync.RWMutex
)

// SetCaptchaHooks registers custom captcha hooks.
// This should be called once at application startup before any captcha is produced.
func SetCaptchaHooks(h CaptchaHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		captchaHooks = h
	}
}

// SetStoreHooks registers custom store hooks.
func SetStoreHooks(h StoreHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		storeHooks = h
	}
}

// SetHTTPHooks registers custom HTTP hooks.
func SetHTTPHooks(h HTTPHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		httpHooks = h
	}
}

// Captcha returns the registered captcha hooks.
func Captcha() CaptchaHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return captchaHooks
}

// Store returns the registered store hooks.
func Store() StoreHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return storeHooks
}

// HTTP returns the registered HTTP hooks.
func HTTP() HTTPHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return httpHooks
}

// Reset restores all hooks to their no-op defaults.
// This is primarily useful for testing.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	captchaHooks = NoopCaptchaHooks{}
	storeHooks = NoopStoreHooks{}
	httpHooks = NoopHTTPHooks{}
}
