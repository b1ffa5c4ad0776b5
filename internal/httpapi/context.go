package httpapi

import (
	"context"
)

// serverBaseCtx is a process-level context that can be canceled on shutdown.
// Defaults to Background if not set.
var serverBaseCtx = context.Background()

// SetBaseContext sets the process-level base context used by handlers.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		serverBaseCtx = context.Background()
		return
	}
	serverBaseCtx = ctx
}

// workContext derives the context a handler runs generation or
// transcription under: canceled by the client, by shutdown, or after the
// configured request timeout. The returned cancel must always be called.
func workContext(req context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(req)
	stop := context.AfterFunc(serverBaseCtx, cancel)
	if requestTimeout > 0 {
		tctx, tcancel := context.WithTimeout(ctx, requestTimeout)
		return tctx, func() { tcancel(); stop(); cancel() }
	}
	return ctx, func() { stop(); cancel() }
}

// aborted reports whether the client went away or the server is shutting down.
func aborted(req context.Context) bool {
	return req.Err() != nil || serverBaseCtx.Err() != nil
}
