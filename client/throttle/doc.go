// Package throttle provides a token-bucket admission [Gate] for outbound
// calls, built on [golang.org/x/time/rate].
//
// # Usage
//
// A dispatcher asks the gate for permission before it starts a call:
//
//	gate, err := throttle.New(
//		10, // calls per second
//		5,  // burst capacity
//		slog.Default(),
//	)
//	if err := gate.Wait(ctx, callID); err != nil {
//		// the call's context ended while it was queued
//	}
//
// When the rate limit is exceeded, Wait blocks until a token becomes
// available or the context is cancelled.
package throttle
