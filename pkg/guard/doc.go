// Package guard runs backend operations on behalf of a short-lived owner
// (a screen, a session, a request) so that they are retried up to a bound,
// aborted past a timeout, and never delivered into an owner that has
// already been torn down.
//
// An owner is modelled as a Scope. Every guarded invocation derives a
// cancellation token from the scope; closing the scope cancels all of them
// and flips the scope's liveness flag exactly once.
//
//	scope := guard.NewScope(ctx, "dashboard")
//	defer scope.Close()
//
//	g := guard.New(scope, guard.WithNotifier(toasts))
//	res := guard.Run(ctx, g, guard.DefaultPolicy("bookings.list"), listBookings,
//		guard.WithFallback[[]Booking](nil))
//	if res.Ok() {
//		bookings.Set(res.Value)
//	}
//
// Failures never escape Run. They are visible through the tagged Result,
// the optional OnError callback, a single localized notification and the
// diagnostic sink.
package guard
