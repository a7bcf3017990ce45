/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package service

// Unit is a component of the service with its own lifecycle.
type Unit interface {
	// Start runs the unit. It may return right after initialization or block for the unit's lifetime.
	//
	// A successful Start never writes into fatalErr, and the channel is not used after Start returns.
	// Stop may be called whether Start succeeded, failed or is still running.
	Start(fatalErr chan<- error)

	// Stop halts the unit, trying a clean shutdown when gracefully is true.
	// It may be called even if Start failed or was never called.
	Stop(gracefully bool) error
}

// MetricsRegisterer is implemented by units that own Prometheus collectors.
type MetricsRegisterer interface {
	MustRegisterMetrics()
	UnregisterMetrics()
}
