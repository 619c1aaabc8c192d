// Package agh defines the common lifecycle interfaces long-lived focusd
// components implement, generalized from AdGuard Home's internal service
// interface (internal/dhcpsvc.Interface's embedding of agh.ServiceWithConfig).
package agh

import "context"

// Service is a long-running component with an explicit start and graceful
// shutdown.  No type in this module implements it; cmd/daemon and cmd/agent
// drive their subsystems through kardianos/service's Start/Stop instead.
type Service interface {
	// Start starts the service.  It must not block past the point where the
	// service is ready to serve requests.
	Start(ctx context.Context) (err error)

	// Shutdown gracefully stops the service, waiting for in-flight work to
	// finish or ctx to be canceled, whichever comes first.
	Shutdown(ctx context.Context) (err error)
}

// ServiceWithConfig is a [Service] that also exposes its own configuration,
// generic over the configuration type.
type ServiceWithConfig[ConfigType any] interface {
	Service

	// Config returns the service's current configuration.
	Config() (conf ConfigType)
}
