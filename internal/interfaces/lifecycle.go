package interfaces

import "context"

// Service is a network server owned by the lifecycle manager.
type Service interface {
	Start() error
	Shutdown(ctx context.Context) error
}

// ConnectionSet lists the live streams this process holds.
type ConnectionSet interface {
	Len() int
	IDs() []string
}
