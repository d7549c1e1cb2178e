package dockerapi

import (
	"context"
	"io"
)

// Image models a locally stored image.
type Image struct {
	ID   string
	Tags []string
}

// Container models a container known to the runtime, running or not.
type Container struct {
	ID     string
	Name   string
	Image  string
	State  string // created|running|paused|exited|dead
	Labels map[string]string
}

// Network models a runtime network.
type Network struct {
	Name   string
	Driver string
}

// Volume models a named runtime volume.
type Volume struct {
	Name       string
	Driver     string
	Mountpoint string
}

// ServiceState is the runtime's view of a single service container.
type ServiceState struct {
	Exists  bool
	Running bool
	Health  string // healthy|unhealthy|starting, empty when no healthcheck is defined
}

// Client is a narrow interface over the container runtime used by the
// migration pipeline. Keep it small and focused on what we actually need
// so it stays mockable.
type Client interface {
	Ping(ctx context.Context) error

	ListImages(ctx context.Context) ([]Image, error)
	ListContainers(ctx context.Context) ([]Container, error)
	ListNetworks(ctx context.Context) ([]Network, error)
	ListVolumes(ctx context.Context) ([]Volume, error)

	PullImage(ctx context.Context, ref string) error
	SaveImage(ctx context.Context, refs []string, w io.Writer) error
	LoadImage(ctx context.Context, r io.Reader) error

	ExportContainer(ctx context.Context, name string, w io.Writer) error

	ExportVolume(ctx context.Context, name string, w io.Writer) error
	ImportVolume(ctx context.Context, name string, r io.Reader) error

	CreateNetwork(ctx context.Context, name, driver string) error
	CreateVolume(ctx context.Context, name string) error

	// ComposeUp starts the services declared in composeFile, equivalent to
	// `docker compose -f composeFile up -d` run from workDir.
	ComposeUp(ctx context.Context, composeFile, workDir string) error

	// ServiceStatus reports the state of the container backing a service,
	// looked up by container name. A missing container is not an error;
	// it is reported as ServiceState{Exists: false}.
	ServiceStatus(ctx context.Context, containerName string) (ServiceState, error)
}

// NotFoundError reports a runtime resource lookup miss.
type NotFoundError struct{ Resource, Name string }

func (e *NotFoundError) Error() string { return e.Resource + " not found: " + e.Name }

// ConflictError reports an attempt to create a resource that already exists.
type ConflictError struct{ Resource, Name string }

func (e *ConflictError) Error() string { return e.Resource + " already exists: " + e.Name }
