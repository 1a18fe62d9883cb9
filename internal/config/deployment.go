package config

import (
	"github.com/google/uuid"
)

// DeploymentState is the lifecycle state of a Deployment's endpoint.
type DeploymentState string

const (
	StateAbsent      DeploymentState = "absent"
	StateCreating    DeploymentState = "creating"
	StateInitializing DeploymentState = "initializing"
	StateRunning     DeploymentState = "running"
	StatePaused      DeploymentState = "paused"
	StateDeleted     DeploymentState = "deleted"
	StateFailed      DeploymentState = "failed"
)

// EndpointRef is the opaque handle populated only while an endpoint exists.
// Its concrete shape is owned by internal/endpoint; config only needs to know
// whether one is present.
type EndpointRef any

// Deployment is the lifecycle handle for one endpoint. It carries no
// back-reference to the Scenarios that run against it — per the owning
// ScenarioGroup pattern, scenarios hold a non-owning reference to their
// Deployment, and Deployments never point back.
//
// Deployment is constructed by exactly one of NewDeployment or
// AdoptDeployment; there is no way to flip Exists or TeardownOnExit after
// construction.
type Deployment struct {
	DeploymentID    string
	Config          DeploymentConfig
	EndpointRef     EndpointRef
	Exists          bool
	TeardownOnExit  bool
	State           DeploymentState
}

// NewDeployment constructs a not-yet-created deployment for a fresh endpoint.
// DeploymentID is a short unique identifier used as the endpoint name.
// TeardownOnExit defaults true: the scheduler deletes endpoints it created.
func NewDeployment(cfg DeploymentConfig) *Deployment {
	return &Deployment{
		DeploymentID:   shortID(),
		Config:         cfg,
		Exists:         false,
		TeardownOnExit: true,
		State:          StateAbsent,
	}
}

// AdoptDeployment constructs a Deployment wrapping an endpoint that already
// exists under deploymentID. initialState must be StateRunning or
// StateInitializing; the caller (internal/endpoint.Adopt) is responsible for
// waiting out StateInitializing before handing the ref back.
// TeardownOnExit is always false for adopted deployments: the scheduler never
// tears down endpoints it did not create.
func AdoptDeployment(deploymentID string, cfg DeploymentConfig, ref EndpointRef, initialState DeploymentState) *Deployment {
	return &Deployment{
		DeploymentID:   deploymentID,
		Config:         cfg,
		EndpointRef:    ref,
		Exists:         true,
		TeardownOnExit: false,
		State:          initialState,
	}
}

// shortID mirrors the source implementation's uuid4()[:-4]-style short ID:
// a UUIDv4 with its last four characters trimmed, used as an endpoint name
// short enough for the control plane's naming limits.
func shortID() string {
	id := uuid.NewString()
	return id[:len(id)-4]
}
