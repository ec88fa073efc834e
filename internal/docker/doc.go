// Package docker manages containerized training runs for the distrun CLI.
//
// This package handles:
//   - Docker client initialization with automatic socket detection
//     (Linux, macOS, Windows)
//   - Container label management for persisting launch parameters
//     (Docker labels are the sole state storage mechanism for runs)
//   - Run lifecycle operations: launch, list, stop, remove
//
// Launching uses `docker run` via os/exec, because the CLI flag surface
// (--gpus, bind mounts, labels) maps directly onto the synthesized
// launcher invocation. Queries and lifecycle operations use
// github.com/docker/docker/client, with version negotiation enabled
// for broad daemon compatibility.
package docker
