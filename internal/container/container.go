// Package container runs a resolved WorkerInfo to completion in a Docker
// container: logging into the image's registry when needed, pulling the
// image, running it with the given argv and environment, and always
// removing the container afterward regardless of outcome.
package container

import "context"

// RunResult is the outcome of one container run.
type RunResult struct {
	Success  bool
	ExitCode int64
	Stdout   string
	Stderr   string
	// Message carries a human-readable failure description when Success is
	// false and no exit code was obtained: container create or start
	// failure, daemon unreachable, context cancelled mid-run, or the logs
	// could not be collected.
	Message string
}

// Manager is the capability set the dispatcher depends on.
type Manager interface {
	// Login authenticates against the registry that owns imageID. Some
	// registries (plain Docker Hub, a pre-authenticated daemon) need no
	// explicit login; Login is a no-op in that case.
	Login(ctx context.Context, imageID string) error

	// Pull retrieves imageID. Pull progress output is read and discarded.
	Pull(ctx context.Context, imageID string) error

	// Run starts a container from imageID with the given argv and
	// runtime config, waits for it to exit, captures its stdout and
	// stderr as separate streams, and always removes the container before returning —
	// on success, failure, or exception alike. runtimeConfig's
	// "environment" key maps to the container's env vars; keys the
	// runtime does not recognize are attached as labels so they stay
	// inspectable.
	Run(ctx context.Context, imageID string, argv []string, runtimeConfig map[string]any) (RunResult, error)
}
