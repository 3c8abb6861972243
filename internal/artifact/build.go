package artifact

import (
	"context"
	_ "embed"
	"path"

	"github.com/cockroachdb/errors"
)

//go:embed stub/index.rb
var dispatcherStub []byte

// Build implements the public build() operation (spec section 4.2).
// version and interpreterPath locate the already-acquired interpreter
// binary (internal/acquire.Extract's output); bootstrapPath locates the
// already cross-compiled `bootstrap` binary for the target container
// architecture — Build never compiles anything itself.
func Build(
	files Files,
	config Config,
	entrypoint string,
	meta Meta,
	version string,
	interpreterPath string,
	bootstrapPath string,
) (*Lambda, error) {
	if meta.IsDev {
		return nil, ErrDevModeUnsupported
	}

	handler := entrypoint
	if config.ProjectSettings.RootDirectory != "" {
		handler = path.Join(config.ProjectSettings.RootDirectory, entrypoint)
	}

	runtimeFiles := Files{
		"bootstrap":        {SourcePath: bootstrapPath, Mode: 0o755},
		"runtime/index.rb": {Inline: dispatcherStub, Mode: 0o644},
		"bin/ruby":         {SourcePath: interpreterPath, Mode: 0o755},
	}

	return &Lambda{
		Files:   merge(files, runtimeFiles),
		Handler: handler,
		Runtime: ProvidedRuntime,
		Environment: map[string]string{
			InterpreterVersionEnvVar: version,
		},
		SupportsWrapper: true,
	}, nil
}

// PublishBuildEvent sends a single build-completion message so a build
// fleet can fan out post-build steps without polling (SPEC_FULL.md
// section 3, "Build-event publishing"). It is additive: build() itself
// always succeeds or fails independently of this call, so callers should
// log a publish failure rather than fail the build over it.
func PublishBuildEvent(ctx context.Context, publisher EventPublisher, queueURL string, event BuildEvent) error {
	if queueURL == "" {
		return nil
	}
	if err := publisher.Publish(ctx, queueURL, event); err != nil {
		return errors.Wrap(err, "artifact: failed to publish build event")
	}
	return nil
}

// BuildEvent is the message body PublishBuildEvent sends.
type BuildEvent struct {
	Digest    string `json:"digest"`
	FileCount int    `json:"fileCount"`
	Handler   string `json:"handler"`
}

// EventPublisher abstracts the SQS send so build.go's tests don't need a
// live queue.
type EventPublisher interface {
	Publish(ctx context.Context, queueURL string, event BuildEvent) error
}
