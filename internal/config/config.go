// Package config parses the environment variables section 6 of spec.md
// names (plus SPEC_FULL.md's ambient-stack additions) into typed structs,
// using the same github.com/caarlos0/env/v11 pattern advdv-bhttp's
// blwa.Environment is built on: a struct with env tags, parsed once at
// startup, never read ad hoc via os.Getenv.
package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap/zapcore"
)

// Runtime is parsed once by cmd/bootstrap/main.go and passed down as a
// typed value for the lifetime of the process.
type Runtime struct {
	// RuntimeAPI is the control-plane authority (spec section 6:
	// AWS_LAMBDA_RUNTIME_API).
	RuntimeAPI string `env:"AWS_LAMBDA_RUNTIME_API,required,notEmpty"`
	// Handler is the in-package path to the handler source (spec section 6:
	// _HANDLER).
	Handler string `env:"_HANDLER,required,notEmpty"`
	// TaskRoot is the deployed package's root directory (spec section 6:
	// LAMBDA_TASK_ROOT).
	TaskRoot string `env:"LAMBDA_TASK_ROOT" envDefault:"/var/task"`
	// InterpreterVersion is the pinned version diagnostic (spec section 6:
	// <INTERPRETER>_VERSION).
	InterpreterVersion string `env:"RUBY_VERSION"`

	LogLevel zapcore.Level `env:"RUNTIME_LOG_LEVEL" envDefault:"info"`

	// OtelExporter selects the span exporter (SPEC_FULL.md section 2.5),
	// matching advdv-bhttp's BW_OTEL_EXPORTER values.
	OtelExporter string `env:"OTEL_EXPORTER" envDefault:"stdout"`

	// StatusErrorRange optionally enables dispatcher.StatusClassifier
	// (SPEC_FULL.md section 3). Empty disables classification.
	StatusErrorRange string `env:"RUNTIME_STATUS_ERROR_RANGE"`
}

// ParseRuntime parses the runtime (dispatcher-side) environment.
func ParseRuntime() (Runtime, error) {
	var c Runtime
	if err := env.Parse(&c); err != nil {
		return c, errors.Wrap(err, "config: failed to parse runtime environment")
	}
	return c, nil
}

// Build is parsed by the Artifact Builder's caller at build time.
type Build struct {
	// Entrypoint is the build-time warm-import handler path (spec section 6:
	// ENTRYPOINT).
	Entrypoint string `env:"ENTRYPOINT"`
	// InterpreterVersion pins the version Interpreter Acquisition fetches.
	InterpreterVersion string `env:"RUBY_VERSION,required"`
	// DownloadBaseURL is the interpreter release server's base URL.
	DownloadBaseURL string `env:"RUBY_DOWNLOAD_BASE_URL,required"`
	// BuildEventQueueURL optionally enables artifact.PublishBuildEvent
	// (SPEC_FULL.md section 3). Empty disables publishing.
	BuildEventQueueURL string `env:"BUILD_EVENT_QUEUE_URL"`
	// CacheBucket and CacheTable back internal/acquire.RemoteCache. Both
	// must be set together to enable the distributed cache tier.
	CacheBucket string `env:"RUBY_CACHE_BUCKET"`
	CacheTable  string `env:"RUBY_CACHE_TABLE"`
}

// ParseBuild parses the build-time environment.
func ParseBuild() (Build, error) {
	var c Build
	if err := env.Parse(&c); err != nil {
		return c, errors.Wrap(err, "config: failed to parse build environment")
	}
	return c, nil
}
