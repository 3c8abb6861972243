// Command bootstrap is the process AWS Lambda's container-init contract
// spawns on cold start (spec section 4.3). In this clean-room Go design
// (SPEC_FULL.md section 1) there is no separate shell shim exec'ing into an
// interpreter: this compiled binary *is* both the Bootstrap Shim and the
// Runtime Dispatcher. It prepares the environment, then enters the
// fetch/translate/invoke/post event loop directly.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	rtconfig "github.com/vercel-community/rubyruntime/internal/config"

	"github.com/vercel-community/rubyruntime/internal/bootstrapenv"
	"github.com/vercel-community/rubyruntime/internal/childproc"
	"github.com/vercel-community/rubyruntime/internal/dispatcher"
	"github.com/vercel-community/rubyruntime/internal/runtimeapi"
	"github.com/vercel-community/rubyruntime/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "bootstrap: fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	bootstrapenv.Prepare()

	cfg, err := rtconfig.ParseRuntime()
	if err != nil {
		// missing required env var at startup is the one class of failure
		// spec section 7 names as unambiguously unrecoverable.
		return errors.Wrap(err, "bootstrap: failed to parse runtime environment")
	}

	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return errors.Wrap(err, "bootstrap: failed to build logger")
	}
	defer log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if needsSecretResolution() {
		if err := resolveSecrets(ctx); err != nil {
			return err
		}
	}

	tp, err := telemetry.NewTracerProvider(ctx, cfg.OtelExporter)
	if err != nil {
		log.Warn("failed to build tracer provider, continuing without tracing", zap.Error(err))
	} else {
		defer tp.Shutdown(ctx) //nolint:errcheck
		// the control-plane client's otelhttp transport records through the
		// global provider.
		otel.SetTracerProvider(tp)
	}

	classifier, err := dispatcher.NewStatusClassifier(cfg.StatusErrorRange)
	if err != nil {
		return errors.Wrap(err, "bootstrap: invalid status error range")
	}

	handlerPath := cfg.Handler
	if !filepath.IsAbs(handlerPath) {
		handlerPath = filepath.Join(cfg.TaskRoot, handlerPath)
	}

	interpreterPath := filepath.Join(cfg.TaskRoot, "bin", "ruby")
	if err := bootstrapenv.CheckInterpreter(interpreterPath); err != nil {
		// spec section 4.3 step 1: a missing or non-executable interpreter
		// is a fatal cold-start failure, not a lazily discovered invocation
		// error.
		return errors.Wrap(err, "bootstrap: interpreter check failed")
	}

	proc := childproc.New(childproc.Config{
		InterpreterPath: interpreterPath,
		StubPath:        filepath.Join(cfg.TaskRoot, "runtime", "index.rb"),
		TaskRoot:        cfg.TaskRoot,
		HandlerPath:     handlerPath,
	})
	defer proc.Close() //nolint:errcheck

	resolver := dispatcher.NewCachedResolver(proc.Resolve)
	client := runtimeapi.New(cfg.RuntimeAPI)
	tracer := telemetry.Tracer(tp, "dispatcher")

	loop := dispatcher.NewLoop(client, resolver, classifier, tracer, log)
	return loop.Run(ctx)
}

func newLogger(level zapcore.Level) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// needsSecretResolution reports whether any inherited environment variable
// looks like an "ssm:" or "secretsmanager:" reference, so a cold start that
// carries none of those never pays for building AWS clients it won't use.
func needsSecretResolution() bool {
	for _, kv := range os.Environ() {
		_, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if strings.HasPrefix(value, "ssm:") || strings.HasPrefix(value, "secretsmanager:") {
			return true
		}
	}
	return false
}

func resolveSecrets(ctx context.Context) error {
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return errors.Wrap(err, "bootstrap: failed to load AWS config for secret resolution")
	}
	resolver, err := bootstrapenv.NewAWSSecretResolver(awsCfg)
	if err != nil {
		return errors.Wrap(err, "bootstrap: failed to build secret resolver")
	}
	if err := bootstrapenv.ResolveSecrets(ctx, resolver); err != nil {
		return errors.Wrap(err, "bootstrap: failed to resolve secret references")
	}
	return nil
}
