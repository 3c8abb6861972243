// Package rubyruntime implements a custom AWS Lambda runtime for a scripting
// guest language (Ruby): a build-time plug-in that assembles a deployable
// function package, and an in-container bootstrap/dispatcher that bridges
// Lambda's long-poll control plane to an ordinary HTTP-shaped user handler.
//
// # Components
//
// The runtime has four cooperating pieces, in dependency order:
//
//   - [internal/acquire] downloads and caches the Ruby interpreter binary
//     for the build machine's target architecture.
//   - [internal/artifact] assembles the deployable file set: user sources,
//     the acquired interpreter, the bootstrap binary, and the dispatcher
//     stub, behind the public Build operation.
//   - cmd/bootstrap is the `bootstrap` binary the Lambda container-init
//     contract spawns on cold start. It prepares the environment
//     ([internal/bootstrapenv]) and enters the dispatch loop directly —
//     this compiled binary is both the Bootstrap Shim and the Runtime
//     Dispatcher, with no separate process hop at startup.
//   - [internal/dispatcher] is the event loop: fetch an invocation from
//     [internal/runtimeapi], translate it to a native request, invoke the
//     user's handler (spawned out-of-process by [internal/childproc] and
//     reached over a local CBOR IPC protocol), translate the result back,
//     and post it.
//
// [internal/protocol] defines the wire shapes exchanged with the control
// plane; [internal/config] and [internal/telemetry] are the ambient
// configuration and tracing stack shared by the build and runtime paths.
package rubyruntime
