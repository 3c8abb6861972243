package dispatcher

import (
	"fmt"
	"reflect"
	"runtime"
	"strings"
)

// defaultPanicFrameCount bounds how many stack frames we capture for a
// recovered panic, matching shogo82148/ridgenative's error.go.
const defaultPanicFrameCount = 32

// panicToHandlerError converts a recovered panic value into a HandlerError,
// ported from shogo82148/ridgenative's getPanicInfo/lambdaPanicResponse and
// generalized to this package's HandlerError type. A panic value that is
// already a *HandlerError is returned unchanged; any other value yields a
// Fatal error: an unrecovered guest panic means the process state is suspect and
// must exit after reporting it (spec section 4.4's ShouldExit / section 7's
// "handler defects").
func panicToHandlerError(value any) *HandlerError {
	if herr, ok := value.(*HandlerError); ok {
		return herr
	}
	return &HandlerError{
		Type:       typeName(value),
		Message:    fmt.Sprint(value),
		StackTrace: capturePanicStack(),
		Fatal:      true,
	}
}

func typeName(value any) string {
	t := reflect.TypeOf(value)
	if t == nil {
		return "unknown"
	}
	if t.Kind() == reflect.Ptr {
		return t.Elem().Name()
	}
	return t.Name()
}

// capturePanicStack walks the goroutine's call stack and formats each frame
// as "Type.Method (pkg/sub/file.go:line)", stripping the GOPATH/module
// prefix the way error.go's formatFrame does.
func capturePanicStack() []string {
	pcs := make([]uintptr, defaultPanicFrameCount)
	const framesToHide = 3 // runtime.Callers, capturePanicStack, panicToHandlerError; the recover site is the first frame kept
	n := runtime.Callers(framesToHide, pcs)
	if n == 0 {
		return nil
	}

	frames := runtime.CallersFrames(pcs[:n])
	var formatted []string
	for {
		frame, more := frames.Next()
		formatted = append(formatted, formatFrame(frame))
		if !more {
			break
		}
	}
	return formatted
}

func formatFrame(frame runtime.Frame) string {
	path := frame.File
	label := frame.Function

	// keep the file name plus as many directories above it as the
	// function's import path has elements, so the frame reads as
	// "pkg/sub/file.go", not an absolute build-machine path.
	i := len(path)
	for n, g := 0, strings.Count(label, "/")+2; n < g; n++ {
		idx := strings.LastIndex(path[:i], "/")
		if idx == -1 {
			break
		}
		i = idx
	}
	if i >= 0 && i < len(path) {
		path = path[i+1:]
	}

	if idx := strings.LastIndex(label, "/"); idx != -1 {
		label = label[idx+1:]
	}
	if idx := strings.Index(label, "."); idx != -1 {
		label = label[idx+1:]
	}

	return fmt.Sprintf("%s (%s:%d)", label, path, frame.Line)
}
