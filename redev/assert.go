package redev

import (
	"fmt"
	"runtime"
)

// alwaysAssert is the library's only report channel for contract
// violations: it fires in every build, names the caller's file and line,
// and aborts via panic. There is no recovery path; a violated invariant in
// a coupled parallel job is not recoverable.
func alwaysAssert(cond bool, msg string) {
	if cond {
		return
	}
	_, file, line, _ := runtime.Caller(1)
	panic(fmt.Sprintf("redev: %s failed at %s:%d", msg, file, line))
}

func alwaysAssertf(cond bool, format string, args ...any) {
	if cond {
		return
	}
	_, file, line, _ := runtime.Caller(1)
	panic(fmt.Sprintf("redev: %s failed at %s:%d", fmt.Sprintf(format, args...), file, line))
}
