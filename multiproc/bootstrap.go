package multiproc

import (
	"os"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/sunwalker/invoker/fdutil"
)

// SentinelArgv0 is the argv[0] Spawn re-execs the current binary under.
// A child process recognizes itself by this value rather than by any
// environment variable or flag, mirroring the sentinel dispatch this
// package's model is grounded on.
const SentinelArgv0 = "_multiprocessing_"

// childEntryFdNum and childOutputFdNum are the fixed descriptor numbers
// Spawn's children find their entrypoint and result channels at.
// exec.Cmd.ExtraFiles always places extra descriptors starting at 3 in
// the child, so these are fixed rather than inherited verbatim from the
// parent's own numbering (spec §6, adapted: the source this is grounded
// on preserves exact fd numbers across a raw fork+exec, which Go's
// os/exec does not expose).
const (
	childEntryFdNum  = 3
	childOutputFdNum = 4
)

// Main must be called at the very top of the program's main function,
// before any other initialization that assumes it is running as the
// top-level invoker. If the process was re-exec'd by Spawn, Main runs
// the child bootstrap to completion and never returns — it calls
// os.Exit directly. Otherwise it returns immediately and the caller's
// main proceeds as the parent process.
func Main() {
	if len(os.Args) == 0 || os.Args[0] != SentinelArgv0 {
		return
	}
	if len(os.Args) != 3 {
		log.WithField("argv", os.Args).Error("multiproc: malformed child invocation")
		exitChild(ReportBootstrapFailure)
	}
	entryFd, err1 := strconv.Atoi(os.Args[1])
	outFd, err2 := strconv.Atoi(os.Args[2])
	if err1 != nil || err2 != nil {
		log.WithError(err1).WithError(err2).Error("multiproc: malformed child descriptor arguments")
		exitChild(ReportBootstrapFailure)
	}
	runChild(entryFd, outFd)
}

// runChild receives the bound entrypoint, executes it, and sends its
// boxed result back, reporting failure through the process exit code
// when it cannot do even that much (spec §4 supplemented feature,
// "Report convention").
func runChild(entryFd, outFd int) {
	// Re-enable CLOEXEC on the inherited channel descriptors before any
	// other operation: exec.Cmd.ExtraFiles hands them to the child
	// CLOEXEC-clear, and the entrypoint itself may exec further (the
	// judged program), which must not inherit the parent's IPC fds.
	if err := fdutil.SetCloexec(entryFd, true); err != nil {
		log.WithError(err).Error("multiproc: failed to set CLOEXEC on entrypoint descriptor")
		exitChild(ReportBootstrapFailure)
	}
	if err := fdutil.SetCloexec(outFd, true); err != nil {
		log.WithError(err).Error("multiproc: failed to set CLOEXEC on output descriptor")
		exitChild(ReportBootstrapFailure)
	}

	box, ok, err := recvBoxed(entryFd)
	if err != nil {
		log.WithError(err).Error("multiproc: failed to receive entrypoint")
		exitChild(ReportBootstrapFailure)
	}
	if !ok {
		log.Error("multiproc: parent closed entrypoint channel without sending one")
		exitChild(ReportBootstrapFailure)
	}
	entry, ok := box.(Entrypoint)
	if !ok {
		log.WithField("type", box.TypeKey()).Error("multiproc: received value is not an entrypoint")
		exitChild(ReportBootstrapFailure)
	}

	var result Boxed
	func() {
		defer func() {
			if r := recover(); r != nil {
				log.WithField("panic", r).Error("multiproc: entrypoint panicked")
				exitChild(ReportEntrypointPanic)
			}
		}()
		result, err = entry.Run()
	}()
	if err != nil {
		log.WithError(err).Error("multiproc: entrypoint returned an error")
		exitChild(ReportEntrypointPanic)
	}

	if err := sendBoxed(outFd, result); err != nil {
		log.WithError(err).Error("multiproc: failed to send entrypoint result")
		exitChild(ReportEntrypointPanic)
	}

	exitChild(ReportOK)
}
