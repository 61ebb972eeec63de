package worker

import (
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/sunwalker/invoker/cgroup"
	"github.com/sunwalker/invoker/invokererr"
	"github.com/sunwalker/invoker/sandbox"
)

// Worker owns one CPU core's worth of sandboxed execution for a single
// submission: every Command it is pushed runs as its own freshly
// spawned, sandboxed, core-pinned child process (spec §4, "worker",
// grounded on original_source/src/worker.rs and src/submission.rs).
type Worker struct {
	core        uint64
	lang        LanguageConfig
	sourceFiles []string
	image       *sandbox.Image
	cumulative  chan<- W2IMessage

	graphMu sync.RWMutex
	graph   DependencyGraph

	programRef string
}

// NewWorker builds the sandbox overlay this worker's core will run
// commands inside. packageRoot is the language image's mounted lower
// directory (spec §4, "make_worker_tmp" + "make_sandbox"). graph is a
// snapshot of the submission's dependency graph at the time this
// worker was created, owned independently from then on (spec §3
// "Worker" data model).
func NewWorker(core uint64, lang LanguageConfig, sourceFiles []string, packageRoot string, cfg *sandbox.Config, graph DependencyGraph, cumulative chan<- W2IMessage) (*Worker, error) {
	img, err := sandbox.Prepare(packageRoot, cfg)
	if err != nil {
		return nil, invokererr.Wrap(invokererr.Sandbox, err, "prepare sandbox for core %d", core)
	}
	return &Worker{
		core:        core,
		lang:        lang,
		sourceFiles: sourceFiles,
		image:       img,
		graph:       graph,
		cumulative:  cumulative,
	}, nil
}

// PushCommand runs cmd to completion in a fresh sandboxed child pinned
// to this worker's core, reporting the outcome on the cumulative
// message channel (spec §4, "push_command").
func (w *Worker) PushCommand(cmd Command) error {
	switch cmd.Kind {
	case CommandCompile:
		return w.runCompile(cmd.CompileName)
	case CommandTest:
		return w.runTest(cmd.TestID)
	default:
		return invokererr.New(invokererr.InvokerFailure, "unknown command kind %d", cmd.Kind)
	}
}

func (w *Worker) runCompile(judgeName string) error {
	child, err := sandbox.RunInSandbox(w.image, compileEntry, compileArgs{
		JudgeName:   judgeName,
		SourceFiles: w.sourceFiles,
		LangName:    w.lang.Name(),
	})
	if err != nil {
		w.report(W2IMessage{Kind: MessageFailure, Err: invokererr.Wrap(invokererr.Sandbox, err, "spawn compile child")})
		return err
	}
	if err := w.pin(child); err != nil {
		w.report(W2IMessage{Kind: MessageFailure, Err: invokererr.Wrap(invokererr.Sandbox, err, "pin compile child")})
	}

	result, err := child.Join()
	if err != nil {
		werr := invokererr.Wrap(invokererr.ChildFailed, err, "compile child did not complete")
		w.report(W2IMessage{Kind: MessageFailure, Err: werr})
		return werr
	}

	w.programRef = result.ProgramRef
	w.report(W2IMessage{
		Kind:       MessageCompilationResult,
		CompileOK:  result.OK,
		ProgramRef: result.ProgramRef,
		BuildLog:   result.Log,
	})
	return nil
}

func (w *Worker) runTest(testID uint64) error {
	w.graphMu.RLock()
	skip := w.graph != nil && w.graph.ShouldSkip(testID)
	w.graphMu.RUnlock()
	if skip {
		w.report(W2IMessage{
			Kind:       MessageTestResult,
			TestID:     testID,
			TestPassed: false,
			TestLog:    "skipped: a prerequisite test already failed",
		})
		return nil
	}

	child, err := sandbox.RunInSandbox(w.image, testEntry, testArgs{
		ProgramRef: w.programRef,
		TestID:     testID,
	})
	if err != nil {
		w.report(W2IMessage{Kind: MessageFailure, Err: invokererr.Wrap(invokererr.Sandbox, err, "spawn test child")})
		return err
	}
	if err := w.pin(child); err != nil {
		w.report(W2IMessage{Kind: MessageFailure, Err: invokererr.Wrap(invokererr.Sandbox, err, "pin test child")})
	}

	result, err := child.Join()
	if err != nil {
		werr := invokererr.Wrap(invokererr.ChildFailed, err, "test child did not complete")
		w.report(W2IMessage{Kind: MessageFailure, Err: werr})
		return werr
	}

	w.report(W2IMessage{
		Kind:       MessageTestResult,
		TestID:     testID,
		TestPassed: result.Passed,
		TestLog:    result.Log,
	})
	return nil
}

type pidHolder interface{ Pid() int }

func (w *Worker) pin(child pidHolder) error {
	if err := cgroup.PinToCore(int(w.core), child.Pid()); err != nil {
		log.WithError(err).WithField("core", w.core).Warn("worker: failed to pin child to its core")
		return err
	}
	return nil
}

func (w *Worker) report(msg W2IMessage) {
	select {
	case w.cumulative <- msg:
	default:
		log.WithField("core", w.core).Warn("worker: cumulative message channel is full, dropping message")
	}
}

// AddFailedTests marks the given tests failed in this worker's own
// dependency-graph snapshot, so any test command pushed afterwards for
// one of them (or a test that depends on one of them) is short-circuited
// by runTest instead of spent running it.
func (w *Worker) AddFailedTests(tests []uint64) error {
	log.WithFields(log.Fields{"core": w.core, "tests": tests}).Debug("worker: recording failed tests")
	w.graphMu.Lock()
	defer w.graphMu.Unlock()
	if w.graph == nil {
		return nil
	}
	for _, t := range tests {
		w.graph.FailTest(t)
	}
	return nil
}

// Close tears down this worker's sandbox overlay.
func (w *Worker) Close() error {
	return w.image.Teardown()
}
