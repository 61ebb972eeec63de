package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sunwalker/invoker/invokererr"
	"github.com/sunwalker/invoker/sandbox"
)

// Submission coordinates every worker handling one judged submission:
// it owns the submission's source tree, its dependency graph, the
// compiled program once built, and a pool of per-core Workers, funneling
// every worker's reports into one cumulative stream (spec §4,
// "Submission", grounded on original_source/src/submission.rs).
type Submission struct {
	id          string
	packageRoot string
	sandboxCfg  *sandbox.Config

	mu          sync.RWMutex
	graph       DependencyGraph
	lang        LanguageConfig
	sourceFiles []string
	program     Program

	workersMu sync.RWMutex
	workers   map[uint64]*Worker

	cumulative chan W2IMessage
	dispatch   *DispatchPool
}

// NewSubmission creates the submission's scratch directory and an empty
// worker pool.
func NewSubmission(id string, graph DependencyGraph, lang LanguageConfig, sandboxCfg *sandbox.Config, packageRoot string) (*Submission, error) {
	root := filepath.Join("/tmp/submissions", id)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, invokererr.Wrap(invokererr.InvokerFailure, err, "create directory for submission %s at %s", id, root)
	}
	return &Submission{
		id:          id,
		packageRoot: packageRoot,
		sandboxCfg:  sandboxCfg,
		graph:       graph,
		lang:        lang,
		workers:     make(map[uint64]*Worker),
		cumulative:  make(chan W2IMessage, 64),
		dispatch:    NewDispatchPool("submission-"+id, nil),
	}, nil
}

// AddSourceFile writes one of the submission's source files to its
// scratch directory.
func (s *Submission) AddSourceFile(name string, content []byte) error {
	path := filepath.Join("/tmp/submissions", s.id, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return invokererr.Wrap(invokererr.InvokerFailure, err, "write source file for submission %s at %s", s.id, path)
	}
	s.mu.Lock()
	s.sourceFiles = append(s.sourceFiles, path)
	s.mu.Unlock()
	return nil
}

func (s *Submission) workerForCore(core uint64) (*Worker, error) {
	s.workersMu.RLock()
	w, ok := s.workers[core]
	s.workersMu.RUnlock()
	if ok {
		return w, nil
	}

	s.workersMu.Lock()
	defer s.workersMu.Unlock()
	if w, ok := s.workers[core]; ok {
		return w, nil
	}

	s.mu.RLock()
	sourceFiles := append([]string(nil), s.sourceFiles...)
	lang := s.lang
	graph := s.graph.Clone()
	s.mu.RUnlock()

	w, err := NewWorker(core, lang, sourceFiles, s.packageRoot, s.sandboxCfg, graph, s.cumulative)
	if err != nil {
		return nil, err
	}
	s.workers[core] = w
	return w, nil
}

func (s *Submission) scheduleOnCore(core uint64, cmd Command) error {
	w, err := s.workerForCore(core)
	if err != nil {
		return err
	}
	if err := w.PushCommand(cmd); err != nil {
		return invokererr.Wrap(invokererr.InvokerFailure, err, "push command to core %d", core)
	}
	return nil
}

// CompileOnCore schedules compilation on core and blocks for its
// cumulative result. It is not abortable, matching the source's own
// comment on compile_on_core.
func (s *Submission) CompileOnCore(core uint64) (string, error) {
	s.mu.RLock()
	alreadyCompiled := s.program != nil
	s.mu.RUnlock()
	if alreadyCompiled {
		return "", invokererr.New(invokererr.ConductorFailure, "submission %s is already compiled", s.id)
	}

	if err := s.scheduleOnCore(core, Compile(fmt.Sprintf("judge-%s", s.id))); err != nil {
		return "", err
	}

	msg, ok := <-s.cumulative
	if !ok {
		return "", invokererr.New(invokererr.InvokerFailure, "compilation result was not sent back for submission %s", s.id)
	}
	switch msg.Kind {
	case MessageCompilationResult:
		if !msg.CompileOK {
			return "", invokererr.New(invokererr.ChildFailed, "compilation failed: %s", msg.BuildLog)
		}
		s.mu.Lock()
		s.program = PathProgram{Path: msg.ProgramRef}
		s.mu.Unlock()
		return msg.BuildLog, nil
	case MessageFailure:
		return "", msg.Err
	default:
		return "", invokererr.New(invokererr.InvokerFailure, "unexpected message kind %d while awaiting compilation", msg.Kind)
	}
}

// ScheduleTestOnCore schedules a single test run on core. The program
// must already be compiled. Unlike CompileOnCore, dispatch happens on
// the submission's DispatchPool so that judging many tests across many
// cores in parallel doesn't spawn one goroutine per test; the outcome
// arrives asynchronously on Results().
func (s *Submission) ScheduleTestOnCore(core uint64, test uint64) error {
	s.mu.RLock()
	compiled := s.program != nil
	s.mu.RUnlock()
	if !compiled {
		return invokererr.New(invokererr.ConductorFailure, "cannot judge submission %s before the program is built", s.id)
	}

	s.mu.RLock()
	skip := s.graph.ShouldSkip(test)
	s.mu.RUnlock()
	if skip {
		select {
		case s.cumulative <- W2IMessage{
			Kind:       MessageTestResult,
			TestID:     test,
			TestPassed: false,
			TestLog:    "skipped: a prerequisite test already failed",
		}:
		default:
		}
		return nil
	}

	s.dispatch.Dispatch(context.Background(), func() {
		if err := s.scheduleOnCore(core, Test(test)); err != nil {
			s.cumulative <- W2IMessage{Kind: MessageFailure, Err: invokererr.Wrap(invokererr.InvokerFailure, err, "schedule test %d on core %d", test, core)}
		}
	})
	return nil
}

// Results returns the channel every worker's W2IMessage reports arrive
// on, for a caller to drain test results from as they complete.
func (s *Submission) Results() <-chan W2IMessage {
	return s.cumulative
}

// AddFailedTests prunes the given tests from the submission's
// dependency graph and informs every live worker.
func (s *Submission) AddFailedTests(tests []uint64) error {
	s.mu.Lock()
	for _, t := range tests {
		s.graph.FailTest(t)
	}
	s.mu.Unlock()

	s.workersMu.RLock()
	defer s.workersMu.RUnlock()
	for _, w := range s.workers {
		if err := w.AddFailedTests(tests); err != nil {
			return err
		}
	}
	return nil
}

// Finalize removes the compiled program's artifacts and closes every
// worker's sandbox, if any were built.
func (s *Submission) Finalize() error {
	s.mu.Lock()
	program := s.program
	s.program = nil
	s.mu.Unlock()

	if program != nil {
		if err := program.Remove(); err != nil {
			return invokererr.Wrap(invokererr.InvokerFailure, err, "remove program artifacts for submission %s", s.id)
		}
	}

	s.workersMu.Lock()
	defer s.workersMu.Unlock()
	for core, w := range s.workers {
		if err := w.Close(); err != nil {
			return invokererr.Wrap(invokererr.Sandbox, err, "close worker sandbox for core %d", core)
		}
	}
	return nil
}
