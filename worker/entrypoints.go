package worker

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sunwalker/invoker/multiproc"
)

// compileArgs and testArgs are the transportable argument tuples the
// compile and test entrypoints run inside a sandboxed child with (spec
// §4, worker dispatch).
type compileArgs struct {
	JudgeName   string
	SourceFiles []string
	LangName    string
}

func (a compileArgs) EncodeMP(s *multiproc.Serializer) error {
	s.PutString(a.JudgeName)
	if err := multiproc.EncodeSlice(s, a.SourceFiles, func(v string, s *multiproc.Serializer) error {
		s.PutString(v)
		return nil
	}); err != nil {
		return err
	}
	s.PutString(a.LangName)
	return nil
}

func (a *compileArgs) DecodeMP(d *multiproc.Deserializer) error {
	var err error
	if a.JudgeName, err = d.GetString(); err != nil {
		return err
	}
	if a.SourceFiles, err = multiproc.DecodeSlice(d, func(d *multiproc.Deserializer) (string, error) {
		return d.GetString()
	}); err != nil {
		return err
	}
	a.LangName, err = d.GetString()
	return err
}

type compileResult struct {
	OK         bool
	ProgramRef string
	Log        string
}

func (r compileResult) EncodeMP(s *multiproc.Serializer) error {
	s.PutBool(r.OK)
	s.PutString(r.ProgramRef)
	s.PutString(r.Log)
	return nil
}

func (r *compileResult) DecodeMP(d *multiproc.Deserializer) error {
	var err error
	if r.OK, err = d.GetBool(); err != nil {
		return err
	}
	if r.ProgramRef, err = d.GetString(); err != nil {
		return err
	}
	r.Log, err = d.GetString()
	return err
}

type testArgs struct {
	ProgramRef string
	TestID     uint64
}

func (a testArgs) EncodeMP(s *multiproc.Serializer) error {
	s.PutString(a.ProgramRef)
	s.PutUint64(a.TestID)
	return nil
}

func (a *testArgs) DecodeMP(d *multiproc.Deserializer) error {
	var err error
	if a.ProgramRef, err = d.GetString(); err != nil {
		return err
	}
	a.TestID, err = d.GetUint64()
	return err
}

type testResult struct {
	Passed bool
	Log    string
}

func (r testResult) EncodeMP(s *multiproc.Serializer) error {
	s.PutBool(r.Passed)
	s.PutString(r.Log)
	return nil
}

func (r *testResult) DecodeMP(d *multiproc.Deserializer) error {
	var err error
	if r.Passed, err = d.GetBool(); err != nil {
		return err
	}
	r.Log, err = d.GetString()
	return err
}

// compileEntry and testEntry are registered once, process-wide, and
// bound with concrete arguments per submission by Worker.PushCommand.
// Their bodies are intentionally minimal: turning a language config and
// a set of source files into a running build is the "language
// configuration parsing" / "image loading" concern this package leaves
// to its LanguageConfig/Program collaborators, which here are stubs.
var compileEntry = multiproc.RegisterEntry[compileArgs, *compileArgs, compileResult, *compileResult](
	"worker-compile",
	func(args compileArgs) (compileResult, error) {
		dir := filepath.Join("/tmp/submissions", args.JudgeName)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return compileResult{OK: false, Log: err.Error()}, nil
		}
		marker := filepath.Join(dir, "built")
		log := fmt.Sprintf("compiled %d source file(s) for %s", len(args.SourceFiles), args.LangName)
		if err := os.WriteFile(marker, []byte(log), 0o644); err != nil {
			return compileResult{OK: false, Log: err.Error()}, nil
		}
		return compileResult{OK: true, ProgramRef: dir, Log: log}, nil
	},
)

var testEntry = multiproc.RegisterEntry[testArgs, *testArgs, testResult, *testResult](
	"worker-test",
	func(args testArgs) (testResult, error) {
		if _, err := os.Stat(filepath.Join(args.ProgramRef, "built")); err != nil {
			return testResult{Passed: false, Log: "program was not built"}, nil
		}
		return testResult{Passed: true, Log: fmt.Sprintf("test %d ran", args.TestID)}, nil
	},
)
