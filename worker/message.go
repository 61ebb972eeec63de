package worker

import (
	"github.com/sunwalker/invoker/invokererr"
	"github.com/sunwalker/invoker/multiproc"
)

// MessageKind discriminates the three things a worker reports back
// about a command's outcome.
type MessageKind uint8

const (
	MessageCompilationResult MessageKind = iota
	MessageTestResult
	MessageFailure
)

// W2IMessage is a worker-to-invoker report, the Go rendition of the
// source's W2IMessage enum (spec §4, "worker-to-invoker message").
type W2IMessage struct {
	Kind MessageKind

	// Populated when Kind == MessageCompilationResult.
	CompileOK  bool
	ProgramRef string // opaque handle into the invoker's program table
	BuildLog   string

	// Populated when Kind == MessageTestResult.
	TestID     uint64
	TestPassed bool
	TestLog    string

	// Populated when Kind == MessageFailure. A compilation or test that
	// ran but failed is reported through CompileOK / TestPassed instead.
	Err *invokererr.Error
}

func (m W2IMessage) EncodeMP(s *multiproc.Serializer) error {
	s.PutUint8(uint8(m.Kind))
	switch m.Kind {
	case MessageCompilationResult:
		s.PutBool(m.CompileOK)
		s.PutString(m.ProgramRef)
		s.PutString(m.BuildLog)
	case MessageTestResult:
		s.PutUint64(m.TestID)
		s.PutBool(m.TestPassed)
		s.PutString(m.TestLog)
	}
	if m.Err != nil {
		s.PutBool(true)
		s.PutUint8(uint8(m.Err.Kind()))
		s.PutString(m.Err.Error())
	} else {
		s.PutBool(false)
	}
	return nil
}

func (m *W2IMessage) DecodeMP(d *multiproc.Deserializer) error {
	kind, err := d.GetUint8()
	if err != nil {
		return err
	}
	m.Kind = MessageKind(kind)
	switch m.Kind {
	case MessageCompilationResult:
		if m.CompileOK, err = d.GetBool(); err != nil {
			return err
		}
		if m.ProgramRef, err = d.GetString(); err != nil {
			return err
		}
		if m.BuildLog, err = d.GetString(); err != nil {
			return err
		}
	case MessageTestResult:
		if m.TestID, err = d.GetUint64(); err != nil {
			return err
		}
		if m.TestPassed, err = d.GetBool(); err != nil {
			return err
		}
		if m.TestLog, err = d.GetString(); err != nil {
			return err
		}
	}

	hasErr, err := d.GetBool()
	if err != nil {
		return err
	}
	if hasErr {
		kindByte, err := d.GetUint8()
		if err != nil {
			return err
		}
		msg, err := d.GetString()
		if err != nil {
			return err
		}
		m.Err = invokererr.New(invokererr.Kind(kindByte), "%s", msg)
	}
	return nil
}
