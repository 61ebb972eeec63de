// Package worker manages the per-core pool of sandboxed child processes
// a submission's compilation and test runs are dispatched to, and the
// cumulative stream of results they report back (spec §4, grounded on
// original_source/src/submission.rs and src/worker.rs).
package worker

import "github.com/sunwalker/invoker/multiproc"

// CommandKind discriminates the two things a worker can be asked to do.
type CommandKind uint8

const (
	CommandCompile CommandKind = iota
	CommandTest
)

// Command is the tagged union the source's Command enum becomes without
// sum types: a kind tag plus whichever of the two payload fields applies
// (spec §4, "Command::Compile(String) | Command::Test(u64)").
type Command struct {
	Kind        CommandKind
	CompileName string
	TestID      uint64
}

// Compile builds a Command requesting compilation under the given judge
// name.
func Compile(judgeName string) Command {
	return Command{Kind: CommandCompile, CompileName: judgeName}
}

// Test builds a Command requesting a single test be run.
func Test(id uint64) Command {
	return Command{Kind: CommandTest, TestID: id}
}

func (c Command) EncodeMP(s *multiproc.Serializer) error {
	s.PutUint8(uint8(c.Kind))
	switch c.Kind {
	case CommandCompile:
		s.PutString(c.CompileName)
	case CommandTest:
		s.PutUint64(c.TestID)
	}
	return nil
}

func (c *Command) DecodeMP(d *multiproc.Deserializer) error {
	kind, err := d.GetUint8()
	if err != nil {
		return err
	}
	c.Kind = CommandKind(kind)
	switch c.Kind {
	case CommandCompile:
		c.CompileName, err = d.GetString()
	case CommandTest:
		c.TestID, err = d.GetUint64()
	}
	return err
}
