package multiproc

import (
	"os"
	"os/exec"
	"strconv"

	"github.com/sunwalker/invoker/fdutil"
	"github.com/sunwalker/invoker/invokererr"
	"golang.org/x/sys/unix"
)

// sendBoxed writes a polymorphic Boxed value as one framed message: its
// type key followed by its own encoding (spec §4.2 "spawn dispatches a
// bound entrypoint").
func sendBoxed(fd int, v Boxed) error {
	ser := NewSerializer()
	defer ser.Release()
	if err := EncodeBoxed(ser, v); err != nil {
		return invokererr.Wrap(invokererr.Codec, err, "encode boxed value")
	}
	return sendMessage(fd, ser.Bytes(), ser.Fds())
}

// recvBoxed reads one framed message and dispatches it through the
// registry by type key.
func recvBoxed(fd int) (v Boxed, ok bool, err error) {
	payload, fds, ok, err := recvMessage(fd)
	if err != nil || !ok {
		return nil, ok, err
	}
	d := NewDeserializer(payload, fds)
	v, err = DecodeBoxed(d)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Child is a handle to a spawned, sandboxed worker process running a
// single bound entrypoint (spec §4.2 "spawn").
type Child[R Encoder] struct {
	cmd    *exec.Cmd
	outFd  int
	waited bool
}

// Spawn re-execs the current binary under the sentinel argv, hands it
// entry over a dedicated descriptor pair, and returns a handle to await
// its result. The child inherits no other descriptors than the ones
// explicitly wired here, stdio aside (spec §4.2, §6 "process isolation").
func Spawn[Args Encoder, PArgs DecoderPtr[Args], R Encoder, PR DecoderPtr[R]](entry *EntryPoint[Args, PArgs, R, PR], args Args) (*Child[R], error) {
	return SpawnWith(nil, entry, args)
}

// SpawnWith behaves like Spawn but additionally configures the child's
// exec.Cmd (working directory, environment, sandbox namespace hooks)
// before starting it. configure may be nil.
func SpawnWith[Args Encoder, PArgs DecoderPtr[Args], R Encoder, PR DecoderPtr[R]](configure func(*exec.Cmd), entry *EntryPoint[Args, PArgs, R, PR], args Args) (*Child[R], error) {
	self, err := os.Executable()
	if err != nil {
		return nil, invokererr.Wrap(invokererr.InvokerFailure, err, "resolve own executable path")
	}

	entryParent, entryChild, err := fdutil.Socketpair()
	if err != nil {
		return nil, invokererr.Wrap(invokererr.InvokerFailure, err, "create entrypoint channel")
	}
	outParent, outChild, err := fdutil.Socketpair()
	if err != nil {
		_ = unix.Close(entryParent)
		_ = unix.Close(entryChild)
		return nil, invokererr.Wrap(invokererr.InvokerFailure, err, "create result channel")
	}

	entryChildFile := os.NewFile(uintptr(entryChild), "mp-entry")
	outChildFile := os.NewFile(uintptr(outChild), "mp-output")

	cmd := &exec.Cmd{
		Path:       self,
		Args:       []string{SentinelArgv0, strconv.Itoa(childEntryFdNum), strconv.Itoa(childOutputFdNum)},
		ExtraFiles: []*os.File{entryChildFile, outChildFile},
		Stdin:      os.Stdin,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
	}
	if configure != nil {
		configure(cmd)
	}

	if err := cmd.Start(); err != nil {
		entryChildFile.Close()
		outChildFile.Close()
		_ = unix.Close(entryParent)
		_ = unix.Close(outParent)
		return nil, invokererr.Wrap(invokererr.Sandbox, err, "start child process")
	}
	// The child has its own duplicated descriptors now; drop ours.
	entryChildFile.Close()
	outChildFile.Close()

	entrypoint := entry.Bind(args)
	if err := sendBoxed(entryParent, entrypoint); err != nil {
		_ = unix.Close(entryParent)
		_ = unix.Close(outParent)
		_ = cmd.Process.Kill()
		return nil, invokererr.Wrap(invokererr.Channel, err, "dispatch entrypoint to child")
	}
	_ = unix.Close(entryParent)

	return &Child[R]{cmd: cmd, outFd: outParent}, nil
}

// Join blocks until the child sends its result (or exits without doing
// so) and reaps the process.
func (c *Child[R]) Join() (R, error) {
	var zero R
	box, ok, err := recvBoxed(c.outFd)
	_ = unix.Close(c.outFd)
	waitErr := c.cmd.Wait()
	c.waited = true
	if err != nil {
		return zero, invokererr.Wrap(invokererr.Channel, err, "receive child result")
	}
	if !ok {
		if waitErr != nil {
			return zero, invokererr.Wrap(invokererr.ChildFailed, waitErr, "child exited without producing a result")
		}
		return zero, invokererr.New(invokererr.NoValue, "child exited without producing a result")
	}
	result, ok := box.(*resultBox[R])
	if !ok {
		return zero, invokererr.New(invokererr.Codec, "child result has unexpected type %T", box)
	}
	return result.value, nil
}

// Kill terminates the child process without waiting for a result.
func (c *Child[R]) Kill() error {
	if c.cmd.Process == nil {
		return nil
	}
	return c.cmd.Process.Kill()
}

// Pid returns the child's process id.
func (c *Child[R]) Pid() int {
	if c.cmd.Process == nil {
		return -1
	}
	return c.cmd.Process.Pid
}
