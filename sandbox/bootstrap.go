package sandbox

import (
	"bufio"
	"os"
	"os/exec"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/sunwalker/invoker/invokererr"
	"github.com/sunwalker/invoker/multiproc"
	"golang.org/x/sys/unix"
)

// envRootKey carries the sandbox root a freshly unshared child must
// pivot into, from RunInSandbox's configure hook to that child's own
// Bootstrap call. It only ever appears in the child's environment — the
// top-level invoker process never sets it on itself.
const envRootKey = "SUNWALKER_SANDBOX_ROOT"

// Bootstrap completes the sandbox entry sequence for a process spawned
// by RunInSandbox. It must be called at the very top of main, before
// multiproc.Main, so that a sandbox child has pivoted into its root
// before multiproc.Main runs its entrypoint: together the two calls
// recognize whichever re-exec role (if any) the current process was
// started in.
// Bootstrap is a no-op unless the environment marks this process as a
// sandbox child.
func Bootstrap() {
	root := os.Getenv(envRootKey)
	if root == "" {
		return
	}
	if err := enterRoot(root); err != nil {
		log.WithError(err).Fatal("sandbox: failed to enter sandbox root")
	}
}

// enterRoot performs the pivot_root dance: the kernel marks a freshly
// mounted overlay MNT_LOCKED inside a user namespace, and pivot_root
// refuses a locked new root, so the overlay is first bind-mounted onto
// itself to clear that flag (spec §4, grounded on
// original_source/src/image/package.rs's run_in_sandbox).
func enterRoot(root string) error {
	if err := unix.Mount(root, root, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
		return invokererr.Wrap(invokererr.Sandbox, err, "bind-mount sandbox root onto itself")
	}
	if err := os.Chdir(root); err != nil {
		return invokererr.Wrap(invokererr.Sandbox, err, "chdir to sandbox root")
	}
	if err := unix.PivotRoot(".", "."); err != nil {
		return invokererr.Wrap(invokererr.Sandbox, err, "pivot_root")
	}
	if err := unix.Unmount(".", unix.MNT_DETACH); err != nil {
		return invokererr.Wrap(invokererr.Sandbox, err, "unmount former root")
	}
	if err := os.Chdir("/"); err != nil {
		return invokererr.Wrap(invokererr.Sandbox, err, "chdir to new root")
	}

	applyDefaultEnv()
	if err := applyPackageEnv("/.sunwalker/env"); err != nil {
		log.WithError(err).Warn("sandbox: no package environment file at /.sunwalker/env")
	}
	return nil
}

func applyDefaultEnv() {
	defaults := map[string]string{
		"LD_LIBRARY_PATH": "/usr/local/lib64:/usr/local/lib:/usr/lib64:/usr/lib:/lib64:/lib",
		"LANGUAGE":        "en_US",
		"LC_ALL":          "en_US.UTF-8",
		"LC_ADDRESS":      "en_US.UTF-8",
		"LC_NAME":         "en_US.UTF-8",
		"LC_MONETARY":     "en_US.UTF-8",
		"LC_PAPER":        "en_US.UTF-8",
		"LC_IDENTIFIER":   "en_US.UTF-8",
		"LC_TELEPHONE":    "en_US.UTF-8",
		"LC_MEASUREMENT":  "en_US.UTF-8",
		"LC_TIME":         "en_US.UTF-8",
		"LC_NUMERIC":      "en_US.UTF-8",
		"LANG":            "en_US.UTF-8",
	}
	for k, v := range defaults {
		os.Setenv(k, v)
	}
}

func applyPackageEnv(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		name, value, ok := strings.Cut(line, "=")
		if !ok {
			return invokererr.New(invokererr.Sandbox, "malformed line in %s: %q", path, line)
		}
		os.Setenv(name, value)
	}
	return scanner.Err()
}

// sandboxCloneFlags are the namespaces the source unshares for every
// submission: mount, IPC, network, user, UTS and PID, plus detaching
// the classic System V semaphore namespace.
const sandboxCloneFlags = syscall.CLONE_NEWNS |
	syscall.CLONE_NEWIPC |
	syscall.CLONE_NEWNET |
	syscall.CLONE_NEWUSER |
	syscall.CLONE_NEWUTS |
	syscall.CLONE_NEWPID |
	syscall.CLONE_SYSVSEM

// RunInSandbox spawns entry, bound to args, inside a fresh set of
// namespaces rooted at img, uid/gid-mapped so the sandboxed process sees
// itself as root while holding none on the host. os/exec performs the
// equivalent of the source's fork+SIGSTOP+write-uid-gid-maps+SIGCONT
// dance itself once UidMappings/GidMappings are set on SysProcAttr: the
// Go runtime writes the maps before the child proceeds, replacing that
// hand-rolled synchronization (spec §4, §6 "process isolation").
func RunInSandbox[Args multiproc.Encoder, PArgs multiproc.DecoderPtr[Args], R multiproc.Encoder, PR multiproc.DecoderPtr[R]](
	img *Image, entry *multiproc.EntryPoint[Args, PArgs, R, PR], args Args,
) (*multiproc.Child[R], error) {
	return multiproc.SpawnWith(func(cmd *exec.Cmd) {
		cmd.Env = append(os.Environ(), envRootKey+"="+img.Root())
		cmd.SysProcAttr = &syscall.SysProcAttr{
			Cloneflags: sandboxCloneFlags,
			UidMappings: []syscall.SysProcIDMap{
				{ContainerID: 0, HostID: NobodyID, Size: 1},
			},
			GidMappings: []syscall.SysProcIDMap{
				{ContainerID: 0, HostID: NobodyID, Size: 1},
			},
			GidMappingsEnableSetgroups: false,
		}
	}, entry, args)
}
