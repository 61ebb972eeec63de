package sandbox

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/sunwalker/invoker/invokererr"
	"golang.org/x/sys/unix"
)

// WorkerTmp is the well-known location each worker builds its overlay
// under. It is private to the worker's own mount namespace once Prepare
// has unshared it, so concurrent workers on the same host never collide
// despite sharing this path.
const WorkerTmp = "/tmp/worker"

func overlayDir(sub string) string { return filepath.Join(WorkerTmp, sub) }

// Image is a built, ready-to-enter sandbox overlay for one worker. Build
// it once per worker with Prepare and reuse it for every submission that
// worker runs; Teardown unmounts the overlay tree mountOverlay set up and
// removes its directories, leaving the tmpfs Prepare mounted at
// WorkerTmp in place.
type Image struct {
	packageRoot string
	cfg         *Config
}

// Prepare unshares the calling OS thread's mount namespace, mounts a
// size-bounded tmpfs at WorkerTmp, layers an overlayfs with packageRoot
// as its read-only lower directory, binds cfg's BoundFiles and /dev into
// it, and returns a handle used to enter it per submission (spec §4,
// "make_worker_tmp" + "make_sandbox").
//
// Prepare locks the calling goroutine to its OS thread for the lifetime
// of the process: Linux mount namespaces are a per-thread property, and
// every later sandbox operation on this Image must run on that same
// thread. Call Prepare once, early, from a goroutine dedicated to owning
// one worker.
func Prepare(packageRoot string, cfg *Config) (*Image, error) {
	runtime.LockOSThread()

	if err := unix.Unshare(unix.CLONE_NEWNS); err != nil {
		return nil, invokererr.Wrap(invokererr.Sandbox, err, "unshare mount namespace")
	}

	mountOpts := fmt.Sprintf("size=%d,nr_inodes=%d", cfg.MaxSizeBytes, cfg.MaxInodes)
	if err := os.MkdirAll(WorkerTmp, 0o755); err != nil {
		return nil, invokererr.Wrap(invokererr.Sandbox, err, "create %s", WorkerTmp)
	}
	if err := unix.Mount("none", WorkerTmp, "tmpfs", 0, mountOpts); err != nil {
		return nil, invokererr.Wrap(invokererr.Sandbox, err, "mount tmpfs on %s", WorkerTmp)
	}

	img := &Image{packageRoot: packageRoot, cfg: cfg}
	if err := img.mountOverlay(); err != nil {
		return nil, err
	}
	return img, nil
}

func (img *Image) mountOverlay() error {
	for _, dir := range []string{"user-area", "work", "overlay"} {
		if err := os.Mkdir(overlayDir(dir), 0o755); err != nil {
			return invokererr.Wrap(invokererr.Sandbox, err, "create %s", overlayDir(dir))
		}
	}

	opts := fmt.Sprintf("lowerdir=%s,upperdir=%s,workdir=%s",
		img.packageRoot, overlayDir("user-area"), overlayDir("work"))
	if err := unix.Mount("overlay", overlayDir("overlay"), "overlay", 0, opts); err != nil {
		return invokererr.Wrap(invokererr.Sandbox, err, "mount overlay")
	}

	spaceDir := filepath.Join(overlayDir("overlay"), "space")
	if err := os.Mkdir(spaceDir, 0o755); err != nil {
		return invokererr.Wrap(invokererr.Sandbox, err, "create %s", spaceDir)
	}

	for _, bf := range img.cfg.BoundFiles {
		dst := filepath.Join(overlayDir("overlay"), bf.SandboxPath)
		if err := os.WriteFile(dst, nil, 0o644); err != nil {
			return invokererr.Wrap(invokererr.Sandbox, err, "create bound file placeholder %s", dst)
		}
		if err := bindMountReadOnly(bf.HostPath, dst); err != nil {
			return invokererr.Wrap(invokererr.Sandbox, err, "bind-mount %s -> %s", bf.HostPath, dst)
		}
	}

	devDir := filepath.Join(overlayDir("overlay"), "dev")
	if err := os.Mkdir(devDir, 0o755); err != nil {
		return invokererr.Wrap(invokererr.Sandbox, err, "create %s", devDir)
	}
	if err := bindMountReadOnly("/tmp/dev", devDir); err != nil {
		return invokererr.Wrap(invokererr.Sandbox, err, "bind-mount /dev")
	}

	if err := os.Chown(spaceDir, NobodyID, NobodyID); err != nil {
		return invokererr.Wrap(invokererr.Sandbox, err, "chown %s", spaceDir)
	}

	log.WithField("overlay", overlayDir("overlay")).Debug("sandbox: overlay ready")
	return nil
}

// NobodyID is the uid/gid the sandbox's user area is made accessible
// to — the unprivileged id the source maps onto the sandbox's uid 0
// (spec §4, "65534").
const NobodyID = 65534

func bindMountReadOnly(src, dst string) error {
	if err := unix.Mount(src, dst, "", unix.MS_BIND, ""); err != nil {
		return err
	}
	return unix.Mount(src, dst, "", unix.MS_BIND|unix.MS_REMOUNT|unix.MS_RDONLY, "")
}

// Root returns the path to mount as the new process root when entering
// this image (see RunInSandbox).
func (img *Image) Root() string { return overlayDir("overlay") }

// Teardown unmounts every filesystem mounted under WorkerTmp, deepest
// first, and removes the scratch directories (spec §4, "remove_sandbox").
// It is idempotent with respect to the mount table: mounts already gone
// are simply absent from /proc/self/mounts and skipped.
func (img *Image) Teardown() error {
	mounts, err := mountsUnder(WorkerTmp + "/overlay")
	if err != nil {
		return invokererr.Wrap(invokererr.Sandbox, err, "read /proc/self/mounts")
	}
	for i := len(mounts) - 1; i >= 0; i-- {
		if err := unix.Unmount(mounts[i], 0); err != nil {
			return invokererr.Wrap(invokererr.Sandbox, err, "unmount %s", mounts[i])
		}
	}
	for _, dir := range []string{"user-area", "work", "overlay"} {
		if err := os.RemoveAll(overlayDir(dir)); err != nil {
			return invokererr.Wrap(invokererr.Sandbox, err, "remove %s", overlayDir(dir))
		}
	}
	return nil
}

func mountsUnder(prefix string) ([]string, error) {
	f, err := os.Open("/proc/self/mounts")
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		if strings.HasPrefix(fields[1], prefix) {
			out = append(out, fields[1])
		}
	}
	return out, scanner.Err()
}
