// Package cgroup pins worker processes to dedicated CPU cores through
// the v1 cpuset controller, so a submission's runtime never shares a
// core with the scheduler, another submission, or the kernel's own
// housekeeping (spec §4, grounded on original_source/src/cgroups.rs).
package cgroup

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/sunwalker/invoker/invokererr"
)

// RootPath is the cpuset this invoker keeps every not-yet-pinned task
// under, and the parent of every per-core subgroup PinToCore creates.
const RootPath = "/sys/fs/cgroup/cpuset/sunwalker_root"

// CreateRootCpuset creates RootPath if it does not already exist and
// migrates every process in the root cpuset (one not yet assigned to
// any cpuset of its own) into it, so that later per-core cpusets can
// carve exclusive cores out of the remaining ones (spec §4,
// "create_root_cpuset").
func CreateRootCpuset() error {
	if err := os.MkdirAll(RootPath, 0o755); err != nil {
		return invokererr.Wrap(invokererr.Sandbox, err, "create %s", RootPath)
	}

	pids, err := unpinnedPids()
	if err != nil {
		return invokererr.Wrap(invokererr.Sandbox, err, "scan /proc for unpinned tasks")
	}

	// The tasks file accepts a single pid per write.
	tasksPath := filepath.Join(RootPath, "tasks")
	for _, pid := range pids {
		if err := os.WriteFile(tasksPath, []byte(strconv.Itoa(pid)), 0o644); err != nil {
			return invokererr.Wrap(invokererr.Sandbox, err, "write pid %d to %s", pid, tasksPath)
		}
	}
	log.WithField("count", len(pids)).Debug("cgroup: migrated unpinned tasks into root cpuset")
	return nil
}

func unpinnedPids() ([]int, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, err
	}

	var pids []int
	for _, entry := range entries {
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		cpuset, err := os.ReadFile(filepath.Join("/proc", entry.Name(), "cpuset"))
		if err != nil {
			// The process may have exited between ReadDir and here;
			// that's not a scan failure.
			continue
		}
		if string(cpuset) == "/\n" {
			pids = append(pids, pid)
		} else {
			log.WithFields(log.Fields{"pid": pid, "cpuset": strings.TrimSpace(string(cpuset))}).
				Warn("cgroup: process already belongs to a non-root cpuset")
		}
	}
	return pids, nil
}

// PinToCore creates (if needed) a per-core cpuset under RootPath
// restricted to core, and moves pid into it. This is the per-worker
// pinning the source leaves to its caller rather than detailing inside
// cgroups.rs itself (spec §4 supplemented feature).
func PinToCore(core int, pid int) error {
	dir := corePath(core)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return invokererr.Wrap(invokererr.Sandbox, err, "create %s", dir)
	}

	if err := copyFromRoot(dir, "cpuset.mems"); err != nil {
		return err
	}
	cpusPath := filepath.Join(dir, "cpuset.cpus")
	if err := os.WriteFile(cpusPath, []byte(strconv.Itoa(core)), 0o644); err != nil {
		return invokererr.Wrap(invokererr.Sandbox, err, "write %s", cpusPath)
	}

	tasksPath := filepath.Join(dir, "tasks")
	if err := os.WriteFile(tasksPath, []byte(strconv.Itoa(pid)), 0o644); err != nil {
		return invokererr.Wrap(invokererr.Sandbox, err, "pin pid %d to core %d", pid, core)
	}
	return nil
}

func copyFromRoot(dir, file string) error {
	value, err := os.ReadFile(filepath.Join(RootPath, file))
	if err != nil {
		return invokererr.Wrap(invokererr.Sandbox, err, "read root %s", file)
	}
	if err := os.WriteFile(filepath.Join(dir, file), value, 0o644); err != nil {
		return invokererr.Wrap(invokererr.Sandbox, err, "write %s", filepath.Join(dir, file))
	}
	return nil
}

func corePath(core int) string {
	return filepath.Join(RootPath, fmt.Sprintf("core-%d", core))
}

// RemoveCore deletes the per-core cpuset created by PinToCore. It must
// be called only once every task has left the cpuset's tasks file.
func RemoveCore(core int) error {
	return os.Remove(corePath(core))
}
