package cgroup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCorePathLayout(t *testing.T) {
	require.Equal(t, filepath.Join(RootPath, "core-3"), corePath(3))
}

func TestUnpinnedPidsSkipsUnreadableEntries(t *testing.T) {
	if _, err := os.Stat("/proc/self/cpuset"); err != nil {
		t.Skip("cpuset cgroup v1 hierarchy not present in this environment")
	}
	_, err := unpinnedPids()
	require.NoError(t, err)
}
