// Package osutil inspects the resources available to the process.
package osutil

import (
	"os"
	"strconv"
	"strings"

	"github.com/pbnjay/memory"
)

// cgroup memory limit files, v2 first. An unrestricted v1 group reports a
// page-aligned MaxInt64, and v2 reports "max".
var cgroupMemoryLimits = []string{
	"/sys/fs/cgroup/memory.max",
	"/sys/fs/cgroup/memory/memory.limit_in_bytes",
}

const unrestrictedV1Limit = 9223372036854771712

// GetTotalMemory returns the memory available to the process: the container
// limit when one is set and below the machine's physical memory.
func GetTotalMemory() uint64 {
	total := memory.TotalMemory()

	for _, path := range cgroupMemoryLimits {
		if limit, ok := readMemoryLimit(path); ok && limit < total {
			return limit
		}
	}
	return total
}

func readMemoryLimit(path string) (uint64, bool) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	return parseMemoryLimit(string(raw))
}

func parseMemoryLimit(raw string) (uint64, bool) {
	limit, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || limit == 0 || limit == unrestrictedV1Limit {
		return 0, false
	}
	return limit, true
}
