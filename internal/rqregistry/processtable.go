package rqregistry

import (
	"bufio"
	"os/exec"
	"strconv"
	"strings"
)

// ProcessTablePIDs shells out to a portable `ps` invocation and returns the
// set of pids currently alive on this host. The process table, not Redis, is
// authoritative for worker liveness (spec.md §4.6): a crashed worker leaves
// its registry entry behind until the next prune finds its pid gone here.
func ProcessTablePIDs() (map[int]bool, error) {
	cmd := exec.Command("ps", "-e", "-o", "pid=")
	out, err := cmd.Output()
	if err != nil {
		return nil, err
	}

	pids := make(map[int]bool)
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		field := strings.TrimSpace(scanner.Text())
		if field == "" {
			continue
		}
		pid, err := strconv.Atoi(field)
		if err != nil {
			continue
		}
		pids[pid] = true
	}
	return pids, scanner.Err()
}
