package sandbox

import (
	"os"
	"strconv"
	"strings"

	appErr "pdjudge/pkg/errors"
)

// usageRecord is the resource accounting the jail writes after a run.
type usageRecord struct {
	TimeMs     int64
	MemoryKB   int64
	ExitCode   int
	ExitSignal int
}

// parseUsageFile reads and parses the jail's usage record. The record is a
// set of key:value lines; the four keys time, memory, exit and signal must
// all be present exactly once. Anything else means the run cannot be
// trusted and the whole judgment must abort.
func parseUsageFile(path string) (usageRecord, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return usageRecord{}, appErr.Wrapf(err, appErr.SandboxProtocol, "read usage record failed")
	}
	return parseUsage(string(body))
}

func parseUsage(body string) (usageRecord, error) {
	var rec usageRecord
	seen := make(map[string]bool, 4)
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return usageRecord{}, appErr.Newf(appErr.SandboxProtocol, "usage record line %q has no separator", line)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if seen[key] {
			return usageRecord{}, appErr.Newf(appErr.SandboxProtocol, "usage record key %q repeated", key)
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return usageRecord{}, appErr.Newf(appErr.SandboxProtocol, "usage record key %q has non-numeric value %q", key, value)
		}
		switch key {
		case "time":
			rec.TimeMs = n
		case "memory":
			rec.MemoryKB = n
		case "exit":
			rec.ExitCode = int(n)
		case "signal":
			rec.ExitSignal = int(n)
		default:
			return usageRecord{}, appErr.Newf(appErr.SandboxProtocol, "usage record key %q is unknown", key)
		}
		seen[key] = true
	}
	for _, key := range []string{"time", "memory", "exit", "signal"} {
		if !seen[key] {
			return usageRecord{}, appErr.Newf(appErr.SandboxProtocol, "usage record key %q is missing", key)
		}
	}
	return rec, nil
}
