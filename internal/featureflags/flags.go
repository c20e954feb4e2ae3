package featureflags

import (
	"os"
	"strings"
)

// Flags used by the server. The reaper and snapshot workers default on and
// can be switched off for single-shot tooling or debugging.
const (
	Reaper         = "reaper"
	StockSnapshots = "stock_snapshots"
)

// Enabled returns true if a flag is enabled via environment variable.
// Flags are read from env as FLAG_<NAME>=true/1/yes (case-insensitive).
func Enabled(name string) bool {
	return parse(os.Getenv("FLAG_" + strings.ToUpper(name)))
}

// EnabledDefault is like Enabled but falls back to def when the variable is
// unset.
func EnabledDefault(name string, def bool) bool {
	v := os.Getenv("FLAG_" + strings.ToUpper(name))
	if v == "" {
		return def
	}
	return parse(v)
}

func parse(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
