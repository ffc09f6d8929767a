// Package env reads process settings that must be known before the
// envconfig-driven config loads, such as the log format.
package env

import (
	"os"
	"strings"
)

const Prefix = "TRADELEDGER_"

// Get returns TRADELEDGER_<name>, then the bare <name>, then fallback.
func Get(name, fallback string) string {
	name = strings.TrimPrefix(name, Prefix)
	for _, key := range []string{Prefix + name, name} {
		if val := strings.TrimSpace(os.Getenv(key)); val != "" {
			return val
		}
	}
	return fallback
}
