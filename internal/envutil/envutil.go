// Package envutil reads environment values for flag defaults, before viper
// has been set up.
package envutil

import "strings"

// String returns the trimmed value of the environment variable, or def if empty.
func String(getenv func(string) string, key string, def string) string {
	if v := strings.TrimSpace(getenv(key)); v != "" {
		return v
	}
	return def
}
