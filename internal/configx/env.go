package configx

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "AGROLINK_"

// LoadDotEnv loads variables from the given .env files (default ".env") into
// the process environment without overriding variables that are already set.
// Missing files are ignored.
func LoadDotEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		_ = godotenv.Load(f)
	}
}

func lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + name)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

// EnvString sets *dst from AGROLINK_<name> when it is set and non-empty.
func EnvString(name string, dst *string) {
	if v, ok := lookup(name); ok {
		*dst = v
	}
}

// EnvDuration sets *dst from AGROLINK_<name> ("30s", "2m").
// Unparseable values are ignored.
func EnvDuration(name string, dst *time.Duration) {
	if v, ok := lookup(name); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// EnvBool sets *dst from AGROLINK_<name> using strconv.ParseBool.
func EnvBool(name string, dst *bool) {
	if v, ok := lookup(name); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// EnvList sets *dst from a comma separated AGROLINK_<name>, dropping blanks.
func EnvList(name string, dst *[]string) {
	v, ok := lookup(name)
	if !ok {
		return
	}
	*dst = SplitList(v)
}

// SplitList splits a comma separated list and drops blank items.
func SplitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
