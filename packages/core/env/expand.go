package env

import (
	"os"
	"regexp"
	"strings"
)

var varPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// Lookup resolves variable names, first from Vars and then from the process
// environment.
type Lookup struct {
	Vars map[string]string
}

func (l Lookup) Get(name string) (string, bool) {
	if v, ok := l.Vars[name]; ok {
		return v, true
	}
	return os.LookupEnv(name)
}

// Expand replaces ${NAME} and ${NAME:-default} in s. Unknown names without a
// default are reported in missing and left untouched.
func (l Lookup) Expand(s string) (result string, missing []string) {
	if !strings.Contains(s, "${") {
		return s, nil
	}
	result = varPattern.ReplaceAllStringFunc(s, func(match string) string {
		m := varPattern.FindStringSubmatch(match)
		if v, ok := l.Get(m[1]); ok && v != "" {
			return v
		}
		if m[2] != "" {
			return m[3]
		}
		missing = append(missing, m[1])
		return match
	})
	return result, missing
}
