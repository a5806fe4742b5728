package launch

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const maxNameLen = 30

// autoLogName builds a collision-resistant artifact name:
// log_<command name>_<timestamp>_<random suffix>.log. The random suffix
// keeps two jobs started within the same second apart.
func autoLogName(command string, now time.Time) string {
	return fmt.Sprintf("log_%s_%s_%s.log",
		commandName(command),
		now.Format("20060102_150405"),
		uuid.NewString()[:8])
}

// commandName extracts a short filesystem-safe name from a command string:
// the first token, path and extension stripped, non [A-Za-z0-9_-] runs
// replaced, capped at 30 chars. "../bar/foo.sh -v" becomes "foo",
// "npm install" becomes "npm".
func commandName(command string) string {
	command = strings.TrimSpace(command)
	first := command
	if i := strings.IndexAny(command, " \t|;"); i >= 0 {
		first = command[:i]
	}
	name := filepath.Base(first)
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		name = name[:i]
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	safe := b.String()
	if len(safe) > maxNameLen {
		safe = safe[:maxNameLen]
	}
	safe = strings.Trim(safe, "_")
	if safe == "" {
		safe = "command"
	}
	return safe
}
