package requestid

import (
	"strings"

	"github.com/google/uuid"
)

const Header = "X-Request-Id"

func New() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Sanitize keeps caller supplied ids short and printable; it returns "" when
// the value should be replaced.
func Sanitize(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || len(id) > 128 {
		return ""
	}
	for _, r := range id {
		if r < 0x21 || r > 0x7e {
			return ""
		}
	}
	return id
}
