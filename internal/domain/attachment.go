package domain

import (
	"fmt"
	"time"
)

type OwnerType string

const (
	OwnerProject OwnerType = "project"
	OwnerTask    OwnerType = "task"
	OwnerTicket  OwnerType = "ticket"
)

func (o OwnerType) Valid() bool {
	switch o {
	case OwnerProject, OwnerTask, OwnerTicket:
		return true
	default:
		return false
	}
}

// Attachment is the metadata row of an uploaded file; the bytes live in the
// blob store under ObjectKey.
type Attachment struct {
	ID          string
	OwnerType   OwnerType
	OwnerID     string
	ObjectKey   string
	FileName    string
	ContentType string
	SizeBytes   int64
	CreatedAt   time.Time
}

// HumanSize renders a byte count with binary units, e.g. "1.50 MB".
func HumanSize(n int64) string {
	units := []string{"B", "KB", "MB", "GB", "TB"}
	size := float64(n)
	i := 0
	for size >= 1024 && i < len(units)-1 {
		size /= 1024
		i++
	}
	if i == 0 {
		return fmt.Sprintf("%d B", n)
	}
	return fmt.Sprintf("%.2f %s", size, units[i])
}
