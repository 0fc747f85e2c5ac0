package domain

import (
	"fmt"
	"strings"
	"time"
)

// ShareStatus is the lifecycle state of a Share. Stopped shares are removed
// from the registry outright, so every live record is active.
type ShareStatus string

const ShareActive ShareStatus = "active"

// Share is the viewer-facing record of one advertised screen-sharing session.
// The share secret is never part of this struct; it lives only inside the
// owner's registry.
type Share struct {
	ID               string
	OwnerID          string
	OwnerName        string
	RequiresPassword bool
	StartedAt        time.Time
	Status           ShareStatus
	ViewerID         string
	ViewerName       string
}

const shareIDPrefix = "share-"

// NewShareID builds a share identifier embedding the owner and the creation
// time, e.g. "share-P1-1718000000000". The owner can be recovered from it.
func NewShareID(ownerID string, now time.Time) string {
	return fmt.Sprintf("%s%s-%d", shareIDPrefix, ownerID, now.UnixMilli())
}

// ShareOwner recovers the owner id embedded in a share identifier.
func ShareOwner(shareID string) (string, bool) {
	rest, ok := strings.CutPrefix(shareID, shareIDPrefix)
	if !ok {
		return "", false
	}
	i := strings.LastIndexByte(rest, '-')
	if i <= 0 || i == len(rest)-1 {
		return "", false
	}
	return rest[:i], true
}
