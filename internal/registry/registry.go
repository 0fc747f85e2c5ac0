// Package registry holds the authoritative table of screen-shares owned by
// the local process, plus the read-only mirror of every remote share learned
// from broadcast messages.
package registry

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"lanparty/screenshare/internal/domain"
)

type entry struct {
	share domain.Share
	// password is only ever set on owned shares. Mirrored entries never
	// carry the secret; remote processes compare, never store.
	password string
}

// Registry is the single source of truth for which shares exist and who is
// viewing each. Mutations to owned shares broadcast a control message so
// every other process's mirror stays consistent; mirrored entries are only
// ever mutated by applying such broadcasts.
type Registry struct {
	localID   string
	localName string
	signaler  domain.Signaler

	mu     sync.Mutex
	shares map[string]*entry

	now func() time.Time
}

// New creates a registry for the local participant.
func New(localID, localName string, signaler domain.Signaler) *Registry {
	return &Registry{
		localID:   localID,
		localName: localName,
		signaler:  signaler,
		shares:    make(map[string]*entry),
		now:       time.Now,
	}
}

// Create registers a new owned share and broadcasts screen-share-start. The
// password itself is never part of the broadcast, only the hasPassword flag.
func (r *Registry) Create(requiresPassword bool, password string) (domain.Share, error) {
	if requiresPassword && password == "" {
		return domain.Share{}, fmt.Errorf("password required but empty")
	}

	r.mu.Lock()
	started := r.now()
	share := domain.Share{
		ID:               domain.NewShareID(r.localID, started),
		OwnerID:          r.localID,
		OwnerName:        r.localName,
		RequiresPassword: requiresPassword,
		StartedAt:        started,
		Status:           domain.ShareActive,
	}
	r.shares[share.ID] = &entry{share: share, password: password}
	r.mu.Unlock()

	r.send(domain.Message{
		Type:        domain.TypeShareStart,
		From:        r.localID,
		ShareID:     share.ID,
		PlayerName:  r.localName,
		HasPassword: requiresPassword,
	})
	return share, nil
}

// Remove deletes an owned share and broadcasts screen-share-stop. Removing a
// share that does not exist (or was already removed) is a no-op.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	e, ok := r.shares[id]
	if !ok || e.share.OwnerID != r.localID {
		r.mu.Unlock()
		return false
	}
	delete(r.shares, id)
	r.mu.Unlock()

	r.send(domain.Message{
		Type:    domain.TypeShareStop,
		From:    r.localID,
		ShareID: id,
	})
	return true
}

// MarkViewer records the exclusive viewer of an owned share. It refuses with
// ErrViewerConflict if a different viewer already holds the slot; marking the
// same viewer twice is a no-op. On success an update is broadcast.
func (r *Registry) MarkViewer(id, viewerID, viewerName string) error {
	r.mu.Lock()
	e, ok := r.shares[id]
	if !ok || e.share.OwnerID != r.localID {
		r.mu.Unlock()
		return domain.ErrShareNotFound
	}
	if e.share.ViewerID == viewerID {
		r.mu.Unlock()
		return nil
	}
	if e.share.ViewerID != "" {
		r.mu.Unlock()
		return domain.ErrViewerConflict
	}
	e.share.ViewerID = viewerID
	e.share.ViewerName = viewerName
	r.mu.Unlock()

	r.send(domain.Message{
		Type:       domain.TypeShareUpdate,
		From:       r.localID,
		ShareID:    id,
		ViewerID:   viewerID,
		ViewerName: viewerName,
	})
	return nil
}

// ClearViewer empties the viewer slot of an owned share and broadcasts the
// update. Clearing an already-empty slot is a no-op.
func (r *Registry) ClearViewer(id string) {
	r.mu.Lock()
	e, ok := r.shares[id]
	if !ok || e.share.OwnerID != r.localID || e.share.ViewerID == "" {
		r.mu.Unlock()
		return
	}
	e.share.ViewerID = ""
	e.share.ViewerName = ""
	r.mu.Unlock()

	r.send(domain.Message{
		Type:    domain.TypeShareUpdate,
		From:    r.localID,
		ShareID: id,
	})
}

// CheckPassword compares a supplied secret against an owned share's password.
func (r *Registry) CheckPassword(id, supplied string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.shares[id]
	if !ok || e.share.OwnerID != r.localID {
		return domain.ErrShareNotFound
	}
	if e.share.RequiresPassword && e.password != supplied {
		return domain.ErrPasswordRejected
	}
	return nil
}

// Get returns a copy of a share, owned or mirrored.
func (r *Registry) Get(id string) (domain.Share, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.shares[id]
	if !ok {
		return domain.Share{}, false
	}
	return e.share, true
}

// Owns reports whether the local process is the authority for the share.
func (r *Registry) Owns(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.shares[id]
	return ok && e.share.OwnerID == r.localID
}

// List returns every known share ordered by start time. The share secret is
// never part of the returned records.
func (r *Registry) List() []domain.Share {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.Share, 0, len(r.shares))
	for _, e := range r.shares {
		out = append(out, e.share)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ApplyStart adds a mirrored entry for a remote share. Broadcast echoes of
// our own shares are ignored.
func (r *Registry) ApplyStart(msg domain.Message) {
	if msg.From == r.localID {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.shares[msg.ShareID] = &entry{share: domain.Share{
		ID:               msg.ShareID,
		OwnerID:          msg.From,
		OwnerName:        msg.PlayerName,
		RequiresPassword: msg.HasPassword,
		StartedAt:        r.now(),
		Status:           domain.ShareActive,
	}}
}

// ApplyStop removes a mirrored entry. Unknown shares are dropped silently.
func (r *Registry) ApplyStop(msg domain.Message) {
	if msg.From == r.localID {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.shares[msg.ShareID]
	if !ok || e.share.OwnerID != msg.From {
		return
	}
	delete(r.shares, msg.ShareID)
}

// ApplyUpdate mutates the viewer fields of a mirrored entry. Unknown shares
// are dropped silently.
func (r *Registry) ApplyUpdate(msg domain.Message) {
	if msg.From == r.localID {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.shares[msg.ShareID]
	if !ok || e.share.OwnerID != msg.From {
		return
	}
	e.share.ViewerID = msg.ViewerID
	e.share.ViewerName = msg.ViewerName
}

// DropOwner removes every mirrored share belonging to a departed participant
// and returns the removed ids.
func (r *Registry) DropOwner(ownerID string) []string {
	if ownerID == r.localID {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	for id, e := range r.shares {
		if e.share.OwnerID == ownerID {
			delete(r.shares, id)
			removed = append(removed, id)
		}
	}
	return removed
}

func (r *Registry) send(msg domain.Message) {
	if err := r.signaler.Send(msg); err != nil {
		log.Printf("[registry] broadcast %s: %v", msg.Type, err)
	}
}
