// Package roster tracks the students registered on live connections.
package roster

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/classpoll/internal/domain"
)

// Registry maps connection ids to participants.
// Not safe for concurrent use; the app hub owns it.
type Registry struct {
	clock        clockwork.Clock
	participants map[string]domain.Participant
	seq          map[string]uint64
	next         uint64
}

func NewRegistry(clock clockwork.Clock) *Registry {
	return &Registry{
		clock:        clock,
		participants: make(map[string]domain.Participant),
		seq:          make(map[string]uint64),
	}
}

// Register stores a student for the connection, replacing any earlier entry
// for the same connection id.
func (r *Registry) Register(connectionID, displayName string) domain.Participant {
	p := domain.Participant{
		ID:          connectionID,
		DisplayName: strings.TrimSpace(displayName),
		Role:        domain.RoleStudent,
		JoinedAt:    r.clock.Now(),
	}
	r.next++
	r.participants[connectionID] = p
	r.seq[connectionID] = r.next
	return p
}

// Remove deletes the entry for connectionID and reports whether one existed.
func (r *Registry) Remove(connectionID string) bool {
	if _, ok := r.participants[connectionID]; !ok {
		return false
	}
	delete(r.participants, connectionID)
	delete(r.seq, connectionID)
	return true
}

// Get returns the participant registered on connectionID.
func (r *Registry) Get(connectionID string) (domain.Participant, bool) {
	p, ok := r.participants[connectionID]
	return p, ok
}

// List returns a snapshot ordered by registration.
func (r *Registry) List() []domain.Participant {
	ids := make([]string, 0, len(r.participants))
	for id := range r.participants {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int {
		return cmp.Compare(r.seq[a], r.seq[b])
	})

	list := make([]domain.Participant, 0, len(ids))
	for _, id := range ids {
		list = append(list, r.participants[id])
	}
	return list
}

// FindByDisplayName returns the earliest registered participant with the name.
// Display names are not unique; the first match wins.
func (r *Registry) FindByDisplayName(name string) (domain.Participant, bool) {
	name = strings.TrimSpace(name)
	for _, p := range r.List() {
		if p.DisplayName == name {
			return p, true
		}
	}
	return domain.Participant{}, false
}

// Len returns the number of registered participants.
func (r *Registry) Len() int {
	return len(r.participants)
}
