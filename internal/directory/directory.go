package directory

import (
	"context"
	"time"

	"parley/internal/models"

	"github.com/c-pro/geche"
)

// Store is the profile lookup surface the directory needs from persistence.
type Store interface {
	GetUser(id string) (models.Profile, error)
	ListUsers(excluding string) ([]models.Profile, error)
}

// Directory resolves user identifiers to public profiles, with a short TTL
// cache in front of the store since every broadcast enrichment hits it.
type Directory struct {
	store Store
	cache geche.Geche[string, models.Profile]
}

func New(ctx context.Context, store Store) *Directory {
	return &Directory{
		store: store,
		cache: geche.NewMapTTLCache[string, models.Profile](ctx, time.Minute, 10*time.Second),
	}
}

// Resolve returns the profile for an ID. Unknown or unreadable IDs resolve
// to a bare profile carrying only the ID, so enrichment never blocks
// message delivery.
func (d *Directory) Resolve(id string) models.Profile {
	if profile, err := d.cache.Get(id); err == nil {
		return profile
	}

	profile, err := d.store.GetUser(id)
	if err != nil {
		return models.Profile{ID: id}
	}

	d.cache.Set(id, profile)
	return profile
}

// ListUsers returns all profiles except the excluded one.
func (d *Directory) ListUsers(excluding string) ([]models.Profile, error) {
	return d.store.ListUsers(excluding)
}
