// Package community provides read-only lookups of display names and
// community membership used when presenting markets and ledgers. It is a
// collaborator of the wagering engine, not part of its correctness.
package community

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	cache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/sidepot/sidepot/internal/repository"
)

// Directory resolves user display names within a community.
type Directory interface {
	DisplayName(ctx context.Context, communityID, userID uuid.UUID) (string, error)
	Members(ctx context.Context, communityID uuid.UUID) (map[uuid.UUID]string, error)
}

// CachedDirectory is a read-through cache over the member repository.
// Membership changes rarely relative to how often ledgers are rendered.
type CachedDirectory struct {
	members repository.MemberRepository
	cache   *cache.Cache
	logger  *logrus.Logger
}

// NewCachedDirectory creates a directory with the given entry TTL
func NewCachedDirectory(members repository.MemberRepository, ttl time.Duration, logger *logrus.Logger) *CachedDirectory {
	return &CachedDirectory{
		members: members,
		cache:   cache.New(ttl, ttl*2),
		logger:  logger,
	}
}

// DisplayName resolves one user's display name, serving from cache when
// possible.
func (d *CachedDirectory) DisplayName(ctx context.Context, communityID, userID uuid.UUID) (string, error) {
	key := fmt.Sprintf("name:%s:%s", communityID, userID)
	if cached, found := d.cache.Get(key); found {
		return cached.(string), nil
	}

	name, err := d.members.DisplayName(ctx, communityID, userID)
	if err != nil {
		return "", err
	}

	d.cache.Set(key, name, cache.DefaultExpiration)
	return name, nil
}

// Members resolves the full membership of a community, serving from cache
// when possible.
func (d *CachedDirectory) Members(ctx context.Context, communityID uuid.UUID) (map[uuid.UUID]string, error) {
	key := fmt.Sprintf("members:%s", communityID)
	if cached, found := d.cache.Get(key); found {
		return cached.(map[uuid.UUID]string), nil
	}

	members, err := d.members.ListMembers(ctx, communityID)
	if err != nil {
		return nil, err
	}

	d.cache.Set(key, members, cache.DefaultExpiration)
	return members, nil
}

// Invalidate drops cached entries for a community after a membership
// change notification.
func (d *CachedDirectory) Invalidate(communityID uuid.UUID) {
	d.cache.Delete(fmt.Sprintf("members:%s", communityID))
	d.logger.WithField("community_id", communityID).Debug("Directory cache invalidated")
}
