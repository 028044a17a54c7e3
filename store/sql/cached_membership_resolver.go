package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-connectors/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const (
	membershipCacheKeyPrefix = "go-connectors::membership::v1"

	DefaultMembershipCacheTTL = 30 * time.Second
)

type membershipAnswer struct {
	Membership core.Membership
	Found      bool
}

// CachedMembershipResolver puts a read-through cache in front of a
// MembershipResolver. Negative answers are cached as well, so the TTL bounds
// how long a newly added member waits.
type CachedMembershipResolver struct {
	base  core.MembershipResolver
	cache repositorycache.CacheService
}

func NewCachedMembershipResolver(
	base core.MembershipResolver,
	cacheService repositorycache.CacheService,
) (*CachedMembershipResolver, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base membership resolver is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: membership cache service is required")
	}
	return &CachedMembershipResolver{base: base, cache: cacheService}, nil
}

// NewMembershipCache builds the cache service used by
// CachedMembershipResolver.
func NewMembershipCache(ttl time.Duration) (repositorycache.CacheService, error) {
	config := repositorycache.DefaultConfig()
	if ttl <= 0 {
		ttl = DefaultMembershipCacheTTL
	}
	config.TTL = ttl
	return repositorycache.NewCacheService(config)
}

// MembershipCacheKey returns go-connectors::membership::v1::<kind>::<segments...>
// with each segment path-escaped.
func MembershipCacheKey(kind string, segments ...string) string {
	parts := []string{membershipCacheKeyPrefix, kind}
	for _, segment := range segments {
		parts = append(parts, url.PathEscape(strings.TrimSpace(segment)))
	}
	return strings.Join(parts, "::")
}

func (r *CachedMembershipResolver) PrimaryMembership(ctx context.Context, userID string) (core.Membership, error) {
	if r == nil || r.base == nil || r.cache == nil {
		return core.Membership{}, fmt.Errorf("sqlstore: cached membership resolver is not configured")
	}
	key := MembershipCacheKey("primary", userID)
	answer, err := repositorycache.GetOrFetch(ctx, r.cache, key, func(ctx context.Context) (membershipAnswer, error) {
		membership, fetchErr := r.base.PrimaryMembership(ctx, userID)
		if errors.Is(fetchErr, core.ErrNoMembership) {
			return membershipAnswer{}, nil
		}
		if fetchErr != nil {
			return membershipAnswer{}, fetchErr
		}
		return membershipAnswer{Membership: membership, Found: true}, nil
	})
	if err != nil {
		return core.Membership{}, err
	}
	if !answer.Found {
		return core.Membership{}, core.ErrNoMembership
	}
	return answer.Membership, nil
}

func (r *CachedMembershipResolver) IsMember(ctx context.Context, userID string, organizationID string) (bool, error) {
	if r == nil || r.base == nil || r.cache == nil {
		return false, fmt.Errorf("sqlstore: cached membership resolver is not configured")
	}
	key := MembershipCacheKey("member", userID, organizationID)
	return repositorycache.GetOrFetch(ctx, r.cache, key, func(ctx context.Context) (bool, error) {
		return r.base.IsMember(ctx, userID, organizationID)
	})
}

// Invalidate drops cached answers for a user after a membership change.
func (r *CachedMembershipResolver) Invalidate(ctx context.Context, userID string, organizationIDs ...string) error {
	if r == nil || r.cache == nil {
		return nil
	}
	if err := r.cache.Delete(ctx, MembershipCacheKey("primary", userID)); err != nil {
		return err
	}
	for _, orgID := range organizationIDs {
		if err := r.cache.Delete(ctx, MembershipCacheKey("member", userID, orgID)); err != nil {
			return err
		}
	}
	return nil
}
