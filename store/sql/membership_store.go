package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-connectors/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// MembershipStore reads organization_members. A user's primary membership is
// the oldest one.
type MembershipStore struct {
	db   *bun.DB
	repo repository.Repository[*membershipRecord]
}

func NewMembershipStore(db *bun.DB) (*MembershipStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*membershipRecord](db, membershipHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid membership repository wiring: %w", err)
		}
	}
	return &MembershipStore{db: db, repo: repo}, nil
}

func (s *MembershipStore) PrimaryMembership(ctx context.Context, userID string) (core.Membership, error) {
	if s == nil || s.repo == nil {
		return core.Membership{}, fmt.Errorf("sqlstore: membership store is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return core.Membership{}, core.ErrNoMembership
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("user_id", "=", userID),
		repository.OrderBy("created_at ASC"),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Membership{}, core.ErrNoMembership
		}
		return core.Membership{}, err
	}
	if len(records) == 0 {
		return core.Membership{}, core.ErrNoMembership
	}
	return records[0].toDomain(), nil
}

func (s *MembershipStore) IsMember(ctx context.Context, userID string, organizationID string) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: membership store is not configured")
	}
	return s.db.NewSelect().
		Model((*membershipRecord)(nil)).
		Where("?TableAlias.user_id = ?", strings.TrimSpace(userID)).
		Where("?TableAlias.organization_id = ?", strings.TrimSpace(organizationID)).
		Exists(ctx)
}

// Add inserts a membership row. Memberships are owned by the product's
// account service; this is used for seeding and tests.
func (s *MembershipStore) Add(ctx context.Context, membership core.Membership, createdAt time.Time) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: membership store is not configured")
	}
	if strings.TrimSpace(membership.UserID) == "" || strings.TrimSpace(membership.OrganizationID) == "" {
		return fmt.Errorf("sqlstore: user id and organization id are required")
	}
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	role := strings.TrimSpace(membership.Role)
	if role == "" {
		role = "member"
	}
	_, err := s.repo.Create(ctx, &membershipRecord{
		ID:             uuid.NewString(),
		UserID:         strings.TrimSpace(membership.UserID),
		OrganizationID: strings.TrimSpace(membership.OrganizationID),
		Role:           role,
		CreatedAt:      createdAt.UTC(),
	})
	return err
}
