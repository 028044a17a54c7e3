package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-connectors/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

const auditAppendAttempts = 3

// AuditStore appends hash-chained audit events. Each event stores the hash
// of its predecessor; the unique seq column makes concurrent appenders that
// read the same tail collide instead of forking the chain.
type AuditStore struct {
	db    *bun.DB
	repo  repository.Repository[*auditEventRecord]
	clock core.Clock
	mu    sync.Mutex
}

func NewAuditStore(db *bun.DB) (*AuditStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*auditEventRecord](db, auditEventHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid audit repository wiring: %w", err)
		}
	}
	return &AuditStore{
		db:    db,
		repo:  repo,
		clock: func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *AuditStore) Record(ctx context.Context, event core.AuditEvent) error {
	if s == nil || s.db == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: audit store is not configured")
	}
	if strings.TrimSpace(event.Action) == "" {
		return fmt.Errorf("sqlstore: audit action is required")
	}
	// Stored timestamps keep microseconds; hashing the truncated value keeps
	// the chain verifiable after a round trip through the database.
	if event.Timestamp.IsZero() {
		event.Timestamp = s.clock()
	}
	event.Timestamp = event.Timestamp.UTC().Truncate(time.Microsecond)

	s.mu.Lock()
	defer s.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < auditAppendAttempts; attempt++ {
		lastErr = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			tail, err := s.tail(ctx, tx)
			if err != nil {
				return err
			}
			sealed, err := core.SealAuditEvent(tail.Hash, event, event.Timestamp)
			if err != nil {
				return err
			}
			_, err = s.repo.CreateTx(ctx, tx, newAuditEventRecord(sealed, tail.Seq+1))
			return err
		})
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			break
		}
	}
	return fmt.Errorf("sqlstore: append audit event: %w", lastErr)
}

// List returns events in chain order.
func (s *AuditStore) List(ctx context.Context) ([]core.AuditEvent, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: audit store is not configured")
	}
	records, _, err := s.repo.List(ctx, repository.OrderBy("seq ASC"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []core.AuditEvent{}, nil
		}
		return nil, err
	}
	events := make([]core.AuditEvent, 0, len(records))
	for _, record := range records {
		events = append(events, record.toDomain())
	}
	return events, nil
}

// Verify recomputes the chain and returns the index of the first broken
// event, or -1 when the log is intact.
func (s *AuditStore) Verify(ctx context.Context) (int, error) {
	events, err := s.List(ctx)
	if err != nil {
		return -1, err
	}
	return core.VerifyChain(events)
}

func (s *AuditStore) tail(ctx context.Context, tx bun.Tx) (*auditEventRecord, error) {
	record := &auditEventRecord{}
	err := tx.NewSelect().
		Model(record).
		OrderExpr("?TableAlias.seq DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return &auditEventRecord{}, nil
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}
