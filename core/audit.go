package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	AuditActionStateMismatch  = "oauth_state_mismatch"
	AuditActionExchangeFailed = "oauth_exchange_failed"
	AuditActionVaultFailed    = "credential_vault_failed"

	AuditResourceOAuthCallback = "oauth_callback"
	AuditResourceCredential    = "connector_credential"
)

// AuditEvent is an append-only security record. Hash chains each event to the
// one before it so that edits or deletions are detectable.
type AuditEvent struct {
	ID             string
	ActorID        string
	OrganizationID string
	Action         string
	ResourceType   string
	ResourceID     string
	Metadata       map[string]any
	Timestamp      time.Time
	PrevHash       string
	Hash           string
}

type canonicalAuditEvent struct {
	ID             string         `json:"id"`
	ActorID        string         `json:"actor_id"`
	OrganizationID string         `json:"organization_id"`
	Action         string         `json:"action"`
	ResourceType   string         `json:"resource_type"`
	ResourceID     string         `json:"resource_id"`
	Metadata       map[string]any `json:"metadata"`
	Timestamp      string         `json:"ts"`
}

// ComputeAuditHash returns hex(sha256(prevHash || canonical json)). Map keys
// are marshalled in sorted order, which keeps the encoding stable.
func ComputeAuditHash(prevHash string, event AuditEvent) (string, error) {
	canonical, err := json.Marshal(canonicalAuditEvent{
		ID:             event.ID,
		ActorID:        event.ActorID,
		OrganizationID: event.OrganizationID,
		Action:         event.Action,
		ResourceType:   event.ResourceType,
		ResourceID:     event.ResourceID,
		Metadata:       copyAnyMap(event.Metadata),
		Timestamp:      event.Timestamp.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return "", fmt.Errorf("core: encode audit event: %w", err)
	}
	sum := sha256.New()
	sum.Write([]byte(prevHash))
	sum.Write(canonical)
	return hex.EncodeToString(sum.Sum(nil)), nil
}

// SealAuditEvent fills the identity fields of event and links it to prevHash.
func SealAuditEvent(prevHash string, event AuditEvent, now time.Time) (AuditEvent, error) {
	sealed := event
	if strings.TrimSpace(sealed.ID) == "" {
		sealed.ID = uuid.NewString()
	}
	if sealed.Timestamp.IsZero() {
		sealed.Timestamp = now
	}
	sealed.Timestamp = sealed.Timestamp.UTC()
	sealed.Metadata = RedactSensitiveMap(event.Metadata)
	sealed.PrevHash = prevHash
	hash, err := ComputeAuditHash(prevHash, sealed)
	if err != nil {
		return AuditEvent{}, err
	}
	sealed.Hash = hash
	return sealed, nil
}

// VerifyChain recomputes every hash in order and returns the index of the
// first event that does not match, or -1 when the chain is intact.
func VerifyChain(events []AuditEvent) (int, error) {
	prev := ""
	for idx, event := range events {
		if event.PrevHash != prev {
			return idx, nil
		}
		hash, err := ComputeAuditHash(prev, event)
		if err != nil {
			return idx, err
		}
		if hash != event.Hash {
			return idx, nil
		}
		prev = event.Hash
	}
	return -1, nil
}

// MemoryAuditSink keeps a hash-chained log in memory.
type MemoryAuditSink struct {
	mu     sync.Mutex
	clock  Clock
	events []AuditEvent
}

func NewMemoryAuditSink() *MemoryAuditSink {
	return &MemoryAuditSink{clock: systemClock}
}

func (s *MemoryAuditSink) Record(_ context.Context, event AuditEvent) error {
	if s == nil {
		return fmt.Errorf("core: audit sink is not configured")
	}
	if strings.TrimSpace(event.Action) == "" {
		return fmt.Errorf("core: audit action is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := ""
	if len(s.events) > 0 {
		prev = s.events[len(s.events)-1].Hash
	}
	sealed, err := SealAuditEvent(prev, event, s.clock())
	if err != nil {
		return err
	}
	s.events = append(s.events, sealed)
	return nil
}

func (s *MemoryAuditSink) Events() []AuditEvent {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AuditEvent, len(s.events))
	for idx, event := range s.events {
		event.Metadata = copyAnyMap(event.Metadata)
		out[idx] = event
	}
	return out
}

func (s *MemoryAuditSink) List(context.Context) ([]AuditEvent, error) {
	return s.Events(), nil
}

// Auditor records events best-effort: sink failures are logged and dropped.
type Auditor struct {
	sink   AuditSink
	logger Logger
}

func NewAuditor(sink AuditSink, logger Logger) *Auditor {
	return &Auditor{sink: sink, logger: logger}
}

func (a *Auditor) Record(ctx context.Context, event AuditEvent) {
	if a == nil || a.sink == nil {
		return
	}
	if err := a.sink.Record(ctx, event); err != nil && a.logger != nil {
		a.logger.Warn("audit event dropped",
			"action", event.Action,
			"organization_id", TruncateIdentifier(event.OrganizationID),
			"error", err.Error(),
		)
	}
}
