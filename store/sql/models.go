package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type credentialRecord struct {
	bun.BaseModel `bun:"table:connector_credentials,alias:cc"`

	ID                string         `bun:"id,pk"`
	OrganizationID    string         `bun:"organization_id,notnull"`
	Provider          string         `bun:"provider,notnull"`
	EncryptedPayload  []byte         `bun:"encrypted_payload,notnull"`
	PayloadFormat     string         `bun:"payload_format,notnull"`
	PayloadVersion    int            `bun:"payload_version,notnull"`
	EncryptionKeyID   string         `bun:"encryption_key_id,notnull"`
	EncryptionVersion int            `bun:"encryption_version,notnull"`
	TokenType         string         `bun:"token_type,notnull"`
	Scope             string         `bun:"scope,notnull"`
	ExpiresAt         *time.Time     `bun:"expires_at,nullzero"`
	Metadata          map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt         time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type auditEventRecord struct {
	bun.BaseModel `bun:"table:connector_audit_events,alias:cae"`

	ID             string         `bun:"id,pk"`
	Seq            int64          `bun:"seq,notnull"`
	ActorID        string         `bun:"actor_id,notnull"`
	OrganizationID string         `bun:"organization_id,notnull"`
	Action         string         `bun:"action,notnull"`
	ResourceType   string         `bun:"resource_type,notnull"`
	ResourceID     string         `bun:"resource_id,notnull"`
	Metadata       map[string]any `bun:"metadata,type:jsonb,notnull"`
	OccurredAt     time.Time      `bun:"occurred_at,notnull"`
	PrevHash       string         `bun:"prev_hash,notnull"`
	Hash           string         `bun:"hash,notnull"`
}

type membershipRecord struct {
	bun.BaseModel `bun:"table:organization_members,alias:om"`

	ID             string    `bun:"id,pk"`
	UserID         string    `bun:"user_id,notnull"`
	OrganizationID string    `bun:"organization_id,notnull"`
	Role           string    `bun:"role,notnull"`
	CreatedAt      time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}
