package sqlstore

import (
	"strings"
	"time"

	"github.com/goliatone/go-connectors/core"
	"github.com/google/uuid"
)

func newCredentialRecord(in core.StoredCredential, now time.Time) *credentialRecord {
	createdAt := in.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := in.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = now
	}
	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = uuid.NewString()
	}
	return &credentialRecord{
		ID:                id,
		OrganizationID:    strings.TrimSpace(in.OrganizationID),
		Provider:          string(in.Provider),
		EncryptedPayload:  append([]byte(nil), in.EncryptedPayload...),
		PayloadFormat:     strings.TrimSpace(in.PayloadFormat),
		PayloadVersion:    in.PayloadVersion,
		EncryptionKeyID:   strings.TrimSpace(in.EncryptionKeyID),
		EncryptionVersion: in.EncryptionVersion,
		TokenType:         strings.TrimSpace(in.TokenType),
		Scope:             strings.TrimSpace(in.Scope),
		ExpiresAt:         cloneTimePointer(in.ExpiresAt),
		Metadata:          core.RedactSensitiveMap(in.Metadata),
		CreatedAt:         createdAt.UTC(),
		UpdatedAt:         updatedAt.UTC(),
	}
}

func (r *credentialRecord) toDomain() core.StoredCredential {
	if r == nil {
		return core.StoredCredential{}
	}
	return core.StoredCredential{
		ID:                r.ID,
		OrganizationID:    r.OrganizationID,
		Provider:          core.ProviderID(r.Provider),
		EncryptedPayload:  append([]byte(nil), r.EncryptedPayload...),
		PayloadFormat:     r.PayloadFormat,
		PayloadVersion:    r.PayloadVersion,
		EncryptionKeyID:   r.EncryptionKeyID,
		EncryptionVersion: r.EncryptionVersion,
		TokenType:         r.TokenType,
		Scope:             r.Scope,
		ExpiresAt:         cloneTimePointer(r.ExpiresAt),
		Metadata:          copyAnyMap(r.Metadata),
		CreatedAt:         r.CreatedAt.UTC(),
		UpdatedAt:         r.UpdatedAt.UTC(),
	}
}

func newAuditEventRecord(event core.AuditEvent, seq int64) *auditEventRecord {
	return &auditEventRecord{
		ID:             event.ID,
		Seq:            seq,
		ActorID:        event.ActorID,
		OrganizationID: event.OrganizationID,
		Action:         event.Action,
		ResourceType:   event.ResourceType,
		ResourceID:     event.ResourceID,
		Metadata:       copyAnyMap(event.Metadata),
		OccurredAt:     event.Timestamp.UTC(),
		PrevHash:       event.PrevHash,
		Hash:           event.Hash,
	}
}

func (r *auditEventRecord) toDomain() core.AuditEvent {
	if r == nil {
		return core.AuditEvent{}
	}
	return core.AuditEvent{
		ID:             r.ID,
		ActorID:        r.ActorID,
		OrganizationID: r.OrganizationID,
		Action:         r.Action,
		ResourceType:   r.ResourceType,
		ResourceID:     r.ResourceID,
		Metadata:       copyAnyMap(r.Metadata),
		Timestamp:      r.OccurredAt.UTC(),
		PrevHash:       r.PrevHash,
		Hash:           r.Hash,
	}
}

func (r *membershipRecord) toDomain() core.Membership {
	if r == nil {
		return core.Membership{}
	}
	return core.Membership{
		UserID:         r.UserID,
		OrganizationID: r.OrganizationID,
		Role:           r.Role,
	}
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func cloneTimePointer(input *time.Time) *time.Time {
	if input == nil {
		return nil
	}
	value := input.UTC()
	return &value
}
