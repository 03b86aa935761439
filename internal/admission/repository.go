package admission

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrProviderNotFound = errors.New("provider not found")
	ErrTokenNotFound    = errors.New("token not found")
	ErrSlotNotFound     = errors.New("slot instance not found")
	ErrDuplicateToken   = errors.New("token number already exists")
)

// TokenFilter narrows ListTokens. Zero values mean "any".
type TokenFilter struct {
	ProviderID uuid.UUID
	Date       Date
	Status     TokenStatus
}

// Repository contains all persistence interactions needed by the core.
// Implementations must make SaveAdmission and SaveRelease atomic: the slot
// counters and the token row change together or not at all.
type Repository interface {
	CreateProvider(ctx context.Context, p *Provider) error
	GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error)
	ListProviders(ctx context.Context, specialization string) ([]Provider, error)
	// ListPeers returns providers sharing a specialization, excluding one,
	// ordered by id ascending, at most limit rows.
	ListPeers(ctx context.Context, specialization string, exclude uuid.UUID, limit int) ([]Provider, error)
	ReplaceTemplates(ctx context.Context, providerID uuid.UUID, templates []SlotTemplate) error

	GetSlotInstance(ctx context.Context, key SlotKey) (*SlotInstance, error)
	// ListSlotInstances returns a provider's instances for one day ordered
	// by start time ascending.
	ListSlotInstances(ctx context.Context, providerID uuid.UUID, date Date) ([]SlotInstance, error)
	DeleteSlotInstances(ctx context.Context, providerID uuid.UUID, date Date) error

	// SaveAdmission persists the updated slot counters together with the
	// newly admitted token. The token number is unique; a duplicate insert
	// fails with ErrDuplicateToken and must leave the slot untouched.
	SaveAdmission(ctx context.Context, slot *SlotInstance, token *Token) error
	// SaveRelease persists the updated slot counters together with the
	// cancelled or no-show token.
	SaveRelease(ctx context.Context, slot *SlotInstance, token *Token) error
	// SaveToken updates a token without touching slot state.
	SaveToken(ctx context.Context, token *Token) error
	// SaveSlotInstance upserts slot counters without touching any token,
	// used by reallocation replay where tokens already exist.
	SaveSlotInstance(ctx context.Context, slot *SlotInstance) error

	GetTokenByID(ctx context.Context, id uuid.UUID) (*Token, error)
	// ListTokens returns tokens matching the filter ordered by
	// (priority rank asc, created_at asc).
	ListTokens(ctx context.Context, f TokenFilter) ([]Token, error)
}
