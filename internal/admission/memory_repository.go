package admission

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryRepository is an in-memory Repository used by tests and local
// experiments. It mirrors the Postgres implementation's semantics,
// including atomic admission/release and token-number uniqueness.
type MemoryRepository struct {
	mu        sync.Mutex
	providers map[uuid.UUID]*Provider
	slots     map[SlotKey]*SlotInstance
	tokens    map[uuid.UUID]*Token
	numbers   map[string]uuid.UUID
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		providers: make(map[uuid.UUID]*Provider),
		slots:     make(map[SlotKey]*SlotInstance),
		tokens:    make(map[uuid.UUID]*Token),
		numbers:   make(map[string]uuid.UUID),
	}
}

func copyProvider(p *Provider) *Provider {
	cp := *p
	cp.Templates = append([]SlotTemplate(nil), p.Templates...)
	cp.WorkingDays = append([]string(nil), p.WorkingDays...)
	return &cp
}

func copySlot(s *SlotInstance) *SlotInstance {
	cp := *s
	cp.TokenNumbers = append([]string(nil), s.TokenNumbers...)
	return &cp
}

func copyToken(t *Token) *Token {
	cp := *t
	return &cp
}

func (r *MemoryRepository) CreateProvider(_ context.Context, p *Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.ID] = copyProvider(p)
	return nil
}

func (r *MemoryRepository) GetProviderByID(_ context.Context, id uuid.UUID) (*Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.providers[id]
	if !ok {
		return nil, ErrProviderNotFound
	}
	return copyProvider(p), nil
}

func (r *MemoryRepository) ListProviders(_ context.Context, specialization string) ([]Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Provider
	for _, p := range r.providers {
		if specialization != "" && p.Specialization != specialization {
			continue
		}
		out = append(out, *copyProvider(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (r *MemoryRepository) ListPeers(_ context.Context, specialization string, exclude uuid.UUID, limit int) ([]Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Provider
	for _, p := range r.providers {
		if p.Specialization != specialization || p.ID == exclude {
			continue
		}
		out = append(out, *copyProvider(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) ReplaceTemplates(_ context.Context, providerID uuid.UUID, templates []SlotTemplate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.providers[providerID]
	if !ok {
		return ErrProviderNotFound
	}
	p.Templates = append([]SlotTemplate(nil), templates...)
	return nil
}

func (r *MemoryRepository) GetSlotInstance(_ context.Context, key SlotKey) (*SlotInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[key]
	if !ok {
		return nil, ErrSlotNotFound
	}
	return copySlot(s), nil
}

func (r *MemoryRepository) ListSlotInstances(_ context.Context, providerID uuid.UUID, date Date) ([]SlotInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []SlotInstance
	for _, s := range r.slots {
		if s.Key.ProviderID == providerID && s.Key.Date == date {
			out = append(out, *copySlot(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Start < out[j].Key.Start })
	return out, nil
}

func (r *MemoryRepository) DeleteSlotInstances(_ context.Context, providerID uuid.UUID, date Date) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.slots {
		if key.ProviderID == providerID && key.Date == date {
			delete(r.slots, key)
		}
	}
	return nil
}

func (r *MemoryRepository) SaveAdmission(_ context.Context, slot *SlotInstance, token *Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.numbers[token.Number]; exists {
		return ErrDuplicateToken
	}
	r.slots[slot.Key] = copySlot(slot)
	r.tokens[token.ID] = copyToken(token)
	r.numbers[token.Number] = token.ID
	return nil
}

func (r *MemoryRepository) SaveRelease(_ context.Context, slot *SlotInstance, token *Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slots[slot.Key] = copySlot(slot)
	r.tokens[token.ID] = copyToken(token)
	return nil
}

func (r *MemoryRepository) SaveToken(_ context.Context, token *Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[token.ID] = copyToken(token)
	return nil
}

func (r *MemoryRepository) SaveSlotInstance(_ context.Context, slot *SlotInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slots[slot.Key] = copySlot(slot)
	return nil
}

func (r *MemoryRepository) GetTokenByID(_ context.Context, id uuid.UUID) (*Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[id]
	if !ok {
		return nil, ErrTokenNotFound
	}
	return copyToken(t), nil
}

func (r *MemoryRepository) ListTokens(_ context.Context, f TokenFilter) ([]Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Token
	for _, t := range r.tokens {
		if t.ProviderID != f.ProviderID {
			continue
		}
		if f.Date != "" && t.Date != f.Date {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		out = append(out, *copyToken(t))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].PriorityRank != out[j].PriorityRank {
			return out[i].PriorityRank < out[j].PriorityRank
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
