package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"posttrr/internal/domain/entity"
	"posttrr/internal/domain/repository"
)

type memoryDeviceTokenRepository struct {
	mu     sync.RWMutex
	tokens map[string]*entity.DeviceToken
}

func NewMemoryDeviceTokenRepository() repository.DeviceTokenRepository {
	return &memoryDeviceTokenRepository{
		tokens: make(map[string]*entity.DeviceToken),
	}
}

func (r *memoryDeviceTokenRepository) Save(ctx context.Context, token *entity.DeviceToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	stored := *token
	if existing, ok := r.tokens[token.Token]; ok {
		stored.CreatedAt = existing.CreatedAt
	} else if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	r.tokens[token.Token] = &stored
	*token = stored
	return nil
}

func (r *memoryDeviceTokenRepository) ListByUser(ctx context.Context, userID string) ([]*entity.DeviceToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var tokens []*entity.DeviceToken
	for _, token := range r.tokens {
		if token.UserID == userID {
			c := *token
			tokens = append(tokens, &c)
		}
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].Token < tokens[j].Token })

	return tokens, nil
}

func (r *memoryDeviceTokenRepository) Delete(ctx context.Context, userID, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.tokens[token]; ok && existing.UserID == userID {
		delete(r.tokens, token)
	}
	return nil
}
