package memory

import (
	"time"

	"aprs-friend-alert/internal/model"
	"aprs-friend-alert/internal/repository/contract"

	"github.com/patrickmn/go-cache"
)

type ConversationRepository struct {
	cache *cache.Cache
}

// NewConversationRepository forgets a dialog after idle of one hour,
// purging expired items every 10 minutes.
func NewConversationRepository() contract.ConversationRepository {
	return NewConversationRepositoryWithTTL(1*time.Hour, 10*time.Minute)
}

func NewConversationRepositoryWithTTL(ttl, cleanup time.Duration) contract.ConversationRepository {
	return &ConversationRepository{cache: cache.New(ttl, cleanup)}
}

func (r *ConversationRepository) Save(conv *model.Conversation) {
	conv.UpdatedAt = time.Now()
	r.cache.Set(conv.ChatID, conv, cache.DefaultExpiration)
}

func (r *ConversationRepository) Get(chatID string) (*model.Conversation, bool) {
	if x, found := r.cache.Get(chatID); found {
		return x.(*model.Conversation), true
	}
	return nil, false
}

func (r *ConversationRepository) Delete(chatID string) {
	r.cache.Delete(chatID)
}
