package service

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/prn-tf/owl-middleware/internal/domain"
	"github.com/prn-tf/owl-middleware/internal/metrics"
)

// Search session defaults.
const (
	DefaultSearchSessions   = 1024
	DefaultSearchSessionTTL = 30 * time.Minute

	// searchIDLength keeps "file_<id>_<index>" inside Telegram's 64 byte callback data.
	searchIDLength = 12
)

type searchSession struct {
	userID int64
	hits   []domain.SearchHit
}

// SearchSessions remembers recent search results so bot buttons can refer
// to a hit by search id and index.
type SearchSessions struct {
	lru     *expirable.LRU[string, searchSession]
	metrics *metrics.Metrics
}

// NewSearchSessions creates a bounded, expiring session store.
func NewSearchSessions(size int, ttl time.Duration, m *metrics.Metrics) *SearchSessions {
	if size <= 0 {
		size = DefaultSearchSessions
	}
	if ttl <= 0 {
		ttl = DefaultSearchSessionTTL
	}
	return &SearchSessions{
		lru:     expirable.NewLRU[string, searchSession](size, nil, ttl),
		metrics: m,
	}
}

// Put stores hits for userID and returns the new search id.
func (s *SearchSessions) Put(userID int64, hits []domain.SearchHit) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:searchIDLength]
	stored := make([]domain.SearchHit, len(hits))
	copy(stored, hits)
	s.lru.Add(id, searchSession{userID: userID, hits: stored})
	return id
}

// Get returns the hits of a search owned by userID.
func (s *SearchSessions) Get(userID int64, searchID string) ([]domain.SearchHit, bool) {
	session, ok := s.lru.Get(searchID)
	ok = ok && session.userID == userID
	s.metrics.RecordSearchSessionLookup(ok)
	if !ok {
		return nil, false
	}
	return session.hits, true
}

// Hit returns one hit of a search owned by userID.
func (s *SearchSessions) Hit(userID int64, searchID string, index int) (domain.SearchHit, bool) {
	hits, ok := s.Get(userID, searchID)
	if !ok || index < 0 || index >= len(hits) {
		return domain.SearchHit{}, false
	}
	return hits[index], true
}

// Len returns the number of live sessions.
func (s *SearchSessions) Len() int {
	return s.lru.Len()
}
