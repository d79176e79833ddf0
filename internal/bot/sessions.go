package bot

import (
	"log/slog"
	"sync"
	"time"

	"github.com/aera-procure/apollobot/internal/models"
	"github.com/aera-procure/apollobot/internal/store"
)

// sessionEntry is one conversation's paging state plus the lock that
// serializes its turns. Concurrent "next"/"previous" in the same conversation
// queue up here instead of racing on the page number.
type sessionEntry struct {
	mu     sync.Mutex
	loaded bool
	sess   models.Session
}

// sessions maps conversation ids to their entries. Entries are created on
// first contact and never removed; state is hydrated from the store once.
type sessions struct {
	mu      sync.Mutex
	store   store.Store
	entries map[string]*sessionEntry
}

func newSessions(st store.Store) *sessions {
	return &sessions{store: st, entries: make(map[string]*sessionEntry)}
}

// acquire returns the conversation's session locked for exclusive use along
// with a release function. The session is hydrated from the store on first
// touch; a missing or failing store yields a fresh idle session.
func (s *sessions) acquire(conversationID string) (*models.Session, func()) {
	s.mu.Lock()
	entry, ok := s.entries[conversationID]
	if !ok {
		entry = &sessionEntry{}
		s.entries[conversationID] = entry
	}
	s.mu.Unlock()

	entry.mu.Lock()
	if !entry.loaded {
		entry.sess = models.Session{ConversationID: conversationID, Page: 1}
		if stored, err := s.store.GetSession(conversationID); err != nil {
			slog.Warn("sessions.acquire: session hydration failed, starting fresh", "error", err, "conversation_id", conversationID)
		} else if stored != nil {
			entry.sess = *stored
			if entry.sess.Page < 1 {
				entry.sess.Page = 1
			}
		}
		entry.loaded = true
	}
	return &entry.sess, entry.mu.Unlock
}

// persist writes a session back to the store. Persistence is best-effort;
// the in-memory entry stays authoritative for the process lifetime.
func (s *sessions) persist(sess *models.Session) {
	sess.UpdatedAt = time.Now()
	if err := s.store.SaveSession(*sess); err != nil {
		slog.Warn("sessions.persist: session save failed", "error", err, "conversation_id", sess.ConversationID)
	}
}
