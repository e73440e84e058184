package session

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Role values used in conversation turns, matching the Gemini wire format.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// maxCachedImages is how many recent uploads are retained per session. Merge
// needs two source images; anything older is superseded.
const maxCachedImages = 2

// Part is a single content part of a conversation turn: either text or a
// reference to an image file on disk. Images are referenced by path and
// re-read when the history is replayed, since the upstream API is stateless.
type Part struct {
	Text      string
	ImagePath string
}

// Turn is one conversation turn (user prompt or model reply)
type Turn struct {
	Role  string
	Parts []Part
}

// CachedImage holds raw uploaded image bytes with the capture time
type CachedImage struct {
	Data     []byte
	StoredAt time.Time
}

// conversation bundles everything correlated under one session key so that
// ending or expiring a session removes all of it in lockstep
type conversation struct {
	turns     []Turn
	updatedAt time.Time

	images    []CachedImage
	lastImage string
	translate bool
	hasFlag   bool
}

// Options configures the store's TTLs and caps
type Options struct {
	ConversationTTL time.Duration
	ImageCacheTTL   time.Duration
	MaxTurns        int
}

// Store is the single owner of all per-session conversation state:
// conversation history, uploaded-image cache, last-image pointer and the
// translation flag. All access goes through the mutex; entries expire lazily
// on read and actively via Sweep.
type Store struct {
	mu   sync.RWMutex
	opts Options

	conversations map[Key]*conversation
}

// NewStore creates a session store with the given TTLs and turn cap
func NewStore(opts Options) *Store {
	if opts.MaxTurns <= 0 {
		opts.MaxTurns = 10
	}
	return &Store{
		opts:          opts,
		conversations: make(map[Key]*conversation),
	}
}

// Active reports whether a non-expired conversation exists for the key
func (s *Store) Active(key Key) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[key]
	if !ok || len(conv.turns) == 0 {
		return false
	}
	return time.Since(conv.updatedAt) <= s.opts.ConversationTTL
}

// History returns a copy of the conversation turns for the key, or nil when
// the conversation is missing or expired (lazy expiry)
func (s *Store) History(key Key) []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[key]
	if !ok || time.Since(conv.updatedAt) > s.opts.ConversationTTL {
		return nil
	}
	turns := make([]Turn, len(conv.turns))
	copy(turns, conv.turns)
	return turns
}

// AppendExchange appends a user turn and a model turn, truncates the history
// to the configured cap, and refreshes the conversation timestamp
func (s *Store) AppendExchange(key Key, user, model Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.getOrCreate(key)
	conv.turns = append(conv.turns, user, model)
	if len(conv.turns) > s.opts.MaxTurns {
		conv.turns = conv.turns[len(conv.turns)-s.opts.MaxTurns:]
	}
	conv.updatedAt = time.Now()
}

// CacheImage stores uploaded image bytes for the key, keeping only the most
// recent uploads
func (s *Store) CacheImage(key Key, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.getOrCreate(key)
	conv.images = append(conv.images, CachedImage{Data: data, StoredAt: time.Now()})
	if len(conv.images) > maxCachedImages {
		conv.images = conv.images[len(conv.images)-maxCachedImages:]
	}
}

// RecentImages returns the non-expired cached uploads for the key, newest
// last. Expired entries are treated as misses.
func (s *Store) RecentImages(key Key) [][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[key]
	if !ok {
		return nil
	}
	var out [][]byte
	for _, img := range conv.images {
		if time.Since(img.StoredAt) <= s.opts.ImageCacheTTL {
			out = append(out, img.Data)
		}
	}
	return out
}

// SetLastImage records the path of the most recently produced image
func (s *Store) SetLastImage(key Key, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.getOrCreate(key).lastImage = path
}

// LastImage returns the last-image pointer for the key, if the conversation
// has not expired
func (s *Store) LastImage(key Key) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[key]
	if !ok || conv.lastImage == "" {
		return "", false
	}
	if len(conv.turns) > 0 && time.Since(conv.updatedAt) > s.opts.ConversationTTL {
		return "", false
	}
	return conv.lastImage, true
}

// ToggleTranslate flips the per-session prompt translation flag and returns
// the new state. defaultOn is the configured global default, applied the
// first time a session toggles.
func (s *Store) ToggleTranslate(key Key, defaultOn bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.getOrCreate(key)
	if !conv.hasFlag {
		conv.translate = !defaultOn
	} else {
		conv.translate = !conv.translate
	}
	conv.hasFlag = true
	return conv.translate
}

// TranslateEnabled reports whether prompts should be translated for the key
func (s *Store) TranslateEnabled(key Key, defaultOn bool) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[key]
	if !ok || !conv.hasFlag {
		return defaultOn
	}
	return conv.translate
}

// EndConversation removes every correlated entry for the key. Returns true
// when an active conversation existed.
func (s *Store) EndConversation(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[key]
	if !ok {
		return false
	}
	active := len(conv.turns) > 0 && time.Since(conv.updatedAt) <= s.opts.ConversationTTL
	delete(s.conversations, key)
	return active
}

// Sweep drops expired conversations (and with them the image cache, last
// image pointer and flags for the same key) and prunes expired cached images
// from live sessions. Returns the removed session keys.
func (s *Store) Sweep(now time.Time) []Key {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []Key
	for key, conv := range s.conversations {
		if now.Sub(conv.updatedAt) > s.opts.ConversationTTL {
			delete(s.conversations, key)
			removed = append(removed, key)
			continue
		}

		if len(conv.images) > 0 {
			kept := conv.images[:0]
			for _, img := range conv.images {
				if now.Sub(img.StoredAt) <= s.opts.ImageCacheTTL {
					kept = append(kept, img)
				}
			}
			conv.images = kept
		}
	}

	if len(removed) > 0 {
		log.Debugf("Swept %d expired sessions", len(removed))
	}
	return removed
}

// LastImagePaths returns every live last-image pointer, used to protect the
// files from retention cleanup
func (s *Store) LastImagePaths() map[string]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	paths := make(map[string]struct{}, len(s.conversations))
	for _, conv := range s.conversations {
		if conv.lastImage != "" {
			paths[conv.lastImage] = struct{}{}
		}
	}
	return paths
}

// getOrCreate returns the conversation for key, creating it if needed.
// Caller must hold the write lock.
func (s *Store) getOrCreate(key Key) *conversation {
	conv, ok := s.conversations[key]
	if !ok {
		conv = &conversation{updatedAt: time.Now()}
		s.conversations[key] = conv
	}
	return conv
}
