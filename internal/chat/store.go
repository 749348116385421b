package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/zhubert/gameforge/internal/llm"
)

// ErrNotFound is returned for unknown chat or message ids.
var ErrNotFound = errors.New("not found")

// Store manages chat persistence to the filesystem, one JSON file per chat.
type Store struct {
	dir string
	mu  sync.RWMutex
}

// NewStore creates a new chat store at the given directory.
// The directory will be created if it doesn't exist.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating chat directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// StoreForDataDir returns a Store using <dataDir>/chats.
func StoreForDataDir(dataDir string) (*Store, error) {
	return NewStore(filepath.Join(dataDir, "chats"))
}

// Create starts and saves a chat whose first message is prompt.
func (s *Store) Create(prompt, model string) (*Chat, error) {
	c := New(prompt, model)
	c.Append(llm.RoleUser, prompt, StateNone)
	if err := s.Save(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Save persists a chat to disk.
func (s *Store) Save(c *Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveUnlocked(c)
}

func (s *Store) saveUnlocked(c *Chat) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling chat: %w", err)
	}

	// Write then rename; a crash leaves the old file intact.
	tmp := s.chatPath(c.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing chat file: %w", err)
	}
	if err := os.Rename(tmp, s.chatPath(c.ID)); err != nil {
		return fmt.Errorf("replacing chat file: %w", err)
	}
	return nil
}

// AddMessage appends a message to a stored chat.
func (s *Store) AddMessage(chatID string, role llm.Role, content string, state State) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.loadUnlocked(chatID)
	if err != nil {
		return Message{}, err
	}
	m := c.Append(role, content, state)
	if err := s.saveUnlocked(c); err != nil {
		return Message{}, err
	}
	return m, nil
}

// SetTitle renames a stored chat, keeping messages added concurrently.
func (s *Store) SetTitle(chatID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.loadUnlocked(chatID)
	if err != nil {
		return err
	}
	c.SetTitle(title)
	return s.saveUnlocked(c)
}

// Load retrieves a chat by ID.
func (s *Store) Load(id string) (*Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadUnlocked(id)
}

func (s *Store) loadUnlocked(id string) (*Chat, error) {
	if !validID(id) {
		return nil, fmt.Errorf("chat %q: %w", id, ErrNotFound)
	}
	data, err := os.ReadFile(s.chatPath(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("chat %q: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("reading chat file: %w", err)
	}

	var c Chat
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("unmarshaling chat: %w", err)
	}
	return &c, nil
}

// FindMessage locates a message by ID across all chats.
func (s *Store) FindMessage(messageID string) (*Chat, Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, err := s.idsUnlocked()
	if err != nil {
		return nil, Message{}, err
	}
	for _, id := range ids {
		c, err := s.loadUnlocked(id)
		if err != nil {
			continue
		}
		if m, ok := c.MessageByID(messageID); ok {
			return c, m, nil
		}
	}
	return nil, Message{}, fmt.Errorf("message %q: %w", messageID, ErrNotFound)
}

// Delete removes a chat from disk.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !validID(id) {
		return nil
	}
	if err := os.Remove(s.chatPath(id)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("deleting chat file: %w", err)
	}
	return nil
}

// List returns summaries of all chats, newest first.
func (s *Store) List() ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, err := s.idsUnlocked()
	if err != nil {
		return nil, err
	}

	var summaries []Summary
	for _, id := range ids {
		c, err := s.loadUnlocked(id)
		if err != nil {
			continue // Skip corrupted chats
		}
		summaries = append(summaries, c.Summary())
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries, nil
}

func (s *Store) idsUnlocked() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading chat directory: %w", err)
	}
	var ids []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		ids = append(ids, strings.TrimSuffix(entry.Name(), ".json"))
	}
	return ids, nil
}

// MostRecent returns the most recently updated chat, or nil if none exist.
func (s *Store) MostRecent() (*Chat, error) {
	summaries, err := s.List()
	if err != nil {
		return nil, err
	}
	if len(summaries) == 0 {
		return nil, nil
	}
	return s.Load(summaries[0].ID)
}

func (s *Store) chatPath(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// validID rejects ids that could escape the store directory.
func validID(id string) bool {
	return id != "" && !strings.ContainsAny(id, `/\`) && id != "." && id != ".."
}
