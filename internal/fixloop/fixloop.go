// Package fixloop stops automatic fix requests when the model keeps
// producing the same broken app.
package fixloop

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// Default thresholds.
const (
	DefaultMaxFixAttempts    = 5 // Fix requests per chat
	DefaultMaxRepeatedErrors = 3 // Same error seen this many times
)

// Config holds the thresholds for fix loop detection.
type Config struct {
	MaxFixAttempts    int
	MaxRepeatedErrors int
}

// DefaultConfig returns the default detection configuration.
func DefaultConfig() Config {
	return Config{
		MaxFixAttempts:    DefaultMaxFixAttempts,
		MaxRepeatedErrors: DefaultMaxRepeatedErrors,
	}
}

// Detection is the result of a check.
type Detection struct {
	Detected bool
	Reason   string
}

// Detector tracks the fix requests of one chat.
type Detector struct {
	config      Config
	attempts    int
	errorHashes map[string]int
}

// New creates a new Detector with the given configuration.
func New(config Config) *Detector {
	return &Detector{
		config:      config,
		errorHashes: make(map[string]int),
	}
}

// NewWithDefaults creates a new Detector with default configuration.
func NewWithDefaults() *Detector {
	return New(DefaultConfig())
}

// RecordFix records a fix requested for errText.
func (d *Detector) RecordFix(errText string) {
	d.attempts++
	d.errorHashes[hashError(errText)]++
}

// Check reports whether another fix request should be refused.
func (d *Detector) Check() Detection {
	if d.attempts >= d.config.MaxFixAttempts {
		return Detection{
			Detected: true,
			Reason:   fmt.Sprintf("reached maximum fix attempts (%d)", d.config.MaxFixAttempts),
		}
	}
	for _, count := range d.errorHashes {
		if count >= d.config.MaxRepeatedErrors {
			return Detection{
				Detected: true,
				Reason:   fmt.Sprintf("the same error was reported %d times", count),
			}
		}
	}
	return Detection{}
}

// Attempts returns the number of recorded fixes.
func (d *Detector) Attempts() int {
	return d.attempts
}

// Reset clears all state. Call this when the user writes a new request.
func (d *Detector) Reset() {
	d.attempts = 0
	d.errorHashes = make(map[string]int)
}

var positions = regexp.MustCompile(`\d+:\d+`)

// hashError ignores line/column positions, which shift between versions.
func hashError(errText string) string {
	norm := positions.ReplaceAllString(strings.TrimSpace(errText), "#:#")
	sum := sha256.Sum256([]byte(norm))
	return hex.EncodeToString(sum[:])[:16]
}

// Tracker holds one Detector per chat and is safe for concurrent use.
type Tracker struct {
	config Config

	mu    sync.Mutex
	chats map[string]*Detector
}

// NewTracker creates a Tracker using config for every chat.
func NewTracker(config Config) *Tracker {
	return &Tracker{config: config, chats: make(map[string]*Detector)}
}

func (t *Tracker) detector(chatID string) *Detector {
	d, ok := t.chats[chatID]
	if !ok {
		d = New(t.config)
		t.chats[chatID] = d
	}
	return d
}

// Allow checks the chat and, when a fix is still allowed, records it.
func (t *Tracker) Allow(chatID, errText string) Detection {
	t.mu.Lock()
	defer t.mu.Unlock()

	d := t.detector(chatID)
	if det := d.Check(); det.Detected {
		return det
	}
	d.RecordFix(errText)
	return Detection{}
}

// Reset clears the chat's history.
func (t *Tracker) Reset(chatID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.chats, chatID)
}
