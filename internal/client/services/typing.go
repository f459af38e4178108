package services

import (
	"sort"
	"sync"
	"time"
)

// DefaultTypingTimeout is how long a user counts as typing after their last
// typing event.
const DefaultTypingTimeout = 2 * time.Second

// TypingIndicator tracks who is typing in one conversation. Each Observe
// restarts that user's timer; when it fires the user is cleared. onChange,
// if set, receives the sorted list of typing users after every change and is
// called without the internal lock held.
type TypingIndicator struct {
	timeout  time.Duration
	onChange func(userIDs []string)

	mu     sync.Mutex
	timers map[string]*typingTimer
	closed bool
}

type typingTimer struct {
	t *time.Timer
}

func NewTypingIndicator(timeout time.Duration, onChange func(userIDs []string)) *TypingIndicator {
	if timeout <= 0 {
		timeout = DefaultTypingTimeout
	}
	return &TypingIndicator{timeout: timeout, onChange: onChange, timers: map[string]*typingTimer{}}
}

// Observe records a typing event from userID.
func (t *TypingIndicator) Observe(userID string) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	prev, existed := t.timers[userID]
	if existed {
		prev.t.Stop()
	}
	tm := &typingTimer{}
	tm.t = time.AfterFunc(t.timeout, func() { t.expire(userID, tm) })
	t.timers[userID] = tm
	users := t.usersLocked()
	t.mu.Unlock()

	if !existed {
		t.notify(users)
	}
}

func (t *TypingIndicator) expire(userID string, tm *typingTimer) {
	t.mu.Lock()
	// a newer Observe replaced this timer
	if t.timers[userID] != tm {
		t.mu.Unlock()
		return
	}
	delete(t.timers, userID)
	users := t.usersLocked()
	t.mu.Unlock()

	t.notify(users)
}

// Typing returns the users currently typing, sorted.
func (t *TypingIndicator) Typing() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.usersLocked()
}

// Stop cancels all timers. Further events are ignored.
func (t *TypingIndicator) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, tm := range t.timers {
		tm.t.Stop()
		delete(t.timers, id)
	}
	t.closed = true
}

func (t *TypingIndicator) usersLocked() []string {
	users := make([]string, 0, len(t.timers))
	for id := range t.timers {
		users = append(users, id)
	}
	sort.Strings(users)
	return users
}

func (t *TypingIndicator) notify(users []string) {
	if t.onChange != nil {
		t.onChange(users)
	}
}
