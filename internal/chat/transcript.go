// Package chat keeps the ordered conversation transcript and stitches
// fragmented avatar messages back together.
package chat

import (
	"sync"

	"live-avatar-demo/internal/models"
)

// Transcript is an insertion-ordered set of chat messages keyed by message id.
//
// Fragments sharing an id are appended to the existing entry in place. The
// transport is assumed to deliver fragments of one message in emission order;
// no resequencing is done here.
type Transcript struct {
	mu       sync.Mutex
	messages []models.ChatMessage
	index    map[string]int
	onChange []func([]models.ChatMessage)
}

// NewTranscript creates an empty transcript
func NewTranscript() *Transcript {
	return &Transcript{index: make(map[string]int)}
}

// OnChange registers fn to run after every change of the transcript with a
// copy of the messages. Presentation uses it to scroll to the latest entry.
func (t *Transcript) OnChange(fn func([]models.ChatMessage)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onChange = append(t.onChange, fn)
}

// ApplyFragment appends fragment to the message with the given id, creating a
// received message at the tail if the id is new.
func (t *Transcript) ApplyFragment(messageID, fragment string) []models.ChatMessage {
	t.mu.Lock()
	changed := true
	if i, ok := t.index[messageID]; ok {
		t.messages[i].Text += fragment
		changed = fragment != ""
	} else {
		t.appendLocked(models.ChatMessage{ID: messageID, Text: fragment, Origin: models.OriginReceived})
	}
	snapshot, listeners := t.snapshotLocked()
	t.mu.Unlock()

	if changed {
		notify(listeners, snapshot)
	}
	return snapshot
}

// AddLocal inserts a complete message authored by the local user.
// An existing entry with the same id is replaced in place.
func (t *Transcript) AddLocal(messageID, text string) []models.ChatMessage {
	t.mu.Lock()
	if i, ok := t.index[messageID]; ok {
		t.messages[i].Text = text
		t.messages[i].Origin = models.OriginSent
	} else {
		t.appendLocked(models.ChatMessage{ID: messageID, Text: text, Origin: models.OriginSent})
	}
	snapshot, listeners := t.snapshotLocked()
	t.mu.Unlock()

	notify(listeners, snapshot)
	return snapshot
}

// Remove drops a message, typically a local one whose send failed
func (t *Transcript) Remove(messageID string) bool {
	t.mu.Lock()
	i, ok := t.index[messageID]
	if !ok {
		t.mu.Unlock()
		return false
	}
	t.messages = append(t.messages[:i], t.messages[i+1:]...)
	t.reindexLocked()
	snapshot, listeners := t.snapshotLocked()
	t.mu.Unlock()

	notify(listeners, snapshot)
	return true
}

// Clear empties the transcript
func (t *Transcript) Clear() {
	t.mu.Lock()
	if len(t.messages) == 0 {
		t.mu.Unlock()
		return
	}
	t.messages = nil
	t.index = make(map[string]int)
	snapshot, listeners := t.snapshotLocked()
	t.mu.Unlock()

	notify(listeners, snapshot)
}

// Messages returns a copy of the ordered messages
func (t *Transcript) Messages() []models.ChatMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	snapshot, _ := t.snapshotLocked()
	return snapshot
}

// Get returns the message with the given id
func (t *Transcript) Get(messageID string) (models.ChatMessage, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	i, ok := t.index[messageID]
	if !ok {
		return models.ChatMessage{}, false
	}
	return t.messages[i], true
}

// Len returns the number of messages
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.messages)
}

func (t *Transcript) appendLocked(msg models.ChatMessage) {
	msg.Position = len(t.messages)
	t.index[msg.ID] = len(t.messages)
	t.messages = append(t.messages, msg)
}

func (t *Transcript) reindexLocked() {
	t.index = make(map[string]int, len(t.messages))
	for i := range t.messages {
		t.messages[i].Position = i
		t.index[t.messages[i].ID] = i
	}
}

func (t *Transcript) snapshotLocked() ([]models.ChatMessage, []func([]models.ChatMessage)) {
	snapshot := make([]models.ChatMessage, len(t.messages))
	copy(snapshot, t.messages)
	listeners := make([]func([]models.ChatMessage), len(t.onChange))
	copy(listeners, t.onChange)
	return snapshot, listeners
}

func notify(listeners []func([]models.ChatMessage), snapshot []models.ChatMessage) {
	for _, fn := range listeners {
		fn(snapshot)
	}
}
