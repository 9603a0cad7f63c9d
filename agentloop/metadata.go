package agentloop

import (
	"fmt"
	"sync"
)

// ToolResultMetadata is the sideband record for one tool result. It lives
// outside the message log so projection can consult it without the log
// carrying non-message state.
type ToolResultMetadata struct {
	FunctionName       string `json:"function_name"`
	IncludeInContext   bool   `json:"include_in_context"`
	StubMessage        string `json:"stub_message,omitempty"`
	ContextGuidance    string `json:"context_guidance,omitempty"`
	CreatedAtIteration int    `json:"created_at_iteration"`
}

// MetadataStore maps tool call IDs to their result metadata. Entries are
// write-once: a result's projection behavior is fixed at execution time.
type MetadataStore struct {
	entries map[string]ToolResultMetadata
	mu      sync.RWMutex
}

// NewMetadataStore creates an empty MetadataStore.
func NewMetadataStore() *MetadataStore {
	return &MetadataStore{
		entries: make(map[string]ToolResultMetadata),
	}
}

// Record stores metadata for a tool call ID. Recording the same ID twice
// is an error.
func (s *MetadataStore) Record(callID string, md ToolResultMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[callID]; exists {
		return fmt.Errorf("metadata for call %s already recorded", callID)
	}
	s.entries[callID] = md
	return nil
}

// Get returns the metadata for a tool call ID, if recorded.
func (s *MetadataStore) Get(callID string) (ToolResultMetadata, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	md, ok := s.entries[callID]
	return md, ok
}

// Len returns the number of recorded entries.
func (s *MetadataStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
