package llmrouter

// DefaultRouterThreshold is the character count above which a turn routes
// to the remote backend.
const DefaultRouterThreshold = 10000

// SelectionReason explains a routing decision.
type SelectionReason string

const (
	ReasonImageContent    SelectionReason = "image_content"
	ReasonOverThreshold   SelectionReason = "length_over_threshold"
	ReasonUnderThreshold  SelectionReason = "length_under_threshold"
	ReasonFallbackBackend SelectionReason = "fallback_backend"
)

// Selection is the outcome of one routing decision.
type Selection struct {
	Backend     *BoundBackend
	Reason      SelectionReason
	TotalLength int
}

// Select chooses the backend for the next turn. It is pure and
// deterministic over its inputs and is re-evaluated every turn; nothing is
// sticky.
//
// Image content forces the multimodal backend and fails with a
// ConfigurationError when none is configured. Otherwise the total
// character count of text parts picks remote over threshold, local under,
// falling back to the other general-purpose backend when the chosen one is
// unconfigured.
func Select(messages []Message, set BackendSet, threshold int) (Selection, error) {
	if threshold <= 0 {
		threshold = DefaultRouterThreshold
	}

	for _, msg := range messages {
		if msg.HasImage() {
			if set.Multimodal == nil {
				return Selection{}, &ConfigurationError{RouterError{
					Message: "conversation contains image content but no multimodal backend is configured",
				}}
			}
			return Selection{Backend: set.Multimodal, Reason: ReasonImageContent}, nil
		}
	}

	totalLength := 0
	for _, msg := range messages {
		totalLength += msg.TextLength()
	}

	var chosen, other *BoundBackend
	var reason SelectionReason
	if totalLength > threshold {
		chosen, other = set.Remote, set.Local
		reason = ReasonOverThreshold
	} else {
		chosen, other = set.Local, set.Remote
		reason = ReasonUnderThreshold
	}

	if chosen == nil {
		chosen = other
		reason = ReasonFallbackBackend
	}
	if chosen == nil {
		return Selection{}, &ConfigurationError{RouterError{
			Message: "no general-purpose backend configured",
		}}
	}

	return Selection{Backend: chosen, Reason: reason, TotalLength: totalLength}, nil
}
