package ledger

import "time"

// State is the lifecycle position of a crawled URL.
type State string

// Crawl states. Processed, skipped, and duplicate are terminal; failed stays
// retryable until the attempt budget is spent.
const (
	StateDiscovered State = "discovered"
	StateFetched    State = "fetched"
	StateProcessed  State = "processed"
	StateFailed     State = "failed"
	StateSkipped    State = "skipped"
	StateDuplicate  State = "duplicate"
)

// Terminal reports whether no further transitions are expected without a
// forced re-fetch.
func (s State) Terminal() bool {
	switch s {
	case StateProcessed, StateSkipped, StateDuplicate:
		return true
	case StateDiscovered, StateFetched, StateFailed:
		return false
	}

	return false
}

// transitions lists the legal state edges. Terminal states accept only a
// re-fetch, which is how forced runs reopen an entry; fetched accepts a
// re-fetch so an interrupted acquisition can be repeated.
var transitions = map[State][]State{
	StateDiscovered: {StateFetched, StateFailed, StateSkipped, StateDuplicate},
	StateFailed:     {StateFetched, StateFailed, StateSkipped, StateDuplicate},
	StateFetched:    {StateFetched, StateProcessed, StateFailed, StateSkipped, StateDuplicate},
	StateProcessed:  {StateFetched},
	StateSkipped:    {StateFetched},
	StateDuplicate:  {StateFetched},
}

// canTransition reports whether the edge from -> to is legal.
func canTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}

	return false
}

// Entry is the persisted ledger row for one (source, canonical URL) pair.
type Entry struct {
	// Source is the canonical source name owning the URL.
	Source string `json:"source"`

	// URL is the canonical URL or work-unit identifier.
	URL string `json:"url"`

	// State is the current lifecycle position.
	State State `json:"state"`

	// FirstSeenAt is when the URL was first discovered.
	FirstSeenAt time.Time `json:"first_seen_at"`

	// LastTransitionAt is when the state last changed.
	LastTransitionAt time.Time `json:"last_transition_at"`

	// HTTPStatus is the status of the last fetch, when one happened.
	HTTPStatus int `json:"http_status,omitempty"`

	// ContentLength is the payload size of the last fetch in bytes.
	ContentLength int64 `json:"content_length,omitempty"`

	// TextHash is the hex content hash recorded at processing time.
	TextHash string `json:"text_hash,omitempty"`

	// SilverID binds the URL to its silver record. Empty on a processed
	// entry means the fetch was attempted but filtered out.
	SilverID string `json:"silver_id,omitempty"`

	// AttemptCount is the number of failed attempts so far.
	AttemptCount int `json:"attempt_count"`

	// FailureReason describes the last failure, when one happened.
	FailureReason string `json:"failure_reason,omitempty"`

	// Metadata carries discovery context such as the page title.
	Metadata map[string]string `json:"metadata,omitempty"`
}
