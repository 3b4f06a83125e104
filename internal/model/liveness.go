package model

import "time"

// LivenessStatus is the terminal classification of a checked target.
// There is deliberately no "unknown" value: every check resolves to
// alive or dead, and the reason string carries the detail.
type LivenessStatus string

const (
	// StatusAlive means the target answered with HTTP 200.
	StatusAlive LivenessStatus = "alive"

	// StatusDead means the target did not answer with HTTP 200 for any reason.
	StatusDead LivenessStatus = "dead"
)

// String returns the status as a string.
func (s LivenessStatus) String() string {
	return string(s)
}

// Target is a link whose liveness is checked.
type Target struct {
	// ID identifies the target for the caller (typically a database row ID).
	ID int64 `json:"id"`

	// URL is the full URL to fetch.
	URL string `json:"url"`
}

// LivenessRecord is the outcome of checking one target in one run.
type LivenessRecord struct {
	// TargetID is the ID of the checked target.
	TargetID int64 `json:"target_id"`

	// URL is the checked URL.
	URL string `json:"url"`

	// Status is alive or dead.
	Status LivenessStatus `json:"status"`

	// StatusCode is the HTTP status received, zero when no response arrived.
	StatusCode int `json:"status_code,omitempty"`

	// ResponseTime is the wall-clock time of the fetch. Only set for alive targets.
	ResponseTime time.Duration `json:"response_time,omitempty"`

	// Reason explains why the target is dead. Empty for alive targets.
	Reason string `json:"reason,omitempty"`

	// FailureKind classifies a dead target's failure.
	FailureKind FailureKind `json:"failure_kind,omitempty"`

	// CheckedAt is when the check completed.
	CheckedAt time.Time `json:"checked_at"`
}

// IsAlive reports whether the record is alive.
func (r LivenessRecord) IsAlive() bool {
	return r.Status == StatusAlive
}

// ResponseTimeSeconds returns the response time in seconds.
func (r LivenessRecord) ResponseTimeSeconds() float64 {
	return r.ResponseTime.Seconds()
}
