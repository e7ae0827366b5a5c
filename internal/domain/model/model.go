// Package model contains domain models passed between layers.
package model

import "time"

// DateLayout is the calendar-date layout used for last_played values.
const DateLayout = "2006-01-02"

// PlayerRating is the persisted belief state of one participant.
type PlayerRating struct {
	PlayerID   int64     // chat-platform user id
	Mu         float64   // estimated skill mean
	Sigma      float64   // skill uncertainty, always > 0
	LastActive time.Time // calendar day of the most recent report the player appeared in
}

// Message is an inbound chat message as seen by the boundary classifier.
type Message struct {
	ID         string    `json:"id"`
	ChannelID  string    `json:"channel_id"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Content    string    `json:"content"`
	PostedAt   time.Time `json:"posted_at"`
}

// JobKind identifies what the single-writer worker should do with a job.
type JobKind string

// Job kinds.
const (
	JobReport  JobKind = "report"
	JobRebuild JobKind = "rebuild"
)

// Job is one unit of work for the single-writer mailbox.
type Job struct {
	ID        string
	Kind      JobKind
	ChannelID string
	Message   Message // set for JobReport
}

// JobState tracks the lifecycle of a queued job.
type JobState string

// Job states.
const (
	JobPending JobState = "pending"
	JobRunning JobState = "running"
	JobDone    JobState = "done"
	JobFailed  JobState = "failed"
)

// JobStatus is the externally visible status of a job.
type JobStatus struct {
	ID         string    `json:"id"`
	Kind       JobKind   `json:"kind"`
	State      JobState  `json:"state"`
	Error      string    `json:"error,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SubmitStatus is the outcome of offering an inbound message.
type SubmitStatus string

// Submit statuses.
const (
	SubmitAccepted  SubmitStatus = "accepted"
	SubmitIgnored   SubmitStatus = "ignored"
	SubmitDuplicate SubmitStatus = "duplicate"
)

// Submission is returned to whoever delivered an inbound message.
type Submission struct {
	Status SubmitStatus `json:"status"`
	JobID  string       `json:"job_id,omitempty"`
	Reason string       `json:"reason,omitempty"`
}
