package models

import (
	"time"
)

// SubmissionKind identifies which contract command a submission carried
type SubmissionKind string

const (
	SubmissionKindWatch  SubmissionKind = "watch"
	SubmissionKindUpdate SubmissionKind = "update"
)

// Submission statuses
const (
	SubmissionStatusSubmitted = "submitted"
	SubmissionStatusAccepted  = "accepted"
	SubmissionStatusFailed    = "failed"
)

// WatchSubmission is a journal row for a transaction sent by this process
type WatchSubmission struct {
	ID         string         `json:"id" db:"id"`
	Kind       SubmissionKind `json:"kind" db:"kind"`
	Contract   string         `json:"contract" db:"contract"`
	Address    string         `json:"address" db:"address"`
	AddressHex string         `json:"address_hex" db:"address_hex"`
	TxHash     string         `json:"tx_hash" db:"tx_hash"`
	Status     string         `json:"status" db:"status"`
	Error      *string        `json:"error,omitempty" db:"error"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
	AcceptedAt *time.Time     `json:"accepted_at,omitempty" db:"accepted_at"`
}

// SubmissionFilter for querying the journal
type SubmissionFilter struct {
	Kind    *SubmissionKind `json:"kind,omitempty"`
	Address *string         `json:"address,omitempty"`
	Status  *string         `json:"status,omitempty"`
	Limit   int             `json:"limit,omitempty"`
	Offset  int             `json:"offset,omitempty"`
}
