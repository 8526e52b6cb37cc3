package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Opportunity is the canonical, global record for one source-native
// contracting opportunity. One row per (source, source_id); shared by all
// tenants and never tenant-mutable.
type Opportunity struct {
	ID       string `json:"id"`
	Source   string `json:"source"`
	SourceID string `json:"sourceId"`

	Title       string `json:"title"`
	Description string `json:"description"`
	Agency      string `json:"agency"`

	// Classification codes
	NAICSCode string `json:"naicsCode"`
	PSCCode   string `json:"pscCode"`

	SetAside string `json:"setAside"`
	OppType  string `json:"oppType"` // e.g. "solicitation", "presolicitation", "sources_sought"

	PostedAt time.Time `json:"postedAt"`
	CloseAt  time.Time `json:"closeAt"`

	// Estimated contract value range (0 = unknown)
	ValueMin float64 `json:"valueMin"`
	ValueMax float64 `json:"valueMax"`

	Status string `json:"status"`

	// ContentHash covers the watched fields and drives idempotent upsert
	// and amendment detection.
	ContentHash string `json:"contentHash"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Opportunity lifecycle statuses.
const (
	OppStatusActive    = "active"
	OppStatusClosed    = "closed"
	OppStatusAwarded   = "awarded"
	OppStatusCancelled = "cancelled"
)

// ComputeContentHash returns the hash of the watched fields. Re-ingesting a
// record with an identical hash must be a no-op.
func (o *Opportunity) ComputeContentHash() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s|%s|%s|%d|%.2f|%.2f|%s",
		o.Title, o.Description, o.Agency,
		o.NAICSCode, o.PSCCode, o.SetAside, o.OppType,
		o.CloseAt.UTC().Unix(), o.ValueMin, o.ValueMax, o.Status,
	)
	return hex.EncodeToString(h.Sum(nil))
}

// FieldChange describes one watched-field difference found during
// re-ingestion of an existing opportunity.
type FieldChange struct {
	Field    string `json:"field"`
	OldValue string `json:"oldValue"`
	NewValue string `json:"newValue"`
}

// Amendment is an append-only diff record for an opportunity. Immutable once
// written except for the notified flag.
type Amendment struct {
	ID            string    `json:"id"`
	OpportunityID string    `json:"opportunityId"`
	ChangeType    string    `json:"changeType"` // watched field name
	OldValue      string    `json:"oldValue"`
	NewValue      string    `json:"newValue"`
	DetectedAt    time.Time `json:"detectedAt"`
	Notified      bool      `json:"notified"`
}

// Document is an attachment discovered during ingestion. The core only
// creates these rows; a separate document fetcher consumes them.
type Document struct {
	ID            string    `json:"id"`
	OpportunityID string    `json:"opportunityId"`
	Title         string    `json:"title"`
	URL           string    `json:"url"`
	Status        string    `json:"status"` // "pending", "downloaded", "failed"
	CreatedAt     time.Time `json:"createdAt"`
}

// Document download statuses.
const (
	DocStatusPending    = "pending"
	DocStatusDownloaded = "downloaded"
	DocStatusFailed     = "failed"
)

// OutboundMessage is a durable notification queue entry. The core only
// enqueues messages; a notification sender consumes them.
type OutboundMessage struct {
	ID          string    `json:"id"`
	Recipient   string    `json:"recipient"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body"`
	ScheduledAt time.Time `json:"scheduledAt"`
	Status      string    `json:"status"` // "pending", "sent", "failed"
	CreatedAt   time.Time `json:"createdAt"`
}
