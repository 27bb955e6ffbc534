package models

import (
	"time"
)

// Product is a row of the products table. Code is the unique key; Source is
// nil for rows created by a price submission before any catalog sync.
type Product struct {
	ID               int64      `json:"id"`
	Code             string     `json:"code"`
	Source           *string    `json:"source"`
	SourceLastSynced *time.Time `json:"source_last_synced"`
	ProductFields
	// PriceCount is maintained by the price subsystem and never written by sync.
	PriceCount int       `json:"price_count"`
	CreatedAt  time.Time `json:"created"`
	UpdatedAt  time.Time `json:"updated"`
}

// SyncState is the part of a stored product the reconciler needs.
type SyncState struct {
	Code             string
	Source           *string
	SourceLastSynced *time.Time
}
