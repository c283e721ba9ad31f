package models

import "time"

// Link represents a short link and its associated metadata.
type Link struct {
	// ShortID is the short identifier that the link is addressed by.
	ShortID string
	// TargetURL is the original, full-length URL that the short identifier points to.
	TargetURL string
	// CreatedAt is the timestamp indicating when the link was created.
	CreatedAt time.Time
	// LastAccessedAt is the timestamp of the most recent successful lookup.
	// It never decreases and is used to prune links that are no longer read.
	LastAccessedAt time.Time
}
