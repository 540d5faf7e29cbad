package models

import "time"

// Document is one item returned by a knowledge source fetch.
type Document struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// SourceInfo describes a registered knowledge source for the API.
type SourceInfo struct {
	URL       string     `json:"url"`
	Trusted   bool       `json:"trusted"`
	Available bool       `json:"available"`
	AddedAt   time.Time  `json:"added_at"`
	CheckedAt *time.Time `json:"checked_at,omitempty"`
}
