package models

import "time"

// School represents a physical institution participating in the meal scheme.
// Code is the human-assigned school identifier (DISE-style); ID is internal.
type School struct {
	ID        string    `db:"id" json:"id"`
	Code      string    `db:"code" json:"school_id"`
	Name      string    `db:"name" json:"name"`
	District  string    `db:"district" json:"district"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
