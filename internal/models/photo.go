package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// MealType enumerates the meal services a warden can report.
type MealType string

const (
	MealBreakfast MealType = "breakfast"
	MealLunch     MealType = "lunch"
	MealSnacks    MealType = "snacks"
	MealDinner    MealType = "dinner"
)

// Label returns the human-facing meal name used in social captions.
func (m MealType) Label() string {
	switch m {
	case MealBreakfast:
		return "Breakfast"
	case MealLunch:
		return "Lunch"
	case MealSnacks:
		return "Evening Snacks"
	case MealDinner:
		return "Dinner"
	default:
		return string(m)
	}
}

// Valid reports whether the meal type is one of the recognised services.
func (m MealType) Valid() bool {
	switch m {
	case MealBreakfast, MealLunch, MealSnacks, MealDinner:
		return true
	}
	return false
}

// SocialStatus tracks the social posting disposition of a photo.
// A photo settles at most once: pending -> posted or pending -> skipped.
type SocialStatus string

const (
	SocialPending SocialStatus = "pending"
	SocialPosted  SocialStatus = "posted"
	SocialSkipped SocialStatus = "skipped"
)

// Photo represents an uploaded meal photo record.
type Photo struct {
	ID             string        `db:"id" json:"id"`
	SchoolID       string        `db:"school_id" json:"school_id"`
	MealType       MealType      `db:"meal_type" json:"meal_type"`
	PhotoURL       string        `db:"photo_url" json:"photo_url"`
	UploadedBy     string        `db:"uploaded_by" json:"uploaded_by"`
	Timestamp      time.Time     `db:"timestamp" json:"timestamp"`
	SocialStatus   *SocialStatus `db:"social_status" json:"social_status,omitempty"`
	SocialPostID   *string       `db:"social_post_id" json:"social_post_id,omitempty"`
	SocialBatchKey *string       `db:"social_batch_key" json:"social_batch_key,omitempty"`
	SkipReason     *string       `db:"skip_reason" json:"skip_reason,omitempty"`
	Remarks        RemarkList    `db:"remarks" json:"remarks"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
}

// Pending reports whether the photo is still eligible for social posting.
func (p *Photo) Pending() bool {
	return p.SocialStatus == nil || *p.SocialStatus == SocialPending
}

// Remark is an officer annotation appended to a photo.
type Remark struct {
	OfficerID string    `json:"officer_id"`
	Text      string    `json:"text"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// RemarkStatus values accepted on remark creation.
const (
	RemarkStatusGood  = "good"
	RemarkStatusIssue = "issue"
)

// RemarkList stores remarks as a JSONB array on the photo row.
type RemarkList []Remark

// Value marshals the remark list to JSON for persistence.
func (r RemarkList) Value() (driver.Value, error) {
	if r == nil {
		r = RemarkList{}
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal remarks: %w", err)
	}
	return data, nil
}

// Scan unmarshals a JSONB payload into the remark list.
func (r *RemarkList) Scan(value interface{}) error {
	if value == nil {
		*r = RemarkList{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for RemarkList", value)
	}
	if len(data) == 0 {
		*r = RemarkList{}
		return nil
	}
	if err := json.Unmarshal(data, r); err != nil {
		return fmt.Errorf("unmarshal remarks: %w", err)
	}
	return nil
}

// PhotoFilter captures list criteria for photo galleries.
type PhotoFilter struct {
	SchoolID   string
	MealType   *MealType
	UploadedBy string
	From       *time.Time
	To         *time.Time
	Page       int
	PageSize   int
}
