package models

import "time"

// AttendeeType classifies a conference participant.
type AttendeeType string

const (
	AttendeeGeneral AttendeeType = "general"
	AttendeeSpeaker AttendeeType = "speaker"
	AttendeeSponsor AttendeeType = "sponsor"
	AttendeeVIP     AttendeeType = "vip"
)

// Valid reports whether t is one of the known attendee types.
func (t AttendeeType) Valid() bool {
	switch t {
	case AttendeeGeneral, AttendeeSpeaker, AttendeeSponsor, AttendeeVIP:
		return true
	}
	return false
}

// Profile carries the registration details of a user. It shares its ID with
// the owning User, so there is exactly one profile per user.
type Profile struct {
	ID           string       `db:"id" json:"id"`
	Email        string       `db:"email" json:"email"`
	FirstName    string       `db:"first_name" json:"firstName"`
	LastName     string       `db:"last_name" json:"lastName"`
	Company      *string      `db:"company" json:"company"`
	JobTitle     *string      `db:"job_title" json:"jobTitle"`
	AttendeeType AttendeeType `db:"attendee_type" json:"attendeeType"`
	IsAdmin      bool         `db:"is_admin" json:"isAdmin"`
	CreatedAt    time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time    `db:"updated_at" json:"updatedAt"`
}
