package models

import "time"

// Profile holds display data keyed by identity id.
type Profile struct {
	ID              string    `db:"id" json:"id"`
	FullName        string    `db:"full_name" json:"full_name"`
	PhoneNumber     *string   `db:"phone_number" json:"phone_number,omitempty"`
	ProfilePhotoURL *string   `db:"profile_photo_url" json:"-"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// ProfileView is a profile with a short-lived photo link.
type ProfileView struct {
	Profile
	PhotoURL       string     `json:"photo_url,omitempty"`
	PhotoExpiresAt *time.Time `json:"photo_expires_at,omitempty"`
}

// UpdateProfileRequest edits the caller's profile.
type UpdateProfileRequest struct {
	FullName    *string `json:"full_name" validate:"omitempty,min=2,max=100"`
	PhoneNumber *string `json:"phone_number" validate:"omitempty,max=20"`
}
