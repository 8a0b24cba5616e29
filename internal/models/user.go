package models

import "time"

// User is the credential store record. The password and the reset token are
// stored only as one-way hashes; raw values never touch the database.
type User struct {
	ID                   string
	Username             string
	Email                string
	PasswordHash         []byte
	FirstName            string
	LastName             string
	Notification         bool
	PasswordResetToken   []byte
	PasswordResetExpires *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}
