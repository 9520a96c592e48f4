package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type User struct {
	ID        uuid.UUID
	CreatedAt time.Time
	Email     string
	FullName  string
	Role      Role

	// Empty if the account was provisioned without credentials
	// Such user can't log in until the password is set with reset flow
	HashedPassword string

	PhoneNumber string
	JobTitle    string
	DocumentKey string
}

// Login is possible only when the user has real credentials
func (u User) CanLogin() bool {
	return u.HashedPassword != ""
}

// Safe returns the only user projection allowed in tokens and responses
func (u User) Safe() SafeUser {
	return SafeUser{
		ID:       u.ID,
		Email:    u.Email,
		FullName: u.FullName,
	}
}

type SafeUser struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	FullName string    `json:"fullName"`
}

// Emails are unique case-insensitively, so store and look them up lower-cased
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
