package users

import (
	"strings"
	"time"
)

const (
	// ProviderEmail identifies members who sign in with a magic link.
	ProviderEmail = "email"
	// ProviderPhone identifies members who sign in with an SMS code.
	ProviderPhone = "phone"
)

// Identity maps a sign-in address (email or E.164 phone) to a canonical profile id.
type Identity struct {
	Provider   string    `gorm:"column:provider;primaryKey;size:32;not null"`
	Subject    string    `gorm:"column:subject;primaryKey;size:320;not null"`
	UserID     string    `gorm:"column:user_id;size:190;not null;index"`
	LastSeenAt time.Time `gorm:"column:last_seen_at"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName exposes the table backing sign-in identities.
func (Identity) TableName() string {
	return "user_identities"
}

// SignIn describes a verified sign-in handed over by the auth layer.
type SignIn struct {
	Provider    string
	Subject     string
	DisplayName string
}

func normalizeSubject(provider, subject string) string {
	trimmed := strings.TrimSpace(subject)
	if provider == ProviderEmail {
		return strings.ToLower(trimmed)
	}
	return trimmed
}
