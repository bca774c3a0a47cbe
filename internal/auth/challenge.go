package auth

import "time"

// Channel names the delivery path of a login challenge.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// LoginChallenge is a pending magic link or SMS code. Only a hash of the secret is stored.
type LoginChallenge struct {
	ID          string     `gorm:"column:id;primaryKey;size:190"`
	Channel     Channel    `gorm:"column:channel;size:16;not null;index:idx_login_challenges_destination,priority:1"`
	Destination string     `gorm:"column:destination;size:320;not null;index:idx_login_challenges_destination,priority:2"`
	SecretHash  string     `gorm:"column:secret_hash;size:255;not null;index"`
	DisplayName string     `gorm:"column:display_name;size:320"`
	ExpiresAt   time.Time  `gorm:"column:expires_at;not null;index"`
	ConsumedAt  *time.Time `gorm:"column:consumed_at"`
	Attempts    int        `gorm:"column:attempts;not null;default:0"`
	CreatedAt   time.Time  `gorm:"column:created_at"`
}

// TableName exposes the table backing login challenges.
func (LoginChallenge) TableName() string {
	return "login_challenges"
}

func (c LoginChallenge) pending(now time.Time) bool {
	return c.ConsumedAt == nil && now.Before(c.ExpiresAt)
}
