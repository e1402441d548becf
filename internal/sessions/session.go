package sessions

import "time"

// Session is a persisted, token-keyed proof that a user authenticated.
type Session struct {
	Token           string    `bson:"token" json:"token"`
	UserID          string    `bson:"userId" json:"userId"`
	CreatedAt       time.Time `bson:"createdAt" json:"createdAt"`
	ExpiresAt       time.Time `bson:"expiresAt" json:"expiresAt"`
	LastRefreshedAt time.Time `bson:"lastRefreshedAt" json:"lastRefreshedAt"`
}

// Expired reports whether the session is no longer valid at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
