package models

import "time"

// Identity is the normalized profile one external provider returned for one
// subject. (Provider, Subject) is unique across all users.
type Identity struct {
	Provider string `bson:"provider" json:"provider"`
	Subject  string `bson:"subject" json:"subject"` // provider-scoped user id (OIDC sub, GitHub numeric id)
	Email    string `bson:"email,omitempty" json:"email,omitempty"`
	Name     string `bson:"name,omitempty" json:"name,omitempty"`
	Image    string `bson:"image,omitempty" json:"image,omitempty"`
}

// Key returns the uniqueness key of the identity.
func (i Identity) Key() string {
	return i.Provider + ":" + i.Subject
}

// User is the application account. It may own identities from several providers.
type User struct {
	ID         string     `bson:"_id" json:"id"`
	Email      string     `bson:"email" json:"email"`
	Name       string     `bson:"name,omitempty" json:"name,omitempty"`
	Image      string     `bson:"image,omitempty" json:"image,omitempty"`
	Identities []Identity `bson:"identities,omitempty" json:"identities,omitempty"`
	CreatedAt  time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt  time.Time  `bson:"updatedAt" json:"updatedAt"`
}
