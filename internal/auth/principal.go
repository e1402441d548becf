package auth

import (
	"time"

	"github.com/todoapp/auth-service/internal/models"
	"github.com/todoapp/auth-service/internal/sessions"
)

// Principal is the request-scoped view of who is calling. It is derived on
// every request and never stored.
type Principal struct {
	ID      string    `json:"id"`
	Email   string    `json:"email,omitempty"`
	Name    string    `json:"name,omitempty"`
	Image   string    `json:"image,omitempty"`
	Expires time.Time `json:"expires"`
}

// Project maps a live session and its user to a Principal. Both values must
// already be known to exist.
func Project(sess sessions.Session, user models.User) Principal {
	return Principal{
		ID:      user.ID,
		Email:   user.Email,
		Name:    user.Name,
		Image:   user.Image,
		Expires: sess.ExpiresAt,
	}
}
