package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/todoapp/auth-service/internal/models"
)

type stubProvider struct{ name string }

func (s stubProvider) Name() string { return s.name }
func (s stubProvider) AuthCodeURL(state, _ string) string { return "https://idp/" + s.name + "?state=" + state }
func (s stubProvider) CompleteHandshake(context.Context, string, string) (*models.Identity, error) {
	return &models.Identity{Provider: s.name, Subject: "1"}, nil
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(stubProvider{"google"}, nil, stubProvider{"github"})
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []string{"github", "google"}, r.Names())

	p, err := r.Get("github")
	require.NoError(t, err)
	assert.Equal(t, "github", p.Name())

	_, err = r.Get("twitter")
	require.Error(t, err)
}

func TestProviderError(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewProviderError("github", "exchange", cause)
	assert.True(t, IsProviderError(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "github exchange failed: connection refused", err.Error())

	// already wrapped errors pass through
	assert.Same(t, err, NewProviderError("other", "profile", err))

	pe := &ProviderError{Provider: "google", Op: "exchange", Code: "invalid_grant", Description: "Bad code"}
	assert.Equal(t, "google exchange failed: Bad code", pe.Error())
	assert.Equal(t, "google failed: status 502", (&ProviderError{Provider: "google", Status: 502}).Error())
	assert.False(t, IsProviderError(cause))
}
