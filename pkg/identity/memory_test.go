package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryProviderLifecycle(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider(false)

	account, err := p.CreateAccount(ctx, AccountRequest{Email: "o@x.com", Password: "pw"})
	require.NoError(t, err)
	assert.NotEmpty(t, account.ID)
	assert.NotNil(t, account.ConfirmedAt)

	_, err = p.CreateAccount(ctx, AccountRequest{Email: "O@X.com", Password: "pw"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "email_exists", apiErr.Code)

	session, err := p.SignIn(ctx, "o@x.com", "pw")
	require.NoError(t, err)

	claims, err := p.Verify(ctx, session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, account.ID, claims.Subject)

	_, err = p.SignIn(ctx, "o@x.com", "bad")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	require.NoError(t, p.DeleteAccount(ctx, account.ID))
	assert.ErrorIs(t, p.DeleteAccount(ctx, account.ID), ErrAccountNotFound)

	_, err = p.Verify(ctx, session.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidSession)
	assert.Equal(t, 0, p.AccountCount())
}

func TestMemoryProviderSignUpNeedsConfirmation(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider(false)

	_, err := p.SignUp(ctx, AccountRequest{Email: "e@x.com", Password: "pw"})
	require.NoError(t, err)

	_, err = p.SignIn(ctx, "e@x.com", "pw")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Email not confirmed", apiErr.Message)

	require.True(t, p.Confirm("e@x.com"))
	_, err = p.SignIn(ctx, "e@x.com", "pw")
	assert.NoError(t, err)
}

func TestMemoryProviderFailNext(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider(true)
	boom := errors.New("boom")

	p.FailNext(OpSignUp, boom)
	_, err := p.SignUp(ctx, AccountRequest{Email: "e@x.com", Password: "pw"})
	assert.ErrorIs(t, err, boom)

	// only the next call fails
	_, err = p.SignUp(ctx, AccountRequest{Email: "e@x.com", Password: "pw"})
	assert.NoError(t, err)
}

func TestMemoryProviderPasswordResets(t *testing.T) {
	p := NewMemoryProvider(true)
	require.NoError(t, p.SendPasswordReset(context.Background(), "a@x.com", "http://site/reset-password"))

	resets := p.PasswordResets()
	require.Len(t, resets, 1)
	assert.Equal(t, "a@x.com", resets[0].Email)
	assert.Equal(t, "http://site/reset-password", resets[0].RedirectTo)
}
