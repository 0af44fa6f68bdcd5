package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowlist_Defaults(t *testing.T) {
	ctx := context.Background()
	a, err := ParseAllowlist(nil)
	require.NoError(t, err)

	role, err := a.Verify(ctx, "admin@app.com", "admin123")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, role)

	role, err = a.Verify(ctx, " User@App.com ", "user123")
	require.NoError(t, err)
	assert.Equal(t, RoleUser, role)

	_, err = a.Verify(ctx, "admin@app.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = a.Verify(ctx, "nobody@app.com", "admin123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestParseAllowlist(t *testing.T) {
	a, err := ParseAllowlist([]string{"ops@app.com:pa:ss:admin", "night@app.com:pw:user"})
	require.NoError(t, err)
	assert.Equal(t, 2, a.Len())

	role, err := a.Verify(context.Background(), "ops@app.com", "pa:ss")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, role)

	_, err = a.Verify(context.Background(), "admin@app.com", "admin123")
	assert.ErrorIs(t, err, ErrInvalidCredentials, "custom list replaces the demo accounts")

	for _, bad := range []string{"nocolon", "a@b:secret", ":secret:admin", "a@b:secret:"} {
		_, err := ParseAllowlist([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestChain(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("backend down")
	c := Chain{
		NewAllowlist(Credential{Identity: "a@x", Secret: "1", Role: RoleAdmin}),
		ProviderFunc(func(_ context.Context, id, _ string) (string, error) {
			if id == "broken@x" {
				return "", boom
			}
			return "", ErrInvalidCredentials
		}),
	}

	role, err := c.Verify(ctx, "a@x", "1")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, role)

	_, err = c.Verify(ctx, "b@x", "1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = c.Verify(ctx, "broken@x", "1")
	assert.ErrorIs(t, err, boom)
}
