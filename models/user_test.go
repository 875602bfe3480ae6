package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPasswordHashing(t *testing.T) {
	u := &User{Username: "alice"}
	require.NoError(t, u.SetPassword("correct horse battery staple"))

	require.NotEmpty(t, u.PasswordHash)
	require.NotContains(t, u.PasswordHash, "correct horse")

	require.True(t, u.CheckPassword("correct horse battery staple"))
	require.False(t, u.CheckPassword("wrong password"))
	require.False(t, u.CheckPassword(""))
}

func TestSetPasswordReplacesHash(t *testing.T) {
	u := &User{Username: "alice"}
	require.NoError(t, u.SetPassword("first"))
	oldHash := u.PasswordHash

	require.NoError(t, u.SetPassword("second"))
	require.NotEqual(t, oldHash, u.PasswordHash)
	require.False(t, u.CheckPassword("first"))
	require.True(t, u.CheckPassword("second"))
}
