package hash

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashAndCheck(t *testing.T) {
	h, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	require.NotEqual(t, "correct horse battery staple", h)

	require.True(t, CheckPassword(h, "correct horse battery staple"))
	require.False(t, CheckPassword(h, "wrong password"))
	require.False(t, CheckPassword("", "anything"))
}
