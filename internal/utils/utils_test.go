package utils

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	id := uuid.New()
	token, err := GenerateToken("secret", id, "admin", time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken("secret", token)
	require.NoError(t, err)
	assert.Equal(t, id, claims.UserID)
	assert.Equal(t, "admin", claims.Role)
}

func TestParseTokenRejectsWrongSecretAndExpiry(t *testing.T) {
	token, err := GenerateToken("secret", uuid.New(), "user", time.Hour)
	require.NoError(t, err)
	_, err = ParseToken("other", token)
	assert.Error(t, err)

	expired, err := GenerateToken("secret", uuid.New(), "user", -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken("secret", expired)
	assert.Error(t, err)
}

func TestHashPassword(t *testing.T) {
	_, err := HashPassword("12345")
	assert.ErrorIs(t, err, ErrWeakPassword)

	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "correct horse"))
	assert.False(t, CheckPassword(hash, "wrong horse"))
}

func TestPaginationClamp(t *testing.T) {
	pg := NewPagination(0, 0)
	assert.Equal(t, Pagination{Page: 1, Limit: 20, Offset: 0}, pg)

	pg = NewPagination(3, 500)
	assert.Equal(t, 100, pg.Limit)
	assert.Equal(t, 200, pg.Offset)
}

func TestPageEnvelope(t *testing.T) {
	page := NewPage([]string{"a", "b"}, 5, NewPagination(2, 2))
	assert.Equal(t, 3, page.TotalPages())

	env := page.Envelope()
	assert.Equal(t, 2, env["count"])
	assert.Equal(t, int64(5), env["total"])
	assert.Equal(t, 3, env["totalPages"])
	assert.Equal(t, 2, env["currentPage"])

	empty := NewPage[string](nil, 0, NewPagination(1, 10))
	assert.NotNil(t, empty.Items)
	assert.Equal(t, 0, empty.TotalPages())
}
