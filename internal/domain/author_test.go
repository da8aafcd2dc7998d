package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProject_Authenticated(t *testing.T) {
	f := Project(Authenticated{ID: "u-1", Email: "anna@salon.kr"})
	require.NotNil(t, f.AuthorID)
	assert.Equal(t, "u-1", *f.AuthorID)
	assert.Equal(t, "anna@salon.kr", f.AuthorLabel)
	assert.False(t, f.IsAnonymous)
}

func TestProject_Anonymous(t *testing.T) {
	f := Project(Anonymous{DisplayName: "  Mina "})
	assert.Nil(t, f.AuthorID)
	assert.Equal(t, "Mina", f.AuthorLabel)
	assert.True(t, f.IsAnonymous)
}

func TestValidateAuthor(t *testing.T) {
	assert.NoError(t, ValidateAuthor(Authenticated{ID: "u-1", Email: "a@b.c"}))
	assert.NoError(t, ValidateAuthor(&Anonymous{DisplayName: "Mina"}))

	var verr *ValidationError
	err := ValidateAuthor(Anonymous{DisplayName: "   "})
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "displayName", verr.Field)

	err = ValidateAuthor(nil)
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "author", verr.Field)
}
