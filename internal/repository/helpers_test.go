package repository

import (
	"testing"

	"github.com/cloo-solutions/fhirchat/internal/pagination"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, cursor string) *pagination.Cursor {
	t.Helper()
	c, err := pagination.DecodeCursor(cursor)
	require.NoError(t, err)
	require.NotNil(t, c)
	return c
}
