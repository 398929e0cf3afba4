package repository

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestSortedIDs(t *testing.T) {
	a := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	b := uuid.MustParse("00000000-0000-0000-0000-0000000000aa")
	c := uuid.MustParse("ff000000-0000-0000-0000-000000000000")

	assert.Equal(t, []uuid.UUID{a, b, c}, SortedIDs(c, a, b, a))
	assert.Equal(t, []uuid.UUID{a}, SortedIDs(a, a))
	assert.Empty(t, SortedIDs())
}
