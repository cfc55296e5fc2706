package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kgcore/pkg/domain"
)

func TestRevision(t *testing.T) {
	a, err := Revision(domain.Document{"x": 1, "y": "z"})
	require.NoError(t, err)
	b, err := Revision(domain.Document{"y": "z", "x": 1})
	require.NoError(t, err)
	c, err := Revision(domain.Document{"x": 2, "y": "z"})
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestAggregate(t *testing.T) {
	assert.Equal(t, StatusReleased, Aggregate(nil))
	assert.Equal(t, StatusReleased, Aggregate([]ReleaseStatus{StatusReleased, StatusReleased}))
	assert.Equal(t, StatusHasChanged, Aggregate([]ReleaseStatus{StatusReleased, StatusHasChanged}))
	assert.Equal(t, StatusUnreleased, Aggregate([]ReleaseStatus{StatusHasChanged, StatusUnreleased}))
	assert.Equal(t, StatusUnreleased, Aggregate([]ReleaseStatus{StatusReleased, ""}))
}

func TestParseTreeScope(t *testing.T) {
	scope, err := ParseTreeScope("")
	require.NoError(t, err)
	assert.Equal(t, ScopeTopInstanceOnly, scope)

	_, err = ParseTreeScope("EVERYTHING")
	require.Error(t, err)
}
