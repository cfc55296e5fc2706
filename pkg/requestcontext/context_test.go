package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"kgcore/pkg/domain"
)

func TestAccessors(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, domain.UserID(""), UserID(ctx))
	assert.Empty(t, ClientID(ctx))
	assert.Empty(t, RequestID(ctx))

	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	ctx = WithUserID(ctx, "u1")
	ctx = WithClientID(ctx, "kg-editor")
	ctx = WithRequestID(ctx, "req-1")
	ctx = WithTime(ctx, fixed)

	assert.Equal(t, domain.UserID("u1"), UserID(ctx))
	assert.Equal(t, "kg-editor", ClientID(ctx))
	assert.Equal(t, "req-1", RequestID(ctx))
	assert.Equal(t, fixed, Now(ctx))
}
