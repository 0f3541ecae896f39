package identity

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActor(t *testing.T) {
	id := New("u1", "clinic_admin")
	actor := id.Actor()
	assert.Equal(t, "u1", actor.ID)
	assert.Equal(t, "clinic_admin", actor.Role)
	assert.Nil(t, actor.IP)

	actor = id.WithRemoteIP(net.ParseIP("10.0.0.7")).Actor()
	require.NotNil(t, actor.IP)
	assert.Equal(t, "10.0.0.7", *actor.IP)
}

func TestContext(t *testing.T) {
	_, ok := Get(context.Background())
	assert.False(t, ok)

	ctx := Set(context.Background(), New("u1", "dentist"))
	id, ok := Get(ctx)
	require.True(t, ok)
	assert.Equal(t, "dentist", id.Role)
}
