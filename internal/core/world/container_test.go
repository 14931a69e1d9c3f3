package world

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/levelhost/internal/core/services"
)

type prop struct {
	id        string
	attachErr error
	attached  int
	detached  int
}

func (p *prop) ObjectID() string { return p.id }
func (p *prop) Attach() error {
	p.attached++
	return p.attachErr
}
func (p *prop) Detach() { p.detached++ }

func TestContainer_InstantiateDestroy(t *testing.T) {
	c := NewContainer()
	p := &prop{id: "a"}

	require.NoError(t, c.Instantiate(p))
	assert.True(t, c.Contains(p))
	assert.Equal(t, 1, p.attached)

	assert.ErrorIs(t, c.Instantiate(p), ErrAlreadyInstantiated)
	assert.Equal(t, 1, p.attached)

	c.Destroy(p)
	c.Destroy(p)
	c.Destroy(nil)
	assert.Equal(t, 1, p.detached)
	assert.False(t, c.Contains(p))
}

func TestContainer_AttachFailure(t *testing.T) {
	c := NewContainer()
	p := &prop{id: "a", attachErr: errors.New("nope")}

	assert.Error(t, c.Instantiate(p))
	assert.Equal(t, 0, c.Len())
}

func TestService_StopClears(t *testing.T) {
	s := NewService(services.Env{Name: "world"})
	require.NoError(t, s.Configure(&Config{}))
	require.NoError(t, s.Start(context.Background(), nil))

	a, b := &prop{id: "a"}, &prop{id: "b"}
	require.NoError(t, s.Instantiate(a))
	require.NoError(t, s.Instantiate(b))
	assert.Equal(t, []string{"a", "b"}, s.IDs())

	require.NoError(t, s.Stop(context.Background(), nil))
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 1, a.detached)
	assert.Equal(t, 1, b.detached)
}
