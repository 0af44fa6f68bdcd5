package kvstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Axmae/ambulance-management/internal/kvstore"
	"github.com/Axmae/ambulance-management/internal/kvstore/kvtest"
)

func TestMemory_Compliance(t *testing.T) {
	kvtest.Run(t, func(t *testing.T) kvstore.Store { return kvstore.NewMemory() })
}

func TestMemory_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	m := kvstore.NewMemory()
	require.NoError(t, m.Put(ctx, "k", []byte("abc")))

	v, err := m.Get(ctx, "k")
	require.NoError(t, err)
	v[0] = 'z'

	again, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "abc", string(again))
}

func TestScope_ListStripsPrefix(t *testing.T) {
	ctx := context.Background()
	m := kvstore.NewMemory()
	s := kvstore.Scope(m, "p1")
	require.NoError(t, s.Put(ctx, kvstore.KeyUsers, []byte("[]")))

	raw, err := m.List(ctx, "")
	require.NoError(t, err)
	require.Equal(t, []string{"p1/users"}, raw)

	keys, err := s.List(ctx, "")
	require.NoError(t, err)
	require.Equal(t, []string{kvstore.KeyUsers}, keys)
}
