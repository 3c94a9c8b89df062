package storage

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/gatekeep/internal/common"
	"github.com/bobmcallan/gatekeep/internal/storage/memory"
	"github.com/bobmcallan/gatekeep/internal/storage/redis"
)

func TestNewStorageManager_Memory(t *testing.T) {
	cfg := common.NewDefaultConfig()
	cfg.Storage.Backend = BackendMemory

	m, err := NewStorageManager(common.NewSilentLogger(), cfg)
	require.NoError(t, err)
	defer m.Close()
	assert.IsType(t, &memory.Store{}, m)
}

func TestNewStorageManager_UnknownBackend(t *testing.T) {
	cfg := common.NewDefaultConfig()
	cfg.Storage.Backend = "badger"

	_, err := NewStorageManager(common.NewSilentLogger(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown storage backend")
}

func TestNewDenylist_SelectsBackend(t *testing.T) {
	ctx := context.Background()
	cfg := common.NewDefaultConfig()

	d, err := NewDenylist(ctx, common.NewSilentLogger(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &memory.Denylist{}, d)

	mr := miniredis.RunT(t)
	cfg.Redis.Enabled = true
	cfg.Redis.Address = mr.Addr()

	d, err = NewDenylist(ctx, common.NewSilentLogger(), cfg)
	require.NoError(t, err)
	defer d.Close()
	assert.IsType(t, &redis.Denylist{}, d)
}
