package di

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-user-cache/pkg/config"
	"github.com/goliatone/go-user-cache/pkg/testsupport"
	"github.com/goliatone/go-user-cache/users"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func memoryConfig() config.Config {
	cfg := config.Default()
	cfg.App.Env = config.EnvTest
	cfg.Database.URL = testsupport.SQLiteDSN()
	cfg.Cache.Backend = config.BackendMemory
	cfg.Cache.InvalidationBackoff = config.Duration(time.Millisecond)
	return cfg
}

func newInitedContainer(t *testing.T, cfg config.Config) *Container {
	t.Helper()
	container, err := NewContainer(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, container.Init(context.Background()))
	t.Cleanup(func() { _ = container.Shutdown(context.Background()) })
	return container
}

func TestNewContainer_InvalidConfig(t *testing.T) {
	cfg := memoryConfig()
	cfg.Cache.Backend = "memcached"

	container, err := NewContainer(cfg, nil)
	assert.Error(t, err)
	assert.Nil(t, container)
}

func TestContainer_BeforeInit(t *testing.T) {
	ctx := context.Background()
	container, err := NewContainer(memoryConfig(), nil)
	require.NoError(t, err)

	assert.Nil(t, container.DB())
	assert.Nil(t, container.Store())
	require.NotNil(t, container.Users())

	_, err = container.Users().GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, users.ErrNotInitialized)
	_, err = container.Users().List(ctx, 10, 0)
	assert.True(t, users.IsUnavailable(err))

	health := container.Health(ctx)
	assert.ErrorIs(t, health["database"], users.ErrNotInitialized)
	assert.ErrorIs(t, health["cache"], users.ErrNotInitialized)
}

func TestContainer_MemoryBackend(t *testing.T) {
	ctx := context.Background()
	container := newInitedContainer(t, memoryConfig())

	require.NotNil(t, container.DB())
	require.NotNil(t, container.Store())

	for name, err := range container.Health(ctx) {
		assert.NoError(t, err, name)
	}

	layer := container.Users()
	created, err := layer.Create(ctx, users.CreateUser{Name: "Ana", Email: "a@x.com", Age: testsupport.Age(20)})
	require.NoError(t, err)

	got, err := layer.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", got.Email)

	_, found, err := container.Store().Get(ctx, "users:"+created.ID.String())
	require.NoError(t, err)
	assert.True(t, found)

	// idempotent
	require.NoError(t, container.Init(ctx))
}

func TestContainer_Shutdown(t *testing.T) {
	ctx := context.Background()
	container, err := NewContainer(memoryConfig(), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, container.Init(ctx))

	layer := container.Users()
	require.NoError(t, container.Shutdown(ctx))

	_, err = layer.List(ctx, 10, 0)
	assert.ErrorIs(t, err, users.ErrNotInitialized)
	_, err = container.Users().List(ctx, 10, 0)
	assert.ErrorIs(t, err, users.ErrNotInitialized)
	assert.Nil(t, container.DB())
	assert.Nil(t, container.Store())

	require.NoError(t, container.Shutdown(ctx), "shutdown twice")
}

func TestContainer_RedisBackend(t *testing.T) {
	ctx := context.Background()
	mr, _ := testsupport.NewRedis(t)

	cfg := memoryConfig()
	cfg.Cache.Backend = config.BackendRedis
	cfg.Cache.RedisURL = "redis://" + mr.Addr() + "/0"
	container := newInitedContainer(t, cfg)

	layer := container.Users()
	created, err := layer.Create(ctx, users.CreateUser{Name: "Ana", Email: "a@x.com", Age: testsupport.Age(20)})
	require.NoError(t, err)

	_, err = layer.GetByID(ctx, created.ID)
	require.NoError(t, err)
	_, err = layer.List(ctx, 10, 0)
	require.NoError(t, err)

	assert.True(t, mr.Exists("users:"+created.ID.String()))
	assert.True(t, mr.Exists("users:list:10:0"))
	assert.Equal(t, 60*time.Second, mr.TTL("users:list:10:0"))

	require.NoError(t, layer.Delete(ctx, created.ID))
	assert.False(t, mr.Exists("users:"+created.ID.String()))
	assert.False(t, mr.Exists("users:list:10:0"))
}

func TestContainer_Init_RedisUnreachable(t *testing.T) {
	mr, _ := testsupport.NewRedis(t)
	addr := mr.Addr()
	mr.Close()

	cfg := memoryConfig()
	cfg.Cache.Backend = config.BackendRedis
	cfg.Cache.RedisURL = "redis://" + addr + "/0?max_retries=-1"
	cfg.Cache.QueryTimeout = config.Duration(time.Second)

	container, err := NewContainer(cfg, nil)
	require.NoError(t, err)

	err = container.Init(context.Background())
	require.Error(t, err)
	assert.True(t, users.IsUnavailable(err))
	assert.Nil(t, container.DB(), "database released after failed init")
}

func TestContainer_Init_BadRedisURL(t *testing.T) {
	cfg := memoryConfig()
	cfg.Cache.Backend = config.BackendRedis
	cfg.Cache.RedisURL = "http://not-redis"

	container, err := NewContainer(cfg, nil)
	require.NoError(t, err)
	assert.Error(t, container.Init(context.Background()))
}

func TestOpenDB_UnsupportedScheme(t *testing.T) {
	_, err := OpenDB(config.DatabaseConfig{URL: "mysql://root@localhost/users"}, nil)
	assert.Error(t, err)
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "file::memory:?cache=shared", sqliteDSN("sqlite3://file::memory:?cache=shared"))
	assert.Equal(t, "users.db", sqliteDSN("sqlite://users.db"))
	assert.Equal(t, "file:users.db", sqliteDSN("file:users.db"))
}

func TestNewLogger(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Level = "warn"

	logger, err := NewLogger(cfg)
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))

	cfg.App.Env = config.EnvProduction
	cfg.Log.Level = "debug"
	logger, err = NewLogger(cfg)
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	cfg.Log.Level = "loud"
	_, err = NewLogger(cfg)
	assert.Error(t, err)
}
