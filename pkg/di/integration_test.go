package di

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/goliatone/go-user-cache/pkg/config"
	"github.com/goliatone/go-user-cache/pkg/testsupport"
	"github.com/goliatone/go-user-cache/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

// selectCounter counts SELECT statements reaching the database.
type selectCounter struct {
	n atomic.Int64
}

func (c *selectCounter) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (c *selectCounter) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	if event.Operation() == "SELECT" {
		c.n.Add(1)
	}
}

func (c *selectCounter) Value() int64 {
	return c.n.Load()
}

type integrationEnv struct {
	container *Container
	selects   *selectCounter
	redis     *miniredis.Miniredis
}

func newIntegrationEnv(t *testing.T) integrationEnv {
	t.Helper()
	mr, _ := testsupport.NewRedis(t)

	cfg := memoryConfig()
	cfg.Cache.Backend = config.BackendRedis
	cfg.Cache.RedisURL = "redis://" + mr.Addr() + "/0"
	container := newInitedContainer(t, cfg)

	counter := &selectCounter{}
	container.DB().AddQueryHook(counter)

	return integrationEnv{container: container, selects: counter, redis: mr}
}

func TestIntegration_ReadYourWrites(t *testing.T) {
	ctx := context.Background()
	env := newIntegrationEnv(t)
	layer := env.container.Users()

	created, err := layer.Create(ctx, users.CreateUser{Name: "Ana", Email: "a@x.com", Age: testsupport.Age(20)})
	require.NoError(t, err)

	got, err := layer.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "Ana", got.Name)

	page, err := layer.List(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, page, 1)

	updated, err := layer.Update(ctx, created.ID, users.UpdateUser{Name: testsupport.Str("Ana Maria")})
	require.NoError(t, err)
	assert.Equal(t, "Ana Maria", updated.Name)

	got, err = layer.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ana Maria", got.Name)
	assert.Equal(t, 20, got.Age, "omitted fields unchanged")

	page, err = layer.List(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "Ana Maria", page[0].Name)
}

func TestIntegration_SecondReadServedFromCache(t *testing.T) {
	ctx := context.Background()
	env := newIntegrationEnv(t)
	layer := env.container.Users()

	created, err := layer.Create(ctx, users.CreateUser{Name: "Ana", Email: "a@x.com", Age: testsupport.Age(20)})
	require.NoError(t, err)

	_, err = layer.GetByID(ctx, created.ID)
	require.NoError(t, err)
	before := env.selects.Value()

	_, err = layer.GetByID(ctx, created.ID)
	require.NoError(t, err)
	_, err = layer.GetByID(ctx, created.ID)
	require.NoError(t, err)

	assert.Equal(t, before, env.selects.Value())
}

func TestIntegration_DuplicateEmail(t *testing.T) {
	ctx := context.Background()
	env := newIntegrationEnv(t)
	layer := env.container.Users()

	_, err := layer.Create(ctx, users.CreateUser{Name: "A", Email: "dup@x.com", Age: testsupport.Age(22)})
	require.NoError(t, err)
	_, err = layer.Create(ctx, users.CreateUser{Name: "B", Email: "dup@x.com", Age: testsupport.Age(33)})
	assert.ErrorIs(t, err, users.ErrConflict)

	count, err := env.container.DB().NewSelect().
		Model((*users.User)(nil)).
		Where("email = ?", "dup@x.com").
		Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestIntegration_EveryMutationRefreshesListPages(t *testing.T) {
	ctx := context.Background()
	env := newIntegrationEnv(t)
	layer := env.container.Users()

	ana, err := layer.Create(ctx, users.CreateUser{Name: "Ana", Email: "a@x.com", Age: testsupport.Age(20)})
	require.NoError(t, err)

	mutations := []struct {
		name string
		run  func() error
	}{
		{"create", func() error {
			_, err := layer.Create(ctx, users.CreateUser{Name: "Bruno", Email: "b@x.com", Age: testsupport.Age(31)})
			return err
		}},
		{"update", func() error {
			_, err := layer.Update(ctx, ana.ID, users.UpdateUser{Age: testsupport.Age(21)})
			return err
		}},
		{"delete", func() error {
			return layer.Delete(ctx, ana.ID)
		}},
	}

	for _, m := range mutations {
		t.Run(m.name, func(t *testing.T) {
			_, err := layer.List(ctx, 10, 0)
			require.NoError(t, err)
			_, err = layer.List(ctx, 1, 1)
			require.NoError(t, err)
			require.True(t, env.redis.Exists("users:list:10:0"))

			require.NoError(t, m.run())

			assert.False(t, env.redis.Exists("users:list:10:0"))
			assert.False(t, env.redis.Exists("users:list:1:1"))

			before := env.selects.Value()
			_, err = layer.List(ctx, 10, 0)
			require.NoError(t, err)
			assert.Greater(t, env.selects.Value(), before, "list page refetched from the database")
		})
	}
}

func TestIntegration_DeletedUserIsGone(t *testing.T) {
	ctx := context.Background()
	env := newIntegrationEnv(t)
	layer := env.container.Users()

	created, err := layer.Create(ctx, users.CreateUser{Name: "Ana", Email: "a@x.com", Age: testsupport.Age(20)})
	require.NoError(t, err)
	_, err = layer.GetByID(ctx, created.ID)
	require.NoError(t, err)

	require.NoError(t, layer.Delete(ctx, created.ID))

	assert.False(t, env.redis.Exists("users:"+created.ID.String()))
	_, err = layer.GetByID(ctx, created.ID)
	assert.ErrorIs(t, err, users.ErrNotFound)
}

func TestIntegration_AnaScenario(t *testing.T) {
	ctx := context.Background()
	env := newIntegrationEnv(t)
	layer := env.container.Users()

	ana, err := layer.Create(ctx, users.CreateUser{Name: "Ana", Email: "a@x.com", Age: testsupport.Age(20)})
	require.NoError(t, err)

	got, err := layer.GetByID(ctx, ana.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, got.Age)

	_, err = layer.Update(ctx, ana.ID, users.UpdateUser{Age: testsupport.Age(21)})
	require.NoError(t, err)

	got, err = layer.GetByID(ctx, ana.ID)
	require.NoError(t, err)
	assert.Equal(t, 21, got.Age)

	page, err := layer.List(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, 21, page[0].Age)

	_, err = layer.Create(ctx, users.CreateUser{Name: "Other", Email: "a@x.com", Age: testsupport.Age(30)})
	assert.ErrorIs(t, err, users.ErrConflict)

	require.NoError(t, layer.Delete(ctx, ana.ID))
	_, err = layer.GetByID(ctx, ana.ID)
	assert.ErrorIs(t, err, users.ErrNotFound)
}

func TestIntegration_Pagination(t *testing.T) {
	ctx := context.Background()
	env := newIntegrationEnv(t)
	layer := env.container.Users()

	for _, u := range testsupport.LoadUsers(t, testsupport.FixturePath("users.json")) {
		_, err := layer.Create(ctx, u)
		require.NoError(t, err)
	}

	first, err := layer.List(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "Ana", first[0].Name)
	assert.Equal(t, "Bruno", first[1].Name)

	second, err := layer.List(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "Carla", second[0].Name)
}
