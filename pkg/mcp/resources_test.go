package mcp

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lspecian/maas-mcp-server-sub007/pkg/cache"
	"github.com/lspecian/maas-mcp-server-sub007/pkg/errdefs"
)

func newTestStore(t *testing.T, clock clockwork.Clock) *cache.Store {
	t.Helper()
	store, err := cache.NewStore(cache.Config{
		Enabled:    true,
		Strategy:   cache.StrategyTimeBased,
		MaxSize:    100,
		DefaultTTL: 300 * time.Second,
		Clock:      clock,
	})
	require.NoError(t, err)
	return store
}

func staticResource(pattern, resourceType string, policy cache.Policy, value any) Resource {
	return Resource{
		URIPattern:   pattern,
		Name:         pattern,
		ResourceType: resourceType,
		Policy:       policy,
		Handler: func(ctx context.Context, params map[string]string) (any, error) {
			return value, nil
		},
	}
}

func TestResourceRegistryRegister(t *testing.T) {
	r := NewResourceRegistry(newTestStore(t, clockwork.NewFakeClock()))

	require.NoError(t, r.Register(staticResource("maas://machines", "MachineList", cache.Policy{}, nil)))

	err := r.Register(staticResource("maas://machines", "MachineList", cache.Policy{}, nil))
	assert.ErrorContains(t, err, "already registered")

	err = r.Register(Resource{URIPattern: "maas://x"})
	assert.ErrorContains(t, err, "no handler")

	err = r.Register(staticResource("http://machines", "X", cache.Policy{}, nil))
	assert.ErrorContains(t, err, "maas:// scheme")

	err = r.Register(staticResource("maas://machines/{}", "X", cache.Policy{}, nil))
	assert.ErrorContains(t, err, "empty parameter name")
}

func TestResourceRegistryMatch(t *testing.T) {
	r := NewResourceRegistry(newTestStore(t, clockwork.NewFakeClock()))

	var seen map[string]string
	capture := func(value any) ResourceHandler {
		return func(ctx context.Context, params map[string]string) (any, error) {
			seen = params
			return value, nil
		}
	}
	require.NoError(t, r.Register(Resource{
		URIPattern: "maas://machines", Name: "machines",
		ResourceType: "MachineList", Handler: capture("list"),
	}))
	require.NoError(t, r.Register(Resource{
		URIPattern: "maas://machines/{system_id}", Name: "machine",
		ResourceType: "Machine", Handler: capture("detail"),
	}))
	require.NoError(t, r.Register(Resource{
		URIPattern: "maas://machines/{system_id}/power", Name: "power",
		ResourceType: "MachinePower", Handler: capture("power"),
	}))

	ctx := context.Background()

	t.Run("exact match beats parameterized", func(t *testing.T) {
		read, err := r.Read(ctx, "maas://machines")
		require.NoError(t, err)
		assert.Equal(t, "list", read.Value)
		assert.Empty(t, seen)
	})

	t.Run("path parameters are extracted", func(t *testing.T) {
		read, err := r.Read(ctx, "maas://machines/abc123")
		require.NoError(t, err)
		assert.Equal(t, "detail", read.Value)
		assert.Equal(t, map[string]string{"system_id": "abc123"}, seen)
	})

	t.Run("nested literal segment matches", func(t *testing.T) {
		read, err := r.Read(ctx, "maas://machines/abc123/power")
		require.NoError(t, err)
		assert.Equal(t, "power", read.Value)
		assert.Equal(t, "abc123", seen["system_id"])
	})

	t.Run("query parameters merge without shadowing path params", func(t *testing.T) {
		_, err := r.Read(ctx, "maas://machines/abc123?zone=default&system_id=evil")
		require.NoError(t, err)
		assert.Equal(t, "abc123", seen["system_id"])
		assert.Equal(t, "default", seen["zone"])
	})

	t.Run("unknown uri is NotFound", func(t *testing.T) {
		_, err := r.Read(ctx, "maas://nope")
		assert.Equal(t, errdefs.KindNotFound, errdefs.KindOf(err))
	})

	t.Run("bad scheme is InvalidParameters", func(t *testing.T) {
		_, err := r.Read(ctx, "machines")
		assert.Equal(t, errdefs.KindInvalidParameters, errdefs.KindOf(err))
	})
}

func TestResourceRegistryCaching(t *testing.T) {
	clock := clockwork.NewFakeClock()
	policy := cache.Policy{Enabled: true, TTL: 60 * time.Second, Private: true}

	t.Run("second read hits the cache", func(t *testing.T) {
		r := NewResourceRegistry(newTestStore(t, clock))
		calls := 0
		require.NoError(t, r.Register(Resource{
			URIPattern: "maas://machines", Name: "machines",
			ResourceType: "MachineList", Policy: policy,
			Handler: func(ctx context.Context, params map[string]string) (any, error) {
				calls++
				return []string{"node-1"}, nil
			},
		}))

		first, err := r.Read(context.Background(), "maas://machines")
		require.NoError(t, err)
		assert.False(t, first.CacheHit)
		assert.Equal(t, "max-age=60, private", first.CacheControl)

		clock.Advance(2 * time.Second)

		second, err := r.Read(context.Background(), "maas://machines")
		require.NoError(t, err)
		assert.True(t, second.CacheHit)
		assert.Equal(t, 2*time.Second, second.Age)
		assert.Equal(t, first.Value, second.Value)
		assert.Equal(t, 1, calls)
	})

	t.Run("expired entry refetches", func(t *testing.T) {
		r := NewResourceRegistry(newTestStore(t, clock))
		calls := 0
		require.NoError(t, r.Register(Resource{
			URIPattern: "maas://zones", Name: "zones",
			ResourceType: "ZoneList", Policy: policy,
			Handler: func(ctx context.Context, params map[string]string) (any, error) {
				calls++
				return calls, nil
			},
		}))

		_, err := r.Read(context.Background(), "maas://zones")
		require.NoError(t, err)
		clock.Advance(61 * time.Second)

		read, err := r.Read(context.Background(), "maas://zones")
		require.NoError(t, err)
		assert.False(t, read.CacheHit)
		assert.Equal(t, 2, calls)
	})

	t.Run("disabled policy bypasses the cache", func(t *testing.T) {
		r := NewResourceRegistry(newTestStore(t, clock))
		calls := 0
		require.NoError(t, r.Register(Resource{
			URIPattern: "maas://machines/{system_id}/power", Name: "power",
			ResourceType: "MachinePower", Policy: cache.Policy{Enabled: false},
			Handler: func(ctx context.Context, params map[string]string) (any, error) {
				calls++
				return "on", nil
			},
		}))

		for i := 0; i < 2; i++ {
			read, err := r.Read(context.Background(), "maas://machines/abc/power")
			require.NoError(t, err)
			assert.False(t, read.CacheHit)
			assert.Empty(t, read.CacheControl)
		}
		assert.Equal(t, 2, calls)
	})

	t.Run("handler errors are not cached", func(t *testing.T) {
		r := NewResourceRegistry(newTestStore(t, clock))
		calls := 0
		require.NoError(t, r.Register(Resource{
			URIPattern: "maas://subnets", Name: "subnets",
			ResourceType: "SubnetList", Policy: policy,
			Handler: func(ctx context.Context, params map[string]string) (any, error) {
				calls++
				if calls == 1 {
					return nil, errdefs.FromUpstreamStatus(503, "upstream unavailable")
				}
				return "ok", nil
			},
		}))

		_, err := r.Read(context.Background(), "maas://subnets")
		require.Error(t, err)

		read, err := r.Read(context.Background(), "maas://subnets")
		require.NoError(t, err)
		assert.False(t, read.CacheHit)
		assert.Equal(t, "ok", read.Value)
	})
}

func TestResourceRegistryList(t *testing.T) {
	r := NewResourceRegistry(newTestStore(t, clockwork.NewFakeClock()))
	require.NoError(t, r.Register(staticResource("maas://machines", "MachineList", cache.Policy{}, nil)))
	require.NoError(t, r.Register(staticResource("maas://tags", "TagList", cache.Policy{}, nil)))

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "maas://machines", list[0].URI)
	assert.Equal(t, "application/json", list[0].MimeType)
	assert.Equal(t, "maas://tags", list[1].URI)
}
