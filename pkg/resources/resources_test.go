package resources

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lspecian/maas-mcp-server-sub007/pkg/cache"
	"github.com/lspecian/maas-mcp-server-sub007/pkg/errdefs"
	"github.com/lspecian/maas-mcp-server-sub007/pkg/maas"
	"github.com/lspecian/maas-mcp-server-sub007/pkg/mcp"
)

type upstreamCall struct {
	path  string
	query map[string]string
}

func newTestRegistry(t *testing.T, clock clockwork.Clock) (*mcp.ResourceRegistry, *[]upstreamCall) {
	t.Helper()
	var calls []upstreamCall

	mux := http.NewServeMux()
	respond := func(v any) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			query := map[string]string{}
			for k := range r.URL.Query() {
				query[k] = r.URL.Query().Get(k)
			}
			calls = append(calls, upstreamCall{path: r.URL.Path, query: query})
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(v)
		}
	}
	mux.Handle("/machines/", respond([]maas.Machine{{SystemID: "m1", Hostname: "node-1"}}))
	mux.Handle("/machines/m1/", respond(maas.Machine{SystemID: "m1", Hostname: "node-1", PowerState: "on"}))
	mux.Handle("/subnets/", respond([]maas.Subnet{{ID: 1, CIDR: "10.0.0.0/24"}}))
	mux.Handle("/tags/", respond([]maas.Tag{{Name: "gpu"}}))
	mux.Handle("/tags/gpu/", respond([]maas.Machine{{SystemID: "m1"}}))
	mux.Handle("/zones/", respond([]maas.Zone{{ID: 1, Name: "default"}}))

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client, err := maas.NewClient(server.URL, "consumer:token:secret", 5*time.Second)
	require.NoError(t, err)

	store, err := cache.NewStore(cache.Config{
		Enabled:    true,
		Strategy:   cache.StrategyTimeBased,
		MaxSize:    100,
		DefaultTTL: 300 * time.Second,
		Clock:      clock,
	})
	require.NoError(t, err)

	reg := mcp.NewResourceRegistry(store)
	require.NoError(t, RegisterAll(reg, client))
	return reg, &calls
}

func TestRegisterAllResourceSet(t *testing.T) {
	reg, _ := newTestRegistry(t, clockwork.NewFakeClock())
	list := reg.List()
	require.Len(t, list, 8)

	uris := make([]string, len(list))
	for i, r := range list {
		uris[i] = r.URI
	}
	assert.Contains(t, uris, "maas://machines")
	assert.Contains(t, uris, "maas://machines/{system_id}/power")
	assert.Contains(t, uris, "maas://zones")
}

func TestMachineListFilters(t *testing.T) {
	reg, calls := newTestRegistry(t, clockwork.NewFakeClock())

	read, err := reg.Read(context.Background(), "maas://machines?zone=default&tags=gpu,fast")
	require.NoError(t, err)
	assert.False(t, read.CacheHit)

	require.Len(t, *calls, 1)
	call := (*calls)[0]
	assert.Equal(t, "/machines/", call.path)
	assert.Equal(t, "default", call.query["zone"])
	assert.Equal(t, "gpu", call.query["tags"])
}

func TestListThenCache(t *testing.T) {
	clock := clockwork.NewFakeClock()
	reg, calls := newTestRegistry(t, clock)
	ctx := context.Background()

	first, err := reg.Read(ctx, "maas://machines")
	require.NoError(t, err)
	assert.False(t, first.CacheHit)
	assert.Equal(t, "max-age=60", first.CacheControl)

	clock.Advance(time.Second)

	second, err := reg.Read(ctx, "maas://machines")
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.GreaterOrEqual(t, second.Age, time.Second)
	assert.Len(t, *calls, 1)
}

func TestPolicyFlags(t *testing.T) {
	reg, _ := newTestRegistry(t, clockwork.NewFakeClock())
	ctx := context.Background()

	tests := []struct {
		uri     string
		control string
	}{
		{"maas://machines/m1", "max-age=60, must-revalidate"},
		{"maas://tags", "max-age=120, private"},
		{"maas://zones", "max-age=3600, immutable"},
	}
	for _, tt := range tests {
		read, err := reg.Read(ctx, tt.uri)
		require.NoError(t, err, tt.uri)
		assert.Equal(t, tt.control, read.CacheControl, tt.uri)
	}
}

func TestPowerStateNeverCached(t *testing.T) {
	reg, calls := newTestRegistry(t, clockwork.NewFakeClock())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		read, err := reg.Read(ctx, "maas://machines/m1/power")
		require.NoError(t, err)
		assert.False(t, read.CacheHit)
		assert.Empty(t, read.CacheControl)
	}
	// One upstream query per read, no cache in between.
	count := 0
	for _, c := range *calls {
		if c.query["op"] == "query_power_state" {
			count++
		}
	}
	assert.Equal(t, 2, count)
}

func TestSubnetIDValidation(t *testing.T) {
	reg, _ := newTestRegistry(t, clockwork.NewFakeClock())
	_, err := reg.Read(context.Background(), "maas://subnets/notanumber")
	assert.Equal(t, errdefs.KindInvalidParameters, errdefs.KindOf(err))
}

func TestTagMachines(t *testing.T) {
	reg, calls := newTestRegistry(t, clockwork.NewFakeClock())
	read, err := reg.Read(context.Background(), "maas://tags/gpu/machines")
	require.NoError(t, err)
	assert.Equal(t, "max-age=60, private", read.CacheControl)
	require.NotEmpty(t, *calls)
	assert.Equal(t, "machines", (*calls)[len(*calls)-1].query["op"])
}
