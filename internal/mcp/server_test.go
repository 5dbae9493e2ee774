package mcp

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kokistudios/orbctl/internal/console"
	"github.com/kokistudios/orbctl/internal/session"
	"github.com/kokistudios/orbctl/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"offset":0,"limit":100,"total":3,"agents":[
			{"id":"1","name":"edge-1","state":"online","orb_tags":{"region":"eu"}},
			{"id":"2","name":"edge-2","state":"offline","orb_tags":{"region":"us"}},
			{"id":"3","name":"core","state":"online","agent_tags":{"region":"eu"}}]}`))
	}))
	t.Cleanup(srv.Close)

	home := filepath.Join(t.TempDir(), ".orbctl")
	require.NoError(t, store.Init(home, false))
	st, err := store.Load(home)
	require.NoError(t, err)
	st.Config.API.URL = srv.URL
	sess, err := session.Create(st, "mcp")
	require.NoError(t, err)

	logger := log.New(io.Discard)
	c, err := console.Open(st, sess, console.NewClient(st.Config, logger), logger)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return NewServer(c, "test")
}

func TestViews(t *testing.T) {
	s := newTestServer(t)
	_, out, err := s.handleViews(context.Background(), nil, ViewsArgs{})
	require.NoError(t, err)
	res := out.(ViewsResult)
	require.Len(t, res.Views, 5)
	assert.Equal(t, "agents", res.Views[0].Name)
	assert.Equal(t, "combined_tags", res.Views[0].Filters[1].Field)
	assert.Equal(t, "tags", res.Views[0].Filters[1].Predicate)
}

func TestFilterLifecycle(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, out, err := s.handleFilterAdd(ctx, nil, FilterAddArgs{View: "agents", Filter: "Tags==region:eu"})
	require.NoError(t, err)
	require.Len(t, out.(FiltersResult).Filters, 1)
	assert.Equal(t, "exact", out.(FiltersResult).Filters[0].Match)

	_, out, err = s.handleList(ctx, nil, ListArgs{View: "agents"})
	require.NoError(t, err)
	list := out.(ListResult)
	assert.Equal(t, 2, list.Total)

	_, out, err = s.handleList(ctx, nil, ListArgs{View: "agents", Filters: []string{"Status=online"}, Limit: 1})
	require.NoError(t, err)
	list = out.(ListResult)
	assert.Equal(t, 2, list.Total)
	assert.Equal(t, 1, list.Returned)
	assert.True(t, list.Truncated)

	_, out, err = s.handleFilters(ctx, nil, ViewArgs{View: "agents"})
	require.NoError(t, err)
	assert.Len(t, out.(FiltersResult).Filters, 1, "list filters are not saved")

	_, out, err = s.handleFilters(ctx, nil, ViewArgs{View: "sinks"})
	require.NoError(t, err)
	assert.Empty(t, out.(FiltersResult).Filters)

	_, _, err = s.handleFilterRemove(ctx, nil, FilterRemoveArgs{View: "agents", Filter: "Tags==region:us"})
	assert.Error(t, err)
	_, out, err = s.handleFilterRemove(ctx, nil, FilterRemoveArgs{View: "agents", Filter: "Tags==region:eu"})
	require.NoError(t, err)
	assert.Empty(t, out.(FiltersResult).Filters)
}

func TestFilterRemoveByIndexAndClear(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	for _, f := range []string{"Name=edge", "Status=online,offline"} {
		_, _, err := s.handleFilterAdd(ctx, nil, FilterAddArgs{View: "agents", Filter: f})
		require.NoError(t, err)
	}

	idx := 5
	_, _, err := s.handleFilterRemove(ctx, nil, FilterRemoveArgs{View: "agents", Index: &idx})
	assert.Error(t, err)

	idx = 0
	_, out, err := s.handleFilterRemove(ctx, nil, FilterRemoveArgs{View: "agents", Index: &idx})
	require.NoError(t, err)
	res := out.(FiltersResult)
	require.Len(t, res.Filters, 1)
	assert.Equal(t, "Status", res.Filters[0].Name)
	assert.Equal(t, []string{"online", "offline"}, res.Filters[0].Value)

	_, out, err = s.handleFilterClear(ctx, nil, ViewArgs{View: "/pages/fleet/agents"})
	require.NoError(t, err)
	assert.Empty(t, out.(FiltersResult).Filters)
}

func TestBadInput(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, _, err := s.handleFilterAdd(ctx, nil, FilterAddArgs{View: "agents"})
	assert.Error(t, err)
	_, _, err = s.handleFilterAdd(ctx, nil, FilterAddArgs{View: "nope", Filter: "Name=x"})
	assert.Error(t, err)
	_, _, err = s.handleFilterAdd(ctx, nil, FilterAddArgs{View: "agents", Filter: "Status=lost"})
	assert.Error(t, err)
	_, _, err = s.handleFilterRemove(ctx, nil, FilterRemoveArgs{View: "agents"})
	assert.Error(t, err)
	_, _, err = s.handleList(ctx, nil, ListArgs{View: "agents", Filters: []string{"bogus"}})
	assert.Error(t, err)
}
