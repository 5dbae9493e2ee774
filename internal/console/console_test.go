package console

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kokistudios/orbctl/internal/filter"
	"github.com/kokistudios/orbctl/internal/session"
	"github.com/kokistudios/orbctl/internal/store"
	"github.com/kokistudios/orbctl/internal/view"
)

const sinksJSON = `{"offset":0,"limit":100,"total":3,"sinks":[
	{"id":"1","name":"prom-eu","state":"active","backend":"prometheus","tags":{"env":"prod"}},
	{"id":"2","name":"prom-us","state":"error","backend":"prometheus","tags":{"env":"dev"}},
	{"id":"3","name":"otel","state":"active","backend":"otlphttp","tags":{"env":"prod"}}]}`

func setup(t *testing.T) (*Console, view.View) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sinksJSON))
	}))
	t.Cleanup(srv.Close)

	home := filepath.Join(t.TempDir(), ".orbctl")
	require.NoError(t, store.Init(home, false))
	st, err := store.Load(home)
	require.NoError(t, err)
	st.Config.API.URL = srv.URL
	st.Config.API.RateLimit = 0

	sess, err := session.Create(st, "test")
	require.NoError(t, err)

	logger := log.New(io.Discard)
	c, err := Open(st, sess, NewClient(st.Config, logger), logger)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	v, err := view.Lookup("sinks")
	require.NoError(t, err)
	return c, v
}

func names(items []filter.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it["name"].(string)
	}
	return out
}

func TestListAppliesPersistedAndExtra(t *testing.T) {
	c, v := setup(t)

	require.NoError(t, c.Do(v, func() error {
		a, err := v.ParseFilter("Tags=env:prod")
		require.NoError(t, err)
		return c.Filters.Add(a)
	}))

	items, active, err := c.List(context.Background(), v, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"prom-eu", "otel"}, names(items))
	assert.Len(t, active, 1)

	extra, _ := v.ParseFilter("Backend=prometheus")
	items, _, err = c.List(context.Background(), v, []filter.Active{extra})
	require.NoError(t, err)
	assert.Equal(t, []string{"prom-eu"}, names(items))
	assert.Len(t, c.Filters.Filters(), 1, "ad-hoc filters are not persisted")

	sess, err := session.Get(c.Store, c.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, v.Route, sess.LastRoute)
}

func TestFiltersAreScopedToRoute(t *testing.T) {
	c, sinks := setup(t)
	agents, _ := view.Lookup("agents")

	require.NoError(t, c.Do(sinks, func() error {
		return c.Filters.Add(filter.Active{Name: "Name", Field: "name", Value: filter.Text("prom")})
	}))
	require.NoError(t, c.Do(agents, func() error {
		assert.Empty(t, c.Filters.Filters())
		return nil
	}))
	require.NoError(t, c.Do(sinks, func() error {
		assert.Len(t, c.Filters.Filters(), 1)
		assert.Equal(t, "prom", c.Filters.SearchName())
		return nil
	}))
}

func TestWatchReactsToFilterChanges(t *testing.T) {
	c, v := setup(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, err := c.Watch(ctx, v, time.Hour)
	require.NoError(t, err)
	assert.Len(t, <-out, 3)

	a, _ := v.ParseFilter("Status=error")
	require.NoError(t, c.Filters.Add(a))
	assert.Equal(t, []string{"prom-us"}, names(<-out))
}
