package filterstate

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kokistudios/orbctl/internal/filter"
	"github.com/kokistudios/orbctl/internal/persist"
)

const sinksRoute = "/pages/sinks"

func newService(t *testing.T, store persist.Store) *Service {
	t.Helper()
	if store == nil {
		store = persist.NewMemory()
	}
	return New(store, WithLogger(log.New(io.Discard)), WithRoute(sinksRoute))
}

func recv(t *testing.T, ch <-chan []filter.Active) []filter.Active {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("no emission")
		return nil
	}
}

type failingStore struct{ *persist.Memory }

func (failingStore) Set(string, string) error { return errors.New("disk full") }

func TestRoundTripForRoute(t *testing.T) {
	store := persist.NewMemory()
	svc := newService(t, store)

	require.NoError(t, svc.Add(filter.Active{Name: "Name", Field: "name", Value: filter.Text("edge")}))
	require.NoError(t, svc.Add(filter.Active{Name: "Tags", Field: "tags", Value: filter.Text("env:prod")}.WithExact(true)))
	require.NoError(t, svc.Add(filter.Active{Name: "Status", Field: "state", Value: filter.List("active", "error")}))
	want := svc.Filters()

	raw, ok, err := store.Get(sinksRoute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `[
		{"name":"Name","prop":"name","param":"edge","extra":null},
		{"name":"Tags","prop":"tags","param":"env:prod","extra":true},
		{"name":"Status","prop":"state","param":["active","error"],"extra":null}
	]`, raw)

	fresh := newService(t, store)
	require.NoError(t, fresh.Navigate(sinksRoute))
	assert.Equal(t, want, fresh.Filters())
	assert.Equal(t, "edge", fresh.SearchName())
	assert.Equal(t, sinksRoute, fresh.Route())
}

func TestNavigateIsPerRoute(t *testing.T) {
	store := persist.NewMemory()
	svc := newService(t, store)
	require.NoError(t, svc.Add(filter.Active{Name: "Name", Field: "name", Value: filter.Text("a")}))

	require.NoError(t, svc.Navigate("/pages/fleet/agents"))
	assert.Empty(t, svc.Filters())
	assert.Equal(t, "", svc.SearchName())

	require.NoError(t, svc.Add(filter.Active{Name: "Tags", Field: "combined_tags", Value: filter.Text("region:eu")}))
	require.NoError(t, svc.Navigate(sinksRoute))
	require.Len(t, svc.Filters(), 1)
	assert.Equal(t, "Name", svc.Filters()[0].Name)
}

func TestNavigateMalformedIsEmpty(t *testing.T) {
	store := persist.NewMemory()
	require.NoError(t, store.Set(sinksRoute, "{oops"))
	svc := newService(t, store)
	svc.Reset([]filter.Active{{Name: "x"}})

	require.NoError(t, svc.Navigate(sinksRoute))
	assert.Empty(t, svc.Filters())
}

func TestSearchNameNeedsNameField(t *testing.T) {
	store := persist.NewMemory()
	require.NoError(t, store.Set(sinksRoute, `[{"name":"Name","prop":"label","param":"x"},{"name":"Name","prop":"name","param":"sink-1"}]`))
	svc := newService(t, store)
	require.NoError(t, svc.Navigate(sinksRoute))
	assert.Equal(t, "sink-1", svc.SearchName())
	assert.Len(t, svc.Filters(), 2)
}

func TestRemoveAt(t *testing.T) {
	store := persist.NewMemory()
	svc := newService(t, store)
	require.NoError(t, svc.Add(filter.Active{Name: "A", Value: filter.Text("1")}))
	require.NoError(t, svc.Add(filter.Active{Name: "B", Value: filter.Text("2")}))
	before, _, _ := store.Get(sinksRoute)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub := svc.Subscribe(ctx)
	recv(t, sub)

	require.NoError(t, svc.RemoveAt(5))
	require.NoError(t, svc.RemoveAt(-1))
	after, _, _ := store.Get(sinksRoute)
	assert.Equal(t, before, after)
	select {
	case v := <-sub:
		t.Fatalf("out of range removal published %v", v)
	default:
	}

	require.NoError(t, svc.RemoveAt(0))
	got := recv(t, sub)
	require.Len(t, got, 1)
	assert.Equal(t, "B", got[0].Name)
}

func TestFindAndRemove(t *testing.T) {
	svc := newService(t, nil)
	require.NoError(t, svc.Add(filter.Active{Name: "Status", Value: filter.List("active")}))
	require.NoError(t, svc.Add(filter.Active{Name: "Name", Value: filter.Text("a")}))
	require.NoError(t, svc.Add(filter.Active{Name: "Name", Value: filter.Text("a")}))

	assert.Equal(t, 0, svc.Find(filter.List("active"), "Status"))
	assert.Equal(t, -1, svc.Find(filter.Text("active"), "Status"))

	require.NoError(t, svc.FindAndRemove(filter.Text("zzz"), "Name"))
	assert.Len(t, svc.Filters(), 3)

	require.NoError(t, svc.FindAndRemove(filter.Text("a"), "Name"))
	assert.Len(t, svc.Filters(), 2, "only the first duplicate is removed")
}

func TestReplayToLateSubscriber(t *testing.T) {
	svc := newService(t, nil)
	require.NoError(t, svc.Add(filter.Active{Name: "Name", Value: filter.Text("a")}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := recv(t, svc.Subscribe(ctx))
	require.Len(t, got, 1)
	assert.Equal(t, "Name", got[0].Name)
}

func TestSlowSubscriberSeesLatest(t *testing.T) {
	svc := newService(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub := svc.Subscribe(ctx)

	for _, v := range []string{"a", "b", "c"} {
		require.NoError(t, svc.Add(filter.Active{Name: "Name", Value: filter.Text(v)}))
	}
	assert.Len(t, recv(t, sub), 3)
}

func TestSubscriptionClosesOnCancel(t *testing.T) {
	svc := newService(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	sub := svc.Subscribe(ctx)
	recv(t, sub)
	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-sub:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("subscription not closed")
		}
	}
}

func TestResetDoesNotPersist(t *testing.T) {
	store := persist.NewMemory()
	svc := newService(t, store)
	svc.Reset([]filter.Active{{Name: "Name", Value: filter.Text("a")}})

	_, ok, err := store.Get(sinksRoute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, svc.Filters(), 1)
}

func TestClearPersistsEmptyList(t *testing.T) {
	store := persist.NewMemory()
	svc := newService(t, store)
	require.NoError(t, svc.Add(filter.Active{Name: "Name", Value: filter.Text("a")}))
	require.NoError(t, svc.Clear())

	raw, _, _ := store.Get(sinksRoute)
	assert.Equal(t, "[]", raw)
	assert.Empty(t, svc.Filters())
}

func TestPersistErrorKeepsState(t *testing.T) {
	svc := newService(t, failingStore{Memory: persist.NewMemory()})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub := svc.Subscribe(ctx)
	recv(t, sub)

	err := svc.Add(filter.Active{Name: "Name", Value: filter.Text("a")})
	assert.ErrorContains(t, err, "disk full")
	assert.Len(t, svc.Filters(), 1)
	assert.Len(t, recv(t, sub), 1, "publish happens before persist")
}

func TestFollow(t *testing.T) {
	store := persist.NewMemory()
	require.NoError(t, store.Set("/pages/fleet/agents", `[{"name":"Name","prop":"name","param":"edge"}]`))
	svc := newService(t, store)

	routes := make(chan string)
	done := make(chan struct{})
	go func() {
		svc.Follow(context.Background(), routes)
		close(done)
	}()
	routes <- "/pages/fleet/agents"
	close(routes)
	<-done

	assert.Equal(t, "/pages/fleet/agents", svc.Route())
	assert.Equal(t, "edge", svc.SearchName())
}

func TestServiceFilteredList(t *testing.T) {
	svc := newService(t, nil)
	defs := []filter.Definition{{Name: "Tags", Field: "tags", Predicate: filter.PredicateTags}}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	items := make(chan []filter.Item, 1)
	items <- []filter.Item{
		{"name": "a", "tags": map[string]any{"env": "prod"}},
		{"name": "b", "tags": map[string]any{"env": "dev"}},
	}
	out := svc.FilteredList(ctx, items, defs)
	assert.Len(t, <-out, 2)

	require.NoError(t, svc.Add(filter.Active{Name: "Tags", Field: "tags", Value: filter.Text("env:prod")}.WithExact(false)))
	got := <-out
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0]["name"])
}
