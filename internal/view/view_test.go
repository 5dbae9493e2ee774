package view

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kokistudios/orbctl/internal/api"
	"github.com/kokistudios/orbctl/internal/filter"
)

func TestLookup(t *testing.T) {
	for _, key := range []string{"sinks", "Sinks", "sink", "/pages/sinks"} {
		v, err := Lookup(key)
		require.NoError(t, err, key)
		assert.Equal(t, "sinks", v.Name)
	}
	_, err := Lookup("dashboards")
	assert.ErrorContains(t, err, "valid: agents, groups, policies, datasets, sinks")
}

func TestRoutesAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, v := range All() {
		assert.False(t, seen[v.Route], v.Route)
		seen[v.Route] = true
		for _, d := range v.Definitions {
			_, ok := v.Definition(d.Name)
			assert.True(t, ok)
		}
	}
}

func TestSinkDefinitions(t *testing.T) {
	v, _ := Lookup("sinks")
	status, ok := v.DefinitionFold("status")
	require.True(t, ok)
	assert.Equal(t, filter.PredicateMultiSelect, status.Predicate)
	assert.Equal(t, "state", status.Field)
	assert.Contains(t, status.Options, "error")

	_, ok = v.Definition("Version")
	assert.False(t, ok)
}

func TestWithSuggestions(t *testing.T) {
	v, _ := Lookup("sinks")
	items := []filter.Item{
		{"name": "b", "tags": map[string]any{"env": "prod"}},
		{"name": "a", "tags": map[string]any{"team": "net"}},
	}
	defs := v.WithSuggestions(items)

	tags, _ := filter.Find(defs, "Tags")
	assert.Equal(t, []string{"env:prod", "team:net"}, tags.Suggestions())
	name, _ := filter.Find(defs, "Name")
	assert.Equal(t, []string{"a", "b"}, name.Suggestions())
	status, _ := filter.Find(defs, "Status")
	assert.Equal(t, status.Options, status.Suggestions())

	orig, _ := v.Definition("Tags")
	assert.Nil(t, orig.Suggest, "catalog definitions are not modified")
}

func TestCell(t *testing.T) {
	item := filter.Item{
		"name":            "agent-1",
		"version":         float64(3),
		"valid":           true,
		"tags":            map[string]any{"region": "eu", "env": "prod"},
		"matching_agents": map[string]any{"total": float64(4)},
		"list":            []any{"a", float64(2)},
	}
	assert.Equal(t, "agent-1", Cell(item, "name"))
	assert.Equal(t, "3", Cell(item, "version"))
	assert.Equal(t, "true", Cell(item, "valid"))
	assert.Equal(t, "env:prod, region:eu", Cell(item, "tags"))
	assert.Equal(t, "4", Cell(item, "matching_agents.total"))
	assert.Equal(t, "a, 2", Cell(item, "list"))
	assert.Equal(t, "", Cell(item, "missing"))
	assert.Equal(t, "", Cell(item, "name.inner"))
}

func TestParseValue(t *testing.T) {
	sinks, _ := Lookup("sinks")
	status, _ := sinks.Definition("Status")

	v, err := ParseValue(status, []string{"Active,error", "idle"})
	require.NoError(t, err)
	assert.Equal(t, []string{"active", "error", "idle"}, v.List)

	_, err = ParseValue(status, []string{"broken"})
	assert.Error(t, err)
	_, err = ParseValue(status, []string{" , "})
	assert.Error(t, err)

	policies, _ := Lookup("policies")
	version, _ := policies.Definition("Version")
	v, err = ParseValue(version, []string{"10"})
	require.NoError(t, err)
	assert.Equal(t, "10", v.Text)
	_, err = ParseValue(version, []string{"ten"})
	assert.Error(t, err)

	name, _ := sinks.Definition("Name")
	_, err = ParseValue(name, []string{"a", "b"})
	assert.Error(t, err)

	check := filter.Definition{Name: "Valid", Kind: filter.KindCheckbox}
	v, err = ParseValue(check, []string{"1"})
	require.NoError(t, err)
	assert.Equal(t, "true", v.Text)
}

func TestFetchPoliciesDerivesUsage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/policies/agent", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"offset":0,"limit":100,"total":1,"data":[{"id":"p1","name":"a","version":2}]}`))
	})
	mux.HandleFunc("/policies/dataset", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"offset":0,"limit":100,"total":0,"datasets":[]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	v, _ := Lookup("policies")
	items, err := v.Fetch(context.Background(), api.New(srv.URL, api.WithLogger(log.New(io.Discard))))
	require.NoError(t, err)
	require.Len(t, items, 1)

	usage, _ := v.Definition("Usage")
	active := []filter.Active{usage.Bind(filter.List(api.UsageNotInUse))}
	assert.Len(t, filter.Apply(items, active, v.Definitions), 1)
}
