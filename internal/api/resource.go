package api

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/kokistudios/orbctl/internal/filter"
)

// Resource is a listable collection of the platform API.
type Resource struct {
	Name string
	Path string
	Key  string // JSON key of the item array in a list response
}

var (
	Agents      = Resource{Name: "agents", Path: "/agents", Key: "agents"}
	AgentGroups = Resource{Name: "agent_groups", Path: "/agent_groups", Key: "agentGroups"}
	Policies    = Resource{Name: "policies", Path: "/policies/agent", Key: "data"}
	Datasets    = Resource{Name: "datasets", Path: "/policies/dataset", Key: "datasets"}
	Sinks       = Resource{Name: "sinks", Path: "/sinks", Key: "sinks"}
)

const (
	UsageInUse    = "in use"
	UsageNotInUse = "not in use"
)

// ListPolicies lists agent policies with policy_usage derived from the
// valid datasets that reference them.
func (c *Client) ListPolicies(ctx context.Context) ([]filter.Item, error) {
	var policies, datasets []filter.Item
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		policies, err = c.List(gctx, Policies)
		return err
	})
	g.Go(func() error {
		var err error
		datasets, err = c.List(gctx, Datasets)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	used := make(map[string]bool)
	for _, d := range datasets {
		if valid, _ := d["valid"].(bool); !valid {
			continue
		}
		if id, ok := d["agent_policy_id"].(string); ok {
			used[id] = true
		}
	}
	for _, p := range policies {
		id, _ := p["id"].(string)
		if used[id] {
			p["policy_usage"] = UsageInUse
		} else {
			p["policy_usage"] = UsageNotInUse
		}
	}
	return policies, nil
}
