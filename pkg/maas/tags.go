package maas

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Tag is an upstream tag entity.
type Tag struct {
	Name       string `json:"name"`
	Comment    string `json:"comment"`
	Definition string `json:"definition"`
	KernelOpts string `json:"kernel_opts"`
}

// ListTags returns all tags.
func (c *Client) ListTags(ctx context.Context) ([]Tag, error) {
	var tags []Tag
	if err := c.get(ctx, "/tags/", nil, &tags); err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	return tags, nil
}

// CreateTag creates a tag. The upstream answers 409 when the name exists,
// which maps to Conflict.
func (c *Client) CreateTag(ctx context.Context, name, comment string) (*Tag, error) {
	params := map[string]string{"name": name}
	if comment != "" {
		params["comment"] = comment
	}

	var tag Tag
	if err := c.post(ctx, "/tags/", "", params, &tag); err != nil {
		return nil, fmt.Errorf("create tag %s: %w", name, err)
	}
	return &tag, nil
}

// TagMachines applies a tag to the given machines.
func (c *Client) TagMachines(ctx context.Context, tagName string, systemIDs []string) error {
	params := map[string]string{"add": strings.Join(systemIDs, " ")}
	if err := c.post(ctx, "/tags/"+tagName+"/", "update_nodes", params, nil); err != nil {
		return fmt.Errorf("tag machines with %s: %w", tagName, err)
	}
	return nil
}

// MachinesWithTag returns the machines carrying the tag.
func (c *Client) MachinesWithTag(ctx context.Context, tagName string) ([]Machine, error) {
	var machines []Machine
	query := url.Values{"op": {"machines"}}
	if err := c.get(ctx, "/tags/"+tagName+"/", query, &machines); err != nil {
		return nil, fmt.Errorf("list machines with tag %s: %w", tagName, err)
	}
	return machines, nil
}
