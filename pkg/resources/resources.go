// Package resources registers the maas:// resource set: machine, network,
// tag, and zone reads backed by the upstream client, each with its own cache
// policy.
package resources

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/lspecian/maas-mcp-server-sub007/pkg/cache"
	"github.com/lspecian/maas-mcp-server-sub007/pkg/errdefs"
	"github.com/lspecian/maas-mcp-server-sub007/pkg/maas"
	"github.com/lspecian/maas-mcp-server-sub007/pkg/mcp"
)

// Resource type names. They tag cache entries, so mutating tools invalidate
// by these exact strings.
const (
	TypeMachineList  = "MachineList"
	TypeMachine      = "Machine"
	TypeMachinePower = "MachinePower"
	TypeSubnetList   = "SubnetList"
	TypeSubnet       = "Subnet"
	TypeTagList      = "TagList"
	TypeTagMachines  = "TagMachines"
	TypeZoneList     = "ZoneList"
)

// MachineURI returns the detail URI for a machine, for targeted cache deletes.
func MachineURI(systemID string) string {
	return "maas://machines/" + systemID
}

// RegisterAll wires the resource set against the upstream client. Machine
// state is cached briefly; network and zone topology longer. Power state is
// never cached.
func RegisterAll(reg *mcp.ResourceRegistry, client *maas.Client) error {
	defs := []mcp.Resource{
		{
			URIPattern:   "maas://machines",
			Name:         "Machines",
			Description:  "All machines, filterable by hostname, zone, and tags query parameters",
			ResourceType: TypeMachineList,
			Policy:       cache.Policy{Enabled: true, TTL: 60 * time.Second},
			Handler: func(ctx context.Context, params map[string]string) (any, error) {
				return client.ListMachines(ctx, maas.MachineFilters{
					Hostname: params["hostname"],
					Zone:     params["zone"],
					Tags:     splitList(params["tags"]),
				})
			},
		},
		{
			URIPattern:   "maas://machines/{system_id}",
			Name:         "Machine",
			Description:  "One machine by system ID",
			ResourceType: TypeMachine,
			Policy:       cache.Policy{Enabled: true, TTL: 60 * time.Second, MustRevalidate: true},
			Handler: func(ctx context.Context, params map[string]string) (any, error) {
				return client.GetMachine(ctx, params["system_id"])
			},
		},
		{
			URIPattern:   "maas://machines/{system_id}/power",
			Name:         "Machine power state",
			Description:  "Live power state of a machine; never cached",
			ResourceType: TypeMachinePower,
			Policy:       cache.Policy{Enabled: false},
			Handler: func(ctx context.Context, params map[string]string) (any, error) {
				state, err := client.PowerState(ctx, params["system_id"])
				if err != nil {
					return nil, err
				}
				return map[string]string{"system_id": params["system_id"], "state": state}, nil
			},
		},
		{
			URIPattern:   "maas://subnets",
			Name:         "Subnets",
			Description:  "All subnets",
			ResourceType: TypeSubnetList,
			Policy:       cache.Policy{Enabled: true, TTL: 300 * time.Second},
			Handler: func(ctx context.Context, params map[string]string) (any, error) {
				return client.ListSubnets(ctx)
			},
		},
		{
			URIPattern:   "maas://subnets/{subnet_id}",
			Name:         "Subnet",
			Description:  "One subnet by numeric ID",
			ResourceType: TypeSubnet,
			Policy:       cache.Policy{Enabled: true, TTL: 300 * time.Second},
			Handler: func(ctx context.Context, params map[string]string) (any, error) {
				id, err := strconv.Atoi(params["subnet_id"])
				if err != nil {
					return nil, errdefs.InvalidParameters("subnet_id must be an integer")
				}
				return client.GetSubnet(ctx, id)
			},
		},
		{
			URIPattern:   "maas://tags",
			Name:         "Tags",
			Description:  "All tags",
			ResourceType: TypeTagList,
			Policy:       cache.Policy{Enabled: true, TTL: 120 * time.Second, Private: true},
			Handler: func(ctx context.Context, params map[string]string) (any, error) {
				return client.ListTags(ctx)
			},
		},
		{
			URIPattern:   "maas://tags/{tag_name}/machines",
			Name:         "Machines with tag",
			Description:  "Machines carrying a tag",
			ResourceType: TypeTagMachines,
			Policy:       cache.Policy{Enabled: true, TTL: 60 * time.Second, Private: true},
			Handler: func(ctx context.Context, params map[string]string) (any, error) {
				return client.MachinesWithTag(ctx, params["tag_name"])
			},
		},
		{
			URIPattern:   "maas://zones",
			Name:         "Zones",
			Description:  "Availability zones; topology changes rarely",
			ResourceType: TypeZoneList,
			Policy:       cache.Policy{Enabled: true, TTL: time.Hour, Immutable: true},
			Handler: func(ctx context.Context, params map[string]string) (any, error) {
				return client.ListZones(ctx)
			},
		},
	}

	for _, def := range defs {
		if err := reg.Register(def); err != nil {
			return err
		}
	}
	return nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
