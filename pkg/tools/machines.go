package tools

import (
	"context"

	"github.com/lspecian/maas-mcp-server-sub007/pkg/maas"
	"github.com/lspecian/maas-mcp-server-sub007/pkg/mcp"
)

func listMachinesTool(d Deps) mcp.Tool {
	return mcp.Tool{
		Name:        "maas_list_machines",
		Description: "List machines, optionally filtered by hostname, zone, or tags",
		InputSchema: mcp.ObjectSchema(map[string]any{
			"hostname": mcp.StringProp("Filter by hostname"),
			"zone":     mcp.StringProp("Filter by availability zone"),
			"tags":     mcp.ArrayProp("Filter by tag names (all must match)", mcp.StringProp("tag name")),
		}),
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return d.Client.ListMachines(ctx, maas.MachineFilters{
				Hostname: stringArg(args, "hostname"),
				Zone:     stringArg(args, "zone"),
				Tags:     stringSliceArg(args, "tags"),
			})
		},
	}
}

func getMachineTool(d Deps) mcp.Tool {
	return mcp.Tool{
		Name:        "maas_get_machine",
		Description: "Get one machine by system ID",
		InputSchema: mcp.ObjectSchema(map[string]any{
			"system_id": mcp.StringProp("Machine system ID"),
		}, "system_id"),
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return d.Client.GetMachine(ctx, stringArg(args, "system_id"))
		},
	}
}

func allocateMachineTool(d Deps) mcp.Tool {
	return mcp.Tool{
		Name:        "maas_allocate_machine",
		Description: "Allocate a ready machine matching the given constraints",
		InputSchema: mcp.ObjectSchema(map[string]any{
			"hostname":      mcp.StringProp("Request a specific machine by hostname"),
			"zone":          mcp.StringProp("Restrict allocation to a zone"),
			"tags":          mcp.ArrayProp("Required tags", mcp.StringProp("tag name")),
			"min_cpu":       mcp.IntProp("Minimum CPU core count", mcp.IntBound(1), nil),
			"min_memory_mb": mcp.IntProp("Minimum memory in MB", mcp.IntBound(1), nil),
		}),
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			m, err := d.Client.AllocateMachine(ctx, maas.AllocateParams{
				Hostname: stringArg(args, "hostname"),
				Zone:     stringArg(args, "zone"),
				Tags:     stringSliceArg(args, "tags"),
				MinCPU:   intArg(args, "min_cpu"),
				MinMemMB: intArg(args, "min_memory_mb"),
			})
			if err != nil {
				return nil, err
			}
			d.invalidateMachine(m.SystemID)
			return m, nil
		},
	}
}

func releaseMachineTool(d Deps) mcp.Tool {
	return mcp.Tool{
		Name:        "maas_release_machine",
		Description: "Release a machine back to the ready pool",
		InputSchema: mcp.ObjectSchema(map[string]any{
			"system_id": mcp.StringProp("Machine system ID"),
			"comment":   mcp.StringProp("Audit comment for the release"),
		}, "system_id"),
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			systemID := stringArg(args, "system_id")
			m, err := d.Client.ReleaseMachine(ctx, systemID, stringArg(args, "comment"))
			if err != nil {
				return nil, err
			}
			d.invalidateMachine(systemID)
			return m, nil
		},
	}
}

func powerOnMachineTool(d Deps) mcp.Tool {
	return mcp.Tool{
		Name:        "maas_power_on_machine",
		Description: "Power a machine on",
		InputSchema: mcp.ObjectSchema(map[string]any{
			"system_id": mcp.StringProp("Machine system ID"),
		}, "system_id"),
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			systemID := stringArg(args, "system_id")
			m, err := d.Client.PowerOnMachine(ctx, systemID)
			if err != nil {
				return nil, err
			}
			d.invalidateMachine(systemID)
			return m, nil
		},
	}
}

func powerOffMachineTool(d Deps) mcp.Tool {
	return mcp.Tool{
		Name:        "maas_power_off_machine",
		Description: "Power a machine off",
		InputSchema: mcp.ObjectSchema(map[string]any{
			"system_id": mcp.StringProp("Machine system ID"),
		}, "system_id"),
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			systemID := stringArg(args, "system_id")
			m, err := d.Client.PowerOffMachine(ctx, systemID)
			if err != nil {
				return nil, err
			}
			d.invalidateMachine(systemID)
			return m, nil
		},
	}
}
