package tools

import (
	"context"

	"github.com/lspecian/maas-mcp-server-sub007/pkg/mcp"
	"github.com/lspecian/maas-mcp-server-sub007/pkg/resources"
)

func createTagTool(d Deps) mcp.Tool {
	return mcp.Tool{
		Name:        "maas_create_tag",
		Description: "Create a tag",
		InputSchema: mcp.ObjectSchema(map[string]any{
			"name":    mcp.StringProp("Tag name"),
			"comment": mcp.StringProp("Human-readable description"),
		}, "name"),
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			tag, err := d.Client.CreateTag(ctx, stringArg(args, "name"), stringArg(args, "comment"))
			if err != nil {
				return nil, err
			}
			d.Cache.InvalidateType(resources.TypeTagList)
			return tag, nil
		},
	}
}

func tagMachinesTool(d Deps) mcp.Tool {
	return mcp.Tool{
		Name:        "maas_tag_machines",
		Description: "Apply a tag to one or more machines",
		InputSchema: mcp.ObjectSchema(map[string]any{
			"tag_name":   mcp.StringProp("Tag to apply"),
			"system_ids": mcp.ArrayProp("Machines to tag", mcp.StringProp("machine system ID")),
		}, "tag_name", "system_ids"),
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			tagName := stringArg(args, "tag_name")
			systemIDs := stringSliceArg(args, "system_ids")
			if err := d.Client.TagMachines(ctx, tagName, systemIDs); err != nil {
				return nil, err
			}
			d.Cache.InvalidateType(resources.TypeTagMachines)
			for _, id := range systemIDs {
				d.invalidateMachine(id)
			}
			return map[string]any{"tag_name": tagName, "tagged": len(systemIDs)}, nil
		},
	}
}
