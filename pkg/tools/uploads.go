package tools

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/lspecian/maas-mcp-server-sub007/pkg/errdefs"
	"github.com/lspecian/maas-mcp-server-sub007/pkg/mcp"
)

func uploadScriptTool(d Deps) mcp.Tool {
	return mcp.Tool{
		Name:        "maas_upload_script",
		Description: "Upload a commissioning or testing script",
		InputSchema: mcp.ObjectSchema(map[string]any{
			"name":        mcp.StringProp("Script name"),
			"script_type": mcp.EnumProp("Script purpose", "commissioning", "testing"),
			"content":     mcp.StringProp("Script text"),
		}, "name", "content"),
		Timeout: 2 * time.Minute,
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return d.Client.UploadScript(ctx,
				stringArg(args, "name"),
				stringArg(args, "script_type"),
				[]byte(stringArg(args, "content")))
		},
	}
}

func uploadImageTool(d Deps) mcp.Tool {
	return mcp.Tool{
		Name:        "maas_upload_image",
		Description: "Upload a custom boot image",
		InputSchema: mcp.ObjectSchema(map[string]any{
			"name":         mcp.StringProp("Boot resource name, e.g. custom/my-image"),
			"architecture": mcp.StringProp("Target architecture, e.g. amd64/generic"),
			"title":        mcp.StringProp("Display title"),
			"content":      mcp.StringProp("Base64-encoded image content"),
		}, "name", "architecture", "content"),
		Timeout: 5 * time.Minute,
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			content, err := base64.StdEncoding.DecodeString(stringArg(args, "content"))
			if err != nil {
				return nil, errdefs.InvalidParameters("content must be base64-encoded")
			}
			return d.Client.UploadBootResource(ctx,
				stringArg(args, "name"),
				stringArg(args, "architecture"),
				stringArg(args, "title"),
				content)
		},
	}
}
