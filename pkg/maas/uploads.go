package maas

import (
	"context"
	"fmt"
	"net/http"
)

// Script is an upstream commissioning/testing script entity.
type Script struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Title string `json:"title"`
}

// UploadScript uploads a commissioning or testing script. scriptType is
// "commissioning" or "testing".
func (c *Client) UploadScript(ctx context.Context, name, scriptType string, content []byte) (*Script, error) {
	params := map[string]string{"name": name}
	if scriptType != "" {
		params["type"] = scriptType
	}
	files := []formFile{{field: "script", filename: name, content: content}}

	var s Script
	if err := c.call(ctx, http.MethodPost, "/scripts/", "", params, files, &s); err != nil {
		return nil, fmt.Errorf("upload script %s: %w", name, err)
	}
	return &s, nil
}

// BootResource is an upstream boot image entity.
type BootResource struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	Architecture string `json:"architecture"`
}

// UploadBootResource uploads a custom boot image.
func (c *Client) UploadBootResource(ctx context.Context, name, architecture, title string, content []byte) (*BootResource, error) {
	params := map[string]string{
		"name":         name,
		"architecture": architecture,
	}
	if title != "" {
		params["title"] = title
	}
	files := []formFile{{field: "content", filename: name, content: content}}

	var r BootResource
	if err := c.call(ctx, http.MethodPost, "/boot-resources/", "", params, files, &r); err != nil {
		return nil, fmt.Errorf("upload boot resource %s: %w", name, err)
	}
	return &r, nil
}
