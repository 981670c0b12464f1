// Package tools registers the maas_* tool set: machine queries and
// mutations, the long-running deploy flow, tag management, and artifact
// uploads. Mutating tools invalidate the affected cache entries.
package tools

import (
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/lspecian/maas-mcp-server-sub007/pkg/cache"
	"github.com/lspecian/maas-mcp-server-sub007/pkg/maas"
	"github.com/lspecian/maas-mcp-server-sub007/pkg/mcp"
	"github.com/lspecian/maas-mcp-server-sub007/pkg/progress"
	"github.com/lspecian/maas-mcp-server-sub007/pkg/resources"
)

// Deps carries the shared singletons tool handlers close over. Constructed in
// main and passed explicitly.
type Deps struct {
	Client  *maas.Client
	Tracker *progress.Tracker
	Cache   *cache.Store

	// Clock drives the deploy poll loop. Default real clock.
	Clock clockwork.Clock
	// PollInterval is the deploy status poll cadence. Default 5s.
	PollInterval time.Duration
	// MaxPolls caps the deploy poll loop. Default 60.
	MaxPolls int
}

// RegisterAll wires the full tool set into the registry.
func RegisterAll(reg *mcp.ToolRegistry, deps Deps) error {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.PollInterval <= 0 {
		deps.PollInterval = 5 * time.Second
	}
	if deps.MaxPolls <= 0 {
		deps.MaxPolls = 60
	}

	defs := []mcp.Tool{
		listMachinesTool(deps),
		getMachineTool(deps),
		allocateMachineTool(deps),
		deployMachineTool(deps),
		releaseMachineTool(deps),
		powerOnMachineTool(deps),
		powerOffMachineTool(deps),
		createTagTool(deps),
		tagMachinesTool(deps),
		uploadScriptTool(deps),
		uploadImageTool(deps),
	}
	for _, def := range defs {
		if err := reg.Register(def); err != nil {
			return fmt.Errorf("register tools: %w", err)
		}
	}
	return nil
}

// invalidateMachine drops the machine list plus the targeted entity entry
// after a mutation touching one machine.
func (d Deps) invalidateMachine(systemID string) {
	d.Cache.InvalidateType(resources.TypeMachineList)
	d.Cache.Delete(cache.Fingerprint(resources.TypeMachine, resources.MachineURI(systemID)))
}

// Argument accessors. Schema validation runs before handlers, so these only
// normalize JSON types; they never validate.

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func stringSliceArg(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
