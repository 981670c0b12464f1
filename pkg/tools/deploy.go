package tools

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/lspecian/maas-mcp-server-sub007/pkg/errdefs"
	"github.com/lspecian/maas-mcp-server-sub007/pkg/maas"
	"github.com/lspecian/maas-mcp-server-sub007/pkg/mcp"
	"github.com/lspecian/maas-mcp-server-sub007/pkg/progress"
)

func deployMachineTool(d Deps) mcp.Tool {
	return mcp.Tool{
		Name: "maas_deploy_machine",
		Description: "Deploy an operating system on an allocated machine and track it " +
			"as a long-running operation; subscribe to the event stream with the " +
			"returned operation_id",
		InputSchema: mcp.ObjectSchema(map[string]any{
			"system_id":     mcp.StringProp("Machine system ID"),
			"distro_series": mcp.StringProp("OS release to deploy, e.g. jammy"),
			"user_data":     mcp.StringProp("Base64-encoded cloud-init user data"),
			"operation_id":  mcp.StringProp("Client-chosen operation ID for event subscription"),
		}, "system_id"),
		LongRunning: true,
		Handler:     d.deployMachine,
	}
}

// deployMachine runs the full deploy flow: initiate upstream, poll status,
// and report progress through the tracker until a terminal state.
func (d Deps) deployMachine(ctx context.Context, args map[string]any) (any, error) {
	systemID := stringArg(args, "system_id")
	opID := deployOperationID(ctx, args)

	reporter, scope, err := d.Tracker.StartOperation(opID)
	if err != nil {
		return nil, err
	}

	// First-to-fire composition of the caller's cancellation and the
	// operation scope (explicit cancel or subscriber drain).
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(scope, cancel)
	defer stop()

	_ = reporter.Progress(0, "starting deployment", map[string]any{"system_id": systemID})

	if _, err := d.Client.DeployMachine(runCtx, systemID, maas.DeployParams{
		DistroSeries: stringArg(args, "distro_series"),
		UserData:     stringArg(args, "user_data"),
	}); err != nil {
		_ = reporter.Fail(err.Error(), errdefs.NumericCode(err), nil, false)
		return nil, err
	}
	d.invalidateMachine(systemID)
	_ = reporter.Progress(10, "deployment initiated", nil)

	for poll := 1; poll <= d.MaxPolls; poll++ {
		timer := d.Clock.NewTimer(d.PollInterval)
		select {
		case <-runCtx.Done():
			timer.Stop()
			return nil, d.deployCancelled(reporter, systemID)
		case <-timer.Chan():
		}

		m, err := d.Client.GetMachine(runCtx, systemID)
		if err != nil {
			if runCtx.Err() != nil {
				return nil, d.deployCancelled(reporter, systemID)
			}
			// Transient poll failures are not terminal; the next poll may
			// succeed.
			_ = reporter.Log(progress.LogWarning,
				fmt.Sprintf("status poll failed: %v", err), "deploy", nil)
			continue
		}

		switch {
		case m.StatusName == maas.StatusDeployed:
			d.invalidateMachine(systemID)
			_ = reporter.Complete(m, "deployment complete")
			return map[string]any{"operation_id": opID, "machine": m}, nil

		case maas.FailedStatus(m.StatusName):
			d.invalidateMachine(systemID)
			msg := fmt.Sprintf("deployment failed: machine %s entered status %q", systemID, m.StatusName)
			_ = reporter.Fail(msg, 500, map[string]any{"status_name": m.StatusName}, false)
			return nil, errdefs.Newf(errdefs.KindUpstreamError, "%s", msg)

		default:
			pct := 10 + 5*poll
			if pct > 70 {
				pct = 70
			}
			_ = reporter.Progress(float64(pct), "deploying: "+m.StatusName, nil)
		}
	}

	msg := fmt.Sprintf("deployment timed out after %d status polls", d.MaxPolls)
	_ = reporter.Fail(msg, 504, nil, false)
	return nil, errdefs.Timeout(msg)
}

func (d Deps) deployCancelled(reporter *progress.Reporter, systemID string) error {
	d.invalidateMachine(systemID)
	msg := "deployment cancelled by client"
	// The tracker's cancel path may already have finalized the operation;
	// a Fail after that is a no-op error we ignore.
	_ = reporter.Fail(msg, 499, nil, false)
	return errdefs.Cancelled(msg)
}

// deployOperationID resolves the operation ID: explicit argument first, then
// the client's progress token, then a generated UUID. Clients that pick the
// ID can subscribe to the event stream before the call returns.
func deployOperationID(ctx context.Context, args map[string]any) string {
	if id := stringArg(args, "operation_id"); id != "" {
		return id
	}
	if token, ok := mcp.ProgressTokenFrom(ctx); ok {
		return token
	}
	return uuid.NewString()
}
