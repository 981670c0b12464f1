package maas

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Machine is the subset of the upstream machine entity surfaced to clients.
type Machine struct {
	SystemID     string   `json:"system_id"`
	Hostname     string   `json:"hostname"`
	FQDN         string   `json:"fqdn"`
	Status       int      `json:"status"`
	StatusName   string   `json:"status_name"`
	PowerState   string   `json:"power_state"`
	Architecture string   `json:"architecture"`
	CPUCount     int      `json:"cpu_count"`
	Memory       int64    `json:"memory"`
	OSystem      string   `json:"osystem"`
	DistroSeries string   `json:"distro_series"`
	Zone         Zone     `json:"zone"`
	TagNames     []string `json:"tag_names"`
	IPAddresses  []string `json:"ip_addresses"`
}

// Zone is an upstream availability zone.
type Zone struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Deployment status names reported by the upstream during and after a deploy.
const (
	StatusDeploying = "Deploying"
	StatusDeployed  = "Deployed"
)

// FailedStatus reports whether a status name is one of the upstream FAILED_*
// family (surfaced as e.g. "Failed deployment").
func FailedStatus(statusName string) bool {
	return strings.HasPrefix(strings.ToUpper(statusName), "FAILED")
}

// MachineFilters narrows ListMachines. Zero values are omitted.
type MachineFilters struct {
	Hostname string
	Zone     string
	Tags     []string
}

// ListMachines returns machines matching the filters.
func (c *Client) ListMachines(ctx context.Context, f MachineFilters) ([]Machine, error) {
	query := url.Values{}
	if f.Hostname != "" {
		query.Set("hostname", f.Hostname)
	}
	if f.Zone != "" {
		query.Set("zone", f.Zone)
	}
	for _, tag := range f.Tags {
		query.Add("tags", tag)
	}

	var machines []Machine
	if err := c.get(ctx, "/machines/", query, &machines); err != nil {
		return nil, fmt.Errorf("list machines: %w", err)
	}
	return machines, nil
}

// GetMachine returns one machine by system ID.
func (c *Client) GetMachine(ctx context.Context, systemID string) (*Machine, error) {
	var m Machine
	if err := c.get(ctx, "/machines/"+systemID+"/", nil, &m); err != nil {
		return nil, fmt.Errorf("get machine %s: %w", systemID, err)
	}
	return &m, nil
}

// AllocateParams constrain machine allocation. Zero values are omitted.
type AllocateParams struct {
	Hostname string
	Zone     string
	Tags     []string
	MinCPU   int
	MinMemMB int
}

// AllocateMachine acquires a ready machine matching the constraints.
func (c *Client) AllocateMachine(ctx context.Context, p AllocateParams) (*Machine, error) {
	params := map[string]string{}
	if p.Hostname != "" {
		params["name"] = p.Hostname
	}
	if p.Zone != "" {
		params["zone"] = p.Zone
	}
	if len(p.Tags) > 0 {
		params["tags"] = strings.Join(p.Tags, ",")
	}
	if p.MinCPU > 0 {
		params["cpu_count"] = fmt.Sprintf("%d", p.MinCPU)
	}
	if p.MinMemMB > 0 {
		params["mem"] = fmt.Sprintf("%d", p.MinMemMB)
	}

	var m Machine
	if err := c.post(ctx, "/machines/", "allocate", params, &m); err != nil {
		return nil, fmt.Errorf("allocate machine: %w", err)
	}
	return &m, nil
}

// DeployParams configure an OS deployment. Zero values take upstream defaults.
type DeployParams struct {
	DistroSeries string
	UserData     string // base64-encoded cloud-init user data
}

// DeployMachine starts an OS deployment on an allocated machine. The call
// returns as soon as the upstream accepts it; progress is observed by
// polling GetMachine.
func (c *Client) DeployMachine(ctx context.Context, systemID string, p DeployParams) (*Machine, error) {
	params := map[string]string{}
	if p.DistroSeries != "" {
		params["distro_series"] = p.DistroSeries
	}
	if p.UserData != "" {
		params["user_data"] = p.UserData
	}

	var m Machine
	if err := c.post(ctx, "/machines/"+systemID+"/", "deploy", params, &m); err != nil {
		return nil, fmt.Errorf("deploy machine %s: %w", systemID, err)
	}
	return &m, nil
}

// ReleaseMachine returns a machine to the ready pool.
func (c *Client) ReleaseMachine(ctx context.Context, systemID, comment string) (*Machine, error) {
	params := map[string]string{}
	if comment != "" {
		params["comment"] = comment
	}

	var m Machine
	if err := c.post(ctx, "/machines/"+systemID+"/", "release", params, &m); err != nil {
		return nil, fmt.Errorf("release machine %s: %w", systemID, err)
	}
	return &m, nil
}

// PowerOnMachine powers a machine on.
func (c *Client) PowerOnMachine(ctx context.Context, systemID string) (*Machine, error) {
	var m Machine
	if err := c.post(ctx, "/machines/"+systemID+"/", "power_on", nil, &m); err != nil {
		return nil, fmt.Errorf("power on machine %s: %w", systemID, err)
	}
	return &m, nil
}

// PowerOffMachine powers a machine off.
func (c *Client) PowerOffMachine(ctx context.Context, systemID string) (*Machine, error) {
	var m Machine
	if err := c.post(ctx, "/machines/"+systemID+"/", "power_off", nil, &m); err != nil {
		return nil, fmt.Errorf("power off machine %s: %w", systemID, err)
	}
	return &m, nil
}

// PowerState queries the live power state ("on", "off", "error").
func (c *Client) PowerState(ctx context.Context, systemID string) (string, error) {
	var out struct {
		State string `json:"state"`
	}
	query := url.Values{"op": {"query_power_state"}}
	if err := c.get(ctx, "/machines/"+systemID+"/", query, &out); err != nil {
		return "", fmt.Errorf("query power state for %s: %w", systemID, err)
	}
	return out.State, nil
}
