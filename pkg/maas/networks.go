package maas

import (
	"context"
	"fmt"
	"strconv"
)

// Subnet is an upstream subnet entity.
type Subnet struct {
	ID         int      `json:"id"`
	Name       string   `json:"name"`
	CIDR       string   `json:"cidr"`
	GatewayIP  string   `json:"gateway_ip"`
	DNSServers []string `json:"dns_servers"`
	VLAN       VLAN     `json:"vlan"`
	Space      string   `json:"space"`
	Managed    bool     `json:"managed"`
}

// VLAN is the subnet's VLAN summary.
type VLAN struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	VID    int    `json:"vid"`
	Fabric string `json:"fabric"`
}

// ListSubnets returns all subnets.
func (c *Client) ListSubnets(ctx context.Context) ([]Subnet, error) {
	var subnets []Subnet
	if err := c.get(ctx, "/subnets/", nil, &subnets); err != nil {
		return nil, fmt.Errorf("list subnets: %w", err)
	}
	return subnets, nil
}

// GetSubnet returns one subnet by numeric ID.
func (c *Client) GetSubnet(ctx context.Context, id int) (*Subnet, error) {
	var s Subnet
	if err := c.get(ctx, "/subnets/"+strconv.Itoa(id)+"/", nil, &s); err != nil {
		return nil, fmt.Errorf("get subnet %d: %w", id, err)
	}
	return &s, nil
}

// ListZones returns all availability zones.
func (c *Client) ListZones(ctx context.Context) ([]Zone, error) {
	var zones []Zone
	if err := c.get(ctx, "/zones/", nil, &zones); err != nil {
		return nil, fmt.Errorf("list zones: %w", err)
	}
	return zones, nil
}
