package discovery

import (
	"fmt"
	"net"
	"strconv"

	"github.com/hashicorp/consul/api"
)

type ConsulClient struct {
	client *api.Client
}

func NewConsulClient(address string) (*ConsulClient, error) {
	config := api.DefaultConfig()
	config.Address = address

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create consul client: %w", err)
	}

	return &ConsulClient{client: client}, nil
}

// Registration describes one stockd instance. HealthHost is the host the
// agent uses to reach the HTTP /health endpoint.
type Registration struct {
	ServiceID   string
	ServiceName string
	HTTPAddr    string
	HealthHost  string
	Tags        []string
}

func (c *ConsulClient) RegisterService(reg Registration) error {
	port, err := parsePort(reg.HTTPAddr)
	if err != nil {
		return err
	}
	host := reg.HealthHost
	if host == "" {
		host = reg.ServiceID
	}

	registration := &api.AgentServiceRegistration{
		ID:   reg.ServiceID,
		Name: reg.ServiceName,
		Port: port,
		Tags: reg.Tags,
		Check: &api.AgentServiceCheck{
			HTTP:                           fmt.Sprintf("http://%s/health", net.JoinHostPort(host, strconv.Itoa(port))),
			Interval:                       "10s",
			Timeout:                        "5s",
			DeregisterCriticalServiceAfter: "30s",
		},
	}

	return c.client.Agent().ServiceRegister(registration)
}

func (c *ConsulClient) DeregisterService(serviceID string) error {
	return c.client.Agent().ServiceDeregister(serviceID)
}

// parsePort accepts ":8080", "0.0.0.0:8080" or "8080".
func parsePort(addr string) (int, error) {
	raw := addr
	if _, p, err := net.SplitHostPort(addr); err == nil {
		raw = p
	}
	port, err := strconv.Atoi(raw)
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("invalid port in %q", addr)
	}
	return port, nil
}
