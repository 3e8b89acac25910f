package config

import (
	"net"
	"net/url"
)

const (
	apiURLVar           = "API_URL"
	healthURLVar        = "HEALTH_URL"
	httpRetriesVar      = "HTTP_RETRIES"
	networkCheckAddrVar = "NETWORK_CHECK_ADDR"
)

type API struct{}

var _ APIConfig = API{}

// GetAPIURL returns the REST root, e.g. "http://localhost:8000/api".
func (API) GetAPIURL() string {
	return GetEnv(apiURLVar, profileValue(func(p *Profile) string { return p.APIRoot }, "http://localhost:8000/api"))
}

// GetHealthURL returns the lightweight endpoint used for reachability probes.
func (API) GetHealthURL() string {
	return GetEnv(healthURLVar, profileValue(func(p *Profile) string { return p.HealthURL }, "http://localhost:8000/"))
}

func (API) GetHTTPRetries() int {
	return GetEnvInt(httpRetriesVar, 3)
}

// GetNetworkCheckAddr returns the host:port dialled to decide whether the network is up.
// Defaults to the API host, so a host that is up while its backend process is stopped reads
// as offline and writes are queued. Point it at a gateway or resolver to report the network
// independently of the backend host.
func (a API) GetNetworkCheckAddr() string {
	if addr := GetEnv(networkCheckAddrVar, profileValue(func(p *Profile) string { return p.NetworkCheckAddr }, "")); addr != "" {
		return addr
	}
	u, err := url.Parse(a.GetAPIURL())
	if err != nil || u.Host == "" {
		return "localhost:8000"
	}
	if u.Port() != "" {
		return u.Host
	}
	port := "80"
	if u.Scheme == "https" {
		port = "443"
	}
	return net.JoinHostPort(u.Hostname(), port)
}
