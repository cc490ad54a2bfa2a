package gateway

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/wolfeidau/tenantgate/internal/proxy"
	"gopkg.in/yaml.v3"
)

// DevicesPrefix is the built-in proxied route.
const DevicesPrefix = "/api/v1/devices"

// Route sends every request under Prefix to Upstream.
type Route struct {
	Prefix   string
	Upstream proxy.Upstream
}

type routesFile struct {
	Routes []routeEntry `yaml:"routes"`
}

type routeEntry struct {
	Prefix string `yaml:"prefix"`
	Name   string `yaml:"name"`
	URL    string `yaml:"url"`
	// TokenEnv names the environment variable holding the upstream's internal token.
	TokenEnv string `yaml:"token_env"`
}

// LoadRoutes reads additional proxied routes from a YAML file:
//
//	routes:
//	  - prefix: /api/v1/sensors
//	    name: sensors
//	    url: http://sensors:8000
//	    token_env: SENSOR_SERVICE_TOKEN
func LoadRoutes(path string) ([]Route, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read routes file: %w", err)
	}

	return ParseRoutes(data, os.Getenv)
}

// ParseRoutes parses a routes document, resolving tokens with getenv.
func ParseRoutes(data []byte, getenv func(string) string) ([]Route, error) {
	var doc routesFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse routes file: %w", err)
	}

	routes := make([]Route, 0, len(doc.Routes))
	seen := map[string]bool{DevicesPrefix: true}

	for i, e := range doc.Routes {
		prefix := "/" + strings.Trim(e.Prefix, "/")
		switch {
		case e.Prefix == "" || prefix == "/":
			return nil, fmt.Errorf("route %d: prefix is required", i)
		case !strings.HasPrefix(prefix, proxy.APIPrefix+"/"):
			return nil, fmt.Errorf("route %d: prefix %s must be under %s", i, prefix, proxy.APIPrefix)
		case seen[prefix]:
			return nil, fmt.Errorf("route %d: duplicate prefix %s", i, prefix)
		case e.URL == "":
			return nil, fmt.Errorf("route %d: url is required", i)
		}
		seen[prefix] = true

		token := ""
		if e.TokenEnv != "" {
			token = getenv(e.TokenEnv)
			if token == "" {
				return nil, fmt.Errorf("route %d: environment variable %s is empty", i, e.TokenEnv)
			}
		}

		name := e.Name
		if name == "" {
			name = strings.TrimPrefix(prefix, proxy.APIPrefix+"/")
		}

		routes = append(routes, Route{
			Prefix: prefix,
			Upstream: proxy.Upstream{
				Name:    name,
				BaseURL: e.URL,
				Token:   token,
			},
		})
	}

	return routes, nil
}

var errNoTenant = errors.New("no tenant segment")

// tenantInPath returns the id following a "tenants" segment in path.
func tenantInPath(path string) (string, error) {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i := 0; i < len(segments)-1; i++ {
		if segments[i] == "tenants" && segments[i+1] != "" {
			return segments[i+1], nil
		}
	}
	return "", errNoTenant
}
