// Package credential resolves API keys for authenticated sources.
package credential

import (
	"context"
	"os"
	"strconv"
	"strings"
)

// Credential is the active configuration for one external service.
type Credential struct {
	Service   string  `yaml:"service"`
	APIKey    string  `yaml:"api_key"`
	BaseURL   string  `yaml:"base_url"`
	RateLimit float64 `yaml:"rate_limit"` // requests per second, 0 = source default
	Active    bool    `yaml:"active"`
}

// Provider looks up the active credential for a service. A missing
// credential is reported with ok == false, not an error.
type Provider interface {
	GetActive(ctx context.Context, service string) (Credential, bool, error)
}

// MapProvider serves credentials from memory. Entries are active as given.
type MapProvider map[string]Credential

func (m MapProvider) GetActive(_ context.Context, service string) (Credential, bool, error) {
	c, ok := m[strings.ToLower(service)]
	if !ok || c.APIKey == "" {
		return Credential{}, false, nil
	}
	c.Service = strings.ToLower(service)
	return c, true, nil
}

// EnvProvider reads NEWSINGEST_<SERVICE>_API_KEY, falling back to
// <SERVICE>_API_KEY. BASE_URL and RATE_LIMIT follow the same pattern.
type EnvProvider struct {
	lookup func(string) (string, bool)
}

// NewEnvProvider returns a provider backed by the process environment.
func NewEnvProvider() *EnvProvider {
	return &EnvProvider{lookup: os.LookupEnv}
}

func (e *EnvProvider) get(service, suffix string) string {
	name := strings.ToUpper(service) + "_" + suffix
	for _, key := range []string{"NEWSINGEST_" + name, name} {
		if v, ok := e.lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func (e *EnvProvider) GetActive(_ context.Context, service string) (Credential, bool, error) {
	key := e.get(service, "API_KEY")
	if key == "" {
		return Credential{}, false, nil
	}
	c := Credential{
		Service: strings.ToLower(service),
		APIKey:  key,
		BaseURL: e.get(service, "BASE_URL"),
		Active:  true,
	}
	if v := e.get(service, "RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			c.RateLimit = f
		}
	}
	return c, true, nil
}

// Chain returns the first credential found by any provider.
type Chain []Provider

func (c Chain) GetActive(ctx context.Context, service string) (Credential, bool, error) {
	for _, p := range c {
		cred, ok, err := p.GetActive(ctx, service)
		if err != nil {
			return Credential{}, false, err
		}
		if ok {
			return cred, true, nil
		}
	}
	return Credential{}, false, nil
}
