package credential

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileProvider serves credentials from a YAML file of the form
//
//	credentials:
//	  - service: finnhub
//	    api_key: xxx
//	    active: true
//
// The file is read once at construction.
type FileProvider struct {
	entries []Credential
}

type credentialFile struct {
	Credentials []Credential `yaml:"credentials"`
}

// LoadFile parses path. An empty path yields an empty provider.
func LoadFile(path string) (*FileProvider, error) {
	if path == "" {
		return &FileProvider{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}
	return ParseFile(data)
}

// ParseFile decodes YAML credential data.
func ParseFile(data []byte) (*FileProvider, error) {
	var f credentialFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse credentials file: %w", err)
	}
	for i := range f.Credentials {
		f.Credentials[i].Service = strings.ToLower(strings.TrimSpace(f.Credentials[i].Service))
	}
	return &FileProvider{entries: f.Credentials}, nil
}

// GetActive returns the first active entry for service.
func (p *FileProvider) GetActive(_ context.Context, service string) (Credential, bool, error) {
	service = strings.ToLower(service)
	for _, c := range p.entries {
		if c.Service == service && c.Active && c.APIKey != "" {
			return c, true, nil
		}
	}
	return Credential{}, false, nil
}
