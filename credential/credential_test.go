package credential

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envFrom(m map[string]string) *EnvProvider {
	return &EnvProvider{lookup: func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}}
}

func TestEnvProvider(t *testing.T) {
	ctx := context.Background()

	_, ok, err := envFrom(nil).GetActive(ctx, "finnhub")
	require.NoError(t, err)
	assert.False(t, ok)

	c, ok, err := envFrom(map[string]string{
		"FINNHUB_API_KEY":            "plain",
		"NEWSINGEST_FINNHUB_API_KEY": "prefixed",
		"FINNHUB_RATE_LIMIT":         "2.5",
	}).GetActive(ctx, "finnhub")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "prefixed", c.APIKey)
	assert.Equal(t, 2.5, c.RateLimit)
	assert.Equal(t, "finnhub", c.Service)
}

func TestEnvProvider_BlankKeyIsAbsent(t *testing.T) {
	_, ok, err := envFrom(map[string]string{"FINNHUB_API_KEY": "   "}).GetActive(context.Background(), "finnhub")
	require.NoError(t, err)
	assert.False(t, ok)
}

const sample = `
credentials:
  - service: Finnhub
    api_key: old
    active: false
  - service: finnhub
    api_key: current
    base_url: https://example.test/api
    rate_limit: 3
    active: true
`

func TestFileProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	p, err := LoadFile(path)
	require.NoError(t, err)

	c, ok, err := p.GetActive(context.Background(), "FINNHUB")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "current", c.APIKey)
	assert.Equal(t, "https://example.test/api", c.BaseURL)
	assert.Equal(t, 3.0, c.RateLimit)

	_, ok, err = p.GetActive(context.Background(), "alpha_vantage")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileProvider_Errors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = ParseFile([]byte("credentials: [oops"))
	assert.Error(t, err)

	p, err := LoadFile("")
	require.NoError(t, err)
	_, ok, _ := p.GetActive(context.Background(), "finnhub")
	assert.False(t, ok)
}

func TestChain(t *testing.T) {
	chain := Chain{
		MapProvider{},
		MapProvider{"finnhub": {APIKey: "second"}},
		MapProvider{"finnhub": {APIKey: "third"}},
	}
	c, ok, err := chain.GetActive(context.Background(), "finnhub")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "second", c.APIKey)
}
