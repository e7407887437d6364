package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
service:
  base_url: "${DESK_TEST_BASE_URL}/"
  api_key: secret
  cache_ttl_seconds: 20
auth:
  username: stbadmin
  password_hash: "${DESK_TEST_HASH}"
booking:
  activation_minutes: 20
telegram:
  bot_token: token
  managers: [11, 22]
`

func TestParse(t *testing.T) {
	t.Setenv("DESK_TEST_BASE_URL", "http://booking.local/api")
	t.Setenv("DESK_TEST_HASH", "$2a$10$abcdefghijklmnopqrstuv")

	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "http://booking.local/api", cfg.Service.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.ServiceTimeout())
	assert.Equal(t, 20*time.Second, cfg.CacheTTL())
	assert.Equal(t, 20*time.Minute, cfg.ActivationWindow())
	assert.Equal(t, time.Minute, cfg.SweepInterval())
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, "admin", cfg.Auth.Role)
	assert.Equal(t, "$2a$10$abcdefghijklmnopqrstuv", cfg.Auth.PasswordHash)
	assert.Equal(t, "Asia/Kolkata", cfg.Location().String())
	assert.True(t, cfg.TelegramEnabled())
	assert.False(t, cfg.SheetsEnabled())
	assert.False(t, cfg.Backup.Enabled)
	assert.Equal(t, 24*time.Hour, cfg.Backup.Interval())
	assert.Equal(t, 14*24*time.Hour, cfg.Backup.Retention())
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing base url", "auth: {username: a, password_hash: b}"},
		{"bad scheme", "service: {base_url: ftp://x}\nauth: {username: a, password_hash: b}"},
		{"missing auth", "service: {base_url: http://x}"},
		{"bad timezone", "service: {base_url: http://x}\nauth: {username: a, password_hash: b}\nbooking: {timezone: Mars/Base}"},
		{"broken yaml", "service: ["},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestCatalog_Validate(t *testing.T) {
	require.NoError(t, DefaultCatalog().Validate())

	tests := []struct {
		name string
		cat  Catalog
	}{
		{"empty", Catalog{}},
		{"zero id", Catalog{Centers: []Center{{ID: 0, Name: "a"}}}},
		{"duplicate id", Catalog{Centers: []Center{{ID: 1, Name: "a"}, {ID: 1, Name: "b"}}}},
		{"duplicate name", Catalog{Centers: []Center{{ID: 1, Name: "a"}, {ID: 2, Name: "a"}}}},
		{"package overs", Catalog{Centers: []Center{{ID: 1, Name: "a"}}, Packages: []Package{{ID: 1}}}},
		{"package price", Catalog{Centers: []Center{{ID: 1, Name: "a"}}, Packages: []Package{{ID: 1, Overs: 5, Price: -1}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.cat.Validate())
		})
	}
}

func TestCatalog_Lookup(t *testing.T) {
	cat := DefaultCatalog()

	c := cat.CenterByID(3)
	require.NotNil(t, c)
	assert.Equal(t, 3, c.Lanes)
	assert.Nil(t, cat.CenterByID(9))

	p := cat.PackageByID(2)
	require.NotNil(t, p)
	assert.Equal(t, 100, p.Overs)
	assert.Nil(t, cat.PackageByID(0))
}

func TestWatchCatalog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("centers:\n  - {id: 1, name: One}\n"), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	holder := NewCatalogHolder(nil)
	logger := zerolog.Nop()
	require.NoError(t, WatchCatalog(ctx, path, 10*time.Millisecond, holder, &logger))
	require.NotNil(t, holder.Get())
	assert.Len(t, holder.Get().Centers, 1)
	assert.Equal(t, 1, holder.Get().Centers[0].Lanes)

	next := time.Now().Add(2 * time.Second)
	require.NoError(t, os.WriteFile(path, []byte("centers:\n  - {id: 1, name: One}\n  - {id: 2, name: Two, lanes: 3}\n"), 0o600))
	require.NoError(t, os.Chtimes(path, next, next))

	assert.Eventually(t, func() bool {
		return len(holder.Get().Centers) == 2
	}, time.Second, 10*time.Millisecond)
}
