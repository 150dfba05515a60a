package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDSNWithPassword(t *testing.T) {
	d, err := ParseDSN("alice:secret@db.internal:5433/geofeatured")
	require.NoError(t, err)
	assert.Equal(t, "alice", d.User)
	assert.Equal(t, "secret", d.Password)
	assert.Equal(t, "db.internal", d.Host)
	assert.Equal(t, "5433", d.Port)
	assert.Equal(t, "geofeatured", d.Database)
}

func TestParseDSNWithoutPasswordOrPort(t *testing.T) {
	d, err := ParseDSN("bob@localhost/geofeatured")
	require.NoError(t, err)
	assert.Equal(t, "bob", d.User)
	assert.Equal(t, "", d.Password)
	assert.Equal(t, "localhost", d.Host)
	assert.Equal(t, "5432", d.Port)
}

func TestParseDSNRejectsMalformed(t *testing.T) {
	_, err := ParseDSN("not-a-dsn")
	assert.Error(t, err)
}

func TestParseFlagsSandboxRepeatable(t *testing.T) {
	cfg, err := Parse([]string{
		"--database=write@host/db",
		"--database_sandbox=sb1@host/db",
		"--database_sandbox=sb2@host/db",
	}, "test")
	require.NoError(t, err)
	assert.Equal(t, "write@host/db", cfg.WriteDSN)
	assert.ElementsMatch(t, []string{"sb1@host/db", "sb2@host/db"}, cfg.SandboxDSNs)
	assert.Equal(t, ":8080", cfg.ListenAddr)
}

func TestParseFlagsAcquireTimeoutDefault(t *testing.T) {
	cfg, err := Parse([]string{"--database=write@host/db"}, "test")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.AcquireTimeout)
}

func TestParseFlagsAcquireTimeoutExplicit(t *testing.T) {
	cfg, err := Parse([]string{"--database=write@host/db", "--acquire-timeout=15"}, "test")
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, cfg.AcquireTimeout)
}
