package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vorion-Labs/aci/core/pkg/config"
	"github.com/Vorion-Labs/aci/core/pkg/trust"
)

const validPack = `
name: aci/profiles-default
version: 1.2.0
profiles:
  - id: volatile
    half_life_days: 30
    failure_multiplier: 4
  - id: standard
    half_life_days: 182
    failure_multiplier: 3
  - id: stable
    half_life_days: 365
    failure_multiplier: 2
`

func TestParseProfilePack(t *testing.T) {
	pack, err := config.ParseProfilePack([]byte(validPack))
	require.NoError(t, err)

	assert.Equal(t, "aci/profiles-default", pack.Name)
	assert.Equal(t, "1.2.0", pack.Version)
	require.Len(t, pack.Profiles, 3)

	profiles := pack.ProfileMap()
	assert.Equal(t, 30.0, profiles[trust.ProfileVolatile].HalfLifeDays)
	assert.Equal(t, 3.0, profiles[trust.ProfileStandard].FailureMultiplier)
}

func TestLoadProfilePackFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pack.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validPack), 0o644))

	pack, err := config.LoadProfilePack(path)
	require.NoError(t, err)
	assert.Equal(t, "aci/profiles-default", pack.Name)

	_, err = config.LoadProfilePack(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseProfilePackRejectsUnsupportedVersion(t *testing.T) {
	pack := `
name: aci/profiles-next
version: 2.0.0
profiles:
  - id: standard
    half_life_days: 182
    failure_multiplier: 3
`
	_, err := config.ParseProfilePack([]byte(pack))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside supported range")
}

func TestParseProfilePackRejectsSchemaViolations(t *testing.T) {
	cases := []struct {
		name string
		pack string
	}{
		{"missing version", "name: x\nprofiles:\n  - id: a\n    half_life_days: 1\n    failure_multiplier: 2\n"},
		{"empty profiles", "name: x\nversion: 1.0.0\nprofiles: []\n"},
		{"zero half-life", "name: x\nversion: 1.0.0\nprofiles:\n  - id: a\n    half_life_days: 0\n    failure_multiplier: 2\n"},
		{"multiplier below one", "name: x\nversion: 1.0.0\nprofiles:\n  - id: a\n    half_life_days: 10\n    failure_multiplier: 0.5\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := config.ParseProfilePack([]byte(tc.pack))
			assert.Error(t, err)
		})
	}
}

func TestParseProfilePackRejectsDuplicateIDs(t *testing.T) {
	pack := `
name: aci/profiles-dup
version: 1.0.0
profiles:
  - id: standard
    half_life_days: 182
    failure_multiplier: 3
  - id: standard
    half_life_days: 30
    failure_multiplier: 4
`
	_, err := config.ParseProfilePack([]byte(pack))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "twice")
}
