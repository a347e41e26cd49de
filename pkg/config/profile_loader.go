package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/Vorion-Labs/aci/core/pkg/trust"
)

// supportedPackVersions gates which pack schema versions this build accepts.
// Bump the major constraint when the pack format changes incompatibly.
const supportedPackVersions = "^1.0.0"

// packSchema validates the decoded pack document before any field is used.
const packSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["name", "version", "profiles"],
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "version": {"type": "string", "minLength": 1},
    "profiles": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["id", "half_life_days", "failure_multiplier"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "half_life_days": {"type": "number", "exclusiveMinimum": 0},
          "failure_multiplier": {"type": "number", "minimum": 1}
        }
      }
    }
  }
}`

// ProfilePack is a named, versioned set of decay profiles loaded from YAML.
type ProfilePack struct {
	Name     string               `yaml:"name"`
	Version  string               `yaml:"version"`
	Profiles []trust.DecayProfile `yaml:"profiles"`
}

var compiledPackSchema = mustCompilePackSchema()

func mustCompilePackSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	const url = "https://aci.schemas.local/profile_pack.schema.json"
	if err := c.AddResource(url, strings.NewReader(packSchema)); err != nil {
		panic(fmt.Sprintf("config: profile pack schema: %v", err))
	}
	return c.MustCompile(url)
}

// LoadProfilePack reads, validates and version-gates a profile pack.
func LoadProfilePack(path string) (*ProfilePack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile pack %q: %w", path, err)
	}
	return ParseProfilePack(data)
}

// ParseProfilePack validates and decodes pack YAML.
func ParseProfilePack(data []byte) (*ProfilePack, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse profile pack: %w", err)
	}
	if err := compiledPackSchema.Validate(raw); err != nil {
		return nil, fmt.Errorf("profile pack schema validation failed: %w", err)
	}

	var pack ProfilePack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("parse profile pack: %w", err)
	}

	version, err := semver.NewVersion(pack.Version)
	if err != nil {
		return nil, fmt.Errorf("profile pack version %q: %w", pack.Version, err)
	}
	gate, err := semver.NewConstraint(supportedPackVersions)
	if err != nil {
		return nil, err
	}
	if !gate.Check(version) {
		return nil, fmt.Errorf("profile pack version %s outside supported range %s", version, supportedPackVersions)
	}

	seen := make(map[trust.ProfileID]bool, len(pack.Profiles))
	for _, p := range pack.Profiles {
		if seen[p.ID] {
			return nil, fmt.Errorf("profile pack defines %q twice", p.ID)
		}
		seen[p.ID] = true
	}
	return &pack, nil
}

// ProfileMap converts the pack into the shape trust.WithProfiles consumes.
func (p *ProfilePack) ProfileMap() map[trust.ProfileID]trust.DecayProfile {
	out := make(map[trust.ProfileID]trust.DecayProfile, len(p.Profiles))
	for _, prof := range p.Profiles {
		out[prof.ID] = prof
	}
	return out
}
