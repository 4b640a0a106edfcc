package membership

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	id "collecta/pkg/domain"
)

type seedDoc struct {
	Memberships []struct {
		Actor   string `yaml:"actor"`
		Unit    string `yaml:"unit"`
		Role    string `yaml:"role"`
		Contact string `yaml:"contact"`
	} `yaml:"memberships"`
}

// ParseSeed decodes a YAML membership list.
func ParseSeed(data []byte) ([]Membership, error) {
	var doc seedDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("membership seed: decode: %w", err)
	}
	out := make([]Membership, 0, len(doc.Memberships))
	for i, e := range doc.Memberships {
		actor, err := id.ParseActorID(e.Actor)
		if err != nil {
			return nil, fmt.Errorf("membership seed: memberships[%d]: %w", i, err)
		}
		unit, err := id.ParseUnitID(e.Unit)
		if err != nil {
			return nil, fmt.Errorf("membership seed: memberships[%d]: %w", i, err)
		}
		role, err := ParseRole(e.Role)
		if err != nil {
			return nil, fmt.Errorf("membership seed: memberships[%d]: %w", i, err)
		}
		out = append(out, Membership{ActorID: actor, UnitID: unit, Role: role, Contact: e.Contact})
	}
	return out, nil
}

// SeedFile loads path and adds every membership to store. Adds are upserts,
// so seeding twice is harmless.
func SeedFile(ctx context.Context, store Store, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("membership seed: read %s: %w", path, err)
	}
	ms, err := ParseSeed(data)
	if err != nil {
		return 0, err
	}
	for _, m := range ms {
		if err := store.Add(ctx, m); err != nil {
			return 0, fmt.Errorf("membership seed: add: %w", err)
		}
	}
	return len(ms), nil
}
