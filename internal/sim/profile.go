package sim

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Profile describes the worker namespace the simulator pretends to host:
// the existing plans and devices, and per-group permissions that determine
// which of them each user group is allowed to use.
type Profile struct {
	PlansExisting   map[string]map[string]any `yaml:"plans_existing"`
	DevicesExisting map[string]map[string]any `yaml:"devices_existing"`
	Permissions     Permissions               `yaml:"user_group_permissions"`
}

// Permissions holds per-group lists of regular expressions matched against
// plan and device names, the way the real manager filters existing lists
// into allowed lists.
type Permissions struct {
	UserGroups map[string]GroupPermissions `yaml:"user_groups"`
}

// GroupPermissions lists name patterns allowed for a single user group.
type GroupPermissions struct {
	AllowedPlans   []string `yaml:"allowed_plans"`
	AllowedDevices []string `yaml:"allowed_devices"`
}

// LoadProfile reads a profile from a YAML file.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile %s: %w", path, err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse profile %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid profile %s: %w", path, err)
	}
	return &p, nil
}

// DefaultProfile returns the built-in profile used when no profile file is
// supplied: a handful of standard plans and devices with the admin group
// allowed everything and the primary group allowed everything except names
// starting with an underscore.
func DefaultProfile() *Profile {
	return &Profile{
		PlansExisting: map[string]map[string]any{
			"count":    {"name": "count", "description": "Take one or more readings from detectors"},
			"scan":     {"name": "scan", "description": "Scan over one multi-motor trajectory"},
			"rel_scan": {"name": "rel_scan", "description": "Scan over one multi-motor trajectory relative to current position"},
			"mv":       {"name": "mv", "description": "Move one or more devices to a setpoint"},
			"_private": {"name": "_private", "description": "Internal plan"},
		},
		DevicesExisting: map[string]map[string]any{
			"det1":    {"name": "det1", "classname": "SynGauss"},
			"det2":    {"name": "det2", "classname": "SynGauss"},
			"motor":   {"name": "motor", "classname": "SynAxis"},
			"_hidden": {"name": "_hidden", "classname": "SynAxis"},
		},
		Permissions: Permissions{
			UserGroups: map[string]GroupPermissions{
				"admin":   {AllowedPlans: []string{".*"}, AllowedDevices: []string{".*"}},
				"primary": {AllowedPlans: []string{"^[^_]"}, AllowedDevices: []string{"^[^_]"}},
			},
		},
	}
}

// Validate checks that all permission patterns compile.
func (p *Profile) Validate() error {
	for group, perms := range p.Permissions.UserGroups {
		for _, pattern := range append(perms.AllowedPlans, perms.AllowedDevices...) {
			if _, err := regexp.Compile(pattern); err != nil {
				return fmt.Errorf("group %q: bad pattern %q: %w", group, pattern, err)
			}
		}
	}
	return nil
}

// AllowedPlans returns the plans the given user group may use. An unknown
// group gets an empty list.
func (p *Profile) AllowedPlans(group string) map[string]any {
	perms, ok := p.Permissions.UserGroups[group]
	if !ok {
		return map[string]any{}
	}
	return filterByPatterns(p.PlansExisting, perms.AllowedPlans)
}

// AllowedDevices returns the devices the given user group may use.
func (p *Profile) AllowedDevices(group string) map[string]any {
	perms, ok := p.Permissions.UserGroups[group]
	if !ok {
		return map[string]any{}
	}
	return filterByPatterns(p.DevicesExisting, perms.AllowedDevices)
}

// existingToWire converts an existing list to the generic wire shape.
func existingToWire(m map[string]map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for name, descr := range m {
		out[name] = descr
	}
	return out
}

func filterByPatterns(m map[string]map[string]any, patterns []string) map[string]any {
	out := map[string]any{}
	for name, descr := range m {
		for _, pattern := range patterns {
			re, err := regexp.Compile(pattern)
			if err != nil {
				continue
			}
			if re.MatchString(name) {
				out[name] = descr
				break
			}
		}
	}
	return out
}
