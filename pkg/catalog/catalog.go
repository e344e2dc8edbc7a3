// Package catalog loads permission and role definitions from YAML.
//
// A catalog document looks like:
//
//	permissions:
//	  - type: event_view
//	    name: View events
//	    resource: event
//	    action: view
//	roles:
//	  - type: support
//	    name: Support
//	    permissions: [event_view]
package catalog

import (
	_ "embed"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/openctemio/authz/pkg/domain/permission"
	"github.com/openctemio/authz/pkg/domain/role"
)

//go:embed platform.yaml
var platformYAML []byte

// PermissionDef is one permission entry.
type PermissionDef struct {
	Type        permission.Type `yaml:"type"`
	Name        string          `yaml:"name"`
	Description string          `yaml:"description,omitempty"`
	Resource    string          `yaml:"resource,omitempty"`
	Action      string          `yaml:"action,omitempty"`
}

// Spec converts the entry to the domain input.
func (d PermissionDef) Spec() permission.Spec {
	return permission.Spec{
		Name:        d.Name,
		Type:        d.Type,
		Description: d.Description,
		Resource:    d.Resource,
		Action:      d.Action,
	}
}

// RoleDef is one role entry. Permissions are referenced by type.
type RoleDef struct {
	Type        role.Type         `yaml:"type"`
	Name        string            `yaml:"name"`
	Description string            `yaml:"description,omitempty"`
	Permissions []permission.Type `yaml:"permissions,omitempty"`
}

// Spec converts the entry to the domain input.
func (d RoleDef) Spec() role.Spec {
	return role.Spec{Name: d.Name, Type: d.Type, Description: d.Description}
}

// Catalog is a parsed document.
type Catalog struct {
	Permissions []PermissionDef `yaml:"permissions"`
	Roles       []RoleDef       `yaml:"roles"`
}

// Parse decodes and validates a catalog document.
func Parse(r io.Reader) (*Catalog, error) {
	var c Catalog
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		if err == io.EOF {
			return &Catalog{}, nil
		}
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadFile parses a catalog file.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// PlatformAdminRole is the built-in role holding every platform permission.
const PlatformAdminRole role.Type = "platform_admin"

// Platform returns the built-in system catalog.
func Platform() *Catalog {
	var c Catalog
	if err := yaml.Unmarshal(platformYAML, &c); err != nil {
		panic(fmt.Sprintf("catalog: built-in platform catalog is invalid: %v", err))
	}
	return &c
}

// Validate checks type formats, duplicates, and that every role references
// a permission defined in the same document.
func (c *Catalog) Validate() error {
	perms := make(map[permission.Type]bool, len(c.Permissions))
	for i, p := range c.Permissions {
		if !p.Type.IsValid() {
			return fmt.Errorf("permissions[%d]: invalid type %q", i, p.Type)
		}
		if p.Name == "" {
			return fmt.Errorf("permissions[%d]: name is required", i)
		}
		if perms[p.Type] {
			return fmt.Errorf("permissions[%d]: duplicate type %q", i, p.Type)
		}
		perms[p.Type] = true
	}

	roles := make(map[role.Type]bool, len(c.Roles))
	for i, r := range c.Roles {
		if !r.Type.IsValid() {
			return fmt.Errorf("roles[%d]: invalid type %q", i, r.Type)
		}
		if r.Name == "" {
			return fmt.Errorf("roles[%d]: name is required", i)
		}
		if roles[r.Type] {
			return fmt.Errorf("roles[%d]: duplicate type %q", i, r.Type)
		}
		roles[r.Type] = true
		for _, t := range r.Permissions {
			if !perms[t] {
				return fmt.Errorf("roles[%d]: unknown permission %q", i, t)
			}
		}
	}
	return nil
}
