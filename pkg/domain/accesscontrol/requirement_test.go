package accesscontrol

import (
	"errors"
	"testing"

	"github.com/openctemio/authz/pkg/domain/permission"
	"github.com/openctemio/authz/pkg/domain/shared"
)

func TestRequirementValidate(t *testing.T) {
	orgID := shared.NewID()

	tests := []struct {
		name    string
		req     Requirement
		wantErr bool
	}{
		{"system", System(permission.EventView), false},
		{"system with bad type", System("Event View"), true},
		{"organization", Organization(orgID, permission.CRM), false},
		{"organization without id", Organization(shared.ID{}, permission.CRM), true},
		{"any of", AnyOf(System(permission.EventView), Organization(orgID, permission.CRM)), false},
		{"empty any of", AnyOf(), true},
		{"any of with invalid alternative", AnyOf(System(permission.EventView), Organization(shared.ID{}, permission.CRM)), true},
		{"zero value", Requirement{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, shared.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestRequirementForbidden(t *testing.T) {
	orgID := shared.NewID()

	err := System(permission.EventView).Forbidden()
	if !errors.Is(err, shared.ErrForbidden) {
		t.Fatalf("Forbidden() should wrap ErrForbidden, got %v", err)
	}
	if err.Error() != "missing permission: event_view" {
		t.Errorf("Forbidden() = %q", err.Error())
	}

	orgErr := Organization(orgID, permission.CRM).Forbidden()
	var fe *shared.ForbiddenError
	if !errors.As(orgErr, &fe) {
		t.Fatalf("expected *ForbiddenError, got %T", orgErr)
	}
	if fe.Permission != "crm" || fe.OrganizationID != orgID.String() {
		t.Errorf("unexpected forbidden error %+v", fe)
	}

	anyErr := AnyOf(System(permission.EventView), Organization(orgID, permission.CRM)).Forbidden()
	if anyErr.Error() != "missing permission: event_view or crm" {
		t.Errorf("AnyOf Forbidden() = %q", anyErr.Error())
	}
}

func TestDecision(t *testing.T) {
	orgID := shared.NewID()
	req := Organization(orgID, permission.CRM)

	d := Deny(req)
	if d.Allowed || d.Source != "" {
		t.Errorf("Deny() = %+v", d)
	}
	if d.OrganizationID == nil || !d.OrganizationID.Equals(orgID) {
		t.Error("organization decision should carry the organization")
	}

	a := Allow(System(permission.EventView), SourceSystemRole)
	if !a.Allowed || a.Source != SourceSystemRole || a.Permission != permission.EventView || a.OrganizationID != nil {
		t.Errorf("Allow() = %+v", a)
	}
}

func TestEffectivePermissions(t *testing.T) {
	roleID := shared.NewID()
	orgID := shared.NewID()

	e := NewEffectivePermissions([]PermissionSource{
		{Type: permission.EventView, Source: SourceSystemRole, SourceID: roleID, SourceName: "Support"},
		{Type: permission.CRM, Source: SourceOwner, SourceID: orgID},
		{Type: permission.EventView, Source: SourceDirect, SourceID: shared.NewID()},
	})

	want := []permission.Type{permission.CRM, permission.EventView}
	if len(e.Types) != len(want) {
		t.Fatalf("Types = %v, want %v", e.Types, want)
	}
	for i := range want {
		if e.Types[i] != want[i] {
			t.Errorf("Types[%d] = %s, want %s", i, e.Types[i], want[i])
		}
	}
	if len(e.Sources[permission.EventView]) != 2 {
		t.Errorf("event_view should keep both sources, got %v", e.Sources[permission.EventView])
	}
	if !e.Has(permission.CRM) || e.Has(permission.Backoffice) {
		t.Error("Has() mismatch")
	}
}
