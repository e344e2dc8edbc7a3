package collaboration

import (
	"errors"
	"testing"
	"time"

	"github.com/openctemio/authz/pkg/domain/shared"
)

func newPending(t *testing.T, at time.Time) (*Collaboration, shared.ID) {
	t.Helper()
	collaborator := shared.NewID()
	c, err := New(shared.NewID(), collaborator, "  Guest@Example.com ", shared.NewID(), nil, at)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c, collaborator
}

func TestNew(t *testing.T) {
	now := time.Now().UTC()
	past := now.Add(-time.Hour)

	tests := []struct {
		name      string
		orgID     shared.ID
		userID    shared.ID
		email     string
		invitedBy shared.ID
		expiresAt *time.Time
		wantErr   bool
	}{
		{"valid", shared.NewID(), shared.NewID(), "a@b.c", shared.NewID(), nil, false},
		{"missing organization", shared.ID{}, shared.NewID(), "a@b.c", shared.NewID(), nil, true},
		{"missing collaborator", shared.NewID(), shared.ID{}, "a@b.c", shared.NewID(), nil, true},
		{"blank email", shared.NewID(), shared.NewID(), "  ", shared.NewID(), nil, true},
		{"missing inviter", shared.NewID(), shared.NewID(), "a@b.c", shared.ID{}, nil, true},
		{"expiry in the past", shared.NewID(), shared.NewID(), "a@b.c", shared.NewID(), &past, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.orgID, tt.userID, tt.email, tt.invitedBy, tt.expiresAt, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, shared.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	now := time.Now().UTC()
	c, _ := newPending(t, now)

	if c.Email() != "guest@example.com" {
		t.Errorf("Email() = %q, want normalized", c.Email())
	}
	if c.Status() != StatusPending || !c.IsActive() {
		t.Errorf("expected live pending collaboration, got %s active=%v", c.Status(), c.IsActive())
	}
	if c.ExpiresAt() == nil || !c.ExpiresAt().Equal(now.Add(DefaultInvitationExpiry)) {
		t.Errorf("ExpiresAt() = %v, want default expiry", c.ExpiresAt())
	}
	if c.GrantsAuthority() {
		t.Error("pending collaboration must not grant authority")
	}
}

func TestAccept(t *testing.T) {
	now := time.Now().UTC()

	t.Run("collaborator accepts", func(t *testing.T) {
		c, user := newPending(t, now)
		if err := c.Accept(user, now.Add(time.Minute)); err != nil {
			t.Fatalf("Accept() error = %v", err)
		}
		if c.Status() != StatusAccepted || c.AcceptedAt() == nil {
			t.Errorf("expected accepted with timestamp, got %s %v", c.Status(), c.AcceptedAt())
		}
		if !c.GrantsAuthority() {
			t.Error("accepted live collaboration should grant authority")
		}
	})

	t.Run("someone else", func(t *testing.T) {
		c, _ := newPending(t, now)
		err := c.Accept(shared.NewID(), now)
		if !errors.Is(err, ErrNotCollaborator) || !errors.Is(err, shared.ErrUnauthorized) {
			t.Errorf("Accept() error = %v, want unauthorized", err)
		}
	})

	t.Run("expired", func(t *testing.T) {
		c, user := newPending(t, now)
		err := c.Accept(user, now.Add(DefaultInvitationExpiry+time.Second))
		if !errors.Is(err, ErrInvitationExpired) {
			t.Errorf("Accept() error = %v, want expired", err)
		}
	})

	t.Run("removed", func(t *testing.T) {
		c, user := newPending(t, now)
		c.SetActive(false, now)
		if err := c.Accept(user, now); !errors.Is(err, shared.ErrValidation) {
			t.Errorf("Accept() error = %v, want validation", err)
		}
	})

	t.Run("twice", func(t *testing.T) {
		c, user := newPending(t, now)
		if err := c.Accept(user, now); err != nil {
			t.Fatal(err)
		}
		if err := c.Accept(user, now); !errors.Is(err, shared.ErrValidation) {
			t.Errorf("second Accept() error = %v, want validation", err)
		}
	})
}

func TestReject(t *testing.T) {
	now := time.Now().UTC()
	c, user := newPending(t, now)

	if err := c.Reject(user, now); err != nil {
		t.Fatalf("Reject() error = %v", err)
	}
	if c.Status() != StatusRejected {
		t.Errorf("Status() = %s, want rejected", c.Status())
	}
	if c.GrantsAuthority() {
		t.Error("rejected collaboration must not grant authority")
	}
	if err := c.Accept(user, now); err == nil {
		t.Error("accepting a rejected invitation should fail")
	}
}

func TestRevive(t *testing.T) {
	now := time.Now().UTC()
	c, user := newPending(t, now)
	if err := c.Accept(user, now); err != nil {
		t.Fatal(err)
	}

	if err := c.Revive(shared.NewID(), nil, now); !errors.Is(err, ErrCollaborationExists) {
		t.Fatalf("Revive() on live row error = %v, want conflict", err)
	}

	c.SetActive(false, now)
	inviter := shared.NewID()
	later := now.Add(time.Hour)
	if err := c.Revive(inviter, nil, later); err != nil {
		t.Fatalf("Revive() error = %v", err)
	}
	if c.Status() != StatusPending || !c.IsActive() || c.AcceptedAt() != nil {
		t.Errorf("expected fresh pending invitation, got %s active=%v accepted=%v", c.Status(), c.IsActive(), c.AcceptedAt())
	}
	if !c.InvitedBy().Equals(inviter) || !c.InvitedAt().Equal(later) {
		t.Error("revive should refresh inviter and timestamp")
	}
}

func TestParseStatus(t *testing.T) {
	if s, err := ParseStatus("Accepted"); err != nil || s != StatusAccepted {
		t.Errorf("ParseStatus(Accepted) = %v, %v", s, err)
	}
	if _, err := ParseStatus("archived"); !errors.Is(err, shared.ErrValidation) {
		t.Errorf("ParseStatus(archived) error = %v, want validation", err)
	}
}
