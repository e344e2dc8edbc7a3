package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openctemio/authz/internal/infra/redis"
	"github.com/openctemio/authz/pkg/domain/accesscontrol"
	"github.com/openctemio/authz/pkg/domain/permission"
	"github.com/openctemio/authz/pkg/domain/shared"
	"github.com/openctemio/authz/pkg/logger"
)

func newTestDecisionCache(t *testing.T) (*DecisionCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cache, err := NewDecisionCache(redis.NewFromClient(rdb, logger.NewNop()), time.Minute, logger.NewNop())
	require.NoError(t, err)
	return cache, mr
}

func withDecisionCache(cache *DecisionCache) func(*harness) {
	return func(h *harness) { h.cache = cache }
}

func TestDecisionCache_HitAfterMiss(t *testing.T) {
	cache, _ := newTestDecisionCache(t)
	ctx := context.Background()
	userID := shared.NewID()

	var loads atomic.Int32
	load := func(context.Context) (CachedDecision, error) {
		loads.Add(1)
		return CachedDecision{Allowed: true, Source: accesscontrol.SourceDirect}, nil
	}

	for range 3 {
		d, err := cache.Resolve(ctx, userID, nil, permission.EventView, load)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}
	assert.Equal(t, int32(1), loads.Load())

	cache.InvalidateUsers(ctx, userID)
	_, err := cache.Resolve(ctx, userID, nil, permission.EventView, load)
	require.NoError(t, err)
	assert.Equal(t, int32(2), loads.Load())

	cache.InvalidateCatalog(ctx)
	_, err = cache.Resolve(ctx, userID, nil, permission.EventView, load)
	require.NoError(t, err)
	assert.Equal(t, int32(3), loads.Load())
}

func TestDecisionCache_KeysAreScoped(t *testing.T) {
	orgID := shared.NewID()
	userID := shared.NewID()

	system := decisionKey(userID, nil, permission.EventView, 1, 2)
	scoped := decisionKey(userID, &orgID, permission.EventView, 1, 2)

	assert.Equal(t, userID.String()+":-:event_view:1.2", system)
	assert.Equal(t, userID.String()+":"+orgID.String()+":event_view:1.2", scoped)
}

func TestDecisionCache_LoadErrorIsNotCached(t *testing.T) {
	cache, _ := newTestDecisionCache(t)
	ctx := context.Background()
	userID := shared.NewID()

	boom := errors.New("db down")
	_, err := cache.Resolve(ctx, userID, nil, permission.EventView, func(context.Context) (CachedDecision, error) {
		return CachedDecision{}, boom
	})
	require.ErrorIs(t, err, boom)

	d, err := cache.Resolve(ctx, userID, nil, permission.EventView, func(context.Context) (CachedDecision, error) {
		return CachedDecision{Allowed: true}, nil
	})
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestDecisionCache_RedisDownFallsThrough(t *testing.T) {
	cache, mr := newTestDecisionCache(t)
	mr.Close()

	d, err := cache.Resolve(context.Background(), shared.NewID(), nil, permission.EventView, func(context.Context) (CachedDecision, error) {
		return CachedDecision{Allowed: true}, nil
	})
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestDecisionCache_NilIsSafe(t *testing.T) {
	var cache *DecisionCache
	cache.InvalidateUsers(context.Background(), shared.NewID())
	cache.InvalidateCatalog(context.Background())
}

// Mutations through the services must be visible on the next check even
// though the previous answer is cached.
func TestDecisionCache_ServicesInvalidate(t *testing.T) {
	cache, _ := newTestDecisionCache(t)
	h := newHarness(t, withDecisionCache(cache))
	ctx := context.Background()

	view := h.systemPermission(t, permission.EventView)
	support := h.systemRole(t, "support", view)
	u := h.newUser(t, "u@example.com")

	assert.False(t, h.allowedSystem(t, u, permission.EventView))

	_, err := h.grants.AssignSystemRole(ctx, AssignSystemRoleInput{UserID: u.ID().String(), RoleID: support.ID().String()}, shared.ID{})
	require.NoError(t, err)
	assert.True(t, h.allowedSystem(t, u, permission.EventView))

	_, err = h.roles.UpdateRole(ctx, nil, support.ID().String(), UpdateRoleInput{IsActive: ptr(false)}, shared.ID{})
	require.NoError(t, err)
	assert.False(t, h.allowedSystem(t, u, permission.EventView))

	_, err = h.roles.UpdateRole(ctx, nil, support.ID().String(), UpdateRoleInput{IsActive: ptr(true)}, shared.ID{})
	require.NoError(t, err)
	assert.True(t, h.allowedSystem(t, u, permission.EventView))

	require.NoError(t, h.grants.RevokeSystemRole(ctx, u.ID().String(), support.ID().String(), shared.ID{}))
	assert.False(t, h.allowedSystem(t, u, permission.EventView))

	t.Run("collaboration lifecycle", func(t *testing.T) {
		owner := h.newUser(t, "owner@example.com")
		org := h.organization(t, owner, "Acme Events")
		crm := h.organizationPermission(t, org.ID(), permission.CRM)
		editor := h.organizationRole(t, org.ID(), "editor", crm)

		c, err := h.collabs.Invite(ctx, InviteInput{
			OrganizationID: org.ID().String(),
			Email:          "guest@example.com",
			RoleID:         ptr(editor.ID().String()),
		}, owner.ID())
		require.NoError(t, err)
		guest, err := h.store.Users().GetByID(ctx, c.CollaboratorID())
		require.NoError(t, err)

		assert.False(t, h.allowedIn(t, guest, org.ID(), permission.CRM))
		_, err = h.collabs.Accept(ctx, c.ID().String(), guest.ID())
		require.NoError(t, err)
		assert.True(t, h.allowedIn(t, guest, org.ID(), permission.CRM))

		require.NoError(t, h.collabs.Remove(ctx, c.ID().String(), owner.ID()))
		assert.False(t, h.allowedIn(t, guest, org.ID(), permission.CRM))
	})
}
