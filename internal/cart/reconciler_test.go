package cart

import (
	"context"
	"testing"

	"github.com/angelmondragon/betza-storefront/internal/identity"
	"github.com/angelmondragon/betza-storefront/internal/notifications"
	pkgerrors "github.com/angelmondragon/betza-storefront/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReconciler(t *testing.T, store *Store, rec notifications.Sink) *Reconciler {
	t.Helper()
	r, err := NewReconciler(ReconcilerParams{Store: store, Notifier: rec, Logger: testLogger()})
	if err != nil {
		t.Fatalf("new reconciler: %v", err)
	}
	return r
}

func TestNewReconcilerRequiresStore(t *testing.T) {
	t.Parallel()

	if _, err := NewReconciler(ReconcilerParams{Logger: testLogger()}); err == nil {
		t.Fatal("expected error without store")
	}
}

func TestSignInMergesLocalIntoRemote(t *testing.T) {
	t.Parallel()

	catalog := newStubCatalog("A", "B")
	persistence := newMemPersistence()
	persistence.seed("user-1", "A", 3)
	store, rec := newTestStore(t, persistence, catalog)
	reconciler := newTestReconciler(t, store, rec)
	ctx := context.Background()

	require.NoError(t, store.AddOrIncrement(ctx, catalog.product("A"), 2))
	require.NoError(t, store.AddOrIncrement(ctx, catalog.product("B"), 1))

	report, err := reconciler.HandleTransition(ctx, identity.Anonymous(), identity.Authenticated("user-1", "ada@example.com"))
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, []string{"A", "B"}, report.Merged)
	assert.Empty(t, report.Failed)

	assert.Equal(t, map[string]int{"A": 5, "B": 1}, quantities(store.Lines()))
	assert.Equal(t, 5, persistence.quantity("user-1", "A"))
	assert.Equal(t, 1, persistence.quantity("user-1", "B"))
	assert.Equal(t, "user-1", store.Owner())
	assert.Empty(t, rec.All())
}

func TestLocalAddRacingSignInIsWrittenToAccountCart(t *testing.T) {
	t.Parallel()

	catalog := newStubCatalog("A", "B")
	persistence := newMemPersistence()
	store, rec := newTestStore(t, persistence, catalog)
	reconciler := newTestReconciler(t, store, rec)
	ctx := context.Background()

	require.NoError(t, store.AddOrIncrement(ctx, catalog.product("A"), 2))

	// The sign-in lands after the caller started adding B but before the
	// in-memory lines are touched.
	signedIn := false
	store.beforeLocal = func() {
		if signedIn {
			return
		}
		signedIn = true
		_, err := reconciler.HandleTransition(ctx, identity.Anonymous(), identity.Authenticated("user-1", ""))
		require.NoError(t, err)
	}

	require.NoError(t, store.AddOrIncrement(ctx, catalog.product("B"), 1))

	assert.Equal(t, "user-1", store.Owner())
	assert.Equal(t, 2, persistence.quantity("user-1", "A"))
	assert.Equal(t, 1, persistence.quantity("user-1", "B"))
	assert.Equal(t, map[string]int{"A": 2, "B": 1}, quantities(store.Lines()))
}

func TestSignInWithEmptyLocalCartLoadsRemote(t *testing.T) {
	t.Parallel()

	catalog := newStubCatalog("A")
	persistence := newMemPersistence()
	persistence.seed("user-1", "A", 2)
	store, rec := newTestStore(t, persistence, catalog)
	reconciler := newTestReconciler(t, store, rec)

	report, err := reconciler.HandleTransition(context.Background(), identity.Anonymous(), identity.Authenticated("user-1", ""))
	require.NoError(t, err)
	assert.Empty(t, report.Merged)
	assert.Equal(t, map[string]int{"A": 2}, quantities(store.Lines()))
	assert.Equal(t, 0, persistence.upserts)
}

func TestRepeatedSignInSignalDoesNotMergeTwice(t *testing.T) {
	t.Parallel()

	catalog := newStubCatalog("A")
	persistence := newMemPersistence()
	store, rec := newTestStore(t, persistence, catalog)
	reconciler := newTestReconciler(t, store, rec)
	signal := identity.NewSignal(identity.Anonymous())
	signal.Subscribe(reconciler.OnIdentityChange)
	ctx := context.Background()

	require.NoError(t, store.AddOrIncrement(ctx, catalog.product("A"), 2))
	signal.Set(ctx, identity.Authenticated("user-1", ""))
	signal.Set(ctx, identity.Authenticated("user-1", "refreshed@example.com"))

	assert.Equal(t, 2, persistence.quantity("user-1", "A"))
	assert.Equal(t, 1, persistence.upserts)
}

func TestPartialMergeFailureRetainsPendingLines(t *testing.T) {
	t.Parallel()

	catalog := newStubCatalog("A", "B")
	persistence := newMemPersistence()
	persistence.failUpsert["B"] = errBoom
	store, rec := newTestStore(t, persistence, catalog)
	reconciler := newTestReconciler(t, store, rec)
	ctx := context.Background()

	require.NoError(t, store.AddOrIncrement(ctx, catalog.product("A"), 1))
	require.NoError(t, store.AddOrIncrement(ctx, catalog.product("B"), 4))

	report, err := reconciler.HandleTransition(ctx, identity.Anonymous(), identity.Authenticated("user-1", ""))
	if !pkgerrors.HasCode(err, pkgerrors.CodeCartMerge) {
		t.Fatalf("expected merge error, got %v", err)
	}
	assert.Equal(t, []string{"A"}, report.Merged)
	assert.Equal(t, []string{"B"}, report.Failed)
	assert.Equal(t, map[string]int{"A": 1}, quantities(store.Lines()))
	require.Len(t, reconciler.Pending(), 1)

	details, ok := pkgerrors.As(err).Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []string{"B"}, details["failed_product_ids"])

	n, ok := rec.Last()
	require.True(t, ok)
	assert.Equal(t, notifications.LevelError, n.Level)
	assert.Equal(t, pkgerrors.MetadataFor(pkgerrors.CodeCartMerge).PublicMessage, n.Message)

	persistence.mu.Lock()
	delete(persistence.failUpsert, "B")
	persistence.mu.Unlock()

	report, err = reconciler.RetryFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, report.Merged)
	assert.Equal(t, map[string]int{"A": 1, "B": 4}, quantities(store.Lines()))
	assert.Empty(t, reconciler.Pending())
}

func TestPendingLinesDroppedOnSignOut(t *testing.T) {
	t.Parallel()

	catalog := newStubCatalog("A")
	persistence := newMemPersistence()
	persistence.failUpsert["A"] = errBoom
	store, rec := newTestStore(t, persistence, catalog)
	reconciler := newTestReconciler(t, store, rec)
	ctx := context.Background()

	require.NoError(t, store.AddOrIncrement(ctx, catalog.product("A"), 1))
	_, err := reconciler.HandleTransition(ctx, identity.Anonymous(), identity.Authenticated("user-1", ""))
	require.Error(t, err)

	_, err = reconciler.HandleTransition(ctx, identity.Authenticated("user-1", ""), identity.Anonymous())
	require.NoError(t, err)
	assert.Empty(t, reconciler.Pending())

	report, err := reconciler.RetryFailed(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Merged)
}

func TestSignOutResetsToEmptyLocalCart(t *testing.T) {
	t.Parallel()

	catalog := newStubCatalog("A")
	persistence := newMemPersistence()
	persistence.seed("user-1", "A", 2)
	store, rec := newTestStore(t, persistence, catalog)
	reconciler := newTestReconciler(t, store, rec)
	ctx := context.Background()

	_, err := reconciler.HandleTransition(ctx, identity.Anonymous(), identity.Authenticated("user-1", ""))
	require.NoError(t, err)
	require.Len(t, store.Lines(), 1)

	_, err = reconciler.HandleTransition(ctx, identity.Authenticated("user-1", ""), identity.Anonymous())
	require.NoError(t, err)
	assert.Empty(t, store.Lines())
	assert.False(t, store.IsRemote())
	assert.Equal(t, 2, persistence.quantity("user-1", "A"))
}

func TestSwitchUserLoadsNewCartWithoutMerge(t *testing.T) {
	t.Parallel()

	catalog := newStubCatalog("A", "B")
	persistence := newMemPersistence()
	persistence.seed("user-1", "A", 1)
	persistence.seed("user-2", "B", 3)
	store, rec := newTestStore(t, persistence, catalog)
	reconciler := newTestReconciler(t, store, rec)
	ctx := context.Background()

	_, err := reconciler.HandleTransition(ctx, identity.Anonymous(), identity.Authenticated("user-1", ""))
	require.NoError(t, err)

	report, err := reconciler.HandleTransition(ctx, identity.Authenticated("user-1", ""), identity.Authenticated("user-2", ""))
	require.NoError(t, err)
	assert.Nil(t, report)
	assert.Equal(t, map[string]int{"B": 3}, quantities(store.Lines()))
	assert.Equal(t, 0, persistence.quantity("user-2", "A"))
	assert.Equal(t, "user-2", store.Owner())
}

func TestUnchangedIdentityIsNoop(t *testing.T) {
	t.Parallel()

	catalog := newStubCatalog("A")
	store, rec := newTestStore(t, newMemPersistence(), catalog)
	reconciler := newTestReconciler(t, store, rec)
	require.NoError(t, store.AddOrIncrement(context.Background(), catalog.product("A"), 1))

	report, err := reconciler.HandleTransition(context.Background(), identity.Anonymous(), identity.Anonymous())
	require.NoError(t, err)
	assert.Nil(t, report)
	assert.Len(t, store.Lines(), 1)
}
