package service_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flareddns/internal/fake"
	"flareddns/internal/model"
	"flareddns/internal/service"
)

var testZone = model.Zone{ID: "zone1", Name: "example.com", Status: "active"}

func newReconciler(store *fake.Store) *service.Reconciler {
	return service.NewReconciler(store, slog.New(slog.DiscardHandler))
}

func TestReconcileCacheHitSameContent(t *testing.T) {
	ctx := context.Background()
	store := fake.NewStore(testZone)
	require.NoError(t, store.UpsertRecord(ctx, model.ManagedRecord{
		ID: "rec1", ZoneID: testZone.ID, Name: "home.example.com", Type: model.RecordTypeA, Content: "1.2.3.4", TTL: 1,
	}))
	provider := fake.NewProvider()

	status := newReconciler(store).Reconcile(ctx, provider, testZone, "home.example.com", "1.2.3.4", model.RecordTypeA)

	assert.Equal(t, model.NoChange("1.2.3.4"), status)
	assert.Zero(t, provider.Calls("list"))
	assert.Zero(t, provider.Writes())
}

func TestReconcileCacheHitDifferentContent(t *testing.T) {
	ctx := context.Background()
	store := fake.NewStore(testZone)
	require.NoError(t, store.UpsertRecord(ctx, model.ManagedRecord{
		ID: "rec1", ZoneID: testZone.ID, Name: "home.example.com", Type: model.RecordTypeA,
		Content: "1.1.1.1", Proxied: true, TTL: 300,
	}))
	provider := fake.NewProvider()
	provider.Seed(testZone.ID, model.RemoteRecord{
		ID: "rec1", Name: "home.example.com", Type: model.RecordTypeA, Content: "1.1.1.1", Proxied: true, TTL: 300,
	})

	status := newReconciler(store).Reconcile(ctx, provider, testZone, "home.example.com", "2.2.2.2", model.RecordTypeA)

	assert.Equal(t, model.Good("2.2.2.2"), status)
	assert.Equal(t, 1, provider.Calls("update"))
	assert.Zero(t, provider.Calls("list"))

	remote, _ := provider.Record(testZone.ID, "rec1")
	assert.Equal(t, "2.2.2.2", remote.Content)
	assert.True(t, remote.Proxied, "proxied flag is preserved")
	assert.Equal(t, 300, remote.TTL, "ttl is preserved")

	cached := store.Records()["rec1"]
	assert.Equal(t, "2.2.2.2", cached.Content)
	assert.False(t, cached.LastUpdated.IsZero())
}

func TestReconcileCacheMissRemoteMatches(t *testing.T) {
	ctx := context.Background()
	store := fake.NewStore(testZone)
	provider := fake.NewProvider()
	provider.Seed(testZone.ID, model.RemoteRecord{
		ID: "cf1", Name: "home.example.com", Type: model.RecordTypeA, Content: "1.2.3.4", TTL: 120,
	})
	provider.Seed(testZone.ID, model.RemoteRecord{
		ID: "cf2", Name: "other.example.com", Type: model.RecordTypeA, Content: "9.9.9.9", TTL: 120,
	})

	status := newReconciler(store).Reconcile(ctx, provider, testZone, "home.example.com", "1.2.3.4", model.RecordTypeA)

	assert.Equal(t, model.NoChange("1.2.3.4"), status)
	assert.Zero(t, provider.Writes())
	cached, ok := store.Records()["cf1"]
	require.True(t, ok, "cache is populated from the provider")
	assert.Equal(t, 120, cached.TTL)
	assert.Equal(t, testZone.ID, cached.ZoneID)
}

func TestReconcileCacheMissRemoteDiffers(t *testing.T) {
	ctx := context.Background()
	store := fake.NewStore(testZone)
	provider := fake.NewProvider()
	provider.Seed(testZone.ID, model.RemoteRecord{
		ID: "cf1", Name: "home.example.com", Type: model.RecordTypeAAAA, Content: "2001:db8::1", Proxied: true, TTL: 60,
	})

	status := newReconciler(store).Reconcile(ctx, provider, testZone, "home.example.com", "2001:db8::2", model.RecordTypeAAAA)

	assert.Equal(t, model.Good("2001:db8::2"), status)
	remote, _ := provider.Record(testZone.ID, "cf1")
	assert.Equal(t, "2001:db8::2", remote.Content)
	assert.True(t, remote.Proxied)
	assert.Equal(t, "2001:db8::2", store.Records()["cf1"].Content)
}

func TestReconcileCreatesMissingRecord(t *testing.T) {
	ctx := context.Background()
	store := fake.NewStore(testZone)
	provider := fake.NewProvider()

	status := newReconciler(store).Reconcile(ctx, provider, testZone, "new.example.com", "1.2.3.4", model.RecordTypeA)

	assert.Equal(t, model.Good("1.2.3.4"), status)
	assert.Equal(t, 1, provider.Calls("create"))

	records := store.Records()
	require.Len(t, records, 1)
	for _, rec := range records {
		assert.Equal(t, "new.example.com", rec.Name)
		assert.False(t, rec.Proxied)
		assert.Equal(t, service.AutoTTL, rec.TTL)
	}
}

func TestReconcileIdempotent(t *testing.T) {
	ctx := context.Background()
	store := fake.NewStore(testZone)
	provider := fake.NewProvider()
	r := newReconciler(store)

	first := r.Reconcile(ctx, provider, testZone, "home.example.com", "1.2.3.4", model.RecordTypeA)
	second := r.Reconcile(ctx, provider, testZone, "home.example.com", "1.2.3.4", model.RecordTypeA)

	assert.Equal(t, model.Good("1.2.3.4"), first)
	assert.Equal(t, model.NoChange("1.2.3.4"), second)
	assert.Equal(t, 1, provider.Writes())
}

func TestReconcileRemoteFailureLeavesCacheUntouched(t *testing.T) {
	ctx := context.Background()
	cached := model.ManagedRecord{
		ID: "rec1", ZoneID: testZone.ID, Name: "home.example.com", Type: model.RecordTypeA, Content: "1.1.1.1", TTL: 1,
	}

	for _, op := range []string{"update", "list", "create"} {
		t.Run(op, func(t *testing.T) {
			store := fake.NewStore(testZone)
			if op == "update" {
				require.NoError(t, store.UpsertRecord(ctx, cached))
			}
			provider := fake.NewProvider()
			provider.Fail[op] = errors.New("upstream down")

			before := store.Records()
			status := newReconciler(store).Reconcile(ctx, provider, testZone, "home.example.com", "2.2.2.2", model.RecordTypeA)

			assert.Equal(t, model.DNSError, status)
			assert.Equal(t, before, store.Records())
		})
	}
}

func TestReconcileRecoversFromStaleCache(t *testing.T) {
	ctx := context.Background()
	store := fake.NewStore(testZone)
	require.NoError(t, store.UpsertRecord(ctx, model.ManagedRecord{
		ID: "gone", ZoneID: testZone.ID, Name: "home.example.com", Type: model.RecordTypeA, Content: "1.1.1.1", TTL: 1,
	}))
	provider := fake.NewProvider()

	status := newReconciler(store).Reconcile(ctx, provider, testZone, "home.example.com", "2.2.2.2", model.RecordTypeA)

	assert.Equal(t, model.Good("2.2.2.2"), status)
	assert.Equal(t, 1, provider.Calls("create"))
	records := store.Records()
	assert.NotContains(t, records, "gone")
	assert.Len(t, records, 1)
}

func TestReconcileCacheWriteFailureStillGood(t *testing.T) {
	ctx := context.Background()
	store := fake.NewStore(testZone)
	store.WriteErr = errors.New("disk full")
	provider := fake.NewProvider()

	status := newReconciler(store).Reconcile(ctx, provider, testZone, "home.example.com", "1.2.3.4", model.RecordTypeA)

	assert.Equal(t, model.Good("1.2.3.4"), status)
	assert.Empty(t, store.Records())
}

func TestReconcileCacheReadFailureFallsBackToProvider(t *testing.T) {
	ctx := context.Background()
	store := fake.NewStore(testZone)
	store.Err = errors.New("connection refused")
	provider := fake.NewProvider()
	provider.Seed(testZone.ID, model.RemoteRecord{
		ID: "cf1", Name: "home.example.com", Type: model.RecordTypeA, Content: "1.2.3.4", TTL: 1,
	})

	status := newReconciler(store).Reconcile(ctx, provider, testZone, "home.example.com", "1.2.3.4", model.RecordTypeA)

	assert.Equal(t, model.NoChange("1.2.3.4"), status)
	assert.Equal(t, 1, provider.Calls("list"))
}
