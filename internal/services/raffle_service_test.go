package services

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rifa/internal/models"
	"rifa/internal/repository"
	"rifa/internal/storage"
)

var testSettings = RaffleSettings{
	TotalNumbers: 200,
	UnitPrice:    decimal.RequireFromString("1.00"),
	Prize:        decimal.NewFromInt(400),
}

func newTestRepo(t *testing.T) repository.RaffleRepository {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := storage.OpenDB("sqlite", dsn, &storage.KVEntry{})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return repository.NewRaffleRepository(storage.NewJSONStore(storage.NewGormKV(db)))
}

func newTestRaffle(t *testing.T) (*RaffleService, repository.RaffleRepository) {
	t.Helper()
	repo := newTestRepo(t)
	svc := NewRaffleService(repo, testSettings, NewBroadcaster())
	require.NoError(t, svc.Load(context.Background()))
	return svc, repo
}

func TestRaffleService_Checkout(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestRaffle(t)

	t.Run("creates a pending purchase", func(t *testing.T) {
		p, err := svc.Checkout(ctx, CheckoutRequest{
			Name:    "  Maria <script>alert(1)</script>Silva ",
			Phone:   "(11) 99999-1111",
			Numbers: []int{1, 5, 12},
		})
		require.NoError(t, err)
		assert.Equal(t, "Maria Silva", p.CustomerName)
		assert.Equal(t, models.StatusPending, p.Status)
		assert.True(t, decimal.RequireFromString("3.00").Equal(p.Total))
		assert.NotEmpty(t, p.ID)

		snap := svc.Snapshot()
		assert.Equal(t, []int{1, 5, 12}, snap.PendingNumbers)
		assert.Empty(t, snap.SoldNumbers)
		assert.Equal(t, 197, snap.Available)

		stored, err := repo.Load(ctx)
		require.NoError(t, err)
		require.Len(t, stored.Purchases, 1)
		assert.Equal(t, p.ID, stored.Purchases[0].ID)
	})

	t.Run("rejects invalid requests", func(t *testing.T) {
		cases := []struct {
			name string
			req  CheckoutRequest
			want error
		}{
			{"missing name", CheckoutRequest{Phone: "1", Numbers: []int{2}}, ErrCustomerRequired},
			{"script only name", CheckoutRequest{Name: "<script>x</script>", Phone: "1", Numbers: []int{2}}, ErrCustomerRequired},
			{"no numbers", CheckoutRequest{Name: "Ana", Phone: "1"}, ErrNumbersRequired},
			{"out of range", CheckoutRequest{Name: "Ana", Phone: "1", Numbers: []int{201}}, ErrNumberOutOfRange},
			{"zero", CheckoutRequest{Name: "Ana", Phone: "1", Numbers: []int{0}}, ErrNumberOutOfRange},
			{"duplicate", CheckoutRequest{Name: "Ana", Phone: "1", Numbers: []int{3, 3}}, ErrDuplicateNumber},
			{"taken", CheckoutRequest{Name: "Ana", Phone: "1", Numbers: []int{2, 5}}, ErrNumberTaken},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				_, err := svc.Checkout(ctx, tc.req)
				assert.ErrorIs(t, err, tc.want)
			})
		}
		assert.Len(t, svc.Purchases(""), 1)
	})
}

func TestRaffleService_AdminFlow(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestRaffle(t)

	maria, err := svc.Checkout(ctx, CheckoutRequest{Name: "Maria Silva", Phone: "(11) 99999-1111", Numbers: []int{1, 5, 12}})
	require.NoError(t, err)
	joao, err := svc.Checkout(ctx, CheckoutRequest{Name: "João Santos", Phone: "(11) 98888-2222", Numbers: []int{150}})
	require.NoError(t, err)

	t.Run("search", func(t *testing.T) {
		assert.Len(t, svc.Purchases("maria"), 1)
		assert.Len(t, svc.Purchases("98888"), 1)
		assert.Len(t, svc.Purchases("15"), 1, "150 contains 15")
		assert.Len(t, svc.Purchases("1"), 2)
		assert.Empty(t, svc.Purchases("pedro"))
		assert.Len(t, svc.Purchases(""), 2)
	})

	t.Run("confirm only from pending", func(t *testing.T) {
		p, err := svc.UpdateStatus(maria.ID, models.StatusConfirmed)
		require.NoError(t, err)
		assert.Equal(t, models.StatusConfirmed, p.Status)
		assert.True(t, svc.HasUnsavedChanges())

		_, err = svc.UpdateStatus(maria.ID, models.StatusCancelled)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		_, err = svc.UpdateStatus("missing", models.StatusConfirmed)
		assert.ErrorIs(t, err, ErrPurchaseNotFound)
		_, err = svc.UpdateStatus(joao.ID, models.StatusPending)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("stats and winner", func(t *testing.T) {
		stats := svc.Stats()
		assert.Equal(t, 3, stats.TotalSold)
		assert.Equal(t, 1, stats.TotalPending)
		assert.True(t, decimal.NewFromInt(3).Equal(stats.TotalRevenue))
		assert.Equal(t, 196, stats.Available)
		assert.Equal(t, 2, stats.Purchases)

		w := svc.WinnerFor(5)
		require.NotNil(t, w)
		assert.Equal(t, maria.ID, w.ID)
		assert.Nil(t, svc.WinnerFor(150), "pending purchases do not win")
		assert.Nil(t, svc.WinnerFor(99))
	})

	t.Run("edits stay in memory until saved", func(t *testing.T) {
		stored, err := repo.Load(ctx)
		require.NoError(t, err)
		for _, p := range stored.Purchases {
			assert.Equal(t, models.StatusPending, p.Status)
		}

		require.NoError(t, svc.DeletePurchase(joao.ID))
		assert.ErrorIs(t, svc.DeletePurchase(joao.ID), ErrPurchaseNotFound)

		data, err := svc.Save(ctx)
		require.NoError(t, err)
		assert.False(t, svc.HasUnsavedChanges())
		assert.Equal(t, []int{1, 5, 12}, data.SoldNumbers)
		assert.Empty(t, data.PendingNumbers)
		assert.Equal(t, 3, data.TotalSold)

		stored, err = repo.Load(ctx)
		require.NoError(t, err)
		require.Len(t, stored.Purchases, 1)
		assert.Equal(t, models.StatusConfirmed, stored.Purchases[0].Status)

		last, err := repo.LastSaved(ctx)
		require.NoError(t, err)
		assert.True(t, last.Equal(data.LastSaved))
	})
}

func TestRaffleService_Reload(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	admin := NewRaffleService(repo, testSettings, nil)
	buyer := NewRaffleService(repo, testSettings, nil)
	require.NoError(t, admin.Load(ctx))
	require.NoError(t, buyer.Load(ctx))

	changed, err := admin.Reload(ctx)
	require.NoError(t, err)
	assert.False(t, changed, "nothing stored yet")

	p, err := buyer.Checkout(ctx, CheckoutRequest{Name: "Ana", Phone: "1", Numbers: []int{7}})
	require.NoError(t, err)

	t.Run("picks up another writer", func(t *testing.T) {
		events, cancel := admin.Events().Subscribe()
		defer cancel()

		changed, err := admin.Reload(ctx)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, []int{7}, admin.Snapshot().PendingNumbers)

		select {
		case snap := <-events:
			assert.Equal(t, []int{7}, snap.PendingNumbers)
		case <-time.After(time.Second):
			t.Fatal("expected a change event")
		}

		changed, err = admin.Reload(ctx)
		require.NoError(t, err)
		assert.False(t, changed, "same timestamp")
	})

	t.Run("skips while there are unsaved edits", func(t *testing.T) {
		_, err := admin.UpdateStatus(p.ID, models.StatusConfirmed)
		require.NoError(t, err)

		_, err = buyer.Checkout(ctx, CheckoutRequest{Name: "Bia", Phone: "2", Numbers: []int{8}})
		require.NoError(t, err)

		changed, err := admin.Reload(ctx)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Len(t, admin.Purchases(""), 1)

		// last write wins: the admin save drops Bia's purchase
		_, err = admin.Save(ctx)
		require.NoError(t, err)
		changed, err = buyer.Reload(ctx)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, []int{7}, buyer.Snapshot().SoldNumbers)
		assert.Empty(t, buyer.Snapshot().PendingNumbers)
	})
}

// pausingRepo holds Load open once armed, so a test can run work between the
// read and the apply of a reload.
type pausingRepo struct {
	repository.RaffleRepository
	armed   atomic.Bool
	loaded  chan struct{}
	release chan struct{}
}

func (r *pausingRepo) Load(ctx context.Context) (*models.RaffleData, error) {
	data, err := r.RaffleRepository.Load(ctx)
	if r.armed.CompareAndSwap(true, false) {
		r.loaded <- struct{}{}
		<-r.release
	}
	return data, err
}

func TestRaffleService_ReloadKeepsConcurrentCheckout(t *testing.T) {
	ctx := context.Background()
	inner := newTestRepo(t)
	repo := &pausingRepo{
		RaffleRepository: inner,
		loaded:           make(chan struct{}),
		release:          make(chan struct{}),
	}
	svc := NewRaffleService(repo, testSettings, nil)
	require.NoError(t, svc.Load(ctx))

	other := NewRaffleService(inner, testSettings, nil)
	require.NoError(t, other.Load(ctx))
	_, err := other.Checkout(ctx, CheckoutRequest{Name: "Bia", Phone: "2", Numbers: []int{1}})
	require.NoError(t, err)

	repo.armed.Store(true)
	type reloadResult struct {
		changed bool
		err     error
	}
	done := make(chan reloadResult, 1)
	go func() {
		changed, err := svc.Reload(ctx)
		done <- reloadResult{changed, err}
	}()

	select {
	case <-repo.loaded:
	case <-time.After(2 * time.Second):
		t.Fatal("reload never read storage")
	}
	_, err = svc.Checkout(ctx, CheckoutRequest{Name: "Ana", Phone: "1", Numbers: []int{7}})
	require.NoError(t, err)
	close(repo.release)

	res := <-done
	require.NoError(t, res.err)
	assert.False(t, res.changed, "stale read must not be applied")
	assert.Equal(t, []int{1, 7}, svc.Snapshot().PendingNumbers)
	assert.Len(t, svc.Purchases(""), 2)

	_, err = svc.Checkout(ctx, CheckoutRequest{Name: "Caio", Phone: "3", Numbers: []int{7}})
	assert.ErrorIs(t, err, ErrNumberTaken)
}

func TestRaffleService_StartSync(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo := newTestRepo(t)
	viewer := NewRaffleService(repo, testSettings, nil)
	buyer := NewRaffleService(repo, testSettings, nil)
	require.NoError(t, viewer.Load(ctx))
	require.NoError(t, buyer.Load(ctx))

	viewer.StartSync(ctx, 10*time.Millisecond)
	_, err := buyer.Checkout(ctx, CheckoutRequest{Name: "Ana", Phone: "1", Numbers: []int{42}})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return len(viewer.Snapshot().PendingNumbers) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRaffleService_NewSelection(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestRaffle(t)
	_, err := svc.Checkout(ctx, CheckoutRequest{Name: "Ana", Phone: "1", Numbers: []int{3}})
	require.NoError(t, err)

	sel := svc.NewSelection()
	assert.True(t, sel.IsTaken(3))
	assert.False(t, sel.Toggle(3))
	assert.True(t, sel.Toggle(4))
	assert.Equal(t, "1.00", sel.Total().StringFixed(2))
}
