package repository

import (
	"context"
	"errors"
	"time"

	"rifa/internal/models"
	"rifa/internal/storage"
)

// Storage keys, named after the browser local-storage keys they replace.
const (
	KeyRaffleData  = "rifaData"
	KeyPurchases   = "rifaPurchases"
	KeyLastSaved   = "rifaLastSaved"
	KeyDrawnNumber = "drawnNumber"
	KeyDrawHistory = "drawHistory"
)

// BlobStore persists JSON-serializable values by key. Implemented by
// storage.JSONStore and securestore.Store.
type BlobStore interface {
	Put(ctx context.Context, key string, v any) error
	Fetch(ctx context.Context, key string, out any) error
	Remove(ctx context.Context, key string) error
}

type RaffleRepository interface {
	Load(ctx context.Context) (*models.RaffleData, error)
	Save(ctx context.Context, data *models.RaffleData) error
	AppendPurchase(ctx context.Context, p *models.Purchase, at time.Time) (*models.RaffleData, error)
	LastSaved(ctx context.Context) (time.Time, error)
	SaveDraw(ctx context.Context, rec models.DrawRecord) error
	DrawHistory(ctx context.Context) ([]models.DrawRecord, error)
}

type raffleRepoImpl struct {
	store BlobStore
}

func NewRaffleRepository(store BlobStore) RaffleRepository {
	return &raffleRepoImpl{store: store}
}

func emptyRaffleData() *models.RaffleData {
	return &models.RaffleData{
		Purchases:      []*models.Purchase{},
		SoldNumbers:    []int{},
		PendingNumbers: []int{},
	}
}

func (r *raffleRepoImpl) Load(ctx context.Context) (*models.RaffleData, error) {
	data := emptyRaffleData()
	err := r.store.Fetch(ctx, KeyRaffleData, data)
	if errors.Is(err, storage.ErrNotFound) {
		return emptyRaffleData(), nil
	}
	if err != nil {
		return nil, err
	}
	if data.Purchases == nil {
		data.Purchases = []*models.Purchase{}
	}
	return data, nil
}

func (r *raffleRepoImpl) Save(ctx context.Context, data *models.RaffleData) error {
	if err := r.store.Put(ctx, KeyPurchases, data.Purchases); err != nil {
		return err
	}
	if err := r.store.Put(ctx, KeyRaffleData, data); err != nil {
		return err
	}
	return r.store.Put(ctx, KeyLastSaved, data.LastSaved)
}

// AppendPurchase is a read-modify-write of the stored aggregate, the way the
// payment page appended to whatever the last writer left. It returns the
// aggregate as written.
func (r *raffleRepoImpl) AppendPurchase(ctx context.Context, p *models.Purchase, at time.Time) (*models.RaffleData, error) {
	data, err := r.Load(ctx)
	if err != nil {
		return nil, err
	}
	data.Purchases = append(data.Purchases, p)
	data.PendingNumbers = append(data.PendingNumbers, p.Numbers...)
	data.LastSaved = at
	if err := r.Save(ctx, data); err != nil {
		return nil, err
	}
	return data, nil
}

func (r *raffleRepoImpl) LastSaved(ctx context.Context) (time.Time, error) {
	var t time.Time
	err := r.store.Fetch(ctx, KeyLastSaved, &t)
	if errors.Is(err, storage.ErrNotFound) {
		return time.Time{}, nil
	}
	return t, err
}

func (r *raffleRepoImpl) SaveDraw(ctx context.Context, rec models.DrawRecord) error {
	history, err := r.DrawHistory(ctx)
	if err != nil {
		return err
	}
	if err := r.store.Put(ctx, KeyDrawnNumber, rec.Number); err != nil {
		return err
	}
	return r.store.Put(ctx, KeyDrawHistory, append(history, rec))
}

func (r *raffleRepoImpl) DrawHistory(ctx context.Context) ([]models.DrawRecord, error) {
	history := []models.DrawRecord{}
	err := r.store.Fetch(ctx, KeyDrawHistory, &history)
	if errors.Is(err, storage.ErrNotFound) {
		return []models.DrawRecord{}, nil
	}
	if err != nil {
		return nil, err
	}
	return history, nil
}
