package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"rifa/internal/models"
	"rifa/internal/repository"
	"rifa/internal/securestore"
)

var (
	ErrCustomerRequired  = errors.New("preencha nome e telefone")
	ErrNumbersRequired   = errors.New("selecione pelo menos um número")
	ErrNumberOutOfRange  = errors.New("número fora da rifa")
	ErrDuplicateNumber   = errors.New("número repetido na seleção")
	ErrNumberTaken       = errors.New("número já reservado ou vendido")
	ErrPurchaseNotFound  = errors.New("compra não encontrada")
	ErrInvalidTransition = errors.New("apenas compras pendentes podem ser alteradas")
)

// RaffleSettings are the fixed parameters of one raffle.
type RaffleSettings struct {
	TotalNumbers int
	UnitPrice    decimal.Decimal
	Prize        decimal.Decimal
}

// CheckoutRequest is what the payment page submits.
type CheckoutRequest struct {
	Name    string
	Phone   string
	Numbers []int
}

// RaffleService holds the in-memory raffle state. Checkouts are written
// through to storage immediately; admin edits stay in memory until Save.
type RaffleService struct {
	mu        sync.RWMutex
	repo      repository.RaffleRepository
	settings  RaffleSettings
	events    *Broadcaster
	purchases []*models.Purchase
	lastSaved time.Time
	dirty     bool
	now       func() time.Time
}

func NewRaffleService(repo repository.RaffleRepository, settings RaffleSettings, events *Broadcaster) *RaffleService {
	if events == nil {
		events = NewBroadcaster()
	}
	return &RaffleService{
		repo:      repo,
		settings:  settings,
		events:    events,
		purchases: make([]*models.Purchase, 0),
		now:       time.Now,
	}
}

func (s *RaffleService) Settings() RaffleSettings {
	return s.settings
}

func (s *RaffleService) Events() *Broadcaster {
	return s.events
}

// Load replaces the in-memory state with what is stored.
func (s *RaffleService) Load(ctx context.Context) error {
	data, err := s.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("load raffle: %w", err)
	}
	s.mu.Lock()
	s.apply(data)
	s.mu.Unlock()
	logger.Infof("Loaded %d purchases (last saved %s)", len(data.Purchases), data.LastSaved.Format(time.RFC3339))
	return nil
}

func (s *RaffleService) apply(data *models.RaffleData) {
	s.purchases = data.Purchases
	if s.purchases == nil {
		s.purchases = make([]*models.Purchase, 0)
	}
	s.lastSaved = data.LastSaved
	s.dirty = false
}

// numberSets derives the sold and pending sets from purchase statuses.
// Caller must hold the lock.
func (s *RaffleService) numberSets() (sold, pending []int) {
	sold, pending = []int{}, []int{}
	for _, p := range s.purchases {
		switch p.Status {
		case models.StatusConfirmed:
			sold = append(sold, p.Numbers...)
		case models.StatusPending:
			pending = append(pending, p.Numbers...)
		}
	}
	sort.Ints(sold)
	sort.Ints(pending)
	return sold, pending
}

func (s *RaffleService) snapshotLocked() models.RaffleSnapshot {
	sold, pending := s.numberSets()
	return models.RaffleSnapshot{
		TotalNumbers:   s.settings.TotalNumbers,
		SoldNumbers:    sold,
		PendingNumbers: pending,
		Available:      s.settings.TotalNumbers - len(sold) - len(pending),
		UnitPrice:      s.settings.UnitPrice,
		Prize:          s.settings.Prize,
		LastSaved:      s.lastSaved,
	}
}

// Snapshot returns the public state of the grid.
func (s *RaffleService) Snapshot() models.RaffleSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// NewSelection starts a buyer selection against the current taken numbers.
func (s *RaffleService) NewSelection() *Selection {
	snap := s.Snapshot()
	taken := append(snap.SoldNumbers, snap.PendingNumbers...)
	return NewSelection(s.settings.TotalNumbers, s.settings.UnitPrice, taken)
}

// Total prices a number of tickets.
func (s *RaffleService) Total(count int) decimal.Decimal {
	return s.settings.UnitPrice.Mul(decimal.NewFromInt(int64(count)))
}

func (s *RaffleService) validate(req CheckoutRequest) error {
	if req.Name == "" || req.Phone == "" {
		return ErrCustomerRequired
	}
	if len(req.Numbers) == 0 {
		return ErrNumbersRequired
	}
	seen := make(map[int]bool, len(req.Numbers))
	for _, n := range req.Numbers {
		if n < 1 || n > s.settings.TotalNumbers {
			return fmt.Errorf("%w: %d", ErrNumberOutOfRange, n)
		}
		if seen[n] {
			return fmt.Errorf("%w: %d", ErrDuplicateNumber, n)
		}
		seen[n] = true
	}
	return nil
}

// Checkout records a pending purchase and writes it through to storage.
func (s *RaffleService) Checkout(ctx context.Context, req CheckoutRequest) (*models.Purchase, error) {
	req.Name = securestore.SanitizeInput(req.Name)
	req.Phone = securestore.SanitizeInput(req.Phone)
	if err := s.validate(req); err != nil {
		return nil, err
	}

	s.mu.Lock()
	sold, pending := s.numberSets()
	taken := make(map[int]bool, len(sold)+len(pending))
	for _, n := range append(sold, pending...) {
		taken[n] = true
	}
	for _, n := range req.Numbers {
		if taken[n] {
			s.mu.Unlock()
			return nil, fmt.Errorf("%w: %d", ErrNumberTaken, n)
		}
	}

	now := s.now()
	p := &models.Purchase{
		ID:            uuid.NewString(),
		CustomerName:  req.Name,
		CustomerPhone: req.Phone,
		Numbers:       append([]int{}, req.Numbers...),
		Total:         s.Total(len(req.Numbers)),
		Status:        models.StatusPending,
		CreatedAt:     now,
	}
	written, err := s.repo.AppendPurchase(ctx, p, now)
	if err != nil {
		s.mu.Unlock()
		logger.Errorf("Failed to store purchase for %s: %v", p.CustomerName, err)
		return nil, fmt.Errorf("store purchase: %w", err)
	}
	if s.dirty {
		s.purchases = append(s.purchases, p)
	} else {
		s.apply(written)
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	logger.Infof("Purchase %s created: %s, numbers %v, total %s", p.ID, p.CustomerName, p.Numbers, p.Total.StringFixed(2))
	s.events.Publish(snap)
	return clonePurchase(p), nil
}

func clonePurchase(p *models.Purchase) *models.Purchase {
	c := *p
	c.Numbers = append([]int{}, p.Numbers...)
	return &c
}

func matchesTerm(p *models.Purchase, term string) bool {
	if term == "" {
		return true
	}
	if strings.Contains(strings.ToLower(p.CustomerName), strings.ToLower(term)) {
		return true
	}
	if strings.Contains(p.CustomerPhone, term) {
		return true
	}
	for _, n := range p.Numbers {
		if strings.Contains(strconv.Itoa(n), term) {
			return true
		}
	}
	return false
}

// Purchases returns the purchases matching term by name (case-insensitive),
// phone or number. An empty term returns everything.
func (s *RaffleService) Purchases(term string) []*models.Purchase {
	term = strings.TrimSpace(term)
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.Purchase, 0, len(s.purchases))
	for _, p := range s.purchases {
		if matchesTerm(p, term) {
			result = append(result, clonePurchase(p))
		}
	}
	return result
}

func (s *RaffleService) indexOf(id string) int {
	for i, p := range s.purchases {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// UpdateStatus moves a pending purchase to confirmed or cancelled.
func (s *RaffleService) UpdateStatus(id string, status models.PurchaseStatus) (*models.Purchase, error) {
	if status != models.StatusConfirmed && status != models.StatusCancelled {
		return nil, ErrInvalidTransition
	}

	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return nil, ErrPurchaseNotFound
	}
	p := s.purchases[i]
	if p.Status != models.StatusPending {
		s.mu.Unlock()
		return nil, ErrInvalidTransition
	}
	p.Status = status
	s.dirty = true
	updated := clonePurchase(p)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	logger.Infof("Purchase %s marked %s", id, status)
	s.events.Publish(snap)
	return updated, nil
}

// DeletePurchase drops a purchase from memory; its numbers become available.
func (s *RaffleService) DeletePurchase(id string) error {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return ErrPurchaseNotFound
	}
	s.purchases = append(s.purchases[:i], s.purchases[i+1:]...)
	s.dirty = true
	snap := s.snapshotLocked()
	s.mu.Unlock()

	logger.Infof("Purchase %s deleted", id)
	s.events.Publish(snap)
	return nil
}

// Save writes the whole in-memory state, overwriting whatever is stored.
func (s *RaffleService) Save(ctx context.Context) (*models.RaffleData, error) {
	s.mu.Lock()
	sold, pending := s.numberSets()
	data := &models.RaffleData{
		Purchases:      s.purchases,
		SoldNumbers:    sold,
		PendingNumbers: pending,
		TotalSold:      len(sold),
		TotalRevenue:   s.revenueLocked(),
		LastSaved:      s.now(),
	}
	if err := s.repo.Save(ctx, data); err != nil {
		s.mu.Unlock()
		logger.Errorf("Failed to save raffle: %v", err)
		return nil, fmt.Errorf("save raffle: %w", err)
	}
	s.lastSaved = data.LastSaved
	s.dirty = false
	snap := s.snapshotLocked()
	s.mu.Unlock()

	logger.Infof("Saved %d purchases", len(data.Purchases))
	s.events.Publish(snap)
	return data, nil
}

func (s *RaffleService) revenueLocked() decimal.Decimal {
	revenue := decimal.Zero
	for _, p := range s.purchases {
		if p.Status == models.StatusConfirmed {
			revenue = revenue.Add(p.Total)
		}
	}
	return revenue
}

// Stats returns the dashboard totals.
func (s *RaffleService) Stats() models.RaffleStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sold, pending := s.numberSets()
	return models.RaffleStats{
		TotalSold:    len(sold),
		TotalPending: len(pending),
		TotalRevenue: s.revenueLocked(),
		Available:    s.settings.TotalNumbers - len(sold) - len(pending),
		Purchases:    len(s.purchases),
	}
}

func (s *RaffleService) HasUnsavedChanges() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// WinnerFor returns the confirmed purchase holding n, or nil.
func (s *RaffleService) WinnerFor(n int) *models.Purchase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.purchases {
		if p.Status == models.StatusConfirmed && p.HasNumber(n) {
			return clonePurchase(p)
		}
	}
	return nil
}

// Reload picks up writes made by another process. It does nothing when the
// stored timestamp is unchanged or when there are unsaved admin edits; the
// admin's next save overwrites the store.
func (s *RaffleService) Reload(ctx context.Context) (bool, error) {
	last, err := s.repo.LastSaved(ctx)
	if err != nil {
		return false, fmt.Errorf("read last saved: %w", err)
	}

	s.mu.RLock()
	seen := s.lastSaved
	dirty := s.dirty
	s.mu.RUnlock()
	unchanged := last.Equal(seen)
	if unchanged {
		return false, nil
	}
	if dirty {
		logger.Warningf("Storage changed at %s but there are unsaved changes; skipping reload", last.Format(time.RFC3339))
		return false, nil
	}

	data, err := s.repo.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("reload raffle: %w", err)
	}

	s.mu.Lock()
	// a checkout or admin edit landed while storage was read; data is stale
	if s.dirty || !s.lastSaved.Equal(seen) {
		s.mu.Unlock()
		return false, nil
	}
	s.apply(data)
	s.lastSaved = last
	snap := s.snapshotLocked()
	s.mu.Unlock()

	logger.Infof("Reloaded raffle data saved at %s", last.Format(time.RFC3339))
	s.events.Publish(snap)
	return true, nil
}

// StartSync polls storage for changes until ctx is cancelled.
func (s *RaffleService) StartSync(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.Reload(ctx); err != nil {
					logger.Errorf("Sync failed: %v", err)
				}
			}
		}
	}()
}
