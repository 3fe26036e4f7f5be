package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/logger"

	"rifa/internal/models"
	"rifa/internal/repository"
)

var ErrDrawInProgress = errors.New("já existe um sorteio em andamento")

// DrawService runs the animated winner draw.
type DrawService struct {
	raffle   *RaffleService
	repo     repository.RaffleRepository
	ticks    int
	interval time.Duration
	running  atomic.Bool

	rndMu sync.Mutex
	rnd   *rand.Rand
	now   func() time.Time
}

func NewDrawService(raffle *RaffleService, repo repository.RaffleRepository, ticks int, interval time.Duration) *DrawService {
	return &DrawService{
		raffle:   raffle,
		repo:     repo,
		ticks:    ticks,
		interval: interval,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
		now:      time.Now,
	}
}

func (d *DrawService) pick() int {
	d.rndMu.Lock()
	defer d.rndMu.Unlock()
	return d.rnd.Intn(d.raffle.Settings().TotalNumbers) + 1
}

// Draw shows ticks random numbers, one per interval, through onTick, then
// picks the final number, records it and resolves the winner among confirmed
// purchases. Cancelling ctx stops the animation and records nothing.
func (d *DrawService) Draw(ctx context.Context, onTick func(n int)) (*models.DrawResult, error) {
	if !d.running.CompareAndSwap(false, true) {
		return nil, ErrDrawInProgress
	}
	defer d.running.Store(false)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for i := 0; i < d.ticks; i++ {
		if err := ctx.Err(); err != nil {
			logger.Infof("Draw cancelled after %d ticks", i)
			return nil, err
		}
		select {
		case <-ctx.Done():
			logger.Infof("Draw cancelled after %d ticks", i)
			return nil, ctx.Err()
		case <-ticker.C:
			if onTick != nil {
				onTick(d.pick())
			}
		}
	}

	result := &models.DrawResult{Number: d.pick(), DrawnAt: d.now()}
	if err := d.repo.SaveDraw(ctx, models.DrawRecord{Number: result.Number, DrawnAt: result.DrawnAt}); err != nil {
		logger.Errorf("Failed to record draw %d: %v", result.Number, err)
		return nil, fmt.Errorf("record draw: %w", err)
	}
	result.Winner = d.raffle.WinnerFor(result.Number)
	if result.Winner != nil {
		logger.Infof("Drew %03d, winner %s", result.Number, result.Winner.CustomerName)
	} else {
		logger.Infof("Drew %03d, no confirmed purchase holds it", result.Number)
	}
	return result, nil
}

func (d *DrawService) InProgress() bool {
	return d.running.Load()
}

func (d *DrawService) History(ctx context.Context) ([]models.DrawRecord, error) {
	return d.repo.DrawHistory(ctx)
}
