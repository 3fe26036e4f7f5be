package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"rifa/internal/models"
	"rifa/internal/repository"
)

var (
	ErrAppNotFound     = errors.New("app not found")
	ErrInvalidCategory = errors.New("category must be jogos or aplicativos")
)

const defaultRating = 4.5

type CatalogService interface {
	List(ctx context.Context, category string) ([]*models.App, error)
	Get(ctx context.Context, id string) (*models.App, error)
	Create(ctx context.Context, in models.AppInput) (*models.App, error)
	Update(ctx context.Context, id string, in models.AppInput) (*models.App, error)
	Delete(ctx context.Context, id string) error
	TrackDownload(ctx context.Context, id string) error
	Seed(ctx context.Context) error
}

type catalogServiceImpl struct {
	repo repository.AppRepository
	now  func() time.Time
}

func NewCatalogService(repo repository.AppRepository) CatalogService {
	return &catalogServiceImpl{
		repo: repo,
		now:  time.Now,
	}
}

func validCategory(c string) bool {
	return c == models.CategoryGames || c == models.CategoryApps
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrAppNotFound
	}
	return err
}

// List filters by category; an unknown category simply matches nothing.
func (s *catalogServiceImpl) List(ctx context.Context, category string) ([]*models.App, error) {
	apps, err := s.repo.List(ctx, category)
	if err != nil {
		return nil, err
	}
	if apps == nil {
		apps = []*models.App{}
	}
	return apps, nil
}

func (s *catalogServiceImpl) Get(ctx context.Context, id string) (*models.App, error) {
	app, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	return app, nil
}

func fromInput(in models.AppInput) (*models.App, error) {
	if !validCategory(in.Category) {
		return nil, ErrInvalidCategory
	}
	rating := defaultRating
	if in.Rating != nil {
		rating = *in.Rating
	}
	return &models.App{
		Name:        in.Name,
		Description: in.Description,
		Version:     in.Version,
		Category:    in.Category,
		IconURL:     in.IconURL,
		ApkURL:      in.ApkURL,
		Size:        in.Size,
		Developer:   in.Developer,
		Rating:      rating,
	}, nil
}

func (s *catalogServiceImpl) Create(ctx context.Context, in models.AppInput) (*models.App, error) {
	app, err := fromInput(in)
	if err != nil {
		return nil, err
	}
	app.ID = uuid.NewString()
	app.AddedOn = s.now().Format("2006-01-02")
	if err := s.repo.Create(ctx, app); err != nil {
		return nil, fmt.Errorf("create app: %w", err)
	}
	logger.Infof("App %s (%s) created", app.Name, app.ID)
	return app, nil
}

func (s *catalogServiceImpl) Update(ctx context.Context, id string, in models.AppInput) (*models.App, error) {
	app, err := fromInput(in)
	if err != nil {
		return nil, err
	}
	app.ID = id
	if err := s.repo.Update(ctx, app); err != nil {
		return nil, notFound(err)
	}
	logger.Infof("App %s updated", id)
	return s.Get(ctx, id)
}

func (s *catalogServiceImpl) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return notFound(err)
	}
	logger.Infof("App %s deleted", id)
	return nil
}

func (s *catalogServiceImpl) TrackDownload(ctx context.Context, id string) error {
	return notFound(s.repo.IncrementDownloads(ctx, id))
}

// Seed inserts the sample listings when the catalog is empty.
func (s *catalogServiceImpl) Seed(ctx context.Context) error {
	n, err := s.repo.Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	for _, app := range sampleApps() {
		app.ID = uuid.NewString()
		if err := s.repo.Create(ctx, app); err != nil {
			return fmt.Errorf("seed %s: %w", app.Name, err)
		}
	}
	logger.Infof("Seeded %d sample apps", len(sampleApps()))
	return nil
}

func sampleApps() []*models.App {
	return []*models.App{
		{
			Name:        "PUBG Mobile Mod",
			Description: "Battle Royale com recursos desbloqueados e skins grátis",
			Version:     "3.2.0",
			Category:    models.CategoryGames,
			IconURL:     "https://images.unsplash.com/photo-1593789198788-8b21805d5fdb?crop=entropy&cs=srgb&fm=jpg&q=85",
			ApkURL:      "https://example.com/pubg-mod.apk",
			Downloads:   125000,
			Rating:      4.8,
			Size:        "2.1 GB",
			Developer:   "Tencent Games",
			AddedOn:     "2025-01-15",
		},
		{
			Name:        "WhatsApp Plus",
			Description: "WhatsApp modificado com recursos extras e personalização",
			Version:     "17.50",
			Category:    models.CategoryApps,
			IconURL:     "https://images.pexels.com/photos/267389/pexels-photo-267389.jpeg",
			ApkURL:      "https://example.com/whatsapp-plus.apk",
			Downloads:   89000,
			Rating:      4.6,
			Size:        "95 MB",
			Developer:   "WhatsApp Inc",
			AddedOn:     "2025-01-14",
		},
		{
			Name:        "Minecraft PE Mod",
			Description: "Minecraft Pocket Edition com todos os recursos desbloqueados",
			Version:     "1.20.15",
			Category:    models.CategoryGames,
			IconURL:     "https://images.pexels.com/photos/424299/pexels-photo-424299.jpeg",
			ApkURL:      "https://example.com/minecraft-mod.apk",
			Downloads:   250000,
			Rating:      4.9,
			Size:        "450 MB",
			Developer:   "Mojang Studios",
			AddedOn:     "2025-01-13",
		},
		{
			Name:        "Instagram Pro",
			Description: "Instagram com download de fotos/vídeos e sem anúncios",
			Version:     "290.0.0",
			Category:    models.CategoryApps,
			IconURL:     "https://images.unsplash.com/photo-1696355607944-650405f2aa2e?crop=entropy&cs=srgb&fm=jpg&q=85",
			ApkURL:      "https://example.com/instagram-pro.apk",
			Downloads:   75000,
			Rating:      4.4,
			Size:        "65 MB",
			Developer:   "Meta Platforms",
			AddedOn:     "2025-01-12",
		},
		{
			Name:        "Among Us Mod",
			Description: "Among Us com todos os pets e skins desbloqueados",
			Version:     "2024.3.5",
			Category:    models.CategoryGames,
			IconURL:     "https://images.pexels.com/photos/32944546/pexels-photo-32944546.jpeg",
			ApkURL:      "https://example.com/among-us-mod.apk",
			Downloads:   180000,
			Rating:      4.7,
			Size:        "180 MB",
			Developer:   "InnerSloth",
			AddedOn:     "2025-01-11",
		},
		{
			Name:        "TikTok Pro",
			Description: "TikTok sem marca d'água e com download de vídeos",
			Version:     "32.8.4",
			Category:    models.CategoryApps,
			IconURL:     "https://images.pexels.com/photos/267350/pexels-photo-267350.jpeg",
			ApkURL:      "https://example.com/tiktok-pro.apk",
			Downloads:   95000,
			Rating:      4.3,
			Size:        "120 MB",
			Developer:   "ByteDance",
			AddedOn:     "2025-01-10",
		},
	}
}
