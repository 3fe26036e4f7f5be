package repository

import (
	"context"

	"gorm.io/gorm"

	"rifa/internal/models"
)

type AppRepository interface {
	List(ctx context.Context, category string) ([]*models.App, error)
	Get(ctx context.Context, id string) (*models.App, error)
	Create(ctx context.Context, app *models.App) error
	Update(ctx context.Context, app *models.App) error
	Delete(ctx context.Context, id string) error
	IncrementDownloads(ctx context.Context, id string) error
	Count(ctx context.Context) (int64, error)
}

type appRepoImpl struct {
	db *gorm.DB
}

func NewAppRepository(db *gorm.DB) AppRepository {
	return &appRepoImpl{
		db: db,
	}
}

func (r *appRepoImpl) List(ctx context.Context, category string) ([]*models.App, error) {
	var apps []*models.App
	q := r.db.WithContext(ctx).Order("downloads DESC")
	if category != "" {
		q = q.Where("category = ?", category)
	}
	if err := q.Find(&apps).Error; err != nil {
		return nil, err
	}
	return apps, nil
}

func (r *appRepoImpl) Get(ctx context.Context, id string) (*models.App, error) {
	var app models.App
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&app).Error
	if err != nil {
		return nil, err
	}
	return &app, nil
}

func (r *appRepoImpl) Create(ctx context.Context, app *models.App) error {
	return r.db.WithContext(ctx).Create(app).Error
}

// Update overwrites the editable fields; downloads and created_at are kept.
func (r *appRepoImpl) Update(ctx context.Context, app *models.App) error {
	result := r.db.WithContext(ctx).Model(&models.App{}).
		Where("id = ?", app.ID).
		Updates(map[string]interface{}{
			"name":        app.Name,
			"description": app.Description,
			"version":     app.Version,
			"category":    app.Category,
			"icon_url":    app.IconURL,
			"apk_url":     app.ApkURL,
			"rating":      app.Rating,
			"size":        app.Size,
			"developer":   app.Developer,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// mysql reports changed rows, so an unchanged form also lands here
		if _, err := r.Get(ctx, app.ID); err != nil {
			return err
		}
	}
	return nil
}

func (r *appRepoImpl) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.App{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *appRepoImpl) IncrementDownloads(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Model(&models.App{}).
		Where("id = ?", id).
		UpdateColumn("downloads", gorm.Expr("downloads + ?", 1))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *appRepoImpl) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.App{}).Count(&count).Error
	return count, err
}
