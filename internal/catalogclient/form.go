package catalogclient

import (
	"context"
	"net/http"

	"rifa/internal/models"
)

const defaultRating = 4.5

// Form is the shared add/edit form. Submitting creates an app unless an
// existing one is being edited.
type Form struct {
	client    *Client
	editingID string
	Input     models.AppInput
}

func (c *Client) NewForm() *Form {
	f := &Form{client: c}
	f.Reset()
	return f
}

func (f *Form) Reset() {
	rating := defaultRating
	f.editingID = ""
	f.Input = models.AppInput{
		Category: models.CategoryGames,
		Rating:   &rating,
	}
}

// StartEdit loads app into the form.
func (f *Form) StartEdit(app models.App) {
	rating := app.Rating
	f.editingID = app.ID
	f.Input = models.AppInput{
		Name:        app.Name,
		Description: app.Description,
		Version:     app.Version,
		Category:    app.Category,
		IconURL:     app.IconURL,
		ApkURL:      app.ApkURL,
		Size:        app.Size,
		Developer:   app.Developer,
		Rating:      &rating,
	}
}

func (f *Form) Editing() bool {
	return f.editingID != ""
}

// EditingID is the id of the app being edited, empty when adding.
func (f *Form) EditingID() string {
	return f.editingID
}

// Submit sends the form and, on success, stores the server's copy in the
// cache and resets the form.
func (f *Form) Submit(ctx context.Context) (*models.App, error) {
	if !f.client.IsAdmin() {
		return nil, ErrNotAuthenticated
	}
	var app models.App
	var err error
	if f.Editing() {
		err = f.client.do(ctx, http.MethodPut, "/api/apps/"+f.editingID, f.Input, &app)
	} else {
		err = f.client.do(ctx, http.MethodPost, "/api/apps", f.Input, &app)
	}
	if err != nil {
		return nil, err
	}
	f.client.upsertCached(&app)
	f.Reset()
	return &app, nil
}
