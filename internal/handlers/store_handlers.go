package handlers

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"

	"rifa/internal/catalogclient"
	"rifa/internal/models"
)

const storeAdminCookie = "store_admin"

type StoreOptions struct {
	SecureCookie bool
	FetchTimeout time.Duration
}

// StoreHandler serves the catalog store front. Listings come from the shared
// client cache; each visitor's admin token lives in a cookie.
type StoreHandler struct {
	client    *catalogclient.Client
	templates *template.Template
	opts      StoreOptions
}

func NewStoreHandler(client *catalogclient.Client, templates *template.Template, opts StoreOptions) *StoreHandler {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 10 * time.Second
	}
	return &StoreHandler{
		client:    client,
		templates: templates,
		opts:      opts,
	}
}

func (h *StoreHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/", h.ShowStore)
	router.POST("/download/:id", h.Download)
	router.POST("/admin/login", h.Login)
	router.POST("/admin/logout", h.Logout)
	router.POST("/admin/apps", h.SaveApp)
	router.POST("/admin/apps/:id/delete", h.DeleteApp)
}

type storeCategory struct {
	Value string
	Label string
}

var storeCategories = []storeCategory{
	{catalogclient.CategoryAll, "Todos"},
	{models.CategoryGames, "Jogos"},
	{models.CategoryApps, "Aplicativos"},
}

func (h *StoreHandler) session(c *gin.Context) *catalogclient.Client {
	tok, _ := c.Cookie(storeAdminCookie)
	return h.client.Session(tok)
}

func (h *StoreHandler) setSession(c *gin.Context, token string) {
	maxAge := 0
	if token == "" {
		maxAge = -1
	}
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(storeAdminCookie, token, maxAge, "/", "", h.opts.SecureCookie, true)
}

func (h *StoreHandler) withTimeout(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), h.opts.FetchTimeout)
}

// storeFailure maps client errors to a status and the message shown on the page.
func storeFailure(err error) (int, string) {
	var apiErr *catalogclient.APIError
	switch {
	case errors.Is(err, catalogclient.ErrNotAuthenticated), errors.Is(err, catalogclient.ErrUnauthorized):
		return http.StatusUnauthorized, "Sessão de administrador inválida. Entre novamente."
	case errors.Is(err, catalogclient.ErrNotFound):
		return http.StatusNotFound, "App não encontrado"
	case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnprocessableEntity:
		return http.StatusUnprocessableEntity, "Dados inválidos: confira nome, versão, categoria e link do APK"
	}
	return http.StatusBadGateway, "Não foi possível falar com o servidor"
}

func (h *StoreHandler) render(c *gin.Context, status int, sess *catalogclient.Client, form *catalogclient.Form, errMsg string) {
	category := c.DefaultQuery("categoria", catalogclient.CategoryAll)
	if form == nil {
		form = sess.NewForm()
	}
	rating := ""
	if form.Input.Rating != nil {
		rating = strconv.FormatFloat(*form.Input.Rating, 'f', -1, 64)
	}
	renderPage(c, h.templates, status, gin.H{
		"title":      "Play Modz Pro",
		"Apps":       sess.Apps(category),
		"Category":   category,
		"Categories": storeCategories,
		"Admin":      sess.IsAdmin(),
		"Form":       form.Input,
		"EditingID":  form.EditingID(),
		"Rating":     rating,
		"Error":      errMsg,
	}, "store.html")
}

// ShowStore refreshes the listing and renders the store. ?categoria filters,
// ?editar loads an app into the admin form.
func (h *StoreHandler) ShowStore(c *gin.Context) {
	ctx, cancel := h.withTimeout(c)
	defer cancel()

	errMsg := ""
	if err := h.client.Fetch(ctx); err != nil {
		logger.Errorf("Failed to fetch catalog: %v", err)
		errMsg = "Não foi possível atualizar a lista de apps"
	}

	sess := h.session(c)
	form := sess.NewForm()
	if id := c.Query("editar"); id != "" && sess.IsAdmin() {
		if app, ok := h.client.App(id); ok {
			form.StartEdit(app)
		}
	}
	h.render(c, http.StatusOK, sess, form, errMsg)
}

// Download tracks the download and sends the browser to the APK.
func (h *StoreHandler) Download(c *gin.Context) {
	ctx, cancel := h.withTimeout(c)
	defer cancel()

	apk, err := h.client.Download(ctx, c.Param("id"))
	if err != nil {
		logger.Errorf("Download of %s failed: %v", c.Param("id"), err)
		status, msg := storeFailure(err)
		h.render(c, status, h.session(c), nil, msg)
		return
	}
	c.Redirect(http.StatusSeeOther, apk)
}

func (h *StoreHandler) Login(c *gin.Context) {
	ctx, cancel := h.withTimeout(c)
	defer cancel()

	sess := h.client.Session("")
	if err := sess.AdminLogin(ctx, c.PostForm("senha")); err != nil {
		status, msg := storeFailure(err)
		if status == http.StatusUnauthorized {
			msg = "Senha incorreta"
		}
		h.render(c, status, sess, nil, msg)
		return
	}
	h.setSession(c, sess.Token())
	c.Redirect(http.StatusSeeOther, "/")
}

func (h *StoreHandler) Logout(c *gin.Context) {
	h.setSession(c, "")
	c.Redirect(http.StatusSeeOther, "/")
}

func formFloat(c *gin.Context, key string) *float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(c.PostForm(key)), 64)
	if err != nil {
		return nil
	}
	return &v
}

// SaveApp submits the add/edit form; a non-empty id field means edit.
func (h *StoreHandler) SaveApp(c *gin.Context) {
	ctx, cancel := h.withTimeout(c)
	defer cancel()

	sess := h.session(c)
	form := sess.NewForm()
	if id := c.PostForm("id"); id != "" {
		app, ok := h.client.App(id)
		if !ok {
			status, msg := storeFailure(catalogclient.ErrNotFound)
			h.render(c, status, sess, nil, msg)
			return
		}
		form.StartEdit(app)
	}
	form.Input.Name = c.PostForm("name")
	form.Input.Description = c.PostForm("description")
	form.Input.Version = c.PostForm("version")
	form.Input.Category = c.PostForm("category")
	form.Input.IconURL = c.PostForm("icon_url")
	form.Input.ApkURL = c.PostForm("apk_url")
	form.Input.Size = c.PostForm("size")
	form.Input.Developer = c.PostForm("developer")
	if rating := formFloat(c, "rating"); rating != nil {
		form.Input.Rating = rating
	}

	if _, err := form.Submit(ctx); err != nil {
		status, msg := storeFailure(err)
		if status == http.StatusUnauthorized {
			h.setSession(c, "")
			sess = h.client.Session("")
		}
		h.render(c, status, sess, form, msg)
		return
	}
	c.Redirect(http.StatusSeeOther, "/")
}

func (h *StoreHandler) DeleteApp(c *gin.Context) {
	ctx, cancel := h.withTimeout(c)
	defer cancel()

	sess := h.session(c)
	if err := sess.Delete(ctx, c.Param("id")); err != nil {
		status, msg := storeFailure(err)
		if status == http.StatusUnauthorized {
			h.setSession(c, "")
			sess = h.client.Session("")
		}
		h.render(c, status, sess, nil, msg)
		return
	}
	c.Redirect(http.StatusSeeOther, "/")
}
