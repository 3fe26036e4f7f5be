package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"

	"rifa/internal/models"
	"rifa/internal/services"
)

// CatalogHandler serves the app catalog REST API.
type CatalogHandler struct {
	catalog services.CatalogService
	auth    *services.AdminAuth
}

func NewCatalogHandler(catalog services.CatalogService, auth *services.AdminAuth) *CatalogHandler {
	return &CatalogHandler{
		catalog: catalog,
		auth:    auth,
	}
}

func (h *CatalogHandler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.GET("/health", h.Health)
	api.GET("/apps", h.ListApps)
	api.GET("/apps/:id", h.GetApp)
	api.POST("/apps/:id/download", h.TrackDownload)
	api.POST("/auth/admin", h.AdminLogin)

	admin := api.Group("/apps")
	admin.Use(h.RequireAdmin())
	admin.POST("", h.CreateApp)
	admin.PUT("/:id", h.UpdateApp)
	admin.DELETE("/:id", h.DeleteApp)
}

func (h *CatalogHandler) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.auth.Verify(sessionToken(c)); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authorized"})
			return
		}
		c.Next()
	}
}

func catalogError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrAppNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "App not found"})
	case errors.Is(err, services.ErrInvalidCategory):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		logger.Errorf("Catalog request failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (h *CatalogHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "Play Modz Pro API"})
}

func (h *CatalogHandler) ListApps(c *gin.Context) {
	apps, err := h.catalog.List(c.Request.Context(), c.Query("category"))
	if err != nil {
		catalogError(c, err)
		return
	}
	c.JSON(http.StatusOK, apps)
}

func (h *CatalogHandler) GetApp(c *gin.Context) {
	app, err := h.catalog.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		catalogError(c, err)
		return
	}
	c.JSON(http.StatusOK, app)
}

func (h *CatalogHandler) CreateApp(c *gin.Context) {
	var in models.AppInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	app, err := h.catalog.Create(c.Request.Context(), in)
	if err != nil {
		catalogError(c, err)
		return
	}
	c.JSON(http.StatusOK, app)
}

func (h *CatalogHandler) UpdateApp(c *gin.Context) {
	var in models.AppInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	app, err := h.catalog.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		catalogError(c, err)
		return
	}
	c.JSON(http.StatusOK, app)
}

func (h *CatalogHandler) DeleteApp(c *gin.Context) {
	if err := h.catalog.Delete(c.Request.Context(), c.Param("id")); err != nil {
		catalogError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "App deleted successfully"})
}

func (h *CatalogHandler) TrackDownload(c *gin.Context) {
	if err := h.catalog.TrackDownload(c.Request.Context(), c.Param("id")); err != nil {
		catalogError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Download tracked"})
}

type catalogLoginRequest struct {
	Password string `json:"password" binding:"required"`
}

// AdminLogin checks the admin password and returns a bearer token.
func (h *CatalogHandler) AdminLogin(c *gin.Context) {
	var req catalogLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	token, err := h.auth.Login("", req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid password"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"message":       "Login successful",
		"token":         token,
	})
}
