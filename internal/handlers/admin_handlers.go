package handlers

import (
	"encoding/csv"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"

	"rifa/internal/models"
	"rifa/internal/services"
)

const adminCookie = "rifa_admin"

// sessionToken reads the admin token from the cookie or a bearer header.
func sessionToken(c *gin.Context) string {
	if tok, err := c.Cookie(adminCookie); err == nil && tok != "" {
		return tok
	}
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func (h *HTTPHandler) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.auth.Verify(sessionToken(c)); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authorized"})
			return
		}
		c.Next()
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *HTTPHandler) AdminLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad json"})
		return
	}
	form := &services.LoginForm{Username: req.Username, Password: req.Password}
	if !form.Submit(h.auth) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": form.Error})
		return
	}
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(adminCookie, form.Token, int(h.auth.TTL().Seconds()), "/", "", h.opts.SecureCookie, true)
	c.JSON(http.StatusOK, gin.H{"ok": true, "token": form.Token})
}

func (h *HTTPHandler) AdminLogout(c *gin.Context) {
	c.SetCookie(adminCookie, "", -1, "/", "", h.opts.SecureCookie, true)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *HTTPHandler) ListPurchases(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"purchases": h.raffle.Purchases(c.Query("q")),
		"unsaved":   h.raffle.HasUnsavedChanges(),
	})
}

func (h *HTTPHandler) updateStatus(c *gin.Context, status models.PurchaseStatus) {
	p, err := h.raffle.UpdateStatus(c.Param("id"), status)
	switch {
	case errors.Is(err, services.ErrPurchaseNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, p)
	}
}

func (h *HTTPHandler) ConfirmPurchase(c *gin.Context) {
	h.updateStatus(c, models.StatusConfirmed)
}

func (h *HTTPHandler) CancelPurchase(c *gin.Context) {
	h.updateStatus(c, models.StatusCancelled)
}

func (h *HTTPHandler) DeletePurchase(c *gin.Context) {
	if err := h.raffle.DeletePurchase(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// SaveAll writes the in-memory state over whatever is stored.
func (h *HTTPHandler) SaveAll(c *gin.Context) {
	data, err := h.raffle.Save(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"saved":     len(data.Purchases),
		"lastSaved": data.LastSaved,
	})
}

func (h *HTTPHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.raffle.Stats())
}

// ExportPurchasesCSV handles the request to download the purchases as a CSV file.
func (h *HTTPHandler) ExportPurchasesCSV(c *gin.Context) {
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", "attachment;filename=rifa_compras.csv")

	// Add BOM to ensure UTF-8 compatibility in Excel
	c.Writer.Write([]byte("\xef\xbb\xbf"))

	w := csv.NewWriter(c.Writer)
	if err := w.Write([]string{"ID", "Nome", "Telefone", "Números", "Total", "Status", "Data"}); err != nil {
		logger.Errorf("Error writing CSV header: %v", err)
		return
	}
	for _, p := range h.raffle.Purchases("") {
		row := []string{
			p.ID,
			p.CustomerName,
			p.CustomerPhone,
			formatNumbers(p.Numbers),
			p.Total.StringFixed(2),
			string(p.Status),
			p.CreatedAt.Local().Format("02/01/2006 15:04"),
		}
		if err := w.Write(row); err != nil {
			logger.Errorf("Error writing CSV row: %v", err)
			return
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		logger.Errorf("Error flushing CSV writer: %v", err)
	}
}

// Draw streams the draw animation as tick events followed by the result.
// Closing the connection cancels the draw. The stream only starts with the
// first event, so a refused draw still gets a plain 409.
func (h *HTTPHandler) Draw(c *gin.Context) {
	streaming := false
	startStream := func() {
		if streaming {
			return
		}
		streaming = true
		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")
	}

	result, err := h.draws.Draw(c.Request.Context(), func(n int) {
		startStream()
		c.SSEvent("tick", gin.H{"number": n})
		c.Writer.Flush()
	})
	switch {
	case errors.Is(err, services.ErrDrawInProgress) && !streaming:
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err == nil:
		startStream()
		c.SSEvent("result", result)
	case c.Request.Context().Err() != nil:
		return
	case !streaming:
		logger.Errorf("Draw failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	default:
		c.SSEvent("error", gin.H{"error": err.Error()})
	}
	c.Writer.Flush()
}

func (h *HTTPHandler) DrawHistory(c *gin.Context) {
	history, err := h.draws.History(c.Request.Context())
	if err != nil {
		logger.Errorf("Failed to read draw history: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read history"})
		return
	}
	c.JSON(http.StatusOK, history)
}
