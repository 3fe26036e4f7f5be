package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"

	"rifa/internal/pix"
	"rifa/internal/securestore"
	"rifa/internal/services"
)

func sseHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")
		c.Next()
	}
}

// checkoutStatus maps checkout errors to HTTP status codes.
func checkoutStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrNumberTaken):
		return http.StatusConflict
	case errors.Is(err, services.ErrCustomerRequired),
		errors.Is(err, services.ErrNumbersRequired),
		errors.Is(err, services.ErrNumberOutOfRange),
		errors.Is(err, services.ErrDuplicateNumber):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *HTTPHandler) GetRaffle(c *gin.Context) {
	c.JSON(http.StatusOK, h.raffle.Snapshot())
}

// StreamEvents pushes a snapshot on connect and on every change until the
// client goes away.
func (h *HTTPHandler) StreamEvents(c *gin.Context) {
	events, unsubscribe := h.raffle.Events().Subscribe()
	defer unsubscribe()

	c.SSEvent("snapshot", h.raffle.Snapshot())
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case snap, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent("snapshot", snap)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

type selectionRequest struct {
	Selected []int `json:"selected"`
	Toggle   int   `json:"toggle"`
}

// ToggleSelection applies one toggle to a client-held selection.
func (h *HTTPHandler) ToggleSelection(c *gin.Context) {
	var req selectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad json"})
		return
	}
	sel := h.raffle.NewSelection()
	for _, n := range req.Selected {
		if !sel.IsSelected(n) {
			sel.Toggle(n)
		}
	}
	changed := sel.Toggle(req.Toggle)
	c.JSON(http.StatusOK, gin.H{
		"selected": sel.Numbers(),
		"changed":  changed,
		"total":    sel.Total(),
	})
}

type orderRequest struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Numbers []int  `json:"numbers"`
}

// CreatePix returns the PIX code for an order. Nothing is recorded.
func (h *HTTPHandler) CreatePix(c *gin.Context) {
	var req orderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad json"})
		return
	}
	if securestore.SanitizeInput(req.Name) == "" || securestore.SanitizeInput(req.Phone) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": services.ErrCustomerRequired.Error()})
		return
	}
	if len(req.Numbers) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": services.ErrNumbersRequired.Error()})
		return
	}

	total := h.raffle.Total(len(req.Numbers))
	code, err := h.pixCode(total)
	if err != nil {
		logger.Errorf("Failed to build PIX code: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build pix code"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":   code,
		"total":  total,
		"qr_url": qrURL(code),
	})
}

func (h *HTTPHandler) PixQRCode(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code is required"})
		return
	}
	png, err := pix.QRCode(code, 256)
	if err != nil {
		logger.Errorf("Failed to render QR code: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render qr code"})
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// CreatePurchase records the order once the buyer says they paid.
func (h *HTTPHandler) CreatePurchase(c *gin.Context) {
	var req orderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad json"})
		return
	}
	p, err := h.raffle.Checkout(c.Request.Context(), services.CheckoutRequest{
		Name:    req.Name,
		Phone:   req.Phone,
		Numbers: req.Numbers,
	})
	if err != nil {
		status := checkoutStatus(err)
		msg := err.Error()
		if status == http.StatusInternalServerError {
			msg = "failed to store purchase"
		}
		c.JSON(status, gin.H{"error": msg})
		return
	}

	resp := gin.H{"purchase": p, "whatsapp_url": ""}
	if h.opts.WhatsAppNumber != "" {
		resp["whatsapp_url"] = services.WhatsAppURL(h.opts.WhatsAppNumber, p)
	}
	c.JSON(http.StatusCreated, resp)
}
