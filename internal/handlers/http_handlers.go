package handlers

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"
	"github.com/shopspring/decimal"

	"rifa/internal/pix"
	"rifa/internal/services"
)

// Options carries the payment and session settings of the raffle handlers.
type Options struct {
	Merchant       pix.Merchant
	StaticPixCode  string
	WhatsAppNumber string
	SecureCookie   bool
}

// HTTPHandler holds the dependencies for the raffle pages and API.
type HTTPHandler struct {
	raffle    *services.RaffleService
	draws     *services.DrawService
	auth      *services.AdminAuth
	templates *template.Template
	opts      Options
	now       func() time.Time
}

// NewHTTPHandler creates a new HTTPHandler.
func NewHTTPHandler(raffle *services.RaffleService, draws *services.DrawService, auth *services.AdminAuth, templates *template.Template, opts Options) *HTTPHandler {
	return &HTTPHandler{
		raffle:    raffle,
		draws:     draws,
		auth:      auth,
		templates: templates,
		opts:      opts,
		now:       time.Now,
	}
}

// renderPage is a helper to perform a two-step template rendering.
// It first executes the content template into a buffer, then executes the main
// layout template, passing the rendered content as a variable.
func renderPage(c *gin.Context, templates *template.Template, status int, pageData gin.H, contentTmpl string) {
	buf := new(bytes.Buffer)
	if err := templates.ExecuteTemplate(buf, contentTmpl, pageData); err != nil {
		logger.Errorf("Error executing content template %s: %v", contentTmpl, err)
		c.String(http.StatusInternalServerError, "Template rendering error")
		return
	}
	pageData["PageContent"] = template.HTML(buf.String())

	page := new(bytes.Buffer)
	if err := templates.ExecuteTemplate(page, "layout.html", pageData); err != nil {
		logger.Errorf("Error executing layout template: %v", err)
		c.String(http.StatusInternalServerError, "Template rendering error")
		return
	}
	c.Data(status, "text/html; charset=utf-8", page.Bytes())
}

func (h *HTTPHandler) renderPage(c *gin.Context, status int, pageData gin.H, contentTmpl string) {
	renderPage(c, h.templates, status, pageData, contentTmpl)
}

// RegisterRoutes registers all the application routes.
func (h *HTTPHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/", h.ShowIndex)
	router.GET("/pagamento", h.ShowPayment)
	router.POST("/pagamento", h.SubmitPayment)

	api := router.Group("/api")
	api.GET("/rifa", h.GetRaffle)
	api.GET("/rifa/events", sseHeaders(), h.StreamEvents)
	api.POST("/selection", h.ToggleSelection)
	api.POST("/pix", h.CreatePix)
	api.GET("/pix/qr.png", h.PixQRCode)
	api.POST("/purchases", h.CreatePurchase)

	api.POST("/admin/login", h.AdminLogin)
	api.POST("/admin/logout", h.AdminLogout)

	admin := api.Group("/admin")
	admin.Use(h.RequireAdmin())
	admin.GET("/purchases", h.ListPurchases)
	admin.POST("/purchases/:id/confirm", h.ConfirmPurchase)
	admin.POST("/purchases/:id/cancel", h.CancelPurchase)
	admin.DELETE("/purchases/:id", h.DeletePurchase)
	admin.POST("/save", h.SaveAll)
	admin.GET("/stats", h.Stats)
	admin.GET("/export.csv", h.ExportPurchasesCSV)
	admin.POST("/draw", h.Draw)
	admin.GET("/draws", h.DrawHistory)
}

type gridCell struct {
	Number int
	Label  string
	State  string // available, selected, pending, sold
	Taken  bool
	Href   string
}

func formatNumbers(nums []int) string {
	labels := make([]string, len(nums))
	for i, n := range nums {
		labels[i] = fmt.Sprintf("%03d", n)
	}
	return strings.Join(labels, ", ")
}

// ShowIndex renders the ticket grid. The selection travels in the query
// string: selecionados holds the current picks and toggle flips one number.
func (h *HTTPHandler) ShowIndex(c *gin.Context) {
	snap := h.raffle.Snapshot()
	sel := h.raffle.NewSelection()
	for _, n := range services.SplitNumbers(c.Query("selecionados")) {
		if !sel.IsSelected(n) {
			sel.Toggle(n)
		}
	}
	if n, err := strconv.Atoi(c.Query("toggle")); err == nil {
		sel.Toggle(n)
	}

	sold := make(map[int]bool, len(snap.SoldNumbers))
	for _, n := range snap.SoldNumbers {
		sold[n] = true
	}
	selected := services.JoinNumbers(sel.Numbers())
	cells := make([]gridCell, 0, snap.TotalNumbers)
	for n := 1; n <= snap.TotalNumbers; n++ {
		cell := gridCell{Number: n, Label: fmt.Sprintf("%03d", n), State: "available"}
		switch {
		case sold[n]:
			cell.State, cell.Taken = "sold", true
		case sel.IsTaken(n):
			cell.State, cell.Taken = "pending", true
		case sel.IsSelected(n):
			cell.State = "selected"
		}
		if !cell.Taken {
			q := url.Values{}
			if selected != "" {
				q.Set("selecionados", selected)
			}
			q.Set("toggle", strconv.Itoa(n))
			cell.Href = "/?" + q.Encode()
		}
		cells = append(cells, cell)
	}

	data := gin.H{
		"title":        "Escolha seus números",
		"Cells":        cells,
		"TotalNumbers": snap.TotalNumbers,
		"Available":    snap.Available,
		"Prize":        snap.Prize.StringFixed(2),
		"UnitPrice":    snap.UnitPrice.StringFixed(2),
		"Count":        sel.Count(),
		"Selected":     formatNumbers(sel.Numbers()),
		"Total":        sel.Total().StringFixed(2),
		"LastSaved":    "",
		"PayURL":       "",
	}
	if !snap.LastSaved.IsZero() {
		data["LastSaved"] = snap.LastSaved.Local().Format("02/01/2006 15:04:05")
	}
	if sel.Count() > 0 {
		data["PayURL"] = "/pagamento?" + sel.PaymentQuery()
	}
	h.renderPage(c, http.StatusOK, data, "index.html")
}

// pixCode returns the copy-and-paste code for an amount.
func (h *HTTPHandler) pixCode(amount decimal.Decimal) (string, error) {
	if h.opts.StaticPixCode != "" {
		return h.opts.StaticPixCode, nil
	}
	return pix.Payload{
		Merchant: h.opts.Merchant,
		Amount:   amount,
		TxID:     pix.NewTxID(h.now()),
	}.Build()
}

func qrURL(code string) string {
	return "/api/pix/qr.png?code=" + url.QueryEscape(code)
}

func (h *HTTPHandler) paymentData(numbers []int) (gin.H, error) {
	total := h.raffle.Total(len(numbers))
	data := gin.H{
		"title":        "Pagamento",
		"Numbers":      formatNumbers(numbers),
		"NumbersParam": services.JoinNumbers(numbers),
		"Total":        total.StringFixed(2),
		"Result":       "",
		"Purchase":     nil,
		"Error":        "",
		"Name":         "",
		"Phone":        "",
	}
	if len(numbers) == 0 {
		return data, nil
	}
	code, err := h.pixCode(total)
	if err != nil {
		return nil, err
	}
	data["PixCode"] = code
	data["QRURL"] = qrURL(code)
	return data, nil
}

// ShowPayment renders the payment page for the numbers in the query. The
// total is recomputed from the unit price; the query total is display-only.
func (h *HTTPHandler) ShowPayment(c *gin.Context) {
	pq := services.ParsePaymentQuery(c.Request.URL.Query())
	data, err := h.paymentData(pq.Numbers)
	if err != nil {
		logger.Errorf("Failed to build PIX code: %v", err)
		c.String(http.StatusInternalServerError, "Error building PIX code")
		return
	}
	data["Result"] = string(pq.Result)
	h.renderPage(c, http.StatusOK, data, "payment.html")
}

// SubmitPayment handles the "already paid" form.
func (h *HTTPHandler) SubmitPayment(c *gin.Context) {
	numbers := services.SplitNumbers(c.PostForm("numeros"))
	req := services.CheckoutRequest{
		Name:    c.PostForm("nome"),
		Phone:   c.PostForm("telefone"),
		Numbers: numbers,
	}

	p, err := h.raffle.Checkout(c.Request.Context(), req)
	if err != nil {
		data, buildErr := h.paymentData(numbers)
		if buildErr != nil {
			logger.Errorf("Failed to build PIX code: %v", buildErr)
			c.String(http.StatusInternalServerError, "Error building PIX code")
			return
		}
		data["Error"] = err.Error()
		data["Name"] = req.Name
		data["Phone"] = req.Phone
		h.renderPage(c, checkoutStatus(err), data, "payment.html")
		return
	}

	data := gin.H{
		"title":       "Pedido registrado",
		"Purchase":    p,
		"Numbers":     formatNumbers(p.Numbers),
		"Total":       p.Total.StringFixed(2),
		"Result":      "",
		"WhatsAppURL": "",
	}
	if h.opts.WhatsAppNumber != "" {
		data["WhatsAppURL"] = services.WhatsAppURL(h.opts.WhatsAppNumber, p)
	}
	h.renderPage(c, http.StatusCreated, data, "payment.html")
}
