package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rifa/internal/models"
	"rifa/internal/pix"
	"rifa/internal/repository"
	"rifa/internal/services"
	"rifa/internal/storage"
	"rifa/web"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type raffleFixture struct {
	router *gin.Engine
	raffle *services.RaffleService
	draws  *services.DrawService
}

func newRaffleFixture(t *testing.T) *raffleFixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := storage.OpenDB("sqlite", dsn, &storage.KVEntry{})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	repo := repository.NewRaffleRepository(storage.NewJSONStore(storage.NewGormKV(db)))
	raffle := services.NewRaffleService(repo, services.RaffleSettings{
		TotalNumbers: 200,
		UnitPrice:    decimal.RequireFromString("1.00"),
		Prize:        decimal.NewFromInt(400),
	}, nil)
	require.NoError(t, raffle.Load(context.Background()))
	draws := services.NewDrawService(raffle, repo, 3, time.Millisecond)
	auth, err := services.NewAdminAuth("rifa", "admin", "s3nha", "test-secret", time.Hour)
	require.NoError(t, err)
	templates, err := web.Templates()
	require.NoError(t, err)

	h := NewHTTPHandler(raffle, draws, auth, templates, Options{
		Merchant:       pix.Merchant{Key: "rifa@example.com", Name: "RIFA DA MALU", City: "SAO PAULO"},
		WhatsAppNumber: "5511999999999",
	})
	router := gin.New()
	h.RegisterRoutes(router)
	return &raffleFixture{router: router, raffle: raffle, draws: draws}
}

func (f *raffleFixture) do(method, target, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *raffleFixture) login(t *testing.T) *http.Cookie {
	t.Helper()
	w := f.do(http.MethodPost, "/api/admin/login", `{"username":"admin","password":"s3nha"}`)
	require.Equal(t, http.StatusOK, w.Code)
	for _, c := range w.Result().Cookies() {
		if c.Name == adminCookie {
			return c
		}
	}
	t.Fatal("login did not set the session cookie")
	return nil
}

type purchaseResponse struct {
	Purchase    models.Purchase `json:"purchase"`
	WhatsAppURL string          `json:"whatsapp_url"`
}

func (f *raffleFixture) buy(t *testing.T, name string, numbers ...int) models.Purchase {
	t.Helper()
	body, _ := json.Marshal(gin.H{"name": name, "phone": "(11) 99999-1111", "numbers": numbers})
	w := f.do(http.MethodPost, "/api/purchases", string(body))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp purchaseResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Purchase
}

func TestPages(t *testing.T) {
	f := newRaffleFixture(t)
	f.buy(t, "Maria", 7)

	t.Run("grid", func(t *testing.T) {
		w := f.do(http.MethodGet, "/", "")
		assert.Equal(t, http.StatusOK, w.Code)
		body := w.Body.String()
		assert.Contains(t, body, `<button class="cell pending" disabled>007</button>`)
		assert.Contains(t, body, "toggle=1")
		assert.Contains(t, body, "<strong>199</strong> de 200")
		assert.Contains(t, body, "Selecione pelo menos um número")
	})

	t.Run("grid toggles", func(t *testing.T) {
		w := f.do(http.MethodGet, "/?selecionados=1,2&toggle=3", "")
		assert.Equal(t, http.StatusOK, w.Code)
		body := w.Body.String()
		assert.Contains(t, body, `class="cell selected"`)
		assert.Contains(t, body, "R$ 3.00")
		assert.Contains(t, body, "/pagamento?numeros=1%2C2%2C3&amp;total=3.00")

		w = f.do(http.MethodGet, "/?selecionados=1,2&toggle=7", "")
		assert.Contains(t, w.Body.String(), "R$ 2.00", "taken numbers cannot be toggled")
	})

	t.Run("payment without numbers", func(t *testing.T) {
		w := f.do(http.MethodGet, "/pagamento", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "Nenhum número selecionado")
	})

	t.Run("payment with numbers", func(t *testing.T) {
		w := f.do(http.MethodGet, "/pagamento?numeros=1,2&total=999", "")
		assert.Equal(t, http.StatusOK, w.Code)
		body := w.Body.String()
		assert.Contains(t, body, "br.gov.bcb.pix")
		assert.Contains(t, body, "R$ 2.00", "total comes from the unit price")
		assert.Contains(t, body, "/api/pix/qr.png?code=")
	})

	t.Run("payment result", func(t *testing.T) {
		w := f.do(http.MethodGet, "/pagamento?numeros=1&total=1&success=true", "")
		assert.Contains(t, w.Body.String(), "Pagamento confirmado")
		w = f.do(http.MethodGet, "/pagamento?numeros=1&total=1&failure=true", "")
		assert.Contains(t, w.Body.String(), "O pagamento não foi concluído")
	})

	t.Run("payment form", func(t *testing.T) {
		form := url.Values{"numeros": {"10,11"}, "nome": {"Ana"}, "telefone": {"(11) 91111-0000"}}
		req := httptest.NewRequest(http.MethodPost, "/pagamento", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Contains(t, w.Body.String(), "Pedido registrado")
		assert.Contains(t, w.Body.String(), "https://wa.me/5511999999999")

		req = httptest.NewRequest(http.MethodPost, "/pagamento", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w = httptest.NewRecorder()
		f.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Contains(t, w.Body.String(), services.ErrNumberTaken.Error())
	})
}

func TestRaffleAPI(t *testing.T) {
	f := newRaffleFixture(t)

	t.Run("purchase", func(t *testing.T) {
		w := f.do(http.MethodPost, "/api/purchases", `{"name":"Maria","phone":"(11) 99999-1111","numbers":[1,5,12]}`)
		require.Equal(t, http.StatusCreated, w.Code)
		var resp purchaseResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, models.StatusPending, resp.Purchase.Status)
		assert.True(t, decimal.NewFromInt(3).Equal(resp.Purchase.Total))
		assert.True(t, strings.HasPrefix(resp.WhatsAppURL, "https://wa.me/5511999999999?text="))
	})

	t.Run("purchase errors", func(t *testing.T) {
		cases := map[string]int{
			`{"name":"Ana","phone":"1","numbers":[5]}`:   http.StatusConflict,
			`{"name":"","phone":"1","numbers":[6]}`:      http.StatusBadRequest,
			`{"name":"Ana","phone":"1","numbers":[]}`:    http.StatusBadRequest,
			`{"name":"Ana","phone":"1","numbers":[999]}`: http.StatusBadRequest,
			`not json`: http.StatusBadRequest,
		}
		for body, want := range cases {
			w := f.do(http.MethodPost, "/api/purchases", body)
			assert.Equal(t, want, w.Code, body)
		}
	})

	t.Run("snapshot", func(t *testing.T) {
		w := f.do(http.MethodGet, "/api/rifa", "")
		require.Equal(t, http.StatusOK, w.Code)
		var snap models.RaffleSnapshot
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
		assert.Equal(t, []int{1, 5, 12}, snap.PendingNumbers)
		assert.Equal(t, 197, snap.Available)
	})

	t.Run("selection", func(t *testing.T) {
		w := f.do(http.MethodPost, "/api/selection", `{"selected":[2,3],"toggle":5}`)
		require.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Selected []int           `json:"selected"`
			Changed  bool            `json:"changed"`
			Total    decimal.Decimal `json:"total"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, []int{2, 3}, resp.Selected)
		assert.False(t, resp.Changed)
		assert.True(t, decimal.NewFromInt(2).Equal(resp.Total))
	})

	t.Run("pix", func(t *testing.T) {
		w := f.do(http.MethodPost, "/api/pix", `{"name":"Ana","phone":"1","numbers":[20,21]}`)
		require.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Code  string `json:"code"`
			QRURL string `json:"qr_url"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, pix.Valid(resp.Code))
		assert.Contains(t, resp.Code, "54042.00")

		w = f.do(http.MethodGet, resp.QRURL, "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "image/png", w.Header().Get("Content-Type"))

		w = f.do(http.MethodPost, "/api/pix", `{"name":"","phone":"1","numbers":[20]}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAdminAPI(t *testing.T) {
	f := newRaffleFixture(t)
	maria := f.buy(t, "Maria Silva", 1, 5, 12)
	joao := f.buy(t, "João Santos", 150)

	t.Run("requires a session", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/admin/stats", "").Code)
		padded := f.do(http.MethodPost, "/api/admin/login", `{"username":" admin ","password":"s3nha"}`)
		assert.Equal(t, http.StatusUnauthorized, padded.Code)
		w := f.do(http.MethodPost, "/api/admin/login", `{"username":"admin","password":"wrong"}`)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), services.ErrInvalidCredentials.Error())
	})

	session := f.login(t)

	t.Run("bearer token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/admin/stats", nil)
		req.Header.Set("Authorization", "Bearer "+session.Value)
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("search", func(t *testing.T) {
		w := f.do(http.MethodGet, "/api/admin/purchases?q=150", "", session)
		require.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Purchases []models.Purchase `json:"purchases"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Purchases, 1)
		assert.Equal(t, joao.ID, resp.Purchases[0].ID)
	})

	t.Run("status transitions", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/admin/purchases/"+maria.ID+"/confirm", "", session).Code)
		assert.Equal(t, http.StatusConflict, f.do(http.MethodPost, "/api/admin/purchases/"+maria.ID+"/cancel", "", session).Code)
		assert.Equal(t, http.StatusNotFound, f.do(http.MethodPost, "/api/admin/purchases/nope/confirm", "", session).Code)
		assert.Equal(t, http.StatusNoContent, f.do(http.MethodDelete, "/api/admin/purchases/"+joao.ID, "", session).Code)
		assert.Equal(t, http.StatusNotFound, f.do(http.MethodDelete, "/api/admin/purchases/"+joao.ID, "", session).Code)
	})

	t.Run("stats", func(t *testing.T) {
		w := f.do(http.MethodGet, "/api/admin/stats", "", session)
		var stats models.RaffleStats
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
		assert.Equal(t, 3, stats.TotalSold)
		assert.Equal(t, 0, stats.TotalPending)
		assert.Equal(t, 197, stats.Available)
	})

	t.Run("save", func(t *testing.T) {
		assert.True(t, f.raffle.HasUnsavedChanges())
		w := f.do(http.MethodPost, "/api/admin/save", "", session)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"saved":1`)
		assert.False(t, f.raffle.HasUnsavedChanges())
	})

	t.Run("export", func(t *testing.T) {
		w := f.do(http.MethodGet, "/api/admin/export.csv", "", session)
		require.Equal(t, http.StatusOK, w.Code)
		body := w.Body.String()
		assert.True(t, strings.HasPrefix(body, "\xef\xbb\xbfID,Nome,Telefone"))
		assert.Contains(t, body, "Maria Silva")
		assert.Contains(t, body, `"001, 005, 012"`)
		assert.NotContains(t, body, "João")
	})

	t.Run("draw", func(t *testing.T) {
		w := f.do(http.MethodPost, "/api/admin/draw", "", session)
		require.Equal(t, http.StatusOK, w.Code)
		body := w.Body.String()
		assert.Equal(t, 3, strings.Count(body, "event:tick"))
		assert.Contains(t, body, "event:result")

		w = f.do(http.MethodGet, "/api/admin/draws", "", session)
		var history []models.DrawRecord
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
		assert.Len(t, history, 1)
	})

	t.Run("draw already running", func(t *testing.T) {
		ticked := make(chan struct{})
		hold := make(chan struct{})
		finished := make(chan struct{})
		go func() {
			defer close(finished)
			first := true
			f.draws.Draw(context.Background(), func(int) {
				if first {
					first = false
					close(ticked)
					<-hold
				}
			})
		}()
		<-ticked

		w := f.do(http.MethodPost, "/api/admin/draw", "", session)
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "application/json"))
		assert.Contains(t, w.Body.String(), services.ErrDrawInProgress.Error())

		close(hold)
		<-finished
	})

	t.Run("logout", func(t *testing.T) {
		w := f.do(http.MethodPost, "/api/admin/logout", "", session)
		require.Equal(t, http.StatusOK, w.Code)
		cookies := w.Result().Cookies()
		require.NotEmpty(t, cookies)
		assert.Equal(t, "", cookies[0].Value)
	})
}

func TestEventStream(t *testing.T) {
	f := newRaffleFixture(t)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/rifa/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream"))

	lines := bufio.NewScanner(resp.Body)
	next := func() string {
		for lines.Scan() {
			if strings.HasPrefix(lines.Text(), "data:") {
				return lines.Text()
			}
		}
		return ""
	}

	assert.Contains(t, next(), `"pendingNumbers":[]`)
	f.buy(t, "Ana", 9)
	assert.Contains(t, next(), `"pendingNumbers":[9]`)
}
