package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sciventures/bitmarket-gateway/internal/bitmarket"
	"github.com/sciventures/bitmarket-gateway/internal/config"
	"github.com/sciventures/bitmarket-gateway/internal/domain"
	"github.com/sciventures/bitmarket-gateway/internal/repo"
	"github.com/sciventures/bitmarket-gateway/internal/server"
	"github.com/sciventures/bitmarket-gateway/internal/service"
	"github.com/sciventures/bitmarket-gateway/internal/testutil"
)

const testSecret = "fedcba9876543210fedcba9876543210fedcba98"

type stubGateway struct{ code string }

func (s stubGateway) CreateButton(context.Context, bitmarket.Credentials, bitmarket.ButtonRequest) (string, error) {
	return s.code, nil
}

func TestWebhookEndpoint(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}

	gin.SetMode(gin.TestMode)
	db := testutil.NewTestDB(t)
	orders := repo.NewOrderRepo(db)
	settings := repo.NewSettingsRepo(db)
	ctx := context.Background()
	require.NoError(t, settings.Set(ctx, repo.SettingCallbackSecret, testSecret))
	require.NoError(t, settings.Set(ctx, repo.SettingAPIKey, "key-1"))
	require.NoError(t, settings.Set(ctx, repo.SettingAPISecret, "secret-1"))

	cfg := config.Config{
		BasePublicURL:   "https://shop.example.com",
		HostReturnURL:   "https://shop.example.com/checkout/received",
		CheckoutBaseURL: "https://bitmarket.com/checkouts",
	}
	callback := service.NewCallbackService(db, orders, settings, nil)
	checkout := service.NewCheckoutService(db, orders, settings, stubGateway{code: "c0de"}, cfg)
	router := server.NewRouter(cfg, checkout, callback, nil)

	post := func(secret, body string) *httptest.ResponseRecorder {
		target := "/gateway/bitmarket/callback"
		if secret != "" {
			target += "?callback_secret=" + url.QueryEscape(secret)
		}
		req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	t.Run("spoofed callback", func(t *testing.T) {
		testutil.InsertOrder(t, db, domain.Order{ID: "4001"})

		w := post("wrong", `{"order":{"custom":"4001","status":"completed"}}`)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "Spoofed callback", w.Body.String())
		assert.Equal(t, domain.OrderPending, testutil.OrderStatus(t, db, "4001"))
	})

	t.Run("payout acknowledged", func(t *testing.T) {
		w := post(testSecret, `{"payout":{"id":"p-1"}}`)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "Bitmarket Payout Callback Ignored", w.Body.String())
	})

	t.Run("unrecognized body", func(t *testing.T) {
		w := post(testSecret, `{"hello":"world"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Unrecognized Bitmarket Callback", w.Body.String())
	})

	t.Run("completed transition end to end", func(t *testing.T) {
		testutil.InsertOrder(t, db, domain.Order{ID: "A"})

		w := post(testSecret, `{"order":{"custom":"A","status":"Completed","id":"ext-1"}}`)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, domain.OrderCompleted, testutil.OrderStatus(t, db, "A"))
		assert.Equal(t, 1, testutil.NoteCount(t, db, "A"))

		// Redelivery: acknowledged, nothing reapplied.
		w = post(testSecret, `{"order":{"custom":"A","status":"Completed","id":"ext-1"}}`)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 1, testutil.NoteCount(t, db, "A"))
	})

	t.Run("canceled transition end to end", func(t *testing.T) {
		testutil.InsertOrder(t, db, domain.Order{ID: "B"})

		w := post(testSecret, `{"order":{"custom":"B","status":"canceled"}}`)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, domain.OrderFailed, testutil.OrderStatus(t, db, "B"))
	})

	t.Run("unknown order", func(t *testing.T) {
		w := post(testSecret, `{"order":{"custom":"ghost","status":"completed"}}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("checkout endpoint returns redirect", func(t *testing.T) {
		testutil.InsertOrder(t, db, domain.Order{ID: "4002"})

		req := httptest.NewRequest(http.MethodPost, "/gateway/bitmarket/checkout/4002", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var resp map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "success", resp["result"])
		assert.Equal(t, "https://bitmarket.com/checkouts/c0de", resp["redirect"])
	})

	t.Run("customer cancel return fails the order and rewrites order param", func(t *testing.T) {
		testutil.InsertOrder(t, db, domain.Order{ID: "4003", Key: "key-4003"})

		target := "/gateway/bitmarket/return?return_from_bitmarket=1&cancelled=1&order_key=key-4003&order=bitmarket-junk"
		req := httptest.NewRequest(http.MethodGet, target, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusSeeOther, w.Code)
		assert.Equal(t, domain.OrderFailed, testutil.OrderStatus(t, db, "4003"))

		loc, err := url.Parse(w.Header().Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, "/checkout/received", loc.Path)
		assert.Equal(t, "key-4003", loc.Query().Get("order"), "order param replaced by order_key")
		assert.Empty(t, loc.Query().Get("return_from_bitmarket"))
		assert.Empty(t, loc.Query().Get("order_key"))
	})

	t.Run("successful return leaves the order alone", func(t *testing.T) {
		testutil.InsertOrder(t, db, domain.Order{ID: "4004", Key: "key-4004"})

		req := httptest.NewRequest(http.MethodGet, "/gateway/bitmarket/return?return_from_bitmarket=1", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusSeeOther, w.Code)
		assert.Equal(t, domain.OrderPending, testutil.OrderStatus(t, db, "4004"))
	})

	t.Run("return without marker is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/gateway/bitmarket/return", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("secret accepted from form body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/gateway/bitmarket/callback",
			strings.NewReader("callback_secret="+url.QueryEscape(testSecret)))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		// Authentication passed; the body itself is not a recognized payload.
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Unrecognized Bitmarket Callback", w.Body.String())
	})
}
