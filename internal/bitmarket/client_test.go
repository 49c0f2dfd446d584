package bitmarket

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateButton(t *testing.T) {
	creds := Credentials{APIKey: "key-1", APISecret: "secret-1"}
	req := ButtonRequest{
		Name:             "Order #42",
		PriceString:      "19.99",
		PriceCurrencyISO: "USD",
		CallbackURL:      "https://shop.example.com/gateway/bitmarket/callback?callback_secret=s",
		Custom:           "42",
		SuccessURL:       "https://shop.example.com/ok",
		CancelURL:        "https://shop.example.com/cancel",
	}

	t.Run("signs the request and parses the code", func(t *testing.T) {
		var gotBody []byte
		var gotReq *http.Request
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotReq = r.Clone(context.Background())
			gotBody, _ = io.ReadAll(r.Body)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"success": true,
				"button":  map[string]string{"code": "c0ffee"},
			})
		}))
		defer srv.Close()

		client := NewClient(srv.URL)
		code, err := client.CreateButton(context.Background(), creds, req)
		require.NoError(t, err)
		assert.Equal(t, "c0ffee", code)

		require.NotNil(t, gotReq)
		assert.Equal(t, http.MethodPost, gotReq.Method)
		assert.Equal(t, "/buttons", gotReq.URL.Path)
		assert.Equal(t, "key-1", gotReq.Header.Get("ACCESS_KEY"))

		nonce := gotReq.Header.Get("ACCESS_NONCE")
		require.NotEmpty(t, nonce)
		expected := sign("secret-1", nonce+srv.URL+"/buttons"+string(gotBody))
		assert.Equal(t, expected, gotReq.Header.Get("ACCESS_SIGNATURE"))

		var wire map[string]ButtonRequest
		require.NoError(t, json.Unmarshal(gotBody, &wire))
		assert.Equal(t, req, wire["button"])
	})

	t.Run("rejection is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"success": false,
				"errors":  []string{"Price is invalid"},
			})
		}))
		defer srv.Close()

		client := NewClient(srv.URL)
		_, err := client.CreateButton(context.Background(), creds, req)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Price is invalid")
	})

	t.Run("breaker opens after consecutive upstream failures", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		client := NewClient(srv.URL)
		for i := 0; i < 5; i++ {
			_, err := client.CreateButton(context.Background(), creds, req)
			require.Error(t, err)
		}

		_, err := client.CreateButton(context.Background(), creds, req)
		assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	})
}
