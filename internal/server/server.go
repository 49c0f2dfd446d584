package server

import (
	"errors"
	"io"
	"log"
	"net/http"
	"net/url"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/sciventures/bitmarket-gateway/internal/config"
	"github.com/sciventures/bitmarket-gateway/internal/database"
	"github.com/sciventures/bitmarket-gateway/internal/domain"
	"github.com/sciventures/bitmarket-gateway/internal/service"
)

// genericCheckoutError is the only thing a customer ever sees when payment
// request creation fails; processor internals stay in the order notes.
const genericCheckoutError = "Sorry, but there was an error processing your order. Please try again or try a different payment method."

func New(
	cfg config.Config,
	checkout service.CheckoutService,
	callback service.CallbackService,
	health database.Service,
) *http.Server {
	return &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: NewRouter(cfg, checkout, callback, health),
	}
}

func NewRouter(
	cfg config.Config,
	checkout service.CheckoutService,
	callback service.CallbackService,
	health database.Service,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.Default())

	r.POST("/gateway/bitmarket/callback", handleCallback(callback))
	r.GET("/gateway/bitmarket/return", handleReturn(cfg, callback))
	r.POST("/gateway/bitmarket/checkout/:order_id", handleCheckout(checkout))
	if health != nil {
		r.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, health.Health())
		})
	}

	return r
}

func handleCallback(callback service.CallbackService) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.String(http.StatusBadRequest, "")
			return
		}

		secret := c.Query("callback_secret")
		if secret == "" && c.ContentType() == "application/x-www-form-urlencoded" {
			if vals, err := url.ParseQuery(string(body)); err == nil {
				secret = vals.Get("callback_secret")
			}
		}

		status, respBody := callback.HandleNotification(c.Request.Context(), secret, body)
		c.String(status, respBody)
	}
}

// handleReturn receives the customer coming back from Bitmarket and bounces
// them to the host storefront. Bitmarket appends its own order query
// parameter, which collides with the host's routing parameter of the same
// name, so it is dropped and order_key is substituted before the redirect.
func handleReturn(cfg config.Config, callback service.CallbackService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Query("return_from_bitmarket") == "" {
			c.String(http.StatusBadRequest, "")
			return
		}

		cancelled := c.Query("cancelled") != ""
		orderKey := c.Query("order_key")

		if cancelled {
			err := callback.HandleCustomerReturn(c.Request.Context(), orderKey, true)
			if errors.Is(err, domain.ErrUnknownOrder) {
				c.String(http.StatusNotFound, "")
				return
			}
			if err != nil {
				log.Printf("return: %v", err)
				c.String(http.StatusInternalServerError, "")
				return
			}
		}

		c.Redirect(http.StatusSeeOther, hostRedirect(cfg.HostReturnURL, c.Request.URL.Query(), orderKey))
	}
}

func hostRedirect(hostReturnURL string, incoming url.Values, orderKey string) string {
	target, err := url.Parse(hostReturnURL)
	if err != nil {
		return hostReturnURL
	}

	q := target.Query()
	for k, vs := range incoming {
		switch k {
		case "order", "return_from_bitmarket", "cancelled", "order_key":
			// Bitmarket's order param interferes with host routing.
		default:
			for _, v := range vs {
				q.Add(k, v)
			}
		}
	}
	if orderKey != "" {
		q.Set("order", orderKey)
	}
	target.RawQuery = q.Encode()
	return target.String()
}

func handleCheckout(checkout service.CheckoutService) gin.HandlerFunc {
	return func(c *gin.Context) {
		redirect, err := checkout.BeginCheckout(c.Request.Context(), c.Param("order_id"))
		switch {
		case err == nil:
			c.JSON(http.StatusOK, gin.H{"result": "success", "redirect": redirect})
		case errors.Is(err, domain.ErrUnknownOrder):
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		case errors.Is(err, domain.ErrOrderNotPending):
			c.JSON(http.StatusConflict, gin.H{"error": "order is not awaiting payment"})
		case errors.Is(err, domain.ErrNotConfigured):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": genericCheckoutError})
		case errors.Is(err, domain.ErrCreateCheckout):
			c.JSON(http.StatusBadGateway, gin.H{"error": genericCheckoutError})
		default:
			log.Printf("checkout: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": genericCheckoutError})
		}
	}
}
