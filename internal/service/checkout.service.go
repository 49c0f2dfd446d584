package service

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/url"

	"github.com/sciventures/bitmarket-gateway/internal/bitmarket"
	"github.com/sciventures/bitmarket-gateway/internal/config"
	"github.com/sciventures/bitmarket-gateway/internal/domain"
	"github.com/sciventures/bitmarket-gateway/internal/repo"
)

// CheckoutService creates the payment request for a pending order and returns
// the URL the customer is redirected to.
type CheckoutService interface {
	BeginCheckout(ctx context.Context, orderID string) (string, error)
}

type checkoutService struct {
	db       *sql.DB
	orders   repo.OrderRepo
	settings repo.SettingsRepo
	gateway  bitmarket.Gateway
	cfg      config.Config
}

func NewCheckoutService(
	db *sql.DB,
	orders repo.OrderRepo,
	settings repo.SettingsRepo,
	gateway bitmarket.Gateway,
	cfg config.Config,
) CheckoutService {
	return &checkoutService{
		db:       db,
		orders:   orders,
		settings: settings,
		gateway:  gateway,
		cfg:      cfg,
	}
}

func (s *checkoutService) BeginCheckout(ctx context.Context, orderID string) (string, error) {
	enabled, err := s.settings.Get(ctx, repo.SettingEnabled)
	if err != nil {
		return "", err
	}
	if enabled == "no" {
		return "", domain.ErrNotConfigured
	}

	order, err := s.orders.FindById(ctx, orderID)
	if err != nil {
		return "", err
	}
	if order == nil {
		return "", domain.ErrUnknownOrder
	}
	if order.Status != domain.OrderPending {
		return "", domain.ErrOrderNotPending
	}

	apiKey, err := s.settings.Get(ctx, repo.SettingAPIKey)
	if err != nil {
		return "", err
	}
	apiSecret, err := s.settings.Get(ctx, repo.SettingAPISecret)
	if err != nil {
		return "", err
	}
	if apiKey == "" || apiSecret == "" {
		return "", domain.ErrNotConfigured
	}

	secret, err := s.settings.CallbackSecret(ctx)
	if err != nil {
		return "", err
	}

	notifyURL, err := addQueryArgs(s.cfg.BasePublicURL+"/gateway/bitmarket/callback", "callback_secret", secret)
	if err != nil {
		return "", err
	}
	successURL, err := addQueryArgs(s.cfg.HostReturnURL, "return_from_bitmarket", "1")
	if err != nil {
		return "", err
	}
	// The cancel URL carries order_key because Bitmarket mangles the host's
	// own order query parameter; the return handler restores it.
	cancelURL, err := addQueryArgs(s.cfg.HostReturnURL,
		"return_from_bitmarket", "1",
		"cancelled", "1",
		"order_key", order.Key,
	)
	if err != nil {
		return "", err
	}

	code, err := s.gateway.CreateButton(ctx, bitmarket.Credentials{APIKey: apiKey, APISecret: apiSecret}, bitmarket.ButtonRequest{
		Name:             "Order #" + order.ID,
		PriceString:      order.Amount,
		PriceCurrencyISO: order.Currency,
		CallbackURL:      notifyURL,
		Custom:           order.ID,
		SuccessURL:       successURL,
		CancelURL:        cancelURL,
	})
	if err != nil {
		log.Printf("checkout: create button for order %s: %v", order.ID, err)
		s.noteFailure(ctx, order.ID, err)
		return "", domain.ErrCreateCheckout
	}

	return s.cfg.CheckoutBaseURL + "/" + code, nil
}

// noteFailure records the upstream error on the order for the merchant.
// Best effort; the customer already gets the generic error either way.
func (s *checkoutService) noteFailure(ctx context.Context, orderID string, cause error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		log.Printf("checkout: note failure for order %s: %v", orderID, err)
		return
	}
	defer tx.Rollback()

	note := fmt.Sprintf("Error while processing bitmarket payment: %v", cause)
	if err := s.orders.AddNote(ctx, tx, orderID, note); err != nil {
		log.Printf("checkout: note failure for order %s: %v", orderID, err)
		return
	}
	if err := tx.Commit(); err != nil {
		log.Printf("checkout: note failure for order %s: %v", orderID, err)
	}
}

func addQueryArgs(base string, pairs ...string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for i := 0; i+1 < len(pairs); i += 2 {
		q.Set(pairs[i], pairs[i+1])
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
