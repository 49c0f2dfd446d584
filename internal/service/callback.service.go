package service

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/sciventures/bitmarket-gateway/internal/cache"
	"github.com/sciventures/bitmarket-gateway/internal/domain"
	"github.com/sciventures/bitmarket-gateway/internal/repo"
)

// Response bodies are fixed strings; Bitmarket only acts on the status code.
const (
	bodySpoofed       = "Spoofed callback"
	bodyPayoutIgnored = "Bitmarket Payout Callback Ignored"
	bodyUnrecognized  = "Unrecognized Bitmarket Callback"
	bodyUnknownOrder  = "Unknown Order"

	notePaymentCompleted  = "Bitmarket payment completed"
	notePaymentCancelled  = "Bitmarket reports payment cancelled."
	noteCustomerCancelled = "Customer cancelled bitmarket payment"
)

// CallbackService is the single entry point for inbound Bitmarket traffic:
// it authenticates the shared secret, classifies the payload and applies the
// order transition at most once per semantic event.
type CallbackService interface {
	HandleNotification(ctx context.Context, secret string, body []byte) (int, string)
	HandleCustomerReturn(ctx context.Context, orderKey string, cancelled bool) error
}

type callbackService struct {
	db        *sql.DB
	orders    repo.OrderRepo
	settings  repo.SettingsRepo
	completed cache.CompletionCache
}

// NewCallbackService wires the dispatcher. completed may be nil; the Redis
// fast path is optional and the status CAS in the repo is authoritative.
func NewCallbackService(
	db *sql.DB,
	orders repo.OrderRepo,
	settings repo.SettingsRepo,
	completed cache.CompletionCache,
) CallbackService {
	return &callbackService{
		db:        db,
		orders:    orders,
		settings:  settings,
		completed: completed,
	}
}

func (s *callbackService) HandleNotification(ctx context.Context, secret string, body []byte) (int, string) {
	// Authentication happens before any parsing or order lookup.
	configured, err := s.settings.Get(ctx, repo.SettingCallbackSecret)
	if err != nil {
		log.Printf("callback: read secret: %v", err)
		return http.StatusInternalServerError, ""
	}
	if configured == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(configured)) != 1 {
		log.Printf("callback: secret mismatch, possible spoofed callback")
		return http.StatusUnauthorized, bodySpoofed
	}

	var notification domain.Notification
	err = json.Unmarshal(body, &notification)
	hasPayout := len(notification.Payout) > 0 && string(notification.Payout) != "null"
	if err != nil || (notification.Order == nil && !hasPayout) {
		return http.StatusBadRequest, bodyUnrecognized
	}

	if notification.Order == nil {
		// Payouts are out of scope; 200 stops Bitmarket from redelivering.
		log.Printf("callback: payout notification ignored")
		return http.StatusOK, bodyPayoutIgnored
	}

	event := notification.Order

	order, err := s.orders.FindById(ctx, event.Custom)
	if err != nil {
		log.Printf("callback: find order %q: %v", event.Custom, err)
		return http.StatusInternalServerError, ""
	}
	if order == nil {
		log.Printf("callback: bitmarket referenced unknown order %q", event.Custom)
		return http.StatusNotFound, bodyUnknownOrder
	}

	// Metadata is recorded on every order event; overwriting the same values
	// on redelivery is harmless.
	if err := s.orders.SetBitmarketMeta(ctx, order.ID, event.ID, event.PayerEmail()); err != nil {
		log.Printf("callback: record metadata for order %s: %v", order.ID, err)
		return http.StatusInternalServerError, ""
	}

	switch strings.ToLower(event.Status) {
	case "completed":
		if err := s.applyCompleted(ctx, order); err != nil {
			log.Printf("callback: complete order %s: %v", order.ID, err)
			return http.StatusInternalServerError, ""
		}
	case "canceled":
		if err := s.applyCancelled(ctx, order.ID); err != nil {
			log.Printf("callback: cancel order %s: %v", order.ID, err)
			return http.StatusInternalServerError, ""
		}
	default:
		// Bitmarket sends statuses this service does not model; ignore them.
	}

	return http.StatusOK, ""
}

func (s *callbackService) applyCompleted(ctx context.Context, order *domain.Order) error {
	if s.completed != nil {
		done, err := s.completed.AlreadyCompleted(ctx, order.ID)
		if err != nil {
			// Cache trouble never blocks the callback; the CAS decides.
			log.Printf("callback: completion cache: %v", err)
		} else if done {
			return nil
		}
	}

	if order.Status == domain.OrderCompleted {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	applied, err := s.orders.MarkPaid(ctx, tx, order.ID)
	if err != nil {
		return err
	}
	if !applied {
		// A concurrent delivery won the race; nothing left to do.
		return nil
	}

	if err := s.orders.AddNote(ctx, tx, order.ID, notePaymentCompleted); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	if s.completed != nil {
		if err := s.completed.MarkCompleted(ctx, order.ID); err != nil {
			log.Printf("callback: completion cache: %v", err)
		}
	}

	log.Printf("callback: order %s marked paid", order.ID)
	return nil
}

// applyCancelled is deliberately not guarded by the current status: Bitmarket
// may cancel an order that already failed, and the transition is reapplied.
func (s *callbackService) applyCancelled(ctx context.Context, orderID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.orders.UpdateStatus(ctx, tx, orderID, domain.OrderFailed); err != nil {
		return err
	}
	if err := s.orders.AddNote(ctx, tx, orderID, notePaymentCancelled); err != nil {
		return err
	}

	return tx.Commit()
}

// HandleCustomerReturn covers the browser coming back from Bitmarket. Only a
// cancelled return mutates anything, and never an already completed order.
func (s *callbackService) HandleCustomerReturn(ctx context.Context, orderKey string, cancelled bool) error {
	if !cancelled {
		return nil
	}

	order, err := s.orders.FindByKey(ctx, orderKey)
	if err != nil {
		return err
	}
	if order == nil {
		return domain.ErrUnknownOrder
	}
	if order.Status == domain.OrderCompleted {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.orders.UpdateStatus(ctx, tx, order.ID, domain.OrderFailed); err != nil {
		return err
	}
	if err := s.orders.AddNote(ctx, tx, order.ID, noteCustomerCancelled); err != nil {
		return err
	}

	return tx.Commit()
}
