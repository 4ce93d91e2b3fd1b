package order

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"finnbourse.org/internal/policy"
)

// Side is the direction of the instruction.
type Side string

const (
	SideAchat Side = "achat"
	SideVente Side = "vente"
)

// MarketType distinguishes primary-market subscriptions from secondary
// trading.
type MarketType string

const (
	MarketPrimaire   MarketType = "primaire"
	MarketSecondaire MarketType = "secondaire"
)

// PriceCondition constrains execution price.
type PriceCondition string

const (
	PriceLimite  PriceCondition = "a-cours-limite"
	PriceAuMieux PriceCondition = "au-mieux"
)

// TimeCondition constrains order lifetime.
type TimeCondition string

const (
	TimeJour       TimeCondition = "jour"
	TimeDuree      TimeCondition = "a-duree-limitee"
	TimeRevocation TimeCondition = "a-revocation"
)

// StatusChange is one audit-trail entry: who moved the order, when, and
// along which edge. Rejections carry the optional reason.
type StatusChange struct {
	ID      string      `json:"id"`
	From    Status      `json:"from"`
	To      Status      `json:"to"`
	ActorID string      `json:"actor_id"`
	Role    policy.Role `json:"role"`
	Reason  string      `json:"reason,omitempty"`
	At      time.Time   `json:"at"`
}

// Order is a buy/sell instruction moving through the validation workflow.
// Version is the optimistic-concurrency counter: every applied transition
// increments it, and a transition attempt against a stale version fails.
type Order struct {
	ID             string         `json:"id"`
	SecurityID     string         `json:"security_id"`
	ClientID       string         `json:"client_id"`
	Side           Side           `json:"side"`
	MarketType     MarketType     `json:"market_type"`
	Quantity       int64          `json:"quantity"`
	Price          int64          `json:"price,omitempty"` // minor units, limit orders only
	PriceCondition PriceCondition `json:"price_condition"`
	TimeCondition  TimeCondition  `json:"time_condition"`
	ValidUntil     time.Time      `json:"valid_until,omitempty"` // zero means unlimited validity
	Status         Status         `json:"status"`
	CreatedBy      string         `json:"created_by"`
	CreatedByRole  policy.Role    `json:"created_by_role"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	Version        uint64         `json:"version"`
	Trail          []StatusChange `json:"trail,omitempty"`
}

// CreateRequest carries the attributes of a new order.
type CreateRequest struct {
	SecurityID     string
	ClientID       string
	Side           Side
	MarketType     MarketType
	Quantity       int64
	Price          int64
	PriceCondition PriceCondition
	TimeCondition  TimeCondition
	ValidUntil     time.Time
}

var (
	ErrNotFound          = errors.New("order: not found")
	ErrInvalidInput      = errors.New("order: invalid input")
	ErrIllegalTransition = errors.New("order: illegal transition")
	ErrStaleVersion      = errors.New("order: stale version")
	ErrForbidden         = errors.New("order: role not permitted")
)

// Validate checks the order invariants that hold regardless of workflow
// position.
func (r CreateRequest) Validate() error {
	if strings.TrimSpace(r.SecurityID) == "" {
		return fmt.Errorf("%w: security reference is required", ErrInvalidInput)
	}
	if strings.TrimSpace(r.ClientID) == "" {
		return fmt.Errorf("%w: client reference is required", ErrInvalidInput)
	}
	switch r.Side {
	case SideAchat, SideVente:
	default:
		return fmt.Errorf("%w: unknown side %q", ErrInvalidInput, r.Side)
	}
	switch r.MarketType {
	case MarketPrimaire, MarketSecondaire:
	default:
		return fmt.Errorf("%w: unknown market type %q", ErrInvalidInput, r.MarketType)
	}
	if r.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be > 0", ErrInvalidInput)
	}
	switch r.PriceCondition {
	case PriceLimite:
		if r.Price <= 0 {
			return fmt.Errorf("%w: limit orders require a price > 0", ErrInvalidInput)
		}
	case PriceAuMieux:
		if r.Price != 0 {
			return fmt.Errorf("%w: market orders must not carry a price", ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: unknown price condition %q", ErrInvalidInput, r.PriceCondition)
	}
	switch r.TimeCondition {
	case TimeJour:
		// A day order cannot pair with an unlimited validity.
		if r.ValidUntil.IsZero() {
			return fmt.Errorf("%w: a day time condition requires a validity date", ErrInvalidInput)
		}
	case TimeDuree:
		if r.ValidUntil.IsZero() {
			return fmt.Errorf("%w: a limited-duration order requires a validity date", ErrInvalidInput)
		}
	case TimeRevocation:
	default:
		return fmt.Errorf("%w: unknown time condition %q", ErrInvalidInput, r.TimeCondition)
	}
	return nil
}
