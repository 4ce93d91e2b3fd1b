package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"finnbourse.org/internal/ids"
	"finnbourse.org/internal/obs"
	"finnbourse.org/internal/policy"
)

// Filter narrows List results.
type Filter struct {
	Status   Status
	ClientID string
	Limit    int
}

// Store is the persistence contract for orders. ApplyTransition must be
// atomic: the status change and the version increment commit together, and
// an expectedVersion that no longer matches the stored row fails with
// ErrStaleVersion without touching the order.
type Store interface {
	Insert(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (Order, error)
	List(ctx context.Context, f Filter) ([]Order, error)
	ApplyTransition(ctx context.Context, id string, expectedVersion uint64, change StatusChange) (Order, error)
}

// Workflow enforces the order lifecycle: graph legality, role policy and
// optimistic concurrency. It is the single entry point for status changes.
type Workflow struct {
	store Store
	table *policy.Table
	now   func() time.Time
}

// WorkflowOption configures Workflow.
type WorkflowOption func(*Workflow)

// WithClock overrides the time source (tests).
func WithClock(fn func() time.Time) WorkflowOption {
	return func(w *Workflow) {
		if fn != nil {
			w.now = fn
		}
	}
}

// NewWorkflow constructs the workflow engine over a store and a loaded
// policy table.
func NewWorkflow(store Store, table *policy.Table, opts ...WorkflowOption) (*Workflow, error) {
	if store == nil {
		return nil, errors.New("order: store is required")
	}
	if table == nil {
		return nil, errors.New("order: policy table is required")
	}
	w := &Workflow{store: store, table: table, now: time.Now}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Create validates and persists a new order in the created state. Only
// roles allowed to modify the creation page may submit.
func (w *Workflow) Create(ctx context.Context, req CreateRequest, actorID string, role policy.Role) (Order, error) {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return Order{}, fmt.Errorf("%w: actor is required", ErrInvalidInput)
	}
	if !w.table.CanModify(role, policy.PageOrdreCreation) {
		return Order{}, fmt.Errorf("%w: role %s cannot submit orders", ErrForbidden, role)
	}
	if err := req.Validate(); err != nil {
		return Order{}, err
	}

	now := w.now().UTC()
	o := &Order{
		ID:             ids.New(),
		SecurityID:     strings.TrimSpace(req.SecurityID),
		ClientID:       strings.TrimSpace(req.ClientID),
		Side:           req.Side,
		MarketType:     req.MarketType,
		Quantity:       req.Quantity,
		Price:          req.Price,
		PriceCondition: req.PriceCondition,
		TimeCondition:  req.TimeCondition,
		ValidUntil:     req.ValidUntil,
		Status:         StatusCreated,
		CreatedBy:      actorID,
		CreatedByRole:  role,
		CreatedAt:      now,
		UpdatedAt:      now,
		Version:        1,
	}
	if err := w.store.Insert(ctx, o); err != nil {
		return Order{}, err
	}
	return *o, nil
}

// Get returns one order with its audit trail.
func (w *Workflow) Get(ctx context.Context, id string) (Order, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrInvalidInput)
	}
	return w.store.Get(ctx, id)
}

// List returns orders matching the filter.
func (w *Workflow) List(ctx context.Context, f Filter) ([]Order, error) {
	if f.Limit <= 0 || f.Limit > 1000 {
		f.Limit = 100
	}
	return w.store.List(ctx, f)
}

// History returns the status-change trail of an order.
func (w *Workflow) History(ctx context.Context, id string) ([]StatusChange, error) {
	o, err := w.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return o.Trail, nil
}

// AttemptTransition moves an order to target on behalf of the acting
// actor. The transition is applied only when (a) target is a direct
// successor of the current status, (b) the actor's role may modify the
// page owning the target stage, (c) the order is not terminal, and (d)
// expectedVersion still matches the stored order. Violations of (a)-(c)
// fail with ErrIllegalTransition; (d) fails with ErrStaleVersion and the
// caller must re-fetch before retrying.
func (w *Workflow) AttemptTransition(ctx context.Context, id string, target Status, actorID string, role policy.Role, reason string, expectedVersion uint64) (Order, error) {
	id = strings.TrimSpace(id)
	actorID = strings.TrimSpace(actorID)
	if id == "" || actorID == "" {
		return Order{}, fmt.Errorf("%w: order id and actor are required", ErrInvalidInput)
	}
	if _, ok := stageOwner[target]; !ok {
		return Order{}, fmt.Errorf("%w: unknown target status %q", ErrInvalidInput, target)
	}
	if expectedVersion == 0 {
		return Order{}, fmt.Errorf("%w: expected version is required", ErrInvalidInput)
	}

	cur, err := w.store.Get(ctx, id)
	if err != nil {
		return Order{}, err
	}

	if IsTerminal(cur.Status) {
		obs.ObserveOrderTransition(string(cur.Status), string(target), "terminal")
		return Order{}, fmt.Errorf("%w: order is terminal in state %s", ErrIllegalTransition, cur.Status)
	}
	if !IsSuccessor(cur.Status, target) {
		obs.ObserveOrderTransition(string(cur.Status), string(target), "illegal_edge")
		return Order{}, fmt.Errorf("%w: %s is not a successor of %s", ErrIllegalTransition, target, cur.Status)
	}
	if !w.table.CanModify(role, StageOwner(target)) {
		obs.ObserveOrderTransition(string(cur.Status), string(target), "role_denied")
		return Order{}, fmt.Errorf("%w: role %s does not own stage %s", ErrIllegalTransition, role, StageOwner(target))
	}

	change := StatusChange{
		ID:      ids.New(),
		From:    cur.Status,
		To:      target,
		ActorID: actorID,
		Role:    role,
		Reason:  strings.TrimSpace(reason),
		At:      w.now().UTC(),
	}

	updated, err := w.store.ApplyTransition(ctx, id, expectedVersion, change)
	if err != nil {
		if errors.Is(err, ErrStaleVersion) {
			obs.ObserveOrderTransition(string(cur.Status), string(target), "stale_version")
		}
		return Order{}, err
	}
	obs.ObserveOrderTransition(string(change.From), string(change.To), "applied")
	return updated, nil
}
