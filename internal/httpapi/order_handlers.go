package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"finnbourse.org/internal/audit"
	"finnbourse.org/internal/order"
	"finnbourse.org/internal/session"
)

type createOrderRequest struct {
	SecurityID     string     `json:"security_id"`
	ClientID       string     `json:"client_id"`
	Side           string     `json:"side"`
	MarketType     string     `json:"market_type"`
	Quantity       int64      `json:"quantity"`
	Price          int64      `json:"price"`
	PriceCondition string     `json:"price_condition"`
	TimeCondition  string     `json:"time_condition"`
	ValidUntil     *time.Time `json:"valid_until"`
}

type transitionRequest struct {
	Target  string `json:"target"`
	Reason  string `json:"reason"`
	Version uint64 `json:"version"`
}

func (a *API) createOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := session.ActorFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthenticated")
		return
	}
	var req createOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	createReq := order.CreateRequest{
		SecurityID:     req.SecurityID,
		ClientID:       req.ClientID,
		Side:           order.Side(req.Side),
		MarketType:     order.MarketType(req.MarketType),
		Quantity:       req.Quantity,
		Price:          req.Price,
		PriceCondition: order.PriceCondition(req.PriceCondition),
		TimeCondition:  order.TimeCondition(req.TimeCondition),
	}
	if req.ValidUntil != nil {
		createReq.ValidUntil = *req.ValidUntil
	}

	o, err := a.workflow.Create(r.Context(), createReq, actor.ID, actor.Role)
	if err != nil {
		handleOrderError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "order.create", map[string]any{
		"order_id":    o.ID,
		"security_id": o.SecurityID,
		"client_id":   o.ClientID,
	})

	w.Header().Set("Location", "/v1/orders/"+o.ID)
	writeJSON(w, http.StatusCreated, o)
}

func (a *API) listOrders(w http.ResponseWriter, r *http.Request) {
	f := order.Filter{ClientID: r.URL.Query().Get("client_id")}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := order.ParseStatus(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		f.Status = status
	}
	items, err := a.workflow.List(r.Context(), f)
	if err != nil {
		handleOrderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"as_of": time.Now().UTC(),
	})
}

func (a *API) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := a.workflow.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleOrderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (a *API) orderHistory(w http.ResponseWriter, r *http.Request) {
	trail, err := a.workflow.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleOrderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": trail})
}

func (a *API) transitionOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := session.ActorFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthenticated")
		return
	}
	var req transitionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	target, err := order.ParseStatus(req.Target)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	id := chi.URLParam(r, "id")
	o, err := a.workflow.AttemptTransition(r.Context(), id, target, actor.ID, actor.Role, req.Reason, req.Version)
	if err != nil {
		handleOrderError(w, r, err)
		return
	}

	event := "order.transition"
	if order.IsRejection(target) {
		event = "order.reject"
	}
	fields := map[string]any{
		"order_id": o.ID,
		"from":     string(o.Trail[len(o.Trail)-1].From),
		"to":       string(target),
		"version":  o.Version,
	}
	if req.Reason != "" {
		fields["reason"] = req.Reason
	}
	_ = audit.LogEvent(r.Context(), event, fields)

	writeJSON(w, http.StatusOK, o)
}

func handleOrderError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, order.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, order.ErrForbidden):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, order.ErrIllegalTransition):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, order.ErrStaleVersion):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, order.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
