package actors

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("actors: not found")
	ErrAlreadyExists = errors.New("actors: already exists")
	ErrInvalidInput  = errors.New("actors: invalid input")
)

// Kind classifies a back-office counterparty record.
type Kind string

const (
	KindClient   Kind = "client"
	KindAgence   Kind = "agence"
	KindIOB      Kind = "iob"
	KindTCC      Kind = "tcc"
	KindEmetteur Kind = "emetteur"
)

const (
	StatusActive   = "active"
	StatusDisabled = "disabled"
)

// Record is an administered actor: a client, agency, broker (IOB),
// clearing entity (TCC) or issuer.
type Record struct {
	ID           string    `json:"id"`
	Kind         Kind      `json:"kind"`
	Code         string    `json:"code"`
	Name         string    `json:"name"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"-"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Update carries optional field changes; nil pointers leave fields untouched.
type Update struct {
	Name     *string
	Email    *string
	Password *string
	Status   *string
}

// Store describes persistence for actor records.
type Store interface {
	Create(ctx context.Context, rec *Record) error
	Find(ctx context.Context, id string) (*Record, error)
	FindByCode(ctx context.Context, kind Kind, code string) (*Record, error)
	ListByKind(ctx context.Context, kind Kind) ([]*Record, error)
	Update(ctx context.Context, rec *Record) error
	Delete(ctx context.Context, id string) error
}
