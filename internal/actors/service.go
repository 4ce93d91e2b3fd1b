package actors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"finnbourse.org/internal/ids"
)

var validKinds = map[Kind]struct{}{
	KindClient:   {},
	KindAgence:   {},
	KindIOB:      {},
	KindTCC:      {},
	KindEmetteur: {},
}

// Service provides validated CRUD over the actor registry.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService constructs a Service.
func NewService(store Store) (*Service, error) {
	if store == nil {
		return nil, errors.New("actors: store is required")
	}
	return &Service{store: store, now: time.Now}, nil
}

// Create registers a new actor record. Service accounts (records with an
// email) get a bcrypt-hashed password.
func (s *Service) Create(ctx context.Context, kind Kind, code, name, email, password string) (Record, error) {
	if _, ok := validKinds[kind]; !ok {
		return Record{}, fmt.Errorf("%w: unknown actor kind %q", ErrInvalidInput, kind)
	}
	code = strings.TrimSpace(strings.ToUpper(code))
	if code == "" {
		return Record{}, fmt.Errorf("%w: code is required", ErrInvalidInput)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Record{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	email = strings.TrimSpace(strings.ToLower(email))
	if email != "" && !strings.Contains(email, "@") {
		return Record{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}

	if existing, err := s.store.FindByCode(ctx, kind, code); err == nil && existing != nil {
		return Record{}, fmt.Errorf("%w: %s %s", ErrAlreadyExists, kind, code)
	}

	now := s.now().UTC()
	rec := &Record{
		ID:        ids.New(),
		Kind:      kind,
		Code:      code,
		Name:      name,
		Email:     email,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if password != "" {
		hash, err := hashPassword(password)
		if err != nil {
			return Record{}, err
		}
		rec.PasswordHash = hash
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return Record{}, err
	}
	return *rec, nil
}

// Get returns one actor record.
func (s *Service) Get(ctx context.Context, id string) (Record, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Record{}, fmt.Errorf("%w: id is required", ErrInvalidInput)
	}
	rec, err := s.store.Find(ctx, id)
	if err != nil {
		return Record{}, err
	}
	return *rec, nil
}

// List returns every record of a kind.
func (s *Service) List(ctx context.Context, kind Kind) ([]Record, error) {
	if _, ok := validKinds[kind]; !ok {
		return nil, fmt.Errorf("%w: unknown actor kind %q", ErrInvalidInput, kind)
	}
	recs, err := s.store.ListByKind(ctx, kind)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(recs))
	for _, r := range recs {
		out = append(out, *r)
	}
	return out, nil
}

// Apply mutates a record with the provided field changes.
func (s *Service) Apply(ctx context.Context, id string, upd Update) (Record, error) {
	rec, err := s.store.Find(ctx, id)
	if err != nil {
		return Record{}, err
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return Record{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
		}
		rec.Name = name
	}
	if upd.Email != nil {
		email := strings.TrimSpace(strings.ToLower(*upd.Email))
		if email != "" && !strings.Contains(email, "@") {
			return Record{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
		}
		rec.Email = email
	}
	if upd.Status != nil {
		status := strings.TrimSpace(strings.ToLower(*upd.Status))
		if status != StatusActive && status != StatusDisabled {
			return Record{}, fmt.Errorf("%w: unsupported status %q", ErrInvalidInput, status)
		}
		rec.Status = status
	}
	if upd.Password != nil {
		pw := strings.TrimSpace(*upd.Password)
		if pw == "" {
			return Record{}, fmt.Errorf("%w: password is required", ErrInvalidInput)
		}
		hash, err := hashPassword(pw)
		if err != nil {
			return Record{}, err
		}
		rec.PasswordHash = hash
	}
	rec.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, rec); err != nil {
		return Record{}, err
	}
	return *rec, nil
}

// Delete removes a record.
func (s *Service) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidInput)
	}
	return s.store.Delete(ctx, id)
}

// VerifyPassword compares a plaintext password with the stored hash.
func VerifyPassword(rec Record, password string) error {
	if rec.PasswordHash == "" {
		return errors.New("actors: record has no password")
	}
	return bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password))
}

func hashPassword(password string) (string, error) {
	if len(password) == 0 {
		return "", fmt.Errorf("%w: password is empty", ErrInvalidInput)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
