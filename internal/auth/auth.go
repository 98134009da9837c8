// Package auth is a stand-in for real authentication: any sign-in succeeds and
// blank form fields are replaced with fixed defaults.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"gitlab.ozon.dev/qwestard/laundry/internal/models"
)

const (
	DefaultName    = "John Doe"
	DefaultEmail   = "john@example.com"
	DefaultPhone   = "+1234567890"
	DefaultAddress = "123 Main St, New York, NY"
	DefaultLat     = 40.7128
	DefaultLng     = -74.006

	DefaultProviderRating = 5.0
)

var ErrUnknownSession = errors.New("unknown session")

type Mode string

const (
	ModeSignIn Mode = "signin"
	ModeSignUp Mode = "signup"
)

// Form holds what the user typed. Mode is accepted but both modes behave the same.
type Form struct {
	Mode    Mode   `json:"mode"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

type Authenticator struct {
	ids models.IDGenerator

	mu       sync.RWMutex
	sessions map[string]models.User
}

func NewAuthenticator(ids models.IDGenerator) *Authenticator {
	return &Authenticator{
		ids:      ids,
		sessions: make(map[string]models.User),
	}
}

// SignIn builds the identity for role from form. It never fails for a valid role.
func (a *Authenticator) SignIn(role models.Role, form Form) (models.User, error) {
	if !role.Valid() {
		return models.User{}, fmt.Errorf("%w: unknown role %q", models.ErrValidation, role)
	}
	u := models.User{
		ID:    a.ids.NewID(),
		Name:  orDefault(form.Name, DefaultName),
		Email: orDefault(form.Email, DefaultEmail),
		Phone: orDefault(form.Phone, DefaultPhone),
		Role:  role,
		Location: models.Location{
			Lat:     DefaultLat,
			Lng:     DefaultLng,
			Address: orDefault(form.Address, DefaultAddress),
		},
	}
	if role == models.RoleProvider {
		rating := DefaultProviderRating
		online := true
		u.Rating = &rating
		u.Online = &online
	}
	return u, nil
}

// StartSession signs in and issues a token that later identifies the user.
func (a *Authenticator) StartSession(role models.Role, form Form) (models.User, string, error) {
	u, err := a.SignIn(role, form)
	if err != nil {
		return models.User{}, "", err
	}
	token := uuid.NewString()
	a.mu.Lock()
	a.sessions[token] = u
	a.mu.Unlock()
	return u, token, nil
}

// Resolve returns the user behind token if it was issued to userID.
func (a *Authenticator) Resolve(userID, token string) (models.User, error) {
	a.mu.RLock()
	u, ok := a.sessions[token]
	a.mu.RUnlock()
	if !ok || u.ID != userID {
		return models.User{}, ErrUnknownSession
	}
	return u, nil
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}
