package session

import (
	"errors"
	"fmt"

	"gitlab.ozon.dev/qwestard/laundry/internal/models"
)

type View string

const (
	ViewLanding   View = "landing"
	ViewAuth      View = "auth"
	ViewDashboard View = "dashboard"
)

type Dashboard string

const (
	DashboardCustomer Dashboard = "customer"
	DashboardProvider Dashboard = "provider"
)

var (
	ErrInvalidView  = errors.New("action is not available on this screen")
	ErrRoleMismatch = errors.New("signed-in role differs from the selected role")
)

type UserStore interface {
	User() (models.User, bool)
	SetUser(u *models.User)
}

// Controller walks landing -> auth -> dashboard. There is no way back: a session
// ends only with the process.
type Controller struct {
	store        UserStore
	view         View
	selectedRole models.Role
}

func NewController(store UserStore) *Controller {
	return &Controller{store: store, view: ViewLanding}
}

func (c *Controller) View() View {
	return c.view
}

func (c *Controller) SelectedRole() models.Role {
	return c.selectedRole
}

func (c *Controller) SelectRole(role models.Role) error {
	if c.view != ViewLanding {
		return fmt.Errorf("%w: select role on %s", ErrInvalidView, c.view)
	}
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", models.ErrValidation, role)
	}
	c.selectedRole = role
	c.view = ViewAuth
	return nil
}

// SignIn stores u as the session identity. u must carry the role picked on landing.
func (c *Controller) SignIn(u models.User) error {
	if c.view != ViewAuth {
		return fmt.Errorf("%w: sign in on %s", ErrInvalidView, c.view)
	}
	if u.Role != c.selectedRole {
		return fmt.Errorf("%w: selected %s, got %s", ErrRoleMismatch, c.selectedRole, u.Role)
	}
	c.store.SetUser(&u)
	c.view = ViewDashboard
	return nil
}

// Dashboard picks the dashboard from the stored identity's role.
func (c *Controller) Dashboard() (Dashboard, error) {
	if c.view != ViewDashboard {
		return "", fmt.Errorf("%w: no dashboard on %s", ErrInvalidView, c.view)
	}
	u, ok := c.store.User()
	if !ok {
		return "", fmt.Errorf("%w: nobody is signed in", ErrInvalidView)
	}
	switch u.Role {
	case models.RoleCustomer:
		return DashboardCustomer, nil
	case models.RoleProvider:
		return DashboardProvider, nil
	}
	return "", fmt.Errorf("%w: unknown role %q", models.ErrValidation, u.Role)
}

func (c *Controller) CurrentUser() (models.User, bool) {
	return c.store.User()
}
