package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"gitlab.ozon.dev/qwestard/laundry/internal/auth"
	"gitlab.ozon.dev/qwestard/laundry/internal/models"
	"gitlab.ozon.dev/qwestard/laundry/internal/service"
	"gitlab.ozon.dev/qwestard/laundry/internal/session"
)

// ErrExit is returned by the exit command; the caller stops reading input.
var ErrExit = errors.New("exit requested")

type LaundryService interface {
	CreateRequest(ctx context.Context, actor models.User, in service.CreateRequestInput) (*models.Request, error)
	AcceptRequest(ctx context.Context, actor models.User, id string) (*models.Request, error)
	AdvanceStatus(ctx context.Context, actor models.User, id string) (*models.Request, error)
	GetRequest(ctx context.Context, actor models.User, id string) (*models.Request, error)
	AvailableRequests(ctx context.Context) ([]*models.Request, error)
	ProviderJobs(ctx context.Context, providerID string) ([]*models.Request, error)
	CustomerRequests(ctx context.Context, customerID string) ([]*models.Request, error)
}

type SignInFunc func(role models.Role, form auth.Form) (models.User, error)

// Handler renders the landing, auth and dashboard screens as text commands.
type Handler struct {
	ctrl   *session.Controller
	signIn SignInFunc
	svc    LaundryService
	out    io.Writer
}

func New(ctrl *session.Controller, signIn SignInFunc, svc LaundryService, out io.Writer) *Handler {
	return &Handler{ctrl: ctrl, signIn: signIn, svc: svc, out: out}
}

func (h *Handler) Execute(ctx context.Context, cmd string, args []string) error {
	commands := map[string]func(context.Context, []string) error{
		"help":      h.printHelp,
		"exit":      h.handleExit,
		"role":      h.handleRole,
		"signin":    h.handleSignIn(auth.ModeSignIn),
		"signup":    h.handleSignIn(auth.ModeSignUp),
		"whoami":    h.handleWhoAmI,
		"create":    h.customerOnly(h.handleCreate),
		"mine":      h.customerOnly(h.handleMine),
		"available": h.providerOnly(h.handleAvailable),
		"jobs":      h.providerOnly(h.handleJobs),
		"accept":    h.providerOnly(h.handleAccept),
		"advance":   h.providerOnly(h.handleAdvance),
		"show":      h.signedIn(h.handleShow),
	}

	fn, ok := commands[cmd]
	if !ok {
		return fmt.Errorf("unknown command %q, type 'help' for the list", cmd)
	}
	return fn(ctx, args)
}

func (h *Handler) printHelp(context.Context, []string) error {
	fmt.Fprintln(h.out, `Available commands:
  help
    - show this help
  exit
    - quit
  role <customer|provider>
    - landing: choose how you use the service
  signin [name=..] [email=..] [phone=..] [address=..]
  signup [name=..] [email=..] [phone=..] [address=..]
    - auth: any input is accepted, blank fields get defaults
  whoami
    - show the signed-in user
Customer dashboard:
  create items="shirts, pants" [instructions=..] [pickup=..] [delivery=..]
    - place a laundry request, addresses default to your home address
  mine
    - your requests
Provider dashboard:
  available
    - pending requests anyone can accept
  jobs
    - requests you accepted
  accept <requestID>
  advance <requestID>
    - move your job to the next status
Both:
  show <requestID>`)
	return nil
}

func (h *Handler) handleExit(context.Context, []string) error {
	fmt.Fprintln(h.out, "Bye.")
	return ErrExit
}

func (h *Handler) handleRole(_ context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: role <customer|provider>")
	}
	if err := h.ctrl.SelectRole(models.Role(strings.ToLower(args[0]))); err != nil {
		return err
	}
	fmt.Fprintf(h.out, "Signing in as %s. Use 'signin' or 'signup'.\n", h.ctrl.SelectedRole())
	return nil
}

func (h *Handler) handleSignIn(mode auth.Mode) func(context.Context, []string) error {
	return func(_ context.Context, args []string) error {
		if h.ctrl.View() != session.ViewAuth {
			return fmt.Errorf("%w: pick a role first", session.ErrInvalidView)
		}
		kv, err := parseKV(args)
		if err != nil {
			return err
		}
		u, err := h.signIn(h.ctrl.SelectedRole(), auth.Form{
			Mode:    mode,
			Name:    kv["name"],
			Email:   kv["email"],
			Phone:   kv["phone"],
			Address: kv["address"],
		})
		if err != nil {
			return err
		}
		if err := h.ctrl.SignIn(u); err != nil {
			return err
		}
		d, err := h.ctrl.Dashboard()
		if err != nil {
			return err
		}
		fmt.Fprintf(h.out, "Welcome, %s! You are on the %s dashboard.\n", u.Name, d)
		return nil
	}
}

func (h *Handler) handleWhoAmI(context.Context, []string) error {
	u, ok := h.ctrl.CurrentUser()
	if !ok {
		fmt.Fprintf(h.out, "Nobody is signed in (screen: %s).\n", h.ctrl.View())
		return nil
	}
	fmt.Fprintf(h.out, "%s <%s> %s, %s, id=%s\n", u.Name, u.Email, u.Phone, u.Role, u.ID)
	if u.Rating != nil {
		fmt.Fprintf(h.out, "  rating=%.1f online=%t\n", *u.Rating, u.Online != nil && *u.Online)
	}
	return nil
}

func (h *Handler) signedIn(next func(context.Context, models.User, []string) error) func(context.Context, []string) error {
	return func(ctx context.Context, args []string) error {
		if _, err := h.ctrl.Dashboard(); err != nil {
			return err
		}
		u, _ := h.ctrl.CurrentUser()
		return next(ctx, u, args)
	}
}

func (h *Handler) onDashboard(want session.Dashboard, next func(context.Context, models.User, []string) error) func(context.Context, []string) error {
	return h.signedIn(func(ctx context.Context, u models.User, args []string) error {
		if d, _ := h.ctrl.Dashboard(); d != want {
			return fmt.Errorf("%w: only on the %s dashboard", session.ErrInvalidView, want)
		}
		return next(ctx, u, args)
	})
}

func (h *Handler) customerOnly(next func(context.Context, models.User, []string) error) func(context.Context, []string) error {
	return h.onDashboard(session.DashboardCustomer, next)
}

func (h *Handler) providerOnly(next func(context.Context, models.User, []string) error) func(context.Context, []string) error {
	return h.onDashboard(session.DashboardProvider, next)
}

func (h *Handler) handleCreate(ctx context.Context, u models.User, args []string) error {
	kv, err := parseKV(args)
	if err != nil {
		return err
	}
	in := service.CreateRequestInput{
		Items:               kv["items"],
		SpecialInstructions: kv["instructions"],
		PickupAddress:       u.Location.Address,
		DeliveryAddress:     u.Location.Address,
	}
	if v, ok := kv["pickup"]; ok {
		in.PickupAddress = v
	}
	if v, ok := kv["delivery"]; ok {
		in.DeliveryAddress = v
	}
	r, err := h.svc.CreateRequest(ctx, u, in)
	if err != nil {
		return err
	}
	fmt.Fprintf(h.out, "Request %s created, estimated price $%d.\n", r.ID, r.EstimatedPrice)
	return nil
}

func (h *Handler) handleMine(ctx context.Context, u models.User, _ []string) error {
	list, err := h.svc.CustomerRequests(ctx, u.ID)
	if err != nil {
		return err
	}
	h.printList("You have no requests yet.", "Your requests:", list)
	return nil
}

func (h *Handler) handleAvailable(ctx context.Context, _ models.User, _ []string) error {
	list, err := h.svc.AvailableRequests(ctx)
	if err != nil {
		return err
	}
	h.printList("No requests are waiting.", "Available requests:", list)
	return nil
}

func (h *Handler) handleJobs(ctx context.Context, u models.User, _ []string) error {
	list, err := h.svc.ProviderJobs(ctx, u.ID)
	if err != nil {
		return err
	}
	h.printList("You have no jobs.", "Your jobs:", list)
	return nil
}

func (h *Handler) handleAccept(ctx context.Context, u models.User, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: accept <requestID>")
	}
	r, err := h.svc.AcceptRequest(ctx, u, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(h.out, "Request %s accepted.\n", r.ID)
	return nil
}

func (h *Handler) handleAdvance(ctx context.Context, u models.User, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: advance <requestID>")
	}
	r, err := h.svc.AdvanceStatus(ctx, u, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(h.out, "Request %s is now %s.\n", r.ID, r.Status)
	return nil
}

func (h *Handler) handleShow(ctx context.Context, u models.User, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: show <requestID>")
	}
	r, err := h.svc.GetRequest(ctx, u, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(h.out, "Request %s (%s)\n", r.ID, r.Status)
	fmt.Fprintf(h.out, "  items: %s\n", strings.Join(r.Items, ", "))
	if r.SpecialInstructions != "" {
		fmt.Fprintf(h.out, "  instructions: %s\n", r.SpecialInstructions)
	}
	fmt.Fprintf(h.out, "  pickup: %s\n  delivery: %s\n", r.PickupAddress, r.DeliveryAddress)
	fmt.Fprintf(h.out, "  price: $%d\n  customer: %s\n", r.EstimatedPrice, r.Customer.Name)
	if r.Provider != nil {
		fmt.Fprintf(h.out, "  provider: %s\n", r.Provider.Name)
	}
	fmt.Fprintf(h.out, "  created: %s, last change: %s\n",
		r.CreatedAt.Format(time.RFC3339), r.LastStateChange.Format(time.RFC3339))
	return nil
}

func (h *Handler) printList(empty, title string, list []*models.Request) {
	if len(list) == 0 {
		fmt.Fprintln(h.out, empty)
		return
	}
	fmt.Fprintln(h.out, title)
	for _, r := range list {
		fmt.Fprintf(h.out, "  ID=%s, Status=%s, Items=%s, Price=$%d\n",
			r.ID, r.Status, strings.Join(r.Items, ", "), r.EstimatedPrice)
	}
}

func parseKV(args []string) (map[string]string, error) {
	kv := make(map[string]string, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("expected key=value, got %q", a)
		}
		kv[strings.ToLower(k)] = v
	}
	return kv, nil
}

// SplitArgs splits a command line on spaces, keeping double-quoted parts together.
func SplitArgs(line string) []string {
	var (
		args    []string
		cur     strings.Builder
		quoted  bool
		pending bool
	)
	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
			pending = true
		case (r == ' ' || r == '\t') && !quoted:
			if pending {
				args = append(args, cur.String())
				cur.Reset()
				pending = false
			}
		default:
			cur.WriteRune(r)
			pending = true
		}
	}
	if pending {
		args = append(args, cur.String())
	}
	return args
}
