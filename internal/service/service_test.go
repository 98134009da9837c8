package service_test

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.ozon.dev/qwestard/laundry/internal/audit"
	"gitlab.ozon.dev/qwestard/laundry/internal/db"
	"gitlab.ozon.dev/qwestard/laundry/internal/models"
	"gitlab.ozon.dev/qwestard/laundry/internal/pricing"
	"gitlab.ozon.dev/qwestard/laundry/internal/repository"
	"gitlab.ozon.dev/qwestard/laundry/internal/service"
	"gitlab.ozon.dev/qwestard/laundry/internal/storage"
)

var (
	customer  = models.User{ID: "cust-1", Name: "Jane", Role: models.RoleCustomer}
	customer2 = models.User{ID: "cust-2", Name: "Joe", Role: models.RoleCustomer}
	provider  = models.User{ID: "prov-1", Name: "Wash&Go", Role: models.RoleProvider}
	provider2 = models.User{ID: "prov-2", Name: "Suds", Role: models.RoleProvider}
)

type memAuditor struct {
	mu   sync.Mutex
	logs []audit.AuditLog
}

func (a *memAuditor) Log(r audit.AuditLog) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, r)
}

type memOutbox struct {
	events []models.StatusEvent
}

func (o *memOutbox) CreateTask(_ context.Context, _ string, payload []byte) error {
	var ev models.StatusEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return err
	}
	o.events = append(o.events, ev)
	return nil
}

func setup(t *testing.T, opts ...service.Option) (*service.LaundryService, *storage.Store) {
	t.Helper()
	st, err := storage.New("")
	require.NoError(t, err)
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	opts = append([]service.Option{service.WithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	})}, opts...)
	svc := service.NewLaundryService(st, &models.SequenceGenerator{Prefix: "req"}, pricing.FixedPricer(30), opts...)
	return svc, st
}

func create(t *testing.T, svc *service.LaundryService, who models.User) *models.Request {
	t.Helper()
	r, err := svc.CreateRequest(context.Background(), who, service.CreateRequestInput{
		Items:           "shirts, pants",
		PickupAddress:   "1 Main St",
		DeliveryAddress: "1 Main St",
	})
	require.NoError(t, err)
	return r
}

func TestParseItems(t *testing.T) {
	assert.Equal(t, []string{"shirts", "pants"}, service.ParseItems("shirts, pants"))
	assert.Equal(t, []string{"a", "b"}, service.ParseItems(" a ,, b , "))
	assert.Empty(t, service.ParseItems(" , "))
}

func TestCreateRequest(t *testing.T) {
	svc, st := setup(t)

	r := create(t, svc, customer)
	assert.Equal(t, "req-1", r.ID)
	assert.Equal(t, models.StatusPending, r.Status)
	assert.Equal(t, []string{"shirts", "pants"}, r.Items)
	assert.Equal(t, 30, r.EstimatedPrice)
	assert.Empty(t, r.ProviderID)
	assert.Equal(t, customer.ID, r.Customer.ID)
	assert.Len(t, st.Requests(), 1)
}

func TestCreateRequestValidation(t *testing.T) {
	svc, st := setup(t)
	ctx := context.Background()

	_, err := svc.CreateRequest(ctx, customer, service.CreateRequestInput{Items: " , ", PickupAddress: "", DeliveryAddress: "x"})
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.Contains(t, err.Error(), "items")
	assert.Contains(t, err.Error(), "pickup")

	_, err = svc.CreateRequest(ctx, provider, service.CreateRequestInput{Items: "a", PickupAddress: "x", DeliveryAddress: "y"})
	assert.ErrorIs(t, err, models.ErrNotAuthorized)
	assert.Empty(t, st.Requests())
}

func TestAcceptMovesBetweenViews(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	r := create(t, svc, customer)

	for _, p := range []models.User{provider, provider2} {
		avail, err := svc.AvailableRequests(ctx)
		require.NoError(t, err)
		require.Len(t, avail, 1, p.ID)
	}

	accepted, err := svc.AcceptRequest(ctx, provider, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, accepted.Status)
	assert.Equal(t, provider.ID, accepted.ProviderID)
	require.NotNil(t, accepted.Provider)
	assert.Equal(t, provider.Name, accepted.Provider.Name)

	avail, err := svc.AvailableRequests(ctx)
	require.NoError(t, err)
	assert.Empty(t, avail)

	jobs, err := svc.ProviderJobs(ctx, provider.ID)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, r.ID, jobs[0].ID)

	other, err := svc.ProviderJobs(ctx, provider2.ID)
	require.NoError(t, err)
	assert.Empty(t, other)

	_, err = svc.AcceptRequest(ctx, provider2, r.ID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestAcceptErrors(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	r := create(t, svc, customer)

	_, err := svc.AcceptRequest(ctx, customer, r.ID)
	assert.ErrorIs(t, err, models.ErrNotAuthorized)

	_, err = svc.AcceptRequest(ctx, provider, "missing")
	var nf *models.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestAdvanceThroughLifecycle(t *testing.T) {
	auditor := &memAuditor{}
	outbox := &memOutbox{}
	svc, _ := setup(t, service.WithAuditor(auditor), service.WithOutbox(outbox))
	ctx := context.Background()
	r := create(t, svc, customer)

	_, err := svc.AdvanceStatus(ctx, provider, r.ID)
	assert.ErrorIs(t, err, models.ErrNotAuthorized, "nobody is assigned yet")

	_, err = svc.AcceptRequest(ctx, provider, r.ID)
	require.NoError(t, err)

	got, err := svc.AdvanceStatus(ctx, provider, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPickedUp, got.Status)

	_, err = svc.AdvanceStatus(ctx, provider2, r.ID)
	assert.ErrorIs(t, err, models.ErrNotAuthorized)

	for _, want := range []models.Status{models.StatusWashing, models.StatusReady, models.StatusDelivered, models.StatusCompleted} {
		got, err = svc.AdvanceStatus(ctx, provider, r.ID)
		require.NoError(t, err)
		assert.Equal(t, want, got.Status)
	}

	_, err = svc.AdvanceStatus(ctx, provider, r.ID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	final, err := svc.GetRequest(ctx, customer, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, final.Status)

	require.Len(t, outbox.events, 7)
	assert.Equal(t, models.Status(""), outbox.events[0].OldStatus)
	assert.Equal(t, models.StatusPending, outbox.events[1].OldStatus)
	assert.Equal(t, models.StatusAccepted, outbox.events[1].NewStatus)
	assert.Equal(t, models.StatusCompleted, outbox.events[6].NewStatus)
	assert.Len(t, auditor.logs, 7)
}

func TestSetStatusRejectsSkipsAndReversal(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	r := create(t, svc, customer)

	got, err := svc.SetStatus(ctx, provider, r.ID, models.StatusAccepted)
	require.NoError(t, err)
	assert.Equal(t, provider.ID, got.ProviderID)

	_, err = svc.SetStatus(ctx, provider, r.ID, models.StatusWashing)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
	_, err = svc.SetStatus(ctx, provider, r.ID, models.StatusPending)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
	_, err = svc.SetStatus(ctx, provider, r.ID, models.Status("lost"))
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	got, err = svc.SetStatus(ctx, provider, r.ID, models.StatusPickedUp)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPickedUp, got.Status)
}

func TestGetRequestVisibility(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	r := create(t, svc, customer)

	_, err := svc.GetRequest(ctx, customer, r.ID)
	assert.NoError(t, err)
	_, err = svc.GetRequest(ctx, provider2, r.ID)
	assert.NoError(t, err, "pending requests are visible to every provider")
	_, err = svc.GetRequest(ctx, customer2, r.ID)
	assert.ErrorIs(t, err, models.ErrNotAuthorized)

	_, err = svc.AcceptRequest(ctx, provider, r.ID)
	require.NoError(t, err)
	_, err = svc.GetRequest(ctx, provider2, r.ID)
	assert.ErrorIs(t, err, models.ErrNotAuthorized)
	_, err = svc.GetRequest(ctx, provider, r.ID)
	assert.NoError(t, err)

	_, err = svc.GetRequest(ctx, customer, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCustomerRequestsFilter(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	create(t, svc, customer)
	create(t, svc, customer2)
	create(t, svc, customer)

	mine, err := svc.CustomerRequests(ctx, customer.ID)
	require.NoError(t, err)
	assert.Len(t, mine, 2)
	for _, r := range mine {
		assert.Equal(t, customer.ID, r.CustomerID)
	}

	none, err := svc.CustomerRequests(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, none)
}

// Random actions from several actors must keep every request on the lifecycle path
// with the provider assigned exactly when the request left pending.
func TestLifecycleInvariantsUnderRandomActions(t *testing.T) {
	svc, st := setup(t)
	ctx := context.Background()
	rnd := rand.New(rand.NewSource(1))
	providers := []models.User{provider, provider2}
	order := models.Lifecycle()
	history := make(map[string][]models.Status)

	for i := 0; i < 400; i++ {
		reqs := st.Requests()
		switch n := rnd.Intn(4); {
		case n == 0 || len(reqs) == 0:
			r := create(t, svc, customer)
			history[r.ID] = append(history[r.ID], r.Status)
		default:
			target := reqs[rnd.Intn(len(reqs))]
			p := providers[rnd.Intn(len(providers))]
			var r *models.Request
			var err error
			if rnd.Intn(2) == 0 {
				r, err = svc.AcceptRequest(ctx, p, target.ID)
			} else {
				r, err = svc.AdvanceStatus(ctx, p, target.ID)
			}
			if err == nil {
				history[r.ID] = append(history[r.ID], r.Status)
			}
		}

		for _, r := range st.Requests() {
			assert.Equal(t, r.Status != models.StatusPending, r.ProviderID != "", r.ID)
		}
		avail, err := svc.AvailableRequests(ctx)
		require.NoError(t, err)
		pending := 0
		for _, r := range st.Requests() {
			if r.Status == models.StatusPending {
				pending++
			}
		}
		assert.Len(t, avail, pending)
		for _, r := range avail {
			assert.Equal(t, models.StatusPending, r.Status)
		}
	}

	for id, seq := range history {
		require.LessOrEqual(t, len(seq), len(order), id)
		assert.Equal(t, order[:len(seq)], seq, id)
	}
}

func TestConcurrentAcceptHasOneWinner(t *testing.T) {
	st, err := storage.New("")
	require.NoError(t, err)
	database, err := db.NewDB(db.DriverSQLite, filepath.Join(t.TempDir(), "laundry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	backends := map[string]repository.RequestRepository{
		"memory": st,
		"sqlite": repository.NewSQLRequestRepository(database),
	}
	for name, repo := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			svc := service.NewLaundryService(repo, &models.SequenceGenerator{Prefix: name}, pricing.FixedPricer(30))
			r := create(t, svc, customer)

			const n = 8
			errs := make([]error, n)
			var wg sync.WaitGroup
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					p := models.User{ID: fmt.Sprintf("prov-%d", i), Role: models.RoleProvider}
					_, errs[i] = svc.AcceptRequest(ctx, p, r.ID)
				}(i)
			}
			wg.Wait()

			winner := -1
			for i, err := range errs {
				if err == nil {
					require.Equal(t, -1, winner, "two accepts succeeded")
					winner = i
					continue
				}
				assert.ErrorIs(t, err, models.ErrInvalidTransition)
			}
			require.NotEqual(t, -1, winner, "no accept succeeded")

			got, err := svc.GetRequest(ctx, customer, r.ID)
			require.NoError(t, err)
			assert.Equal(t, models.StatusAccepted, got.Status)
			assert.Equal(t, fmt.Sprintf("prov-%d", winner), got.ProviderID)
		})
	}
}
