// Package portal is the client self-service area: accounts and their
// service request history, all kept in the profile's users list.
package portal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/Axmae/ambulance-management/internal/auth"
	"github.com/Axmae/ambulance-management/internal/events"
	"github.com/Axmae/ambulance-management/internal/kvstore"
	"github.com/Axmae/ambulance-management/internal/model"
)

// Collection is the name change notifications of service requests carry.
const Collection = "requests"

// MaxRequests is how many requests a user keeps; older ones are dropped.
const MaxRequests = 50

var estimatedTimes = map[string]string{
	model.RequestUrgent:    "10-15 minutes",
	model.RequestTransport: "30-45 minutes",
	model.RequestDoctor:    "1-2 heures",
}

// EstimatedTime returns the announced delay for a request type.
func EstimatedTime(requestType string) string {
	if t, ok := estimatedTimes[requestType]; ok {
		return t
	}
	return "Variable"
}

// RequestTypes lists the services offered, in display order.
var RequestTypes = []string{model.RequestUrgent, model.RequestTransport, model.RequestDoctor}

// Directory manages the portal users of one profile.
type Directory struct {
	kv   kvstore.Store
	log  zerolog.Logger
	cost int
	now  func() time.Time
	bus  *events.Bus[events.StoreEvent]

	mu sync.Mutex
}

// Option customizes a Directory.
type Option func(*Directory)

// WithBcryptCost sets the password hashing cost.
func WithBcryptCost(cost int) Option { return func(d *Directory) { d.cost = cost } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(d *Directory) { d.now = now } }

func WithLogger(l zerolog.Logger) Option { return func(d *Directory) { d.log = l } }

// New returns a directory over a profile-scoped container.
func New(kv kvstore.Store, opts ...Option) *Directory {
	d := &Directory{
		kv:   kv,
		log:  zerolog.Nop(),
		cost: bcrypt.DefaultCost,
		now:  func() time.Time { return time.Now().UTC() },
		bus:  events.NewBus[events.StoreEvent](),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Subscribe registers fn for request changes.
func (d *Directory) Subscribe(fn func(events.StoreEvent)) (unsubscribe func()) {
	return d.bus.Subscribe(fn)
}

func (d *Directory) load(ctx context.Context) ([]model.PortalUser, error) {
	raw, err := d.kv.Get(ctx, kvstore.KeyUsers)
	if errors.Is(err, kvstore.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read users: %w", err)
	}
	var users []model.PortalUser
	if err := json.Unmarshal(raw, &users); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	return users, nil
}

func (d *Directory) save(ctx context.Context, users []model.PortalUser) error {
	raw, err := json.Marshal(users)
	if err != nil {
		return fmt.Errorf("encode users: %w", err)
	}
	if err := d.kv.Put(ctx, kvstore.KeyUsers, raw); err != nil {
		return fmt.Errorf("write users: %w", err)
	}
	return nil
}

func indexOf(users []model.PortalUser, email string) int {
	for i, u := range users {
		if strings.EqualFold(u.Email, email) {
			return i
		}
	}
	return -1
}

// mutate runs fn on the user with email and saves the list when fn succeeds.
func (d *Directory) mutate(ctx context.Context, email string, fn func(u *model.PortalUser) error) (model.PortalUser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	users, err := d.load(ctx)
	if err != nil {
		return model.PortalUser{}, err
	}
	i := indexOf(users, email)
	if i < 0 {
		return model.PortalUser{}, fmt.Errorf("user %s: %w", email, model.ErrNotFound)
	}
	if err := fn(&users[i]); err != nil {
		return model.PortalUser{}, err
	}
	if err := d.save(ctx, users); err != nil {
		return model.PortalUser{}, err
	}
	return users[i], nil
}

// Signup validates the form and creates the account.
func (d *Directory) Signup(ctx context.Context, f SignupForm) (model.PortalUser, error) {
	if errs := f.Validate(); errs != nil {
		return model.PortalUser{}, errs
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(f.Password), d.cost)
	if err != nil {
		return model.PortalUser{}, fmt.Errorf("hash password: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	users, err := d.load(ctx)
	if err != nil {
		return model.PortalUser{}, err
	}
	email := strings.TrimSpace(f.Email)
	if indexOf(users, email) >= 0 {
		return model.PortalUser{}, model.FieldErrors{"email": MsgEmailTaken}
	}
	now := d.now()
	u := model.PortalUser{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(f.Name),
		Email:        email,
		Phone:        strings.Join(strings.Fields(f.Phone), ""),
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
		Requests:     []model.ServiceRequest{},
		Preferences:  model.UserPreferences{Notifications: true, SMSAlerts: true, Language: "fr"},
	}
	users = append(users, u)
	if err := d.save(ctx, users); err != nil {
		return model.PortalUser{}, err
	}
	d.log.Info().Str("email", email).Msg("portal user registered")
	return u, nil
}

// Verify implements auth.Provider and records the login time.
func (d *Directory) Verify(ctx context.Context, email, password string) (string, error) {
	_, err := d.mutate(ctx, email, func(u *model.PortalUser) error {
		if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
			return auth.ErrInvalidCredentials
		}
		now := d.now()
		u.LastLogin = &now
		return nil
	})
	if errors.Is(err, model.ErrNotFound) {
		return "", auth.ErrInvalidCredentials
	}
	if err != nil {
		return "", err
	}
	return auth.RoleUser, nil
}

// Get returns the account with email.
func (d *Directory) Get(ctx context.Context, email string) (model.PortalUser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	users, err := d.load(ctx)
	if err != nil {
		return model.PortalUser{}, err
	}
	i := indexOf(users, email)
	if i < 0 {
		return model.PortalUser{}, fmt.Errorf("user %s: %w", email, model.ErrNotFound)
	}
	return users[i], nil
}

// UpdateProfile changes name, phone and address.
func (d *Directory) UpdateProfile(ctx context.Context, email string, f ProfileForm) (model.PortalUser, error) {
	if errs := f.Validate(); errs != nil {
		return model.PortalUser{}, errs
	}
	return d.mutate(ctx, email, func(u *model.PortalUser) error {
		u.Name = strings.TrimSpace(f.Name)
		u.Phone = strings.Join(strings.Fields(f.Phone), "")
		u.Address = strings.TrimSpace(f.Address)
		u.UpdatedAt = d.now()
		return nil
	})
}

// RequestForm is a new service request.
type RequestForm struct {
	Type    string
	Address string
	Details map[string]string
}

// SubmitRequest records a pending request, newest first, keeping at most MaxRequests.
func (d *Directory) SubmitRequest(ctx context.Context, email string, f RequestForm) (model.ServiceRequest, error) {
	now := d.now()
	details, errs := f.Validate(now)
	if len(errs) > 0 {
		return model.ServiceRequest{}, errs
	}
	req := model.ServiceRequest{
		ID:            uuid.NewString(),
		Type:          f.Type,
		Status:        model.RequestPending,
		Address:       strings.TrimSpace(f.Address),
		Details:       details,
		EstimatedTime: EstimatedTime(f.Type),
		CreatedAt:     now,
	}
	_, err := d.mutate(ctx, email, func(u *model.PortalUser) error {
		u.Requests = append([]model.ServiceRequest{req}, u.Requests...)
		if len(u.Requests) > MaxRequests {
			u.Requests = u.Requests[:MaxRequests]
		}
		return nil
	})
	if err != nil {
		return model.ServiceRequest{}, err
	}
	d.bus.Publish(events.StoreEvent{Kind: events.Created, Collection: Collection})
	return req, nil
}

// Request returns one request of a user.
func (d *Directory) Request(ctx context.Context, email, id string) (model.ServiceRequest, error) {
	u, err := d.Get(ctx, email)
	if err != nil {
		return model.ServiceRequest{}, err
	}
	i, err := requestIndex(u.Requests, id)
	if err != nil {
		return model.ServiceRequest{}, err
	}
	return u.Requests[i], nil
}

// Step is one stage of a request's tracking timeline, named by a message key.
type Step struct {
	Key     string
	Done    bool
	Current bool
}

// Track returns the timeline of a request. A cancelled request ends right
// after reception.
func Track(r model.ServiceRequest) []Step {
	if r.Status == model.RequestCancelled {
		return []Step{
			{Key: "track_" + model.RequestPending, Done: true},
			{Key: "track_" + model.RequestCancelled, Done: true, Current: true},
		}
	}
	stages := []string{model.RequestPending, model.RequestInProgress, model.RequestCompleted}
	reached := slices.Index(stages, r.Status)
	steps := make([]Step, len(stages))
	for i, st := range stages {
		steps[i] = Step{Key: "track_" + st, Done: i <= reached, Current: i == reached}
	}
	return steps
}

// Filters accepted by Requests, besides "all" and the request types.
var StatusFilters = []string{model.RequestPending, model.RequestCompleted, model.RequestCancelled}

// Requests returns the user's requests, newest first. filter is "all" (or
// empty), a request type, or a status; "pending" includes in-progress.
func (d *Directory) Requests(ctx context.Context, email, filter string) ([]model.ServiceRequest, error) {
	u, err := d.Get(ctx, email)
	if err != nil {
		return nil, err
	}
	return FilterRequests(u.Requests, filter), nil
}

// FilterRequests applies a history filter.
func FilterRequests(reqs []model.ServiceRequest, filter string) []model.ServiceRequest {
	out := make([]model.ServiceRequest, 0, len(reqs))
	for _, r := range reqs {
		switch {
		case filter == "" || filter == "all",
			r.Type == filter,
			r.Status == filter,
			filter == model.RequestPending && r.Status == model.RequestInProgress:
			out = append(out, r)
		}
	}
	return out
}

// Stats summarizes a request list.
type Stats struct {
	Total     int
	Completed int
	Pending   int
}

func Summarize(reqs []model.ServiceRequest) Stats {
	s := Stats{Total: len(reqs)}
	for _, r := range reqs {
		switch r.Status {
		case model.RequestCompleted:
			s.Completed++
		case model.RequestPending, model.RequestInProgress:
			s.Pending++
		}
	}
	return s
}

func (d *Directory) editRequest(ctx context.Context, email string, kind events.StoreKind, fn func(reqs []model.ServiceRequest) ([]model.ServiceRequest, error)) error {
	_, err := d.mutate(ctx, email, func(u *model.PortalUser) error {
		reqs, err := fn(u.Requests)
		if err != nil {
			return err
		}
		u.Requests = reqs
		return nil
	})
	if err != nil {
		return err
	}
	d.bus.Publish(events.StoreEvent{Kind: kind, Collection: Collection})
	return nil
}

func requestIndex(reqs []model.ServiceRequest, id string) (int, error) {
	for i, r := range reqs {
		if r.ID == id {
			return i, nil
		}
	}
	return -1, fmt.Errorf("request %s: %w", id, model.ErrNotFound)
}

// DeleteRequest removes one request.
func (d *Directory) DeleteRequest(ctx context.Context, email, id string) error {
	return d.editRequest(ctx, email, events.Deleted, func(reqs []model.ServiceRequest) ([]model.ServiceRequest, error) {
		i, err := requestIndex(reqs, id)
		if err != nil {
			return nil, err
		}
		return append(reqs[:i:i], reqs[i+1:]...), nil
	})
}

// DeleteAll clears the history and returns how many requests were removed.
func (d *Directory) DeleteAll(ctx context.Context, email string) (int, error) {
	n := 0
	err := d.editRequest(ctx, email, events.Deleted, func(reqs []model.ServiceRequest) ([]model.ServiceRequest, error) {
		n = len(reqs)
		return []model.ServiceRequest{}, nil
	})
	return n, err
}

// DeleteCompleted removes completed requests and returns how many were removed.
func (d *Directory) DeleteCompleted(ctx context.Context, email string) (int, error) {
	n := 0
	err := d.editRequest(ctx, email, events.Deleted, func(reqs []model.ServiceRequest) ([]model.ServiceRequest, error) {
		out := make([]model.ServiceRequest, 0, len(reqs))
		for _, r := range reqs {
			if r.Status == model.RequestCompleted {
				n++
				continue
			}
			out = append(out, r)
		}
		return out, nil
	})
	return n, err
}

// ErrNotReviewable is returned when rating a request that is not completed.
var ErrNotReviewable = errors.New("only completed requests can be rated")

// Review rates a completed request from 1 to 5.
func (d *Directory) Review(ctx context.Context, email, id string, rating int, comment string) error {
	if rating < 1 || rating > 5 {
		return model.FieldErrors{"rating": model.MsgInvalidValue}
	}
	return d.editRequest(ctx, email, events.Updated, func(reqs []model.ServiceRequest) ([]model.ServiceRequest, error) {
		i, err := requestIndex(reqs, id)
		if err != nil {
			return nil, err
		}
		if reqs[i].Status != model.RequestCompleted {
			return nil, ErrNotReviewable
		}
		reqs[i].Rating = rating
		reqs[i].Review = strings.TrimSpace(comment)
		return reqs, nil
	})
}

// ErrNotCancellable is returned when cancelling a finished request.
var ErrNotCancellable = errors.New("request is already finished")

// Cancel marks a pending or in-progress request as cancelled.
func (d *Directory) Cancel(ctx context.Context, email, id string) error {
	return d.editRequest(ctx, email, events.Updated, func(reqs []model.ServiceRequest) ([]model.ServiceRequest, error) {
		i, err := requestIndex(reqs, id)
		if err != nil {
			return nil, err
		}
		switch reqs[i].Status {
		case model.RequestPending, model.RequestInProgress:
			reqs[i].Status = model.RequestCancelled
			return reqs, nil
		default:
			return nil, ErrNotCancellable
		}
	})
}

// SetStatus moves a request to another status; used by dispatchers.
func (d *Directory) SetStatus(ctx context.Context, email, id, status string) error {
	if !slices.Contains(model.RequestStatuses, status) {
		return model.FieldErrors{"status": model.MsgInvalidValue}
	}
	return d.editRequest(ctx, email, events.Updated, func(reqs []model.ServiceRequest) ([]model.ServiceRequest, error) {
		i, err := requestIndex(reqs, id)
		if err != nil {
			return nil, err
		}
		reqs[i].Status = status
		return reqs, nil
	})
}

// OwnedRequest is a request with the account it belongs to.
type OwnedRequest struct {
	model.ServiceRequest
	Owner string
}

// AllRequests returns every user's requests, newest first.
func (d *Directory) AllRequests(ctx context.Context) ([]OwnedRequest, error) {
	d.mu.Lock()
	users, err := d.load(ctx)
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}
	var out []OwnedRequest
	for _, u := range users {
		for _, r := range u.Requests {
			out = append(out, OwnedRequest{ServiceRequest: r, Owner: u.Email})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
