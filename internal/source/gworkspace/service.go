// Package gworkspace implements source.Service on Google Workspace: Drive for
// folders and documents, Admin Directory for users and Drive Activity for the
// change feed. Calls impersonate users through domain-wide delegation.
package gworkspace

import (
	"context"
	"sync"

	"github.com/dl-alexandre/docdr/internal/api"
	"github.com/dl-alexandre/docdr/internal/logging"
	"github.com/dl-alexandre/docdr/internal/source"
	"github.com/dl-alexandre/docdr/internal/types"
	admin "google.golang.org/api/admin/directory/v1"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/driveactivity/v2"
)

// Services hands out API clients acting as a given user
type Services interface {
	Drive(ctx context.Context, subject string) (*drive.Service, error)
	Activity(ctx context.Context, subject string) (*driveactivity.Service, error)
	Directory(ctx context.Context) (*admin.Service, error)
}

// Option configures a Service
type Option func(*Service)

// WithCustomer sets the directory customer; the default is the customer of
// the admin subject.
func WithCustomer(customer string) Option {
	return func(s *Service) {
		if customer != "" {
			s.customer = customer
		}
	}
}

// WithLogger sets the logger
func WithLogger(l logging.Logger) Option {
	return func(s *Service) {
		s.logger = logging.OrNoOp(l)
	}
}

// Service is the Google Workspace source
type Service struct {
	services     Services
	client       *api.Client
	adminSubject string
	customer     string
	logger       logging.Logger

	mu      sync.RWMutex
	owners  map[string]string // item id -> subject that can see it
	users   []types.User
	byEmail map[string]types.User
}

var _ source.Service = (*Service)(nil)

// New creates the source. adminSubject is the directory administrator the
// service account impersonates when no user is implied.
func New(services Services, client *api.Client, adminSubject string, opts ...Option) *Service {
	s := &Service{
		services:     services,
		client:       client,
		adminSubject: adminSubject,
		customer:     "my_customer",
		logger:       logging.NewNoOpLogger(),
		owners:       make(map[string]string),
		byEmail:      make(map[string]types.User),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// subjectFor picks who to act as for an item: the caller's choice, else the
// user the item was last seen through, else the administrator.
func (s *Service) subjectFor(ctx context.Context, itemID string) string {
	if subject := source.SubjectFromContext(ctx); subject != "" {
		return subject
	}
	s.mu.RLock()
	subject, ok := s.owners[itemID]
	s.mu.RUnlock()
	if ok {
		return subject
	}
	return s.adminSubject
}

func (s *Service) remember(subject string, itemIDs ...string) {
	if subject == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range itemIDs {
		if id != "" {
			s.owners[id] = subject
		}
	}
}

// carry remembers subject for ids not yet tied to one
func (s *Service) carry(subject string, itemIDs ...string) {
	if subject == "" || subject == s.adminSubject {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range itemIDs {
		if _, ok := s.owners[id]; !ok && id != "" {
			s.owners[id] = subject
		}
	}
}

func (s *Service) userIDForEmail(email string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.byEmail[email]; ok {
		return u.ID
	}
	return email
}
