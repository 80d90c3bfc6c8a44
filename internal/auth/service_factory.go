package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	admin "google.golang.org/api/admin/directory/v1"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/driveactivity/v2"
	"google.golang.org/api/option"
	"google.golang.org/api/storage/v1"

	"github.com/dl-alexandre/docdr/internal/source/gworkspace"
	"github.com/dl-alexandre/docdr/internal/utils"
)

type ServiceType string

const (
	ServiceDrive     ServiceType = "drive"
	ServiceActivity  ServiceType = "driveactivity"
	ServiceDirectory ServiceType = "admin_directory"
	ServiceStorage   ServiceType = "storage"
)

// RequiredScopesForService returns the scopes a service is created with
func RequiredScopesForService(svcType ServiceType) []string {
	switch svcType {
	case ServiceDrive:
		return []string{utils.ScopeDriveReadonly}
	case ServiceActivity:
		return []string{utils.ScopeActivityReadonly}
	case ServiceDirectory:
		return []string{utils.ScopeAdminDirectoryUserReadonly}
	case ServiceStorage:
		return utils.ScopesDestination
	default:
		return nil
	}
}

// ServiceFactory builds API clients from a delegation. Directory calls act
// as the admin subject, storage calls as the service account itself.
type ServiceFactory struct {
	delegation    *Delegation
	adminSubject  string
	headerTimeout time.Duration
	extra         []option.ClientOption
}

var _ gworkspace.Services = (*ServiceFactory)(nil)

// NewServiceFactory returns a factory. headerTimeout bounds the wait for a
// response; bodies may stream for longer. extra options are passed to every
// client, e.g. an endpoint override in tests.
func NewServiceFactory(delegation *Delegation, adminSubject string, headerTimeout time.Duration, extra ...option.ClientOption) *ServiceFactory {
	return &ServiceFactory{
		delegation:    delegation,
		adminSubject:  adminSubject,
		headerTimeout: headerTimeout,
		extra:         extra,
	}
}

func (f *ServiceFactory) options(ctx context.Context, subject string, svcType ServiceType) ([]option.ClientOption, error) {
	ts, err := f.delegation.TokenSource(ctx, subject, RequiredScopesForService(svcType))
	if err != nil {
		return nil, err
	}
	base := http.DefaultTransport.(*http.Transport).Clone()
	if f.headerTimeout > 0 {
		base.ResponseHeaderTimeout = f.headerTimeout
	}
	client := &http.Client{Transport: &oauth2.Transport{Source: ts, Base: base}}
	return append([]option.ClientOption{option.WithHTTPClient(client)}, f.extra...), nil
}

// Drive returns a Drive client acting as subject
func (f *ServiceFactory) Drive(ctx context.Context, subject string) (*drive.Service, error) {
	opts, err := f.options(ctx, subject, ServiceDrive)
	if err != nil {
		return nil, err
	}
	return drive.NewService(ctx, opts...)
}

// Activity returns a Drive Activity client acting as subject
func (f *ServiceFactory) Activity(ctx context.Context, subject string) (*driveactivity.Service, error) {
	opts, err := f.options(ctx, subject, ServiceActivity)
	if err != nil {
		return nil, err
	}
	return driveactivity.NewService(ctx, opts...)
}

// Directory returns an Admin Directory client acting as the admin subject
func (f *ServiceFactory) Directory(ctx context.Context) (*admin.Service, error) {
	if f.adminSubject == "" {
		return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidConfig,
			"an admin subject is required to list users (config adminSubject or --admin)").Build())
	}
	opts, err := f.options(ctx, f.adminSubject, ServiceDirectory)
	if err != nil {
		return nil, err
	}
	return admin.NewService(ctx, opts...)
}

// Storage returns a Cloud Storage client acting as the service account
func (f *ServiceFactory) Storage(ctx context.Context) (*storage.Service, error) {
	opts, err := f.options(ctx, "", ServiceStorage)
	if err != nil {
		return nil, err
	}
	svc, err := storage.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return svc, nil
}
