package cli

import (
	"context"
	"fmt"

	"github.com/dl-alexandre/docdr/internal/api"
	"github.com/dl-alexandre/docdr/internal/auth"
	"github.com/dl-alexandre/docdr/internal/blobstore"
	"github.com/dl-alexandre/docdr/internal/blobstore/gcs"
	"github.com/dl-alexandre/docdr/internal/config"
	"github.com/dl-alexandre/docdr/internal/journal"
	"github.com/dl-alexandre/docdr/internal/layout"
	"github.com/dl-alexandre/docdr/internal/logging"
	"github.com/dl-alexandre/docdr/internal/source/gworkspace"
	"github.com/dl-alexandre/docdr/internal/utils"
)

// session holds the clients a command needs
type session struct {
	factory *auth.ServiceFactory
	store   blobstore.Store
	layout  layout.Layout
	journal *journal.DB
}

func (s *session) Close() {
	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			logger.Warn("Failed to close journal", logging.F("error", err.Error()))
		}
	}
}

func authManager() (*auth.Manager, error) {
	dir, err := config.GetConfigDir()
	if err != nil {
		return nil, err
	}
	return auth.NewManagerWithOptions(dir, auth.ManagerOptions{Logger: logger}), nil
}

func newAPIClient(service string) *api.Client {
	return api.NewClient(service, cfg.MaxRetries, cfg.RetryBaseDelay, logger)
}

// openSession resolves the credentials and connects to the destination
// bucket. The journal is opened unless disabled.
func openSession(ctx context.Context) (*session, error) {
	loc, err := cfg.RequireDestination()
	if err != nil {
		return nil, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeInvalidConfig, err.Error()).Build(), err)
	}

	mgr, err := authManager()
	if err != nil {
		return nil, err
	}
	if warning := mgr.GetStorageWarning(); warning != "" {
		logger.Debug(warning)
	}
	key, err := mgr.ResolveKey(cfg.CredentialsFile, cfg.CredentialProfile)
	if err != nil {
		return nil, err
	}
	delegation, err := auth.NewDelegation(key)
	if err != nil {
		return nil, err
	}
	logger.Debug("Using service account", logging.F("email", delegation.ServiceAccountEmail()))

	factory := auth.NewServiceFactory(delegation, cfg.AdminSubject, cfg.GetRequestTimeout())
	svc, err := factory.Storage(ctx)
	if err != nil {
		return nil, err
	}

	s := &session{
		factory: factory,
		store:   gcs.New(svc, loc.Bucket, newAPIClient("storage"), logger),
		layout:  layout.New(loc.Prefix, cfg.OrganizationID),
	}
	if s.journal, err = openJournal(); err != nil {
		return nil, err
	}
	return s, nil
}

// source builds the Workspace side; only backups need it
func (s *session) source() *gworkspace.Service {
	return gworkspace.New(s.factory, newAPIClient("workspace"), cfg.AdminSubject, gworkspace.WithLogger(logger))
}

// openJournal returns nil when the journal is disabled
func openJournal() (*journal.DB, error) {
	path, err := cfg.GetJournalPath()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, nil
	}
	db, err := journal.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	return db, nil
}
