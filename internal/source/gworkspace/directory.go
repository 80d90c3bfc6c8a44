package gworkspace

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dl-alexandre/docdr/internal/api"
	"github.com/dl-alexandre/docdr/internal/logging"
	"github.com/dl-alexandre/docdr/internal/types"
	"github.com/dl-alexandre/docdr/internal/utils"
	admin "google.golang.org/api/admin/directory/v1"
	"google.golang.org/api/drive/v3"
)

const (
	userStatusActive    = "ACTIVE"
	userStatusSuspended = "SUSPENDED"
)

// ListUsers lists directory users and looks up each one's root folder
func (s *Service) ListUsers(ctx context.Context, filter types.Filter, includeAll bool) ([]types.User, error) {
	dir, err := s.services.Directory(ctx)
	if err != nil {
		return nil, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeAuthInvalid,
			"cannot create Directory client").Build(), err)
	}

	reqCtx := s.client.NewRequestContext(ctx, types.RequestTypeListOrSearch)
	reqCtx.Subject = s.adminSubject

	var raw []*admin.User
	if filter.UserQuery != "" && strings.Contains(filter.UserQuery, "@") {
		u, err := api.ExecuteWithRetry(ctx, s.client, reqCtx, func() (*admin.User, error) {
			return dir.Users.Get(filter.UserQuery).Context(ctx).Do()
		})
		if err != nil {
			return nil, err
		}
		raw = append(raw, u)
	} else {
		pageToken := ""
		for {
			call := dir.Users.List().Customer(s.customer).MaxResults(500).OrderBy("email").Context(ctx)
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}
			page, err := api.ExecuteWithRetry(ctx, s.client, reqCtx, func() (*admin.Users, error) {
				return call.Do()
			})
			if err != nil {
				return nil, err
			}
			raw = append(raw, page.Users...)
			if page.NextPageToken == "" {
				break
			}
			pageToken = page.NextPageToken
		}
	}

	var users []types.User
	for _, du := range raw {
		user := convertUser(du)
		if !filter.MatchesUser(user) {
			continue
		}
		if user.Status != userStatusActive && !includeAll {
			s.logger.Debug("Skipping suspended user", logging.F("user", user.Username))
			continue
		}

		rootID, err := s.rootFolderID(ctx, user.Email)
		if err != nil {
			if utils.IsUnreachable(err) {
				s.logger.Warn("Skipping user without a visible drive",
					logging.F("user", user.Username),
					logging.F("error", err.Error()),
				)
				continue
			}
			return nil, fmt.Errorf("root folder of %s: %w", user.Username, err)
		}
		user.RootFolderID = rootID
		users = append(users, user)
	}

	s.mu.Lock()
	s.users = users
	for _, u := range users {
		s.byEmail[u.Email] = u
		s.owners[u.RootFolderID] = u.Email
	}
	s.mu.Unlock()

	return users, nil
}

func (s *Service) rootFolderID(ctx context.Context, email string) (string, error) {
	svc, err := s.drive(ctx, email)
	if err != nil {
		return "", err
	}
	reqCtx := s.client.NewRequestContext(ctx, types.RequestTypeGetByID, "root")
	reqCtx.Subject = email
	root, err := api.ExecuteWithRetry(ctx, s.client, reqCtx, func() (*drive.File, error) {
		return svc.Files.Get("root").Fields("id").Context(ctx).Do()
	})
	if err != nil {
		return "", err
	}
	return root.Id, nil
}

// knownUsers returns the users seen by the last ListUsers, listing them if
// nothing was listed yet.
func (s *Service) knownUsers(ctx context.Context) ([]types.User, error) {
	s.mu.RLock()
	users := s.users
	s.mu.RUnlock()
	if users != nil {
		return users, nil
	}
	return s.ListUsers(ctx, types.Filter{}, false)
}

func convertUser(u *admin.User) types.User {
	if u == nil {
		return types.User{}
	}
	user := types.User{
		ID:             u.Id,
		Username:       u.PrimaryEmail,
		Email:          u.PrimaryEmail,
		OrganizationID: u.CustomerId,
		Status:         userStatusActive,
		ModifiedAt:     latest(parseTime(u.CreationTime), parseTime(u.LastLoginTime)),
	}
	if u.Name != nil {
		user.GivenName = u.Name.GivenName
		user.Surname = u.Name.FamilyName
	}
	if u.Suspended || u.Archived {
		user.Status = userStatusSuspended
	}
	return user
}

func latest(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
