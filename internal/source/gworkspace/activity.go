package gworkspace

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dl-alexandre/docdr/internal/api"
	"github.com/dl-alexandre/docdr/internal/logging"
	"github.com/dl-alexandre/docdr/internal/types"
	"github.com/dl-alexandre/docdr/internal/utils"
	"google.golang.org/api/driveactivity/v2"
)

const actionFilter = "detail.action_detail_case:(CREATE EDIT MOVE RENAME DELETE RESTORE)"

// ListActivities reads the activity feed of every known user and merges it
func (s *Service) ListActivities(ctx context.Context, since time.Time, activityTypes []types.ActivityType) ([]types.ActivityEvent, error) {
	users, err := s.knownUsers(ctx)
	if err != nil {
		return nil, err
	}

	wanted := make(map[types.ActivityType]bool, len(activityTypes))
	for _, t := range activityTypes {
		wanted[t] = true
	}

	type eventKey struct {
		kind types.ActivityType
		id   string
		at   time.Time
	}
	seen := make(map[eventKey]bool)
	var events []types.ActivityEvent

	for _, user := range users {
		userEvents, err := s.userActivities(ctx, user, since)
		if err != nil {
			if utils.IsUnreachable(err) {
				s.logger.Warn("Skipping activity of user",
					logging.F("user", user.Username),
					logging.F("error", err.Error()),
				)
				continue
			}
			return nil, err
		}
		for _, ev := range userEvents {
			if len(wanted) > 0 && !wanted[ev.Type] {
				continue
			}
			key := eventKey{ev.Type, ev.ResourceID, ev.Timestamp}
			if seen[key] {
				continue
			}
			seen[key] = true
			events = append(events, ev)
		}
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
	return events, nil
}

func (s *Service) userActivities(ctx context.Context, user types.User, since time.Time) ([]types.ActivityEvent, error) {
	svc, err := s.services.Activity(ctx, user.Email)
	if err != nil {
		return nil, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeAuthInvalid,
			fmt.Sprintf("cannot create Drive Activity client for %s", user.Email)).Build(), err)
	}

	reqCtx := s.client.NewRequestContext(ctx, types.RequestTypeListOrSearch)
	reqCtx.Subject = user.Email

	req := &driveactivity.QueryDriveActivityRequest{
		AncestorName: "items/" + user.RootFolderID,
		Filter:       buildFilter(since),
		PageSize:     100,
	}

	var events []types.ActivityEvent
	for {
		resp, err := api.ExecuteWithRetry(ctx, s.client, reqCtx, func() (*driveactivity.QueryDriveActivityResponse, error) {
			return svc.Activity.Query(req).Context(ctx).Do()
		})
		if err != nil {
			return nil, err
		}
		for _, act := range resp.Activities {
			converted := convertActivity(act)
			for _, ev := range converted {
				s.remember(user.Email, ev.ResourceID)
			}
			events = append(events, converted...)
		}
		if resp.NextPageToken == "" {
			break
		}
		req.PageToken = resp.NextPageToken
	}
	return events, nil
}

func buildFilter(since time.Time) string {
	if since.IsZero() {
		return actionFilter
	}
	return fmt.Sprintf(`time >= "%s" AND %s`, since.UTC().Format(time.RFC3339), actionFilter)
}

// convertActivity maps one feed entry onto zero or more events, one per
// Drive item it touched.
func convertActivity(act *driveactivity.DriveActivity) []types.ActivityEvent {
	if act == nil || act.PrimaryActionDetail == nil {
		return nil
	}

	at := activityTime(act)
	var events []types.ActivityEvent
	for _, target := range act.Targets {
		if target == nil || target.DriveItem == nil {
			continue
		}
		item := target.DriveItem
		kind := types.KindDocument
		if item.DriveFolder != nil || item.MimeType == utils.MimeTypeFolder {
			kind = types.KindFolder
		}

		activityType, ok := classify(act.PrimaryActionDetail, kind)
		if !ok {
			continue
		}

		ev := types.ActivityEvent{
			Type:       activityType,
			ResourceID: itemID(item.Name),
			Kind:       kind,
			Timestamp:  at,
			OwnerID:    ownerID(item),
		}
		if move := act.PrimaryActionDetail.Move; move != nil && len(move.RemovedParents) > 0 {
			if ref := move.RemovedParents[0]; ref != nil && ref.DriveItem != nil {
				ev.OriginalParentID = itemID(ref.DriveItem.Name)
			}
		}
		events = append(events, ev)
	}
	return events
}

func classify(detail *driveactivity.ActionDetail, kind types.ResourceKind) (types.ActivityType, bool) {
	folder := kind == types.KindFolder
	pick := func(forFolder, forDocument types.ActivityType) (types.ActivityType, bool) {
		if folder {
			return forFolder, true
		}
		return forDocument, true
	}

	switch {
	case detail.Create != nil:
		return pick(types.ActivityFolderCreated, types.ActivityDocumentVersionUploaded)
	case detail.Edit != nil:
		if folder {
			return "", false
		}
		return types.ActivityDocumentVersionUploaded, true
	case detail.Move != nil:
		return pick(types.ActivityFolderMoved, types.ActivityDocumentMoved)
	case detail.Rename != nil:
		return pick(types.ActivityFolderRenamed, types.ActivityDocumentRenamed)
	case detail.Delete != nil:
		if detail.Delete.Type == "PERMANENT_DELETE" {
			return pick(types.ActivityFolderDeleted, types.ActivityDocumentRecycled)
		}
		return pick(types.ActivityFolderRecycled, types.ActivityDocumentRecycled)
	case detail.Restore != nil:
		return pick(types.ActivityFolderRestored, types.ActivityDocumentRestored)
	}
	return "", false
}

func activityTime(act *driveactivity.DriveActivity) time.Time {
	if act.Timestamp != "" {
		return parseTime(act.Timestamp)
	}
	if act.TimeRange != nil {
		return parseTime(act.TimeRange.EndTime)
	}
	return time.Time{}
}

func itemID(name string) string {
	return strings.TrimPrefix(name, "items/")
}

func ownerID(item *driveactivity.DriveItem) string {
	if item.Owner == nil || item.Owner.User == nil || item.Owner.User.KnownUser == nil {
		return ""
	}
	return strings.TrimPrefix(item.Owner.User.KnownUser.PersonName, "people/")
}
