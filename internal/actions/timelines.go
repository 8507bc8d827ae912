package actions

import (
	"context"

	"github.com/keithlinneman/ephemera/internal/audit"
	"github.com/keithlinneman/ephemera/internal/baas"
	"github.com/keithlinneman/ephemera/internal/ratelimit"
	"github.com/keithlinneman/ephemera/internal/sanitize"
	"github.com/keithlinneman/ephemera/internal/validate"
)

func timelineInput(raw validate.Input, required ...string) validate.Input {
	in := validate.Input{}
	for _, k := range []string{"id", "name", "description", "color", "icon", "visibility"} {
		if v, ok := raw[k]; ok {
			in[k] = v
		}
	}
	blank(in, required...)
	clean(in, sanitize.SingleLine, "name")
	if d, ok := in["description"]; ok && (d == nil || d == "") {
		in["description"] = nil
	}
	clean(in, sanitize.Text, "description")
	cleanUUID(in, "id")
	return in
}

// CreateTimeline creates a timeline owned by the caller.
func (s *Service) CreateTimeline(ctx context.Context, c Caller, raw validate.Input) (baas.Row, error) {
	const action = "timeline.create"
	user, err := requireUser(c, MsgNotAuthenticated)
	if err != nil {
		return nil, err
	}
	if err := s.limit(ctx, c, user.ID, action, ratelimit.Create); err != nil {
		return nil, err
	}

	in := timelineInput(raw, "name")
	delete(in, "id")
	s.detect(ctx, c, raw, "timeline.", "name", "description")

	out, err := s.check(ctx, c, action, validate.Timeline, in)
	if err != nil {
		return nil, err
	}

	r := row(out, "description")
	r["user_id"] = user.ID
	stored, err := s.store.Insert(ctx, baas.TableTimelines, r)
	if err != nil {
		return nil, s.backendFailure(ctx, err, "insert timeline")
	}
	id, _ := stored["id"].(string)
	s.auditor.DataChange(ctx, c.actor(), audit.ResourceTimeline, audit.OpCreate, id, nil)
	return stored, nil
}

// UpdateTimeline applies the given subset of timeline fields to a timeline
// the caller owns. Absent fields keep their stored values.
func (s *Service) UpdateTimeline(ctx context.Context, c Caller, raw validate.Input) error {
	const action = "timeline.update"
	user, err := requireUser(c, MsgNotAuthenticated)
	if err != nil {
		return err
	}
	if err := s.limit(ctx, c, user.ID, action, ratelimit.Modify); err != nil {
		return err
	}
	if !rawIDs(raw, "id") {
		return s.rejectID(ctx, c, action, MsgInvalidTimeline)
	}

	in := timelineInput(raw)
	s.detect(ctx, c, raw, "timeline.", "name", "description")

	out, err := s.check(ctx, c, action, validate.TimelineUpdate, in)
	if err != nil {
		return err
	}

	id := out.String("id")
	patch := patchFrom(out, []string{"id"}, "description")
	n, err := s.store.Update(ctx, baas.TableTimelines, baas.Filter{"id": id, "user_id": user.ID}, patch)
	if err != nil {
		return s.backendFailure(ctx, err, "update timeline")
	}
	if n == 0 {
		return notFound(MsgTimelineNotFound)
	}

	s.auditor.DataChange(ctx, c.actor(), audit.ResourceTimeline, audit.OpUpdate, id, map[string]any{"fields": sortedKeys(patch)})
	return nil
}

// DeleteTimeline removes a timeline the caller owns and its page assignments.
func (s *Service) DeleteTimeline(ctx context.Context, c Caller, timelineID string) error {
	const action = "timeline.delete"
	user, err := requireUser(c, MsgNotAuthenticated)
	if err != nil {
		return err
	}
	if err := s.limit(ctx, c, user.ID, action, ratelimit.Modify); err != nil {
		return err
	}
	id, ok := validID(timelineID)
	if !ok {
		return s.rejectID(ctx, c, action, MsgInvalidTimeline)
	}

	n, err := s.store.Delete(ctx, baas.TableTimelines, baas.Filter{"id": id, "user_id": user.ID})
	if err != nil {
		return s.backendFailure(ctx, err, "delete timeline")
	}
	if n == 0 {
		return notFound(MsgTimelineNotFound)
	}
	if _, err := s.store.Delete(ctx, baas.TablePageTimelines, baas.Filter{"timeline_id": id}); err != nil {
		return s.backendFailure(ctx, err, "delete timeline assignments")
	}

	s.auditor.DataChange(ctx, c.actor(), audit.ResourceTimeline, audit.OpDelete, id, nil)
	return nil
}

// Timelines lists the caller's timelines.
func (s *Service) Timelines(ctx context.Context, c Caller) ([]baas.Row, error) {
	user, err := requireUser(c, MsgNotAuthenticated)
	if err != nil {
		return nil, err
	}
	if err := s.limit(ctx, c, user.ID, "timeline.read", ratelimit.Read); err != nil {
		return nil, err
	}
	rows, err := s.store.Select(ctx, baas.TableTimelines, baas.Filter{"user_id": user.ID})
	if err != nil {
		return nil, s.backendFailure(ctx, err, "select timelines")
	}
	return rows, nil
}

// AssignPageTimelines replaces the set of timelines a page belongs to. The
// page and every timeline must belong to the caller.
func (s *Service) AssignPageTimelines(ctx context.Context, c Caller, pageID string, timelineIDs []string) error {
	const action = "timeline.assign"
	user, err := requireUser(c, MsgNotAuthenticated)
	if err != nil {
		return err
	}
	if err := s.limit(ctx, c, user.ID, action, ratelimit.Modify); err != nil {
		return err
	}

	pid, ok := validID(pageID)
	if !ok {
		return s.rejectID(ctx, c, action, MsgInvalidPageID)
	}
	ids := make([]string, 0, len(timelineIDs))
	seen := make(map[string]bool, len(timelineIDs))
	for _, raw := range timelineIDs {
		id, ok := validID(raw)
		if !ok {
			return s.rejectID(ctx, c, action, MsgInvalidTimeline)
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	if _, err := s.ownedPage(ctx, user.ID, pid); err != nil {
		return err
	}
	for _, id := range ids {
		rows, err := s.store.Select(ctx, baas.TableTimelines, baas.Filter{"id": id, "user_id": user.ID})
		if err != nil {
			return s.backendFailure(ctx, err, "select timeline")
		}
		if len(rows) == 0 {
			return notFound(MsgTimelineNotFound)
		}
	}

	if _, err := s.store.Delete(ctx, baas.TablePageTimelines, baas.Filter{"page_id": pid}); err != nil {
		return s.backendFailure(ctx, err, "clear page timelines")
	}
	for _, id := range ids {
		if _, err := s.store.Insert(ctx, baas.TablePageTimelines, baas.Row{"page_id": pid, "timeline_id": id}); err != nil {
			return s.backendFailure(ctx, err, "insert page timeline")
		}
	}

	s.auditor.DataChange(ctx, c.actor(), audit.ResourcePageTimelines, audit.OpUpdate, pid, map[string]any{"timeline_ids": ids})
	return nil
}

// PageTimelines returns the ids of the timelines a page belongs to.
func (s *Service) PageTimelines(ctx context.Context, c Caller, pageID string) ([]string, error) {
	user, err := requireUser(c, MsgNotAuthenticated)
	if err != nil {
		return nil, err
	}
	if err := s.limit(ctx, c, user.ID, "timeline.read", ratelimit.Read); err != nil {
		return nil, err
	}
	pid, ok := validID(pageID)
	if !ok {
		return nil, invalid(MsgInvalidPageID)
	}
	if _, err := s.ownedPage(ctx, user.ID, pid); err != nil {
		return nil, err
	}

	rows, err := s.store.Select(ctx, baas.TablePageTimelines, baas.Filter{"page_id": pid})
	if err != nil {
		return nil, s.backendFailure(ctx, err, "select page timelines")
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		if id, ok := r["timeline_id"].(string); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
