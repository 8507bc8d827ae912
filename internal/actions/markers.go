package actions

import (
	"context"

	"github.com/keithlinneman/ephemera/internal/audit"
	"github.com/keithlinneman/ephemera/internal/baas"
	"github.com/keithlinneman/ephemera/internal/ratelimit"
	"github.com/keithlinneman/ephemera/internal/sanitize"
	"github.com/keithlinneman/ephemera/internal/validate"
)

var markerColumns = []string{"note", "category", "source_date", "source_location"}

// markerInput copies and sanitizes the marker keys of raw. Keys in required
// read as "" when absent.
func markerInput(raw validate.Input, required ...string) validate.Input {
	in := validate.Input{}
	for _, k := range []string{"id", "page_id", "x", "y", "label", "note", "category", "source_date", "source_location"} {
		if v, ok := raw[k]; ok {
			in[k] = v
		}
	}
	blank(in, required...)
	dropEmpty(in, "note", "category", "source_location")
	if in["source_date"] == nil {
		delete(in, "source_date")
	}
	cleanUUID(in, "id", "page_id")
	cleanCoordinate(in, "x")
	cleanCoordinate(in, "y")
	clean(in, sanitize.SingleLine, "label", "category", "source_location")
	clean(in, sanitize.Text, "note")
	return in
}

// CreateMarker adds a marker to a page the caller owns.
func (s *Service) CreateMarker(ctx context.Context, c Caller, raw validate.Input) (baas.Row, error) {
	const action = "marker.create"
	user, err := requireUser(c, MsgNotAuthenticated)
	if err != nil {
		return nil, err
	}
	if err := s.limit(ctx, c, user.ID, action, ratelimit.Create); err != nil {
		return nil, err
	}

	in := markerInput(raw, "label")
	delete(in, "id")
	s.detect(ctx, c, raw, "marker.", "label", "note", "category", "source_location")

	out, err := s.check(ctx, c, action, validate.Marker, in)
	if err != nil {
		return nil, err
	}
	pageID := out.String("page_id")
	if _, err := s.ownedPage(ctx, user.ID, pageID); err != nil {
		return nil, err
	}

	stored, err := s.store.Insert(ctx, baas.TableMarkers, row(out, markerColumns...))
	if err != nil {
		return nil, s.backendFailure(ctx, err, "insert marker")
	}
	id, _ := stored["id"].(string)
	s.auditor.DataChange(ctx, c.actor(), audit.ResourceMarker, audit.OpCreate, id, map[string]any{"page_id": pageID})
	return stored, nil
}

// UpdateMarker applies the given subset of marker fields to a marker on a
// page the caller owns. id and page_id are always required.
func (s *Service) UpdateMarker(ctx context.Context, c Caller, raw validate.Input) error {
	const action = "marker.update"
	user, err := requireUser(c, MsgNotAuthenticated)
	if err != nil {
		return err
	}
	if err := s.limit(ctx, c, user.ID, action, ratelimit.Modify); err != nil {
		return err
	}
	if !rawIDs(raw, "id", "page_id") {
		return s.rejectID(ctx, c, action, MsgInvalidMarker)
	}

	in := markerInput(raw)
	s.detect(ctx, c, raw, "marker.", "label", "note", "category", "source_location")

	out, err := s.check(ctx, c, action, validate.MarkerUpdate, in)
	if err != nil {
		return err
	}
	id, pageID := out.String("id"), out.String("page_id")
	if _, err := s.ownedPage(ctx, user.ID, pageID); err != nil {
		return err
	}

	patch := patchFrom(out, []string{"id", "page_id"}, markerColumns...)
	n, err := s.store.Update(ctx, baas.TableMarkers, baas.Filter{"id": id, "page_id": pageID}, patch)
	if err != nil {
		return s.backendFailure(ctx, err, "update marker")
	}
	if n == 0 {
		return notFound(MsgMarkerNotFound)
	}

	s.auditor.DataChange(ctx, c.actor(), audit.ResourceMarker, audit.OpUpdate, id, map[string]any{"page_id": pageID, "fields": sortedKeys(patch)})
	return nil
}

// DeleteMarker removes a marker from a page the caller owns.
func (s *Service) DeleteMarker(ctx context.Context, c Caller, markerID, pageID string) error {
	const action = "marker.delete"
	user, err := requireUser(c, MsgNotAuthenticated)
	if err != nil {
		return err
	}
	if err := s.limit(ctx, c, user.ID, action, ratelimit.Modify); err != nil {
		return err
	}
	id, ok1 := validID(markerID)
	pid, ok2 := validID(pageID)
	if !ok1 || !ok2 {
		return s.rejectID(ctx, c, action, MsgInvalidMarker)
	}
	if _, err := s.ownedPage(ctx, user.ID, pid); err != nil {
		return err
	}

	n, err := s.store.Delete(ctx, baas.TableMarkers, baas.Filter{"id": id, "page_id": pid})
	if err != nil {
		return s.backendFailure(ctx, err, "delete marker")
	}
	if n == 0 {
		return notFound(MsgMarkerNotFound)
	}

	s.auditor.DataChange(ctx, c.actor(), audit.ResourceMarker, audit.OpDelete, id, map[string]any{"page_id": pid})
	return nil
}

// PageMarkers lists the markers of a page the caller may read.
func (s *Service) PageMarkers(ctx context.Context, c Caller, pageID string) ([]baas.Row, error) {
	if err := s.limit(ctx, c, c.readIdentifier(), "marker.read", ratelimit.Read); err != nil {
		return nil, err
	}
	id, ok := validID(pageID)
	if !ok {
		return nil, invalid(MsgInvalidPageID)
	}
	if _, err := s.visiblePage(ctx, c, id); err != nil {
		return nil, err
	}
	rows, err := s.store.Select(ctx, baas.TableMarkers, baas.Filter{"page_id": id})
	if err != nil {
		return nil, s.backendFailure(ctx, err, "select markers")
	}
	return rows, nil
}

// rawIDs reports whether every key holds a well formed UUID string.
func rawIDs(raw validate.Input, keys ...string) bool {
	for _, k := range keys {
		s, ok := raw[k].(string)
		if !ok {
			return false
		}
		if _, ok := validID(s); !ok {
			return false
		}
	}
	return true
}
