package actions

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"regexp"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/keithlinneman/ephemera/internal/audit"
	"github.com/keithlinneman/ephemera/internal/baas"
	"github.com/keithlinneman/ephemera/internal/ratelimit"
	"github.com/keithlinneman/ephemera/internal/sanitize"
	"github.com/keithlinneman/ephemera/internal/validate"
)

// AllowedImageTypes are the accepted page image content types, by sniffed
// content rather than the client's claim.
var AllowedImageTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

var (
	imageExtensions = []string{"jpg", "jpeg", "png", "gif", "webp"}
	nonAlnum        = regexp.MustCompile(`[^a-z0-9]`)
)

// Image is an uploaded page image.
type Image struct {
	Filename string
	Size     int64
	Body     io.Reader
}

// safeExtension derives a storage extension from a client filename, falling
// back to jpg.
func safeExtension(filename string) string {
	ext := strings.TrimPrefix(path.Ext(filename), ".")
	ext = nonAlnum.ReplaceAllString(strings.ToLower(ext), "")
	if slices.Contains(imageExtensions, ext) {
		return ext
	}
	return "jpg"
}

// ImageKey is where a page's image is stored.
func ImageKey(userID, pageID, filename string) string {
	return fmt.Sprintf("%s/%s/original.%s", userID, pageID, safeExtension(filename))
}

// CreatePage stores img and inserts the page row. The uploaded image is
// removed again when the insert fails.
func (s *Service) CreatePage(ctx context.Context, c Caller, raw validate.Input, img *Image) (baas.Row, error) {
	const action = "page.create"
	user, err := requireUser(c, MsgSignInToCreate)
	if err != nil {
		return nil, err
	}
	if err := s.limit(ctx, c, user.ID, action, ratelimit.Create); err != nil {
		return nil, err
	}

	if img == nil || img.Body == nil || img.Size == 0 {
		return nil, invalid(MsgImageRequired)
	}
	head := make([]byte, 512)
	n, err := io.ReadFull(img.Body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, s.backendFailure(ctx, err, "read image")
	}
	head = head[:n]
	contentType := http.DetectContentType(head)
	if !slices.Contains(AllowedImageTypes, contentType) {
		s.auditor.ValidationFailure(ctx, c.actor(), action, "image", "Invalid file type: "+contentType, "")
		s.recorder.IncValidationFailure("page")
		return nil, invalid(MsgImageType)
	}
	if img.Size > s.maxUpload {
		s.auditor.ValidationFailure(ctx, c.actor(), action, "image", "File too large", "")
		s.recorder.IncValidationFailure("page")
		return nil, invalid(fmt.Sprintf("Image too large. Maximum size is %dMB.", s.maxUpload>>20))
	}

	in := pageInput(raw)
	s.detect(ctx, c, raw, "", "title", "caption")

	out, err := s.check(ctx, c, action, validate.Page, in)
	if err != nil {
		return nil, err
	}

	pageID := uuid.NewString()
	key := ImageKey(user.ID, pageID, img.Filename)
	body := io.LimitReader(io.MultiReader(bytes.NewReader(head), img.Body), img.Size)
	if err := s.blobs.Put(ctx, key, body, img.Size, contentType); err != nil {
		return nil, s.backendFailure(ctx, err, "upload page image")
	}

	r := row(out, "title", "caption")
	r["id"] = pageID
	r["user_id"] = user.ID
	r["image_path"] = key
	stored, err := s.store.Insert(ctx, baas.TablePages, r)
	if err != nil {
		if derr := s.blobs.Delete(ctx, key); derr != nil {
			s.logger.Warn(ctx, "failed to remove orphaned page image", "key", key, "err", derr)
		}
		return nil, s.backendFailure(ctx, err, "insert page")
	}

	s.auditor.DataChange(ctx, c.actor(), audit.ResourcePage, audit.OpCreate, pageID, nil)
	return stored, nil
}

func pageInput(raw validate.Input) validate.Input {
	in := validate.Input{}
	for _, k := range []string{"id", "title", "page_date", "caption", "visibility"} {
		if v, ok := raw[k]; ok {
			in[k] = v
		}
	}
	dropEmpty(in, "title", "caption")
	clean(in, sanitize.SingleLine, "title")
	clean(in, sanitize.Text, "caption")
	cleanUUID(in, "id")
	return in
}

// UpdatePage applies the given subset of page fields to a page the caller owns.
func (s *Service) UpdatePage(ctx context.Context, c Caller, raw validate.Input) error {
	const action = "page.update"
	user, err := requireUser(c, MsgNotAuthenticated)
	if err != nil {
		return err
	}
	if err := s.limit(ctx, c, user.ID, action, ratelimit.Modify); err != nil {
		return err
	}

	in := pageInput(raw)
	s.detect(ctx, c, raw, "", "title", "caption")

	out, err := s.check(ctx, c, action, validate.PageUpdate, in)
	if err != nil {
		return err
	}

	id := out.String("id")
	patch := patchFrom(out, []string{"id"}, "title", "caption")
	fields := sortedKeys(patch)

	n, err := s.store.Update(ctx, baas.TablePages, baas.Filter{"id": id, "user_id": user.ID}, patch)
	if err != nil {
		return s.backendFailure(ctx, err, "update page")
	}
	if n == 0 {
		return notFound(MsgPageNotFound)
	}

	s.auditor.DataChange(ctx, c.actor(), audit.ResourcePage, audit.OpUpdate, id, map[string]any{"fields": fields})
	return nil
}

// DeletePage removes a page the caller owns together with its markers,
// timeline assignments and image.
func (s *Service) DeletePage(ctx context.Context, c Caller, pageID string) error {
	const action = "page.delete"
	user, err := requireUser(c, MsgNotAuthenticated)
	if err != nil {
		return err
	}
	if err := s.limit(ctx, c, user.ID, action, ratelimit.Modify); err != nil {
		return err
	}
	id, ok := validID(pageID)
	if !ok {
		return s.rejectID(ctx, c, action, MsgInvalidPageID)
	}

	page, err := s.ownedPage(ctx, user.ID, id)
	if err != nil {
		return err
	}

	if _, err := s.store.Delete(ctx, baas.TableMarkers, baas.Filter{"page_id": id}); err != nil {
		return s.backendFailure(ctx, err, "delete page markers")
	}
	if _, err := s.store.Delete(ctx, baas.TablePageTimelines, baas.Filter{"page_id": id}); err != nil {
		return s.backendFailure(ctx, err, "delete page timelines")
	}
	if _, err := s.store.Delete(ctx, baas.TablePages, baas.Filter{"id": id, "user_id": user.ID}); err != nil {
		return s.backendFailure(ctx, err, "delete page")
	}
	if key, _ := page["image_path"].(string); key != "" {
		if err := s.blobs.Delete(ctx, key); err != nil {
			s.logger.Warn(ctx, "failed to remove page image", "key", key, "err", err)
		}
	}

	s.auditor.DataChange(ctx, c.actor(), audit.ResourcePage, audit.OpDelete, id, nil)
	return nil
}

// ownedPage fetches a page owned by userID.
func (s *Service) ownedPage(ctx context.Context, userID, pageID string) (baas.Row, error) {
	rows, err := s.store.Select(ctx, baas.TablePages, baas.Filter{"id": pageID, "user_id": userID})
	if err != nil {
		return nil, s.backendFailure(ctx, err, "select page")
	}
	if len(rows) == 0 {
		return nil, notFound(MsgPageNotFound)
	}
	return rows[0], nil
}

// visiblePage fetches a page the caller may read: their own, or any page
// that is not private.
func (s *Service) visiblePage(ctx context.Context, c Caller, pageID string) (baas.Row, error) {
	rows, err := s.store.Select(ctx, baas.TablePages, baas.Filter{"id": pageID})
	if err != nil {
		return nil, s.backendFailure(ctx, err, "select page")
	}
	if len(rows) == 0 {
		return nil, notFound(MsgPageNotFound)
	}
	p := rows[0]
	if p["visibility"] == "private" && (c.User == nil || p["user_id"] != c.User.ID) {
		return nil, notFound(MsgPageNotFound)
	}
	return p, nil
}

// UserPages lists a user's pages. Other callers only see public pages.
func (s *Service) UserPages(ctx context.Context, c Caller, username string) ([]baas.Row, error) {
	if err := s.limit(ctx, c, c.readIdentifier(), "page.read", ratelimit.Read); err != nil {
		return nil, err
	}
	name := sanitize.Username(username)
	if name == "" {
		return nil, notFound(MsgUserNotFound)
	}
	u, err := s.auth.UserByUsername(ctx, name)
	if err != nil {
		if errors.Is(err, baas.ErrNotFound) {
			return nil, notFound(MsgUserNotFound)
		}
		return nil, s.backendFailure(ctx, err, "lookup user")
	}

	f := baas.Filter{"user_id": u.ID}
	if c.User == nil || c.User.ID != u.ID {
		f["visibility"] = "public"
	}
	rows, err := s.store.Select(ctx, baas.TablePages, f)
	if err != nil {
		return nil, s.backendFailure(ctx, err, "select pages")
	}
	return rows, nil
}
