package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/ephemera/internal/actions"
	"github.com/keithlinneman/ephemera/internal/validate"
)

// multipartMemory is how much of a page upload is buffered in memory before
// spilling to a temp file.
const multipartMemory = 1 << 20

var pageFormFields = []string{"title", "page_date", "caption", "visibility"}

// HandleCreatePage accepts a multipart form with an "image" file part and
// the page fields as plain parts.
func (api *API) HandleCreatePage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c := callerFrom(ctx)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			api.writeMessage(ctx, w, http.StatusRequestEntityTooLarge, "Request too large")
			return
		}
		api.logger.Debug(ctx, "rejected page form", "error", err)
		api.writeMessage(ctx, w, http.StatusBadRequest, msgBadBody)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	in := validate.Input{}
	for _, k := range pageFormFields {
		if vs, ok := r.MultipartForm.Value[k]; ok && len(vs) > 0 {
			in[k] = vs[0]
		}
	}

	var img *actions.Image
	if f, hdr, err := r.FormFile("image"); err == nil {
		defer f.Close()
		img = &actions.Image{Filename: hdr.Filename, Size: hdr.Size, Body: f}
	}

	page, err := api.svc.CreatePage(ctx, c, in, img)
	if err != nil {
		api.writeError(ctx, w, err)
		return
	}
	api.writeJSON(ctx, w, http.StatusCreated, page)
}

// HandleUpdatePage applies a partial JSON patch to a page.
func (api *API) HandleUpdatePage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	in, ok := api.decodeInput(w, r)
	if !ok {
		return
	}
	in["id"] = chi.URLParam(r, "id")
	if err := api.svc.UpdatePage(ctx, callerFrom(ctx), in); err != nil {
		api.writeError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (api *API) HandleDeletePage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := api.svc.DeletePage(ctx, callerFrom(ctx), chi.URLParam(r, "id")); err != nil {
		api.writeError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (api *API) HandleUserPages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pages, err := api.svc.UserPages(ctx, callerFrom(ctx), chi.URLParam(r, "username"))
	if err != nil {
		api.writeError(ctx, w, err)
		return
	}
	api.writeJSON(ctx, w, http.StatusOK, map[string]any{"pages": pages})
}
