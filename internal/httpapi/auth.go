package httpapi

import "net/http"

// HandleSignIn exchanges email/password for a session.
func (api *API) HandleSignIn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	in, ok := api.decodeInput(w, r)
	if !ok {
		return
	}
	sess, err := api.svc.SignIn(ctx, callerFrom(ctx), in)
	if err != nil {
		api.writeError(ctx, w, err)
		return
	}
	api.writeJSON(ctx, w, http.StatusOK, sess)
}

// HandleSignUp registers a user and returns their first session.
func (api *API) HandleSignUp(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	in, ok := api.decodeInput(w, r)
	if !ok {
		return
	}
	sess, err := api.svc.SignUp(ctx, callerFrom(ctx), in)
	if err != nil {
		api.writeError(ctx, w, err)
		return
	}
	api.writeJSON(ctx, w, http.StatusCreated, sess)
}

func (api *API) HandleSignOut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := api.svc.SignOut(ctx, callerFrom(ctx)); err != nil {
		api.writeError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
