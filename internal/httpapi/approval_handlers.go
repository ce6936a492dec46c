package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"sameieportalen.no/internal/admin"
	"sameieportalen.no/internal/approval"
	"sameieportalen.no/internal/auth"
	"sameieportalen.no/internal/obs"
)

var outcomeStatus = map[approval.Outcome]int{
	approval.OutcomeRecorded:         http.StatusOK,
	approval.OutcomeAlreadyProcessed: http.StatusOK,
	approval.OutcomeInvalidRequest:   http.StatusBadRequest,
	approval.OutcomeInvalidLink:      http.StatusNotFound,
	approval.OutcomeExpired:          http.StatusGone,
	approval.OutcomeSuperseded:       http.StatusGone,
	approval.OutcomeError:            http.StatusInternalServerError,
}

// ApprovalCallback answers the links in approval emails with an HTML page.
func (a *API) ApprovalCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resp := a.approvals.HandleCallback(r.Context(), approval.CallbackRequest{
		BatchID: q.Get("gid"),
		Token:   q.Get("token"),
		Action:  q.Get("action"),
		Comment: q.Get("comment"),
	})
	code, ok := outcomeStatus[resp.Outcome]
	if !ok {
		code = http.StatusInternalServerError
	}
	renderPage(w, code, resp.Title, resp.Message)
}

type sendApprovalRequest struct {
	DocumentURL string `json:"document_url"`
}

func (a *API) SendForApproval(w http.ResponseWriter, r *http.Request) {
	var body sendApprovalRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	res, err := a.approvals.SendForApproval(r.Context(), approval.SendRequest{
		DocumentID:  mux.Vars(r)["id"],
		DocumentURL: body.DocumentURL,
	})
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (a *API) ApprovalStatus(w http.ResponseWriter, r *http.Request) {
	st, err := a.approvals.Status(r.Context(), mux.Vars(r)["batchId"])
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// writeServiceError maps domain errors to status codes. End users get a
// generic message; the cause is logged.
func (a *API) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var denied *auth.PermissionDeniedError
	switch {
	case errors.As(err, &denied):
		respondError(w, r, http.StatusForbidden, denied.Message())
		return
	case errors.Is(err, admin.ErrValidation):
		respondError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, approval.ErrValidation):
		respondError(w, r, http.StatusBadRequest, "Forespørselen er ugyldig. Kontroller dokumentlenken.")
	case errors.Is(err, approval.ErrNotFound):
		respondError(w, r, http.StatusNotFound, "Fant ikke dokumentet eller godkjenningen.")
	case errors.Is(err, approval.ErrNoRecipients):
		respondError(w, r, http.StatusUnprocessableEntity, "Fant ingen styremedlemmer med gyldig e-postadresse.")
	case errors.Is(err, approval.ErrConfiguration):
		respondError(w, r, http.StatusInternalServerError, "Konfigurasjonsfeil. Kontakt administrator.")
	default:
		respondError(w, r, http.StatusInternalServerError, "Intern feil.")
	}
	obs.Component("http").WithError(err).WithField("path", r.URL.Path).Warn("request failed")
}
