package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"sameieportalen.no/internal/admin"
)

func (a *API) AddMember(w http.ResponseWriter, r *http.Request) {
	var m admin.Member
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := a.admin.AddMember(r.Context(), m); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

type adminsRequest struct {
	Emails []string `json:"emails"`
}

func (a *API) SetAdmins(w http.ResponseWriter, r *http.Request) {
	var body adminsRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	admins, err := a.admin.SetAdmins(r.Context(), body.Emails)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, adminsRequest{Emails: admins})
}

// SaveMeeting registers the document link of a meeting so it can be sent for approval.
func (a *API) SaveMeeting(w http.ResponseWriter, r *http.Request) {
	var m admin.Meeting
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	m.ID = mux.Vars(r)["id"]
	if err := a.admin.SaveMeeting(r.Context(), m); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}
