// Package gateway is the wire adapter: JSON over HTTP for the draft
// operations and a WebSocket channel for live state. All behavior lives in
// the service; this layer only parses, authenticates and maps errors.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/twinsuns/draftroom/internal/draft/broadcast"
	"github.com/twinsuns/draftroom/internal/draft/engine"
	"github.com/twinsuns/draftroom/internal/draft/service"
)

// PrincipalHeader names the caller across every endpoint. Identity
// issuance is out of scope; the value is an opaque stable token.
const PrincipalHeader = "X-Draft-Principal"

// defaultPollWait is the long-poll hold when the client does not pass one.
const defaultPollWait = 25 * time.Second

// maxPollWait caps client-requested long-poll holds.
const maxPollWait = 60 * time.Second

// API wires the draft service onto HTTP routes.
type API struct {
	svc *service.Service
	ws  *ConnectionManager
}

// New builds the API over the service and WebSocket manager.
func New(svc *service.Service, ws *ConnectionManager) *API {
	return &API{svc: svc, ws: ws}
}

// Router returns the complete route table.
func (a *API) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", a.health).Methods(http.MethodGet)
	r.HandleFunc("/draft", a.create).Methods(http.MethodPost)

	d := r.PathPrefix("/draft/{shareID}").Subrouter()
	d.HandleFunc("", a.get).Methods(http.MethodGet)
	d.HandleFunc("", a.cancelOrDelete).Methods(http.MethodDelete)
	d.HandleFunc("/state", a.pollState).Methods(http.MethodGet)
	d.HandleFunc("/settings", a.updateSettings).Methods(http.MethodPatch)
	d.HandleFunc("/seat/{seatNumber}", a.removeSeat).Methods(http.MethodDelete)
	d.HandleFunc("/join", a.join).Methods(http.MethodPost)
	d.HandleFunc("/leave", a.leave).Methods(http.MethodPost)
	d.HandleFunc("/addBot", a.addBot).Methods(http.MethodPost)
	d.HandleFunc("/randomize", a.randomize).Methods(http.MethodPost)
	d.HandleFunc("/start", a.start).Methods(http.MethodPost)
	d.HandleFunc("/select", a.selectCard).Methods(http.MethodPost)
	d.HandleFunc("/pause", a.pause).Methods(http.MethodPost)
	d.HandleFunc("/ws", a.serveWS).Methods(http.MethodGet)
	return r
}

func (a *API) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createRequest struct {
	SetCode  string `json:"set_code"`
	MaxSeats int    `json:"max_seats"`
	engine.SettingsPatch
}

type createResponse struct {
	ShareID string                 `json:"share_id"`
	State   *service.StateResponse `json:"state"`
}

func (a *API) create(w http.ResponseWriter, r *http.Request) {
	principal, ok := a.principal(w, r)
	if !ok {
		return
	}
	var req createRequest
	if !decodeBody(w, r, &req) {
		return
	}
	resp, err := a.svc.Create(r.Context(), principal, service.CreateOptions{
		SetCode:  req.SetCode,
		MaxSeats: req.MaxSeats,
		Settings: req.SettingsPatch,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createResponse{ShareID: resp.State.ShareID, State: resp})
}

func (a *API) get(w http.ResponseWriter, r *http.Request) {
	resp, err := a.svc.Get(r.Context(), shareID(r), r.Header.Get(PrincipalHeader))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) pollState(w http.ResponseWriter, r *http.Request) {
	since, _ := strconv.ParseInt(r.URL.Query().Get("sinceVersion"), 10, 64)
	wait := defaultPollWait
	if raw := r.URL.Query().Get("wait"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			wait = time.Duration(secs) * time.Second
			if wait > maxPollWait {
				wait = maxPollWait
			}
		}
	}
	resp, err := a.svc.PollForChange(r.Context(), shareID(r), r.Header.Get(PrincipalHeader), since, wait)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) join(w http.ResponseWriter, r *http.Request) {
	a.mutation(w, r, a.svc.Join)
}

func (a *API) leave(w http.ResponseWriter, r *http.Request) {
	a.mutation(w, r, a.svc.Leave)
}

func (a *API) addBot(w http.ResponseWriter, r *http.Request) {
	a.mutation(w, r, a.svc.AddBot)
}

func (a *API) removeSeat(w http.ResponseWriter, r *http.Request) {
	principal, ok := a.principal(w, r)
	if !ok {
		return
	}
	seatNumber, err := strconv.Atoi(mux.Vars(r)["seatNumber"])
	if err != nil {
		writeError(w, engine.NewError(engine.CodeNotFound, "no seat %q", mux.Vars(r)["seatNumber"]))
		return
	}
	resp, err := a.svc.RemoveSeat(r.Context(), shareID(r), principal, seatNumber)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) randomize(w http.ResponseWriter, r *http.Request) {
	a.mutation(w, r, a.svc.RandomizeSeats)
}

func (a *API) start(w http.ResponseWriter, r *http.Request) {
	a.mutation(w, r, a.svc.Start)
}

func (a *API) pause(w http.ResponseWriter, r *http.Request) {
	a.mutation(w, r, a.svc.TogglePause)
}

type selectRequest struct {
	CardID *string `json:"card_id"`
}

func (a *API) selectCard(w http.ResponseWriter, r *http.Request) {
	principal, ok := a.principal(w, r)
	if !ok {
		return
	}
	var req selectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	resp, err := a.svc.Select(r.Context(), shareID(r), principal, req.CardID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) updateSettings(w http.ResponseWriter, r *http.Request) {
	principal, ok := a.principal(w, r)
	if !ok {
		return
	}
	var patch engine.SettingsPatch
	if !decodeBody(w, r, &patch) {
		return
	}
	resp, err := a.svc.UpdateSettings(r.Context(), shareID(r), principal, patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// cancelOrDelete cancels a live draft; a second DELETE on the now-terminal
// draft removes it entirely.
func (a *API) cancelOrDelete(w http.ResponseWriter, r *http.Request) {
	principal, ok := a.principal(w, r)
	if !ok {
		return
	}
	resp, err := a.svc.Cancel(r.Context(), shareID(r), principal)
	if engine.IsCode(err, engine.CodeDraftLocked) {
		if err := a.svc.Delete(r.Context(), shareID(r), principal); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) serveWS(w http.ResponseWriter, r *http.Request) {
	resp, err := a.svc.Get(r.Context(), shareID(r), r.Header.Get(PrincipalHeader))
	if err != nil {
		writeError(w, err)
		return
	}
	fetch := func() (*broadcast.PublicState, error) {
		fresh, err := a.svc.Get(r.Context(), shareID(r), r.Header.Get(PrincipalHeader))
		if err != nil {
			return nil, err
		}
		return fresh.State, nil
	}
	if err := a.ws.Serve(w, r, resp.State.DraftID, fetch); err != nil {
		log.Error().Err(err).Str("share_id", shareID(r)).Msg("websocket upgrade failed")
	}
}

// mutation runs a no-body, principal-required operation.
func (a *API) mutation(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, shareID, principal string) (*service.StateResponse, error)) {
	principal, ok := a.principal(w, r)
	if !ok {
		return
	}
	resp, err := fn(r.Context(), shareID(r), principal)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) principal(w http.ResponseWriter, r *http.Request) (string, bool) {
	p := r.Header.Get(PrincipalHeader)
	if p == "" {
		writeJSON(w, http.StatusUnauthorized, errorBody{Code: "UNAUTHENTICATED", Message: "missing " + PrincipalHeader + " header"})
		return "", false
	}
	return p, true
}

func shareID(r *http.Request) string {
	return mux.Vars(r)["shareID"]
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "BAD_REQUEST", Message: "malformed body: " + err.Error()})
		return false
	}
	return true
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// writeError maps domain codes onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	code := engine.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case engine.CodeNotFound:
		status = http.StatusNotFound
	case engine.CodeNotHost, engine.CodeNotSeatOwner:
		status = http.StatusForbidden
	case engine.CodeDraftLocked, engine.CodeDraftFull, engine.CodeAlreadyJoined, engine.CodeStateChanged:
		status = http.StatusConflict
	case engine.CodeInvalidSelection, engine.CodeTooFewPlayers:
		status = http.StatusUnprocessableEntity
	case engine.CodeStorageUnavailable:
		status = http.StatusServiceUnavailable
	}
	body := errorBody{Code: string(code), Message: err.Error()}
	if code == "" {
		body.Code = "INTERNAL"
		log.Error().Err(err).Msg("unclassified gateway error")
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("encode response")
	}
}
