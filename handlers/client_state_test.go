package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/spf13/afero"

	"bingewatch/handlers"
	"bingewatch/models"
	"bingewatch/services/clientstate"
)

func newClientStateHandler(t *testing.T) *handlers.ClientStateHandler {
	t.Helper()
	svc, err := clientstate.NewServiceWithFs(afero.NewMemMapFs(), "/data")
	if err != nil {
		t.Fatalf("NewServiceWithFs: %v", err)
	}
	return handlers.NewClientStateHandler(svc)
}

func stateRequest(method, name, body string) *http.Request {
	req := asUser(httptest.NewRequest(method, "/api/state/"+name, bytes.NewBufferString(body)), "user-1")
	return mux.SetURLVars(req, map[string]string{"name": name})
}

func TestClientStateHandler_PutGetDelete(t *testing.T) {
	h := newClientStateHandler(t)

	rec := httptest.NewRecorder()
	h.Put(rec, stateRequest(http.MethodPut, "episodeTimers", `{"data":"{\"tt0903747_s1_e1\":300}"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("put status = %d body=%s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.Get(rec, stateRequest(http.MethodGet, "episodeTimers", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var state models.ClientState
	json.NewDecoder(rec.Body).Decode(&state)
	if state.Data != `{"tt0903747_s1_e1":300}` || state.LastUpdated.IsZero() {
		t.Fatalf("unexpected state: %+v", state)
	}

	rec = httptest.NewRecorder()
	h.Delete(rec, stateRequest(http.MethodDelete, "episodeTimers", ""))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.Get(rec, stateRequest(http.MethodGet, "episodeTimers", ""))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestClientStateHandler_UnknownName(t *testing.T) {
	h := newClientStateHandler(t)

	rec := httptest.NewRecorder()
	h.Put(rec, stateRequest(http.MethodPut, "localStorage", `{"data":"x"}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
