package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"thermosync"
	"thermosync/internal/service"
)

func doRequest(r http.Handler, method, target string, body []byte, token string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for k, vv := range authHeader(token) {
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}
	r.ServeHTTP(w, req)
	return w
}

func TestThermostatHandlers_ListAndGet(t *testing.T) {
	auth := &mockAuth{parseID: 7}
	mon := &mockMonitoring{
		views: []service.ThermostatView{
			{Thermostat: thermosync.Thermostat{SerialNumber: "SN-1", Name: "Bathroom", Online: true}},
			{Thermostat: thermosync.Thermostat{SerialNumber: "SN-2", Name: "Hallway"}},
		},
		view: service.ThermostatView{
			Thermostat: thermosync.Thermostat{SerialNumber: "SN-1", Name: "Bathroom", Online: true},
			State:      map[string]string{"regulation_mode": "1"},
		},
	}
	s := &service.Service{Authorization: auth, Monitoring: mon}
	r := newTestRouter(s)

	// list requires auth
	if w := doRequest(r, http.MethodGet, "/api/v1/thermostats", nil, ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without auth, got %d", w.Code)
	}

	w := doRequest(r, http.MethodGet, "/api/v1/thermostats", nil, "valid")
	if w.Code != http.StatusOK {
		t.Fatalf("list status=%d, body=%s", w.Code, w.Body.String())
	}
	var listResp struct {
		Thermostats []service.ThermostatView `json:"thermostats"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &listResp); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(listResp.Thermostats) != 2 || listResp.Thermostats[0].SerialNumber != "SN-1" {
		t.Fatalf("unexpected list: %+v", listResp.Thermostats)
	}

	w = doRequest(r, http.MethodGet, "/api/v1/thermostats/SN-1", nil, "valid")
	if w.Code != http.StatusOK {
		t.Fatalf("get status=%d, body=%s", w.Code, w.Body.String())
	}
	var view service.ThermostatView
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		t.Fatalf("unmarshal view: %v", err)
	}
	if view.Name != "Bathroom" || view.State["regulation_mode"] != "1" {
		t.Fatalf("unexpected view: %+v", view)
	}
}

func TestThermostatHandlers_GetUnknownIs404(t *testing.T) {
	auth := &mockAuth{parseID: 1}
	mon := &mockMonitoring{err: service.ErrNotFound}
	s := &service.Service{Authorization: auth, Monitoring: mon}
	r := newTestRouter(s)

	w := doRequest(r, http.MethodGet, "/api/v1/thermostats/ghost", nil, "valid")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
}

func TestApplyThermostat_StagesThenApplies(t *testing.T) {
	auth := &mockAuth{parseID: 1}
	app := &mockApplier{}
	s := &service.Service{Authorization: auth, Applier: app}
	r := newTestRouter(s)

	body := []byte(`{"mode":"comfort","setpoint":22.5,"duration":120}`)
	w := doRequest(r, http.MethodPost, "/api/v1/thermostats/SN-1/apply", body, "valid")
	if w.Code != http.StatusOK {
		t.Fatalf("apply status=%d, body=%s", w.Code, w.Body.String())
	}
	if app.stagedSerial != "SN-1" || app.stagedMode != service.ModeComfort {
		t.Fatalf("staged %q/%q", app.stagedSerial, app.stagedMode)
	}
	if app.stagedFields["setpoint"] != "22.5" || app.stagedFields["duration"] != "120" {
		t.Fatalf("unexpected staged fields: %+v", app.stagedFields)
	}
	if app.appliedCalls != 1 || app.appliedMode != service.ModeComfort {
		t.Fatalf("apply calls=%d mode=%q", app.appliedCalls, app.appliedMode)
	}
}

func TestApplyThermostat_ErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"unknown device", service.ErrDeviceUnknown, http.StatusNotFound},
		{"offline device", service.ErrDeviceOffline, http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			auth := &mockAuth{parseID: 1}
			app := &mockApplier{applyErr: tc.err}
			s := &service.Service{Authorization: auth, Applier: app}
			r := newTestRouter(s)

			body := []byte(`{"mode":"manual","setpoint":21}`)
			w := doRequest(r, http.MethodPost, "/api/v1/thermostats/SN-1/apply", body, "valid")
			if w.Code != tc.want {
				t.Fatalf("status=%d, want %d (body=%s)", w.Code, tc.want, w.Body.String())
			}
		})
	}
}

func TestApplyThermostat_MissingModeIs400(t *testing.T) {
	auth := &mockAuth{parseID: 1}
	app := &mockApplier{}
	s := &service.Service{Authorization: auth, Applier: app}
	r := newTestRouter(s)

	w := doRequest(r, http.MethodPost, "/api/v1/thermostats/SN-1/apply", []byte(`{"setpoint":22}`), "valid")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if app.appliedCalls != 0 {
		t.Fatalf("apply should not run on bad input")
	}
}

func TestStatusAndPollEndpoints(t *testing.T) {
	auth := &mockAuth{parseID: 1}
	sync := &mockSyncer{status: service.PollStatus{Mode: "backoff", IntervalSec: 240, Failures: 2, CloudConnected: true}}
	s := &service.Service{Authorization: auth, Syncer: sync}
	r := newTestRouter(s)

	w := doRequest(r, http.MethodGet, "/api/v1/status", nil, "valid")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d, body=%s", w.Code, w.Body.String())
	}
	var st service.PollStatus
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("unmarshal status: %v", err)
	}
	if st.Mode != "backoff" || st.IntervalSec != 240 || st.Failures != 2 {
		t.Fatalf("unexpected status: %+v", st)
	}

	w = doRequest(r, http.MethodPost, "/api/v1/poll", nil, "valid")
	if w.Code != http.StatusOK {
		t.Fatalf("poll status=%d, body=%s", w.Code, w.Body.String())
	}
	if sync.runCycles != 1 {
		t.Fatalf("RunCycle calls=%d", sync.runCycles)
	}
}

func TestTriggerPoll_InFlightIs409(t *testing.T) {
	auth := &mockAuth{parseID: 1}
	sync := &mockSyncer{cycleErr: service.ErrCycleInFlight}
	s := &service.Service{Authorization: auth, Syncer: sync}
	r := newTestRouter(s)

	w := doRequest(r, http.MethodPost, "/api/v1/poll", nil, "valid")
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
}
