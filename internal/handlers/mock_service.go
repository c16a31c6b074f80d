package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"thermosync"
	"thermosync/internal/service"
)

// ---- Service Mocks ----

type mockAuth struct {
	signUpID      int
	signUpErr     error
	genTokenToken string
	genTokenErr   error
	parseID       int
	parseErr      error

	lastSignUpUsername string
	lastSignUpPassword string
	lastGenUsername    string
	lastGenPassword    string
	lastParseToken     string
}

func (m *mockAuth) SignUp(username, password string) (int, error) {
	m.lastSignUpUsername = username
	m.lastSignUpPassword = password
	return m.signUpID, m.signUpErr
}
func (m *mockAuth) GenerateToken(username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (int, error) {
	m.lastParseToken = token
	return m.parseID, m.parseErr
}

type mockSyncer struct {
	status    service.PollStatus
	cycleErr  error
	runCycles int
}

func (m *mockSyncer) Run(ctx context.Context) {}
func (m *mockSyncer) RunCycle(ctx context.Context) error {
	m.runCycles++
	return m.cycleErr
}
func (m *mockSyncer) Status() service.PollStatus { return m.status }

type mockApplier struct {
	stageErr error
	applyErr error

	stagedSerial string
	stagedMode   service.ApplyMode
	stagedFields map[string]string
	appliedCalls int
	appliedMode  service.ApplyMode
}

func (m *mockApplier) Stage(ctx context.Context, serial string, mode service.ApplyMode, fields map[string]string) error {
	m.stagedSerial = serial
	m.stagedMode = mode
	m.stagedFields = fields
	return m.stageErr
}
func (m *mockApplier) Apply(ctx context.Context, serial string, mode service.ApplyMode) error {
	m.appliedCalls++
	m.appliedMode = mode
	return m.applyErr
}

type mockMonitoring struct {
	views []service.ThermostatView
	view  service.ThermostatView
	err   error
}

func (m *mockMonitoring) Snapshot(ctx context.Context) ([]service.ThermostatView, error) {
	return m.views, m.err
}
func (m *mockMonitoring) Device(ctx context.Context, serial string) (service.ThermostatView, error) {
	return m.view, m.err
}

type mockEventLog struct {
	resp     []thermosync.SyncEvent
	err      error
	lastFrom time.Time
	lastTo   time.Time
	lastType string
}

func (m *mockEventLog) List(ctx context.Context, f service.LogFilter) ([]thermosync.SyncEvent, error) {
	m.lastFrom = f.From
	m.lastTo = f.To
	m.lastType = f.Type
	return m.resp, m.err
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}
