package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/arnavshah/turni-api-go/pkg/auth"
	"github.com/arnavshah/turni-api-go/pkg/config"
	"github.com/arnavshah/turni-api-go/pkg/database"
	"github.com/arnavshah/turni-api-go/pkg/models"
	"github.com/arnavshah/turni-api-go/pkg/scheduler"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

const monday = "2025-03-03"

type testServer struct {
	t       *testing.T
	db      *gorm.DB
	h       *Handler
	r       *gin.Engine
	tenantA uint
	tenantB uint
	slotA   uint
	slotB   uint
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	cfg := config.Config{JWTSecret: "test-jwt", APIMasterSecret: "test-master", TokenTTL: time.Hour}
	log := zaptest.NewLogger(t)
	engine := scheduler.NewEngine(database.NewRepository(db), log,
		scheduler.WithClock(func() time.Time { return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) }))
	a, err := auth.New(cfg)
	require.NoError(t, err)
	h := NewHandler(db, engine, a, log)

	s := &testServer{t: t, db: db, h: h, r: NewRouter(h)}
	s.tenantA, s.slotA = s.seedTenant("NORD")
	s.tenantB, s.slotB = s.seedTenant("SUD")
	return s
}

// seedTenant creates a tenant with one two-person slot and two available volunteers on monday
func (s *testServer) seedTenant(code string) (uint, uint) {
	tenant := database.Tenant{Code: code, Name: code, Active: true}
	require.NoError(s.t, s.db.Create(&tenant).Error)
	st := database.Station{TenantID: tenant.ID, Name: "Piazza " + code, Active: true, MaxVolunteers: 2}
	require.NoError(s.t, s.db.Create(&st).Error)
	sl := database.TimeSlot{TenantID: tenant.ID, StationID: st.ID, Start: "09:00", End: "11:00", Active: true}
	require.NoError(s.t, s.db.Create(&sl).Error)
	for _, sex := range []string{models.SexMale, models.SexFemale} {
		v := database.Volunteer{TenantID: tenant.ID, FirstName: code + sex, Sex: sex, Status: database.VolunteerActive}
		require.NoError(s.t, s.db.Create(&v).Error)
		require.NoError(s.t, s.db.Create(&database.Availability{
			TenantID: tenant.ID, VolunteerID: v.ID, SlotID: sl.ID, Date: monday, Status: database.AvailabilityAvailable,
		}).Error)
	}
	return tenant.ID, sl.ID
}

func (s *testServer) token(role string, tenantID uint) string {
	tok, err := s.h.Auth.CreateToken("user-"+role, role, tenantID)
	require.NoError(s.t, err)
	return tok
}

func (s *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.r.ServeHTTP(w, req)
	return w
}

func (s *testServer) assignments(tenantID uint) int64 {
	var n int64
	require.NoError(s.t, s.db.Model(&database.Assignment{}).Where("congregazione_id = ?", tenantID).Count(&n).Error)
	return n
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestPublicRoutes(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, Version, decode(t, w)["version"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = s.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLogin(t *testing.T) {
	s := newTestServer(t)
	hash, err := auth.HashPassword("segreta")
	require.NoError(t, err)
	require.NoError(t, s.db.Create(&database.User{
		Username: "coord", PasswordHash: hash, Role: database.RoleAdmin, TenantID: &s.tenantA,
	}).Error)

	w := s.do(http.MethodPost, "/admin/login", "", gin.H{"username": "coord", "password": "sbagliata"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodPost, "/admin/login", "", gin.H{"username": "coord"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/admin/login", "", gin.H{"username": "coord", "password": "segreta"})
	require.Equal(t, http.StatusOK, w.Code)
	tok, _ := decode(t, w)["access_token"].(string)

	claims, err := s.h.Auth.VerifyToken(tok)
	require.NoError(t, err)
	assert.Equal(t, database.RoleAdmin, claims.Role)
	assert.Equal(t, s.tenantA, claims.TenantID)
}

func TestRunAllocation_PinsNonCrossTenantCallers(t *testing.T) {
	s := newTestServer(t)

	// GIVEN: an admin of tenant A naming tenant B explicitly
	w := s.do(http.MethodPost, "/api/allocations", s.token(database.RoleAdmin, s.tenantA), gin.H{
		"tenant_id":  s.tenantB,
		"date_start": monday,
		"date_end":   monday,
	})

	// THEN: the run is resolved to tenant A and B is untouched
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.EqualValues(t, 1, body["created"])
	assert.EqualValues(t, 0, body["topped_up"])
	assert.NotEmpty(t, body["run_id"])
	assert.Equal(t, int64(1), s.assignments(s.tenantA))
	assert.Equal(t, int64(0), s.assignments(s.tenantB))
}

func TestRunAllocation_Errors(t *testing.T) {
	s := newTestServer(t)
	admin := s.token(database.RoleAdmin, s.tenantA)
	root := s.token(database.RoleSuperAdmin, 0)

	tests := []struct {
		name   string
		token  string
		body   gin.H
		status int
	}{
		{name: "no credentials", body: gin.H{"date_start": monday, "date_end": monday}, status: http.StatusUnauthorized},
		{name: "regular volunteer", token: s.token(database.RoleVolunteer, s.tenantA), body: gin.H{"date_start": monday, "date_end": monday}, status: http.StatusForbidden},
		{name: "missing date", token: admin, body: gin.H{"date_end": monday}, status: http.StatusBadRequest},
		{name: "bad date format", token: admin, body: gin.H{"date_start": "03/03/2025", "date_end": monday}, status: http.StatusBadRequest},
		{name: "end before start", token: admin, body: gin.H{"date_start": "2025-03-04", "date_end": monday}, status: http.StatusBadRequest},
		{name: "past the horizon", token: admin, body: gin.H{"date_start": monday, "date_end": "2025-09-01"}, status: http.StatusUnprocessableEntity},
		{name: "unknown station", token: admin, body: gin.H{"date_start": monday, "date_end": monday, "station_id": 999}, status: http.StatusNotFound},
		{name: "cross tenant without tenant", token: root, body: gin.H{"date_start": monday, "date_end": monday}, status: http.StatusBadRequest},
		{name: "cross tenant unknown code", token: root, body: gin.H{"tenant_code": "EST", "date_start": monday, "date_end": monday}, status: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(http.MethodPost, "/api/allocations", tt.token, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}

	assert.Equal(t, int64(0), s.assignments(s.tenantA))
}

func TestRunAllocation_ValidationFields(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/allocations", s.token(database.RoleAdmin, s.tenantA), gin.H{"date_end": "tomorrow"})

	require.Equal(t, http.StatusBadRequest, w.Code)
	fields, ok := decode(t, w)["fields"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "required", fields["date_start"])
	assert.Equal(t, "datetime", fields["date_end"])
}

func TestRangeTooLargeReportsLimit(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/allocations", s.token(database.RoleAdmin, s.tenantA), gin.H{
		"date_start": monday, "date_end": "2025-12-31",
	})

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "2025-06-01", decode(t, w)["limit"])
}

func TestCrossTenantFlow(t *testing.T) {
	s := newTestServer(t)
	root := s.token(database.RoleSuperAdmin, 0)

	w := s.do(http.MethodPost, "/api/allocations", root, gin.H{"tenant_code": "SUD", "date_start": monday, "date_end": monday})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, int64(0), s.assignments(s.tenantA))
	assert.Equal(t, int64(1), s.assignments(s.tenantB))

	// coverage without a tenant spans every tenant
	w = s.do(http.MethodGet, "/api/coverage?date_start="+monday+"&date_end="+monday, root, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Cells []models.CoverageCell `json:"cells"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Cells, 2)
	for _, c := range resp.Cells {
		assert.Equal(t, models.CoverageSufficient, c.Status)
		assert.Equal(t, c.TenantID == s.tenantB, c.AlreadyAssigned)
	}

	w = s.do(http.MethodPost, "/api/allocations/reset", root, gin.H{"tenant_id": s.tenantB, "date_start": monday, "date_end": monday})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 1, decode(t, w)["deleted"])
	assert.Equal(t, int64(0), s.assignments(s.tenantB))
}

func TestCoverage_TenantAdminSeesOwnTenant(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/api/coverage?date_start="+monday+"&date_end="+monday, s.token(database.RoleAdmin, s.tenantA), nil)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Cells []models.CoverageCell `json:"cells"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Cells, 1)
	assert.Equal(t, s.tenantA, resp.Cells[0].TenantID)
	assert.Equal(t, 2, resp.Cells[0].AvailableCount)
	assert.Equal(t, 1, resp.Cells[0].MaleCount)
}

func TestAssignmentsAndUnassign(t *testing.T) {
	s := newTestServer(t)
	admin := s.token(database.RoleAdmin, s.tenantA)

	w := s.do(http.MethodPost, "/api/allocations", admin, gin.H{"date_start": monday, "date_end": monday})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// volunteers may read their tenant's assignments
	w = s.do(http.MethodGet, "/api/assignments?date_start="+monday+"&date_end="+monday, s.token(database.RoleVolunteer, s.tenantA), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Assignments []models.AssignmentView `json:"assignments"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Assignments, 1)
	a := resp.Assignments[0]
	require.Len(t, a.Volunteers, 2)

	path := "/api/assignments/" + itoa(a.ID) + "/volunteers/" + itoa(a.Volunteers[0].ID)

	w = s.do(http.MethodDelete, path, s.token(database.RoleVolunteer, s.tenantA), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodDelete, path, s.token(database.RoleAdmin, s.tenantB), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodDelete, path, admin, nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodDelete, path, admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodDelete, "/api/assignments/abc/volunteers/1", admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminRoutesRequireCrossTenant(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/admin/keys", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodGet, "/admin/keys", s.token(database.RoleAdmin, s.tenantA), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodGet, "/admin/keys", s.token(database.RoleSuperAdmin, 0), nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAPIKeyFlow(t *testing.T) {
	s := newTestServer(t)
	root := s.token(database.RoleSuperAdmin, 0)

	w := s.do(http.MethodPost, "/admin/keys", root, gin.H{"name": "gestionale", "tenant_code": "NORD"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	created := decode(t, w)
	key, _ := created["key"].(string)
	require.NotEmpty(t, key)
	keyID := itoa(uint(created["id"].(float64)))

	w = s.do(http.MethodPost, "/admin/keys", root, gin.H{"name": "x", "tenant_code": "EST"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	// the key acts as an admin of its tenant, whatever the body says
	w = s.do(http.MethodPost, "/api/allocations", key, gin.H{"tenant_id": s.tenantB, "date_start": monday, "date_end": monday})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, int64(1), s.assignments(s.tenantA))
	assert.Equal(t, int64(0), s.assignments(s.tenantB))

	w = s.do(http.MethodGet, "/api/usage", key, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	usage := decode(t, w)
	assert.Equal(t, "gestionale", usage["key_name"])
	totals := usage["totals"].(map[string]any)
	assert.EqualValues(t, 1, totals["requests"])
	assert.EqualValues(t, 1, totals["created"])

	w = s.do(http.MethodGet, "/admin/usage/"+itoa(s.tenantA), root, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["usage"], 1)

	// daily limit
	w = s.do(http.MethodPut, "/admin/keys/"+keyID, root, gin.H{"rate_limit": 1})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = s.do(http.MethodPost, "/api/allocations", key, gin.H{"date_start": monday, "date_end": monday})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	w = s.do(http.MethodDelete, "/admin/keys/"+keyID, root, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(http.MethodDelete, "/admin/keys/"+keyID, root, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodGet, "/api/usage", key, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodGet, "/api/usage", "NORD.k1.bad", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUnregisteredKeyIsRecordedOnFirstUse(t *testing.T) {
	s := newTestServer(t)
	key := auth.SignKey([]byte("test-master"), "SUD", "cli")

	w := s.do(http.MethodGet, "/api/usage", key, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, s.tenantB, decode(t, w)["tenant_id"])

	var stored database.APIKey
	require.NoError(t, s.db.Where(database.APIKey{Key: key}).First(&stored).Error)
	assert.Equal(t, s.tenantB, stored.TenantID)
	assert.NotNil(t, stored.LastUsed)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(scheduler.ErrSlotNotFound))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(&scheduler.RangeError{}))
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
}

func itoa(v uint) string {
	b, _ := json.Marshal(v)
	return string(b)
}
