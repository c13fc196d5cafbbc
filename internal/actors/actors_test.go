package actors

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveLegacyDepartment(t *testing.T) {
	cases := []struct {
		position string
		want     Department
	}{
		{"OPD Nurse", DeptOPD},
		{"Outpatient pharmacist", DeptOPD},
		{"พยาบาลผู้ป่วยนอก", DeptOPD},
		{"Chief Pharmacist", DeptPharmacy},
		{"", DeptPharmacy},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, DeriveLegacyDepartment(tc.position), tc.position)
	}
}

func TestDeriveLegacyAdmin(t *testing.T) {
	require.True(t, DeriveLegacyAdmin("System Administrator"))
	require.True(t, DeriveLegacyAdmin("ผู้ดูแลระบบ"))
	require.False(t, DeriveLegacyAdmin("Pharmacist"))
}

func TestMiddlewareResolvesActor(t *testing.T) {
	var got Actor
	var ok bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = FromContext(r.Context())
	})
	handler := Middleware(slog.Default())(next)

	req := httptest.NewRequest(http.MethodGet, "/stock", nil)
	req.Header.Set(HeaderActorID, "7")
	req.Header.Set(HeaderActorUsername, "rph.main")
	req.Header.Set(HeaderActorDept, string(DeptPharmacy))
	req.Header.Set(HeaderActorAdmin, "1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, ok)
	require.Equal(t, int64(7), got.ID)
	require.Equal(t, DeptPharmacy, got.Department)
	require.True(t, got.Admin)
}

func TestMiddlewareRejectsUnresolved(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	})
	handler := Middleware(slog.Default())(next)

	req := httptest.NewRequest(http.MethodGet, "/stock", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/stock", nil)
	req.Header.Set(HeaderActorID, "7")
	req.Header.Set(HeaderActorDept, "ICU")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
