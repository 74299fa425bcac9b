package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type mockConnector struct {
	err   error
	calls []string
}

func (m *mockConnector) Connect(_ context.Context, dsn string) error {
	m.calls = append(m.calls, dsn)
	return m.err
}

func TestValidateDatabaseURL(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		connErr   error
		wantValid bool
		wantConn  bool
	}{
		{"valid", "postgres://u:p@db.internal:5432/habitpulse", nil, true, true},
		{"postgresql scheme", "postgresql://u:p@db.internal/habitpulse", nil, true, true},
		{"empty", "  ", nil, false, false},
		{"wrong scheme", "mysql://u:p@db/x", nil, false, false},
		{"no host", "postgres:///habitpulse", nil, false, false},
		{"connect fails", "postgres://u:p@db.internal:5432/habitpulse", errors.New("password authentication failed"), false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := &mockConnector{err: tt.connErr}
			v := NewValidatorWithDeps(http.DefaultClient, conn, "")

			res := v.ValidateDatabaseURL(context.Background(), tt.url)
			if res.Valid != tt.wantValid {
				t.Errorf("Valid = %v (%s), want %v", res.Valid, res.Message, tt.wantValid)
			}
			if (len(conn.calls) == 1) != tt.wantConn {
				t.Errorf("connect calls = %d", len(conn.calls))
			}
		})
	}
}

func TestValidateRedisURL(t *testing.T) {
	v := NewValidator()
	ctx := context.Background()

	if res := v.ValidateRedisURL(ctx, "redis://:pw@cache.internal:6379/2"); !res.Valid {
		t.Errorf("valid URL rejected: %s", res.Message)
	}
	if res := v.ValidateRedisURL(ctx, "rediss://cache.internal:6380"); !res.Valid {
		t.Errorf("TLS URL rejected: %s", res.Message)
	}
	if res := v.ValidateRedisURL(ctx, "http://cache.internal"); res.Valid {
		t.Error("http scheme accepted")
	}
	if res := v.ValidateRedisURL(ctx, ""); res.Valid {
		t.Error("empty URL accepted")
	}
}

func TestValidateFCMProjectID(t *testing.T) {
	v := NewValidator()
	for _, id := range []string{"habit-pulse", "habitpulse-prod-1a2b"} {
		if res := v.ValidateFCMProjectID(context.Background(), id); !res.Valid {
			t.Errorf("%q rejected: %s", id, res.Message)
		}
	}
	for _, id := range []string{"", "Habit", "1habitpulse", "habit-", "a_b_c_d_e"} {
		if res := v.ValidateFCMProjectID(context.Background(), id); res.Valid {
			t.Errorf("%q accepted", id)
		}
	}
}

func tokenInfoServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("access_token") == "" {
			t.Error("access_token query parameter missing")
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestValidateFCMAccessToken(t *testing.T) {
	const token = "ya29.a0AfB_byCexampleexampleexample"

	t.Run("messaging scope", func(t *testing.T) {
		srv := tokenInfoServer(t, http.StatusOK,
			`{"scope":"https://www.googleapis.com/auth/firebase.messaging","expires_in":"3500"}`)
		v := NewValidatorWithDeps(srv.Client(), &mockConnector{}, srv.URL)

		res := v.ValidateFCMAccessToken(context.Background(), token)
		if !res.Valid || !strings.Contains(res.Message, "3500") {
			t.Errorf("res = %+v", res)
		}
	})

	t.Run("cloud platform scope", func(t *testing.T) {
		srv := tokenInfoServer(t, http.StatusOK,
			`{"scope":"openid https://www.googleapis.com/auth/cloud-platform","expires_in":"10"}`)
		v := NewValidatorWithDeps(srv.Client(), &mockConnector{}, srv.URL)

		if res := v.ValidateFCMAccessToken(context.Background(), token); !res.Valid {
			t.Errorf("res = %+v", res)
		}
	})

	t.Run("missing scope", func(t *testing.T) {
		srv := tokenInfoServer(t, http.StatusOK, `{"scope":"openid email","expires_in":"10"}`)
		v := NewValidatorWithDeps(srv.Client(), &mockConnector{}, srv.URL)

		res := v.ValidateFCMAccessToken(context.Background(), token)
		if res.Valid || !strings.Contains(res.Message, "firebase.messaging") {
			t.Errorf("res = %+v", res)
		}
	})

	t.Run("rejected", func(t *testing.T) {
		srv := tokenInfoServer(t, http.StatusBadRequest, `{"error_description":"Invalid Value"}`)
		v := NewValidatorWithDeps(srv.Client(), &mockConnector{}, srv.URL)

		res := v.ValidateFCMAccessToken(context.Background(), token)
		if res.Valid || !strings.Contains(res.Message, "HTTP 400") {
			t.Errorf("res = %+v", res)
		}
	})

	t.Run("too short", func(t *testing.T) {
		v := NewValidatorWithDeps(http.DefaultClient, &mockConnector{}, "http://127.0.0.1:0")
		if res := v.ValidateFCMAccessToken(context.Background(), "abc"); res.Valid {
			t.Error("short token accepted")
		}
	})
}
