package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/cache/memory"
	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/oauthstate"
)

type fakeLinker struct {
	err error
}

func (fakeLinker) AuthURL(state string) string {
	return "https://accounts.example/auth?state=" + url.QueryEscape(state)
}

func (f fakeLinker) Exchange(_ context.Context, code string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte("token-for-" + code), nil
}

func newTestServer(t *testing.T, linker Linker, checks map[string]Check) (*httptest.Server, *oauthstate.Store) {
	t.Helper()
	states := memory.New(time.Minute, 0)
	t.Cleanup(func() { _ = states.Close() })
	sealer, err := oauthstate.NewSealer(bytes.Repeat([]byte{1}, 32))
	if err != nil {
		t.Fatalf("NewSealer() error: %v", err)
	}
	hs := oauthstate.New(states, oauthstate.NewMemoryCredentials(), sealer, 0, nil)

	srv := httptest.NewServer(New(linker, hs, checks, nil).Routes())
	t.Cleanup(srv.Close)
	return srv, hs
}

func getJSON(t *testing.T, u string) (int, map[string]string) {
	t.Helper()
	resp, err := http.Get(u)
	if err != nil {
		t.Fatalf("GET %s: %v", u, err)
	}
	defer resp.Body.Close()
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode %s: %v", u, err)
	}
	return resp.StatusCode, body
}

func TestLinkFlow(t *testing.T) {
	t.Parallel()
	srv, hs := newTestServer(t, fakeLinker{}, nil)

	status, body := getJSON(t, srv.URL+"/oauth/start?user_id=discord:42")
	if status != http.StatusOK {
		t.Fatalf("start status = %d, body %v", status, body)
	}
	state := body["state"]
	wantURL := fakeLinker{}.AuthURL(state)
	if state == "" || body["url"] != wantURL {
		t.Fatalf("start body = %v", body)
	}

	cb := srv.URL + "/oauth/callback?code=abc&state=" + url.QueryEscape(state)
	status, body = getJSON(t, cb)
	if status != http.StatusOK {
		t.Fatalf("callback status = %d, body %v", status, body)
	}
	if diff := cmp.Diff(map[string]string{"status": "linked", "user_id": "discord:42"}, body); diff != "" {
		t.Errorf("callback body mismatch (-want +got):\n%s", diff)
	}

	secret, ok, err := hs.GetCredential(context.Background(), "discord:42")
	if err != nil || !ok || string(secret) != "token-for-abc" {
		t.Errorf("GetCredential() = %q, %v, %v", secret, ok, err)
	}

	status, body = getJSON(t, cb)
	if status != http.StatusBadRequest || body["error"] != "invalid_state" {
		t.Errorf("replayed callback = %d %v, want 400 invalid_state", status, body)
	}
}

func TestCallbackRejects(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, fakeLinker{}, nil)

	tests := []struct {
		name    string
		query   string
		wantErr string
	}{
		{"unknown state", "code=abc&state=forged", "invalid_state"},
		{"missing state", "code=abc", "invalid_state"},
		{"missing code", "state=x", "missing_code"},
		{"user denied", "error=access_denied", "authorization_denied"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := getJSON(t, srv.URL+"/oauth/callback?"+tt.query)
			if status != http.StatusBadRequest || body["error"] != tt.wantErr {
				t.Errorf("got %d %v, want 400 %s", status, body, tt.wantErr)
			}
		})
	}

	status, body := getJSON(t, srv.URL+"/oauth/start")
	if status != http.StatusBadRequest || body["error"] != "missing_user_id" {
		t.Errorf("start without user = %d %v", status, body)
	}
}

func TestCallbackExchangeFailure(t *testing.T) {
	t.Parallel()
	srv, hs := newTestServer(t, fakeLinker{err: errors.New("invalid_grant")}, nil)

	_, body := getJSON(t, srv.URL+"/oauth/start?user_id=u1")
	status, body := getJSON(t, srv.URL+"/oauth/callback?code=abc&state="+url.QueryEscape(body["state"]))
	if status != http.StatusBadGateway || body["error"] != "exchange_failed" {
		t.Errorf("callback = %d %v, want 502 exchange_failed", status, body)
	}
	if _, ok, _ := hs.GetCredential(context.Background(), "u1"); ok {
		t.Error("credential stored after failed exchange")
	}
}

func TestProbes(t *testing.T) {
	t.Parallel()

	healthy, _ := newTestServer(t, fakeLinker{}, map[string]Check{
		"database": func(context.Context) error { return nil },
	})
	if status, body := getJSON(t, healthy.URL+"/healthz"); status != http.StatusOK || body["status"] != "ok" {
		t.Errorf("healthz = %d %v", status, body)
	}
	if status, body := getJSON(t, healthy.URL+"/readyz"); status != http.StatusOK || body["database"] != "ok" {
		t.Errorf("readyz = %d %v", status, body)
	}

	broken, _ := newTestServer(t, fakeLinker{}, map[string]Check{
		"database": func(context.Context) error { return nil },
		"cache":    func(context.Context) error { return errors.New("down") },
	})
	status, body := getJSON(t, broken.URL+"/readyz")
	want := map[string]string{"database": "ok", "cache": "unavailable"}
	if status != http.StatusServiceUnavailable {
		t.Errorf("readyz status = %d, want 503", status)
	}
	if diff := cmp.Diff(want, body); diff != "" {
		t.Errorf("readyz body mismatch (-want +got):\n%s", diff)
	}
}
