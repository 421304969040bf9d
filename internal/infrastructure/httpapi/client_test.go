package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/stueble/guestsync/internal/core/domain"
	"github.com/stueble/guestsync/internal/core/ports"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL, 5*time.Second, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	return client
}

func strptr(s string) *string { return &s }

// ---------------------------------------------------------------------------
// Error classification
// ---------------------------------------------------------------------------

func TestClient_ServerFaultIsRetryable(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]string{"message": "upstream down"})
	}))

	_, err := client.AddToGuestList(context.Background(), domain.AddToGuestListPayload{})
	if err == nil {
		t.Fatal("expected error")
	}
	if !domain.IsServerFault(err) {
		t.Errorf("502 must classify as server fault: %v", err)
	}
	if !domain.IsRetryable(err) {
		t.Errorf("502 must be retryable: %v", err)
	}
}

func TestClient_ClientFaultIsNotRetryable(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"error": "already on the list"})
	}))

	_, err := client.AddToGuestList(context.Background(), domain.AddToGuestListPayload{})
	if !domain.IsClientFault(err) {
		t.Errorf("409 must classify as client fault: %v", err)
	}
	if domain.IsRetryable(err) {
		t.Errorf("409 must not be retryable: %v", err)
	}
}

func TestClient_TransportErrorIsRetryable(t *testing.T) {
	client, err := NewClient("http://127.0.0.1:1", time.Second, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	_, err = client.AddToGuestList(context.Background(), domain.AddToGuestListPayload{})
	if err == nil {
		t.Fatal("expected connection error")
	}
	if !domain.IsRetryable(err) {
		t.Errorf("transport error must be retryable: %v", err)
	}
	if domain.IsClientFault(err) || domain.IsServerFault(err) {
		t.Errorf("transport error must not carry an HTTP classification: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Request shapes
// ---------------------------------------------------------------------------

func TestClient_SearchUsersQuery(t *testing.T) {
	var gotQuery map[string][]string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/user/search" {
			t.Errorf("path = %s", r.URL.Path)
		}
		gotQuery = r.URL.Query()
		json.NewEncoder(w).Encode([]domain.User{})
	}))

	room := uint32(312)
	residence := domain.ResidenceAltbau
	_, err := client.SearchUsers(context.Background(), ports.UserSearch{
		FirstName:  strptr("Ada"),
		RoomNumber: &room,
		Residence:  &residence,
	})
	if err != nil {
		t.Fatal(err)
	}

	if got := gotQuery["first_name"]; len(got) != 1 || got[0] != "Ada" {
		t.Errorf("first_name = %v", got)
	}
	if got := gotQuery["room_number"]; len(got) != 1 || got[0] != "312" {
		t.Errorf("room_number = %v", got)
	}
	if got := gotQuery["residence"]; len(got) != 1 || got[0] != "altbau" {
		t.Errorf("residence = %v", got)
	}
	if _, ok := gotQuery["last_name"]; ok {
		t.Error("unset filter must not be sent")
	}
}

func TestClient_SearchUsersRequiresFilter(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should be sent without filters")
	}))

	if _, err := client.SearchUsers(context.Background(), ports.UserSearch{}); err == nil {
		t.Error("expected error for empty search")
	}
}

func TestClient_CreateUserValidatesInput(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("invalid payload must not reach the server")
	}))

	_, err := client.CreateUser(context.Background(), domain.CreateUserPayload{
		UserProperties: domain.UserProperties{
			FirstName:  "Ada",
			LastName:   "Lovelace",
			RoomNumber: 312,
			Residence:  "penthouse", // not a residence
		},
	})
	if err == nil {
		t.Error("expected validation error")
	}
}

func TestClient_CreateUserMarksVerified(t *testing.T) {
	var body map[string]any
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/api/user" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&body)
		json.NewEncoder(w).Encode(domain.Guest{ID: "id-1"})
	}))

	_, err := client.CreateUser(context.Background(), domain.CreateUserPayload{
		UserProperties: domain.UserProperties{
			FirstName:  "Ada",
			LastName:   "Lovelace",
			RoomNumber: 312,
			Residence:  domain.ResidenceAltbau,
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if body["verified"] != true {
		t.Error("door-created users must be sent as verified")
	}
	if body["privacyPolicy"] != true {
		t.Error("privacyPolicy flag missing")
	}
}

// ---------------------------------------------------------------------------
// Sessions
// ---------------------------------------------------------------------------

func TestClient_LoginStoresSessionToken(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatal(err)
	}

	var gotAuth string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			json.NewEncoder(w).Encode(map[string]string{"token": token})
		default:
			gotAuth = r.Header.Get("Authorization")
			json.NewEncoder(w).Encode([]domain.Guest{})
		}
	}))

	if err := client.Login(context.Background(), "admin", "hunter2"); err != nil {
		t.Fatal(err)
	}
	if !client.SessionValid(time.Now()) {
		t.Error("fresh session should be valid")
	}
	if client.SessionValid(time.Now().Add(2 * time.Hour)) {
		t.Error("expired session should be invalid")
	}

	if _, err := client.GetGuestList(context.Background()); err != nil {
		t.Fatal(err)
	}
	if gotAuth != "Bearer "+token {
		t.Errorf("Authorization = %q", gotAuth)
	}
}
