package tuya_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"

	"smart-plug/internal/domain"
	"smart-plug/internal/infra/tuya"
)

const (
	clientID = "client-id"
	secret   = "secret"
)

func writeToken(w http.ResponseWriter) {
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"result": map[string]any{
			"access_token": "test-token",
			"expire_time":  7200,
			"uid":          "test-uid",
		},
	})
}

func login(t *testing.T, client *tuya.Client) *domain.Account {
	t.Helper()
	acc, err := client.Login(context.Background(), clientID, secret)
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	return acc
}

func TestClient_Login(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1.0/token" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}

		want := tuya.Sign(clientID, secret, "", r.Header.Get("t"), http.MethodGet, "/v1.0/token?grant_type=1", nil)
		if r.Header.Get("client_id") != clientID || r.Header.Get("sign") != want {
			json.NewEncoder(w).Encode(map[string]any{"success": false, "code": 1004, "msg": "sign invalid"})
			return
		}
		writeToken(w)
	}))
	defer server.Close()

	client := tuya.NewClientWithURL(server.URL, 1)

	acc := login(t, client)
	if acc.Token != "test-token" || acc.ID != "test-uid" || acc.Identity != clientID {
		t.Errorf("account: got %+v", acc)
	}

	_, err := client.Login(context.Background(), clientID, "wrong")
	if !errors.Is(err, domain.ErrAuth) {
		t.Errorf("wrong secret: got %v, want ErrAuth", err)
	}
}

func TestClient_ListDevices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1.0/token":
			writeToken(w)
		case "/v1.0/iot-01/associated-users/devices":
			if r.Header.Get("access_token") != "test-token" {
				json.NewEncoder(w).Encode(map[string]any{"success": false, "code": 1010, "msg": "token invalid"})
				return
			}
			json.NewEncoder(w).Encode(map[string]any{
				"success": true,
				"result": map[string]any{
					"devices": []map[string]any{
						{"id": "dev1", "name": "Floor lamp", "category": "cz", "online": true,
							"status": []map[string]any{{"code": "countdown_1", "value": 0}, {"code": "switch_1", "value": true}}},
						{"id": "dev2", "name": "Kettle", "category": "cz", "online": true,
							"status": []map[string]any{{"code": "switch_1", "value": false}}},
						{"id": "dev3", "name": "Porch", "category": "dj", "online": false,
							"status": []map[string]any{{"code": "switch_led", "value": true}}},
						{"id": "dev4", "name": "Sensor", "category": "pir", "online": true},
					},
				},
			})
		default:
			http.Error(w, "not found", http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := tuya.NewClientWithURL(server.URL, 1)
	acc := login(t, client)

	devices, err := client.ListDevices(context.Background(), acc)
	if err != nil {
		t.Fatalf("ListDevices error: %v", err)
	}

	want := []domain.Device{
		{ID: "dev1", Name: "Floor lamp", Type: "plug", Status: domain.StatusOn},
		{ID: "dev2", Name: "Kettle", Type: "plug", Status: domain.StatusOff},
		{ID: "dev3", Name: "Porch", Type: "light", Status: domain.StatusUnknown},
		{ID: "dev4", Name: "Sensor", Type: "other", Status: domain.StatusUnknown},
	}
	if diff := cmp.Diff(want, devices); diff != "" {
		t.Errorf("devices mismatch (-want +got):\n%s", diff)
	}

	_, err = client.ListDevices(context.Background(), &domain.Account{Identity: clientID, Token: "stale"})
	if !errors.Is(err, domain.ErrFetch) || !errors.Is(err, domain.ErrAuth) {
		t.Errorf("stale token: got %v, want ErrFetch and ErrAuth", err)
	}
}

func TestClient_Toggle(t *testing.T) {
	tests := []struct {
		name      string
		current   bool
		wantValue bool
	}{
		{"on to off", true, false},
		{"off to on", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sent []map[string]any

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				switch {
				case r.URL.Path == "/v1.0/token":
					writeToken(w)
				case r.Method == http.MethodGet && r.URL.Path == "/v1.0/iot-03/devices/dev1/status":
					json.NewEncoder(w).Encode(map[string]any{
						"success": true,
						"result":  []map[string]any{{"code": "switch_1", "value": tt.current}},
					})
				case r.Method == http.MethodPost && r.URL.Path == "/v1.0/iot-03/devices/dev1/commands":
					body, _ := io.ReadAll(r.Body)
					want := tuya.Sign(clientID, secret, "test-token", r.Header.Get("t"), http.MethodPost, r.URL.Path, body)
					if r.Header.Get("sign") != want {
						http.Error(w, "bad sign", http.StatusBadRequest)
						return
					}
					var payload struct {
						Commands []map[string]any `json:"commands"`
					}
					json.Unmarshal(body, &payload)
					sent = append(sent, payload.Commands...)
					json.NewEncoder(w).Encode(map[string]any{"success": true, "result": true})
				default:
					http.Error(w, "not found", http.StatusNotFound)
				}
			}))
			defer server.Close()

			client := tuya.NewClientWithURL(server.URL, 1)
			acc := login(t, client)

			if err := client.Toggle(context.Background(), acc, domain.Device{ID: "dev1"}); err != nil {
				t.Fatalf("Toggle error: %v", err)
			}

			want := []map[string]any{{"code": "switch_1", "value": tt.wantValue}}
			if diff := cmp.Diff(want, sent); diff != "" {
				t.Errorf("commands mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestClient_ToggleNeverRetries(t *testing.T) {
	var commands int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/v1.0/token":
			writeToken(w)
		case r.Method == http.MethodGet:
			json.NewEncoder(w).Encode(map[string]any{
				"success": true,
				"result":  []map[string]any{{"code": "switch_1", "value": true}},
			})
		default:
			atomic.AddInt32(&commands, 1)
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
		}
	}))
	defer server.Close()

	client := tuya.NewClientWithURL(server.URL, 5)
	acc := login(t, client)

	err := client.Toggle(context.Background(), acc, domain.Device{ID: "dev1"})
	if !errors.Is(err, domain.ErrToggle) {
		t.Fatalf("got %v, want ErrToggle", err)
	}
	if n := atomic.LoadInt32(&commands); n != 1 {
		t.Errorf("command requests: got %d, want 1", n)
	}
}

func TestClient_ToggleWithoutSwitchState(t *testing.T) {
	var commands int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/v1.0/token":
			writeToken(w)
		case r.Method == http.MethodGet:
			json.NewEncoder(w).Encode(map[string]any{
				"success": true,
				"result":  []map[string]any{{"code": "temp_current", "value": 21}},
			})
		default:
			atomic.AddInt32(&commands, 1)
			json.NewEncoder(w).Encode(map[string]any{"success": true})
		}
	}))
	defer server.Close()

	client := tuya.NewClientWithURL(server.URL, 1)
	acc := login(t, client)

	err := client.Toggle(context.Background(), acc, domain.Device{ID: "dev1"})
	if !errors.Is(err, domain.ErrToggle) {
		t.Fatalf("got %v, want ErrToggle", err)
	}
	if n := atomic.LoadInt32(&commands); n != 0 {
		t.Errorf("command requests: got %d, want 0", n)
	}
}

func TestClient_AccountsCoexist(t *testing.T) {
	secrets := map[string]string{"client-a": "secret-a", "client-b": "secret-b"}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("client_id")
		token := r.Header.Get("access_token")
		want := tuya.Sign(id, secrets[id], token, r.Header.Get("t"), r.Method, r.URL.RequestURI(), nil)
		if secrets[id] == "" || r.Header.Get("sign") != want {
			json.NewEncoder(w).Encode(map[string]any{"success": false, "code": 1004, "msg": "sign invalid"})
			return
		}

		switch r.URL.Path {
		case "/v1.0/token":
			json.NewEncoder(w).Encode(map[string]any{
				"success": true,
				"result":  map[string]any{"access_token": "tok-" + id, "expire_time": 7200, "uid": "uid-" + id},
			})
		case "/v1.0/iot-01/associated-users/devices":
			json.NewEncoder(w).Encode(map[string]any{
				"success": true,
				"result": map[string]any{"devices": []map[string]any{
					{"id": "plug-" + id, "name": id, "category": "cz", "online": true,
						"status": []map[string]any{{"code": "switch_1", "value": true}}},
				}},
			})
		default:
			http.Error(w, "not found", http.StatusNotFound)
		}
	}))
	defer server.Close()

	ctx := context.Background()
	client := tuya.NewClientWithURL(server.URL, 1)

	a, err := client.Login(ctx, "client-a", "secret-a")
	if err != nil {
		t.Fatalf("Login a: %v", err)
	}

	if _, err := client.Login(ctx, "client-b", "not-the-secret"); !errors.Is(err, domain.ErrAuth) {
		t.Fatalf("Login b with wrong secret: got %v, want ErrAuth", err)
	}

	b, err := client.Login(ctx, "client-b", "secret-b")
	if err != nil {
		t.Fatalf("Login b: %v", err)
	}

	for _, acc := range []*domain.Account{a, b, a} {
		devices, err := client.ListDevices(ctx, acc)
		if err != nil {
			t.Fatalf("ListDevices %s: %v", acc.Identity, err)
		}
		if len(devices) != 1 || devices[0].ID != "plug-"+acc.Identity {
			t.Errorf("ListDevices %s: got %+v", acc.Identity, devices)
		}
	}
}

func TestClient_LoginIsNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := tuya.NewClientWithURL(server.URL, 5).Login(context.Background(), clientID, secret)
	if !errors.Is(err, domain.ErrAuth) {
		t.Fatalf("got %v, want ErrAuth", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("token requests: got %d, want 1", n)
	}
}
