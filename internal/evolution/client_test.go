package evolution

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParseMessageList(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    int
		wantErr bool
	}{
		{
			name: "bare array",
			body: `[{"key":{"id":"A1","remoteJid":"5511999999999@s.whatsapp.net"},"messageTimestamp":1700000000,"message":{"conversation":"oi"}}]`,
			want: 1,
		},
		{
			name: "messages array envelope",
			body: `{"messages":[{"key":{"id":"A1"}},{"key":{"id":"A2"}}]}`,
			want: 2,
		},
		{
			name: "paginated records envelope",
			body: `{"messages":{"records":[{"key":{"id":"A1"}},{"key":{"id":"A2"}},{"key":{"id":"A3"}}],"total":3}}`,
			want: 3,
		},
		{
			name: "empty bare array",
			body: `[]`,
			want: 0,
		},
		{
			name:    "object without messages field",
			body:    `{"status":"ok"}`,
			wantErr: true,
		},
		{
			name:    "garbage",
			body:    `not json`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMessageList([]byte(tt.body))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %d messages", len(got))
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("expected %d messages, got %d", tt.want, len(got))
			}
		})
	}
}

func TestTimestampUnmarshal(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int64
	}{
		{"number seconds", `{"messageTimestamp":1700000000}`, 1700000000},
		{"number milliseconds", `{"messageTimestamp":1700000000000}`, 1700000000000},
		{"string", `{"messageTimestamp":"1700000000"}`, 1700000000},
		{"float", `{"messageTimestamp":1700000000.0}`, 1700000000},
		{"null", `{"messageTimestamp":null}`, 0},
		{"absent", `{}`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var msg RawMessage
			if err := json.Unmarshal([]byte(tt.body), &msg); err != nil {
				t.Fatalf("unmarshal failed: %v", err)
			}
			if msg.MessageTimestamp.Int64() != tt.want {
				t.Errorf("expected %d, got %d", tt.want, msg.MessageTimestamp.Int64())
			}
		})
	}
}

func TestFindMessagesRequest(t *testing.T) {
	var gotPath, gotKey string
	var gotBody map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("apikey")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"messages":{"records":[{"key":{"id":"M1"},"messageTimestamp":1700000000}],"total":1}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret")
	msgs, err := client.FindMessages(context.Background(), "shop-01", "5511999999999@s.whatsapp.net", 50)
	if err != nil {
		t.Fatalf("FindMessages failed: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Key.ID != "M1" {
		t.Errorf("unexpected messages: %+v", msgs)
	}
	if gotPath != "/chat/findMessages/shop-01" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotKey != "secret" {
		t.Errorf("apikey header not set, got %q", gotKey)
	}
	where, _ := gotBody["where"].(map[string]interface{})
	key, _ := where["key"].(map[string]interface{})
	if key["remoteJid"] != "5511999999999@s.whatsapp.net" {
		t.Errorf("unexpected where clause: %+v", gotBody)
	}
	if gotBody["limit"].(float64) != 50 {
		t.Errorf("unexpected limit: %v", gotBody["limit"])
	}
}

func TestConnectionStateShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"nested instance", `{"instance":{"instanceName":"shop-01","state":"open"}}`, "open"},
		{"flat state", `{"state":"connecting"}`, "connecting"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(server.URL, "secret")
			state, err := client.ConnectionState(context.Background(), "shop-01")
			if err != nil {
				t.Fatalf("ConnectionState failed: %v", err)
			}
			if state != tt.want {
				t.Errorf("expected state %q, got %q", tt.want, state)
			}
		})
	}
}

func TestClientErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret")
	if _, err := client.FindChats(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for 404 response")
	}
}

func TestFetchAllGroups(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path + "?" + r.URL.RawQuery
		w.Write([]byte(`[{"id":"120363041234567890@g.us","subject":"Suporte","size":12}]`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret")
	groups, err := client.FetchAllGroups(context.Background(), "shop-01", false)
	if err != nil {
		t.Fatalf("FetchAllGroups failed: %v", err)
	}
	if len(groups) != 1 || groups[0].Subject != "Suporte" {
		t.Errorf("unexpected groups: %+v", groups)
	}
	if gotPath != "/group/fetchAllGroups/shop-01?getParticipants=false" {
		t.Errorf("unexpected path %q", gotPath)
	}
}
