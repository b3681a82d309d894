package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"autovpn-backend/internal/model"
	"autovpn-backend/internal/pkg/logstream"
)

func TestReadEvents(t *testing.T) {
	stream := strings.Join([]string{
		": comment",
		"id:1",
		"event:info",
		"data:Starting deploy...",
		"",
		"data: TASK [x]",
		"data: ok",
		"",
		"event: done",
		"data: https://203.0.113.10/",
		"",
		"event:message",
		"data:after done",
		"",
	}, "\n")

	var got []logstream.Event
	err := readEvents(strings.NewReader(stream), func(ev logstream.Event) bool {
		got = append(got, ev)
		return ev.Event != logstream.EventDone
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []logstream.Event{
		{ID: 1, Event: "info", Data: "Starting deploy..."},
		{Event: "message", Data: "TASK [x]\nok"},
		{Event: "done", Data: "https://203.0.113.10/"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d events: %+v", len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func sseServer(t *testing.T, blocks ...string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/install/logs/missing" {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"ok":false,"detail":"run not found"}`)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, b := range blocks {
			fmt.Fprint(w, b+"\n\n")
			w.(http.Flusher).Flush()
		}
	}))
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, nil)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestStreamLogsDone(t *testing.T) {
	c := sseServer(t, "event:info\ndata:Starting deploy...", "data:ok", "event:done\ndata:https://panel/")
	var lines []string
	url, err := c.StreamLogs(context.Background(), "run", func(ev logstream.Event) {
		lines = append(lines, ev.PlainLine())
	})
	if err != nil {
		t.Fatal(err)
	}
	if url != "https://panel/" {
		t.Errorf("url = %q", url)
	}
	if len(lines) != 3 || lines[0] != "[INFO] Starting deploy..." {
		t.Errorf("lines = %q", lines)
	}
}

func TestStreamLogsError(t *testing.T) {
	c := sseServer(t, "data:TASK", "event:error\ndata:deploy playbook failed")
	var seen bool
	_, err := c.StreamLogs(context.Background(), "run", func(ev logstream.Event) {
		if ev.Event == logstream.EventError {
			seen = true
		}
	})
	var runErr *RunError
	if !errors.As(err, &runErr) || runErr.Message != "deploy playbook failed" {
		t.Fatalf("err = %v", err)
	}
	if !seen {
		t.Error("error event not passed to callback")
	}
}

func TestStreamLogsWithoutDone(t *testing.T) {
	c := sseServer(t, "data:TASK")
	if _, err := c.StreamLogs(context.Background(), "run", nil); !errors.Is(err, ErrNoDone) {
		t.Fatalf("err = %v, want ErrNoDone", err)
	}
}

func TestStreamLogsNotFound(t *testing.T) {
	c := sseServer(t)
	_, err := c.StreamLogs(context.Background(), "missing", nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound || apiErr.Detail != "run not found" {
		t.Fatalf("err = %v", err)
	}
}

func TestLoginKeepsCookies(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req model.LoginRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Password != "Sup3rSecret!" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"ok":false,"detail":"invalid credentials"}`)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "access", Value: "token", Path: "/", HttpOnly: true})
		fmt.Fprint(w, `{"ok":true}`)
	})
	mux.HandleFunc("/api/wireguard/start", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("access"); err != nil || c.Value != "token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"name":"wireguard","status":"running"}`)
	})
	mux.HandleFunc("/peers", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id":"abc","name":"laptop","address":"10.13.13.2/32"}`)
	})
	mux.HandleFunc("/peers/abc/config", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "[Interface]\n")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, err := New(srv.URL+"/", nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := c.Login(ctx, "admin@example.com", "nope"); err == nil {
		t.Fatal("bad password accepted")
	}
	if _, err := c.StartWireGuard(ctx); err == nil {
		t.Fatal("start without login succeeded")
	}
	if err := c.Login(ctx, "admin@example.com", "Sup3rSecret!"); err != nil {
		t.Fatal(err)
	}
	st, err := c.StartWireGuard(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != "running" {
		t.Errorf("status = %q", st.Status)
	}
	conf, err := c.DownloadPeerConfig(ctx, "laptop")
	if err != nil {
		t.Fatal(err)
	}
	if conf != "[Interface]\n" {
		t.Errorf("conf = %q", conf)
	}
}

func TestBuildClientConfig(t *testing.T) {
	conf := BuildClientConfig("cHJpdmF0ZQ==", &model.WGParamsResponse{
		Endpoint:        "203.0.113.10:51820",
		ServerPublicKey: "c2VydmVy",
		DNS:             "10.13.13.1",
		AllowedIPs:      "0.0.0.0/0, ::/0",
		ClientAddress:   "10.13.13.2/32",
	})
	for _, want := range []string{
		"PrivateKey = cHJpdmF0ZQ==",
		"Address = 10.13.13.2/32",
		"PublicKey = c2VydmVy",
		"Endpoint = 203.0.113.10:51820",
		"PersistentKeepalive = 25",
	} {
		if !strings.Contains(conf, want) {
			t.Errorf("missing %q in\n%s", want, conf)
		}
	}
}
