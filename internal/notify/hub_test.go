package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/tripthesia-aggregator/internal/deals"
)

func TestHub_DeliversAlertsToUser(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := hub.ServeWS(w, r, r.URL.Query().Get("user")); err != nil {
			t.Errorf("upgrade: %v", err)
		}
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?user=u1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers("u1") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := hub.Notify(context.Background(), deals.Alert{ID: "a-other", UserID: "u2"}); err != nil {
		t.Fatalf("users without connections are skipped: %v", err)
	}
	alert := deals.Alert{ID: "a1", UserID: "u1", DealID: "d1", Urgency: deals.UrgencyHigh}
	if err := hub.Notify(context.Background(), alert); err != nil {
		t.Fatal(err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	var got deals.Alert
	if err := json.Unmarshal(msg, &got); err != nil {
		t.Fatal(err)
	}
	if got.ID != "a1" || got.DealID != "d1" || got.Urgency != deals.UrgencyHigh {
		t.Fatalf("unexpected alert %+v", got)
	}
}

func TestHub_UnregistersOnDisconnect(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.ServeWS(w, r, "u1")
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers("u1") == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	conn.Close()

	deadline = time.Now().Add(2 * time.Second)
	for hub.Subscribers("u1") != 0 {
		if time.Now().After(deadline) {
			t.Fatal("connection was not unregistered")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
