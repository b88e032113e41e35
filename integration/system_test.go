//go:build integration
// +build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var baseURL = getenv("E2E_BASE_URL", "http://localhost:3000")

type envelope struct {
	Event string           `json:"event"`
	Data  []map[string]any `json:"data"`
}

func TestSystem_E2E_CRUDAndBroadcast(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	waitReady(t, ctx, baseURL+"/readyz")

	conn := subscribe(t)
	defer conn.Close()

	key := fmt.Sprintf("e2e_%d_%d", time.Now().Unix(), rand.Intn(100000))

	var created map[string]any
	doJSON(t, http.MethodPost, baseURL+"/products", map[string]any{
		"codigo2": key,
		"name":    "Widget",
	}, &created, 201)
	if created["codigo2"] != key {
		t.Fatalf("created=%#v", created)
	}
	if !containsKey(readUpdate(t, conn), key) {
		t.Fatalf("broadcast after create is missing %s", key)
	}

	var merged map[string]any
	doJSON(t, http.MethodPut, baseURL+"/products/"+key, map[string]any{"name": "Widget2"}, &merged, 200)
	if merged["name"] != "Widget2" || merged["codigo2"] != key {
		t.Fatalf("merged=%#v", merged)
	}
	readUpdate(t, conn)

	var notFound map[string]any
	doJSON(t, http.MethodPut, baseURL+"/products/"+key+"_missing", map[string]any{"name": "x"}, &notFound, 404)

	var removed struct {
		Removed int `json:"removed"`
	}
	doJSON(t, http.MethodDelete, baseURL+"/products/"+key, nil, &removed, 200)
	if removed.Removed != 1 {
		t.Fatalf("removed=%d", removed.Removed)
	}
	if containsKey(readUpdate(t, conn), key) {
		t.Fatalf("broadcast after delete still has %s", key)
	}

	doJSON(t, http.MethodDelete, baseURL+"/products/"+key, nil, &removed, 200)
	if removed.Removed != 0 {
		t.Fatalf("second delete removed=%d", removed.Removed)
	}
	readUpdate(t, conn)

	var bad map[string]any
	doJSON(t, http.MethodPut, baseURL+"/products", map[string]any{"codigo2": key}, &bad, 400)
}

func subscribe(t *testing.T) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(baseURL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}

	if err := conn.WriteJSON(map[string]string{"event": "products:request"}); err != nil {
		t.Fatalf("pull: %v", err)
	}
	readUpdate(t, conn)
	return conn
}

func readUpdate(t *testing.T, conn *websocket.Conn) []map[string]any {
	t.Helper()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var env envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read update: %v", err)
	}
	if env.Event != "products:update" {
		t.Fatalf("event=%q", env.Event)
	}
	return env.Data
}

func containsKey(products []map[string]any, key string) bool {
	for _, p := range products {
		if p["codigo2"] == key {
			return true
		}
	}
	return false
}

func waitReady(t *testing.T, ctx context.Context, url string) {
	t.Helper()
	client := &http.Client{Timeout: 2 * time.Second}

	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		resp, err := client.Do(req)
		if err == nil && resp != nil && resp.StatusCode == 200 {
			_ = resp.Body.Close()
			return
		}
		if resp != nil {
			_ = resp.Body.Close()
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("service not ready: %s", url)
}

func doJSON(t *testing.T, method, url string, body any, out any, want int) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		t.Fatalf("%s %s: status=%d want=%d", method, url, resp.StatusCode, want)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
