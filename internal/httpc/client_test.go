package httpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestPostJSON_RoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		var in map[string]float64
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			t.Errorf("decode: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]float64{"double": in["v"] * 2})
	}))
	defer srv.Close()

	var out map[string]float64
	err := PostJSON(context.Background(), NewClient(time.Second), srv.URL, map[string]float64{"v": 1.5}, &out)
	if err != nil {
		t.Fatalf("PostJSON error: %v", err)
	}
	if out["double"] != 3 {
		t.Errorf("double = %v, want 3", out["double"])
	}
}

func TestPostJSON_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := PostJSON(context.Background(), NewClient(time.Second), srv.URL, struct{}{}, nil)

	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StatusError, got %v", err)
	}
	if se.StatusCode != http.StatusBadGateway {
		t.Errorf("StatusCode = %d, want 502", se.StatusCode)
	}
	if se.Body != "boom" {
		t.Errorf("Body = %q, want boom", se.Body)
	}
}

func TestPostJSON_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	start := time.Now()
	err := PostJSON(context.Background(), NewClient(30*time.Millisecond), srv.URL, struct{}{}, nil)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > 150*time.Millisecond {
		t.Errorf("call took %v, timeout not honoured", time.Since(start))
	}
}

func TestPing(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer ok.Close()
	if err := Ping(context.Background(), NewClient(time.Second), ok.URL); err != nil {
		t.Errorf("Ping healthy server: %v", err)
	}

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()
	if err := Ping(context.Background(), NewClient(time.Second), down.URL); err == nil {
		t.Error("Ping should fail on 503")
	}
}

func TestPostJSON_DecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	var out map[string]float64
	err := PostJSON(context.Background(), NewClient(time.Second), srv.URL, struct{}{}, &out)
	if !errors.Is(err, ErrDecode) {
		t.Errorf("error = %v, want ErrDecode", err)
	}
}
