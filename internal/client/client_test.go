package client

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type staticTokens struct{ token string }

func (s *staticTokens) Token(context.Context) string { return s.token }

func TestAuthHeaderReadFreshOnEveryRequest(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("Authorization"))
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	tokens := &staticTokens{}
	c := New(srv.URL, tokens)

	if err := c.Get(context.Background(), "/api/v1/pipeline", nil); err != nil {
		t.Fatalf("first request: %v", err)
	}
	tokens.token = "abc"
	if err := c.Get(context.Background(), "/api/v1/pipeline", nil); err != nil {
		t.Fatalf("second request: %v", err)
	}

	want := []string{"Bearer ", "Bearer abc"}
	if len(seen) != len(want) {
		t.Fatalf("expected %d requests, got %d", len(want), len(seen))
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("request %d: expected %q, got %q", i, want[i], seen[i])
		}
	}
}

func TestProgressIsSymmetric(t *testing.T) {
	tests := []struct {
		name        string
		handler     http.HandlerFunc
		closeServer bool
		opts        []RequestOption
		wantStarts  int
		wantErr     bool
	}{
		{
			name:       "success",
			handler:    func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`{"id":1}`)) },
			wantStarts: 1,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			wantStarts: 1,
			wantErr:    true,
		},
		{
			name:        "transport failure",
			handler:     func(w http.ResponseWriter, r *http.Request) {},
			closeServer: true,
			wantStarts:  1,
			wantErr:     true,
		},
		{
			name:       "hidden progress bar",
			handler:    func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`{}`)) },
			opts:       []RequestOption{HideProgressBar()},
			wantStarts: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			if tt.closeServer {
				srv.Close()
			} else {
				defer srv.Close()
			}

			p := &countingProgress{}
			c := New(srv.URL, &staticTokens{}, WithProgress(p))
			var out map[string]interface{}
			err := c.Get(context.Background(), "/x", &out, tt.opts...)

			if (err != nil) != tt.wantErr {
				t.Fatalf("unexpected error state: %v", err)
			}
			if p.starts != tt.wantStarts {
				t.Fatalf("expected %d starts, got %d", tt.wantStarts, p.starts)
			}
			if p.starts != p.dones {
				t.Fatalf("progress not symmetric: %d starts, %d dones", p.starts, p.dones)
			}
		})
	}
}

type countingProgress struct {
	starts int
	dones  int
}

func (p *countingProgress) Start() { p.starts++ }
func (p *countingProgress) Done()  { p.dones++ }

func TestErrorClassification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/structured":
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"pipeline is broken"}`))
		default:
			http.Error(w, "pipeline not found", http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, &staticTokens{})

	err := c.Post(context.Background(), "/structured", map[string]bool{"docker": false}, nil)
	var respErr *ResponseError
	if !errors.As(err, &respErr) {
		t.Fatalf("expected ResponseError, got %T", err)
	}
	if respErr.Status != http.StatusBadRequest || respErr.Message != "pipeline is broken" {
		t.Fatalf("unexpected response error %+v", respErr)
	}

	err = c.Get(context.Background(), "/plain", nil)
	if !errors.As(err, &respErr) {
		t.Fatalf("expected ResponseError, got %T", err)
	}
	if respErr.Message != "" || !strings.Contains(respErr.Body, "pipeline not found") {
		t.Fatalf("unexpected plain response error %+v", respErr)
	}

	err = c.Post(context.Background(), "/x", make(chan int), nil)
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected RequestError for unmarshalable body, got %T", err)
	}

	bad := New("http://[::1]:namedport", &staticTokens{})
	if err := bad.Get(context.Background(), "/x", nil); !errors.As(err, &reqErr) {
		t.Fatalf("expected RequestError for bad URL, got %T", err)
	}

	srv.Close()
	err = c.Get(context.Background(), "/x", nil)
	var trErr *TransportError
	if !errors.As(err, &trErr) {
		t.Fatalf("expected TransportError, got %T", err)
	}
}

func TestTracker(t *testing.T) {
	idle := 0
	tr := NewTracker(func() { idle++ })
	tr.Start()
	tr.Start()
	tr.Done()
	if tr.Active() != 1 || idle != 0 {
		t.Fatalf("expected one active and no idle callback, got %d/%d", tr.Active(), idle)
	}
	tr.Done()
	tr.Done()
	if tr.Active() != 0 {
		t.Fatalf("active must not go negative, got %d", tr.Active())
	}
	if idle != 2 {
		t.Fatalf("expected idle callback twice, got %d", idle)
	}
}

func TestSpinnerStopsCleanly(t *testing.T) {
	var buf bytes.Buffer
	s := NewSpinner(&buf)
	s.Start()
	s.Start()
	s.Done()
	s.Done()
	s.Done()
	if !strings.HasSuffix(buf.String(), "\r \r") {
		t.Fatalf("expected spinner to clear its line, got %q", buf.String())
	}
}
