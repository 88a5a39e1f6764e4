package httpclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
)

func TestRuntimes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"runtimes":["javascript","lua"]}`))
	}))
	defer server.Close()

	got, err := New(server.URL+"/", time.Second, false).Runtimes(context.Background())
	if err != nil {
		t.Fatalf("Runtimes: %v", err)
	}
	if len(got) != 2 || got[0] != "javascript" {
		t.Fatalf("unexpected runtimes: %v", got)
	}
}

func TestVerify(t *testing.T) {
	for _, compress := range []bool{false, true} {
		var (
			gotPath     string
			gotEncoding string
			gotSub      Submission
		)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotEncoding = r.Header.Get("Content-Encoding")
			var body io.Reader = r.Body
			if gotEncoding == "zstd" {
				dec, err := zstd.NewReader(r.Body)
				if err != nil {
					t.Errorf("zstd reader: %v", err)
					return
				}
				defer dec.Close()
				body = dec
			}
			if err := json.NewDecoder(body).Decode(&gotSub); err != nil {
				t.Errorf("decode: %v", err)
			}
			_, _ = w.Write([]byte(`{"solved":true,"results":[]}`))
		}))

		resp, err := New(server.URL, time.Second, compress).Verify(context.Background(), "lua", Submission{Solution: "x = 1", Tests: "t"})
		server.Close()
		if err != nil {
			t.Fatalf("Verify: %v", err)
		}
		if resp.StatusCode != http.StatusOK || gotPath != "/lua" || gotSub.Solution != "x = 1" {
			t.Fatalf("compress=%v: unexpected exchange %d %s %+v", compress, resp.StatusCode, gotPath, gotSub)
		}
		if compress != (gotEncoding == "zstd") {
			t.Fatalf("compress=%v but Content-Encoding=%q", compress, gotEncoding)
		}
	}
}
