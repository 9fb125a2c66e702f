package girder

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/imagespace/internal/collection"
	"github.com/kailas-cloud/imagespace/internal/domain/session"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL + "/api/v1", Timeout: 5 * time.Second, Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNew_RejectsRelativeBaseURL(t *testing.T) {
	if _, err := New(Config{BaseURL: "/api/v1"}); err == nil {
		t.Fatal("expected error for relative base url")
	}
}

func TestLookup_SendsExpressionAndToken(t *testing.T) {
	var gotPath, gotQuery, gotToken string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("query")
		gotToken = r.Header.Get(TokenHeader)
		_, _ = io.WriteString(w, `{"numFound":1,"docs":[{"id":"/data/a.jpg"}]}`)
	})

	ctx := session.WithToken(context.Background(), "tok-1")
	res, err := NewLookup(c, "imagesearch").Lookup(ctx, `id:"a" OR id:"A"`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/api/v1/imagesearch" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotQuery != `id:"a" OR id:"A"` {
		t.Errorf("unexpected query %q", gotQuery)
	}
	if gotToken != "tok-1" {
		t.Errorf("expected token header, got %q", gotToken)
	}
	if res.NumFound != 1 || len(res.Docs) != 1 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestLookup_StatusError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "solr down", http.StatusBadGateway)
	})

	_, err := NewLookup(c, "imagesearch").Lookup(context.Background(), "id:x")
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StatusError, got %v", err)
	}
	if se.Status != http.StatusBadGateway || se.Body != "solr down" {
		t.Errorf("unexpected status error %+v", se)
	}
}

func TestLookup_MalformedBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `<html>`)
	})

	if _, err := NewLookup(c, "imagesearch").Lookup(context.Background(), "id:x"); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestDocumentsByField(t *testing.T) {
	var gotQuery, gotLimit string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("query")
		gotLimit = r.URL.Query().Get("limit")
		_, _ = io.WriteString(w, `{"numFound":2,"docs":[{"id":"1"},{"id":"2"}]}`)
	})

	docs, err := NewLookup(c, "imagesearch").DocumentsByField(context.Background(), "sha1sum_s_md", []string{"aa", "bb"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotQuery != `sha1sum_s_md:"aa" OR sha1sum_s_md:"bb"` {
		t.Errorf("unexpected query %q", gotQuery)
	}
	if gotLimit != "20" {
		t.Errorf("unexpected limit %q", gotLimit)
	}
	if len(docs) != 2 {
		t.Errorf("expected 2 docs, got %d", len(docs))
	}
}

func TestDocumentsByField_EmptySkipsRequest(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
	})

	docs, err := NewLookup(c, "imagesearch").DocumentsByField(context.Background(), "sha1sum_s_md", nil)
	if err != nil || docs != nil {
		t.Fatalf("expected nil, nil; got %v, %v", docs, err)
	}
	if calls.Load() != 0 {
		t.Error("no request expected")
	}
}

func TestCompute_PostsForm(t *testing.T) {
	var method, contentType, formURL string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		contentType = r.Header.Get("Content-Type")
		_ = r.ParseForm()
		formURL = r.PostForm.Get("url")
		_, _ = io.WriteString(w, `{"id":"computed","features":[0.5]}`)
	})

	doc, err := NewComputer(c, "imagefeatures").Compute(context.Background(), "http://img/x.jpg?token=abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if method != http.MethodPost || contentType != "application/x-www-form-urlencoded" {
		t.Errorf("unexpected request %s %s", method, contentType)
	}
	if formURL != "http://img/x.jpg?token=abc" {
		t.Errorf("unexpected url %q", formURL)
	}
	var parsed map[string]any
	if err := json.Unmarshal(doc, &parsed); err != nil || parsed["id"] != "computed" {
		t.Errorf("unexpected doc %s", doc)
	}
}

func TestCompute_ThrottleRespectsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	}))
	t.Cleanup(srv.Close)
	c, err := New(Config{BaseURL: srv.URL, ComputeRatePerSec: 0.001, ComputeBurst: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	comp := NewComputer(c, "imagefeatures")

	if _, err := comp.Compute(context.Background(), "http://img/a.jpg"); err != nil {
		t.Fatalf("first call should use the burst: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := comp.Compute(ctx, "http://img/b.jpg"); err == nil {
		t.Fatal("expected throttle error")
	}
}

func TestFetcher_FetchPage(t *testing.T) {
	var got url.Values
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query()
		_, _ = io.WriteString(w, `{"numFound":45,"docs":[{"id":"a","url":"http://img/a.jpg","im_distance":0.3},{"id":"b"}]}`)
	})

	req := collection.Request{
		Params: collection.Params{
			Query:           "q1",
			Classifications: []string{"B", "A"},
			Extra:           map[string]string{"url": "http://img/x.jpg"},
		},
		Page:   2,
		Offset: 40,
		Limit:  20,
	}
	page, err := NewFetcher(c, "imagesearch").FetchPage(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.Get("query") != "q1" || got.Get("classifications") != "B,A" || got.Get("url") != "http://img/x.jpg" {
		t.Errorf("unexpected params %v", got)
	}
	if got.Get("offset") != "40" || got.Get("limit") != "20" {
		t.Errorf("unexpected paging %v", got)
	}
	if page.Total != 45 || len(page.Records) != 2 {
		t.Fatalf("unexpected page %+v", page)
	}
	if !page.HasMore {
		t.Error("expected HasMore: 42 of 45 delivered")
	}
}

func TestFetcher_RejectsDocumentWithoutID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"numFound":1,"docs":[{"url":"x"}]}`)
	})

	_, err := NewFetcher(c, "imagesearch").FetchPage(context.Background(), collection.Request{Limit: 20})
	if err == nil || !strings.Contains(err.Error(), "doc 0") {
		t.Fatalf("expected doc decode error, got %v", err)
	}
}
