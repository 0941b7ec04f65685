package registry_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/pkgscout/npm-discovery/internal/testutil"
	"github.com/pkgscout/npm-discovery/pkg/registry"
	"github.com/pkgscout/npm-discovery/pkg/transport"
)

func newTestClient(mock *testutil.MockRegistry) *registry.Client {
	cfg := transport.DefaultConfig()
	cfg.InitialBackoff = 5 * time.Millisecond
	return registry.NewClient(transport.New(cfg), registry.Config{BaseURL: mock.URL()})
}

func TestClient_Search(t *testing.T) {
	mock := testutil.NewMockRegistry()
	defer mock.Close()

	mock.SetCorpus("react", testutil.SearchCorpus{
		Names: []string{"react", "react-dom", "react-router"},
		Total: 4821,
	})

	client := newTestClient(mock)
	page, err := client.Search(context.Background(), registry.Query{Text: "react", Size: 3})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if len(page.Items) != 3 {
		t.Fatalf("len(Items) = %d, want 3", len(page.Items))
	}
	if page.Items[0].Name != "react" {
		t.Errorf("Items[0].Name = %q, want %q", page.Items[0].Name, "react")
	}
	if page.Total != 4821 {
		t.Errorf("Total = %d, want 4821", page.Total)
	}
}

func TestClient_Search_Windowing(t *testing.T) {
	mock := testutil.NewMockRegistry()
	defer mock.Close()

	mock.SetCorpus("lodash", testutil.SearchCorpus{
		Names: []string{"a", "b", "c", "d", "e"},
	})

	client := newTestClient(mock)
	page, err := client.Search(context.Background(), registry.Query{Text: "lodash", Size: 2, From: 3})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if len(page.Items) != 2 {
		t.Fatalf("len(Items) = %d, want 2", len(page.Items))
	}
	if page.Items[0].Name != "d" || page.Items[1].Name != "e" {
		t.Errorf("window = [%s %s], want [d e]", page.Items[0].Name, page.Items[1].Name)
	}
}

func TestClient_Search_EmptyText(t *testing.T) {
	mock := testutil.NewMockRegistry()
	defer mock.Close()

	client := newTestClient(mock)
	if _, err := client.Search(context.Background(), registry.Query{}); err == nil {
		t.Error("Search() with empty text should error")
	}
	if mock.GetRequestCount() != 0 {
		t.Error("empty text must not reach the network")
	}
}

func TestClient_Packument(t *testing.T) {
	mock := testutil.NewMockRegistry()
	defer mock.Close()

	mock.SetPackument("react", `{
		"name": "react",
		"description": "React is a JavaScript library for building user interfaces.",
		"dist-tags": {"latest": "18.2.0"},
		"license": "MIT"
	}`)

	client := newTestClient(mock)
	p, err := client.Packument(context.Background(), "react")
	if err != nil {
		t.Fatalf("Packument() error = %v", err)
	}

	if p.Name != "react" {
		t.Errorf("Name = %q, want %q", p.Name, "react")
	}
	if p.DistTags["latest"] != "18.2.0" {
		t.Errorf("latest = %q, want %q", p.DistTags["latest"], "18.2.0")
	}
	if p.License != "MIT" {
		t.Errorf("License = %q, want %q", p.License, "MIT")
	}
}

func TestClient_Packument_NotFound(t *testing.T) {
	mock := testutil.NewMockRegistry()
	defer mock.Close()

	client := newTestClient(mock)
	_, err := client.Packument(context.Background(), "does-not-exist")

	var statusErr *transport.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("error = %v, want *transport.StatusError", err)
	}
	if statusErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", statusErr.StatusCode)
	}
}

func TestClient_Packument_RetriesServerError(t *testing.T) {
	mock := testutil.NewMockRegistry()
	defer mock.Close()

	mock.SetPackument("flaky-pkg", `{"name": "flaky-pkg", "dist-tags": {"latest": "1.0.0"}}`)
	mock.FailNext("flaky-pkg", 2, http.StatusServiceUnavailable)

	client := newTestClient(mock)
	p, err := client.Packument(context.Background(), "flaky-pkg")
	if err != nil {
		t.Fatalf("Packument() error = %v, want success after retries", err)
	}
	if p.Name != "flaky-pkg" {
		t.Errorf("Name = %q, want %q", p.Name, "flaky-pkg")
	}
	if mock.GetRequestCount() != 3 {
		t.Errorf("requests = %d, want 3", mock.GetRequestCount())
	}
}
