package gcs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dl-alexandre/docdr/internal/api"
	"github.com/dl-alexandre/docdr/internal/blobstore"
	"github.com/dl-alexandre/docdr/internal/utils"
	"google.golang.org/api/option"
	"google.golang.org/api/storage/v1"
)

func newTestStore(t *testing.T, handler http.HandlerFunc) *Store {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	svc, err := storage.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/storage/v1/"),
		option.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatalf("storage.NewService: %v", err)
	}
	return New(svc, "bkt", api.NewClient("storage", 0, 0, nil), nil)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func notFound(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte(`{"error":{"code":404,"message":"No such object"}}`))
}

func TestStore_List(t *testing.T) {
	calls := 0
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Query().Get("prefix") != "org/alice/" {
			t.Errorf("prefix = %q", r.URL.Query().Get("prefix"))
		}
		if r.URL.Query().Get("pageToken") == "" {
			writeJSON(w, storage.Objects{
				Items:         []*storage.Object{{Name: "org/alice/.userinfo", Size: 10, Updated: "2024-03-01T12:00:00Z"}},
				NextPageToken: "p2",
			})
			return
		}
		writeJSON(w, storage.Objects{
			Items: []*storage.Object{{Name: "org/alice/f1/d1", Size: 42, ContentType: "text/plain", Metadata: map[string]string{"id": "d1"}}},
		})
	})

	objects, err := store.List(context.Background(), "org/alice/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if len(objects) != 2 {
		t.Fatalf("got %d objects, want 2", len(objects))
	}
	if objects[0].LastModified.IsZero() {
		t.Error("LastModified not parsed")
	}
	if objects[1].Size != 42 || objects[1].Metadata["id"] != "d1" {
		t.Errorf("unexpected object %+v", objects[1])
	}
}

func TestStore_ListPrefixes(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("delimiter") != "/" {
			t.Errorf("delimiter = %q", r.URL.Query().Get("delimiter"))
		}
		writeJSON(w, storage.Objects{Prefixes: []string{"org/alice/", "org/bob/"}})
	})

	names, err := store.ListPrefixes(context.Background(), "org/")
	if err != nil {
		t.Fatalf("ListPrefixes: %v", err)
	}
	if strings.Join(names, ",") != "alice,bob" {
		t.Errorf("names = %v", names)
	}
}

func TestStore_HeadMissing(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		notFound(w)
	})

	_, err := store.Head(context.Background(), "missing")
	if !errors.Is(err, utils.ErrNotFound) {
		t.Fatalf("Head error = %v, want ErrNotFound", err)
	}

	_, ok, err := blobstore.HeadIfExists(context.Background(), store, "missing")
	if err != nil || ok {
		t.Errorf("HeadIfExists = %v, %v", ok, err)
	}
}

func TestStore_DeleteMissing(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s", r.Method)
		}
		notFound(w)
	})

	if err := store.Delete(context.Background(), "gone"); err != nil {
		t.Errorf("Delete of a missing object: %v", err)
	}
}

func TestStore_DeleteForbidden(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"denied"}}`))
	})

	err := store.Delete(context.Background(), "key")
	if !errors.Is(err, utils.ErrUnauthorized) {
		t.Errorf("Delete error = %v, want ErrUnauthorized", err)
	}
}

func TestChildName(t *testing.T) {
	if got := blobstore.ChildName("org/alice/", "org/alice/f1/d1"); got != "f1" {
		t.Errorf("ChildName = %q", got)
	}
	if got := blobstore.ChildName("org/alice/", "org/alice/.userinfo"); got != ".userinfo" {
		t.Errorf("ChildName = %q", got)
	}
}
