package postgrest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"agora/internal/models"
	"agora/internal/resilience"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL, "test-key", srv.Client())
}

func TestListCommunityCategoriesSendsHeadersAndOrder(t *testing.T) {
	id := uuid.New()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/community_categories" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("apikey"); got != "test-key" {
			t.Errorf("apikey = %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.URL.Query().Get("order"); got != "order_index.asc,name.asc" {
			t.Errorf("order = %q", got)
		}
		json.NewEncoder(w).Encode([]map[string]any{
			{"id": id, "name": "Gaming", "slug": "gaming", "order_index": 0, "created_at": time.Now()},
		})
	})

	rows, err := c.ListCommunityCategories(context.Background())
	if err != nil {
		t.Fatalf("ListCommunityCategories: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != id || rows[0].Slug != "gaming" {
		t.Errorf("rows = %+v", rows)
	}
}

func TestListRejectsInvalidRows(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		// Missing slug and name.
		io.WriteString(w, `[{"id":"`+uuid.NewString()+`","order_index":0}]`)
	})

	if _, err := c.ListCommunityCategories(context.Background()); err == nil {
		t.Fatal("expected validation error for malformed row")
	}
}

func TestErrorReplyBecomesStatusError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		io.WriteString(w, `{"code":"PGRST000","message":"could not connect to database"}`)
	})

	_, err := c.ListCategories(context.Background())
	var se *resilience.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want *resilience.StatusError", err)
	}
	if se.Status != http.StatusServiceUnavailable || se.Code != "PGRST000" {
		t.Errorf("StatusError = %+v", se)
	}
	if !resilience.IsRetriable(err) {
		t.Error("503 should be retriable")
	}
}

func TestErrorReplyWithPlainBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})

	err := c.Probe(context.Background(), "community_categories")
	var se *resilience.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v", err)
	}
	if se.Message != "bad gateway" {
		t.Errorf("Message = %q, want %q", se.Message, "bad gateway")
	}
}

func TestFindCommunityCategoryNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Query().Get("id"), "eq.") {
			t.Errorf("id filter = %q", r.URL.Query().Get("id"))
		}
		io.WriteString(w, `[]`)
	})

	cc, err := c.FindCommunityCategory(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("FindCommunityCategory: %v", err)
	}
	if cc != nil {
		t.Errorf("got %+v, want nil", cc)
	}
}

func TestNextOrderIndex(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"empty", `[]`, 0},
		{"max plus one", `[{"order_index":7}]`, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if got := r.URL.Query().Get("order"); got != "order_index.desc" {
					t.Errorf("order = %q", got)
				}
				io.WriteString(w, tt.body)
			})
			got, err := c.NextOrderIndex(context.Background())
			if err != nil {
				t.Fatalf("NextOrderIndex: %v", err)
			}
			if got != tt.want {
				t.Errorf("NextOrderIndex = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCreateCommunityCategoryAsksForRepresentation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if got := r.Header.Get("Prefer"); got != "return=representation" {
			t.Errorf("Prefer = %q", got)
		}
		var row map[string]any
		json.NewDecoder(r.Body).Decode(&row)
		row["created_at"] = time.Now()
		row["updated_at"] = time.Now()
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode([]map[string]any{row})
	})

	cc, err := c.CreateCommunityCategory(context.Background(), &models.CommunityCategory{
		Name: "Art", Slug: "art", OrderIndex: 3,
	})
	if err != nil {
		t.Fatalf("CreateCommunityCategory: %v", err)
	}
	if cc.ID == uuid.Nil || cc.OrderIndex != 3 || cc.Slug != "art" {
		t.Errorf("created = %+v", cc)
	}
}

func TestSetCommunityCategoryNull(t *testing.T) {
	id := uuid.New()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("method = %s", r.Method)
		}
		if got := r.URL.Query().Get("id"); got != "eq."+id.String() {
			t.Errorf("id filter = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"category_id":null}` {
			t.Errorf("body = %s", body)
		}
		w.WriteHeader(http.StatusNoContent)
	})

	if err := c.SetCommunityCategory(context.Background(), id, nil); err != nil {
		t.Fatalf("SetCommunityCategory: %v", err)
	}
}

func TestListCategorizedCommunitiesFilter(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("category_id"); got != "not.is.null" {
			t.Errorf("category_id filter = %q", got)
		}
		io.WriteString(w, `[]`)
	})

	if _, err := c.ListCategorizedCommunities(context.Background()); err != nil {
		t.Fatalf("ListCategorizedCommunities: %v", err)
	}
}

func TestSoftDeleteMissingCategory(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		io.WriteString(w, `[]`)
	})

	deleted, err := c.SoftDeleteCommunityCategory(context.Background(), uuid.New(), nil)
	if err != nil {
		t.Fatalf("SoftDeleteCommunityCategory: %v", err)
	}
	if deleted != nil {
		t.Errorf("deleted = %+v, want nil", deleted)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want only the lookup", calls)
	}
}

func TestContextCancelled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[]`)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.ListCategories(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestPing(t *testing.T) {
	status := http.StatusOK
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead || r.URL.Path != "/rest/v1/" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("apikey") != "test-key" {
			t.Error("apikey header missing")
		}
		w.WriteHeader(status)
	})

	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	status = http.StatusBadGateway
	err := c.Ping(context.Background())
	var se *resilience.StatusError
	if !errors.As(err, &se) || se.Status != http.StatusBadGateway {
		t.Errorf("error = %v, want StatusError 502", err)
	}
}

func TestCreateCommunityDefaults(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var row map[string]any
		json.NewDecoder(r.Body).Decode(&row)
		if row["visibility"] != "public" || row["posting_restrictions"] != "anyone" {
			t.Errorf("row = %v, want public/anyone defaults", row)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode([]map[string]any{row})
	})

	cm, err := c.CreateCommunity(context.Background(), &models.Community{Name: "Makers"})
	if err != nil {
		t.Fatalf("CreateCommunity: %v", err)
	}

	c2 := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("id"); got != "eq."+cm.ID.String() {
			t.Errorf("id filter = %q", got)
		}
		io.WriteString(w, `[]`)
	})
	found, err := c2.FindCommunity(context.Background(), cm.ID)
	if err != nil || found != nil {
		t.Errorf("FindCommunity = %v, %v, want nil, nil", found, err)
	}
}
