package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/go-cmp/cmp"

	"github.com/eduzsantillan/scavenger-hunt/internal/hunt"
	"github.com/eduzsantillan/scavenger-hunt/internal/labels"
	"github.com/eduzsantillan/scavenger-hunt/internal/metrics"
	"github.com/eduzsantillan/scavenger-hunt/internal/s3util"
	"github.com/eduzsantillan/scavenger-hunt/internal/store"
)

func TestMain(m *testing.M) {
	metrics.SetOutput(io.Discard)
	os.Exit(m.Run())
}

type fakePresigner struct {
	in *s3.PutObjectInput
}

func (f *fakePresigner) PresignPutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	f.in = in
	return &v4.PresignedHTTPRequest{
		URL:    "https://uploads.example/" + aws.ToString(in.Key),
		Method: http.MethodPut,
		SignedHeader: http.Header{
			"Content-Type":            {aws.ToString(in.ContentType)},
			"X-Amz-Meta-Requiredlist": {in.Metadata[s3util.RequiredTermsMetadataKey]},
		},
	}, nil
}

func newTestServer(t *testing.T, secret string) (*server, *store.MemoryStore, *fakePresigner) {
	t.Helper()
	st := store.NewMemoryStore()
	p := &fakePresigner{}
	return &server{
		store:        st,
		presigner:    p,
		bucket:       "uploads",
		originSecret: secret,
		newID:        func() string { return "generated-id" },
	}, st, p
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t, "")
	rec := do(t, srv.routes(), http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("health = %d %s", rec.Code, rec.Body.String())
	}
}

func TestOriginVerify(t *testing.T) {
	srv, _, _ := newTestServer(t, "s3cret")
	h := srv.routes()

	if rec := do(t, h, http.MethodGet, "/api/health", ""); rec.Code != http.StatusForbidden {
		t.Errorf("missing header: status = %d, want 403", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("x-origin-verify", "s3cret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("valid header: status = %d, want 200", rec.Code)
	}
}

func TestCreateGroupAndStatus(t *testing.T) {
	srv, _, _ := newTestServer(t, "")
	h := srv.routes()

	rec := do(t, h, http.MethodPost, "/api/groups", `{"kind":"team","name":"Red Foxes","itemIds":["wolf","owl","wolf"]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d %s", rec.Code, rec.Body.String())
	}
	var created hunt.GroupStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if created.Group.ID != "generated-id" || created.Group.Kind != hunt.KindTeam || len(created.Records) != 2 {
		t.Errorf("unexpected created status %+v", created)
	}

	rec = do(t, h, http.MethodGet, "/api/groups/generated-id", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d %s", rec.Code, rec.Body.String())
	}
	var got hunt.GroupStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, r := range got.Records {
		ids = append(ids, r.ItemID)
		if r.IsCollected {
			t.Errorf("new record %s should not be collected", r.ItemID)
		}
	}
	if diff := cmp.Diff([]string{"owl", "wolf"}, ids); diff != "" {
		t.Errorf("record IDs mismatch (-want +got):\n%s", diff)
	}

	if rec := do(t, h, http.MethodGet, "/api/groups/unknown", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown group status = %d, want 404", rec.Code)
	}
}

func TestCreateGroup_Validation(t *testing.T) {
	srv, _, _ := newTestServer(t, "")
	h := srv.routes()
	tests := []struct {
		name string
		body string
	}{
		{"bad json", `{`},
		{"bad kind", `{"kind":"club","itemIds":["wolf"]}`},
		{"no items", `{"kind":"team","itemIds":[]}`},
		{"slash in item", `{"kind":"team","itemIds":["a/b"]}`},
		{"bad group id", `{"groupId":"../x","kind":"team","itemIds":["wolf"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(t, h, http.MethodPost, "/api/groups", tt.body); rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (%s)", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestPutItem(t *testing.T) {
	srv, st, _ := newTestServer(t, "")
	h := srv.routes()

	rec := do(t, h, http.MethodPost, "/api/items", `{"itemId":"wolf","name":"Wolf","synonyms":["Gray Wolf","canine"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("put item = %d %s", rec.Code, rec.Body.String())
	}
	item, _ := st.GetItem(context.Background(), "wolf")
	if item == nil || item.Name != "Wolf" {
		t.Fatalf("item not stored: %+v", item)
	}
	if rec := do(t, h, http.MethodPost, "/api/items", `{"itemId":"wolf"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("missing name status = %d, want 400", rec.Code)
	}
}

func TestUploadURL(t *testing.T) {
	srv, st, p := newTestServer(t, "")
	ctx := context.Background()
	if err := st.PutItem(ctx, &hunt.Item{ID: "wolf", Name: "Wolf", Synonyms: []string{"Gray Wolf", "Timber Wolf"}}); err != nil {
		t.Fatal(err)
	}
	if err := st.CreateGroup(ctx, &hunt.Group{ID: "team-1", Kind: hunt.KindTeam}, []string{"wolf"}); err != nil {
		t.Fatal(err)
	}
	h := srv.routes()

	rec := do(t, h, http.MethodGet, "/api/upload-url?groupId=team-1&itemId=wolf&ext=JPG&size=3145728", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("upload-url = %d %s", rec.Code, rec.Body.String())
	}
	var got s3util.PresignedUpload
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Key != "team-1/wolf/image.jpg" || got.Method != http.MethodPut {
		t.Errorf("unexpected upload %+v", got)
	}
	if aws.ToString(p.in.ContentType) != "image/jpeg" || aws.ToString(p.in.Bucket) != "uploads" || aws.ToInt64(p.in.ContentLength) != 3145728 {
		t.Errorf("unexpected presign input %+v", p.in)
	}
	terms, err := labels.ParseRequiredTerms(p.in.Metadata[s3util.RequiredTermsMetadataKey])
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"gray wolf", "timber wolf", "wolf"}, terms); diff != "" {
		t.Errorf("required terms mismatch (-want +got):\n%s", diff)
	}
}

func TestUploadURL_Errors(t *testing.T) {
	srv, st, _ := newTestServer(t, "")
	ctx := context.Background()
	if err := st.CreateGroup(ctx, &hunt.Group{ID: "team-1", Kind: hunt.KindTeam}, []string{"wolf", "owl"}); err != nil {
		t.Fatal(err)
	}
	if err := st.PutItem(ctx, &hunt.Item{ID: "wolf", Name: "Wolf"}); err != nil {
		t.Fatal(err)
	}
	h := srv.routes()

	tests := []struct {
		name   string
		target string
		want   int
	}{
		{"bad ext", "/api/upload-url?groupId=team-1&itemId=wolf&ext=gif", http.StatusBadRequest},
		{"bad size", "/api/upload-url?groupId=team-1&itemId=wolf&ext=jpg&size=-4", http.StatusBadRequest},
		{"too large", "/api/upload-url?groupId=team-1&itemId=wolf&ext=jpg&size=16777216", http.StatusRequestEntityTooLarge},
		{"bad group", "/api/upload-url?groupId=&itemId=wolf&ext=jpg", http.StatusBadRequest},
		{"item not in group", "/api/upload-url?groupId=team-1&itemId=fox&ext=jpg", http.StatusNotFound},
		{"item not in catalog", "/api/upload-url?groupId=team-1&itemId=owl&ext=jpg", http.StatusNotFound},
		{"wrong method", "/api/upload-url?groupId=team-1&itemId=wolf&ext=jpg", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := http.MethodGet
			if tt.want == http.StatusMethodNotAllowed {
				method = http.MethodPost
			}
			if rec := do(t, h, method, tt.target, ""); rec.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	tests := map[string]string{
		"/api/health":         "/api/health",
		"/api/groups":         "/api/groups",
		"/api/groups/team-42": "/api/groups/*",
		"/wp-admin":           "other",
	}
	for in, want := range tests {
		if got := normalizeEndpoint(in); got != want {
			t.Errorf("normalizeEndpoint(%q) = %q, want %q", in, got, want)
		}
	}
}
