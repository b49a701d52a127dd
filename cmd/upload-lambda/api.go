package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"github.com/eduzsantillan/scavenger-hunt/internal/hunt"
	"github.com/eduzsantillan/scavenger-hunt/internal/s3util"
	"github.com/eduzsantillan/scavenger-hunt/internal/store"
)

// idRegex restricts group and item IDs to characters that are safe as
// object key segments.
var idRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,127}$`)

func validateID(field, id string) error {
	if !idRegex.MatchString(id) {
		return fmt.Errorf("invalid %s: use letters, digits, '-' or '_' (max 128)", field)
	}
	return nil
}

type presigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

type server struct {
	store        store.Store
	presigner    presigner
	bucket       string
	originSecret string
	newID        func() string
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/items", s.handlePutItem)
	mux.HandleFunc("POST /api/groups", s.handleCreateGroup)
	mux.HandleFunc("GET /api/groups/{groupId}", s.handleGroupStatus)
	mux.HandleFunc("GET /api/upload-url", s.handleUploadURL)
	return withOriginVerify(s.originSecret, withMetrics(mux))
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "scavenger-hunt",
	})
}

// POST /api/items
// Body: {"itemId": "wolf", "name": "Wolf", "sciName": "Canis lupus", "synonyms": ["gray wolf", ...]}
func (s *server) handlePutItem(w http.ResponseWriter, r *http.Request) {
	var item hunt.Item
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validateID("itemId", item.ID); err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(item.Name) == "" {
		httpError(w, http.StatusBadRequest, "name is required")
		return
	}
	if err := s.store.PutItem(r.Context(), &item); err != nil {
		httpError(w, http.StatusInternalServerError, "failed to save item", err.Error())
		return
	}
	log.Info().Str("itemId", item.ID).Int("terms", len(item.RequiredTerms())).Msg("Catalog item saved")
	respondJSON(w, http.StatusOK, item)
}

type createGroupRequest struct {
	GroupID    string         `json:"groupId"`
	Kind       hunt.GroupKind `json:"kind"`
	Name       string         `json:"name"`
	CategoryID string         `json:"categoryId"`
	ItemIDs    []string       `json:"itemIds"`
}

// POST /api/groups
// Body: {"kind": "team", "name": "Red Foxes", "itemIds": ["wolf", "owl"]}
// Replaying a request with the same groupId is safe: collected records are kept.
func (s *server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.GroupID == "" {
		req.GroupID = s.newID()
	}
	if err := validateID("groupId", req.GroupID); err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !req.Kind.Valid() {
		httpError(w, http.StatusBadRequest, "kind must be team or session")
		return
	}
	if len(req.ItemIDs) == 0 {
		httpError(w, http.StatusBadRequest, "itemIds must not be empty")
		return
	}
	for _, id := range req.ItemIDs {
		if err := validateID("itemId", id); err != nil {
			httpError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	ctx := r.Context()
	group := &hunt.Group{ID: req.GroupID, Kind: req.Kind, Name: req.Name, CategoryID: req.CategoryID}
	if err := s.store.CreateGroup(ctx, group, req.ItemIDs); err != nil {
		httpError(w, http.StatusInternalServerError, "failed to create group", err.Error())
		return
	}
	status, err := s.store.GetGroupStatus(ctx, req.GroupID)
	if err != nil || status == nil {
		httpError(w, http.StatusInternalServerError, "failed to read group", fmt.Sprint(err))
		return
	}
	log.Info().Str("groupId", req.GroupID).Str("kind", string(req.Kind)).Int("items", len(status.Records)).Msg("Group instantiated")
	respondJSON(w, http.StatusCreated, status)
}

// GET /api/groups/{groupId}
func (s *server) handleGroupStatus(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("groupId")
	if err := validateID("groupId", groupID); err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}
	status, err := s.store.GetGroupStatus(r.Context(), groupID)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "failed to read group", err.Error())
		return
	}
	if status == nil {
		httpError(w, http.StatusNotFound, "group not found")
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// GET /api/upload-url?groupId=...&itemId=...&ext=jpg[&size=bytes]
// Returns a presigned PUT for {groupId}/{itemId}/image.{ext}. The signed
// headers carry the item's required terms as object metadata; the browser
// must send every returned header.
func (s *server) handleUploadURL(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	groupID, itemID := q.Get("groupId"), q.Get("itemId")
	ext := strings.ToLower(strings.TrimPrefix(q.Get("ext"), "."))

	if err := validateID("groupId", groupID); err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validateID("itemId", itemID); err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}
	contentType := s3util.ImageContentType(ext)
	if contentType == "" {
		httpError(w, http.StatusBadRequest, fmt.Sprintf("unsupported image extension: %q", ext))
		return
	}
	var size int64
	if raw := q.Get("size"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			httpError(w, http.StatusBadRequest, "size must be a positive byte count")
			return
		}
		if n > s3util.MaxUploadBytes {
			httpError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("photo exceeds %d MiB", s3util.MaxUploadBytes>>20))
			return
		}
		size = n
	}

	ctx := r.Context()
	rec, err := s.store.GetCollectionRecord(ctx, groupID, itemID)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "failed to read collection record", err.Error())
		return
	}
	if rec == nil {
		httpError(w, http.StatusNotFound, "item is not part of this group")
		return
	}
	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "failed to read item", err.Error())
		return
	}
	if item == nil {
		httpError(w, http.StatusNotFound, "item not found")
		return
	}

	key := hunt.UploadKey(groupID, itemID, ext)
	upload, err := s3util.PresignUpload(ctx, s.presigner, s.bucket, key, contentType, size, item.RequiredTerms())
	if err != nil {
		httpError(w, http.StatusInternalServerError, "failed to generate upload URL", err.Error())
		return
	}
	log.Debug().Str("key", key).Int("terms", len(item.RequiredTerms())).Msg("Presigned upload URL issued")
	respondJSON(w, http.StatusOK, upload)
}
