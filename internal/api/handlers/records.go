package handlers

import (
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	apimiddleware "github.com/autobrr/litebase/internal/api/middleware"
	"github.com/autobrr/litebase/internal/apierr"
	"github.com/autobrr/litebase/internal/params"
	"github.com/autobrr/litebase/internal/recordapi"
	"github.com/autobrr/litebase/internal/schema"
)

// maxMultipartMemory bounds how much of a multipart request body is
// buffered in memory before spilling to temp files, matching the
// conservative default net/http's own ParseMultipartForm examples use.
const maxMultipartMemory = 32 << 20

// RecordsHandler implements spec.md §4.4's generic table/view CRUD + list
// surface: every record API route resolves {table} against a
// *recordapi.Registry and delegates straight to *recordapi.Service.
// Grounded on the teacher's internal/api/handlers/torrents.go (handler
// methods that are thin chi.URLParam + service-call + writeJSON glue),
// generalized from a fixed resource to the schema-driven one SPEC_FULL.md
// describes.
type RecordsHandler struct {
	service  *recordapi.Service
	registry *recordapi.Registry
	schema   *schema.Cache
}

func NewRecordsHandler(service *recordapi.Service, registry *recordapi.Registry, sc *schema.Cache) *RecordsHandler {
	return &RecordsHandler{service: service, registry: registry, schema: sc}
}

func (h *RecordsHandler) resolve(w http.ResponseWriter, r *http.Request) (recordapi.Config, schema.Entity, bool) {
	table := chi.URLParam(r, "table")
	cfg, ok := h.registry.Get(table)
	if !ok {
		writeError(w, apierr.NotFound("no such record api"))
		return recordapi.Config{}, nil, false
	}
	ent, ok := h.schema.Entity(table)
	if !ok {
		writeError(w, apierr.NotFound("no such table or view"))
		return recordapi.Config{}, nil, false
	}
	return cfg, ent, true
}

func callerFrom(r *http.Request) recordapi.Caller {
	userID, authenticated := apimiddleware.CallerFromContext(r.Context())
	return recordapi.Caller{UserID: userID, Authenticated: authenticated}
}

func (h *RecordsHandler) List(w http.ResponseWriter, r *http.Request) {
	cfg, ent, ok := h.resolve(w, r)
	if !ok {
		return
	}
	result, err := h.service.List(r.Context(), cfg, callerFrom(r), ent, r.URL.Query())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *RecordsHandler) Get(w http.ResponseWriter, r *http.Request) {
	cfg, ent, ok := h.resolve(w, r)
	if !ok {
		return
	}
	expand := splitCSV(r.URL.Query().Get("expand"))
	item, err := h.service.Get(r.Context(), cfg, callerFrom(r), ent, chi.URLParam(r, "pk"), expand)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *RecordsHandler) Create(w http.ResponseWriter, r *http.Request) {
	cfg, ent, ok := h.resolve(w, r)
	if !ok {
		return
	}
	body, files, err := decodeBody(r)
	if err != nil {
		writeError(w, apierr.BadRequest("%v", err))
		return
	}
	item, err := h.service.Create(r.Context(), cfg, callerFrom(r), ent, body, files)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (h *RecordsHandler) Update(w http.ResponseWriter, r *http.Request) {
	cfg, ent, ok := h.resolve(w, r)
	if !ok {
		return
	}
	body, files, err := decodeBody(r)
	if err != nil {
		writeError(w, apierr.BadRequest("%v", err))
		return
	}
	item, err := h.service.Update(r.Context(), cfg, callerFrom(r), ent, chi.URLParam(r, "pk"), body, files)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *RecordsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	cfg, ent, ok := h.resolve(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), cfg, callerFrom(r), ent, chi.URLParam(r, "pk")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeBody accepts either a plain JSON object body or a multipart form,
// the latter mapping each non-file field to a body key and each file part
// to a params.FilePart by its form field name (spec.md §4.2 step 3).
func decodeBody(r *http.Request) (map[string]any, []params.FilePart, error) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		return decodeMultipart(r)
	}

	body := map[string]any{}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &body); err != nil {
			return nil, nil, err
		}
	}
	return body, nil, nil
}

func decodeMultipart(r *http.Request) (map[string]any, []params.FilePart, error) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return nil, nil, err
	}

	body := map[string]any{}
	for key, vals := range r.MultipartForm.Value {
		if len(vals) == 1 {
			body[key] = vals[0]
		} else {
			anyVals := make([]any, len(vals))
			for i, v := range vals {
				anyVals[i] = v
			}
			body[key] = anyVals
		}
	}

	var files []params.FilePart
	for field, headers := range r.MultipartForm.File {
		for _, fh := range headers {
			fh := fh
			files = append(files, params.FilePart{
				FieldName:        field,
				OriginalFilename: fh.Filename,
				ContentType:      fh.Header.Get("Content-Type"),
				Open: func() (params.ReadCloser, error) {
					return openMultipartFile(fh)
				},
			})
		}
	}
	return body, files, nil
}

func openMultipartFile(fh *multipart.FileHeader) (params.ReadCloser, error) {
	return fh.Open()
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
