package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/golang/glog"
	"github.com/gorilla/mux"

	"collabwiki/docs"
	"collabwiki/registry"
	"collabwiki/store"
)

// maxBody caps request bodies of the page and render endpoints.
const maxBody = 4 << 20

type apiResponse struct {
	Success bool            `json:"success"`
	ID      string          `json:"id,omitempty"`
	Page    *docs.Page      `json:"page,omitempty"`
	Pages   []store.Summary `json:"pages,omitempty"`
	Error   string          `json:"error,omitempty"`
}

type createRequest struct {
	Name     *string `json:"name"`
	Markdown *string `json:"markdown"`
	Client   string  `json:"client"`
}

type updateRequest struct {
	Markdown *string `json:"markdown"`
	Client   string  `json:"client"`
}

var errBadPayload = errors.New("api: bad request payload")

func writeJSON(w http.ResponseWriter, status int, resp apiResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		glog.Infof("[api]write response error = %s\n", err)
	}
}

func writeError(w http.ResponseWriter, id string, err error) {
	status := http.StatusInternalServerError
	msg := "Internal server error"
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
		msg = fmt.Sprintf("There is no page with ID %s", id)
	case errors.Is(err, store.ErrNameTaken):
		status = http.StatusConflict
		msg = "A page with that name already exists"
	case errors.Is(err, errBadPayload):
		status = http.StatusBadRequest
		msg = "Bad request payload"
	case errors.Is(err, docs.ErrInvalidName):
		status = http.StatusBadRequest
		msg = "Page name must not be empty"
	default:
		glog.Errorf("[api]%s error = %s\n", id, err)
	}
	writeJSON(w, status, apiResponse{Success: false, Error: msg})
}

// clientOf returns the caller identity from the body, falling back to the
// X-Client-Id header.
func clientOf(r *http.Request, fromBody string) registry.ClientID {
	if fromBody != "" {
		return registry.ClientID(fromBody)
	}
	return registry.ClientID(r.Header.Get("X-Client-Id"))
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %s", errBadPayload, err)
	}
	return nil
}

func (s *wikiServer) listPages(w http.ResponseWriter, r *http.Request) {
	pages, err := s.docs.List(r.Context())
	if err != nil {
		writeError(w, "", err)
		return
	}
	if pages == nil {
		pages = []store.Summary{}
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Pages: pages})
}

func (s *wikiServer) getPage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	page, err := s.docs.Get(r.Context(), id)
	if err != nil {
		writeError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Page: page})
}

func (s *wikiServer) createPage(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, "", err)
		return
	}
	if req.Name == nil || req.Markdown == nil {
		writeError(w, "", errBadPayload)
		return
	}
	id, err := s.docs.Create(r.Context(), *req.Name, *req.Markdown, clientOf(r, req.Client))
	if err != nil {
		writeError(w, "", err)
		return
	}
	writeJSON(w, http.StatusCreated, apiResponse{Success: true, ID: id})
}

func (s *wikiServer) updatePage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req updateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, id, err)
		return
	}
	if req.Markdown == nil {
		writeError(w, id, errBadPayload)
		return
	}
	if err := s.docs.Update(r.Context(), id, *req.Markdown, clientOf(r, req.Client)); err != nil {
		writeError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true})
}

func (s *wikiServer) deletePage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.docs.Delete(r.Context(), id); err != nil {
		writeError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true})
}

// renderMarkdown renders a raw markup body, for clients previewing locally.
func (s *wikiServer) renderMarkdown(w http.ResponseWriter, r *http.Request) {
	buf, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}
	html, err := s.renderer.Render(r.Context(), string(buf))
	if err != nil {
		glog.Infof("[api]render error = %s\n", err)
		http.Error(w, "render error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	io.WriteString(w, html)
}
