package main

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"collabwiki/docs"
	"collabwiki/registry"
	"collabwiki/render"
)

// wikiServer holds what the http handlers share.
type wikiServer struct {
	docs       *docs.Service
	registry   *registry.Registry
	renderer   render.Renderer
	debounce   time.Duration
	sendBuffer int
}

func (s *wikiServer) router() http.Handler {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/pages", s.listPages).Methods(http.MethodGet)
	api.HandleFunc("/pages", s.createPage).Methods(http.MethodPost)
	api.HandleFunc("/pages/{id}", s.getPage).Methods(http.MethodGet)
	api.HandleFunc("/pages/{id}", s.updatePage).Methods(http.MethodPut)
	api.HandleFunc("/pages/{id}", s.deletePage).Methods(http.MethodDelete)

	r.HandleFunc("/app/markdown", s.renderMarkdown).Methods(http.MethodPost)
	r.HandleFunc("/ws", s.handleConnections)
	return r
}
