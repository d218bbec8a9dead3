package docs

import (
	"context"
	"errors"
	"strings"

	"github.com/golang/glog"

	"collabwiki/registry"
	"collabwiki/render"
	"collabwiki/store"
)

var ErrInvalidName = errors.New("docs: document name must not be empty")

// Page is a stored document together with its rendered markup. HTML is
// derived on read and never stored.
type Page struct {
	store.Document
	HTML string `json:"html"`
}

// Service fronts the store. Writes that fail are returned to the caller and
// announce nothing.
type Service struct {
	store     store.Store
	publisher *Publisher
	renderer  render.Renderer
}

func NewService(s store.Store, publisher *Publisher, renderer render.Renderer) *Service {
	return &Service{
		store:     s,
		publisher: publisher,
		renderer:  renderer,
	}
}

func (s *Service) Create(ctx context.Context, name string, markup string, client registry.ClientID) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrInvalidName
	}
	id, err := s.store.Create(ctx, name, markup)
	if err != nil {
		return "", err
	}
	glog.V(1).Infof("[docs]create %s name=%q client=%s\n", id, name, client)
	s.publisher.NotifyChanged(id, client)
	return id, nil
}

// Update replaces the markup of id.
func (s *Service) Update(ctx context.Context, id string, markup string, client registry.ClientID) error {
	if err := s.store.Update(ctx, id, markup); err != nil {
		return err
	}
	glog.V(1).Infof("[docs]update %s client=%s\n", id, client)
	s.publisher.NotifyChanged(id, client)
	return nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]store.Summary, error) {
	return s.store.List(ctx)
}

// Get loads id and renders it. A render failure still returns the page,
// with empty HTML.
func (s *Service) Get(ctx context.Context, id string) (*Page, error) {
	d, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	html, err := s.renderer.Render(ctx, d.Markup)
	if err != nil {
		glog.Infof("[docs]render %s error = %s\n", id, err)
		html = ""
	}
	return &Page{Document: *d, HTML: html}, nil
}
