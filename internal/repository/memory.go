package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"storefront/scraper/internal/domain"
)

// MemoryStore is an in-process Store for local runs and tests.
type MemoryStore struct {
	mu         sync.RWMutex
	nextID     int64
	nextCatID  int64
	products   map[string]domain.Product
	byID       map[int64]string
	categories map[string]domain.Category // by slug
	catByID    map[int64]string
	links      map[int64][]link
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products:   make(map[string]domain.Product),
		byID:       make(map[int64]string),
		categories: make(map[string]domain.Category),
		catByID:    make(map[int64]string),
		links:      make(map[int64][]link),
	}
}

func (s *MemoryStore) EnsureSchema(context.Context) error { return nil }

func (s *MemoryStore) Upsert(_ context.Context, p domain.Product) (int64, error) {
	if p.URL == "" {
		return 0, fmt.Errorf("failed to upsert product: empty url")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	patch := p
	patch.ID = 0
	patch.Categories = nil

	if stored, ok := s.products[p.URL]; ok {
		s.products[p.URL] = domain.Overlay(stored, patch)
		return stored.ID, nil
	}

	s.nextID++
	patch.ID = s.nextID
	s.products[p.URL] = domain.Overlay(domain.Product{URL: p.URL}, patch)
	s.byID[patch.ID] = p.URL
	return patch.ID, nil
}

func (s *MemoryStore) Resolve(_ context.Context, chain []domain.Crumb) ([]domain.Category, error) {
	if len(chain) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Category, 0, len(chain))
	for level, crumb := range chain {
		c, ok := s.categories[crumb.Slug]
		if !ok {
			s.nextCatID++
			c = domain.Category{ID: s.nextCatID, Slug: crumb.Slug}
			s.catByID[c.ID] = crumb.Slug
		}
		c.Name = crumb.Name
		if c.URL == nil {
			c.URL = domain.StringPtr(crumb.URL)
		}
		s.categories[crumb.Slug] = c

		c.Level = level
		out = append(out, c)
	}
	return out, nil
}

func (s *MemoryStore) Relink(_ context.Context, productID int64, categoryIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[productID]; !ok {
		return fmt.Errorf("failed to relink: unknown product %d", productID)
	}
	for _, id := range categoryIDs {
		if _, ok := s.catByID[id]; !ok {
			return fmt.Errorf("failed to relink product %d: unknown category %d", productID, id)
		}
	}

	s.links[productID] = positionalLinks(categoryIDs)
	return nil
}

func (s *MemoryStore) List(context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int64, 0, len(s.byID))
	for id := range s.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]domain.Product, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.project(s.byID[id]))
	}
	return out, nil
}

func (s *MemoryStore) FindByURLs(_ context.Context, urls []string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Product
	seen := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		if _, ok := s.products[u]; !ok {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, s.project(u))
	}
	return out, nil
}

// project copies the stored product with its categories ordered by level.
func (s *MemoryStore) project(url string) domain.Product {
	p := s.products[url]
	p.Categories = nil

	links := append([]link(nil), s.links[p.ID]...)
	sort.Slice(links, func(i, j int) bool { return links[i].level < links[j].level })
	for _, l := range links {
		c := s.categories[s.catByID[l.categoryID]]
		c.Level = l.level
		p.Categories = append(p.Categories, c)
	}
	return p
}
