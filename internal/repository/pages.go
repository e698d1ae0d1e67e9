package repository

import (
	"fmt"

	"github.com/rpattn/revstore/internal/db"
	"github.com/rpattn/revstore/internal/domain"
	"github.com/rpattn/revstore/internal/uow"
)

// PageContents describes the page_contents table
func PageContents() Descriptor[*domain.PageContent] {
	return Descriptor[*domain.PageContent]{
		Table:  "page_contents",
		Fields: []string{"title", "properties"},
		New: func() *domain.PageContent {
			return &domain.PageContent{}
		},
		Bind: func(p *domain.PageContent) ([]any, func() error) {
			var propertiesJSON []byte
			return []any{&p.Title, &propertiesJSON}, func() error {
				properties, err := domain.FromJSONBProperties(propertiesJSON)
				if err != nil {
					return fmt.Errorf("failed to decode properties for page content %s: %w", p.ID, err)
				}
				p.Properties = properties
				return nil
			}
		},
		Values: func(p *domain.PageContent) (map[string]any, error) {
			propertiesJSON, err := p.GetPropertiesAsJSONB()
			if err != nil {
				return nil, fmt.Errorf("failed to marshal properties: %w", err)
			}
			return map[string]any{
				"title":      p.Title,
				"properties": string(propertiesJSON),
			}, nil
		},
	}
}

// PageLayouts describes the page_layouts table
func PageLayouts() Descriptor[*domain.PageLayout] {
	return Descriptor[*domain.PageLayout]{
		Table:  "page_layouts",
		Fields: []string{"template", "column_count"},
		New: func() *domain.PageLayout {
			return &domain.PageLayout{}
		},
		Bind: func(p *domain.PageLayout) ([]any, func() error) {
			return []any{&p.Template, &p.Columns}, nil
		},
		Values: func(p *domain.PageLayout) (map[string]any, error) {
			return map[string]any{
				"template":     p.Template,
				"column_count": p.Columns,
			}, nil
		},
	}
}

// PageRepositories bundles the repositories of the page aggregate
type PageRepositories struct {
	Contents RevisionRepository[*domain.PageContent]
	Layouts  RevisionRepository[*domain.PageLayout]
}

// NewPageRepositories creates the page repositories over one session provider
func NewPageRepositories(sessions uow.Provider, dialect db.Dialect, opts ...Option) (*PageRepositories, error) {
	contents, err := NewRevisionRepository(sessions, dialect, PageContents(), opts...)
	if err != nil {
		return nil, err
	}
	layouts, err := NewRevisionRepository(sessions, dialect, PageLayouts(), opts...)
	if err != nil {
		return nil, err
	}
	return &PageRepositories{Contents: contents, Layouts: layouts}, nil
}
