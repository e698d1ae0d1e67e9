package seed

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/rpattn/revstore/internal/domain"
	"github.com/rpattn/revstore/internal/repository"
)

// FixtureYAML represents the seed file structure
type FixtureYAML struct {
	Pages []PageYAML `yaml:"pages"`
}

// PageYAML groups the stored revisions of one page
type PageYAML struct {
	Owner    string        `yaml:"owner"`
	Contents []ContentYAML `yaml:"contents,omitempty"`
	Layouts  []LayoutYAML  `yaml:"layouts,omitempty"`
}

// RevisionYAML is the marker part of a row. Omitted values mean draft and
// not removed.
type RevisionYAML struct {
	First   *int64 `yaml:"first_revision,omitempty"`
	Removal *int64 `yaml:"removal_revision,omitempty"`
}

// ContentYAML represents one page content row
type ContentYAML struct {
	RevisionYAML `yaml:",inline"`
	Title        string         `yaml:"title"`
	Properties   map[string]any `yaml:"properties,omitempty"`
}

// LayoutYAML represents one page layout row
type LayoutYAML struct {
	RevisionYAML `yaml:",inline"`
	Template     string `yaml:"template"`
	Columns      int    `yaml:"columns"`
}

// Fixture is a parsed seed file ready to insert
type Fixture struct {
	Contents []*domain.PageContent
	Layouts  []*domain.PageLayout
}

// Result counts the rows a seed inserted
type Result struct {
	Contents int
	Layouts  int
}

// LoadYAML loads a fixture from a YAML file
func LoadYAML(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return ParseYAML(data)
}

// ParseYAML parses a fixture from YAML bytes
func ParseYAML(data []byte) (*Fixture, error) {
	var y FixtureYAML
	if err := yaml.Unmarshal(data, &y); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return convertYAMLToFixture(&y)
}

func convertYAMLToFixture(y *FixtureYAML) (*Fixture, error) {
	fixture := &Fixture{}
	var errs []error

	for i, page := range y.Pages {
		owner, err := uuid.Parse(page.Owner)
		if err != nil {
			errs = append(errs, fmt.Errorf("pages[%d]: invalid owner %q: %w", i, page.Owner, err))
			continue
		}

		for j, c := range page.Contents {
			marker, err := c.marker()
			if err != nil {
				errs = append(errs, fmt.Errorf("pages[%d].contents[%d]: %w", i, j, err))
				continue
			}
			content := domain.NewPageContentDraft(owner, c.Title, c.Properties)
			content.Marker = marker
			fixture.Contents = append(fixture.Contents, content)
		}

		for j, l := range page.Layouts {
			marker, err := l.marker()
			if err != nil {
				errs = append(errs, fmt.Errorf("pages[%d].layouts[%d]: %w", i, j, err))
				continue
			}
			layout := domain.NewPageLayoutDraft(owner, l.Template, l.Columns)
			layout.Marker = marker
			fixture.Layouts = append(fixture.Layouts, layout)
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return fixture, nil
}

func (r RevisionYAML) marker() (domain.Marker, error) {
	m := domain.NewDraftMarker()
	if r.First != nil {
		m.FirstRevision = *r.First
	}
	if r.Removal != nil {
		m.RemovalRevision = *r.Removal
	}

	if m.FirstRevision < domain.DraftRevision {
		return m, fmt.Errorf("first_revision %d is below the draft marker", m.FirstRevision)
	}
	if m.RemovalRevision < 0 {
		return m, fmt.Errorf("removal_revision %d is negative", m.RemovalRevision)
	}
	if m.IsPublished() && m.IsRemoved() && m.RemovalRevision <= m.FirstRevision {
		return m, fmt.Errorf("removal_revision %d must exceed first_revision %d", m.RemovalRevision, m.FirstRevision)
	}
	return m, nil
}

// UnitRunner runs fn inside a unit of work.
type UnitRunner interface {
	WithinUnit(ctx context.Context, fn func(ctx context.Context) error) error
}

// Apply inserts every fixture row inside one unit of work. When the unit
// rolls back, rows that were new go back to having no id, so the fixture can
// be applied again.
func Apply(ctx context.Context, units UnitRunner, repos *repository.PageRepositories, fixture *Fixture) (Result, error) {
	var fresh []domain.Entity
	for _, content := range fixture.Contents {
		if domain.IsNew(content) {
			fresh = append(fresh, content)
		}
	}
	for _, layout := range fixture.Layouts {
		if domain.IsNew(layout) {
			fresh = append(fresh, layout)
		}
	}

	var result Result
	err := units.WithinUnit(ctx, func(ctx context.Context) error {
		result = Result{}
		for _, content := range fixture.Contents {
			if err := repos.Contents.Insert(ctx, content); err != nil {
				return err
			}
			result.Contents++
		}
		for _, layout := range fixture.Layouts {
			if err := repos.Layouts.Insert(ctx, layout); err != nil {
				return err
			}
			result.Layouts++
		}
		return nil
	})
	if err != nil {
		for _, e := range fresh {
			e.SetID(uuid.Nil)
		}
		return Result{}, err
	}
	return result, nil
}
