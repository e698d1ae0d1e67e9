package domain

import (
	"encoding/json"

	"github.com/google/uuid"
)

// PageContent is the soft-deletable, revisioned body of a page.
type PageContent struct {
	Record     `yaml:",inline"`
	SoftDelete `yaml:",inline"`
	Title      string         `json:"title" yaml:"title"`
	Properties map[string]any `json:"properties" yaml:"properties"`
}

// NewPageContentDraft creates a draft content row for the page.
func NewPageContentDraft(page uuid.UUID, title string, properties map[string]any) *PageContent {
	return &PageContent{
		Record:     NewDraftRecord(page),
		Title:      title,
		Properties: copyProperties(properties),
	}
}

// WithProperty returns a copy of the content carrying an added/updated
// property. The copy keeps the identity and markers of the original.
func (p PageContent) WithProperty(key string, value any) *PageContent {
	props := copyProperties(p.Properties)
	props[key] = value
	p.Properties = props
	return &p
}

// DraftCopy returns an unsaved draft copy of the content, used to start
// editing from the live revision.
func (p PageContent) DraftCopy() *PageContent {
	return &PageContent{
		Record:     NewDraftRecord(p.Owner),
		Title:      p.Title,
		Properties: copyProperties(p.Properties),
	}
}

func (p *PageContent) GetPropertiesAsJSONB() (json.RawMessage, error) {
	if p.Properties == nil {
		p.Properties = make(map[string]any)
	}
	return json.Marshal(p.Properties)
}

// FromJSONBProperties creates properties map from JSONB data
func FromJSONBProperties(propertiesJSON json.RawMessage) (map[string]any, error) {
	if len(propertiesJSON) == 0 {
		return map[string]any{}, nil
	}
	var properties map[string]any
	err := json.Unmarshal(propertiesJSON, &properties)
	return properties, err
}

// PageLayout is the revisioned layout of a page. Layout rows carry no
// history worth keeping once removed, so they are deleted physically.
type PageLayout struct {
	Record   `yaml:",inline"`
	Template string `json:"template" yaml:"template"`
	Columns  int    `json:"columns" yaml:"columns"`
}

// NewPageLayoutDraft creates a draft layout row for the page.
func NewPageLayoutDraft(page uuid.UUID, template string, columns int) *PageLayout {
	return &PageLayout{
		Record:   NewDraftRecord(page),
		Template: template,
		Columns:  columns,
	}
}

// copyProperties creates a shallow copy of the properties map
func copyProperties(properties map[string]any) map[string]any {
	newProperties := make(map[string]any, len(properties))
	for k, v := range properties {
		newProperties[k] = v
	}
	return newProperties
}
