// ABOUTME: Fixed resources and URI-template resources in the capability registry.
// ABOUTME: Resolves resources/read URIs to reader closures.

package catalog

import (
	"context"
	"fmt"

	"github.com/yosida95/uritemplate/v3"
)

// ResourceDescriptor is the MCP description of a resource as listed by resources/list.
type ResourceDescriptor struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ResourceTemplateDescriptor is the MCP description of a resource template.
type ResourceTemplateDescriptor struct {
	URITemplate string `json:"uriTemplate"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ResourceReader returns the text body of a fixed resource.
type ResourceReader func(ctx context.Context) (string, error)

// TemplateReader returns the text body for a URI matched by a template.
// vars holds the template variables extracted from the URI.
type TemplateReader func(ctx context.Context, uri string, vars map[string]string) (string, error)

// Resource is a fixed, URI-addressed data endpoint.
type Resource struct {
	Descriptor ResourceDescriptor
	Read       ResourceReader
}

// ResourceTemplate is a family of resources addressed by a URI template.
type ResourceTemplate struct {
	Descriptor ResourceTemplateDescriptor
	Read       TemplateReader

	tmpl *uritemplate.Template
}

// ResourceContents is one entry of a resources/read result.
type ResourceContents struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text"`
}

// RegisterResource adds a fixed resource.
func (r *Registry) RegisterResource(res *Resource) error {
	if res.Descriptor.URI == "" || res.Read == nil {
		return fmt.Errorf("resource %q: uri and reader are required", res.Descriptor.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byURI[res.Descriptor.URI]; exists {
		return fmt.Errorf("%w: uri '%s'", ErrResourceCollision, res.Descriptor.URI)
	}
	r.resources = append(r.resources, res)
	r.byURI[res.Descriptor.URI] = res

	r.logger.Debug("resource registered", "uri", res.Descriptor.URI)
	return nil
}

// RegisterTemplate compiles and adds a resource template.
func (r *Registry) RegisterTemplate(t *ResourceTemplate) error {
	if t.Read == nil {
		return fmt.Errorf("resource template %q: reader is required", t.Descriptor.URITemplate)
	}
	tmpl, err := uritemplate.New(t.Descriptor.URITemplate)
	if err != nil {
		return fmt.Errorf("parsing uri template %q: %w", t.Descriptor.URITemplate, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.templates {
		if existing.Descriptor.URITemplate == t.Descriptor.URITemplate {
			return fmt.Errorf("%w: template '%s'", ErrResourceCollision, t.Descriptor.URITemplate)
		}
	}
	t.tmpl = tmpl
	r.templates = append(r.templates, t)

	r.logger.Debug("resource template registered", "uri_template", t.Descriptor.URITemplate)
	return nil
}

// AvailableResources returns every fixed resource in registration order.
func (r *Registry) AvailableResources() []ResourceDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ResourceDescriptor, len(r.resources))
	for i, res := range r.resources {
		out[i] = res.Descriptor
	}
	return out
}

// ResourceTemplates returns every resource template in registration order.
func (r *Registry) ResourceTemplates() []ResourceTemplateDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ResourceTemplateDescriptor, len(r.templates))
	for i, t := range r.templates {
		out[i] = t.Descriptor
	}
	return out
}

// ReadResource resolves uri against fixed resources first, then templates.
// Returns ErrResourceNotFound when nothing matches.
func (r *Registry) ReadResource(ctx context.Context, uri string) (ResourceContents, error) {
	r.mu.RLock()
	res, fixed := r.byURI[uri]
	var match *ResourceTemplate
	var vars map[string]string
	if !fixed {
		for _, t := range r.templates {
			if v, ok := matchTemplate(t.tmpl, uri); ok {
				match, vars = t, v
				break
			}
		}
	}
	r.mu.RUnlock()

	switch {
	case fixed:
		text, err := res.Read(ctx)
		if err != nil {
			return ResourceContents{}, fmt.Errorf("reading %s: %w", uri, err)
		}
		return ResourceContents{URI: uri, MimeType: res.Descriptor.MimeType, Text: text}, nil
	case match != nil:
		text, err := match.Read(ctx, uri, vars)
		if err != nil {
			return ResourceContents{}, fmt.Errorf("reading %s: %w", uri, err)
		}
		return ResourceContents{URI: uri, MimeType: match.Descriptor.MimeType, Text: text}, nil
	default:
		return ResourceContents{}, fmt.Errorf("%w: %s", ErrResourceNotFound, uri)
	}
}

// matchTemplate reports whether uri is an expansion of tmpl and returns the
// variables it binds.
func matchTemplate(tmpl *uritemplate.Template, uri string) (map[string]string, bool) {
	if !tmpl.Regexp().MatchString(uri) {
		return nil, false
	}
	values := tmpl.Match(uri)
	vars := make(map[string]string, len(tmpl.Varnames()))
	for _, name := range tmpl.Varnames() {
		vars[name] = values.Get(name).String()
	}
	return vars, true
}
