package openapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/labstack/echo/v4"
	"gopkg.in/yaml.v3"
)

// Document is an OpenAPI 3 description assembled in code next to the routes
// it describes.
type Document struct {
	mu      sync.RWMutex
	spec    *openapi3.T
	schemas *schemaRegistry
}

func New(title, version string) *Document {
	spec := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:   title,
			Version: version,
		},
		Paths:      openapi3.NewPaths(),
		Components: &openapi3.Components{Schemas: make(openapi3.Schemas)},
	}
	return &Document{spec: spec, schemas: newSchemaRegistry(spec.Components.Schemas)}
}

func (d *Document) Description(desc string) *Document {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.spec.Info.Description = desc
	return d
}

func (d *Document) Server(url, description string) *Document {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.spec.Servers = append(d.spec.Servers, &openapi3.Server{URL: url, Description: description})
	return d
}

func (d *Document) Tag(name, description string) *Document {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.spec.Tags = append(d.spec.Tags, &openapi3.Tag{Name: name, Description: description})
	return d
}

// BasicAuth declares an HTTP basic security scheme that operations can
// reference by name.
func (d *Document) BasicAuth(name, description string) *Document {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.spec.Components.SecuritySchemes == nil {
		d.spec.Components.SecuritySchemes = make(openapi3.SecuritySchemes)
	}
	d.spec.Components.SecuritySchemes[name] = &openapi3.SecuritySchemeRef{
		Value: openapi3.NewSecurityScheme().WithType("http").WithScheme("basic").WithDescription(description),
	}
	return d
}

// Route starts describing one operation. Call Build to add it.
func (d *Document) Route(method, path string) *Operation {
	responses := openapi3.NewResponses()
	responses.Delete("default")
	return &Operation{
		doc:    d,
		method: strings.ToUpper(method),
		path:   path,
		op:     &openapi3.Operation{Responses: responses},
	}
}

func (d *Document) Spec() *openapi3.T {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.spec
}

// Validate checks the document against the OpenAPI 3 schema rules.
func (d *Document) Validate(ctx context.Context) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.spec.Validate(ctx)
}

func (d *Document) JSON() ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return json.MarshalIndent(d.spec, "", "  ")
}

func (d *Document) YAML() ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	intermediate, err := d.spec.MarshalYAML()
	if err != nil {
		return nil, err
	}
	return yaml.Marshal(intermediate)
}

func (d *Document) JSONHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		data, err := d.JSON()
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSONBlob(http.StatusOK, data)
	}
}

func (d *Document) YAMLHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		data, err := d.YAML()
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.Blob(http.StatusOK, "application/yaml", data)
	}
}

func (d *Document) add(method, path string, op *openapi3.Operation) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := echoPathToOpenAPI(path)
	item := d.spec.Paths.Find(key)
	if item == nil {
		item = &openapi3.PathItem{}
		d.spec.Paths.Set(key, item)
	}
	item.SetOperation(method, op)
}

func (d *Document) schemaFor(example any) *openapi3.SchemaRef {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.schemas.ref(example)
}

// echoPathToOpenAPI rewrites ":param" segments as "{param}".
func echoPathToOpenAPI(path string) string {
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if strings.HasPrefix(part, ":") {
			parts[i] = "{" + strings.TrimPrefix(part, ":") + "}"
		}
	}
	return strings.Join(parts, "/")
}
