package openapi

import (
	"net/http"
	"strconv"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/labstack/echo/v4"
)

// Operation describes a single method and path.
type Operation struct {
	doc    *Document
	method string
	path   string
	op     *openapi3.Operation
}

func (o *Operation) Summary(summary string) *Operation {
	o.op.Summary = summary
	return o
}

func (o *Operation) Description(description string) *Operation {
	o.op.Description = description
	return o
}

func (o *Operation) ID(id string) *Operation {
	o.op.OperationID = id
	return o
}

func (o *Operation) Tags(tags ...string) *Operation {
	o.op.Tags = append(o.op.Tags, tags...)
	return o
}

func (o *Operation) PathParam(name, description string) *Operation {
	return o.param(openapi3.NewPathParameter(name), description)
}

func (o *Operation) QueryParam(name, description string) *Operation {
	return o.param(openapi3.NewQueryParameter(name), description)
}

func (o *Operation) param(p *openapi3.Parameter, description string) *Operation {
	p.Description = description
	p.Schema = openapi3.NewStringSchema().NewRef()
	o.op.Parameters = append(o.op.Parameters, &openapi3.ParameterRef{Value: p})
	return o
}

// Body declares a required request body shaped like example, accepted as
// JSON and as an urlencoded form.
func (o *Operation) Body(example any, description string) *Operation {
	schema := o.doc.schemaFor(example)
	o.op.RequestBody = &openapi3.RequestBodyRef{
		Value: openapi3.NewRequestBody().
			WithDescription(description).
			WithRequired(true).
			WithContent(openapi3.Content{
				echo.MIMEApplicationJSON: openapi3.NewMediaType().WithSchemaRef(schema),
				echo.MIMEApplicationForm: openapi3.NewMediaType().WithSchemaRef(schema),
			}),
	}
	return o
}

// Multipart declares a multipart/form-data body. Entries in files are binary
// parts; required lists the mandatory field names.
func (o *Operation) Multipart(description string, fields, files, required []string) *Operation {
	schema := openapi3.NewObjectSchema()
	schema.Properties = make(openapi3.Schemas)
	for _, name := range fields {
		schema.Properties[name] = openapi3.NewStringSchema().NewRef()
	}
	for _, name := range files {
		schema.Properties[name] = openapi3.NewStringSchema().WithFormat("binary").NewRef()
	}
	schema.Required = required

	o.op.RequestBody = &openapi3.RequestBodyRef{
		Value: openapi3.NewRequestBody().
			WithDescription(description).
			WithRequired(len(required) > 0).
			WithContent(openapi3.NewContentWithSchema(schema, []string{echo.MIMEMultipartForm})),
	}
	return o
}

// Response documents a JSON response. A nil example documents a response
// without a body.
func (o *Operation) Response(status int, example any, description string) *Operation {
	resp := openapi3.NewResponse().WithDescription(description)
	if example != nil {
		resp.Content = openapi3.Content{echo.MIMEApplicationJSON: openapi3.NewMediaType().WithSchemaRef(o.doc.schemaFor(example))}
	}
	o.op.Responses.Set(strconv.Itoa(status), &openapi3.ResponseRef{Value: resp})
	return o
}

// HTML documents a rendered page response.
func (o *Operation) HTML(status int, description string) *Operation {
	resp := openapi3.NewResponse().
		WithDescription(description).
		WithContent(openapi3.NewContentWithSchema(openapi3.NewStringSchema(), []string{echo.MIMETextHTML}))
	o.op.Responses.Set(strconv.Itoa(status), &openapi3.ResponseRef{Value: resp})
	return o
}

// Security requires one of the named schemes.
func (o *Operation) Security(schemes ...string) *Operation {
	if o.op.Security == nil {
		o.op.Security = openapi3.NewSecurityRequirements()
	}
	for _, scheme := range schemes {
		o.op.Security.With(openapi3.NewSecurityRequirement().Authenticate(scheme))
	}
	return o
}

func (o *Operation) Build() {
	if o.op.Responses.Len() == 0 {
		o.Response(http.StatusOK, nil, http.StatusText(http.StatusOK))
	}
	o.doc.add(o.method, o.path, o.op)
}
