package openapi

import (
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
)

const componentPrefix = "#/components/schemas/"

var timeType = reflect.TypeOf(time.Time{})

// schemaRegistry turns Go values into schemas. Named structs become
// components and are referenced by $ref; a second type with the same name
// gets a numeric suffix.
type schemaRegistry struct {
	components openapi3.Schemas
	byType     map[reflect.Type]string
	taken      map[string]bool
}

func newSchemaRegistry(components openapi3.Schemas) *schemaRegistry {
	return &schemaRegistry{
		components: components,
		byType:     make(map[reflect.Type]string),
		taken:      make(map[string]bool),
	}
}

func (r *schemaRegistry) ref(example any) *openapi3.SchemaRef {
	if example == nil {
		return openapi3.NewObjectSchema().NewRef()
	}
	return r.forType(reflect.TypeOf(example))
}

func (r *schemaRegistry) forType(t reflect.Type) *openapi3.SchemaRef {
	if t.Kind() == reflect.Pointer {
		inner := r.forType(t.Elem())
		if inner.Ref != "" {
			return &openapi3.SchemaRef{Value: &openapi3.Schema{AllOf: openapi3.SchemaRefs{inner}, Nullable: true}}
		}
		inner.Value.Nullable = true
		return inner
	}

	switch t.Kind() {
	case reflect.String:
		return openapi3.NewStringSchema().NewRef()
	case reflect.Bool:
		return openapi3.NewBoolSchema().NewRef()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return openapi3.NewIntegerSchema().NewRef()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return openapi3.NewIntegerSchema().WithMin(0).NewRef()
	case reflect.Float32, reflect.Float64:
		return openapi3.NewFloat64Schema().NewRef()
	case reflect.Slice, reflect.Array:
		schema := openapi3.NewArraySchema()
		schema.Items = r.forType(t.Elem())
		return schema.NewRef()
	case reflect.Map:
		schema := openapi3.NewObjectSchema()
		schema.AdditionalProperties = openapi3.AdditionalProperties{Schema: r.forType(t.Elem())}
		return schema.NewRef()
	case reflect.Struct:
		return r.forStruct(t)
	default:
		return openapi3.NewObjectSchema().NewRef()
	}
}

func (r *schemaRegistry) forStruct(t reflect.Type) *openapi3.SchemaRef {
	if t == timeType {
		return openapi3.NewDateTimeSchema().NewRef()
	}
	if t.Name() == "" {
		return r.build(t).NewRef()
	}

	if name, ok := r.byType[t]; ok {
		return openapi3.NewSchemaRef(componentPrefix+name, nil)
	}

	name := t.Name()
	for i := 2; r.taken[name]; i++ {
		name = t.Name() + strconv.Itoa(i)
	}
	r.byType[t] = name
	r.taken[name] = true

	// registered before building so self references resolve to the $ref
	r.components[name] = r.build(t).NewRef()
	return openapi3.NewSchemaRef(componentPrefix+name, nil)
}

func (r *schemaRegistry) build(t reflect.Type) *openapi3.Schema {
	schema := openapi3.NewObjectSchema()
	schema.Properties = make(openapi3.Schemas)

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		tag := field.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")

		if field.Anonymous && name == "" {
			r.flatten(schema, field.Type)
			continue
		}
		if name == "" {
			name = field.Name
		}

		prop := r.forType(field.Type)
		if doc := field.Tag.Get("doc"); doc != "" {
			if prop.Ref != "" {
				prop = &openapi3.SchemaRef{Value: &openapi3.Schema{AllOf: openapi3.SchemaRefs{prop}, Description: doc}}
			} else {
				prop.Value.Description = doc
			}
		}
		schema.Properties[name] = prop

		if !strings.Contains(opts, "omitempty") {
			schema.Required = append(schema.Required, name)
		}
	}
	return schema
}

// flatten copies the properties of an embedded struct, matching how
// encoding/json promotes its fields.
func (r *schemaRegistry) flatten(schema *openapi3.Schema, t reflect.Type) {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return
	}

	embedded := r.build(t)
	for name, prop := range embedded.Properties {
		schema.Properties[name] = prop
	}
	schema.Required = append(schema.Required, embedded.Required...)
}
