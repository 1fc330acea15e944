package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/samuelg/go-ari-client/pkg/models"
)

// Wire shapes of the server's self-description documents. The documents are
// swagger-1.1 styled: a root listing, one document per resource with an
// "apis" array, and an events document carrying "models" and "rawModels".

type resourceListing struct {
	BasePath string        `json:"basePath" yaml:"basePath"`
	Apis     []listingItem `json:"apis" yaml:"apis"`
}

type listingItem struct {
	Path        string `json:"path" yaml:"path"`
	Description string `json:"description" yaml:"description"`
}

type resourceDoc struct {
	BasePath     string   `json:"basePath" yaml:"basePath"`
	ResourcePath string   `json:"resourcePath" yaml:"resourcePath"`
	Apis         []apiDoc `json:"apis" yaml:"apis"`
}

type apiDoc struct {
	Path       string         `json:"path" yaml:"path"`
	Operations []operationDoc `json:"operations" yaml:"operations"`
}

type operationDoc struct {
	HTTPMethod    string         `json:"httpMethod" yaml:"httpMethod"`
	Nickname      string         `json:"nickname" yaml:"nickname"`
	Summary       string         `json:"summary" yaml:"summary"`
	ResponseClass string         `json:"responseClass" yaml:"responseClass"`
	Parameters    []parameterDoc `json:"parameters" yaml:"parameters"`
}

type parameterDoc struct {
	Name          string `json:"name" yaml:"name"`
	ParamType     string `json:"paramType" yaml:"paramType"`
	Required      bool   `json:"required" yaml:"required"`
	DataType      string `json:"dataType" yaml:"dataType"`
	AllowMultiple bool   `json:"allowMultiple" yaml:"allowMultiple"`
	Description   string `json:"description" yaml:"description"`
}

type eventsDoc struct {
	Models    map[string]*eventModelDoc `json:"models" yaml:"models"`
	RawModels map[string]*rawModelDoc   `json:"rawModels" yaml:"rawModels"`
}

type eventModelDoc struct {
	ID          string        `json:"id" yaml:"id"`
	Description string        `json:"description" yaml:"description"`
	Properties  orderedFields `json:"properties" yaml:"properties"`
}

type rawModelDoc struct {
	Description string `json:"description" yaml:"description"`
}

// orderedFields decodes an object of field descriptors while preserving the
// document's key order, which drives the router's promotion order.
type orderedFields []*EventField

func (of *orderedFields) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("properties: expected object, got %v", tok)
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("properties: expected string key, got %v", keyTok)
		}
		var prop struct {
			Type        string `json:"type"`
			Description string `json:"description"`
		}
		if err := dec.Decode(&prop); err != nil {
			return fmt.Errorf("properties: field %q: %w", key, err)
		}
		*of = append(*of, &EventField{Name: key, Type: prop.Type, Description: prop.Description})
	}
	_, err = dec.Token()
	return err
}

func (of *orderedFields) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("properties: expected mapping node")
	}
	for i := 0; i+1 < len(value.Content); i += 2 {
		key := value.Content[i].Value
		var prop struct {
			Type        string `yaml:"type"`
			Description string `yaml:"description"`
		}
		if err := value.Content[i+1].Decode(&prop); err != nil {
			return fmt.Errorf("properties: field %q: %w", key, err)
		}
		*of = append(*of, &EventField{Name: key, Type: prop.Type, Description: prop.Description})
	}
	return nil
}

// ParseResource parses a single resource document into a Resource. When base
// is non-nil, the document's basePath host is rewritten to base so operation
// URLs route to the configured server instead of its self-hostname.
func ParseResource(name string, data []byte, base *url.URL) (*Resource, error) {
	var doc resourceDoc
	if err := decodeDocument(data, &doc); err != nil {
		return nil, models.NewSchemaInvalid(fmt.Sprintf("resource document %q is malformed", name), err)
	}
	if len(doc.Apis) == 0 {
		return nil, models.NewSchemaInvalid(fmt.Sprintf("resource document %q has no apis", name), nil)
	}

	prefix := normalizeBasePath(doc.BasePath, base)
	res := &Resource{Name: name, Operations: make(map[string]*Operation)}
	for _, api := range doc.Apis {
		for _, opDoc := range api.Operations {
			if opDoc.Nickname == "" {
				return nil, models.NewSchemaInvalid(
					fmt.Sprintf("resource %q: operation on %q has no nickname", name, api.Path), nil)
			}
			if _, exists := res.Operations[opDoc.Nickname]; exists {
				return nil, models.NewSchemaInvalid(
					fmt.Sprintf("resource %q: duplicate operation %q", name, opDoc.Nickname), nil)
			}
			op := &Operation{
				Name:         opDoc.Nickname,
				Method:       strings.ToUpper(opDoc.HTTPMethod),
				Path:         prefix + api.Path,
				Summary:      opDoc.Summary,
				ResponseType: opDoc.ResponseClass,
			}
			for _, pd := range opDoc.Parameters {
				placement := pd.ParamType
				switch placement {
				case PlacementPath, PlacementQuery, PlacementBody, PlacementForm, PlacementHeader:
				default:
					placement = PlacementQuery
				}
				op.Parameters = append(op.Parameters, &Parameter{
					Name:        pd.Name,
					Placement:   placement,
					Required:    pd.Required,
					DataType:    pd.DataType,
					Multiple:    pd.AllowMultiple,
					Description: pd.Description,
				})
			}
			res.Operations[opDoc.Nickname] = op
		}
	}
	return res, nil
}

// ParseEvents parses the events document into an EventModel. Descriptions
// missing from "models" entries are filled from "rawModels" when present.
func ParseEvents(data []byte) (*EventModel, error) {
	var doc eventsDoc
	if err := decodeDocument(data, &doc); err != nil {
		return nil, models.NewSchemaInvalid("events document is malformed", err)
	}
	if doc.Models == nil {
		return nil, models.NewSchemaInvalid("events document has no models", nil)
	}

	model := &EventModel{Events: make(map[string]*EventDescriptor, len(doc.Models))}
	for name, md := range doc.Models {
		desc := &EventDescriptor{
			Name:        name,
			Description: md.Description,
			Fields:      md.Properties,
		}
		if desc.Description == "" && doc.RawModels != nil {
			if raw, ok := doc.RawModels[name]; ok {
				desc.Description = raw.Description
			}
		}
		model.Events[name] = desc
	}
	return model, nil
}

// FromFile builds a Catalog and EventModel from local documents: one
// resource document per file, with the events model taken from the file
// named "events". Formats are auto-detected (JSON or YAML).
func FromFile(paths ...string) (*Catalog, *EventModel, error) {
	if len(paths) == 0 {
		return nil, nil, models.NewSchemaInvalid("no schema files provided", nil)
	}

	catalog := &Catalog{Resources: make(map[string]*Resource)}
	var events *EventModel
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, models.NewSchemaInvalid(fmt.Sprintf("cannot read schema file %q", path), err)
		}
		name := resourceNameFromPath(path)
		res, err := ParseResource(name, data, nil)
		if err != nil {
			return nil, nil, err
		}
		catalog.Resources[name] = res
		if name == "events" {
			if events, err = ParseEvents(data); err != nil {
				return nil, nil, err
			}
		}
	}
	if err := catalog.Validate(); err != nil {
		return nil, nil, models.NewSchemaInvalid("catalog validation failed", err)
	}
	if events == nil {
		events = &EventModel{Events: map[string]*EventDescriptor{}}
	}
	return catalog, events, nil
}

// decodeDocument decodes JSON or YAML, auto-detected by the leading byte.
func decodeDocument(data []byte, out any) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return fmt.Errorf("document is empty")
	}
	if trimmed[0] == '{' {
		return json.Unmarshal(trimmed, out)
	}
	return yaml.Unmarshal(trimmed, out)
}

// normalizeBasePath rewrites the document's self-referencing base URL so it
// targets the configured server.
func normalizeBasePath(basePath string, base *url.URL) string {
	if base == nil {
		return strings.TrimSuffix(basePath, "/")
	}
	if basePath == "" {
		return strings.TrimSuffix(base.String(), "/") + "/ari"
	}
	parsed, err := url.Parse(basePath)
	if err != nil || parsed.Host == "" {
		// Relative base path, anchor it to the configured server.
		return strings.TrimSuffix(base.String(), "/") + "/" + strings.Trim(basePath, "/")
	}
	parsed.Scheme = base.Scheme
	parsed.Host = base.Host
	return strings.TrimSuffix(parsed.String(), "/")
}

func resourceNameFromPath(path string) string {
	name := path
	if idx := strings.LastIndexByte(name, '/'); idx >= 0 {
		name = name[idx+1:]
	}
	if idx := strings.IndexByte(name, '.'); idx >= 0 {
		name = name[:idx]
	}
	return name
}
