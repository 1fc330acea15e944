package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/samuelg/go-ari-client/pkg/models"
	"github.com/samuelg/go-ari-client/pkg/schema"
)

// Body parameters with a wrapping rule: a bare map value is nested under a
// top-level key of the same name, exactly once.
var wrappedBodyParams = map[string]bool{
	"variables": true,
	"fields":    true,
}

// BuildPlan binds a caller-supplied option map to an operation descriptor,
// producing a request plan. The option map is cloned defensively and never
// mutated. Options that do not correspond to a declared parameter are
// dropped silently.
func BuildPlan(op *schema.Operation, opts map[string]any) (*models.RequestPlan, error) {
	clone := make(map[string]any, len(opts))
	for k, v := range opts {
		clone[k] = v
	}

	plan := &models.RequestPlan{
		Method: op.Method,
		Header: make(http.Header),
	}
	path := op.Path
	query := url.Values{}
	form := url.Values{}

	type bodyEntry struct {
		name  string
		value any
	}
	var body []bodyEntry

	for _, p := range op.Parameters {
		value, present := clone[p.Name]
		if p.Required && !present {
			return nil, models.NewMissingParameter(p.Name)
		}
		if !present {
			continue
		}
		delete(clone, p.Name)

		switch p.Placement {
		case schema.PlacementPath:
			path = strings.ReplaceAll(path, "{"+p.Name+"}", url.PathEscape(formatValue(value)))
		case schema.PlacementBody:
			body = append(body, bodyEntry{name: p.Name, value: value})
		case schema.PlacementForm:
			addValues(form, p.Name, value)
		case schema.PlacementHeader:
			plan.Header.Set(p.Name, formatValue(value))
		default:
			addValues(query, p.Name, value)
		}
	}

	switch len(body) {
	case 0:
	case 1:
		encoded, err := json.Marshal(wrapBodyValue(body[0].name, body[0].value))
		if err != nil {
			return nil, fmt.Errorf("encoding body parameter %q: %w", body[0].name, err)
		}
		plan.Body = encoded
	default:
		merged := make(map[string]any, len(body))
		for _, e := range body {
			merged[e.name] = e.value
		}
		encoded, err := json.Marshal(merged)
		if err != nil {
			return nil, fmt.Errorf("encoding body parameters: %w", err)
		}
		plan.Body = encoded
	}
	if plan.Body != nil {
		plan.Header.Set("Content-Type", "application/json")
	}

	if len(query) > 0 {
		plan.Query = query
	}
	if len(form) > 0 {
		plan.Form = form
	}
	plan.URL = path
	return plan, nil
}

// wrapBodyValue nests a map under its parameter name unless the value is
// already wrapped. Lists and scalars serialize as-is.
func wrapBodyValue(name string, value any) any {
	if !wrappedBodyParams[name] {
		return value
	}
	switch m := value.(type) {
	case map[string]any:
		if len(m) == 1 {
			if _, already := m[name]; already {
				return value
			}
		}
	case map[string]string:
		if len(m) == 1 {
			if _, already := m[name]; already {
				return value
			}
		}
	default:
		return value
	}
	return map[string]any{name: value}
}

// addValues appends a value to url.Values; list-typed values become
// repeated keys.
func addValues(vals url.Values, name string, value any) {
	switch list := value.(type) {
	case []string:
		for _, item := range list {
			vals.Add(name, item)
		}
	case []any:
		for _, item := range list {
			vals.Add(name, formatValue(item))
		}
	default:
		vals.Add(name, formatValue(value))
	}
}

func formatValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
