package transport

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samuelg/go-ari-client/pkg/models"
	"github.com/samuelg/go-ari-client/pkg/schema"
)

func originateOp() *schema.Operation {
	return &schema.Operation{
		Name:         "originate",
		Method:       "POST",
		Path:         "http://pbx:8088/ari/channels",
		ResponseType: "Channel",
		Parameters: []*schema.Parameter{
			{Name: "endpoint", Placement: schema.PlacementQuery, Required: true, DataType: "string"},
			{Name: "app", Placement: schema.PlacementQuery, DataType: "string"},
			{Name: "variables", Placement: schema.PlacementBody, DataType: "containers"},
		},
	}
}

func getOp() *schema.Operation {
	return &schema.Operation{
		Name:   "get",
		Method: "GET",
		Path:   "http://pbx:8088/ari/channels/{channelId}",
		Parameters: []*schema.Parameter{
			{Name: "channelId", Placement: schema.PlacementPath, Required: true, DataType: "string"},
		},
	}
}

func TestBuildPlanSubstitutesPathParameters(t *testing.T) {
	plan, err := BuildPlan(getOp(), map[string]any{"channelId": "abc/123"})
	require.NoError(t, err)
	assert.Equal(t, "http://pbx:8088/ari/channels/abc%2F123", plan.URL)
	assert.Nil(t, plan.Query)
	assert.Nil(t, plan.Body)
}

func TestBuildPlanMissingRequiredParameter(t *testing.T) {
	_, err := BuildPlan(getOp(), nil)
	require.Error(t, err)
	assert.True(t, models.IsMissingParameter(err))
	assert.Contains(t, err.Error(), "channelId")
}

func TestBuildPlanDoesNotMutateOpts(t *testing.T) {
	opts := map[string]any{
		"endpoint":  "PJSIP/softphone",
		"app":       "unittests",
		"variables": map[string]any{"CALLERID(name)": "Alice"},
		"bogus":     "dropped",
	}
	snapshot := map[string]any{
		"endpoint":  "PJSIP/softphone",
		"app":       "unittests",
		"variables": map[string]any{"CALLERID(name)": "Alice"},
		"bogus":     "dropped",
	}

	_, err := BuildPlan(originateOp(), opts)
	require.NoError(t, err)
	assert.True(t, reflect.DeepEqual(snapshot, opts), "option map must not be mutated")
}

func TestBuildPlanDropsBogusParameters(t *testing.T) {
	plan, err := BuildPlan(originateOp(), map[string]any{
		"endpoint":    "PJSIP/softphone",
		"nonexistent": "value",
	})
	require.NoError(t, err)
	assert.Equal(t, "PJSIP/softphone", plan.Query.Get("endpoint"))
	assert.Empty(t, plan.Query.Get("nonexistent"))
}

func TestBuildPlanWrapsVariables(t *testing.T) {
	plan, err := BuildPlan(originateOp(), map[string]any{
		"endpoint":  "PJSIP/softphone",
		"app":       "unittests",
		"variables": map[string]any{"CALLERID(name)": "Alice"},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"variables":{"CALLERID(name)":"Alice"}}`, string(plan.Body))
	assert.Equal(t, "application/json", plan.Header.Get("Content-Type"))
}

func TestBuildPlanWrapsVariablesExactlyOnce(t *testing.T) {
	opts := map[string]any{
		"endpoint":  "PJSIP/softphone",
		"variables": map[string]any{"variables": map[string]any{"CALLERID(name)": "Alice"}},
	}
	for i := 0; i < 2; i++ {
		plan, err := BuildPlan(originateOp(), opts)
		require.NoError(t, err)
		assert.JSONEq(t, `{"variables":{"CALLERID(name)":"Alice"}}`, string(plan.Body))
	}
}

func TestBuildPlanListBodySerializesAsArray(t *testing.T) {
	op := &schema.Operation{
		Name:   "update",
		Method: "PUT",
		Path:   "http://pbx:8088/ari/things",
		Parameters: []*schema.Parameter{
			{Name: "fields", Placement: schema.PlacementBody, DataType: "List[string]"},
		},
	}
	plan, err := BuildPlan(op, map[string]any{"fields": []any{"a", "b"}})
	require.NoError(t, err)
	assert.JSONEq(t, `["a","b"]`, string(plan.Body))
}

func TestBuildPlanMergesMultipleBodyParameters(t *testing.T) {
	op := &schema.Operation{
		Name:   "create",
		Method: "POST",
		Path:   "http://pbx:8088/ari/things",
		Parameters: []*schema.Parameter{
			{Name: "variables", Placement: schema.PlacementBody},
			{Name: "label", Placement: schema.PlacementBody},
		},
	}
	plan, err := BuildPlan(op, map[string]any{
		"variables": map[string]any{"k": "v"},
		"label":     "test",
	})
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(plan.Body, &body))
	assert.Equal(t, map[string]any{"k": "v"}, body["variables"])
	assert.Equal(t, "test", body["label"])
}

func TestBuildPlanRepeatsListQueryKeys(t *testing.T) {
	op := &schema.Operation{
		Name:   "eventWebsocket",
		Method: "GET",
		Path:   "http://pbx:8088/ari/events",
		Parameters: []*schema.Parameter{
			{Name: "app", Placement: schema.PlacementQuery, Required: true, Multiple: true},
		},
	}
	plan, err := BuildPlan(op, map[string]any{"app": []string{"one", "two"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, plan.Query["app"])
}

func TestBuildPlanFormPlacement(t *testing.T) {
	op := &schema.Operation{
		Name:   "sendDtmf",
		Method: "POST",
		Path:   "http://pbx:8088/ari/channels/{channelId}/dtmf",
		Parameters: []*schema.Parameter{
			{Name: "channelId", Placement: schema.PlacementPath, Required: true},
			{Name: "dtmf", Placement: schema.PlacementForm},
		},
	}
	plan, err := BuildPlan(op, map[string]any{"channelId": "c1", "dtmf": "1234"})
	require.NoError(t, err)
	assert.Equal(t, "1234", plan.Form.Get("dtmf"))
	assert.Nil(t, plan.Body)
}

func TestBuildPlanUnknownPlacementTreatedAsQuery(t *testing.T) {
	// The parser normalizes unknown placements, but a hand-built catalog
	// may carry them; the binder routes them to the query string.
	op := &schema.Operation{
		Name:   "probe",
		Method: "GET",
		Path:   "http://pbx:8088/ari/things",
		Parameters: []*schema.Parameter{
			{Name: "odd", Placement: "matrix"},
		},
	}
	plan, err := BuildPlan(op, map[string]any{"odd": 7})
	require.NoError(t, err)
	assert.Equal(t, "7", plan.Query.Get("odd"))
}
