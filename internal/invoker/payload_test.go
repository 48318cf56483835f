package invoker

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opendata-gateway/go/internal/models"
)

func decodeBody(t *testing.T, raw string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	return v
}

func personSchema() *models.SchemaNode {
	return &models.SchemaNode{
		Type: models.SchemaObject,
		Children: []models.SchemaNode{
			{Type: models.SchemaString, Key: "name"},
			{Type: models.SchemaNumber, Key: "age"},
		},
	}
}

func TestValidateRequestBodySchema(t *testing.T) {
	version := &models.ApiVersion{HasBody: true, BodySchema: personSchema()}

	err := ValidateRequest(version, &Payload{
		Body: decodeBody(t, `{"name":"ada","age":12}`),
	})
	assert.Nil(t, err)

	err = ValidateRequest(version, &Payload{
		Body: decodeBody(t, `{"name":"ada","age":"12"}`),
	})
	require.NotNil(t, err)
	assert.Contains(t, err.Message, "body.age")
	assert.Contains(t, err.Message, "expected number")

	err = ValidateRequest(version, &Payload{
		Body: decodeBody(t, `{"name":"ada"}`),
	})
	require.NotNil(t, err)
	assert.Contains(t, err.Message, `missing required field "age"`)
}

func TestValidateRequestNestedAndArray(t *testing.T) {
	version := &models.ApiVersion{
		HasBody: true,
		BodySchema: &models.SchemaNode{
			Type: models.SchemaObject,
			Children: []models.SchemaNode{
				{
					Type:  models.SchemaArray,
					Key:   "tags",
					Items: &models.SchemaNode{Type: models.SchemaString},
				},
				{
					Type: models.SchemaObject,
					Key:  "owner",
					Children: []models.SchemaNode{
						{Type: models.SchemaBoolean, Key: "active"},
					},
				},
			},
		},
	}

	err := ValidateRequest(version, &Payload{
		Body: decodeBody(t, `{"tags":["a","b"],"owner":{"active":true}}`),
	})
	assert.Nil(t, err)

	err = ValidateRequest(version, &Payload{
		Body: decodeBody(t, `{"tags":["a",3],"owner":{"active":true}}`),
	})
	require.NotNil(t, err)
	assert.Contains(t, err.Message, "body.tags[1]")

	err = ValidateRequest(version, &Payload{
		Body: decodeBody(t, `{"tags":[],"owner":{"active":"yes"}}`),
	})
	require.NotNil(t, err)
	assert.Contains(t, err.Message, "body.owner.active")
}

func TestValidateRequestParams(t *testing.T) {
	version := &models.ApiVersion{
		HeaderParams: []string{"x-api-client"},
		QueryParams:  []string{"region"},
		PathParams:   []string{"id"},
	}

	err := ValidateRequest(version, &Payload{
		Headers:    map[string]string{"x-api-client": "app"},
		Query:      map[string]string{"region": "eu"},
		PathParams: map[string]string{"id": "7"},
	})
	assert.Nil(t, err)

	err = ValidateRequest(version, &Payload{
		Headers:    map[string]string{"x-api-client": "app"},
		Query:      map[string]string{},
		PathParams: map[string]string{"id": "7"},
	})
	require.NotNil(t, err)
	assert.Contains(t, err.Message, `query parameter "region"`)

	// Empty values count as missing.
	err = ValidateRequest(version, &Payload{
		Headers:    map[string]string{"x-api-client": ""},
		Query:      map[string]string{"region": "eu"},
		PathParams: map[string]string{"id": "7"},
	})
	require.NotNil(t, err)
	assert.Contains(t, err.Message, `header parameter "x-api-client"`)
}

func TestValidateRequestNoSchemaSkipsBody(t *testing.T) {
	version := &models.ApiVersion{HasBody: true}
	err := ValidateRequest(version, &Payload{Body: decodeBody(t, `{"anything":1}`)})
	assert.Nil(t, err)
}
