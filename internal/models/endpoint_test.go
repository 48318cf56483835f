package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionNumber(t *testing.T) {
	endpoint := &ApiEndpoint{
		Name: "weather",
		Versions: []ApiVersion{
			{Version: 1, URL: "https://backend.example/v1"},
			{Version: 3, URL: "https://backend.example/v3"},
		},
	}

	v := endpoint.VersionNumber(3)
	require.NotNil(t, v)
	assert.Equal(t, "https://backend.example/v3", v.URL)

	assert.Nil(t, endpoint.VersionNumber(2))
	assert.Nil(t, endpoint.VersionNumber(0))
}
