package invoker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildURL(t *testing.T) {
	url := BuildURL("https://backend.example/users/{id}/orders",
		map[string]string{"id": "7"},
		map[string]string{"limit": "10"})
	assert.Equal(t, "https://backend.example/users/7/orders?limit=10", url)
}

func TestBuildURLExistingQuery(t *testing.T) {
	url := BuildURL("https://backend.example/search?source=gw",
		nil,
		map[string]string{"q": "rain"})
	assert.Equal(t, "https://backend.example/search?source=gw&q=rain", url)
}

func TestBuildURLEscapesPathValues(t *testing.T) {
	url := BuildURL("https://backend.example/files/{name}",
		map[string]string{"name": "a b/c"},
		nil)
	assert.Equal(t, "https://backend.example/files/a%20b%2Fc", url)
}

func TestRenderSOAP(t *testing.T) {
	template := `<soap:Envelope><city>{{city}}</city><days>{{days}}</days></soap:Envelope>`
	body := map[string]any{"city": "Lisbon", "days": float64(3)}

	rendered := RenderSOAP(template, body)
	assert.Equal(t, `<soap:Envelope><city>Lisbon</city><days>3</days></soap:Envelope>`, rendered)
}

func TestRenderSOAPUnescapesEntities(t *testing.T) {
	// Templates arrive entity-escaped from storage.
	template := `&lt;city&gt;{{ city }}&lt;/city&gt;`
	rendered := RenderSOAP(template, map[string]any{"city": "Porto"})
	assert.Equal(t, `<city>Porto</city>`, rendered)
}

func TestRenderSOAPDottedPath(t *testing.T) {
	template := `<lat>{{coords.lat}}</lat><lon>{{coords.lon}}</lon>`
	body := map[string]any{
		"coords": map[string]any{"lat": 38.72, "lon": float64(-9)},
	}
	rendered := RenderSOAP(template, body)
	assert.Equal(t, `<lat>38.72</lat><lon>-9</lon>`, rendered)
}

func TestRenderSOAPMissingKeyEmpty(t *testing.T) {
	rendered := RenderSOAP(`<a>{{missing}}</a>`, map[string]any{})
	assert.Equal(t, `<a></a>`, rendered)
}
