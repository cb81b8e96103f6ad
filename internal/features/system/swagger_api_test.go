package system

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swaggo/swag"
)

func TestSwaggerPath(t *testing.T) {
	assert.Equal(t, "/api/approvals/{id}/history", swaggerPath("/api/approvals/:id/history"))
	assert.Equal(t, "/health", swaggerPath("/health"))
	assert.Equal(t, "approvals", tagOf("/api/approvals/{id}"))
	assert.Equal(t, "admin", tagOf("/api/admin/approvals/parked"))
	assert.Equal(t, "system", tagOf("/health"))
}

func TestSwaggerDocListsMountedRoutes(t *testing.T) {
	app := fiber.New()
	NewSwaggerApi().Setup(app)
	ok := func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) }
	app.Get("/health", ok)
	app.Post("/api/approvals/:id/decision", ok)

	doc, err := swag.ReadDoc()
	require.NoError(t, err)

	var parsed struct {
		Swagger string                                       `json:"swagger"`
		Paths   map[string]map[string]map[string]interface{} `json:"paths"`
	}
	require.NoError(t, json.Unmarshal([]byte(doc), &parsed))
	assert.Equal(t, "2.0", parsed.Swagger)
	require.Contains(t, parsed.Paths, "/api/approvals/{id}/decision")
	decision := parsed.Paths["/api/approvals/{id}/decision"]["post"]
	assert.Equal(t, []interface{}{"approvals"}, decision["tags"])
	assert.Len(t, decision["parameters"], 1)
	assert.NotContains(t, parsed.Paths["/health"], "head")
	assert.NotContains(t, parsed.Paths, "/swagger/*")

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "/api/approvals/{id}/decision")
}
