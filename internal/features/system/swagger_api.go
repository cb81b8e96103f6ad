package system

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"go-approval/internal/common/api"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
	"github.com/swaggo/swag"
)

// routeDoc is the swagger 2.0 document served at /swagger/doc.json. It is
// built from the routes mounted on the app at read time.
type routeDoc struct {
	mu  sync.RWMutex
	app *fiber.App
}

var apiDoc = &routeDoc{}

func init() {
	swag.Register(swag.Name, apiDoc)
}

func (d *routeDoc) mount(app *fiber.App) {
	d.mu.Lock()
	d.app = app
	d.mu.Unlock()
}

func (d *routeDoc) ReadDoc() string {
	d.mu.RLock()
	app := d.app
	d.mu.RUnlock()

	paths := map[string]map[string]interface{}{}
	if app != nil {
		for _, r := range app.GetRoutes(true) {
			if r.Method == fiber.MethodHead || strings.HasPrefix(r.Path, "/swagger") {
				continue
			}
			p := swaggerPath(r.Path)
			if paths[p] == nil {
				paths[p] = map[string]interface{}{}
			}
			paths[p][strings.ToLower(r.Method)] = operation(p, r.Params)
		}
	}

	out, err := json.Marshal(map[string]interface{}{
		"swagger":  "2.0",
		"basePath": "/",
		"info": map[string]string{
			"title":       "Approval Workflow API",
			"version":     "1.0",
			"description": "Multi-step approval workflows with delegation and escalation.",
		},
		"securityDefinitions": map[string]interface{}{
			"BearerAuth": map[string]string{"type": "apiKey", "in": "header", "name": "Authorization"},
		},
		"paths": paths,
	})
	if err != nil {
		return "{}"
	}
	return string(out)
}

// swaggerPath rewrites fiber params (/:id) into swagger templates (/{id}).
func swaggerPath(path string) string {
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if strings.HasPrefix(p, ":") {
			parts[i] = "{" + strings.TrimSuffix(strings.TrimPrefix(p, ":"), "?") + "}"
		}
	}
	return strings.Join(parts, "/")
}

func operation(path string, params []string) map[string]interface{} {
	op := map[string]interface{}{
		"tags":      []string{tagOf(path)},
		"responses": map[string]interface{}{"200": map[string]string{"description": "OK"}},
	}
	if strings.HasPrefix(path, "/api/") {
		op["security"] = []map[string][]string{{"BearerAuth": {}}}
	}
	if len(params) > 0 {
		sorted := append([]string(nil), params...)
		sort.Strings(sorted)
		list := make([]map[string]interface{}, 0, len(sorted))
		for _, name := range sorted {
			list = append(list, map[string]interface{}{"name": name, "in": "path", "required": true, "type": "string"})
		}
		op["parameters"] = list
	}
	return op
}

// tagOf groups /api/admin/approvals under admin and /api/approvals under approvals.
func tagOf(path string) string {
	segs := strings.Split(strings.TrimPrefix(path, "/api/"), "/")
	if segs[0] == "" {
		return "system"
	}
	return segs[0]
}

type SwaggerApi struct{}

func NewSwaggerApi() api.Route {
	return &SwaggerApi{}
}

func (h *SwaggerApi) Setup(app *fiber.App) {
	apiDoc.mount(app)
	app.Get("/swagger/*", swagger.HandlerDefault)
}
