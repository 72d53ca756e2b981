package prompt

import (
	"strings"
	"testing"

	"github.com/forge-ai/testgen/shared/apispec"
	"github.com/stretchr/testify/assert"
)

func petStore() apispec.Descriptor {
	return apispec.Descriptor{
		Title:   "Pet Store",
		Version: "1.0",
		Endpoints: []apispec.Endpoint{
			{Method: "GET", Path: "/pets", Responses: []string{"200"}},
		},
	}
}

func TestFromDescriptor_PetStore(t *testing.T) {
	p := FromDescriptor(petStore())

	assert.Contains(t, p, "- Title: Pet Store\n")
	assert.Contains(t, p, "- Version: 1.0\n")
	assert.Contains(t, p, "- Description: N/A\n")
	assert.Contains(t, p, "- Base URL: N/A\n")
	assert.Contains(t, p, "GET /pets")
	assert.Contains(t, p, "  Summary: N/A\n")
	assert.Contains(t, p, "  Parameters: None\n")
	assert.Contains(t, p, "  Responses: 200")
	assert.Contains(t, p, "Data Models:\nNo schemas defined\n")
	assert.Contains(t, p, "public class PetStoreApiTest {")
	assert.True(t, strings.HasSuffix(p, "Generate the complete test implementation now:"))
}

func TestFromDescriptor_Deterministic(t *testing.T) {
	d := apispec.Descriptor{
		Title:       "Orders",
		Version:     "2",
		Description: "Order service",
		BaseURL:     "https://orders.local",
		Endpoints: []apispec.Endpoint{
			{Method: "POST", Path: "/orders", Summary: "Create", Parameters: []apispec.Parameter{{Name: "body"}}, Responses: []string{"201", "400"}},
			{Method: "GET", Path: "/orders/{id}", Parameters: []apispec.Parameter{{Name: "id"}, {Name: "expand"}}},
		},
		Schemas: []apispec.Schema{
			{Name: "Order", Properties: []apispec.Property{{Name: "id", Type: "string"}, {Name: "total", Type: "number"}}},
			{Name: "Empty", Properties: []apispec.Property{}},
		},
	}

	first := FromDescriptor(d)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, FromDescriptor(d))
	}
}

func TestFromDescriptor_Rendering(t *testing.T) {
	d := apispec.Descriptor{
		Title: "Orders",
		Endpoints: []apispec.Endpoint{
			{Method: "POST", Path: "/orders", Summary: "Create", Parameters: []apispec.Parameter{{Name: "body"}}, Responses: []string{"201", "400"}},
			{Method: "GET", Path: "/orders/{id}", Parameters: []apispec.Parameter{{Name: "id"}, {Name: "expand"}}},
		},
		Schemas: []apispec.Schema{
			{Name: "Order", Properties: []apispec.Property{{Name: "id", Type: "string"}, {Name: "total", Type: "number"}}},
		},
	}
	p := FromDescriptor(d)

	assert.Contains(t, p, "Endpoints:\n- POST /orders\n  Summary: Create\n  Parameters: body\n  Responses: 201, 400\n- GET /orders/{id}\n  Summary: N/A\n  Parameters: id, expand\n  Responses: N/A\n\n")
	assert.Contains(t, p, "Data Models:\n- Order: id: string, total: number\n")
	assert.NotContains(t, p, noSchemas)
	assert.Less(t, strings.Index(p, "POST /orders"), strings.Index(p, "GET /orders/{id}"))
}

func TestFromDescriptor_RequirementsBlock(t *testing.T) {
	p := FromDescriptor(petStore())
	for _, want := range []string{
		"1. Generate complete JUnit 5 test classes with proper annotations",
		"4. Add boundary value testing for numeric fields",
		"9. Include setup and teardown methods",
		"10. Follow Spring Boot testing best practices",
		"@SpringBootTest(webEnvironment = SpringBootTest.WebEnvironment.RANDOM_PORT)",
	} {
		assert.Contains(t, p, want)
	}
}

func TestFromSource(t *testing.T) {
	code := "@RestController\npublic class PetController {\n  @GetMapping(\"/pets/{id}\")\n  Pet get(@PathVariable Long id) { return null; }\n}"
	p := FromSource(code)

	assert.Contains(t, p, "API Code to Analyze:\n"+code+"\n\n")
	assert.Contains(t, p, "1. Functional Tests")
	assert.Contains(t, p, "6. Performance Tests")
	assert.Contains(t, p, "test[MethodName][Scenario][ExpectedResult]")
	assert.Equal(t, p, FromSource(code))
}

func TestClassName(t *testing.T) {
	cases := map[string]string{
		"Pet Store":           "PetStore",
		"  Orders API v2 ":    "OrdersAPIv2",
		"user-service (beta)": "userservicebeta",
		"":                    "Generated",
		"!!!":                 "Generated",
		"3D Printing":         "Api3DPrinting",
	}
	for in, want := range cases {
		assert.Equal(t, want, ClassName(in), in)
	}
}
