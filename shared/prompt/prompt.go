// Package prompt renders the instructions sent to the model. Both builders
// are pure: the same input always yields the same string.
package prompt

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/forge-ai/testgen/shared/apispec"
)

const (
	notAvailable = "N/A"
	noParameters = "None"
	noSchemas    = "No schemas defined"
)

// FromDescriptor asks for JUnit 5 / Spring Boot tests covering every
// endpoint and schema of d.
func FromDescriptor(d apispec.Descriptor) string {
	var sb strings.Builder

	sb.WriteString("You are an expert QA engineer specializing in API testing. ")
	sb.WriteString("Generate comprehensive JUnit 5 test cases for this REST API.\n\n")

	sb.WriteString("API Information:\n")
	fmt.Fprintf(&sb, "- Title: %s\n", orNA(d.Title))
	fmt.Fprintf(&sb, "- Version: %s\n", orNA(d.Version))
	fmt.Fprintf(&sb, "- Description: %s\n", orNA(d.Description))
	fmt.Fprintf(&sb, "- Base URL: %s\n\n", orNA(d.BaseURL))

	sb.WriteString("Endpoints:")
	for _, ep := range d.Endpoints {
		names := make([]string, 0, len(ep.Parameters))
		for _, p := range ep.Parameters {
			names = append(names, p.Name)
		}
		params := strings.Join(names, ", ")
		if params == "" {
			params = noParameters
		}
		fmt.Fprintf(&sb, "\n- %s %s\n", ep.Method, ep.Path)
		fmt.Fprintf(&sb, "  Summary: %s\n", orNA(ep.Summary))
		fmt.Fprintf(&sb, "  Parameters: %s\n", params)
		fmt.Fprintf(&sb, "  Responses: %s", orNA(strings.Join(ep.Responses, ", ")))
	}
	sb.WriteString("\n\n")

	sb.WriteString("Data Models:\n")
	if len(d.Schemas) == 0 {
		sb.WriteString(noSchemas + "\n")
	}
	for _, s := range d.Schemas {
		fields := make([]string, 0, len(s.Properties))
		for _, p := range s.Properties {
			fields = append(fields, p.Name+": "+p.Type)
		}
		fmt.Fprintf(&sb, "- %s: %s\n", s.Name, strings.Join(fields, ", "))
	}

	sb.WriteString(`
Requirements:
1. Generate complete JUnit 5 test classes with proper annotations
2. Include positive test cases for valid inputs
3. Include negative test cases for invalid data and error conditions
4. Add boundary value testing for numeric fields
5. Test edge cases (empty strings, null values, special characters)
6. Generate realistic test data matching API schemas
7. Use proper assertions for status codes, headers, and response body
8. Use RestTemplate or TestRestTemplate for API calls
9. Include setup and teardown methods
10. Follow Spring Boot testing best practices

Generate complete, runnable Java test classes:

package com.example.api.test;

import org.junit.jupiter.api.Test;
import org.junit.jupiter.api.BeforeEach;
import org.springframework.boot.test.context.SpringBootTest;
import org.springframework.test.web.reactive.server.WebTestClient;
import static org.junit.jupiter.api.Assertions.*;

@SpringBootTest(webEnvironment = SpringBootTest.WebEnvironment.RANDOM_PORT)
`)
	fmt.Fprintf(&sb, "public class %sApiTest {\n\n", ClassName(d.Title))
	sb.WriteString("Generate the complete test implementation now:")

	return sb.String()
}

// FromSource asks for RestAssured tests for pasted controller code. The code
// is embedded verbatim.
func FromSource(code string) string {
	var sb strings.Builder

	sb.WriteString("You are an expert QA automation engineer specializing in API testing. ")
	sb.WriteString("Analyze the following API code and generate comprehensive JUnit 5 test cases using RestAssured framework.\n\n")
	sb.WriteString("API Code to Analyze:\n")
	sb.WriteString(code)
	sb.WriteString(`

Generate comprehensive test cases that include:

1. Functional Tests: Happy path scenarios for each endpoint
2. Error Handling Tests: Test 400, 401, 404, 500 error responses
3. Boundary Value Tests: Test edge cases and input limits
4. Input Validation Tests: Test invalid data formats and missing fields
5. Authentication Tests: Test secured endpoints
6. Performance Tests: Basic response time validation

Requirements:
- Use JUnit 5 annotations (@Test, @DisplayName, @BeforeEach)
- Use RestAssured for API calls (given().when().then() pattern)
- Include proper assertions and status code validations
- Add realistic test data and scenarios
- Follow naming convention: test[MethodName][Scenario][ExpectedResult]
- Include setup methods for base configuration

Format as a complete, runnable JUnit 5 test class with all necessary imports.

Generate the complete test class:`)

	return sb.String()
}

// ClassName strips everything but letters and digits from title so it can
// prefix a Java class name. An empty result becomes "Generated".
func ClassName(title string) string {
	var sb strings.Builder
	for _, r := range title {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		}
	}
	name := sb.String()
	if name == "" {
		return "Generated"
	}
	if unicode.IsDigit([]rune(name)[0]) {
		return "Api" + name
	}
	return name
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return notAvailable
	}
	return s
}
