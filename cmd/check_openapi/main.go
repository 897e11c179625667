// Command check_openapi validates the API description in
// services/api/openapi.yaml: the shared error schema, operation ids, path
// parameters and error responses on authenticated operations.
package main

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const errorResponseRef = "#/components/schemas/ErrorResponse"

type openAPIDoc struct {
	Components struct {
		Schemas   map[string]schema   `yaml:"schemas"`
		Responses map[string]response `yaml:"responses"`
	} `yaml:"components"`
	Paths map[string]map[string]yaml.Node `yaml:"paths"`
}

type schema struct {
	Type       string            `yaml:"type"`
	Ref        string            `yaml:"$ref"`
	Properties map[string]schema `yaml:"properties"`
	Required   []string          `yaml:"required"`
	Items      *schema           `yaml:"items"`
}

type response struct {
	Ref     string `yaml:"$ref"`
	Content map[string]struct {
		Schema schema `yaml:"schema"`
	} `yaml:"content"`
}

type parameter struct {
	Name     string `yaml:"name"`
	In       string `yaml:"in"`
	Required bool   `yaml:"required"`
}

type operation struct {
	OperationID string                `yaml:"operationId"`
	Security    []map[string][]string `yaml:"security"`
	Parameters  []parameter           `yaml:"parameters"`
	Responses   map[string]response   `yaml:"responses"`
}

var (
	methods    = map[string]bool{"get": true, "post": true, "put": true, "patch": true, "delete": true}
	pathParams = regexp.MustCompile(`\{([^}]+)\}`)
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <openapi.yaml>\n", os.Args[0])
		os.Exit(2)
	}
	doc, err := loadDoc(os.Args[1])
	if err != nil {
		exitErr(err)
	}
	n, err := check(doc)
	if err != nil {
		exitErr(err)
	}
	fmt.Printf("OpenAPI check passed: %d operations.\n", n)
}

func loadDoc(path string) (openAPIDoc, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return openAPIDoc{}, fmt.Errorf("read %s: %w", path, err)
	}
	return parseDoc(raw)
}

func parseDoc(raw []byte) (openAPIDoc, error) {
	var doc openAPIDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("parse openapi: %w", err)
	}
	return doc, nil
}

// check returns the number of operations and every problem found, joined.
func check(doc openAPIDoc) (int, error) {
	var problems []error
	errSchema, ok := doc.Components.Schemas["ErrorResponse"]
	if !ok {
		problems = append(problems, errors.New(`schema "ErrorResponse" missing`))
	} else if err := validateErrorResponse(errSchema); err != nil {
		problems = append(problems, err)
	}

	seen := make(map[string]string)
	count := 0
	for _, path := range sortedKeys(doc.Paths) {
		item := doc.Paths[path]
		for _, method := range sortedKeys(item) {
			if !methods[method] {
				continue
			}
			node := item[method]
			var op operation
			if err := node.Decode(&op); err != nil {
				problems = append(problems, fmt.Errorf("%s %s: %w", method, path, err))
				continue
			}
			count++
			where := strings.ToUpper(method) + " " + path
			if op.OperationID == "" {
				problems = append(problems, fmt.Errorf("%s: operationId missing", where))
			} else if prev, dup := seen[op.OperationID]; dup {
				problems = append(problems, fmt.Errorf("%s: operationId %q already used by %s", where, op.OperationID, prev))
			} else {
				seen[op.OperationID] = where
			}
			problems = append(problems, checkPathParams(where, path, op.Parameters)...)
			problems = append(problems, checkResponses(doc, where, op)...)
		}
	}
	return count, errors.Join(problems...)
}

func validateErrorResponse(s schema) error {
	if s.Type != "object" {
		return errors.New("ErrorResponse must be object")
	}
	required := makeSet(s.Required)
	for _, field := range []string{"error", "code"} {
		if !required[field] {
			return fmt.Errorf("ErrorResponse.required must include %q", field)
		}
	}
	for _, field := range []string{"error", "code", "requestId"} {
		prop, ok := s.Properties[field]
		if !ok || prop.Type != "string" {
			return fmt.Errorf("ErrorResponse.%s must be string", field)
		}
	}
	return nil
}

func checkPathParams(where, path string, params []parameter) []error {
	declared := make(map[string]bool)
	for _, p := range params {
		if p.In != "path" {
			continue
		}
		if !p.Required {
			return []error{fmt.Errorf("%s: path parameter %q must be required", where, p.Name)}
		}
		declared[p.Name] = true
	}
	var problems []error
	for _, m := range pathParams.FindAllStringSubmatch(path, -1) {
		if !declared[m[1]] {
			problems = append(problems, fmt.Errorf("%s: path parameter %q not declared", where, m[1]))
		}
		delete(declared, m[1])
	}
	for name := range declared {
		problems = append(problems, fmt.Errorf("%s: parameter %q not in path", where, name))
	}
	return problems
}

func checkResponses(doc openAPIDoc, where string, op operation) []error {
	var problems []error
	if len(op.Security) > 0 {
		if _, ok := op.Responses["401"]; !ok {
			problems = append(problems, fmt.Errorf("%s: secured operation must document 401", where))
		}
	}
	hasError := false
	for status, resp := range op.Responses {
		if status != "default" && !strings.HasPrefix(status, "4") && !strings.HasPrefix(status, "5") {
			continue
		}
		hasError = true
		if !isErrorResponse(doc, resp) {
			problems = append(problems, fmt.Errorf("%s: response %s must use ErrorResponse", where, status))
		}
	}
	if !hasError {
		problems = append(problems, fmt.Errorf("%s: no error response documented", where))
	}
	return problems
}

func isErrorResponse(doc openAPIDoc, resp response) bool {
	if ref := strings.TrimSpace(resp.Ref); ref != "" {
		name := strings.TrimPrefix(ref, "#/components/responses/")
		shared, ok := doc.Components.Responses[name]
		if !ok || name == ref {
			return false
		}
		resp = shared
	}
	media, ok := resp.Content["application/json"]
	return ok && strings.TrimSpace(media.Schema.Ref) == errorResponseRef
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func makeSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out[item] = true
	}
	return out
}

func exitErr(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}
