package main

import (
	"strings"
	"testing"
)

func TestAPIDescriptionPasses(t *testing.T) {
	doc, err := loadDoc("../../services/api/openapi.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	n, err := check(doc)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if n < 30 {
		t.Fatalf("expected the full API to be described, got %d operations", n)
	}
}

const base = `
components:
  responses:
    Error:
      content:
        application/json:
          schema:
            $ref: '#/components/schemas/ErrorResponse'
  schemas:
    ErrorResponse:
      type: object
      required: [error, code]
      properties:
        error: {type: string}
        code: {type: string}
        requestId: {type: string}
paths:
`

func TestCheckProblems(t *testing.T) {
	tests := []struct {
		name  string
		paths string
		want  string
	}{
		{
			name: "missing path parameter",
			paths: `
  /things/{id}:
    get:
      operationId: getThing
      responses:
        default: {$ref: '#/components/responses/Error'}`,
			want: `path parameter "id" not declared`,
		},
		{
			name: "duplicate operation id",
			paths: `
  /a:
    get:
      operationId: same
      responses:
        default: {$ref: '#/components/responses/Error'}
  /b:
    get:
      operationId: same
      responses:
        default: {$ref: '#/components/responses/Error'}`,
			want: `operationId "same" already used`,
		},
		{
			name: "secured without 401",
			paths: `
  /me:
    get:
      operationId: me
      security: [{bearerAuth: []}]
      responses:
        default: {$ref: '#/components/responses/Error'}`,
			want: "must document 401",
		},
		{
			name: "error response with another schema",
			paths: `
  /x:
    post:
      operationId: x
      responses:
        '400':
          content:
            application/json:
              schema: {type: object}`,
			want: "response 400 must use ErrorResponse",
		},
		{
			name: "no error response",
			paths: `
  /y:
    get:
      operationId: y
      responses:
        '200': {description: OK}`,
			want: "no error response documented",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := parseDoc([]byte(base + tt.paths))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			_, err = check(doc)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestErrorResponseShape(t *testing.T) {
	doc, err := parseDoc([]byte(`
components:
  schemas:
    ErrorResponse:
      type: object
      required: [error]
      properties:
        error: {type: string}
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := check(doc); err == nil || !strings.Contains(err.Error(), `must include "code"`) {
		t.Fatalf("unexpected error: %v", err)
	}
}
