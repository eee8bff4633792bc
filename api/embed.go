// Package api embeds the OpenAPI document for the agent-facing API so the
// server can serve it at /api/openapi.yaml.
package api

import _ "embed"

// OpenAPISpec is the raw OpenAPI 3.1 YAML document.
//
//go:embed openapi.yaml
var OpenAPISpec []byte
