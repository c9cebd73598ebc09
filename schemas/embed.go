// Package schemas embeds the coverbot HTTP API contract.
package schemas

import _ "embed"

// OpenAPISpec is the OpenAPI 3 document describing the relay API. It backs
// the request validation middleware.
//
//go:embed openapi.yaml
var OpenAPISpec []byte
