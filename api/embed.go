// Package api embeds the OpenAPI description of the HTTP API.
package api

import _ "embed"

// OpenAPI is the OpenAPI 3 document describing the product routes.
//
//go:embed openapi.yaml
var OpenAPI []byte
