package swagger

import _ "embed"

// OpenAPI is the embedded OpenAPI document for the player API.
//
//go:embed openapi.yaml
var OpenAPI []byte
