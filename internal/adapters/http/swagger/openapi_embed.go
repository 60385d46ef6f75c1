package swagger

import _ "embed"

// OpenAPI is the embedded OpenAPI 3 document describing the vitals API.
//
//go:embed openapi.yaml
var OpenAPI []byte
