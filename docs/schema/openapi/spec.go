// Package openapi embeds the API description served by the design HTTP
// handler.
package openapi

import _ "embed"

// Document contains the OpenAPI description of the udesign API.
//
//go:embed udesign.yaml
var Document []byte

// Spec returns a defensive copy of the embedded OpenAPI YAML.
func Spec() []byte {
	return append([]byte(nil), Document...)
}
