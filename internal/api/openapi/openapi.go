// Пакет openapi — встроенный OpenAPI-контракт API.
package openapi

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed openapi.yaml
var document []byte

// Load разбирает и проверяет встроенный контракт.
func Load(ctx context.Context) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx

	doc, err := loader.LoadFromData(document)
	if err != nil {
		return nil, fmt.Errorf("разбор OpenAPI: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("невалидный OpenAPI: %w", err)
	}
	return doc, nil
}
