package model

import (
	"fmt"

	"github.com/ken/embed_trainer/pkg/model/encoders"
)

// defaultStaticDimension matches the output width of the MiniLM family so
// offline runs exercise realistic shapes
const defaultStaticDimension = 384

// ResolveEncoder resolves a base encoder from a model name and backend
// selector. Backend "hf" talks to the remote model repository; "static"
// is the deterministic offline encoder.
func ResolveEncoder(name, backend, token string) (encoders.Encoder, error) {
	if name == "" {
		return nil, fmt.Errorf("model name is required")
	}

	switch backend {
	case "", "hf":
		return encoders.NewHuggingFace(encoders.NewConfig(name), encoders.WithToken(token))
	case "static":
		return encoders.NewStatic(encoders.NewConfig(name), defaultStaticDimension)
	default:
		return nil, fmt.Errorf("unknown encoder backend %q", backend)
	}
}
