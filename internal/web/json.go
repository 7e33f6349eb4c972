package web

import (
	"encoding/json"

	"github.com/sweeney/switch-node/internal/version"
)

// VersionJSON is the JSON envelope for the version endpoint.
type VersionJSON struct {
	Version version.Info `json:"version"`
}

func marshal(v interface{}) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
