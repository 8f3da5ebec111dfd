package util

import (
	"encoding/json"
	"fmt"
)

// UnmarshalWithKind decodes data into target after checking that its "kind"
// field equals expectedKind. An empty kind is accepted so that documents
// written before kinds were introduced keep loading.
func UnmarshalWithKind(data []byte, target any, expectedKind string) error {
	tmp := struct {
		Kind string `json:"kind"`
	}{}

	if err := json.Unmarshal(data, &tmp); err != nil {
		return err
	}

	if tmp.Kind != "" && tmp.Kind != expectedKind {
		return fmt.Errorf("cannot decode kind '%s' as kind '%s'", tmp.Kind, expectedKind)
	}

	return json.Unmarshal(data, target)
}
