package workflow

import (
	"fmt"

	"nfewatch/internal/services"
)

// MalformedKeyError reports an external key that cannot yield an entity
// identifier. It is permanent: the executor does not retry it.
type MalformedKeyError struct {
	Key    string
	Reason string
}

func (e *MalformedKeyError) Error() string {
	return fmt.Sprintf("malformed access key %q: %s", e.Key, e.Reason)
}

func (e *MalformedKeyError) Unwrap() error {
	return services.ErrValidation
}

// ArtifactMissingError reports that the source artifact for a pending record
// is absent. It is retried: the file may still be in transit.
type ArtifactMissingError struct {
	Path string
}

func (e *ArtifactMissingError) Error() string {
	return fmt.Sprintf("source artifact not found: %s", e.Path)
}

func (e *ArtifactMissingError) Unwrap() error {
	return services.ErrNotFound
}
