package usecase

import (
	"github.com/example/ml-gateway/internal/features"
	"github.com/example/ml-gateway/internal/imageprocessor"
	"github.com/example/ml-gateway/internal/repository"
)

// Client-facing error kinds. Handlers match them with errors.Is; anything
// else is an internal failure.
var (
	ErrMissingInput     = features.ErrMissingInput
	ErrUndecodableImage = imageprocessor.ErrUndecodableImage
	ErrResultNotFound   = repository.ErrNotFound
)
