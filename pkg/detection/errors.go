package detection

import "errors"

// Sentinel errors for the detection capability.
var (
	// ErrUnknownModel is returned for a model name the backend cannot load.
	ErrUnknownModel = errors.New("detection: unknown model")

	// ErrModelNotLoaded is returned when classifying before the models are in.
	ErrModelNotLoaded = errors.New("detection: models not loaded")

	// ErrUnknownFrame is returned when a frame ref resolves to nothing.
	ErrUnknownFrame = errors.New("detection: unknown frame ref")

	// ErrFrameNotReady is returned when the frame source has no frame yet.
	ErrFrameNotReady = errors.New("detection: frame not ready")
)
