// Package detection hosts the facial expression capability and the proxy
// that reaches it across the bridge.
//
// The page side (Agent, Service) owns a Classifier and answers loadModel and
// detectFace calls. The content side (Proxy) issues those calls and maps
// the answers back to emotion scores. A frame with no face is a nil result,
// never an error.
package detection

import (
	"context"

	"github.com/teslashibe/go-moodguard/pkg/emotion"
)

// Model names accepted by LoadModel.
const (
	ModelFaceDetector = "tinyFaceDetector"
	ModelExpressions  = "faceExpressionNet"
)

// RequiredModels lists the models a session loads before detecting.
func RequiredModels() []string {
	return []string{ModelFaceDetector, ModelExpressions}
}

// Options tune one detection.
type Options struct {
	InputSize      int     `json:"inputSize"`
	ScoreThreshold float64 `json:"scoreThreshold"`
}

// DefaultOptions returns the detector settings sessions use.
func DefaultOptions() Options {
	return Options{
		InputSize:      224,
		ScoreThreshold: 0.5,
	}
}

// Classifier is the opaque expression capability.
type Classifier interface {
	// LoadModel fetches and initializes a named model from uri.
	// Loading an already loaded model is a no-op.
	LoadModel(ctx context.Context, name, uri string) error

	// Classify finds the best face in a JPEG frame and scores its
	// expression. It returns nil, nil when no face passes
	// opts.ScoreThreshold.
	Classify(ctx context.Context, jpeg []byte, opts Options) (emotion.Scores, error)

	// Close releases resources.
	Close() error
}

// Face is a detected face in normalized image coordinates.
type Face struct {
	X, Y       float64 // Top-left corner (0-1 normalized)
	W, H       float64 // Width and height (0-1 normalized)
	Confidence float64
}

// Area returns the area of the bounding box.
func (f Face) Area() float64 {
	return f.W * f.H
}

// SelectBest picks the face to score when several are found.
// Priority: confidence * 0.7 + relative area * 0.3
func SelectBest(faces []Face) *Face {
	if len(faces) == 0 {
		return nil
	}
	if len(faces) == 1 {
		return &faces[0]
	}

	maxArea := 0.0
	for _, f := range faces {
		if f.Area() > maxArea {
			maxArea = f.Area()
		}
	}

	bestScore := -1.0
	var best *Face
	for i := range faces {
		rel := 0.0
		if maxArea > 0 {
			rel = faces[i].Area() / maxArea
		}
		score := faces[i].Confidence*0.7 + rel*0.3
		if score > bestScore {
			bestScore = score
			best = &faces[i]
		}
	}
	return best
}
