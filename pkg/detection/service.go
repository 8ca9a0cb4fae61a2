package detection

import (
	"context"
	"fmt"

	"github.com/teslashibe/go-moodguard/pkg/bridge"
	"github.com/teslashibe/go-moodguard/pkg/emotion"
	"github.com/teslashibe/go-moodguard/pkg/protocol"
)

// Bridge method names.
const (
	MethodLoadModel  = "loadModel"
	MethodDetectFace = "detectFace"
)

// Frame yields the current camera frame.
type Frame interface {
	Ready() bool
	JPEG() ([]byte, error)
}

// FrameResolver maps a frame ref sent over the bridge to a frame source.
type FrameResolver interface {
	Resolve(ref string) (Frame, bool)
}

// Result is the detectFace payload when a face is found.
type Result struct {
	Expressions emotion.Scores `json:"expressions"`
}

// Service answers loadModel and detectFace for one session.
type Service struct {
	classifier Classifier
	frames     FrameResolver
}

// NewService creates a service over a classifier and frame resolver.
func NewService(c Classifier, frames FrameResolver) *Service {
	return &Service{classifier: c, frames: frames}
}

// Register installs the service methods on r.
func (s *Service) Register(r *bridge.Responder) {
	r.Handle(MethodLoadModel, s.loadModel)
	r.Handle(MethodDetectFace, s.detectFace)
}

func (s *Service) loadModel(ctx context.Context, req *protocol.RequestData) (any, error) {
	var name, uri string
	if err := req.Arg(0, &name); err != nil {
		return nil, err
	}
	if err := req.Arg(1, &uri); err != nil {
		return nil, err
	}
	if err := s.classifier.LoadModel(ctx, name, uri); err != nil {
		return nil, err
	}
	return true, nil
}

func (s *Service) detectFace(ctx context.Context, req *protocol.RequestData) (any, error) {
	var ref string
	if err := req.Arg(0, &ref); err != nil {
		return nil, err
	}
	opts := DefaultOptions()
	if len(req.Args) > 1 {
		if err := req.Arg(1, &opts); err != nil {
			return nil, err
		}
	}

	scores, err := s.Detect(ctx, ref, opts)
	if err != nil {
		return nil, err
	}
	if scores == nil {
		return nil, nil
	}
	return Result{Expressions: scores}, nil
}

// Detect resolves ref and classifies its current frame.
func (s *Service) Detect(ctx context.Context, ref string, opts Options) (emotion.Scores, error) {
	frame, ok := s.frames.Resolve(ref)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFrame, ref)
	}
	if !frame.Ready() {
		return nil, ErrFrameNotReady
	}
	jpeg, err := frame.JPEG()
	if err != nil {
		return nil, fmt.Errorf("read frame %s: %w", ref, err)
	}
	return s.classifier.Classify(ctx, jpeg, opts)
}
