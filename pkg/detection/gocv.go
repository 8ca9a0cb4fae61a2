package detection

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/teslashibe/go-moodguard/internal/log"
	"github.com/teslashibe/go-moodguard/pkg/emotion"
	"gocv.io/x/gocv"
)

// Model files looked up under the uri passed to LoadModel.
const (
	YuNetFile = "face_detection_yunet.onnx"
	FERFile   = "emotion-ferplus-8.onnx"
)

// ferSize is the FER+ network input edge in pixels.
const ferSize = 64

// ferLabels is the FER+ output order. Contempt has no counterpart in the
// vocabulary and is dropped.
var ferLabels = []emotion.Label{
	emotion.Neutral,
	emotion.Happy,
	emotion.Surprised,
	emotion.Sad,
	emotion.Angry,
	emotion.Disgusted,
	emotion.Fearful,
	"", // contempt
}

// GoCVClassifier runs YuNet face detection and the FER+ expression network
// locally through OpenCV.
type GoCVClassifier struct {
	mu       sync.Mutex // Protects inference
	detector *gocv.FaceDetectorYN
	net      *gocv.Net
	log      *slog.Logger
}

// NewGoCV creates a classifier with no models loaded.
func NewGoCV() *GoCVClassifier {
	return &GoCVClassifier{log: log.Component("detection.gocv")}
}

// LoadModel loads tinyFaceDetector (YuNet) or faceExpressionNet (FER+)
// from the model directory uri.
func (c *GoCVClassifier) LoadModel(ctx context.Context, name, uri string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch name {
	case ModelFaceDetector:
		if c.detector != nil {
			return nil
		}
		path := filepath.Join(uri, YuNetFile)
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("model file not found: %s", path)
		}
		det := gocv.NewFaceDetectorYNWithParams(
			path,
			"",                          // No config file needed for ONNX
			image.Pt(320, 320),          // Initial input size, updated per image
			0.5,                         // Score threshold, filtered again per call
			0.3,                         // NMS threshold
			5000,                        // Top K
			int(gocv.NetBackendDefault), // Backend
			int(gocv.NetTargetCPU),      // Target
		)
		c.detector = &det

	case ModelExpressions:
		if c.net != nil {
			return nil
		}
		path := filepath.Join(uri, FERFile)
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("model file not found: %s", path)
		}
		net := gocv.ReadNetFromONNX(path)
		if net.Empty() {
			return fmt.Errorf("failed to load expression model from %s", path)
		}
		net.SetPreferableBackend(gocv.NetBackendDefault)
		net.SetPreferableTarget(gocv.NetTargetCPU)
		c.net = &net

	default:
		return fmt.Errorf("%w: %s", ErrUnknownModel, name)
	}

	c.log.Info("model loaded", "model", name, "dir", uri)
	return nil
}

// Classify scores the best face in jpeg.
func (c *GoCVClassifier) Classify(ctx context.Context, jpeg []byte, opts Options) (emotion.Scores, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.detector == nil || c.net == nil {
		return nil, ErrModelNotLoaded
	}

	img, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	defer img.Close()
	if img.Empty() {
		return nil, fmt.Errorf("empty image")
	}

	faces := c.detect(img, opts)
	best := SelectBest(faces)
	if best == nil {
		return nil, nil
	}

	return c.expressions(img, *best)
}

func (c *GoCVClassifier) detect(img gocv.Mat, opts Options) []Face {
	imgW := float64(img.Cols())
	imgH := float64(img.Rows())

	c.detector.SetInputSize(image.Pt(img.Cols(), img.Rows()))

	out := gocv.NewMat()
	defer out.Close()
	c.detector.Detect(img, &out)

	var faces []Face
	for r := 0; r < out.Rows(); r++ {
		// YuNet rows: 0-3 box in pixels, 4-13 landmarks, 14 score
		score := float64(out.GetFloatAt(r, 14))
		if score < opts.ScoreThreshold {
			continue
		}
		faces = append(faces, Face{
			X:          float64(out.GetFloatAt(r, 0)) / imgW,
			Y:          float64(out.GetFloatAt(r, 1)) / imgH,
			W:          float64(out.GetFloatAt(r, 2)) / imgW,
			H:          float64(out.GetFloatAt(r, 3)) / imgH,
			Confidence: score,
		})
	}
	return faces
}

func (c *GoCVClassifier) expressions(img gocv.Mat, f Face) (emotion.Scores, error) {
	rect := faceRect(f, img.Cols(), img.Rows())
	if rect.Empty() {
		return nil, nil
	}

	roi := img.Region(rect)
	defer roi.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(roi, &gray, gocv.ColorBGRToGray)

	blob := gocv.BlobFromImage(gray, 1.0, image.Pt(ferSize, ferSize), gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	c.net.SetInput(blob, "")
	prob := c.net.Forward("")
	defer prob.Close()

	n := prob.Cols()
	if n > len(ferLabels) {
		n = len(ferLabels)
	}
	logits := make([]float64, n)
	for i := range logits {
		logits[i] = float64(prob.GetFloatAt(0, i))
	}
	return scoresFromLogits(logits), nil
}

// faceRect converts a normalized face box to a pixel rectangle clipped to
// the image.
func faceRect(f Face, w, h int) image.Rectangle {
	r := image.Rect(
		int(f.X*float64(w)),
		int(f.Y*float64(h)),
		int((f.X+f.W)*float64(w)),
		int((f.Y+f.H)*float64(h)),
	)
	return r.Intersect(image.Rect(0, 0, w, h))
}

// scoresFromLogits applies softmax over the FER+ outputs and maps them to
// the vocabulary.
func scoresFromLogits(logits []float64) emotion.Scores {
	if len(logits) == 0 {
		return nil
	}
	peak := logits[0]
	for _, v := range logits[1:] {
		if v > peak {
			peak = v
		}
	}
	sum := 0.0
	exp := make([]float64, len(logits))
	for i, v := range logits {
		exp[i] = math.Exp(v - peak)
		sum += exp[i]
	}

	scores := make(emotion.Scores, len(emotion.Labels()))
	for i, e := range exp {
		if i >= len(ferLabels) || ferLabels[i] == "" {
			continue
		}
		scores[ferLabels[i]] = e / sum
	}
	return scores
}

// Close releases the models.
func (c *GoCVClassifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.detector != nil {
		c.detector.Close()
		c.detector = nil
	}
	if c.net != nil {
		c.net.Close()
		c.net = nil
	}
	return nil
}
