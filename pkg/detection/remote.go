package detection

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/teslashibe/go-moodguard/internal/httpc"
	"github.com/teslashibe/go-moodguard/pkg/emotion"
)

// RemoteClassifier delegates classification to an HTTP service.
//
// POST {base}/detect?inputSize=224&scoreThreshold=0.5 with the JPEG as body
// answers {"face_found": bool, "expressions": {"happy": 0.9, ...}}.
// POST {base}/models/{name} with {"uri": "..."} loads a model.
type RemoteClassifier struct {
	base   string
	client *http.Client

	mu     sync.Mutex
	loaded map[string]bool
}

// RemoteOption configures a RemoteClassifier.
type RemoteOption func(*RemoteClassifier)

// WithHTTPClient sets the HTTP client. Defaults to httpc.Client.
func WithHTTPClient(c *http.Client) RemoteOption {
	return func(r *RemoteClassifier) { r.client = c }
}

// NewRemote creates a classifier backed by the service at base.
func NewRemote(base string, opts ...RemoteOption) *RemoteClassifier {
	r := &RemoteClassifier{
		base:   strings.TrimRight(base, "/"),
		client: httpc.Client,
		loaded: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type detectResp struct {
	FaceFound   bool               `json:"face_found"`
	Expressions map[string]float64 `json:"expressions"`
}

type loadReq struct {
	URI string `json:"uri"`
}

// LoadModel asks the service to load name from uri.
func (r *RemoteClassifier) LoadModel(ctx context.Context, name, uri string) error {
	if name != ModelFaceDetector && name != ModelExpressions {
		return fmt.Errorf("%w: %s", ErrUnknownModel, name)
	}

	r.mu.Lock()
	done := r.loaded[name]
	r.mu.Unlock()
	if done {
		return nil
	}

	b, err := json.Marshal(loadReq{URI: uri})
	if err != nil {
		return fmt.Errorf("load marshal: %w", err)
	}
	resp, err := httpc.Post(ctx, r.client, r.base+"/models/"+url.PathEscape(name), "application/json", b)
	if err != nil {
		return fmt.Errorf("load %s: %w", name, err)
	}
	defer resp.Body.Close()
	if err := checkStatus("load "+name, resp); err != nil {
		return err
	}

	r.mu.Lock()
	r.loaded[name] = true
	r.mu.Unlock()
	return nil
}

// Classify posts jpeg to the detect endpoint.
func (r *RemoteClassifier) Classify(ctx context.Context, jpeg []byte, opts Options) (emotion.Scores, error) {
	q := url.Values{}
	q.Set("inputSize", strconv.Itoa(opts.InputSize))
	q.Set("scoreThreshold", strconv.FormatFloat(opts.ScoreThreshold, 'f', -1, 64))

	resp, err := httpc.Post(ctx, r.client, r.base+"/detect?"+q.Encode(), "image/jpeg", jpeg)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus("detect", resp); err != nil {
		return nil, err
	}

	var out detectResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("detect decode: %w", err)
	}
	if !out.FaceFound {
		return nil, nil
	}

	scores := make(emotion.Scores, len(out.Expressions))
	for k, v := range out.Expressions {
		scores[emotion.Label(k)] = v
	}
	return scores.Clamp(), nil
}

// Close is a no-op; the shared HTTP client outlives the classifier.
func (r *RemoteClassifier) Close() error {
	return nil
}

func checkStatus(op string, resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	const maxErr = 4096
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErr))
	return fmt.Errorf("%s %s: %s", op, resp.Status, strings.TrimSpace(string(body)))
}
