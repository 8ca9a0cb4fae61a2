package camera

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-moodguard/internal/log"
	"gocv.io/x/gocv"
)

// Webcam captures from a local device and keeps the latest frame encoded
// as JPEG.
type Webcam struct {
	cfg Config
	cap *gocv.VideoCapture
	log *slog.Logger

	mu     sync.RWMutex
	latest []byte
	err    error

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// OpenWebcam opens the device in cfg and starts capturing. It fails if the
// device cannot be opened, which is how a denied or missing camera shows up.
func OpenWebcam(ctx context.Context, cfg Config) (Source, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid camera config: %v", errs)
	}

	vc, err := gocv.OpenVideoCapture(cfg.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("open camera %d: %w", cfg.DeviceID, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("open camera %d: device not available", cfg.DeviceID)
	}

	vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	vc.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))

	w := &Webcam{
		cfg:  cfg,
		cap:  vc,
		log:  log.Component("camera").With("device", cfg.DeviceID),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go w.loop()

	w.log.Info("camera opened", "width", cfg.Width, "height", cfg.Height, "fps", cfg.Framerate)
	return w, nil
}

func (w *Webcam) loop() {
	defer close(w.done)

	img := gocv.NewMat()
	defer img.Close()

	interval := time.Second / time.Duration(w.cfg.Framerate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
		}

		if ok := w.cap.Read(&img); !ok || img.Empty() {
			continue
		}

		buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, []int{int(gocv.IMWriteJpegQuality), w.cfg.Quality})
		if err != nil {
			w.mu.Lock()
			w.err = err
			w.mu.Unlock()
			continue
		}
		data := append([]byte(nil), buf.GetBytes()...)
		buf.Close()

		w.mu.Lock()
		w.latest = data
		w.err = nil
		w.mu.Unlock()
	}
}

// Ready reports whether a frame has been captured.
func (w *Webcam) Ready() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.latest) > 0
}

// JPEG returns the most recent frame.
func (w *Webcam) JPEG() ([]byte, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if len(w.latest) == 0 {
		if w.err != nil {
			return nil, w.err
		}
		return nil, ErrNoFrame
	}
	return w.latest, nil
}

// Close stops the capture loop and releases the device.
func (w *Webcam) Close() error {
	var err error
	w.once.Do(func() {
		close(w.stop)
		<-w.done
		err = w.cap.Close()
		w.mu.Lock()
		w.latest = nil
		w.mu.Unlock()
		w.log.Info("camera closed")
	})
	return err
}
