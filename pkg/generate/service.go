// Package generate wraps calls to the external AI service with the result
// cache and reports exactly one API-call metric per call.
package generate

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/pario-ai/adcache/pkg/cache"
	"github.com/pario-ai/adcache/pkg/codec"
	"github.com/pario-ai/adcache/pkg/metrics"
	"github.com/pario-ai/adcache/pkg/models"
)

// Endpoint names reported in API-call metrics.
const (
	EndpointAnalyzeProductImage = "analyzeProductImage"
	EndpointGenerateVideo       = "generateVideo"
	EndpointEditImage           = "editImage"
)

// genericKeyTag leads every Generate key so caller-chosen endpoint names
// cannot collide with the built-in call sites sharing the partition.
const genericKeyTag = "generate"

// Upstream is the external multimodal AI service.
type Upstream interface {
	// AnalyzeImage extracts product attributes from image bytes.
	AnalyzeImage(ctx context.Context, image []byte, mimeType string) (models.AnalysisResult, error)
	// GenerateVideo renders a video and returns its URL once the long-running
	// operation completes.
	GenerateVideo(ctx context.Context, req VideoRequest) (string, error)
	// EditImage returns new image bytes for image and prompt.
	EditImage(ctx context.Context, req EditRequest) ([]byte, error)
}

// Compressor shrinks images before upload.
type Compressor interface {
	Compress(ctx context.Context, image []byte, opts CompressOptions) (Compressed, error)
}

// VideoRequest is every parameter that shapes a rendered video.
type VideoRequest struct {
	ImageID         string `json:"image_id"`
	Prompt          string `json:"prompt"`
	Model           string `json:"model,omitempty"`
	AspectRatio     string `json:"aspect_ratio,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
}

// Key is the request key over all parameters.
func (r VideoRequest) Key() string {
	return codec.RequestKey(r.ImageID, r.Prompt, r.Model, r.AspectRatio, strconv.Itoa(r.DurationSeconds))
}

// EditRequest asks for an edited product image, e.g. a new background.
type EditRequest struct {
	ImageID string `json:"image_id"`
	Image   []byte `json:"image"`
	Prompt  string `json:"prompt"`
	Style   string `json:"style,omitempty"`
}

// Key is the request key over all parameters. The image participates by
// content hash.
func (r EditRequest) Key() string {
	return codec.RequestKey(EndpointEditImage, r.ImageID, codec.HashContent(r.Image), r.Prompt, r.Style)
}

// CompressOptions bounds the compressed output.
type CompressOptions struct {
	MaxWidth  int
	MaxHeight int
	Quality   int
	Format    string
}

// Compressed is a compressor result.
type Compressed struct {
	Data   []byte
	Width  int
	Height int
	Format string
}

// Service is the instrumented call site for every upstream operation.
type Service struct {
	cache    *cache.ResultCache
	rec      *metrics.Recorder
	up       Upstream
	comp     Compressor
	unitCost float64
	now      func() time.Time
	log      zerolog.Logger
}

// NewService wires the call sites. comp may be nil when OptimizeImage is not used.
func NewService(rc *cache.ResultCache, rec *metrics.Recorder, up Upstream, comp Compressor, unitCost float64, log zerolog.Logger) *Service {
	return &Service{
		cache:    rc,
		rec:      rec,
		up:       up,
		comp:     comp,
		unitCost: unitCost,
		now:      rec.Now,
		log:      log,
	}
}

// call describes one cached upstream operation. On a hit fetch is not
// invoked. Upstream errors are returned; cache and metric failures are not.
type call[T any] struct {
	endpoint string
	get      func(ctx context.Context) (T, bool)
	set      func(ctx context.Context, v T)
	fetch    func(ctx context.Context) (T, error)
	// after reports the kind-specific metric for an upstream attempt.
	after func(ctx context.Context, cached bool, d time.Duration, err error)
}

func run[T any](ctx context.Context, s *Service, c call[T]) (T, error) {
	start := s.now()
	if v, ok := c.get(ctx); ok {
		d := s.now().Sub(start)
		s.rec.TrackAPICall(ctx, models.APICall{
			Endpoint: c.endpoint,
			Status:   models.StatusSuccess,
			CacheHit: true,
		}, d)
		if c.after != nil {
			c.after(ctx, true, d, nil)
		}
		return v, nil
	}

	v, err := c.fetch(ctx)
	d := s.now().Sub(start)
	apiCall := models.APICall{
		Endpoint: c.endpoint,
		Status:   models.StatusSuccess,
		Cost:     s.unitCost,
	}
	if err != nil {
		apiCall.Status = models.StatusError
		apiCall.ErrorMessage = err.Error()
	}
	s.rec.TrackAPICall(ctx, apiCall, d)
	if c.after != nil {
		c.after(ctx, false, d, err)
	}
	if err != nil {
		var zero T
		return zero, fmt.Errorf("%s: %w", c.endpoint, err)
	}

	c.set(ctx, v)
	return v, nil
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// AnalyzeProductImage returns the analysis for image, keyed by its content hash.
func (s *Service) AnalyzeProductImage(ctx context.Context, image []byte, mimeType string, opts ...cache.Option) (models.AnalysisResult, error) {
	hash := codec.HashContent(image)
	res, err := run(ctx, s, call[models.AnalysisResult]{
		endpoint: EndpointAnalyzeProductImage,
		get: func(ctx context.Context) (models.AnalysisResult, bool) {
			return s.cache.GetCachedImageAnalysis(ctx, hash, opts...)
		},
		set: func(ctx context.Context, v models.AnalysisResult) {
			s.cache.CacheImageAnalysis(ctx, hash, v, opts...)
		},
		fetch: func(ctx context.Context) (models.AnalysisResult, error) {
			return s.up.AnalyzeImage(ctx, image, mimeType)
		},
		after: func(ctx context.Context, cached bool, d time.Duration, err error) {
			s.rec.TrackImageAnalysis(ctx, models.ImageAnalysis{
				ContentHash:  hash,
				Cached:       cached,
				ErrorMessage: errMessage(err),
			}, d, err == nil)
		},
	})
	return res, err
}

// GenerateVideo returns the video URL for req. Only upstream renders are
// recorded as video_generation.
func (s *Service) GenerateVideo(ctx context.Context, req VideoRequest, opts ...cache.Option) (string, error) {
	key := req.Key()
	url, err := run(ctx, s, call[string]{
		endpoint: EndpointGenerateVideo,
		get: func(ctx context.Context) (string, bool) {
			return s.cache.GetCachedVideo(ctx, key, opts...)
		},
		set: func(ctx context.Context, v string) {
			s.cache.CacheVideo(ctx, key, v, opts...)
		},
		fetch: func(ctx context.Context) (string, error) {
			return s.up.GenerateVideo(ctx, req)
		},
		after: func(ctx context.Context, cached bool, d time.Duration, err error) {
			if cached {
				return
			}
			s.rec.TrackVideoGeneration(ctx, models.VideoGeneration{
				RequestKey:   key,
				Model:        req.Model,
				ErrorMessage: errMessage(err),
			}, d, err == nil)
		},
	})
	return url, err
}

// EditImage returns edited image bytes, cached in the generation partition.
func (s *Service) EditImage(ctx context.Context, req EditRequest, opts ...cache.Option) ([]byte, error) {
	key := req.Key()
	img, err := run(ctx, s, call[[]byte]{
		endpoint: EndpointEditImage,
		get: func(ctx context.Context) ([]byte, bool) {
			return cache.GetCachedGenerationResult[[]byte](ctx, s.cache, key, opts...)
		},
		set: func(ctx context.Context, v []byte) {
			cache.CacheGenerationResult(ctx, s.cache, key, v, opts...)
		},
		fetch: func(ctx context.Context) ([]byte, error) {
			return s.up.EditImage(ctx, req)
		},
		after: func(ctx context.Context, cached bool, d time.Duration, err error) {
			if cached {
				return
			}
			s.rec.TrackSceneGeneration(ctx, models.SceneGeneration{
				Scenes:       1,
				Style:        req.Style,
				ErrorMessage: errMessage(err),
			}, d, err == nil)
		},
	})
	return img, err
}

// EditImages runs EditImage for each request and records one batch metric.
// Results and errors are index-aligned with reqs.
func (s *Service) EditImages(ctx context.Context, reqs []EditRequest, opts ...cache.Option) ([][]byte, []error) {
	start := s.now()
	out := make([][]byte, len(reqs))
	errs := make([]error, len(reqs))
	ok := 0
	var last error
	for i, req := range reqs {
		out[i], errs[i] = s.EditImage(ctx, req, opts...)
		if errs[i] == nil {
			ok++
		} else {
			last = errs[i]
		}
	}
	s.rec.TrackBatchGeneration(ctx, models.BatchGeneration{
		Items:        len(reqs),
		Succeeded:    ok,
		ErrorMessage: errMessage(last),
	}, s.now().Sub(start))
	return out, errs
}

// Generate is the generic cached call site for results of type T stored in
// the generation partition. inputs must cover every request parameter.
func Generate[T any](ctx context.Context, s *Service, endpoint string, inputs []string, fetch func(ctx context.Context) (T, error), opts ...cache.Option) (T, error) {
	key := codec.RequestKey(append([]string{genericKeyTag, endpoint}, inputs...)...)
	v, err := run(ctx, s, call[T]{
		endpoint: endpoint,
		get: func(ctx context.Context) (T, bool) {
			return cache.GetCachedGenerationResult[T](ctx, s.cache, key, opts...)
		},
		set: func(ctx context.Context, v T) {
			cache.CacheGenerationResult(ctx, s.cache, key, v, opts...)
		},
		fetch: fetch,
	})
	return v, err
}

// OptimizeImage compresses image and records the savings. Compression is
// local and is not cached.
func (s *Service) OptimizeImage(ctx context.Context, image []byte, opts CompressOptions) (Compressed, error) {
	if s.comp == nil {
		return Compressed{}, fmt.Errorf("optimize image: no compressor configured")
	}
	start := s.now()
	out, err := s.comp.Compress(ctx, image, opts)
	if err != nil {
		return Compressed{}, fmt.Errorf("optimize image: %w", err)
	}
	elapsed := s.now().Sub(start)

	opt := models.ImageOptimization{
		OriginalSize:     int64(len(image)),
		OptimizedSize:    int64(len(out.Data)),
		Width:            out.Width,
		Height:           out.Height,
		Format:           out.Format,
		ProcessingTimeMs: float64(elapsed) / float64(time.Millisecond),
	}
	s.rec.TrackImageOptimization(ctx, opt)
	s.log.Debug().
		Int64("original", opt.OriginalSize).
		Int64("optimized", opt.OptimizedSize).
		Msg("image optimized")
	return out, nil
}
