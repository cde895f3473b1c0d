package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// MetricKind identifies the kind of a performance metric record.
type MetricKind string

const (
	KindImageOptimization MetricKind = "image_optimization"
	KindImageAnalysis     MetricKind = "image_analysis"
	KindVideoGeneration   MetricKind = "video_generation"
	KindCacheHit          MetricKind = "cache_hit"
	KindCacheMiss         MetricKind = "cache_miss"
	KindSceneGeneration   MetricKind = "ai_scene_generation"
	KindTTSGeneration     MetricKind = "tts_generation"
	KindBatchGeneration   MetricKind = "batch_generation"
	KindUserAction        MetricKind = "user_action"
)

// ErrPayloadMismatch is returned when a metric's payload does not belong to its kind.
var ErrPayloadMismatch = errors.New("metric payload does not match kind")

// Payload is the kind-specific body of a metric. The set of implementations is
// closed; see newPayload.
type Payload interface {
	payloadKinds() []MetricKind
}

// ImageOptimization describes one image compression run.
// CompressionRatio is optimized/original, so values below 1 mean savings.
type ImageOptimization struct {
	OriginalSize     int64   `json:"original_size"`
	OptimizedSize    int64   `json:"optimized_size"`
	CompressionRatio float64 `json:"compression_ratio"`
	Width            int     `json:"width"`
	Height           int     `json:"height"`
	Format           string  `json:"format"`
	ProcessingTimeMs float64 `json:"processing_time_ms"`
}

// APICallStatus is the outcome reported by an external call site.
type APICallStatus string

const (
	StatusSuccess APICallStatus = "success"
	StatusError   APICallStatus = "error"
)

// APICall describes one external-service call site outcome. It is stored
// under KindCacheHit or KindCacheMiss depending on CacheHit.
type APICall struct {
	Endpoint     string        `json:"endpoint"`
	Status       APICallStatus `json:"status"`
	CacheHit     bool          `json:"cache_hit"`
	Cost         float64       `json:"cost"`
	ErrorMessage string        `json:"error_message,omitempty"`
}

// ImageAnalysis describes one product-image analysis.
type ImageAnalysis struct {
	ContentHash  string `json:"content_hash"`
	Cached       bool   `json:"cached"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// VideoGeneration describes one render by the upstream service. Cache hits
// are reported as API calls only.
type VideoGeneration struct {
	RequestKey   string `json:"request_key"`
	Model        string `json:"model,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// SceneGeneration describes one AI scene/background generation.
type SceneGeneration struct {
	Scenes       int    `json:"scenes"`
	Style        string `json:"style,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// TTSGeneration describes one voice-over synthesis.
type TTSGeneration struct {
	Characters   int    `json:"characters"`
	Voice        string `json:"voice,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// BatchGeneration describes one batch of creatives.
type BatchGeneration struct {
	Items        int    `json:"items"`
	Succeeded    int    `json:"succeeded"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// UserAction records a dashboard interaction.
type UserAction struct {
	Action  string            `json:"action"`
	Details map[string]string `json:"details,omitempty"`
}

func (ImageOptimization) payloadKinds() []MetricKind { return []MetricKind{KindImageOptimization} }
func (APICall) payloadKinds() []MetricKind           { return []MetricKind{KindCacheHit, KindCacheMiss} }
func (ImageAnalysis) payloadKinds() []MetricKind     { return []MetricKind{KindImageAnalysis} }
func (VideoGeneration) payloadKinds() []MetricKind   { return []MetricKind{KindVideoGeneration} }
func (SceneGeneration) payloadKinds() []MetricKind   { return []MetricKind{KindSceneGeneration} }
func (TTSGeneration) payloadKinds() []MetricKind     { return []MetricKind{KindTTSGeneration} }
func (BatchGeneration) payloadKinds() []MetricKind   { return []MetricKind{KindBatchGeneration} }
func (UserAction) payloadKinds() []MetricKind        { return []MetricKind{KindUserAction} }

// newPayload returns a pointer to the zero payload for kind.
func newPayload(kind MetricKind) (any, error) {
	switch kind {
	case KindImageOptimization:
		return &ImageOptimization{}, nil
	case KindCacheHit, KindCacheMiss:
		return &APICall{}, nil
	case KindImageAnalysis:
		return &ImageAnalysis{}, nil
	case KindVideoGeneration:
		return &VideoGeneration{}, nil
	case KindSceneGeneration:
		return &SceneGeneration{}, nil
	case KindTTSGeneration:
		return &TTSGeneration{}, nil
	case KindBatchGeneration:
		return &BatchGeneration{}, nil
	case KindUserAction:
		return &UserAction{}, nil
	}
	return nil, fmt.Errorf("unknown metric kind %q", kind)
}

// Valid reports whether k is a known metric kind.
func (k MetricKind) Valid() bool {
	_, err := newPayload(k)
	return err == nil
}

// Metric is one immutable, timestamped performance record.
type Metric struct {
	ID        string
	Kind      MetricKind
	Timestamp time.Time
	Duration  time.Duration
	Success   bool
	Payload   Payload
}

// Validate checks that the payload variant belongs to the metric kind.
func (m Metric) Validate() error {
	if !m.Kind.Valid() {
		return fmt.Errorf("unknown metric kind %q", m.Kind)
	}
	if m.Payload == nil {
		return fmt.Errorf("%s: %w", m.Kind, ErrPayloadMismatch)
	}
	for _, k := range m.Payload.payloadKinds() {
		if k == m.Kind {
			return nil
		}
	}
	return fmt.Errorf("%s with %T: %w", m.Kind, m.Payload, ErrPayloadMismatch)
}

type metricWire struct {
	ID         string          `json:"id"`
	Type       MetricKind      `json:"type"`
	Timestamp  int64           `json:"timestamp"`
	DurationMs *float64        `json:"duration,omitempty"`
	Success    bool            `json:"success"`
	Data       json.RawMessage `json:"data"`
}

// MarshalJSON encodes the metric with an epoch-millisecond timestamp and a
// kind-tagged data object.
func (m Metric) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(m.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", m.Kind, err)
	}
	w := metricWire{
		ID:        m.ID,
		Type:      m.Kind,
		Timestamp: m.Timestamp.UnixMilli(),
		Success:   m.Success,
		Data:      data,
	}
	if m.Duration > 0 {
		ms := float64(m.Duration) / float64(time.Millisecond)
		w.DurationMs = &ms
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the payload variant selected by the type tag.
func (m *Metric) UnmarshalJSON(b []byte) error {
	var w metricWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	ptr, err := newPayload(w.Type)
	if err != nil {
		return err
	}
	if len(w.Data) > 0 && string(w.Data) != "null" {
		if err := json.Unmarshal(w.Data, ptr); err != nil {
			return fmt.Errorf("decode %s payload: %w", w.Type, err)
		}
	}

	*m = Metric{
		ID:        w.ID,
		Kind:      w.Type,
		Timestamp: time.UnixMilli(w.Timestamp),
		Success:   w.Success,
		Payload:   derefPayload(ptr),
	}
	if w.DurationMs != nil {
		m.Duration = time.Duration(*w.DurationMs * float64(time.Millisecond))
	}
	return nil
}

func derefPayload(ptr any) Payload {
	switch p := ptr.(type) {
	case *ImageOptimization:
		return *p
	case *APICall:
		return *p
	case *ImageAnalysis:
		return *p
	case *VideoGeneration:
		return *p
	case *SceneGeneration:
		return *p
	case *TTSGeneration:
		return *p
	case *BatchGeneration:
		return *p
	case *UserAction:
		return *p
	}
	return nil
}
