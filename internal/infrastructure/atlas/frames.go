package atlas

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"probewatch/internal/core/domain"
	"probewatch/internal/core/ports"

	"go.uber.org/zap"
)

const (
	FrameSubscribe   = "atlas_subscribe"
	FrameSubscribed  = "atlas_subscribed"
	FrameProbeStatus = "atlas_probestatus"
	FrameResult      = "atlas_result"
	FrameError       = "atlas_error"
)

// ErrMalformedFrame marks frames that could not be decoded.
var ErrMalformedFrame = errors.New("malformed stream frame")

// Frame is one `[type, payload]` stream message.
type Frame struct {
	Type    string
	Payload json.RawMessage
}

type subscription struct {
	StreamType   string `json:"stream_type"`
	EnrichProbes bool   `json:"enrichProbes,omitempty"`
	Msm          int    `json:"msm,omitempty"`
}

type probeStatusMessage struct {
	ProbeID   int    `json:"prb_id"`
	Event     string `json:"event"`
	Timestamp int64  `json:"timestamp"`
	Probe     struct {
		ASNv4 *int `json:"asn_v4"`
		ASNv6 *int `json:"asn_v6"`
	} `json:"probe"`
}

// EncodeFrame builds a `[type, payload]` message.
func EncodeFrame(frameType string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal([]interface{}{frameType, payload})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s frame: %w", frameType, err)
	}
	return data, nil
}

// DecodeFrame parses a `[type, payload]` message.
func DecodeFrame(data []byte) (Frame, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(bytes.TrimSpace(data), &parts); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if len(parts) != 2 {
		return Frame{}, fmt.Errorf("%w: expected 2 elements, got %d", ErrMalformedFrame, len(parts))
	}
	var f Frame
	if err := json.Unmarshal(parts[0], &f.Type); err != nil {
		return Frame{}, fmt.Errorf("%w: frame type: %v", ErrMalformedFrame, err)
	}
	f.Payload = parts[1]
	return f, nil
}

func subscriptionFrames(measurements []domain.MeasurementID) ([][]byte, error) {
	subs := []subscription{{StreamType: "probestatus", EnrichProbes: true}}
	for _, msm := range measurements {
		subs = append(subs, subscription{StreamType: "result", Msm: int(msm)})
	}

	frames := make([][]byte, 0, len(subs))
	for _, sub := range subs {
		data, err := EncodeFrame(FrameSubscribe, sub)
		if err != nil {
			return nil, err
		}
		frames = append(frames, data)
	}
	return frames, nil
}

// IntervalSource resolves measurement intervals for streamed results.
type IntervalSource interface {
	MeasurementInterval(ctx context.Context, msm domain.MeasurementID) (time.Duration, error)
}

// FrameRouter turns stream frames into engine submissions.
type FrameRouter struct {
	sink      ports.EventSink
	intervals IntervalSource
	logger    *zap.SugaredLogger
}

// NewFrameRouter creates a router. intervals may be nil, in which case
// results carry no interval and the comparator default applies.
func NewFrameRouter(sink ports.EventSink, intervals IntervalSource, logger *zap.SugaredLogger) *FrameRouter {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &FrameRouter{sink: sink, intervals: intervals, logger: logger}
}

// Route decodes one frame and submits its event. Control frames are logged.
func (r *FrameRouter) Route(ctx context.Context, data []byte) error {
	frame, err := DecodeFrame(data)
	if err != nil {
		return err
	}

	switch frame.Type {
	case FrameProbeStatus:
		ev, err := decodeProbeStatus(frame.Payload)
		if err != nil {
			return err
		}
		return r.sink.SubmitStatus(ctx, ev)

	case FrameResult:
		msg, err := decodeResult(frame.Payload)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		return r.sink.SubmitSnapshot(ctx, msg.toSnapshot(r.interval(ctx, domain.MeasurementID(msg.MeasurementID))))

	case FrameSubscribed:
		r.logger.Infow("stream subscription confirmed", "payload", string(frame.Payload))
		return nil

	case FrameError:
		r.logger.Warnw("stream reported error", "payload", string(frame.Payload))
		return nil

	default:
		r.logger.Debugw("ignoring stream frame", "type", frame.Type)
		return nil
	}
}

func (r *FrameRouter) interval(ctx context.Context, msm domain.MeasurementID) time.Duration {
	if r.intervals == nil || msm <= 0 {
		return 0
	}
	interval, err := r.intervals.MeasurementInterval(ctx, msm)
	if err != nil {
		r.logger.Warnw("measurement interval unavailable, using default", "msm_id", msm, "error", err)
		return 0
	}
	return interval
}

func decodeProbeStatus(payload json.RawMessage) (domain.ProbeStatusEvent, error) {
	var msg probeStatusMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return domain.ProbeStatusEvent{}, fmt.Errorf("%w: probestatus: %v", ErrMalformedFrame, err)
	}
	ev := domain.ProbeStatusEvent{
		ProbeID:   domain.ProbeID(msg.ProbeID),
		Kind:      domain.EventKind(msg.Event),
		Timestamp: unixTime(msg.Timestamp),
	}
	if msg.Probe.ASNv4 != nil {
		ev.ASNv4 = domain.ASN(*msg.Probe.ASNv4)
	}
	if msg.Probe.ASNv6 != nil {
		ev.ASNv6 = domain.ASN(*msg.Probe.ASNv6)
	}
	return ev, nil
}
