// Package publish streams finished page units to downstream consumers.
package publish

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Event describes one page unit that reached a terminal state.
type Event struct {
	JobID           string
	Page            int
	Name            string
	State           string
	Kind            string
	Error           string
	AlignmentScore  float64
	ChangesDetected bool
	ChangeCount     int
	OverlayKey      string
	// Record is the JSON encoded diff record, empty for failed units.
	Record []byte
}

// Values flattens e into stream entry fields.
func (e Event) Values() map[string]interface{} {
	v := map[string]interface{}{
		"jobId":           e.JobID,
		"page":            strconv.Itoa(e.Page),
		"state":           e.State,
		"alignmentScore":  strconv.FormatFloat(e.AlignmentScore, 'f', 4, 64),
		"changesDetected": strconv.FormatBool(e.ChangesDetected),
		"changeCount":     strconv.Itoa(e.ChangeCount),
	}
	if e.Name != "" {
		v["name"] = e.Name
	}
	if e.Kind != "" {
		v["kind"] = e.Kind
	}
	if e.Error != "" {
		v["error"] = e.Error
	}
	if e.OverlayKey != "" {
		v["overlayKey"] = e.OverlayKey
	}
	if len(e.Record) > 0 {
		v["record"] = string(e.Record)
	}
	return v
}

// RedisStream appends events to a Redis stream with XADD.
type RedisStream struct {
	rdb    redis.Cmdable
	stream string
	maxLen int64
}

// NewRedisStream returns a publisher that trims the stream to roughly maxLen
// entries (100000 when maxLen <= 0).
func NewRedisStream(rdb redis.Cmdable, stream string, maxLen int64) *RedisStream {
	if maxLen <= 0 {
		maxLen = 100000
	}
	return &RedisStream{rdb: rdb, stream: strings.TrimSpace(stream), maxLen: maxLen}
}

func (p *RedisStream) Publish(ctx context.Context, e Event) error {
	if p == nil || p.rdb == nil {
		return errors.New("redis stream publisher is not initialised")
	}
	if p.stream == "" {
		return errors.New("stream key is empty")
	}
	if strings.TrimSpace(e.JobID) == "" {
		return errors.New("event has no job id")
	}
	return p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: e.Values(),
	}).Err()
}
