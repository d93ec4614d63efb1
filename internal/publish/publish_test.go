package publish

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
)

func TestEvent_Values(t *testing.T) {
	completed := Event{
		JobID:           "j1",
		Page:            4,
		Name:            "A-101",
		State:           "completed",
		AlignmentScore:  0.87654,
		ChangesDetected: true,
		ChangeCount:     2,
		OverlayKey:      "j1/page-0004.png",
		Record:          []byte(`{"page_number":4}`),
	}
	v := completed.Values()
	want := map[string]string{
		"jobId":           "j1",
		"page":            "4",
		"name":            "A-101",
		"state":           "completed",
		"alignmentScore":  "0.8765",
		"changesDetected": "true",
		"changeCount":     "2",
		"overlayKey":      "j1/page-0004.png",
		"record":          `{"page_number":4}`,
	}
	for k, w := range want {
		if v[k] != w {
			t.Errorf("%s: got %v, want %q", k, v[k], w)
		}
	}
	if _, ok := v["error"]; ok {
		t.Error("completed event should not carry an error field")
	}

	failed := Event{JobID: "j1", Page: 3, State: "failed", Kind: "structural_input", Error: "corrupt"}.Values()
	if failed["kind"] != "structural_input" || failed["error"] != "corrupt" {
		t.Errorf("failed event: %v", failed)
	}
	if _, ok := failed["record"]; ok {
		t.Error("failed event should not carry a record")
	}
}

func TestRedisStream_Validation(t *testing.T) {
	ctx := context.Background()
	var nilPub *RedisStream
	if err := nilPub.Publish(ctx, Event{JobID: "j"}); err == nil {
		t.Error("expected error for nil publisher")
	}

	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer rdb.Close()
	if err := NewRedisStream(rdb, " ", 0).Publish(ctx, Event{JobID: "j"}); err == nil {
		t.Error("expected error for empty stream key")
	}
	if err := NewRedisStream(rdb, "drawdiff:results", 0).Publish(ctx, Event{}); err == nil {
		t.Error("expected error for missing job id")
	}
}
