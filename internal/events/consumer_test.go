package events

import (
	"context"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
)

func TestSplitMessages(t *testing.T) {
	messages := []redis.XMessage{
		{ID: "1-0", Values: map[string]interface{}{"type": "user.created", "payload": `{"type":"user.created","id":"u1","t":10}`}},
		{ID: "2-0", Values: map[string]interface{}{"type": "user.created"}},
		{ID: "3-0", Values: map[string]interface{}{"payload": "{not json"}},
		{ID: "4-0", Values: map[string]interface{}{"payload": `{"type":"entity.created","id":"e1","t":10}`}},
		{ID: "5-0", Values: map[string]interface{}{"payload": `{"type":"entity.deleted","id":"e2","owner_id":"u1","t":11}`}},
	}

	valid, poison := splitMessages(messages)

	if len(valid) != 2 {
		t.Fatalf("expected 2 valid events, got %d", len(valid))
	}
	if valid[0].streamID != "1-0" || valid[0].event.ID != "u1" {
		t.Errorf("unexpected first event: %+v", valid[0])
	}
	if valid[1].streamID != "5-0" || valid[1].event.OwnerID != "u1" {
		t.Errorf("unexpected second event: %+v", valid[1])
	}
	if valid[0].values["payload"] == nil {
		t.Error("valid events must keep the raw payload for dead-lettering")
	}

	wantReasons := map[string]string{
		"2-0": "invalid_format",
		"3-0": "unmarshal_error",
		"4-0": "validation_error",
	}
	if len(poison) != len(wantReasons) {
		t.Fatalf("expected %d poison messages, got %d", len(wantReasons), len(poison))
	}
	for _, p := range poison {
		if want := wantReasons[p.msg.ID]; p.reason != want {
			t.Errorf("message %s: reason = %q, want %q", p.msg.ID, p.reason, want)
		}
		if p.detail == "" {
			t.Errorf("message %s: empty detail", p.msg.ID)
		}
	}
}

func TestIsGroupExistsError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("BUSYGROUP Consumer Group name already exists"), true},
		{errors.New("BUSYGROUP"), true},
		{errors.New("NOGROUP No such key"), false},
	}
	for _, tt := range tests {
		if got := isGroupExistsError(tt.err); got != tt.want {
			t.Errorf("isGroupExistsError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestNewConsumer_Defaults(t *testing.T) {
	c := NewConsumer(nil, "", "", nil, nil, nil)

	if c.group != DefaultGroup {
		t.Errorf("group = %q, want %q", c.group, DefaultGroup)
	}
	if c.consumerID == "" {
		t.Error("expected a generated consumer ID")
	}
	if c.batchSize != DefaultBatchSize || c.maxRetries != DefaultMaxRetries {
		t.Errorf("unexpected defaults: batch=%d retries=%d", c.batchSize, c.maxRetries)
	}

	c.SetBatchSize(0)
	c.SetRetry(0, 0)
	if c.batchSize != DefaultBatchSize || c.maxRetries != DefaultMaxRetries {
		t.Error("non-positive overrides must be ignored")
	}

	c.SetClaim(0, 0)
	if c.claimInterval != 0 || c.claimIdle != DefaultClaimIdle {
		t.Errorf("unexpected claim settings: %v / %v", c.claimInterval, c.claimIdle)
	}

	if c.maxDeliveries != DefaultMaxDeliveries {
		t.Errorf("maxDeliveries = %d, want %d", c.maxDeliveries, DefaultMaxDeliveries)
	}
	c.SetMaxDeliveries(-1)
	if c.maxDeliveries != DefaultMaxDeliveries {
		t.Error("negative max deliveries must be ignored")
	}
	c.SetMaxDeliveries(0)
	if _, exhausted := c.deliveriesExhausted(context.Background(), "1-0"); exhausted {
		t.Error("zero max deliveries must never dead-letter")
	}
}
