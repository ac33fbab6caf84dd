package cache

import (
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestKeys(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"user", userKey("abc"), "user:abc"},
		{"entity", entityKey("abc"), "entity:abc"},
		{"negative user", negativeKey(userKey("abc")), "user:abc:neg"},
		{"negative entity", negativeKey(entityKey("abc")), "entity:abc:neg"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestKeys_NoCollisionBetweenTypes(t *testing.T) {
	t.Parallel()

	if userKey("same-id") == entityKey("same-id") {
		t.Error("user and entity keys must not collide")
	}
}

func TestNewWithClient_Options(t *testing.T) {
	t.Parallel()

	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	defer client.Close()

	c := NewWithClient(client)
	if c.ttl != DefaultTTL || c.negativeTTL != DefaultNegativeTTL {
		t.Errorf("defaults not applied: ttl=%v neg=%v", c.ttl, c.negativeTTL)
	}

	c = NewWithClient(client, WithTTL(time.Minute), WithNegativeTTL(5*time.Second))
	if c.ttl != time.Minute {
		t.Errorf("ttl = %v, want 1m", c.ttl)
	}
	if c.negativeTTL != 5*time.Second {
		t.Errorf("negativeTTL = %v, want 5s", c.negativeTTL)
	}

	c = NewWithClient(client, WithTTL(0), WithNegativeTTL(-1))
	if c.ttl != DefaultTTL || c.negativeTTL != DefaultNegativeTTL {
		t.Error("non-positive TTLs should be ignored")
	}
}
