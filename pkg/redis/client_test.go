package redis

import (
	"testing"

	"github.com/gu-corp/nft-cart-backend/pkg/config"
)

func TestBuildKeyNamespacing(t *testing.T) {
	t.Parallel()

	c := &Client{}
	if got := c.CartStateKey("0xABCdef"); got != "nftcart:cart:0xabcdef" {
		t.Fatalf("unexpected cart key: %s", got)
	}
	if got := c.IdempotencyKey("wallet|POST|/api/v1/cart/checkout", "key-1"); got != "nftcart:idempotency:wallet|POST|/api/v1/cart/checkout:key-1" {
		t.Fatalf("unexpected idempotency key: %s", got)
	}
}

func TestOptionsFromConfigRequiresEndpoint(t *testing.T) {
	t.Parallel()

	if _, err := optionsFromConfig(config.RedisConfig{}); err == nil {
		t.Fatal("expected error when neither url nor address is set")
	}
}

func TestOptionsFromConfigAddress(t *testing.T) {
	t.Parallel()

	opts, err := optionsFromConfig(config.RedisConfig{Address: "localhost:6379", DB: 2, PoolSize: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Addr != "localhost:6379" || opts.DB != 2 || opts.PoolSize != 5 {
		t.Fatalf("options not applied: %+v", opts)
	}
}

func TestOptionsFromConfigURL(t *testing.T) {
	t.Parallel()

	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://:pw@example.com:6380/1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Addr != "example.com:6380" || opts.DB != 1 || opts.Password != "pw" {
		t.Fatalf("url not parsed: %+v", opts)
	}
}
