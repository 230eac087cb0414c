package sync

import (
	"fmt"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// referenceShardIndex computes the hash the way the gateways do: unbounded
// accumulation, one modulo at the end.
func referenceShardIndex(key string, numShards int) int {
	h := big.NewInt(0)
	eleven := big.NewInt(11)
	for i := 0; i < len(key); i++ {
		b := int64(key[i])
		h.Add(h, big.NewInt(b<<4+b>>4))
		h.Mul(h, eleven)
	}
	return int(h.Mod(h, big.NewInt(int64(numShards))).Int64())
}

var hashKeys = []string{
	"",
	"bucket1",
	"my-bucket",
	"user:alice",
	"user:bob",
	".rgw.buckets",
	"a",
	"zz-very-long-bucket-name-with-dashes-0123456789",
	"bücket-ümlaut",
	"日本語バケット",
}

func TestShardIndexDeterminism(t *testing.T) {
	for _, key := range hashKeys {
		first := ShardIndex(key, 64)
		for i := 0; i < 10; i++ {
			assert.Equal(t, first, ShardIndex(key, 64), "key %q", key)
		}
	}
}

func TestShardIndexRange(t *testing.T) {
	for _, n := range []int{1, 2, 3, 5, 16, 64, 128, 4096} {
		for _, key := range hashKeys {
			got := ShardIndex(key, n)
			assert.GreaterOrEqual(t, got, 0, "key %q shards %d", key, n)
			assert.Less(t, got, n, "key %q shards %d", key, n)
		}
	}
}

func TestShardIndexMatchesUnboundedReference(t *testing.T) {
	for _, n := range []int{1, 3, 16, 64, 128, 509, 4096} {
		for _, key := range hashKeys {
			t.Run(fmt.Sprintf("%s/%d", key, n), func(t *testing.T) {
				require.Equal(t, referenceShardIndex(key, n), ShardIndex(key, n))
			})
		}
	}
}

// Pinned from the reference rolling hash over the UTF-8 bytes of "bucket1":
// the unbounded accumulator ends at 34285187563, and 34285187563 mod 3 = 1.
func TestShardIndexPinnedFixture(t *testing.T) {
	assert.Equal(t, 1, ShardIndex("bucket1", 3))
}
