package sync

// ShardIndex maps a key to a log shard. It must agree with the partitioning
// the gateways use themselves: a rolling hash over the UTF-8 bytes of key,
// h = (h + (b<<4) + (b>>4)) * 11, taken mod numShards.
//
// The gateways accumulate h without bound before the final modulo. Modulo
// distributes over addition and multiplication, so reducing after every step
// keeps the computation in fixed-width arithmetic with an identical result.
// numShards must be > 0.
func ShardIndex(key string, numShards int) int {
	n := uint64(numShards)
	var h uint64
	for i := 0; i < len(key); i++ {
		b := uint64(key[i])
		h = (h + (b << 4) + (b >> 4)) * 11 % n
	}
	return int(h)
}
