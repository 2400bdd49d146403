package sync

import (
	"encoding/binary"
	"fmt"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"
	"github.com/spaolacci/murmur3"
)

// ring is a consistent hash ring over the partitions [0, size).
type ring struct {
	hashRing *treemap.Map

	// minPartition caches the partition of the min entry in hashRing, since
	// treemap.Map.Min() is O(log n).
	minPartition int
}

// newRing returns a consistent hash ring with replicationFactor virtual
// entries per partition. Partition names are derived from prefix so that rings
// of the same size but different purpose do not collide.
func newRing(prefix string, size int, replicationFactor uint) *ring {
	hashRing := treemap.NewWith(utils.Int64Comparator)
	for partition := 0; partition < size; partition++ {
		nameHash, _ := murmur3.Sum128([]byte(fmt.Sprintf("%s%d", prefix, partition)))

		var seed [12]byte
		binary.LittleEndian.PutUint64(seed[:8], nameHash)
		for i := 0; i < int(replicationFactor); i++ {
			binary.LittleEndian.PutUint32(seed[8:], uint32(i))
			hash, _ := murmur3.Sum128(seed[:])
			hashRing.Put(int64(hash), partition)
		}
	}

	r := &ring{hashRing: hashRing}
	if _, minPartition := hashRing.Min(); minPartition != nil {
		r.minPartition = minPartition.(int)
	}
	return r
}

// shard consistently hashes the key to a partition
func (r *ring) shard(key []byte) int {
	raw, _ := murmur3.Sum128(key)
	_, partition := r.hashRing.Ceiling(int64(raw))
	if partition != nil {
		return partition.(int)
	}
	return r.minPartition
}
