package memory

import (
	"fmt"
	"math/bits"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/spaghettifunk/portrait/engine/containers"
	"github.com/spaghettifunk/portrait/engine/core"
)

const minBucketSize = 16

/** @brief The configuration for a buffer pool. */
type BufferPoolConfig struct {
	/** @brief The largest buffer size retained by the pool. Rounded up to a power of two. */
	MaxBufferSize int
	/** @brief How many free buffers each size bucket keeps around. */
	MaxBuffersPerBucket int
	/** @brief Hard ceiling for a single rental. Larger requests fail. */
	MaxRentSize int
}

// BufferPool hands out byte slices grouped in power-of-two buckets. Each
// bucket retains a bounded number of returned buffers; anything beyond that,
// or larger than MaxBufferSize, is left to the garbage collector.
type BufferPool struct {
	config  BufferPoolConfig
	mu      sync.Mutex
	buckets []*containers.RingQueue[[]byte]

	outstanding atomic.Int64
}

func NewBufferPool(config BufferPoolConfig) (*BufferPool, error) {
	if config.MaxBufferSize < minBucketSize {
		err := fmt.Errorf("func NewBufferPool - config.MaxBufferSize must be >= %d", minBucketSize)
		core.LogError(err.Error())
		return nil, err
	}
	if config.MaxBuffersPerBucket <= 0 {
		err := fmt.Errorf("func NewBufferPool - config.MaxBuffersPerBucket must be > 0")
		core.LogError(err.Error())
		return nil, err
	}
	if config.MaxRentSize < config.MaxBufferSize {
		config.MaxRentSize = config.MaxBufferSize
	}

	count, _ := bucketFor(config.MaxBufferSize)
	count++
	bp := &BufferPool{
		config:  config,
		buckets: make([]*containers.RingQueue[[]byte], count),
	}
	for i := range bp.buckets {
		bp.buckets[i] = containers.NewRingQueue[[]byte](config.MaxBuffersPerBucket)
	}
	return bp, nil
}

// bucketFor returns the bucket index serving n bytes and that bucket's buffer size.
func bucketFor(n int) (int, int) {
	if n <= minBucketSize {
		return 0, minBucketSize
	}
	idx := bits.Len(uint(n-1)) - bits.Len(uint(minBucketSize-1))
	return idx, minBucketSize << idx
}

func (bp *BufferPool) Config() BufferPoolConfig {
	return bp.config
}

// Rent returns a slice of length n. Contents are not zeroed.
func (bp *BufferPool) Rent(n int) ([]byte, error) {
	if n < 0 || n > bp.config.MaxRentSize {
		return nil, fmt.Errorf("%w: requested %d bytes (limit %s)", core.ErrAllocationFailure, n, humanize.IBytes(uint64(bp.config.MaxRentSize)))
	}

	idx, size := bucketFor(n)
	if idx >= len(bp.buckets) {
		core.LogDebug("buffer pool: %s exceeds the pooled maximum, allocating directly", humanize.IBytes(uint64(n)))
		bp.outstanding.Add(1)
		return make([]byte, n), nil
	}

	bp.mu.Lock()
	buf, err := bp.buckets[idx].Dequeue()
	bp.mu.Unlock()
	if err != nil {
		buf = make([]byte, size)
	}
	bp.outstanding.Add(1)
	return buf[:n], nil
}

// Return hands a rented buffer back. Buffers that do not belong to a bucket
// or whose bucket is already full are dropped.
func (bp *BufferPool) Return(buf []byte) {
	if buf == nil {
		return
	}
	bp.outstanding.Add(-1)

	c := cap(buf)
	if c < minBucketSize || c&(c-1) != 0 {
		return
	}
	idx, _ := bucketFor(c)
	if idx >= len(bp.buckets) {
		return
	}

	bp.mu.Lock()
	_ = bp.buckets[idx].Enqueue(buf[:c])
	bp.mu.Unlock()
}

// Outstanding reports how many rented buffers have not been returned yet.
func (bp *BufferPool) Outstanding() int {
	return int(bp.outstanding.Load())
}

// Retained reports how many free buffers the pool currently holds.
func (bp *BufferPool) Retained() int {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	total := 0
	for _, b := range bp.buckets {
		total += b.Len()
	}
	return total
}
