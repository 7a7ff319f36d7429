package idgen

import (
	"fmt"
	"sync"
	"time"
)

// ============================================================================
// Snowflake ID generator
// ============================================================================
//
// Layout, 64 bits:
//
//	0 - 41 bits timestamp - 10 bits worker - 12 bits sequence
//	|   |                   |                |
//	|   |                   |                +-- sequence within one ms (0-4095)
//	|   |                   +-- worker id (0-1023)
//	|   +-- milliseconds since epoch (about 69 years)
//	+-- sign bit, always 0
//
// IDs from one generator are strictly increasing, also when the wall clock
// steps backwards: the last seen millisecond is reused until time catches up.
//
// ============================================================================

const (
	epoch          = int64(1704067200000) // 2024-01-01 00:00:00 UTC
	workerIDBits   = 10
	sequenceBits   = 12
	MaxWorkerID    = -1 ^ (-1 << workerIDBits)
	maxSequence    = -1 ^ (-1 << sequenceBits)
	workerIDShift  = sequenceBits
	timestampShift = sequenceBits + workerIDBits
)

// Transaction number prefixes.
const (
	PrefixCharge = "CHG"
	PrefixUse    = "USE"
	PrefixEvent  = "EVT"
)

// Snowflake generates ids for one worker. It is safe for concurrent use.
type Snowflake struct {
	mu        sync.Mutex
	timestamp int64
	workerID  int64
	sequence  int64
	now       func() time.Time
}

// NewSnowflake creates a generator; workerID must be in [0, MaxWorkerID].
func NewSnowflake(workerID int64) (*Snowflake, error) {
	if workerID < 0 || workerID > MaxWorkerID {
		return nil, fmt.Errorf("idgen: worker id must be in [0, %d], got %d", MaxWorkerID, workerID)
	}
	return &Snowflake{workerID: workerID, now: time.Now}, nil
}

// NextID returns the next id.
func (s *Snowflake) NextID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UnixMilli()
	if now < s.timestamp {
		now = s.timestamp
	}

	if now == s.timestamp {
		s.sequence = (s.sequence + 1) & maxSequence
		if s.sequence == 0 {
			// sequence exhausted for this millisecond
			now = s.timestamp + 1
		}
	} else {
		s.sequence = 0
	}
	s.timestamp = now

	return ((now - epoch) << timestampShift) |
		(s.workerID << workerIDShift) |
		s.sequence
}

// Number formats a business number: prefix + yyyyMMdd + id, e.g. CHG20240115123145678901234.
func (s *Snowflake) Number(prefix string) string {
	id := s.NextID()
	return fmt.Sprintf("%s%s%d", prefix, s.now().Format("20060102"), id)
}
