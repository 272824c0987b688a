package history

import (
	"github.com/google/uuid"

	"chainguard/internal/traffic"
)

// Default history bounds.
const (
	DefaultRecordLimit = 50
	DefaultBucketLimit = 20
)

// Bucket is one per-tick sample feeding the trend chart.
type Bucket struct {
	Time    string `json:"time"`
	Allowed int    `json:"allowed"`
	Blocked int    `json:"blocked"`
}

// Store holds the most recent records and buckets.
type Store struct {
	records *Ring[traffic.Record]
	buckets *Ring[Bucket]
}

// NewStore creates a store keeping recordLimit records and bucketLimit
// buckets. Non-positive limits fall back to the defaults.
func NewStore(recordLimit, bucketLimit int) *Store {
	if recordLimit <= 0 {
		recordLimit = DefaultRecordLimit
	}
	if bucketLimit <= 0 {
		bucketLimit = DefaultBucketLimit
	}
	return &Store{
		records: NewRing[traffic.Record](recordLimit),
		buckets: NewRing[Bucket](bucketLimit),
	}
}

// Append adds a record, dropping the oldest beyond the limit.
func (s *Store) Append(r traffic.Record) {
	s.records.Push(r)
}

// AppendBucket adds one chart sample, dropping the oldest beyond the limit.
func (s *Store) AppendBucket(allowedDelta, blockedDelta int, label string) {
	s.buckets.Push(Bucket{Time: label, Allowed: allowedDelta, Blocked: blockedDelta})
}

// Records returns the stored records, most recent first.
func (s *Store) Records() []traffic.Record {
	return s.records.Newest()
}

// Buckets returns the stored buckets in chronological order.
func (s *Store) Buckets() []Bucket {
	return s.buckets.Oldest()
}

// Find looks up a stored record by id.
func (s *Store) Find(id uuid.UUID) (traffic.Record, bool) {
	for i := s.records.Len() - 1; i >= 0; i-- {
		r, _ := s.records.At(i)
		if r.ID == id {
			return r, true
		}
	}
	return traffic.Record{}, false
}

// RecordMetrics returns record ring statistics.
func (s *Store) RecordMetrics() RingMetrics {
	return s.records.Metrics()
}

// BucketMetrics returns bucket ring statistics.
func (s *Store) BucketMetrics() RingMetrics {
	return s.buckets.Metrics()
}
