package memory

import (
	"encoding/json"
	"fmt"
)

// Bucket names used by snapshotting backends, one row per bucket.
const (
	BucketSamples   = "samples"
	BucketUsers     = "users"
	BucketSettings  = "settings"
	BucketSequences = "sequences"
)

// Buckets lists the snapshot buckets in persistence order.
var Buckets = []string{BucketSamples, BucketUsers, BucketSettings, BucketSequences}

// EncodeBuckets renders each snapshot bucket as a JSON payload.
func EncodeBuckets(snapshot Snapshot) (map[string][]byte, error) {
	out := make(map[string][]byte, len(Buckets))
	for _, bucket := range Buckets {
		var (
			data []byte
			err  error
		)
		switch bucket {
		case BucketSamples:
			data, err = json.Marshal(snapshot.Samples)
		case BucketUsers:
			data, err = json.Marshal(snapshot.Users)
		case BucketSettings:
			data, err = json.Marshal(snapshot.Settings)
		case BucketSequences:
			data, err = json.Marshal(snapshot.Sequences)
		}
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", bucket, err)
		}
		out[bucket] = data
	}
	return out, nil
}

// DecodeBucket unmarshals one bucket payload into the snapshot. Unknown
// buckets and empty payloads are ignored.
func DecodeBucket(snapshot *Snapshot, bucket string, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	var target any
	switch bucket {
	case BucketSamples:
		target = &snapshot.Samples
	case BucketUsers:
		target = &snapshot.Users
	case BucketSettings:
		target = &snapshot.Settings
	case BucketSequences:
		target = &snapshot.Sequences
	default:
		return nil
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("decode %s: %w", bucket, err)
	}
	return nil
}
