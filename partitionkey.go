// Deterministic partition keys for Amazon Kinesis
// Derives the same partition key for the same record, every time and on every
// producer, so records land on a consistent shard without coordination.
//
// A record with a "partitionKey" field uses that value, serialized to JSON when
// it is not a string. Keys longer than 256 characters, and records without a
// key, are replaced by the hex SHA3-512 digest of their canonical JSON.
package partitionkey

import (
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/sha3"
)

const (
	// TrivialPartitionKey is returned for absent records.
	TrivialPartitionKey = "0"
	// MaxPartitionKeyLength is the longest key returned without hashing.
	MaxPartitionKeyLength = 256
	// DefaultKeyField names the record field holding an explicit key.
	DefaultKeyField = "partitionKey"
)

// Errors
var (
	ErrSerialization      = errors.New("Unable to serialize record")
	ErrEmptyPartitionKey  = errors.New("PartitionKey must not be empty")
	ErrRecordSizeExceeded = errors.New("Data must be less than or equal to 1MB in size")
	ErrInvalidAggregate   = errors.New("Invalid aggregated record")
)

var defaultDeriver = New(&Config{})

// DeterministicPartitionKey derives the partition key of record using the
// default configuration.
func DeterministicPartitionKey(record any) (string, error) {
	return defaultDeriver.Derive(record)
}

// Deriver derives partition keys. It holds no mutable state and is safe for
// concurrent use.
type Deriver struct {
	*Config
}

// New creates a Deriver with the given config. The config is copied, so
// later changes to it have no effect.
func New(config *Config) *Deriver {
	c := Config{}
	if config != nil {
		c = *config
	}
	c.defaults()
	return &Deriver{Config: &c}
}

// Derive returns the partition key of record. It fails only when record
// cannot be serialized, with an error wrapping ErrSerialization.
func (d *Deriver) Derive(record any) (string, error) {
	v, err := ValueOf(record)
	if err != nil {
		return "", err
	}
	return d.DeriveValue(v), nil
}

// DeriveValue returns the partition key of an already normalized record.
func (d *Deriver) DeriveValue(v Value) string {
	if !d.present(v) {
		return TrivialPartitionKey
	}

	var candidate, reason string
	if pk, ok := v.Field(d.KeyField); ok && d.present(pk) {
		if pk.kind == KindString {
			candidate = pk.text
		} else {
			candidate = pk.String()
		}
		if keyLength(candidate) <= d.MaxKeyLength {
			return candidate
		}
		reason = "partition key too long"
	} else {
		candidate = v.String()
		reason = "no partition key"
	}

	d.Logger.Debug("hashed partition key", "reason", reason, "length", keyLength(candidate))
	return hashKey(candidate)
}

func (d *Deriver) present(v Value) bool {
	if d.Presence == PresenceTruthy {
		return v.truthy()
	}
	return v.kind != KindNull
}

// hashKey returns the SHA3-512 digest of candidate as 128 lowercase hex digits.
func hashKey(candidate string) string {
	sum := sha3.Sum512([]byte(candidate))
	return hex.EncodeToString(sum[:])
}
