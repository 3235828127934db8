package partitionkey

import (
	"fmt"
	"log/slog"
	"math"
)

// Limits and defaults follow the Kinesis Producer Library.
const (
	maxRecordSize              = 1 << 20 // 1MiB
	defaultAggregateBatchSize  = 51200   // 50KB
	defaultAggregateBatchCount = math.MaxInt32

	// a key of MaxPartitionKeyLength UTF-16 units takes up to 3 bytes per unit
	maxPartitionKeyBytes  = 3 * MaxPartitionKeyLength
	maxAggregateBatchSize = maxRecordSize - maxPartitionKeyBytes
)

// Presence decides when a record, or its partition key field, counts as
// absent.
type Presence int

const (
	// PresenceExplicit treats only null as absent. A partition key of 0, ""
	// or false is used as given.
	PresenceExplicit Presence = iota
	// PresenceTruthy treats null, false, 0 and "" as absent, which is how
	// JavaScript producers have historically derived keys.
	PresenceTruthy
)

func (p Presence) String() string {
	switch p {
	case PresenceExplicit:
		return "explicit"
	case PresenceTruthy:
		return "truthy"
	}
	return fmt.Sprintf("Presence(%d)", int(p))
}

// Config is the Deriver configuration.
type Config struct {
	// KeyField is the record field holding an explicit partition key.
	// Defaults to "partitionKey".
	KeyField string

	// MaxKeyLength is the longest explicit partition key returned as is,
	// counted in UTF-16 code units. Longer keys are hashed.
	// Defaults to 256, which is also the upper bound.
	MaxKeyLength int

	// Presence selects how absent records and keys are detected.
	// Defaults to PresenceExplicit.
	Presence Presence

	// AggregateBatchCount is the maximum number of user records packed
	// into one aggregated record. Defaults to math.MaxInt32.
	AggregateBatchCount int

	// AggregateBatchSize is the maximum size in bytes of an aggregated
	// record. Records that cannot fit go out as plain entries.
	// Defaults to 50KB.
	AggregateBatchSize int

	// Logger receives debug output. Defaults to a discarding logger.
	Logger *slog.Logger
}

// defaults for configuration
func (c *Config) defaults() {
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	if c.KeyField == "" {
		c.KeyField = DefaultKeyField
	}
	if c.MaxKeyLength == 0 {
		c.MaxKeyLength = MaxPartitionKeyLength
	}
	falseOrPanic(
		c.MaxKeyLength < 0 || c.MaxKeyLength > MaxPartitionKeyLength,
		fmt.Sprintf("partitionkey: MaxKeyLength must be between 1 and %d current MaxKeyLength: %d", MaxPartitionKeyLength, c.MaxKeyLength),
	)
	falseOrPanic(
		c.Presence != PresenceExplicit && c.Presence != PresenceTruthy,
		fmt.Sprintf("partitionkey: unknown Presence current Presence: %s", c.Presence),
	)
	if c.AggregateBatchCount == 0 {
		c.AggregateBatchCount = defaultAggregateBatchCount
	}
	falseOrPanic(c.AggregateBatchCount < 0, "partitionkey: AggregateBatchCount must not be negative")
	if c.AggregateBatchSize == 0 {
		c.AggregateBatchSize = defaultAggregateBatchSize
	}
	falseOrPanic(
		c.AggregateBatchSize < 0 || c.AggregateBatchSize > maxAggregateBatchSize,
		fmt.Sprintf("partitionkey: AggregateBatchSize must be between 1 and %d current AggregateBatchSize: %d", maxAggregateBatchSize, c.AggregateBatchSize),
	)
}

func falseOrPanic(p bool, msg string) {
	if p {
		panic(msg)
	}
}
