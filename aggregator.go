package partitionkey

import (
	"bytes"
	"crypto/md5"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	ktypes "github.com/aws/aws-sdk-go-v2/service/kinesis/types"
	"google.golang.org/protobuf/encoding/protowire"
)

var (
	magicNumber = []byte{0xF3, 0x89, 0x9A, 0xC2}
)

// Field numbers of the KPL aggregation messages:
//
//	message AggregatedRecord {
//	  repeated string partition_key_table     = 1;
//	  repeated string explicit_hash_key_table = 2;
//	  repeated Record records                 = 3;
//	}
//	message Record {
//	  required uint64 partition_key_index     = 1;
//	  optional uint64 explicit_hash_key_index = 2;
//	  required bytes  data                    = 3;
//	  repeated Tag    tags                    = 4;
//	}
const (
	fieldPartitionKeyTable protowire.Number = 1
	fieldRecords           protowire.Number = 3
	fieldPartitionKeyIndex protowire.Number = 1
	fieldData              protowire.Number = 3
)

// Aggregator packs user records into KPL aggregated records.
//
// Every aggregated record carries a single partition key, so the whole blob is
// routed exactly where each of its user records would have been. An Aggregator
// is not safe for concurrent use.
type Aggregator struct {
	deriver      *Deriver
	partitionKey string
	buf          [][]byte
	nbytes       int
}

// NewAggregator creates an aggregator deriving keys with d, or with the
// default configuration when d is nil.
func NewAggregator(d *Deriver) *Aggregator {
	if d == nil {
		d = defaultDeriver
	}
	a := &Aggregator{deriver: d}
	a.nbytes = a.calculateInitialSize()
	return a
}

// calculateInitialSize computes the size of an empty aggregated record:
// the magic number and the MD5 checksum.
func (a *Aggregator) calculateInitialSize() int {
	return len(magicNumber) + md5.Size
}

// Size return how many bytes if all records in the aggregator stored serialized to KPL Aggregated Record format.
// Including the magic number, protobuf message and checksum.
func (a *Aggregator) Size() int {
	return a.nbytes
}

// Count return how many records stored in the aggregator.
func (a *Aggregator) Count() int {
	return len(a.buf)
}

// PartitionKey returns the key shared by the buffered records, or "" when
// the aggregator is empty.
func (a *Aggregator) PartitionKey() string {
	return a.partitionKey
}

// CalculateAddSize calculates the byte size increment that would be added to the final
// serialized aggregated record if the given data is added. The first record also pays
// for the partition key table entry.
// This method does not modify the aggregator state.
func (a *Aggregator) CalculateAddSize(data []byte, partitionKey string) int {
	addSize := 0
	if a.Count() == 0 {
		// Tag-Length-Value size for repeated string partition_key_table = 1 in AggregatedRecord;
		addSize += protowire.SizeTag(fieldPartitionKeyTable)
		addSize += protowire.SizeBytes(len(partitionKey))
	}

	// Record wire size
	recordSize := 0
	// Tag-Value size for required uint64 partition_key_index = 1 in message Record;
	recordSize += protowire.SizeTag(fieldPartitionKeyIndex)
	recordSize += protowire.SizeVarint(0)
	// Tag-Length-Value size for required bytes data = 3 in message Record;
	recordSize += protowire.SizeTag(fieldData)
	recordSize += protowire.SizeBytes(len(data))

	// Tag-Length-Value size for repeated Record records = 3 in message AggregatedRecord;
	addSize += protowire.SizeTag(fieldRecords)
	addSize += protowire.SizeBytes(recordSize)

	return addSize
}

// Put appends data under partitionKey. addSize must come from CalculateAddSize.
// Put panics if partitionKey differs from the key already buffered; drain first.
func (a *Aggregator) Put(data []byte, partitionKey string, addSize int) {
	if a.Count() == 0 {
		a.partitionKey = partitionKey
	} else if partitionKey != a.partitionKey {
		panic(fmt.Sprintf("partitionkey: aggregator holds PartitionKey %q current PartitionKey: %q", a.partitionKey, partitionKey))
	}
	a.buf = append(a.buf, data)
	a.nbytes += addSize
}

// PutRecord derives the entry of record and adds it to the aggregator.
//
// It returns the entries that are complete and ready to be sent, in order:
// the previous aggregated record when record cannot join it (different
// partition key, size or count limit reached), and record itself as a plain
// entry when it is too large to aggregate.
func (a *Aggregator) PutRecord(record any) ([]*ktypes.PutRecordsRequestEntry, error) {
	entry, err := a.deriver.Entry(record)
	if err != nil {
		return nil, err
	}
	return a.PutEntry(entry), nil
}

// PutEntry adds an already built entry. See PutRecord.
func (a *Aggregator) PutEntry(entry *ktypes.PutRecordsRequestEntry) (out []*ktypes.PutRecordsRequestEntry) {
	partitionKey := aws.ToString(entry.PartitionKey)
	needToDrain := a.Count() > 0 &&
		(partitionKey != a.partitionKey ||
			a.Count() >= a.deriver.AggregateBatchCount ||
			a.Size()+a.CalculateAddSize(entry.Data, partitionKey) > a.deriver.AggregateBatchSize)
	if needToDrain {
		out = append(out, a.Drain())
	}

	addSize := a.CalculateAddSize(entry.Data, partitionKey)
	if a.Size()+addSize > a.deriver.AggregateBatchSize {
		a.deriver.Logger.Debug("record too large to aggregate", "size", len(entry.Data), "partitionKey", partitionKey)
		return append(out, entry)
	}
	a.Put(entry.Data, partitionKey, addSize)
	return out
}

// Drain create an aggregated `kinesis.PutRecordsRequestEntry`
// that compatible with the KCL's deaggregation logic.
// It returns nil when the aggregator is empty.
func (a *Aggregator) Drain() *ktypes.PutRecordsRequestEntry {
	if a.Count() == 0 {
		return nil
	}

	aggregatedRecordData := a.marshal()
	checkSum := md5.Sum(aggregatedRecordData)

	var buffer bytes.Buffer
	buffer.Grow(len(magicNumber) + len(aggregatedRecordData) + len(checkSum))
	buffer.Write(magicNumber)
	buffer.Write(aggregatedRecordData)
	buffer.Write(checkSum[:])

	entry := &ktypes.PutRecordsRequestEntry{
		Data:         buffer.Bytes(),
		PartitionKey: aws.String(a.partitionKey),
	}
	a.clear()
	return entry
}

// marshal encodes the buffered records as an AggregatedRecord message.
func (a *Aggregator) marshal() []byte {
	b := make([]byte, 0, a.nbytes-a.calculateInitialSize())
	b = protowire.AppendTag(b, fieldPartitionKeyTable, protowire.BytesType)
	b = protowire.AppendString(b, a.partitionKey)
	for _, data := range a.buf {
		recordSize := protowire.SizeTag(fieldPartitionKeyIndex) + protowire.SizeVarint(0) +
			protowire.SizeTag(fieldData) + protowire.SizeBytes(len(data))
		b = protowire.AppendTag(b, fieldRecords, protowire.BytesType)
		b = protowire.AppendVarint(b, uint64(recordSize))
		b = protowire.AppendTag(b, fieldPartitionKeyIndex, protowire.VarintType)
		b = protowire.AppendVarint(b, 0)
		b = protowire.AppendTag(b, fieldData, protowire.BytesType)
		b = protowire.AppendBytes(b, data)
	}
	return b
}

func (a *Aggregator) clear() {
	a.buf = nil
	a.partitionKey = ""
	a.nbytes = a.calculateInitialSize()
}

// IsAggregated reports whether entry holds a KPL aggregated record.
func IsAggregated(entry *ktypes.PutRecordsRequestEntry) bool {
	return bytes.HasPrefix(entry.Data, magicNumber)
}

// Deaggregate extracts the user records of an aggregated entry, checking the
// magic number and the checksum. Errors wrap ErrInvalidAggregate.
func Deaggregate(entry *ktypes.PutRecordsRequestEntry) ([]ktypes.PutRecordsRequestEntry, error) {
	if !IsAggregated(entry) || len(entry.Data) < len(magicNumber)+md5.Size {
		return nil, fmt.Errorf("%w: missing magic number", ErrInvalidAggregate)
	}
	src := entry.Data[len(magicNumber) : len(entry.Data)-md5.Size]
	checkSum := md5.Sum(src)
	if !bytes.Equal(checkSum[:], entry.Data[len(entry.Data)-md5.Size:]) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrInvalidAggregate)
	}

	keys, records, err := unmarshalAggregatedRecord(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAggregate, err)
	}
	out := make([]ktypes.PutRecordsRequestEntry, 0, len(records))
	for i, r := range records {
		if r.partitionKeyIndex >= uint64(len(keys)) {
			return nil, fmt.Errorf("%w: record %d has partition key index %d out of %d", ErrInvalidAggregate, i, r.partitionKeyIndex, len(keys))
		}
		out = append(out, ktypes.PutRecordsRequestEntry{
			Data:         r.data,
			PartitionKey: aws.String(keys[r.partitionKeyIndex]),
		})
	}
	return out, nil
}

type userRecord struct {
	partitionKeyIndex uint64
	data              []byte
}

func unmarshalAggregatedRecord(b []byte) (keys []string, records []userRecord, err error) {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, nil, protowire.ParseError(n)
		}
		b = b[n:]
		switch {
		case num == fieldPartitionKeyTable && typ == protowire.BytesType:
			key, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, nil, protowire.ParseError(n)
			}
			keys = append(keys, key)
			b = b[n:]
		case num == fieldRecords && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, nil, protowire.ParseError(n)
			}
			r, err := unmarshalRecord(raw)
			if err != nil {
				return nil, nil, err
			}
			records = append(records, r)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, nil, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return keys, records, nil
}

func unmarshalRecord(b []byte) (r userRecord, err error) {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return r, protowire.ParseError(n)
		}
		b = b[n:]
		switch {
		case num == fieldPartitionKeyIndex && typ == protowire.VarintType:
			r.partitionKeyIndex, n = protowire.ConsumeVarint(b)
		case num == fieldData && typ == protowire.BytesType:
			r.data, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return r, protowire.ParseError(n)
		}
		b = b[n:]
	}
	return r, nil
}
