package partitionkey

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	ktypes "github.com/aws/aws-sdk-go-v2/service/kinesis/types"
)

// Entry builds a kinesis.PutRecords entry for record. The data blob is the
// canonical JSON of record and the partition key is derived from it.
func (d *Deriver) Entry(record any) (*ktypes.PutRecordsRequestEntry, error) {
	v, err := ValueOf(record)
	if err != nil {
		return nil, err
	}
	return d.entry(v, v.appendCanonical(nil))
}

// EntryWithData builds a kinesis.PutRecords entry carrying data, keyed by the
// partition key derived from record.
func (d *Deriver) EntryWithData(record any, data []byte) (*ktypes.PutRecordsRequestEntry, error) {
	v, err := ValueOf(record)
	if err != nil {
		return nil, err
	}
	return d.entry(v, data)
}

func (d *Deriver) entry(v Value, data []byte) (*ktypes.PutRecordsRequestEntry, error) {
	partitionKey := d.DeriveValue(v)
	if partitionKey == "" {
		return nil, ErrEmptyPartitionKey
	}
	// the record size limit applies to the total size of the
	// partition key and data blob.
	if len(data)+len(partitionKey) > maxRecordSize {
		return nil, ErrRecordSizeExceeded
	}
	return &ktypes.PutRecordsRequestEntry{
		Data:         data,
		PartitionKey: aws.String(partitionKey),
	}, nil
}
