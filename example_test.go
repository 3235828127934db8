package partitionkey

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
)

func ExampleDeterministicPartitionKey() {
	for _, record := range []any{
		nil,
		map[string]any{"partitionKey": map[string]any{"value": 10}},
		map[string]any{"partitionKey": "input key"},
	} {
		key, err := DeterministicPartitionKey(record)
		if err != nil {
			panic(err)
		}
		fmt.Println(key)
	}
	// Output:
	// 0
	// {"value":10}
	// input key
}

func ExampleDeriver_Derive() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	d := New(&Config{
		Presence: PresenceTruthy,
		Logger:   logger,
	})

	key, _ := d.Derive(map[string]any{"partitionKey": 0})
	fmt.Println(len(key))
	key, _ = d.Derive("")
	fmt.Println(key)
	// Output:
	// 128
	// 0
}

func ExampleAggregator() {
	a := NewAggregator(nil)
	for i := 0; i < 3; i++ {
		// records sharing a partition key are packed together
		if _, err := a.PutRecord(map[string]any{"partitionKey": "order-45", "seq": i}); err != nil {
			panic(err)
		}
	}
	entry := a.Drain()
	records, _ := Deaggregate(entry)
	fmt.Println(aws.ToString(entry.PartitionKey), len(records))
	fmt.Println(string(records[0].Data))
	// Output:
	// order-45 3
	// {"partitionKey":"order-45","seq":0}
}
