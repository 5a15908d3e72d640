package paginate

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// MergeConsumedCapacity combines two ConsumedCapacity reports from
// successive pages of the same operation, per section 4.2: the top-level
// CapacityUnits sum, the Table capacity sums, and the per-index
// (local/global secondary index) capacity maps merge by union of index
// name with summed units. a and b must report the same TableName, or
// nil is acceptable for either (the other is returned as a shallow copy whose
// pointer and map fields are shared with the input).
func MergeConsumedCapacity(a, b *types.ConsumedCapacity) (*types.ConsumedCapacity, error) {
	if a == nil {
		return copyConsumedCapacity(b), nil
	}
	if b == nil {
		return copyConsumedCapacity(a), nil
	}
	if a.TableName != nil && b.TableName != nil && *a.TableName != *b.TableName {
		return nil, fmt.Errorf("paginate: cannot merge consumed capacity for different tables %q and %q", *a.TableName, *b.TableName)
	}

	merged := &types.ConsumedCapacity{
		CapacityUnits:      sumFloatPtr(a.CapacityUnits, b.CapacityUnits),
		ReadCapacityUnits:  sumFloatPtr(a.ReadCapacityUnits, b.ReadCapacityUnits),
		WriteCapacityUnits: sumFloatPtr(a.WriteCapacityUnits, b.WriteCapacityUnits),
		Table:              mergeCapacity(a.Table, b.Table),
	}
	if a.TableName != nil {
		merged.TableName = a.TableName
	} else {
		merged.TableName = b.TableName
	}
	merged.LocalSecondaryIndexes = mergeIndexMap(a.LocalSecondaryIndexes, b.LocalSecondaryIndexes)
	merged.GlobalSecondaryIndexes = mergeIndexMap(a.GlobalSecondaryIndexes, b.GlobalSecondaryIndexes)
	return merged, nil
}

func mergeIndexMap(a, b map[string]types.Capacity) map[string]types.Capacity {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make(map[string]types.Capacity, len(a)+len(b))
	for name, cap := range a {
		out[name] = cap
	}
	for name, cap := range b {
		if existing, ok := out[name]; ok {
			merged := mergeCapacity(&existing, &cap)
			out[name] = *merged
		} else {
			out[name] = cap
		}
	}
	return out
}

func mergeCapacity(a, b *types.Capacity) *types.Capacity {
	if a == nil && b == nil {
		return nil
	}
	var av, bv types.Capacity
	if a != nil {
		av = *a
	}
	if b != nil {
		bv = *b
	}
	return &types.Capacity{
		CapacityUnits:      sumFloatPtr(av.CapacityUnits, bv.CapacityUnits),
		ReadCapacityUnits:  sumFloatPtr(av.ReadCapacityUnits, bv.ReadCapacityUnits),
		WriteCapacityUnits: sumFloatPtr(av.WriteCapacityUnits, bv.WriteCapacityUnits),
	}
}

func sumFloatPtr(a, b *float64) *float64 {
	if a == nil && b == nil {
		return nil
	}
	var sum float64
	if a != nil {
		sum += *a
	}
	if b != nil {
		sum += *b
	}
	return &sum
}

func copyConsumedCapacity(c *types.ConsumedCapacity) *types.ConsumedCapacity {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}
