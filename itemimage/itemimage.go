// Package itemimage decodes newline-delimited JSON load records into the
// operations batch.Writer replays against a table.
package itemimage

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	json "github.com/goccy/go-json"
)

// OperationType is the kind of write a load record describes.
type OperationType int

const (
	OpPut OperationType = iota
	OpDelete
	OpUpdate
)

// Operation is one decoded load record: a Put or Delete that feeds
// batch.Engine directly, or an Update that batch.Writer applies via
// UpdateItem since it has no batch API.
type Operation struct {
	Type     OperationType
	Keys     map[string]types.AttributeValue
	NewImage map[string]types.AttributeValue
	OldImage map[string]types.AttributeValue
}

// ErrCorrupt is returned when a line cannot be parsed into an Operation.
var ErrCorrupt = fmt.Errorf("corrupt line")

// Decoder decodes one NDJSON line into an Operation.
type Decoder interface {
	Decode(line []byte) (Operation, error)
}

// JSONDecoder decodes the two load-record shapes a bulk export or
// change-stream dump commonly uses.
type JSONDecoder struct{}

// NewJSONDecoder returns a ready-to-use JSONDecoder.
func NewJSONDecoder() *JSONDecoder {
	return &JSONDecoder{}
}

// Decode parses line into an Operation.
//
// Two shapes are accepted:
//   - {"Item": {...}} - a snapshot record, treated as OpPut
//   - {"Keys": {...}, "NewImage": {...}, "OldImage": {...}} - a
//     change-stream record; presence of NewImage/OldImage determines
//     Put/Delete/Update
func (d *JSONDecoder) Decode(line []byte) (Operation, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(line, &raw); err != nil {
		return Operation{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	op := Operation{}

	if itemRaw, ok := raw["Item"]; ok {
		item, err := attributevalue.UnmarshalMapJSON(itemRaw)
		if err != nil {
			return Operation{}, fmt.Errorf("%w: failed to parse Item: %v", ErrCorrupt, err)
		}
		op.NewImage = item
		op.Type = OpPut
		return op, nil
	}

	if keysRaw, ok := raw["Keys"]; ok {
		keys, err := attributevalue.UnmarshalMapJSON(keysRaw)
		if err != nil {
			return Operation{}, fmt.Errorf("%w: failed to parse Keys: %v", ErrCorrupt, err)
		}
		op.Keys = keys
	}

	if newImageRaw, ok := raw["NewImage"]; ok {
		newImage, err := attributevalue.UnmarshalMapJSON(newImageRaw)
		if err != nil {
			return Operation{}, fmt.Errorf("%w: failed to parse NewImage: %v", ErrCorrupt, err)
		}
		op.NewImage = newImage
	}

	if oldImageRaw, ok := raw["OldImage"]; ok {
		oldImage, err := attributevalue.UnmarshalMapJSON(oldImageRaw)
		if err != nil {
			return Operation{}, fmt.Errorf("%w: failed to parse OldImage: %v", ErrCorrupt, err)
		}
		op.OldImage = oldImage
	}

	switch {
	case op.NewImage != nil && op.OldImage != nil:
		op.Type = OpUpdate
	case op.NewImage != nil:
		op.Type = OpPut
	case op.OldImage != nil:
		op.Type = OpDelete
	default:
		return Operation{}, fmt.Errorf("%w: no image data found", ErrCorrupt)
	}

	return op, nil
}
