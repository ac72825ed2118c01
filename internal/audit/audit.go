// Package audit encodes a committed transaction's change set as a
// protobuf message, for downstream replication tooling to consume.
// This is a wire format only — §1/§5 keep actual replication a
// non-goal; audit just gives a committed change set a serializable
// shape using google.golang.org/protobuf (the teacher's direct
// dependency, there used for its own wire-level query results).
package audit

import (
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Change is one entity mutation recorded during a transaction.
type Change struct {
	Collection string
	ID         string
	Op         string // "create", "update", "delete"
	Entity     map[string]any
}

// Build converts a committed transaction's changes into a single
// structpb.Struct envelope holding committedAt plus every change's
// collection/id/op/entity fields, ready to be marshaled whole.
// structpb.Struct is itself a real generated proto.Message — the
// envelope is an actual wire-format message, not a plain Go struct
// wrapped around one field of it.
func Build(committedAt time.Time, changes []Change) (*structpb.Struct, error) {
	changeValues := make([]*structpb.Value, 0, len(changes))
	for _, c := range changes {
		entityStruct, err := structpb.NewStruct(c.Entity)
		if err != nil {
			return nil, err
		}
		changeValues = append(changeValues, structpb.NewStructValue(&structpb.Struct{
			Fields: map[string]*structpb.Value{
				"collection": structpb.NewStringValue(c.Collection),
				"id":         structpb.NewStringValue(c.ID),
				"op":         structpb.NewStringValue(c.Op),
				"entity":     structpb.NewStructValue(entityStruct),
			},
		}))
	}
	return &structpb.Struct{
		Fields: map[string]*structpb.Value{
			"committedAt": structpb.NewStringValue(committedAt.UTC().Format(time.RFC3339Nano)),
			"changes":     structpb.NewListValue(&structpb.ListValue{Values: changeValues}),
		},
	}, nil
}

// Marshal encodes the whole envelope — committedAt and every change's
// collection/id/op/entity — as one protobuf wire-format message.
func Marshal(envelope *structpb.Struct) ([]byte, error) {
	return proto.Marshal(envelope)
}
