// Package decode turns a raw go-ethereum log into a row matching an event
// IR's table schema (spec.md §4.5 step b). Unlike the teacher's hardcoded
// V3 pool decoder, the event shape here is only known at runtime (from the
// event IR), so indexed topics are decoded per Solidity type rather than via
// abi.ParseTopics, which requires a compile-time struct target.
package decode

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"smorty/internal/ir"
)

// Error reports a log that could not be decoded against its event IR
// (spec.md §7 DecodeError).
type Error struct {
	Msg string
}

func (e *Error) Error() string { return e.Msg }

func errf(format string, args ...any) error {
	return &Error{Msg: fmt.Sprintf(format, args...)}
}

// Row is one decoded log, keyed by column name, ready for SQL binding.
type Row map[string]any

// RebuildEvent reconstructs the abi.Event the indexer needs to call Decode,
// from an event IR alone. The indexer persists event IRs independently of
// the ABI file they were generated from, so decoding at index time goes
// through the IR's recorded field list rather than re-resolving the
// original ABI path.
func RebuildEvent(eventIR *ir.EventIR) (abi.Event, error) {
	inputs := make(abi.Arguments, 0, len(eventIR.IndexedFields)+len(eventIR.DataFields))
	for _, f := range eventIR.IndexedFields {
		t, err := abi.NewType(f.SolidityType, "", nil)
		if err != nil {
			return abi.Event{}, errf("event %s field %s: %v", eventIR.EventName, f.Name, err)
		}
		inputs = append(inputs, abi.Argument{Name: f.Name, Type: t, Indexed: true})
	}
	for _, f := range eventIR.DataFields {
		t, err := abi.NewType(f.SolidityType, "", nil)
		if err != nil {
			return abi.Event{}, errf("event %s field %s: %v", eventIR.EventName, f.Name, err)
		}
		inputs = append(inputs, abi.Argument{Name: f.Name, Type: t, Indexed: false})
	}
	return abi.NewEvent(eventIR.EventName, eventIR.EventName, false, inputs), nil
}

// Decode builds a Row from a log matching eventIR's field layout. event is
// the resolved ABI event (for indexed/non-indexed argument ordering);
// blockTimestamp is threaded in rather than fetched here since the caller
// batches timestamp lookups per chunk.
func Decode(log types.Log, event abi.Event, eventIR *ir.EventIR, blockTimestamp uint64) (Row, error) {
	if len(log.Topics) == 0 || log.Topics[0] != event.ID {
		return nil, errf("log topic0 %s does not match event %s (%s)", log.Topics[0].Hex(), event.Name, event.ID.Hex())
	}

	indexedArgs := indexedArguments(event.Inputs)
	if len(log.Topics)-1 != len(indexedArgs) {
		return nil, errf("event %s expects %d indexed topics, log has %d", event.Name, len(indexedArgs), len(log.Topics)-1)
	}

	row := make(Row, len(eventIR.IndexedFields)+len(eventIR.DataFields)+4)
	row["block_number"] = log.BlockNumber
	row["block_timestamp"] = blockTimestamp
	row["transaction_hash"] = log.TxHash.Hex()
	row["log_index"] = log.Index

	for i, arg := range indexedArgs {
		value, err := decodeIndexedTopic(arg.Type, log.Topics[i+1])
		if err != nil {
			return nil, errf("event %s field %s: %v", event.Name, arg.Name, err)
		}
		field, ok := findField(eventIR.IndexedFields, arg.Name)
		if !ok {
			return nil, errf("event %s: indexed arg %s has no matching IR field", event.Name, arg.Name)
		}
		row[field.ColumnName] = value
	}

	nonIndexed := event.Inputs.NonIndexed()
	values, err := nonIndexed.Unpack(log.Data)
	if err != nil {
		return nil, errf("event %s: unpack non-indexed data: %v", event.Name, err)
	}
	if len(values) != len(nonIndexed) {
		return nil, errf("event %s: expected %d non-indexed values, got %d", event.Name, len(nonIndexed), len(values))
	}
	for i, arg := range nonIndexed {
		field, ok := findField(eventIR.DataFields, arg.Name)
		if !ok {
			return nil, errf("event %s: data arg %s has no matching IR field", event.Name, arg.Name)
		}
		row[field.ColumnName] = normalizeValue(values[i])
	}

	return row, nil
}

func findField(fields []ir.EventField, name string) (ir.EventField, bool) {
	for _, f := range fields {
		if f.Name == name {
			return f, true
		}
	}
	return ir.EventField{}, false
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	out := make(abi.Arguments, 0, len(args))
	for _, a := range args {
		if a.Indexed {
			out = append(out, a)
		}
	}
	return out
}

// decodeIndexedTopic decodes one 32-byte topic according to its Solidity
// type. Dynamic types (string, bytes, arrays, tuples) only carry the
// keccak256 hash of their value in the topic — the original value cannot be
// recovered, so the raw topic hash is stored verbatim, matching what an
// indexer can actually observe on-chain.
func decodeIndexedTopic(t abi.Type, topic common.Hash) (any, error) {
	switch t.T {
	case abi.AddressTy:
		return common.BytesToAddress(topic[12:]).Hex(), nil
	case abi.BoolTy:
		for _, b := range topic[:31] {
			if b != 0 {
				return nil, errf("malformed bool topic %s", topic.Hex())
			}
		}
		return topic[31] != 0, nil
	case abi.IntTy:
		v := new(big.Int).SetBytes(topic[:])
		if topic[0]&0x80 != 0 {
			// Two's-complement negative value: subtract 2^256.
			mod := new(big.Int).Lsh(big.NewInt(1), 256)
			v.Sub(v, mod)
		}
		return v.String(), nil
	case abi.UintTy:
		return new(big.Int).SetBytes(topic[:]).String(), nil
	case abi.FixedBytesTy:
		return common.Bytes2Hex(topic[:t.Size]), nil
	case abi.StringTy, abi.BytesTy, abi.SliceTy, abi.ArrayTy, abi.TupleTy:
		return topic.Hex(), nil
	default:
		return topic.Hex(), nil
	}
}

// normalizeValue converts a decoded non-indexed ABI value into a SQL-ready
// representation: big.Int values become decimal strings (so they survive
// JSON/SQL without precision loss), addresses become hex strings, byte
// slices become hex strings.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case *big.Int:
		return val.String()
	case common.Address:
		return val.Hex()
	case [32]byte:
		return common.Bytes2Hex(val[:])
	case []byte:
		return common.Bytes2Hex(val)
	case bool, string:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}
