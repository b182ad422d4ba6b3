package decode

import (
	"strings"
	"testing"

	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"smorty/internal/ir"
)

const transferABI = `[{"anonymous":false,"inputs":[{"indexed":true,"name":"src","type":"address"},{"indexed":true,"name":"dst","type":"address"},{"indexed":false,"name":"wad","type":"uint256"}],"name":"Transfer","type":"event"}]`

func mustParseTransferEvent(t *testing.T) abi.Event {
	parsed, err := abi.JSON(strings.NewReader(transferABI))
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}
	return parsed.Events["Transfer"]
}

func TestDecodeTransfer(t *testing.T) {
	event := mustParseTransferEvent(t)

	src := common.HexToAddress("0x1111111111111111111111111111111111111111")
	dst := common.HexToAddress("0x2222222222222222222222222222222222222222")

	data, err := event.Inputs.NonIndexed().Pack(big.NewInt(500))
	if err != nil {
		t.Fatalf("pack data: %v", err)
	}

	log := types.Log{
		Topics: []common.Hash{
			event.ID,
			common.BytesToHash(src.Bytes()),
			common.BytesToHash(dst.Bytes()),
		},
		Data:        data,
		BlockNumber: 100,
		TxHash:      common.HexToHash("0xdeadbeef"),
		Index:       3,
	}

	eventIR := &ir.EventIR{
		EventName: "Transfer",
		IndexedFields: []ir.EventField{
			{Name: "src", ColumnName: "src"},
			{Name: "dst", ColumnName: "dst"},
		},
		DataFields: []ir.EventField{
			{Name: "wad", ColumnName: "wad"},
		},
	}

	row, err := Decode(log, event, eventIR, 1700000000)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if row["src"] != src.Hex() {
		t.Fatalf("src = %v, want %v", row["src"], src.Hex())
	}
	if row["dst"] != dst.Hex() {
		t.Fatalf("dst = %v, want %v", row["dst"], dst.Hex())
	}
	if row["wad"] != "500" {
		t.Fatalf("wad = %v, want 500", row["wad"])
	}
	if row["block_number"] != uint64(100) {
		t.Fatalf("block_number = %v", row["block_number"])
	}
}

func TestRebuildEventRoundTripsThroughDecode(t *testing.T) {
	eventIR := &ir.EventIR{
		EventName: "Transfer",
		IndexedFields: []ir.EventField{
			{Name: "src", SolidityType: "address", ColumnName: "src"},
			{Name: "dst", SolidityType: "address", ColumnName: "dst"},
		},
		DataFields: []ir.EventField{
			{Name: "wad", SolidityType: "uint256", ColumnName: "wad"},
		},
	}

	event, err := RebuildEvent(eventIR)
	if err != nil {
		t.Fatalf("rebuild event: %v", err)
	}
	if event.ID != mustParseTransferEvent(t).ID {
		t.Fatalf("rebuilt event id %s does not match the canonical Transfer topic0", event.ID.Hex())
	}

	src := common.HexToAddress("0x1111111111111111111111111111111111111111")
	dst := common.HexToAddress("0x2222222222222222222222222222222222222222")
	data, err := event.Inputs.NonIndexed().Pack(big.NewInt(500))
	if err != nil {
		t.Fatalf("pack data: %v", err)
	}

	log := types.Log{
		Topics: []common.Hash{
			event.ID,
			common.BytesToHash(src.Bytes()),
			common.BytesToHash(dst.Bytes()),
		},
		Data:        data,
		BlockNumber: 100,
	}

	row, err := Decode(log, event, eventIR, 1700000000)
	if err != nil {
		t.Fatalf("decode with rebuilt event: %v", err)
	}
	if row["wad"] != "500" {
		t.Fatalf("wad = %v, want 500", row["wad"])
	}
}

func TestRebuildEventRejectsUnknownSolidityType(t *testing.T) {
	eventIR := &ir.EventIR{
		EventName:     "Bad",
		IndexedFields: []ir.EventField{{Name: "x", SolidityType: "notarealtype", ColumnName: "x"}},
	}
	if _, err := RebuildEvent(eventIR); err == nil {
		t.Fatalf("expected error rebuilding event with invalid solidity type")
	}
}

func TestDecodeTopic0Mismatch(t *testing.T) {
	event := mustParseTransferEvent(t)
	log := types.Log{
		Topics: []common.Hash{crypto.Keccak256Hash([]byte("SomethingElse()"))},
	}
	eventIR := &ir.EventIR{EventName: "Transfer"}

	if _, err := Decode(log, event, eventIR, 0); err == nil {
		t.Fatalf("expected topic0 mismatch error")
	}
}
