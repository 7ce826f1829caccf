package model

import (
	"encoding/json"
	"testing"
)

func TestLogRecordFromIndexerLine(t *testing.T) {
	line := `{"chain_id":56,"block_number":36000000,"block_hash":"0xabc123","tx_hash":"0xdef456","tx_index":7,"log_index":12,"address":"0x1111111111111111111111111111111111111111","topics":["0xaaa","0xbbb"],"data":"0xdeadbeef","removed":false,"timestamp":1700000000}`

	var rec LogRecord
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if rec.Topic0() != "0xaaa" {
		t.Fatalf("topic0 mismatch: %s", rec.Topic0())
	}
	if rec.ID() != "36000000:0xdef456:12" {
		t.Fatalf("id mismatch: %s", rec.ID())
	}
	if rec.Timestamp != 1700000000 || rec.LogIndex != 12 {
		t.Fatalf("fields mismatch: %+v", rec)
	}
}

func TestLogRecordAnonymous(t *testing.T) {
	if got := (LogRecord{}).Topic0(); got != "" {
		t.Fatalf("expected empty topic0, got %q", got)
	}
}
