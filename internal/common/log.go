package common

import (
	"time"
)

// Log is one warehouse row for the logs dataset. Primary key:
// (chain_id, tx_hash, log_index). Topics keep their RPC order; the
// storage connector pads them to four topic slots at the warehouse
// boundary.
type Log struct {
	ChainID        uint64    `ch:"chain_id"`
	BlockNumber    uint64    `ch:"block_number"`
	BlockTimestamp time.Time `ch:"block_timestamp"`
	BlockDate      time.Time `ch:"block_date"`
	TxHash         string    `ch:"tx_hash"`
	TxIndex        uint64    `ch:"tx_index"`
	LogIndex       uint64    `ch:"log_index"`
	Address        string    `ch:"address"`
	Topics         []string
	Data           string `ch:"data"`
	Removed        bool   `ch:"removed"`
}

// Topic returns the i-th topic or the empty string when the slot is
// unused.
func (l *Log) Topic(i int) string {
	if i < len(l.Topics) {
		return l.Topics[i]
	}
	return ""
}
