package rpc

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Block is the subset of an EVM block header the streamer cares about,
// decoded from the eth_getBlockByNumber JSON-RPC result. Hex quantity fields
// are kept raw so validation can distinguish "missing" from "zero".
type Block struct {
	NumberHex    string   `json:"number"`
	Hash         string   `json:"hash"`
	ParentHash   string   `json:"parentHash"`
	TimestampHex string   `json:"timestamp"`
	Transactions []string `json:"transactions"`

	// ReceivedAt is stamped by the client when the response arrived.
	ReceivedAt time.Time `json:"-"`
}

// Number decodes the block number quantity.
func (b *Block) Number() (uint64, error) {
	return parseQuantity(b.NumberHex)
}

// Timestamp decodes the chain-reported creation time.
func (b *Block) Timestamp() (time.Time, error) {
	secs, err := parseQuantity(b.TimestampHex)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(int64(secs), 0).UTC(), nil
}

// TxCount returns the number of transactions in the block.
func (b *Block) TxCount() int {
	return len(b.Transactions)
}

// parseQuantity decodes an EVM hex quantity ("0x1b4") into a uint64.
func parseQuantity(s string) (uint64, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return 0, fmt.Errorf("invalid quantity %q: missing 0x prefix", s)
	}
	n, err := strconv.ParseUint(s[2:], 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid quantity %q: %w", s, err)
	}
	return n, nil
}

// formatQuantity encodes a uint64 as an EVM hex quantity.
func formatQuantity(n uint64) string {
	return "0x" + strconv.FormatUint(n, 16)
}
