package streamer

import (
	"time"

	"github.com/streamx-network/streamx/pkg/rpc"
)

// EVMValidator checks the fields every EVM block header must carry:
// number, hash, parentHash and timestamp, with the quantities decodable.
// Anything deeper (transaction roots, signatures) is out of scope.
type EVMValidator struct{}

func (EVMValidator) Validate(b *rpc.Block) bool {
	if b.NumberHex == "" || b.Hash == "" || b.ParentHash == "" || b.TimestampHex == "" {
		return false
	}
	if _, err := b.Number(); err != nil {
		return false
	}
	if _, err := b.Timestamp(); err != nil {
		return false
	}
	return true
}

func (EVMValidator) Number(b *rpc.Block) (uint64, error) {
	return b.Number()
}

func (EVMValidator) CreationTime(b *rpc.Block) (time.Time, error) {
	return b.Timestamp()
}
