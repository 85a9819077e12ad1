package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// RevocationEventSignature is the Solidity event this reader filters for:
// SignatureRevoked(bytes32 indexed sigHash, address indexed revokedBy, uint256 indexed lockId)
const RevocationEventSignature = "SignatureRevoked(bytes32,address,uint256)"

// RevocationTopic is the keccak topic0 of the revocation event
var RevocationTopic = crypto.Keccak256Hash([]byte(RevocationEventSignature))

// RevocationEvent is one revocation observed on chain, already decoded.
// SignatureHash doubles as the dedup key and the store primary key.
type RevocationEvent struct {
	SignatureHash string
	LockID        uint64
	RevokedBy     string
	BlockNumber   uint64
	TxHash        string
	LogIndex      uint
}

// LockInfo is the point-in-time contract state for one watched lock
type LockInfo struct {
	LockID       uint64
	Owner        string
	PublicKey    string
	RevokedCount uint64
}

// Subscription is a cancellable push feed handle
type Subscription interface {
	// Err yields at most one terminal subscription error
	Err() <-chan error
	Unsubscribe()
}

// Reader is the boundary to the external ledger. One Reader instance serves
// one (network, contract, lock) triple.
type Reader interface {
	CurrentHeight(ctx context.Context) (uint64, error)
	Subscribe(ctx context.Context) (<-chan RevocationEvent, Subscription, error)
	QueryRange(ctx context.Context, fromBlock, toBlock uint64) ([]RevocationEvent, error)
	LockInfo(ctx context.Context) (*LockInfo, error)
	Close()
}

// lockIDTopic left-pads the lock id into an indexed-topic hash
func lockIDTopic(lockID uint64) common.Hash {
	return common.BigToHash(new(big.Int).SetUint64(lockID))
}
