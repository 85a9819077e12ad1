package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/mrazakos/revwatch/internal/types"
)

// rpcClient is the subset of ethclient.Client the reader needs
type rpcClient interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]ethtypes.Log, error)
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- ethtypes.Log) (ethereum.Subscription, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	Close()
}

// EthReader reads revocation events for a single lock from an EVM chain
type EthReader struct {
	client     rpcClient
	contract   common.Address
	lockID     uint64
	wsCapable  bool
	maxRange   uint64 // provider hard cap, 0 = unknown
	maxRetries int
	logger     types.Logger
}

// ReaderOption is a functional option for configuring the EthReader
type ReaderOption func(*EthReader)

// WithLogger sets a custom logger
func WithLogger(logger types.Logger) ReaderOption {
	return func(r *EthReader) {
		r.logger = logger
	}
}

// WithMaxRange sets a provider-imposed hard cap on query ranges
func WithMaxRange(maxRange uint64) ReaderOption {
	return func(r *EthReader) {
		r.maxRange = maxRange
	}
}

// WithMaxRetries sets the retry budget for transient RPC failures
func WithMaxRetries(n int) ReaderOption {
	return func(r *EthReader) {
		if n > 0 {
			r.maxRetries = n
		}
	}
}

// Dial connects to the RPC endpoint and returns a reader for one lock.
// ws(s) endpoints support Subscribe; http(s) endpoints are poll-only.
func Dial(ctx context.Context, rpcURL, contractAddress string, lockID uint64, opts ...ReaderOption) (*EthReader, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", rpcURL, err)
	}

	wsCapable := strings.HasPrefix(rpcURL, "ws://") || strings.HasPrefix(rpcURL, "wss://")
	return NewEthReader(client, contractAddress, lockID, wsCapable, opts...), nil
}

// NewEthReader wraps an existing client (exported for tests)
func NewEthReader(client rpcClient, contractAddress string, lockID uint64, wsCapable bool, opts ...ReaderOption) *EthReader {
	r := &EthReader{
		client:     client,
		contract:   common.HexToAddress(contractAddress),
		lockID:     lockID,
		wsCapable:  wsCapable,
		maxRetries: 5,
		logger:     types.StdLogger{},
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Close releases the underlying RPC connection
func (r *EthReader) Close() {
	r.client.Close()
}

// CurrentHeight returns the current chain head block number
func (r *EthReader) CurrentHeight(ctx context.Context) (uint64, error) {
	var height uint64
	err := r.withRetry(ctx, "blockNumber", func() error {
		var err error
		height, err = r.client.BlockNumber(ctx)
		return err
	})
	return height, err
}

// filterQuery builds the topic filter for this lock's revocation events
func (r *EthReader) filterQuery(from, to *big.Int) ethereum.FilterQuery {
	return ethereum.FilterQuery{
		FromBlock: from,
		ToBlock:   to,
		Addresses: []common.Address{r.contract},
		Topics: [][]common.Hash{
			{RevocationTopic},
			nil, // any sigHash
			nil, // any revoker
			{lockIDTopic(r.lockID)},
		},
	}
}

// Subscribe opens a push feed of revocation events. The returned channel is
// closed when the subscription terminates; the Subscription carries the
// terminal error.
func (r *EthReader) Subscribe(ctx context.Context) (<-chan RevocationEvent, Subscription, error) {
	if !r.wsCapable {
		return nil, nil, ErrPushUnsupported
	}

	rawCh := make(chan ethtypes.Log, 256)
	sub, err := r.client.SubscribeFilterLogs(ctx, r.filterQuery(nil, nil), rawCh)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	out := make(chan RevocationEvent, 256)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				sub.Unsubscribe()
				return
			case lg, ok := <-rawCh:
				if !ok {
					return
				}
				ev, err := r.decodeLog(lg)
				if err != nil {
					r.logger.Printf("[chain] skipping malformed log in tx %s: %v", lg.TxHash.Hex(), err)
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					sub.Unsubscribe()
					return
				}
			}
		}
	}()

	return out, sub, nil
}

// QueryRange fetches historical revocation events for [fromBlock, toBlock]
// inclusive. Returns ErrRangeTooLarge when the span exceeds the provider cap.
func (r *EthReader) QueryRange(ctx context.Context, fromBlock, toBlock uint64) ([]RevocationEvent, error) {
	if toBlock < fromBlock {
		return nil, fmt.Errorf("invalid range [%d, %d]", fromBlock, toBlock)
	}
	if r.maxRange > 0 && toBlock-fromBlock+1 > r.maxRange {
		return nil, fmt.Errorf("range [%d, %d] exceeds cap %d: %w", fromBlock, toBlock, r.maxRange, ErrRangeTooLarge)
	}

	q := r.filterQuery(new(big.Int).SetUint64(fromBlock), new(big.Int).SetUint64(toBlock))

	var logs []ethtypes.Log
	err := r.withRetry(ctx, "filterLogs", func() error {
		var err error
		logs, err = r.client.FilterLogs(ctx, q)
		if isRangeTooLargeError(err) {
			// not transient, surface immediately so the caller subdivides
			return fmt.Errorf("%v: %w", err, ErrRangeTooLarge)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	events := make([]RevocationEvent, 0, len(logs))
	for _, lg := range logs {
		ev, err := r.decodeLog(lg)
		if err != nil {
			r.logger.Printf("[chain] skipping malformed log at block %d: %v", lg.BlockNumber, err)
			continue
		}
		events = append(events, ev)
	}

	return events, nil
}

// decodeLog converts a raw filtered log into a RevocationEvent. All three
// event arguments are indexed, so everything lives in the topics.
func (r *EthReader) decodeLog(lg ethtypes.Log) (RevocationEvent, error) {
	if len(lg.Topics) != 4 {
		return RevocationEvent{}, fmt.Errorf("expected 4 topics, got %d", len(lg.Topics))
	}
	if lg.Topics[0] != RevocationTopic {
		return RevocationEvent{}, fmt.Errorf("unexpected topic0 %s", lg.Topics[0].Hex())
	}

	return RevocationEvent{
		SignatureHash: lg.Topics[1].Hex(),
		RevokedBy:     common.BytesToAddress(lg.Topics[2].Bytes()).Hex(),
		LockID:        lg.Topics[3].Big().Uint64(),
		BlockNumber:   lg.BlockNumber,
		TxHash:        lg.TxHash.Hex(),
		LogIndex:      lg.Index,
	}, nil
}

// locksSelector is the 4-byte selector of locks(uint256)
var locksSelector = crypto.Keccak256([]byte("locks(uint256)"))[:4]

// LockInfo reads the current contract state for the watched lock.
// The contract getter returns (address owner, bytes32 publicKey,
// uint256 revokedCount, bool exists).
func (r *EthReader) LockInfo(ctx context.Context) (*LockInfo, error) {
	data := make([]byte, 0, 4+32)
	data = append(data, locksSelector...)
	data = append(data, common.BigToHash(new(big.Int).SetUint64(r.lockID)).Bytes()...)

	msg := ethereum.CallMsg{To: &r.contract, Data: data}

	var out []byte
	err := r.withRetry(ctx, "callContract", func() error {
		var err error
		out, err = r.client.CallContract(ctx, msg, nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("lock info call failed: %w", err)
	}

	if len(out) < 128 {
		return nil, fmt.Errorf("short lock info response (%d bytes): %w", len(out), ErrNotFound)
	}

	exists := out[127] != 0
	if !exists {
		return nil, ErrNotFound
	}

	return &LockInfo{
		LockID:       r.lockID,
		Owner:        common.BytesToAddress(out[12:32]).Hex(),
		PublicKey:    common.BytesToHash(out[32:64]).Hex(),
		RevokedCount: new(big.Int).SetBytes(out[64:96]).Uint64(),
	}, nil
}

// withRetry runs fn with exponential backoff on transient failures.
// ErrRangeTooLarge and context cancellation are surfaced immediately.
func (r *EthReader) withRetry(ctx context.Context, what string, fn func() error) error {
	var lastErr error
	backoff := 1 * time.Second

	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if isNonRetryable(err) {
			return err
		}

		lastErr = err
		if attempt < r.maxRetries {
			r.logger.Printf("[chain] %s failed (attempt %d/%d): %v, retrying in %v",
				what, attempt, r.maxRetries, err, backoff)

			select {
			case <-time.After(backoff):
				backoff *= 2
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", what, r.maxRetries, lastErr)
}

func isNonRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrRangeTooLarge) || errors.Is(err, ErrNotFound) || isRangeTooLargeError(err)
}
