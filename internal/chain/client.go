// Package chain wraps go-ethereum's RPC client for the indexer: chunked log
// filtering, block-timestamp memoization, and classification of provider
// errors that mean a block range must be halved (spec.md §4.5).
package chain

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Client wraps a go-ethereum RPC client and caches block timestamps, the
// same shape the teacher uses, generalized to arbitrary address/topic0 sets
// instead of a single hardcoded DEX pool ABI.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client

	mu      sync.RWMutex
	tsCache map[uint64]uint64
}

// NewClient dials rpcURL and returns a ready Client.
func NewClient(ctx context.Context, rpcURL string) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}

	return &Client{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
		tsCache:   make(map[uint64]uint64),
	}, nil
}

// Close closes the underlying RPC connection.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// ChainID returns the chain's numeric ID.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	return c.ethClient.ChainID(ctx)
}

// LatestBlockNumber returns the chain head.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	return c.ethClient.BlockNumber(ctx)
}

// HeaderByNumber returns the header for a block number.
func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return c.ethClient.HeaderByNumber(ctx, number)
}

// BlockTimestamp returns a block's unix timestamp, memoized per-process.
// The cache is unbounded but scoped to the process lifetime: the indexer
// only ever looks up timestamps within one chunk's block range before
// moving on, so the working set stays small (spec.md §4.5).
func (c *Client) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	c.mu.RLock()
	ts, ok := c.tsCache[number]
	c.mu.RUnlock()
	if ok {
		return ts, nil
	}

	header, err := c.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return 0, err
	}

	ts = header.Time
	c.mu.Lock()
	c.tsCache[number] = ts
	c.mu.Unlock()

	return ts, nil
}

// FilterLogs fetches logs in [fromBlock, toBlock] for the given addresses,
// matching any of the given topic0 values.
func (c *Client) FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: addresses,
	}
	if len(topic0) > 0 {
		query.Topics = [][]common.Hash{topic0}
	}
	return c.ethClient.FilterLogs(ctx, query)
}

// rangeTooLargeMarkers lists the substrings RPC providers are known to
// return when a getLogs request spans too many blocks or would return too
// many results. Providers don't agree on a status code for this, only on
// variations of this message, so classification is string-based.
var rangeTooLargeMarkers = []string{
	"query returned more than",
	"block range is too large",
	"exceeds the range",
	"range too large",
	"more than 10000 results",
	"query timeout exceeded",
	"limit exceeded",
}

// IsRangeTooLarge reports whether err indicates the requested block range
// (or its result set) was too large for the provider to serve in one call,
// the signal the indexer uses to halve its chunk size (spec.md §4.5).
func IsRangeTooLarge(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range rangeTooLargeMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// IsNotFound reports whether err is go-ethereum's "not found" sentinel,
// distinguishing a missing block/receipt from a transient RPC failure.
func IsNotFound(err error) bool {
	return errors.Is(err, ethereum.NotFound)
}
