package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/time/rate"
)

// ErrReverted is returned when a mined transaction has status 0.
var ErrReverted = errors.New("transaction reverted")

// EVMClient is a minimal JSON-RPC client for EVM chains.
type EVMClient struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
	poll    time.Duration
	nextID  atomic.Int64
}

// Option configures an EVMClient.
type Option func(*EVMClient)

// WithRateLimit caps outgoing requests to perSecond with the given burst.
// A non-positive rate disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *EVMClient) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *EVMClient) { c.client = h }
}

// WithPollInterval sets how often WaitForReceipt polls the node.
func WithPollInterval(d time.Duration) Option {
	return func(c *EVMClient) { c.poll = d }
}

// NewEVMClient creates a new EVM JSON-RPC client pointed at url.
func NewEVMClient(url string, opts ...Option) *EVMClient {
	c := &EVMClient{
		url:    url,
		client: &http.Client{Timeout: 15 * time.Second},
		poll:   2 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL returns the endpoint the client talks to.
func (c *EVMClient) URL() string { return c.url }

// CallMsg describes an eth_call / eth_estimateGas request.
type CallMsg struct {
	From  common.Address
	To    *common.Address // nil for contract creation
	Value *big.Int
	Data  []byte
	Gas   uint64
}

func (m CallMsg) toArg() map[string]interface{} {
	arg := map[string]interface{}{}
	if m.From != (common.Address{}) {
		arg["from"] = m.From.Hex()
	}
	if m.To != nil {
		arg["to"] = m.To.Hex()
	}
	if len(m.Data) > 0 {
		arg["data"] = hexutil.Encode(m.Data)
	}
	if m.Value != nil && m.Value.Sign() > 0 {
		arg["value"] = hexutil.EncodeBig(m.Value)
	}
	if m.Gas > 0 {
		arg["gas"] = hexutil.EncodeUint64(m.Gas)
	}
	return arg
}

// ChainID returns the chain's ID.
func (c *EVMClient) ChainID(ctx context.Context) (int64, error) {
	var id hexutil.Big
	if err := c.call(ctx, &id, "eth_chainId"); err != nil {
		return 0, err
	}
	return id.ToInt().Int64(), nil
}

// BlockNumber returns the latest block number.
func (c *EVMClient) BlockNumber(ctx context.Context) (uint64, error) {
	var n hexutil.Uint64
	if err := c.call(ctx, &n, "eth_blockNumber"); err != nil {
		return 0, err
	}
	return uint64(n), nil
}

// BlockTimestamp returns the timestamp of the latest block.
func (c *EVMClient) BlockTimestamp(ctx context.Context) (uint64, error) {
	var head struct {
		Timestamp hexutil.Uint64 `json:"timestamp"`
	}
	if err := c.call(ctx, &head, "eth_getBlockByNumber", "latest", false); err != nil {
		return 0, err
	}
	return uint64(head.Timestamp), nil
}

// Balance returns the native balance of address in wei.
func (c *EVMClient) Balance(ctx context.Context, address common.Address) (*big.Int, error) {
	var b hexutil.Big
	if err := c.call(ctx, &b, "eth_getBalance", address.Hex(), "latest"); err != nil {
		return nil, err
	}
	return b.ToInt(), nil
}

// PendingNonce returns the next nonce for address including queued transactions.
func (c *EVMClient) PendingNonce(ctx context.Context, address common.Address) (uint64, error) {
	var n hexutil.Uint64
	if err := c.call(ctx, &n, "eth_getTransactionCount", address.Hex(), "pending"); err != nil {
		return 0, err
	}
	return uint64(n), nil
}

// GasPrice returns the current gas price.
func (c *EVMClient) GasPrice(ctx context.Context) (*big.Int, error) {
	var gp hexutil.Big
	if err := c.call(ctx, &gp, "eth_gasPrice"); err != nil {
		return nil, err
	}
	return gp.ToInt(), nil
}

// EstimateGas estimates the gas needed to execute msg.
func (c *EVMClient) EstimateGas(ctx context.Context, msg CallMsg) (uint64, error) {
	var n hexutil.Uint64
	if err := c.call(ctx, &n, "eth_estimateGas", msg.toArg()); err != nil {
		return 0, err
	}
	return uint64(n), nil
}

// Call executes msg against the latest state without creating a transaction.
func (c *EVMClient) Call(ctx context.Context, msg CallMsg) ([]byte, error) {
	var out hexutil.Bytes
	if err := c.call(ctx, &out, "eth_call", msg.toArg(), "latest"); err != nil {
		return nil, err
	}
	return out, nil
}

// Code returns the bytecode at address. Empty means an EOA.
func (c *EVMClient) Code(ctx context.Context, address common.Address) ([]byte, error) {
	var out hexutil.Bytes
	if err := c.call(ctx, &out, "eth_getCode", address.Hex(), "latest"); err != nil {
		return nil, err
	}
	return out, nil
}

// SendRawTransaction broadcasts a signed raw transaction.
func (c *EVMClient) SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error) {
	var hash common.Hash
	if err := c.call(ctx, &hash, "eth_sendRawTransaction", hexutil.Encode(raw)); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}

// Log holds one event log.
type Log struct {
	Address     common.Address `json:"address"`
	Topics      []common.Hash  `json:"topics"`
	Data        hexutil.Bytes  `json:"data"`
	BlockNumber hexutil.Uint64 `json:"blockNumber"`
	TxHash      common.Hash    `json:"transactionHash"`
	Index       hexutil.Uint   `json:"logIndex"`
}

// TxReceipt holds the on-chain receipt of a mined transaction.
type TxReceipt struct {
	TxHash          common.Hash     `json:"transactionHash"`
	Status          hexutil.Uint64  `json:"status"` // 1 = success, 0 = reverted
	BlockNumber     hexutil.Uint64  `json:"blockNumber"`
	GasUsed         hexutil.Uint64  `json:"gasUsed"`
	ContractAddress *common.Address `json:"contractAddress"`
	Logs            []Log           `json:"logs"`
}

// Succeeded reports whether the transaction executed without reverting.
func (r *TxReceipt) Succeeded() bool { return r.Status == 1 }

// Receipt fetches the receipt for hash. Returns nil, nil while pending.
func (c *EVMClient) Receipt(ctx context.Context, hash common.Hash) (*TxReceipt, error) {
	var raw json.RawMessage
	if err := c.call(ctx, &raw, "eth_getTransactionReceipt", hash.Hex()); err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var r TxReceipt
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("parsing receipt: %w", err)
	}
	return &r, nil
}

// WaitForReceipt polls until hash is mined and buried under confirmations
// blocks (1 means "mined"). A reverted transaction returns its receipt
// together with ErrReverted.
func (c *EVMClient) WaitForReceipt(ctx context.Context, hash common.Hash, confirmations uint64) (*TxReceipt, error) {
	if confirmations == 0 {
		confirmations = 1
	}
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	for {
		receipt, err := c.Receipt(ctx, hash)
		if err != nil {
			return nil, err
		}
		if receipt != nil {
			if !receipt.Succeeded() {
				return receipt, fmt.Errorf("%w (hash: %s)", ErrReverted, hash.Hex())
			}
			if confirmations == 1 {
				return receipt, nil
			}
			head, err := c.BlockNumber(ctx)
			if err != nil {
				return nil, err
			}
			if head+1 >= uint64(receipt.BlockNumber)+confirmations {
				return receipt, nil
			}
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// FilterQuery selects logs emitted by one contract.
type FilterQuery struct {
	Address   common.Address
	Topics    []common.Hash // matched against topic[0]; empty = any
	FromBlock uint64
	ToBlock   uint64 // 0 = latest
}

// Logs queries event logs matching q.
func (c *EVMClient) Logs(ctx context.Context, q FilterQuery) ([]Log, error) {
	filter := map[string]interface{}{
		"address":   q.Address.Hex(),
		"fromBlock": hexutil.EncodeUint64(q.FromBlock),
		"toBlock":   "latest",
	}
	if q.ToBlock > 0 {
		filter["toBlock"] = hexutil.EncodeUint64(q.ToBlock)
	}
	if len(q.Topics) > 0 {
		filter["topics"] = []interface{}{q.Topics}
	}
	var logs []Log
	if err := c.call(ctx, &logs, "eth_getLogs", filter); err != nil {
		return nil, err
	}
	return logs, nil
}

// IncreaseTime moves the clock of a development node forward.
func (c *EVMClient) IncreaseTime(ctx context.Context, seconds uint64) error {
	var ignored json.RawMessage
	return c.call(ctx, &ignored, "evm_increaseTime", seconds)
}

// Mine asks a development node to mine a block.
func (c *EVMClient) Mine(ctx context.Context) error {
	var ignored json.RawMessage
	return c.call(ctx, &ignored, "evm_mine")
}

// Ping tests the RPC endpoint and returns latency + block number.
func (c *EVMClient) Ping(ctx context.Context) (latency time.Duration, blockNum uint64, err error) {
	start := time.Now()
	blockNum, err = c.BlockNumber(ctx)
	return time.Since(start), blockNum, err
}

// --- internal JSON-RPC plumbing ---

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int64         `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcErrorBody   `json:"error"`
}

type rpcErrorBody struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *EVMClient) call(ctx context.Context, result interface{}, method string, params ...interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
	}
	if params == nil {
		params = []interface{}{}
	}
	reqBody, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID.Add(1),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("RPC request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	if rpcResp.Error != nil {
		return newRPCError(rpcResp.Error)
	}
	if result == nil {
		return nil
	}
	if raw, ok := result.(*json.RawMessage); ok {
		*raw = rpcResp.Result
		return nil
	}
	if len(rpcResp.Result) == 0 || string(rpcResp.Result) == "null" {
		return fmt.Errorf("%s: empty result", method)
	}
	if err := json.Unmarshal(rpcResp.Result, result); err != nil {
		return fmt.Errorf("parsing %s result: %w", method, err)
	}
	return nil
}

// RPCError is a JSON-RPC error response. Data carries revert data when the
// node returned any.
type RPCError struct {
	Code    int
	Message string
	Data    []byte
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// IsRevert reports whether the error came from EVM execution reverting.
func (e *RPCError) IsRevert() bool {
	return len(e.Data) > 0 || strings.Contains(e.Message, "revert")
}

func newRPCError(body *rpcErrorBody) *RPCError {
	e := &RPCError{Code: body.Code, Message: body.Message}
	if len(body.Data) == 0 {
		return e
	}
	// geth: "data":"0x..."; hardhat: "data":{"message":...,"data":"0x..."}
	var s string
	if json.Unmarshal(body.Data, &s) == nil {
		if b, err := hexutil.Decode(s); err == nil {
			e.Data = b
		}
		return e
	}
	var nested struct {
		Data string `json:"data"`
	}
	if json.Unmarshal(body.Data, &nested) == nil && nested.Data != "" {
		if b, err := hexutil.Decode(nested.Data); err == nil {
			e.Data = b
		}
	}
	return e
}
