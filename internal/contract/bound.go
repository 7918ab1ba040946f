package contract

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/Mohsinsiddi/w3raffle/internal/chain"
	"github.com/Mohsinsiddi/w3raffle/internal/wallet"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Backend is the subset of chain.EVMClient that contract bindings need.
type Backend interface {
	ChainID(ctx context.Context) (int64, error)
	Call(ctx context.Context, msg chain.CallMsg) ([]byte, error)
	EstimateGas(ctx context.Context, msg chain.CallMsg) (uint64, error)
	GasPrice(ctx context.Context) (*big.Int, error)
	PendingNonce(ctx context.Context, address common.Address) (uint64, error)
	SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error)
	WaitForReceipt(ctx context.Context, hash common.Hash, confirmations uint64) (*chain.TxReceipt, error)
}

// TransactOpts controls how a write transaction is built and awaited.
type TransactOpts struct {
	Signer        *wallet.Signer
	Value         *big.Int
	GasLimit      uint64 // 0 = estimate
	Confirmations uint64
}

// Bound is a deployed contract bound to its ABI.
type Bound struct {
	address common.Address
	abi     abi.ABI
	backend Backend
}

// NewBound binds address to parsed.
func NewBound(address common.Address, parsed abi.ABI, backend Backend) *Bound {
	return &Bound{address: address, abi: parsed, backend: backend}
}

// Address returns the bound contract address.
func (b *Bound) Address() common.Address { return b.address }

// ABI returns the bound ABI.
func (b *Bound) ABI() abi.ABI { return b.abi }

// Call executes a read-only method and returns its decoded outputs.
func (b *Bound) Call(ctx context.Context, from common.Address, method string, args ...interface{}) ([]interface{}, error) {
	data, err := b.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", method, err)
	}
	to := b.address
	out, err := b.backend.Call(ctx, chain.CallMsg{From: from, To: &to, Data: data})
	if err != nil {
		return nil, DecodeRevert(b.abi, err)
	}
	if len(out) == 0 && len(b.abi.Methods[method].Outputs) > 0 {
		return nil, fmt.Errorf("%s returned no data (is %s a contract?)", method, b.address.Hex())
	}
	values, err := b.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", method, err)
	}
	return values, nil
}

// Transact sends a write transaction and waits for it to be mined.
// Reverts detected during gas estimation come back decoded.
func (b *Bound) Transact(ctx context.Context, opts TransactOpts, method string, args ...interface{}) (*chain.TxReceipt, error) {
	data, err := b.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", method, err)
	}
	to := b.address
	receipt, err := sendTx(ctx, b.backend, opts, &to, data)
	if err != nil {
		return receipt, DecodeRevert(b.abi, err)
	}
	return receipt, nil
}

// Deploy creates art on chain with constructor args and returns its address.
func Deploy(ctx context.Context, backend Backend, opts TransactOpts, art *Artifact, args ...interface{}) (common.Address, *chain.TxReceipt, error) {
	if !art.Deployable() {
		return common.Address{}, nil, fmt.Errorf("artifact %s has no bytecode", art.ContractName)
	}
	ctorArgs, err := art.ABI.Pack("", args...)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("encoding %s constructor: %w", art.ContractName, err)
	}
	data := append(append([]byte{}, art.Bytecode...), ctorArgs...)

	receipt, err := sendTx(ctx, backend, opts, nil, data)
	if err != nil {
		return common.Address{}, receipt, DecodeRevert(art.ABI, err)
	}
	if receipt.ContractAddress == nil {
		return common.Address{}, receipt, fmt.Errorf("receipt for %s has no contract address", receipt.TxHash.Hex())
	}
	return *receipt.ContractAddress, receipt, nil
}

func sendTx(ctx context.Context, backend Backend, opts TransactOpts, to *common.Address, data []byte) (*chain.TxReceipt, error) {
	if opts.Signer == nil {
		return nil, errors.New("no signer configured")
	}
	from := opts.Signer.Address()
	value := opts.Value
	if value == nil {
		value = new(big.Int)
	}

	id, err := backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting chain id: %w", err)
	}
	chainID := big.NewInt(id)

	gas := opts.GasLimit
	if gas == 0 {
		gas, err = backend.EstimateGas(ctx, chain.CallMsg{From: from, To: to, Value: value, Data: data})
		if err != nil {
			return nil, err
		}
	}

	gasPrice, err := backend.GasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting gas price: %w", err)
	}
	nonce, err := backend.PendingNonce(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("getting nonce: %w", err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: gasPrice,
		GasFeeCap: new(big.Int).Mul(gasPrice, big.NewInt(2)),
		Gas:       gas,
		To:        to,
		Value:     value,
		Data:      data,
	})
	signed, err := opts.Signer.SignTx(tx, chainID)
	if err != nil {
		return nil, err
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encoding transaction: %w", err)
	}

	hash, err := backend.SendRawTransaction(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("broadcasting transaction: %w", err)
	}
	return backend.WaitForReceipt(ctx, hash, opts.Confirmations)
}

// UnpackLog decodes log into out (a struct whose fields are the camel-cased
// event argument names). The log must be an instance of event.
func (b *Bound) UnpackLog(out interface{}, event string, log chain.Log) error {
	return UnpackLog(b.abi, out, event, log)
}

// UnpackLog is the ABI-level form of Bound.UnpackLog.
func UnpackLog(parsed abi.ABI, out interface{}, event string, log chain.Log) error {
	ev, ok := parsed.Events[event]
	if !ok {
		return fmt.Errorf("event %q not found in ABI", event)
	}
	if len(log.Topics) == 0 || log.Topics[0] != ev.ID {
		return fmt.Errorf("log is not a %s event", event)
	}
	if len(log.Data) > 0 {
		if err := parsed.UnpackIntoInterface(out, event, log.Data); err != nil {
			return fmt.Errorf("decoding %s data: %w", event, err)
		}
	}
	var indexed abi.Arguments
	for _, arg := range ev.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return abi.ParseTopics(out, indexed, log.Topics[1:])
}

// FindLogs returns the logs in receipt emitted by address for event.
func FindLogs(parsed abi.ABI, receipt *chain.TxReceipt, address common.Address, event string) []chain.Log {
	ev, ok := parsed.Events[event]
	if !ok || receipt == nil {
		return nil
	}
	var out []chain.Log
	for _, l := range receipt.Logs {
		if l.Address == address && len(l.Topics) > 0 && l.Topics[0] == ev.ID {
			out = append(out, l)
		}
	}
	return out
}
