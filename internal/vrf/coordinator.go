// Package vrf binds Chainlink's VRFCoordinatorV2Mock, which stands in for
// the oracle on development chains.
package vrf

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/Mohsinsiddi/w3raffle/internal/chain"
	"github.com/Mohsinsiddi/w3raffle/internal/contract"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ContractName is the artifact name of the coordinator mock.
const ContractName = "VRFCoordinatorV2Mock"

var (
	// BaseFee is the flat LINK premium per request (0.25 LINK).
	BaseFee = big.NewInt(250_000_000_000_000_000)
	// GasPriceLink is the LINK-per-gas price used by the mock (1e9).
	GasPriceLink = big.NewInt(1_000_000_000)
	// FundAmount is what development deployments fund a subscription with (2 LINK).
	FundAmount = new(big.Int).Mul(big.NewInt(2), big.NewInt(1_000_000_000_000_000_000))
)

// ErrNonexistentRequest is returned when fulfilling an unknown request id.
var ErrNonexistentRequest = errors.New("vrf: nonexistent request")

// ErrInvalidSubscription is returned for unknown subscription ids.
var ErrInvalidSubscription = errors.New("vrf: invalid subscription")

//go:embed abi/VRFCoordinatorV2Mock.json
var rawABI []byte

// ABI is the parsed coordinator mock ABI.
var ABI = func() abi.ABI {
	parsed, err := abi.JSON(bytes.NewReader(rawABI))
	if err != nil {
		panic(fmt.Sprintf("vrf: invalid embedded ABI: %v", err))
	}
	return parsed
}()

// RawABI returns the embedded ABI JSON.
func RawABI() json.RawMessage { return json.RawMessage(rawABI) }

// Coordinator is a deployed VRFCoordinatorV2Mock.
type Coordinator struct {
	bound *contract.Bound
}

// New binds the coordinator at address.
func New(address common.Address, backend contract.Backend) *Coordinator {
	return &Coordinator{bound: contract.NewBound(address, ABI, backend)}
}

// Address returns the coordinator address.
func (c *Coordinator) Address() common.Address { return c.bound.Address() }

// CreateSubscription opens a subscription owned by the signer and returns
// its id, read from the SubscriptionCreated event.
func (c *Coordinator) CreateSubscription(ctx context.Context, opts contract.TransactOpts) (uint64, error) {
	receipt, err := c.bound.Transact(ctx, opts, "createSubscription")
	if err != nil {
		return 0, fmt.Errorf("createSubscription: %w", translate(err))
	}
	logs := contract.FindLogs(ABI, receipt, c.Address(), "SubscriptionCreated")
	if len(logs) == 0 {
		return 0, fmt.Errorf("createSubscription: no SubscriptionCreated event in %s", receipt.TxHash.Hex())
	}
	var ev struct {
		SubId uint64 //nolint:revive
		Owner common.Address
	}
	if err := contract.UnpackLog(ABI, &ev, "SubscriptionCreated", logs[0]); err != nil {
		return 0, err
	}
	return ev.SubId, nil
}

// FundSubscription credits amount (juels of LINK) to subID.
func (c *Coordinator) FundSubscription(ctx context.Context, opts contract.TransactOpts, subID uint64, amount *big.Int) error {
	if _, err := c.bound.Transact(ctx, opts, "fundSubscription", subID, amount); err != nil {
		return fmt.Errorf("fundSubscription: %w", translate(err))
	}
	return nil
}

// AddConsumer allows consumer to request randomness billed to subID.
func (c *Coordinator) AddConsumer(ctx context.Context, opts contract.TransactOpts, subID uint64, consumer common.Address) error {
	if _, err := c.bound.Transact(ctx, opts, "addConsumer", subID, consumer); err != nil {
		return fmt.Errorf("addConsumer: %w", translate(err))
	}
	return nil
}

// ConsumerIsAdded reports whether consumer is registered on subID.
func (c *Coordinator) ConsumerIsAdded(ctx context.Context, subID uint64, consumer common.Address) (bool, error) {
	out, err := c.bound.Call(ctx, common.Address{}, "consumerIsAdded", subID, consumer)
	if err != nil {
		return false, fmt.Errorf("consumerIsAdded: %w", translate(err))
	}
	added, _ := out[0].(bool)
	return added, nil
}

// Subscription is the coordinator's view of one subscription.
type Subscription struct {
	Balance   *big.Int
	ReqCount  uint64
	Owner     common.Address
	Consumers []common.Address
}

// GetSubscription reads subID.
func (c *Coordinator) GetSubscription(ctx context.Context, subID uint64) (*Subscription, error) {
	out, err := c.bound.Call(ctx, common.Address{}, "getSubscription", subID)
	if err != nil {
		return nil, fmt.Errorf("getSubscription: %w", translate(err))
	}
	sub := new(Subscription)
	if err := ABI.Methods["getSubscription"].Outputs.Copy(sub, out); err != nil {
		return nil, fmt.Errorf("getSubscription: %w", err)
	}
	return sub, nil
}

// FulfillRandomWords plays the oracle: it derives words for requestID and
// calls back into consumer. The fulfillment result comes from the
// RandomWordsFulfilled event.
func (c *Coordinator) FulfillRandomWords(ctx context.Context, opts contract.TransactOpts, requestID *big.Int, consumer common.Address) (*Fulfillment, error) {
	receipt, err := c.bound.Transact(ctx, opts, "fulfillRandomWords", requestID, consumer)
	if err != nil {
		return nil, fmt.Errorf("fulfillRandomWords(%s): %w", requestID, translate(err))
	}
	logs := contract.FindLogs(ABI, receipt, c.Address(), EventRandomWordsFulfilled)
	if len(logs) == 0 {
		return nil, fmt.Errorf("fulfillRandomWords: no %s event in %s", EventRandomWordsFulfilled, receipt.TxHash.Hex())
	}
	f, err := ParseFulfilled(logs[0])
	if err != nil {
		return nil, err
	}
	f.Receipt = receipt
	return f, nil
}

func translate(err error) error {
	var rev *contract.RevertError
	if !errors.As(err, &rev) {
		return err
	}
	switch {
	case rev.Name == "Error" && rev.Reason == "nonexistent request":
		return ErrNonexistentRequest
	case rev.Name == "InvalidSubscription":
		return ErrInvalidSubscription
	}
	return err
}

// Event names emitted by the coordinator mock.
const (
	EventRandomWordsRequested = "RandomWordsRequested"
	EventRandomWordsFulfilled = "RandomWordsFulfilled"
)

// Request is a decoded RandomWordsRequested event.
type Request struct {
	KeyHash                     [32]byte
	RequestId                   *big.Int //nolint:revive
	PreSeed                     *big.Int
	SubId                       uint64 //nolint:revive
	MinimumRequestConfirmations uint16
	CallbackGasLimit            uint32
	NumWords                    uint32
	Sender                      common.Address
}

// ParseRequested decodes a RandomWordsRequested log.
func ParseRequested(log chain.Log) (*Request, error) {
	r := new(Request)
	if err := contract.UnpackLog(ABI, r, EventRandomWordsRequested, log); err != nil {
		return nil, err
	}
	return r, nil
}

// Fulfillment is a decoded RandomWordsFulfilled event.
type Fulfillment struct {
	RequestId  *big.Int //nolint:revive
	OutputSeed *big.Int
	Payment    *big.Int
	Success    bool
	Receipt    *chain.TxReceipt
}

// ParseFulfilled decodes a RandomWordsFulfilled log.
func ParseFulfilled(log chain.Log) (*Fulfillment, error) {
	f := new(Fulfillment)
	if err := contract.UnpackLog(ABI, f, EventRandomWordsFulfilled, log); err != nil {
		return nil, err
	}
	return f, nil
}

// Words derives the mock's random words for requestID: word i is
// keccak256(abi.encode(requestID, i)).
func Words(requestID *big.Int, n int) []*big.Int {
	words := make([]*big.Int, n)
	for i := range words {
		buf := make([]byte, 64)
		requestID.FillBytes(buf[:32])
		big.NewInt(int64(i)).FillBytes(buf[32:])
		words[i] = new(big.Int).SetBytes(crypto.Keccak256(buf))
	}
	return words
}
