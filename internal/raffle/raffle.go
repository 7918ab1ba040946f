// Package raffle binds the Raffle lottery contract: entrance, upkeep and
// winner selection driven by Chainlink VRF.
package raffle

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"

	"github.com/Mohsinsiddi/w3raffle/internal/chain"
	"github.com/Mohsinsiddi/w3raffle/internal/contract"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ContractName is the artifact name of the raffle contract.
const ContractName = "Raffle"

//go:embed abi/Raffle.json
var rawABI []byte

// ABI is the parsed Raffle ABI.
var ABI = mustParseABI(rawABI)

func mustParseABI(data []byte) abi.ABI {
	parsed, err := abi.JSON(bytes.NewReader(data))
	if err != nil {
		panic(fmt.Sprintf("raffle: invalid embedded ABI: %v", err))
	}
	return parsed
}

// RawABI returns the embedded ABI JSON.
func RawABI() json.RawMessage { return json.RawMessage(rawABI) }

// State is the on-chain RaffleState enum.
type State uint8

const (
	StateOpen        State = 0
	StateCalculating State = 1
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StateCalculating:
		return "CALCULATING"
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint8(s))
}

// Backend is what the binding needs from a chain client.
type Backend interface {
	contract.Backend
	Balance(ctx context.Context, address common.Address) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	Logs(ctx context.Context, q chain.FilterQuery) ([]chain.Log, error)
}

// Raffle is a deployed raffle contract.
type Raffle struct {
	bound   *contract.Bound
	backend Backend
}

// New binds the raffle at address.
func New(address common.Address, backend Backend) *Raffle {
	return &Raffle{bound: contract.NewBound(address, ABI, backend), backend: backend}
}

// Address returns the contract address.
func (r *Raffle) Address() common.Address { return r.bound.Address() }

func (r *Raffle) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	out, err := r.bound.Call(ctx, common.Address{}, method, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, translate(err))
	}
	return out, nil
}

func (r *Raffle) callBig(ctx context.Context, method string, args ...interface{}) (*big.Int, error) {
	out, err := r.call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected output type %T", method, out[0])
	}
	return v, nil
}

func (r *Raffle) callAddress(ctx context.Context, method string, args ...interface{}) (common.Address, error) {
	out, err := r.call(ctx, method, args...)
	if err != nil {
		return common.Address{}, err
	}
	v, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%s: unexpected output type %T", method, out[0])
	}
	return v, nil
}

// EntranceFee returns the minimum value accepted by enterRaffle.
func (r *Raffle) EntranceFee(ctx context.Context) (*big.Int, error) {
	return r.callBig(ctx, "getEntranceFee")
}

// NumberOfPlayers returns how many entries the current round has.
func (r *Raffle) NumberOfPlayers(ctx context.Context) (uint64, error) {
	n, err := r.callBig(ctx, "getNumberOfPlayers")
	if err != nil {
		return 0, err
	}
	return n.Uint64(), nil
}

// RecentWinner returns the last winner (zero address before the first draw).
func (r *Raffle) RecentWinner(ctx context.Context) (common.Address, error) {
	return r.callAddress(ctx, "getRecentWinner")
}

// Player returns the entrant at index.
func (r *Raffle) Player(ctx context.Context, index uint64) (common.Address, error) {
	return r.callAddress(ctx, "getPlayer", new(big.Int).SetUint64(index))
}

// State returns whether the raffle is open or calculating a winner.
func (r *Raffle) State(ctx context.Context) (State, error) {
	out, err := r.call(ctx, "getRaffleState")
	if err != nil {
		return 0, err
	}
	v, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("getRaffleState: unexpected output type %T", out[0])
	}
	return State(v), nil
}

// Interval returns the minimum seconds between draws.
func (r *Raffle) Interval(ctx context.Context) (uint64, error) {
	v, err := r.callBig(ctx, "getInterval")
	if err != nil {
		return 0, err
	}
	return v.Uint64(), nil
}

// LatestTimestamp returns the block timestamp of the last draw (or deploy).
func (r *Raffle) LatestTimestamp(ctx context.Context) (uint64, error) {
	v, err := r.callBig(ctx, "getLastestTimestamp")
	if err != nil {
		return 0, err
	}
	return v.Uint64(), nil
}

// PrizePool returns the contract balance, which the next winner receives.
func (r *Raffle) PrizePool(ctx context.Context) (*big.Int, error) {
	return r.backend.Balance(ctx, r.Address())
}

// Snapshot is the raffle's full public state at one point in time.
type Snapshot struct {
	Address         common.Address
	EntranceFee     *big.Int
	PrizePool       *big.Int
	NumPlayers      uint64
	RecentWinner    common.Address
	State           State
	Interval        uint64
	LatestTimestamp uint64
}

// Snapshot reads every public getter plus the prize pool.
func (r *Raffle) Snapshot(ctx context.Context) (*Snapshot, error) {
	s := &Snapshot{Address: r.Address()}
	var err error
	if s.EntranceFee, err = r.EntranceFee(ctx); err != nil {
		return nil, err
	}
	if s.PrizePool, err = r.PrizePool(ctx); err != nil {
		return nil, fmt.Errorf("reading balance: %w", err)
	}
	if s.NumPlayers, err = r.NumberOfPlayers(ctx); err != nil {
		return nil, err
	}
	if s.RecentWinner, err = r.RecentWinner(ctx); err != nil {
		return nil, err
	}
	if s.State, err = r.State(ctx); err != nil {
		return nil, err
	}
	if s.Interval, err = r.Interval(ctx); err != nil {
		return nil, err
	}
	if s.LatestTimestamp, err = r.LatestTimestamp(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Enter buys one entry. A nil opts.Value pays exactly the entrance fee.
func (r *Raffle) Enter(ctx context.Context, opts contract.TransactOpts) (*chain.TxReceipt, error) {
	if opts.Value == nil {
		fee, err := r.EntranceFee(ctx)
		if err != nil {
			return nil, err
		}
		opts.Value = fee
	}
	receipt, err := r.bound.Transact(ctx, opts, "enterRaffle")
	if err != nil {
		return receipt, fmt.Errorf("enterRaffle: %w", translate(err))
	}
	return receipt, nil
}

// CheckUpkeep simulates checkUpkeep(data) and reports whether a draw is due.
func (r *Raffle) CheckUpkeep(ctx context.Context, data []byte) (bool, []byte, error) {
	if data == nil {
		data = []byte{}
	}
	out, err := r.call(ctx, "checkUpkeep", data)
	if err != nil {
		return false, nil, err
	}
	needed, _ := out[0].(bool)
	performData, _ := out[1].([]byte)
	return needed, performData, nil
}

// PerformUpkeep closes the round and requests randomness. It returns the
// VRF request id taken from the RequestedRaffleWinner event.
func (r *Raffle) PerformUpkeep(ctx context.Context, opts contract.TransactOpts, data []byte) (*big.Int, *chain.TxReceipt, error) {
	if data == nil {
		data = []byte{}
	}
	receipt, err := r.bound.Transact(ctx, opts, "performUpkeep", data)
	if err != nil {
		return nil, receipt, fmt.Errorf("performUpkeep: %w", translate(err))
	}
	logs := contract.FindLogs(ABI, receipt, r.Address(), EventRequestedRaffleWinner)
	if len(logs) == 0 {
		return nil, receipt, fmt.Errorf("performUpkeep: no %s event in receipt %s", EventRequestedRaffleWinner, receipt.TxHash.Hex())
	}
	ev, err := ParseEvent(logs[0])
	if err != nil {
		return nil, receipt, err
	}
	return ev.RequestID, receipt, nil
}

// ConstructorArgs are the raffle's deployment parameters, in order.
type ConstructorArgs struct {
	VRFCoordinator   common.Address
	EntranceFee      *big.Int
	GasLane          common.Hash
	SubscriptionID   uint64
	CallbackGasLimit uint32
	Interval         *big.Int
}

// Values returns the arguments in constructor order, typed for ABI packing.
func (a ConstructorArgs) Values() []interface{} {
	return []interface{}{
		a.VRFCoordinator,
		a.EntranceFee,
		[32]byte(a.GasLane),
		a.SubscriptionID,
		a.CallbackGasLimit,
		a.Interval,
	}
}

// Strings renders the arguments for deployment records.
func (a ConstructorArgs) Strings() []string {
	return []string{
		a.VRFCoordinator.Hex(),
		a.EntranceFee.String(),
		a.GasLane.Hex(),
		fmt.Sprint(a.SubscriptionID),
		fmt.Sprint(a.CallbackGasLimit),
		a.Interval.String(),
	}
}

// ParseConstructorArgs reverses Strings.
func ParseConstructorArgs(ss []string) (ConstructorArgs, error) {
	var a ConstructorArgs
	if len(ss) != 6 {
		return a, fmt.Errorf("raffle: want 6 constructor args, got %d", len(ss))
	}
	if !common.IsHexAddress(ss[0]) {
		return a, fmt.Errorf("raffle: invalid coordinator %q", ss[0])
	}
	a.VRFCoordinator = common.HexToAddress(ss[0])
	fee, ok := new(big.Int).SetString(ss[1], 10)
	if !ok {
		return a, fmt.Errorf("raffle: invalid entrance fee %q", ss[1])
	}
	a.EntranceFee = fee
	a.GasLane = common.HexToHash(ss[2])
	sub, err := strconv.ParseUint(ss[3], 10, 64)
	if err != nil {
		return a, fmt.Errorf("raffle: invalid subscription id: %w", err)
	}
	a.SubscriptionID = sub
	gas, err := strconv.ParseUint(ss[4], 10, 32)
	if err != nil {
		return a, fmt.Errorf("raffle: invalid callback gas limit: %w", err)
	}
	a.CallbackGasLimit = uint32(gas)
	interval, ok := new(big.Int).SetString(ss[5], 10)
	if !ok {
		return a, fmt.Errorf("raffle: invalid interval %q", ss[5])
	}
	a.Interval = interval
	return a, nil
}

// Encode ABI-encodes the constructor arguments without a selector, as block
// explorers expect for verification.
func (a ConstructorArgs) Encode() ([]byte, error) {
	return ABI.Pack("", a.Values()...)
}
