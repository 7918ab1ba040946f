// Package sim is an in-process model of a development chain running the
// raffle and the VRF coordinator mock. It mirrors the contracts' state
// machine closely enough to rehearse rounds without a node.
package sim

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrInsufficientFunds is returned when an account cannot cover a value transfer.
var ErrInsufficientFunds = errors.New("sim: insufficient funds")

// Chain holds the shared ledger, clock and block height. All contract
// methods lock mu, so a Chain is safe for concurrent use.
type Chain struct {
	mu       sync.Mutex
	balances map[common.Address]*big.Int
	nonces   map[common.Address]uint64
	now      uint64
	block    uint64
}

// NewChain starts a chain at the given unix timestamp.
func NewChain(genesis uint64) *Chain {
	return &Chain{
		balances: make(map[common.Address]*big.Int),
		nonces:   make(map[common.Address]uint64),
		now:      genesis,
	}
}

// Now returns the current block timestamp.
func (c *Chain) Now() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// BlockNumber returns the current block height.
func (c *Chain) BlockNumber() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.block
}

// IncreaseTime moves the clock forward, like evm_increaseTime.
func (c *Chain) IncreaseTime(seconds uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += seconds
}

// Mine produces an empty block, like evm_mine.
func (c *Chain) Mine() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mine()
}

func (c *Chain) mine() uint64 {
	c.block++
	c.now++
	return c.block
}

// Fund sets addr's balance, like hardhat_setBalance.
func (c *Chain) Fund(addr common.Address, wei *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[addr] = new(big.Int).Set(wei)
}

// Balance returns addr's balance.
func (c *Chain) Balance(addr common.Address) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balance(addr)
}

func (c *Chain) balance(addr common.Address) *big.Int {
	if b, ok := c.balances[addr]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

func (c *Chain) transfer(from, to common.Address, wei *big.Int) error {
	if wei.Sign() == 0 {
		return nil
	}
	fromBal := c.balance(from)
	if fromBal.Cmp(wei) < 0 {
		return fmt.Errorf("%w: %s has %s wei, needs %s", ErrInsufficientFunds, from.Hex(), fromBal, wei)
	}
	c.balances[from] = fromBal.Sub(fromBal, wei)
	c.balances[to] = c.balance(to).Add(c.balance(to), wei)
	return nil
}

// newContractAddress derives a CREATE address from deployer's nonce.
func (c *Chain) newContractAddress(deployer common.Address) common.Address {
	n := c.nonces[deployer]
	c.nonces[deployer] = n + 1
	return crypto.CreateAddress(deployer, n)
}

// Account returns a deterministic address for a label such as "player-1".
func Account(label string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte(label))[12:])
}
