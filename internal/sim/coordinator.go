package sim

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/Mohsinsiddi/w3raffle/internal/vrf"
	"github.com/ethereum/go-ethereum/common"
)

// Coordinator errors mirroring the mock's custom errors.
var (
	ErrInsufficientBalance = errors.New("sim: subscription balance too low")
	ErrInvalidConsumer     = errors.New("sim: consumer not registered on subscription")
	ErrMustBeSubOwner      = errors.New("sim: caller is not the subscription owner")
)

// consumer is implemented by contracts that receive random words.
type consumer interface {
	fulfillRandomWords(requestID *big.Int, words []*big.Int) error
}

type subscription struct {
	owner     common.Address
	balance   *big.Int
	reqCount  uint64
	consumers map[common.Address]bool
}

type request struct {
	subID            uint64
	callbackGasLimit uint32
	numWords         uint32
	sender           common.Address
}

// Fulfillment mirrors the RandomWordsFulfilled event.
type Fulfillment struct {
	RequestID *big.Int
	Payment   *big.Int
	Success   bool
	Block     uint64
}

// Coordinator models VRFCoordinatorV2Mock.
type Coordinator struct {
	chain        *Chain
	address      common.Address
	baseFee      *big.Int
	gasPriceLink *big.Int

	nextSubID     uint64
	nextRequestID uint64
	subs          map[uint64]*subscription
	requests      map[uint64]*request
	consumers     map[common.Address]consumer
	fulfillments  []Fulfillment
}

// DeployCoordinator deploys the coordinator mock from deployer.
func (c *Chain) DeployCoordinator(deployer common.Address, baseFee, gasPriceLink *big.Int) *Coordinator {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mine()
	return &Coordinator{
		chain:        c,
		address:      c.newContractAddress(deployer),
		baseFee:      new(big.Int).Set(baseFee),
		gasPriceLink: new(big.Int).Set(gasPriceLink),
		subs:         make(map[uint64]*subscription),
		requests:     make(map[uint64]*request),
		consumers:    make(map[common.Address]consumer),
	}
}

// Address returns the coordinator address.
func (co *Coordinator) Address() common.Address { return co.address }

// CreateSubscription opens a subscription owned by caller. Ids start at 1.
func (co *Coordinator) CreateSubscription(caller common.Address) uint64 {
	co.chain.mu.Lock()
	defer co.chain.mu.Unlock()
	co.chain.mine()
	co.nextSubID++
	co.subs[co.nextSubID] = &subscription{
		owner:     caller,
		balance:   new(big.Int),
		consumers: make(map[common.Address]bool),
	}
	return co.nextSubID
}

// FundSubscription credits amount juels to subID.
func (co *Coordinator) FundSubscription(subID uint64, amount *big.Int) error {
	co.chain.mu.Lock()
	defer co.chain.mu.Unlock()
	sub, ok := co.subs[subID]
	if !ok {
		return vrf.ErrInvalidSubscription
	}
	co.chain.mine()
	sub.balance.Add(sub.balance, amount)
	return nil
}

// AddConsumer registers consumer on subID. Only the owner may call it.
func (co *Coordinator) AddConsumer(caller common.Address, subID uint64, consumer common.Address) error {
	co.chain.mu.Lock()
	defer co.chain.mu.Unlock()
	sub, ok := co.subs[subID]
	if !ok {
		return vrf.ErrInvalidSubscription
	}
	if sub.owner != caller {
		return fmt.Errorf("%w: owner is %s", ErrMustBeSubOwner, sub.owner.Hex())
	}
	co.chain.mine()
	sub.consumers[consumer] = true
	return nil
}

// ConsumerIsAdded reports whether consumer may bill subID.
func (co *Coordinator) ConsumerIsAdded(subID uint64, consumer common.Address) bool {
	co.chain.mu.Lock()
	defer co.chain.mu.Unlock()
	sub, ok := co.subs[subID]
	return ok && sub.consumers[consumer]
}

// SubscriptionBalance returns subID's LINK balance.
func (co *Coordinator) SubscriptionBalance(subID uint64) (*big.Int, error) {
	co.chain.mu.Lock()
	defer co.chain.mu.Unlock()
	sub, ok := co.subs[subID]
	if !ok {
		return nil, vrf.ErrInvalidSubscription
	}
	return new(big.Int).Set(sub.balance), nil
}

// requestRandomWords is called by consumers with the chain lock held.
func (co *Coordinator) requestRandomWords(sender common.Address, c consumer, subID uint64, callbackGasLimit, numWords uint32) (*big.Int, error) {
	sub, ok := co.subs[subID]
	if !ok {
		return nil, vrf.ErrInvalidSubscription
	}
	if !sub.consumers[sender] {
		return nil, ErrInvalidConsumer
	}
	co.nextRequestID++
	id := co.nextRequestID
	co.requests[id] = &request{subID: subID, callbackGasLimit: callbackGasLimit, numWords: numWords, sender: sender}
	co.consumers[sender] = c
	sub.reqCount++
	return new(big.Int).SetUint64(id), nil
}

// FulfillRandomWords delivers words for requestID to consumerAddr. The
// subscription is charged baseFee + gasPriceLink*callbackGasLimit whether or
// not the consumer callback succeeds.
func (co *Coordinator) FulfillRandomWords(requestID *big.Int, consumerAddr common.Address) (*Fulfillment, error) {
	co.chain.mu.Lock()
	defer co.chain.mu.Unlock()

	if !requestID.IsUint64() {
		return nil, vrf.ErrNonexistentRequest
	}
	req, ok := co.requests[requestID.Uint64()]
	if !ok {
		return nil, vrf.ErrNonexistentRequest
	}
	sub := co.subs[req.subID]
	payment := new(big.Int).Mul(co.gasPriceLink, big.NewInt(int64(req.callbackGasLimit)))
	payment.Add(payment, co.baseFee)
	if sub.balance.Cmp(payment) < 0 {
		return nil, ErrInsufficientBalance
	}

	block := co.chain.mine()
	delete(co.requests, requestID.Uint64())
	success := false
	if c, ok := co.consumers[consumerAddr]; ok {
		success = c.fulfillRandomWords(requestID, vrf.Words(requestID, int(req.numWords))) == nil
	}
	sub.balance.Sub(sub.balance, payment)

	f := Fulfillment{RequestID: new(big.Int).Set(requestID), Payment: payment, Success: success, Block: block}
	co.fulfillments = append(co.fulfillments, f)
	return &f, nil
}

// Pending reports whether requestID is awaiting fulfillment.
func (co *Coordinator) Pending(requestID *big.Int) bool {
	co.chain.mu.Lock()
	defer co.chain.mu.Unlock()
	if !requestID.IsUint64() {
		return false
	}
	_, ok := co.requests[requestID.Uint64()]
	return ok
}

// Fulfillments returns every fulfillment so far.
func (co *Coordinator) Fulfillments() []Fulfillment {
	co.chain.mu.Lock()
	defer co.chain.mu.Unlock()
	return append([]Fulfillment(nil), co.fulfillments...)
}
