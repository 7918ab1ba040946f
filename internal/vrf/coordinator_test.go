package vrf

import (
	"context"
	"math/big"
	"testing"

	"github.com/Mohsinsiddi/w3raffle/internal/chain"
	"github.com/Mohsinsiddi/w3raffle/internal/contract"
	"github.com/Mohsinsiddi/w3raffle/internal/wallet"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var coordAddr = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

// stubBackend mines every transaction instantly with the configured logs.
type stubBackend struct {
	logs     []chain.Log
	estErr   error
	callOut  []byte
	sentData [][]byte
}

func (s *stubBackend) ChainID(context.Context) (int64, error) { return 31337, nil }
func (s *stubBackend) Call(context.Context, chain.CallMsg) ([]byte, error) {
	return s.callOut, nil
}
func (s *stubBackend) EstimateGas(_ context.Context, msg chain.CallMsg) (uint64, error) {
	s.sentData = append(s.sentData, msg.Data)
	return 100_000, s.estErr
}
func (s *stubBackend) GasPrice(context.Context) (*big.Int, error) { return big.NewInt(1), nil }
func (s *stubBackend) PendingNonce(context.Context, common.Address) (uint64, error) {
	return 0, nil
}
func (s *stubBackend) SendRawTransaction(context.Context, []byte) (common.Hash, error) {
	return common.HexToHash("0x01"), nil
}
func (s *stubBackend) WaitForReceipt(_ context.Context, h common.Hash, _ uint64) (*chain.TxReceipt, error) {
	return &chain.TxReceipt{TxHash: h, Status: 1, Logs: s.logs}, nil
}

func opts(t *testing.T) contract.TransactOpts {
	t.Helper()
	signer, err := wallet.NewSigner("ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	require.NoError(t, err)
	return contract.TransactOpts{Signer: signer}
}

func TestConstants(t *testing.T) {
	assert.Equal(t, "250000000000000000", BaseFee.String())
	assert.Equal(t, "1000000000", GasPriceLink.String())
	assert.Equal(t, "2000000000000000000", FundAmount.String())
}

func TestWordsMatchABIEncoding(t *testing.T) {
	u256, err := abi.NewType("uint256", "", nil)
	require.NoError(t, err)
	args := abi.Arguments{{Type: u256}, {Type: u256}}

	words := Words(big.NewInt(1), 2)
	require.Len(t, words, 2)
	for i, w := range words {
		enc, err := args.Pack(big.NewInt(1), big.NewInt(int64(i)))
		require.NoError(t, err)
		assert.Equal(t, new(big.Int).SetBytes(crypto.Keccak256(enc)), w)
	}
	assert.NotEqual(t, words[0], Words(big.NewInt(2), 1)[0])
}

func TestCreateSubscription(t *testing.T) {
	ev := ABI.Events["SubscriptionCreated"]
	data, err := ev.Inputs.NonIndexed().Pack(common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"))
	require.NoError(t, err)
	be := &stubBackend{logs: []chain.Log{{
		Address: coordAddr,
		Topics:  []common.Hash{ev.ID, common.BigToHash(big.NewInt(1))},
		Data:    data,
	}}}

	subID, err := New(coordAddr, be).CreateSubscription(context.Background(), opts(t))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), subID)
}

func TestCreateSubscriptionNoEvent(t *testing.T) {
	_, err := New(coordAddr, &stubBackend{}).CreateSubscription(context.Background(), opts(t))
	assert.ErrorContains(t, err, "no SubscriptionCreated")
}

func TestFundAndAddConsumerEncodeArgs(t *testing.T) {
	be := &stubBackend{}
	c := New(coordAddr, be)
	consumer := common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512")

	require.NoError(t, c.FundSubscription(context.Background(), opts(t), 1, FundAmount))
	require.NoError(t, c.AddConsumer(context.Background(), opts(t), 1, consumer))
	require.Len(t, be.sentData, 2)
	assert.Equal(t, ABI.Methods["fundSubscription"].ID, be.sentData[0][:4])
	assert.Equal(t, ABI.Methods["addConsumer"].ID, be.sentData[1][:4])
	assert.Equal(t, consumer.Bytes(), be.sentData[1][len(be.sentData[1])-20:])
}

func TestFulfillNonexistentRequest(t *testing.T) {
	strType, err := abi.NewType("string", "", nil)
	require.NoError(t, err)
	enc, err := abi.Arguments{{Type: strType}}.Pack("nonexistent request")
	require.NoError(t, err)
	be := &stubBackend{estErr: &chain.RPCError{Code: 3, Message: "execution reverted", Data: append(contract.Selector("Error(string)"), enc...)}}

	_, err = New(coordAddr, be).FulfillRandomWords(context.Background(), opts(t), big.NewInt(1), common.Address{})
	assert.ErrorIs(t, err, ErrNonexistentRequest)
}

func TestFulfillRandomWords(t *testing.T) {
	ev := ABI.Events[EventRandomWordsFulfilled]
	data, err := ev.Inputs.NonIndexed().Pack(big.NewInt(99), big.NewInt(12345), true)
	require.NoError(t, err)
	be := &stubBackend{logs: []chain.Log{{
		Address: coordAddr,
		Topics:  []common.Hash{ev.ID, common.BigToHash(big.NewInt(1))},
		Data:    data,
	}}}

	f, err := New(coordAddr, be).FulfillRandomWords(context.Background(), opts(t), big.NewInt(1), common.Address{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.RequestId.Int64())
	assert.Equal(t, int64(12345), f.Payment.Int64())
	assert.True(t, f.Success)
	assert.NotNil(t, f.Receipt)
}

func TestParseRequested(t *testing.T) {
	ev := ABI.Events[EventRandomWordsRequested]
	data, err := ev.Inputs.NonIndexed().Pack(big.NewInt(1), big.NewInt(100), uint16(1), uint32(500000), uint32(1))
	require.NoError(t, err)
	sender := common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512")
	keyHash := common.HexToHash("0x474e34a077df58807dbe9c96d3c009b23b3c6d0cce433e59bbf5b34f823bc56c")

	req, err := ParseRequested(chain.Log{
		Topics: []common.Hash{ev.ID, keyHash, common.BigToHash(big.NewInt(1)), common.BytesToHash(sender.Bytes())},
		Data:   data,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), req.RequestId.Int64())
	assert.Equal(t, uint64(1), req.SubId)
	assert.Equal(t, uint32(500000), req.CallbackGasLimit)
	assert.Equal(t, sender, req.Sender)
	assert.Equal(t, [32]byte(keyHash), req.KeyHash)
}

func TestGetSubscription(t *testing.T) {
	owner := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	consumer := common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512")
	out, err := ABI.Methods["getSubscription"].Outputs.Pack(FundAmount, uint64(2), owner, []common.Address{consumer})
	require.NoError(t, err)

	sub, err := New(coordAddr, &stubBackend{callOut: out}).GetSubscription(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, FundAmount, sub.Balance)
	assert.Equal(t, uint64(2), sub.ReqCount)
	assert.Equal(t, owner, sub.Owner)
	assert.Equal(t, []common.Address{consumer}, sub.Consumers)
}
