package contract

import (
	"context"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Mohsinsiddi/w3raffle/internal/chain"
	"github.com/Mohsinsiddi/w3raffle/internal/wallet"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testABI = `[
 {"type":"constructor","inputs":[{"name":"fee","type":"uint256"}],"stateMutability":"nonpayable"},
 {"type":"function","name":"getEntranceFee","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
 {"type":"function","name":"enterRaffle","inputs":[],"outputs":[],"stateMutability":"payable"},
 {"type":"error","name":"Raffle__UpkeepNotNeeded","inputs":[{"name":"currentBalance","type":"uint256"},{"name":"numPlayers","type":"uint256"},{"name":"raffleState","type":"uint256"}]},
 {"type":"error","name":"Raffle__NotEnoughETHEntered","inputs":[]},
 {"type":"event","name":"RaffleEnter","inputs":[{"name":"player","type":"address","indexed":true}],"anonymous":false},
 {"type":"event","name":"Requested","inputs":[{"name":"requestId","type":"uint256","indexed":true},{"name":"words","type":"uint32","indexed":false}],"anonymous":false}
]`

const hardhatKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func parsedABI(t *testing.T) abi.ABI {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(testABI))
	require.NoError(t, err)
	return parsed
}

type fakeBackend struct {
	callOut  []byte
	callErr  error
	estErr   error
	sent     [][]byte
	lastCall chain.CallMsg
	contract *common.Address
	chainID  int64
}

func (f *fakeBackend) ChainID(context.Context) (int64, error) { return f.chainID, nil }
func (f *fakeBackend) Call(_ context.Context, msg chain.CallMsg) ([]byte, error) {
	f.lastCall = msg
	return f.callOut, f.callErr
}
func (f *fakeBackend) EstimateGas(_ context.Context, msg chain.CallMsg) (uint64, error) {
	f.lastCall = msg
	return 50_000, f.estErr
}
func (f *fakeBackend) GasPrice(context.Context) (*big.Int, error) { return big.NewInt(1_000_000_000), nil }
func (f *fakeBackend) PendingNonce(context.Context, common.Address) (uint64, error) {
	return uint64(len(f.sent)), nil
}
func (f *fakeBackend) SendRawTransaction(_ context.Context, raw []byte) (common.Hash, error) {
	f.sent = append(f.sent, raw)
	return common.HexToHash("0xabc"), nil
}
func (f *fakeBackend) WaitForReceipt(_ context.Context, hash common.Hash, _ uint64) (*chain.TxReceipt, error) {
	return &chain.TxReceipt{TxHash: hash, Status: 1, ContractAddress: f.contract}, nil
}

func TestParseArtifactHardhat(t *testing.T) {
	art, err := ParseArtifact([]byte(`{"contractName":"Raffle","sourceName":"contracts/Raffle.sol","abi":` + testABI + `,"bytecode":"0x6080"}`))
	require.NoError(t, err)
	assert.Equal(t, "Raffle", art.ContractName)
	assert.Equal(t, "contracts/Raffle.sol:Raffle", art.FullyQualifiedName())
	assert.Equal(t, []byte{0x60, 0x80}, art.Bytecode)
	assert.Contains(t, art.ABI.Methods, "getEntranceFee")
}

func TestParseArtifactFoundry(t *testing.T) {
	art, err := ParseArtifact([]byte(`{"abi":` + testABI + `,"bytecode":{"object":"6080"}}`))
	require.NoError(t, err)
	assert.True(t, art.Deployable())
}

func TestParseArtifactBareABI(t *testing.T) {
	art, err := ParseArtifact([]byte(testABI))
	require.NoError(t, err)
	assert.False(t, art.Deployable())
	assert.Empty(t, art.ContractName)
	assert.Contains(t, art.ABI.Errors, "Raffle__UpkeepNotNeeded")
}

func TestParseArtifactErrors(t *testing.T) {
	_, err := ParseArtifact([]byte(`{"abi":` + testABI + `,"bytecode":"0x60__$abc$__"}`))
	assert.ErrorContains(t, err, "unlinked")

	_, err = ParseArtifact([]byte(`{"bytecode":"0x6080"}`))
	assert.ErrorContains(t, err, "no \"abi\"")

	_, err = ParseArtifact(nil)
	assert.Error(t, err)
}

func TestLoadArtifactNameFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "VRFCoordinatorV2Mock.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"abi":`+testABI+`}`), 0o600))
	art, err := LoadArtifact(path)
	require.NoError(t, err)
	assert.Equal(t, "VRFCoordinatorV2Mock", art.ContractName)
}

func TestFindBuildInfo(t *testing.T) {
	dir := t.TempDir()
	other := `{"solcLongVersion":"0.8.7+commit.e28d00a7","input":{"language":"Solidity"},"output":{"contracts":{"contracts/Other.sol":{"Other":{}}}}}`
	match := `{"solcLongVersion":"0.8.7+commit.e28d00a7","input":{"language":"Solidity","sources":{}},"output":{"contracts":{"contracts/Raffle.sol":{"Raffle":{}}}}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.json"), []byte(other), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.json"), []byte(match), 0o600))

	bi, err := FindBuildInfo(dir, "contracts/Raffle.sol", "Raffle")
	require.NoError(t, err)
	assert.Equal(t, "0.8.7+commit.e28d00a7", bi.SolcLongVersion)
	assert.Contains(t, string(bi.Input), "sources")

	_, err = FindBuildInfo(dir, "contracts/Missing.sol", "Missing")
	assert.Error(t, err)
}

func TestBoundCall(t *testing.T) {
	parsed := parsedABI(t)
	out, err := parsed.Methods["getEntranceFee"].Outputs.Pack(big.NewInt(10_000_000_000_000_000))
	require.NoError(t, err)

	be := &fakeBackend{callOut: out}
	addr := common.HexToAddress("0x1234")
	b := NewBound(addr, parsed, be)

	values, err := b.Call(context.Background(), common.Address{}, "getEntranceFee")
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, "10000000000000000", values[0].(*big.Int).String())
	assert.Equal(t, addr, *be.lastCall.To)
	assert.Equal(t, parsed.Methods["getEntranceFee"].ID, be.lastCall.Data)
}

func TestBoundCallEmptyResult(t *testing.T) {
	b := NewBound(common.HexToAddress("0x1234"), parsedABI(t), &fakeBackend{})
	_, err := b.Call(context.Background(), common.Address{}, "getEntranceFee")
	assert.ErrorContains(t, err, "returned no data")
}

func TestDecodeRevertCustomError(t *testing.T) {
	parsed := parsedABI(t)
	e := parsed.Errors["Raffle__UpkeepNotNeeded"]
	args, err := e.Inputs.Pack(big.NewInt(0), big.NewInt(0), big.NewInt(1))
	require.NoError(t, err)
	data := append(append([]byte{}, e.ID[:4]...), args...)

	got := DecodeRevert(parsed, &chain.RPCError{Code: 3, Message: "execution reverted", Data: data})
	var rev *RevertError
	require.True(t, errors.As(got, &rev))
	assert.Equal(t, "Raffle__UpkeepNotNeeded", rev.Name)
	require.Len(t, rev.Args, 3)
	assert.Equal(t, int64(1), rev.Args[2].(*big.Int).Int64())
	assert.True(t, IsRevert(got, "Raffle__UpkeepNotNeeded"))
	assert.Equal(t, "execution reverted: Raffle__UpkeepNotNeeded(0, 0, 1)", got.Error())
}

func TestDecodeRevertErrorString(t *testing.T) {
	strType, err := abi.NewType("string", "", nil)
	require.NoError(t, err)
	enc, err := abi.Arguments{{Type: strType}}.Pack("nonexistent request")
	require.NoError(t, err)
	data := append(Selector("Error(string)"), enc...)

	got := DecodeRevert(parsedABI(t), &chain.RPCError{Message: "execution reverted", Data: data})
	assert.True(t, IsRevert(got, "Error"))
	assert.Contains(t, got.Error(), "nonexistent request")
}

func TestDecodeRevertPassThrough(t *testing.T) {
	plain := errors.New("connection refused")
	assert.Same(t, plain, DecodeRevert(parsedABI(t), plain))
	assert.NoError(t, DecodeRevert(parsedABI(t), nil))

	got := DecodeRevert(parsedABI(t), &chain.RPCError{Message: "VM Exception while processing transaction: reverted with reason string 'boom'"})
	assert.Equal(t, "execution reverted: boom", got.Error())
}

func TestSelector(t *testing.T) {
	assert.Equal(t, []byte{0x08, 0xc3, 0x79, 0xa0}, Selector("Error(string)"))
	assert.Equal(t, []byte{0xa9, 0x05, 0x9c, 0xbb}, Selector("transfer(address,uint256)"))
}

func TestTransactSignsAndSends(t *testing.T) {
	signer, err := wallet.NewSigner(hardhatKey)
	require.NoError(t, err)
	be := &fakeBackend{chainID: 31337}
	b := NewBound(common.HexToAddress("0x1234"), parsedABI(t), be)

	fee := big.NewInt(10_000_000_000_000_000)
	receipt, err := b.Transact(context.Background(), TransactOpts{Signer: signer, Value: fee}, "enterRaffle")
	require.NoError(t, err)
	assert.True(t, receipt.Succeeded())
	require.Len(t, be.sent, 1)

	var tx types.Transaction
	require.NoError(t, tx.UnmarshalBinary(be.sent[0]))
	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(31337)), &tx)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), from)
	assert.Equal(t, fee, tx.Value())
	assert.Equal(t, uint64(50_000), tx.Gas())
	assert.Equal(t, common.HexToAddress("0x1234"), *tx.To())
}

func TestTransactRevertOnEstimate(t *testing.T) {
	parsed := parsedABI(t)
	signer, err := wallet.NewSigner(hardhatKey)
	require.NoError(t, err)
	id := parsed.Errors["Raffle__NotEnoughETHEntered"].ID
	sel := id[:4]
	be := &fakeBackend{chainID: 31337, estErr: &chain.RPCError{Code: -32603, Message: "reverted", Data: sel}}

	_, err = NewBound(common.HexToAddress("0x1234"), parsed, be).Transact(context.Background(), TransactOpts{Signer: signer}, "enterRaffle")
	assert.True(t, IsRevert(err, "Raffle__NotEnoughETHEntered"))
	assert.Empty(t, be.sent)
}

func TestTransactNoSigner(t *testing.T) {
	_, err := NewBound(common.HexToAddress("0x1234"), parsedABI(t), &fakeBackend{}).Transact(context.Background(), TransactOpts{}, "enterRaffle")
	assert.ErrorContains(t, err, "no signer")
}

func TestDeploy(t *testing.T) {
	signer, err := wallet.NewSigner(hardhatKey)
	require.NoError(t, err)
	created := common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	be := &fakeBackend{chainID: 31337, contract: &created}
	art := &Artifact{ContractName: "Raffle", ABI: parsedABI(t), Bytecode: []byte{0x60, 0x80}}

	addr, _, err := Deploy(context.Background(), be, TransactOpts{Signer: signer}, art, big.NewInt(7))
	require.NoError(t, err)
	assert.Equal(t, created, addr)

	var tx types.Transaction
	require.NoError(t, tx.UnmarshalBinary(be.sent[0]))
	assert.Nil(t, tx.To())
	assert.Equal(t, []byte{0x60, 0x80}, tx.Data()[:2])
	assert.Equal(t, byte(7), tx.Data()[len(tx.Data())-1])
}

func TestDeployWithoutBytecode(t *testing.T) {
	_, _, err := Deploy(context.Background(), &fakeBackend{}, TransactOpts{}, &Artifact{ContractName: "I"})
	assert.ErrorContains(t, err, "no bytecode")
}

func TestUnpackLog(t *testing.T) {
	parsed := parsedABI(t)
	ev := parsed.Events["Requested"]
	data, err := ev.Inputs.NonIndexed().Pack(uint32(1))
	require.NoError(t, err)
	log := chain.Log{
		Topics: []common.Hash{ev.ID, common.BigToHash(big.NewInt(42))},
		Data:   data,
	}

	var out struct {
		RequestId *big.Int
		Words     uint32
	}
	require.NoError(t, UnpackLog(parsed, &out, "Requested", log))
	assert.Equal(t, int64(42), out.RequestId.Int64())
	assert.Equal(t, uint32(1), out.Words)

	var enter struct{ Player common.Address }
	assert.Error(t, UnpackLog(parsed, &enter, "RaffleEnter", log))
}

func TestFindLogs(t *testing.T) {
	parsed := parsedABI(t)
	addr := common.HexToAddress("0x1234")
	enter := parsed.Events["RaffleEnter"].ID
	receipt := &chain.TxReceipt{Logs: []chain.Log{
		{Address: addr, Topics: []common.Hash{enter}},
		{Address: common.HexToAddress("0x9999"), Topics: []common.Hash{enter}},
		{Address: addr, Topics: []common.Hash{parsed.Events["Requested"].ID}},
	}}
	assert.Len(t, FindLogs(parsed, receipt, addr, "RaffleEnter"), 1)
	assert.Nil(t, FindLogs(parsed, nil, addr, "RaffleEnter"))
}

func TestRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deployments.json")
	r := NewRegistry(path)
	require.NoError(t, r.Load())

	r.Add(&Deployment{Name: "Raffle", Network: "sepolia", Address: "0xabc"})
	r.Add(&Deployment{Name: "Raffle", Network: "localhost", Address: "0xdef"})
	require.NoError(t, r.Save())

	loaded := NewRegistry(path)
	require.NoError(t, loaded.Load())
	d, err := loaded.Get("Raffle", "sepolia")
	require.NoError(t, err)
	assert.Equal(t, "0xabc", d.Address)
	assert.Equal(t, "localhost", loaded.All()[0].Network)

	require.NoError(t, loaded.Remove("Raffle", "sepolia"))
	_, err = loaded.Get("Raffle", "sepolia")
	assert.ErrorIs(t, err, ErrDeploymentNotFound)
	assert.ErrorIs(t, loaded.Remove("Raffle", "sepolia"), ErrDeploymentNotFound)
}
