// Package deploy runs the raffle deployment: mocks and a funded VRF
// subscription on development chains, the raffle itself, explorer
// verification on live chains and the frontend constants update.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/Mohsinsiddi/w3raffle/internal/chain"
	"github.com/Mohsinsiddi/w3raffle/internal/config"
	"github.com/Mohsinsiddi/w3raffle/internal/contract"
	"github.com/Mohsinsiddi/w3raffle/internal/frontend"
	"github.com/Mohsinsiddi/w3raffle/internal/raffle"
	"github.com/Mohsinsiddi/w3raffle/internal/verify"
	"github.com/Mohsinsiddi/w3raffle/internal/vrf"
	"github.com/ethereum/go-ethereum/common"
)

// Backend is what deployment needs from a chain client.
type Backend interface {
	contract.Backend
	Code(ctx context.Context, address common.Address) ([]byte, error)
}

// Verifier verifies deployed source on an explorer.
type Verifier interface {
	Verify(ctx context.Context, req verify.Request) (*verify.Result, error)
}

// FrontendFiles are the web app constants to update after deployment.
type FrontendFiles struct {
	AddressFile string
	ABIFile     string
}

// Deployer deploys the raffle on one network.
type Deployer struct {
	Backend   Backend
	Network   *config.Network
	Opts      contract.TransactOpts
	Artifacts ArtifactLoader
	Registry  *contract.Registry
	Logger    *slog.Logger

	// Optional steps; nil skips them.
	Verifier     Verifier
	BuildInfoDir string
	Frontend     *FrontendFiles
}

// Result summarises a deployment.
type Result struct {
	Raffle          common.Address
	Coordinator     common.Address
	SubscriptionID  uint64
	TxHash          common.Hash
	BlockNumber     uint64
	Verified        bool
	FrontendUpdated bool
}

func (d *Deployer) log() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger.With("network", d.Network.Name)
}

// DeployMocks deploys VRFCoordinatorV2Mock, or reuses the recorded one when
// it still has code (a restarted node loses it).
func (d *Deployer) DeployMocks(ctx context.Context) (common.Address, error) {
	log := d.log()
	if rec, err := d.Registry.Get(vrf.ContractName, d.Network.Name); err == nil {
		addr := common.HexToAddress(rec.Address)
		code, err := d.Backend.Code(ctx, addr)
		if err != nil {
			return common.Address{}, fmt.Errorf("checking %s code: %w", vrf.ContractName, err)
		}
		if len(code) > 0 {
			log.Info("reusing VRF coordinator mock", "address", addr.Hex())
			return addr, nil
		}
		log.Warn("recorded VRF coordinator mock has no code, redeploying", "address", addr.Hex())
	}

	log.Info("local network detected, deploying mocks")
	art, err := d.Artifacts(vrf.ContractName)
	if err != nil {
		return common.Address{}, err
	}
	addr, receipt, err := contract.Deploy(ctx, d.Backend, d.Opts, art, vrf.BaseFee, vrf.GasPriceLink)
	if err != nil {
		return common.Address{}, fmt.Errorf("deploying %s: %w", vrf.ContractName, err)
	}
	if err := d.record(ctx, vrf.ContractName, addr, receipt, art, []string{vrf.BaseFee.String(), vrf.GasPriceLink.String()}); err != nil {
		return common.Address{}, err
	}
	log.Info("mocks deployed", "coordinator", addr.Hex(), "tx", receipt.TxHash.Hex())
	return addr, nil
}

// Run performs the full deployment.
func (d *Deployer) Run(ctx context.Context) (*Result, error) {
	log := d.log()
	res := &Result{}

	var coord *vrf.Coordinator
	if d.Network.IsDevelopment() {
		addr, err := d.DeployMocks(ctx)
		if err != nil {
			return nil, err
		}
		coord = vrf.New(addr, d.Backend)
		res.Coordinator = addr

		subID, err := coord.CreateSubscription(ctx, d.Opts)
		if err != nil {
			return nil, err
		}
		if err := coord.FundSubscription(ctx, d.Opts, subID, vrf.FundAmount); err != nil {
			return nil, err
		}
		res.SubscriptionID = subID
		log.Info("subscription created and funded", "subId", subID, "link", chain.WeiToETH(vrf.FundAmount))
	} else {
		addr, ok := d.Network.Coordinator()
		if !ok {
			return nil, fmt.Errorf("network %s has no vrf_coordinator configured", d.Network.Name)
		}
		if d.Network.SubscriptionID == 0 {
			return nil, fmt.Errorf("network %s has no subscription_id configured", d.Network.Name)
		}
		res.Coordinator = addr
		res.SubscriptionID = d.Network.SubscriptionID
	}

	args, err := d.constructorArgs(res.Coordinator, res.SubscriptionID)
	if err != nil {
		return nil, err
	}

	log.Info("deploying raffle", "coordinator", res.Coordinator.Hex(), "subId", res.SubscriptionID,
		"entranceFee", chain.WeiToETH(args.EntranceFee), "interval", args.Interval)
	art, err := d.Artifacts(raffle.ContractName)
	if err != nil {
		return nil, err
	}
	opts := d.Opts
	opts.Confirmations = d.Network.BlockConfirmations
	addr, receipt, err := contract.Deploy(ctx, d.Backend, opts, art, args.Values()...)
	if err != nil {
		return nil, fmt.Errorf("deploying %s: %w", raffle.ContractName, err)
	}
	res.Raffle, res.TxHash, res.BlockNumber = addr, receipt.TxHash, uint64(receipt.BlockNumber)
	if err := d.record(ctx, raffle.ContractName, addr, receipt, art, args.Strings()); err != nil {
		return nil, err
	}
	log.Info("raffle deployed", "address", addr.Hex(), "tx", receipt.TxHash.Hex(), "confirmations", opts.Confirmations)

	if coord != nil {
		if err := coord.AddConsumer(ctx, d.Opts, res.SubscriptionID, addr); err != nil {
			return nil, err
		}
		log.Info("raffle added as VRF consumer", "subId", res.SubscriptionID)
	}

	if !d.Network.IsDevelopment() && d.Verifier != nil {
		log.Info("verifying on explorer")
		if err := d.verify(ctx, art, addr, args); err != nil {
			// Verification failures do not undo a successful deployment.
			log.Error("verification failed", "err", err)
		} else {
			res.Verified = true
		}
	}

	if d.Frontend != nil {
		id, err := d.Backend.ChainID(ctx)
		if err != nil {
			return nil, err
		}
		if err := UpdateFrontend(*d.Frontend, id, addr, art.RawABI); err != nil {
			return nil, err
		}
		res.FrontendUpdated = true
		log.Info("frontend constants updated", "addresses", d.Frontend.AddressFile, "abi", d.Frontend.ABIFile)
	}

	log.Info("-----------------------------------------------------")
	return res, nil
}

func (d *Deployer) constructorArgs(coordinator common.Address, subID uint64) (raffle.ConstructorArgs, error) {
	fee, err := d.Network.EntranceFeeWei()
	if err != nil {
		return raffle.ConstructorArgs{}, err
	}
	lane, err := d.Network.GasLaneHash()
	if err != nil {
		return raffle.ConstructorArgs{}, err
	}
	return raffle.ConstructorArgs{
		VRFCoordinator:   coordinator,
		EntranceFee:      fee,
		GasLane:          lane,
		SubscriptionID:   subID,
		CallbackGasLimit: d.Network.CallbackGasLimit,
		Interval:         new(big.Int).SetUint64(d.Network.Interval),
	}, nil
}

// Verify submits an already deployed raffle for explorer verification.
func (d *Deployer) Verify(ctx context.Context, addr common.Address, args raffle.ConstructorArgs) error {
	if d.Verifier == nil {
		return errors.New("no verifier configured")
	}
	art, err := d.Artifacts(raffle.ContractName)
	if err != nil {
		return err
	}
	return d.verify(ctx, art, addr, args)
}

func (d *Deployer) verify(ctx context.Context, art *contract.Artifact, addr common.Address, args raffle.ConstructorArgs) error {
	if d.BuildInfoDir == "" {
		return errors.New("no build-info directory configured")
	}
	bi, err := contract.FindBuildInfo(d.BuildInfoDir, art.SourceName, art.ContractName)
	if err != nil {
		return err
	}
	encoded, err := args.Encode()
	if err != nil {
		return err
	}
	res, err := d.Verifier.Verify(ctx, verify.Request{
		Address:         addr,
		ContractName:    art.FullyQualifiedName(),
		CompilerVersion: bi.SolcLongVersion,
		StandardJSON:    bi.Input,
		ConstructorArgs: encoded,
	})
	if err != nil {
		return err
	}
	d.log().Info("verified", "message", res.Message, "already", res.AlreadyVerified)
	return nil
}

func (d *Deployer) record(ctx context.Context, name string, addr common.Address, receipt *chain.TxReceipt, art *contract.Artifact, args []string) error {
	id, err := d.Backend.ChainID(ctx)
	if err != nil {
		return err
	}
	d.Registry.Add(&contract.Deployment{
		Name:        name,
		Network:     d.Network.Name,
		ChainID:     id,
		Address:     addr.Hex(),
		TxHash:      receipt.TxHash.Hex(),
		BlockNumber: uint64(receipt.BlockNumber),
		Deployer:    d.Opts.Signer.Address().Hex(),
		Args:        args,
		ABI:         art.RawABI,
		DeployedAt:  time.Now().UTC(),
	})
	if err := d.Registry.Save(); err != nil {
		return fmt.Errorf("saving deployment record: %w", err)
	}
	return nil
}

// UpdateFrontend writes the address list and ABI the web app imports.
func UpdateFrontend(files FrontendFiles, chainID int64, addr common.Address, abiJSON []byte) error {
	if files.AddressFile != "" {
		if _, err := frontend.UpdateAddresses(files.AddressFile, chainID, addr); err != nil {
			return fmt.Errorf("updating %s: %w", files.AddressFile, err)
		}
	}
	if files.ABIFile != "" {
		if err := frontend.WriteABI(files.ABIFile, abiJSON); err != nil {
			return fmt.Errorf("writing %s: %w", files.ABIFile, err)
		}
	}
	return nil
}
