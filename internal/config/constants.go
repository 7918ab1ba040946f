package config

import "time"

// Timeout constants used across cmd and the keeper.
const (
	RPCSelectTimeout = 10 * time.Second // RPC benchmark / selection
	TxConfirmTimeout = 3 * time.Minute  // standard transaction confirmation wait
	TxDeployTimeout  = 5 * time.Minute  // contract deployment confirmation wait
	WinnerTimeout    = 10 * time.Minute // live networks: VRF + keeper round trip
)

// DevRPCURL is the default JSON-RPC endpoint of a local Hardhat node.
const DevRPCURL = "http://127.0.0.1:8545"
