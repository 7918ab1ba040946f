package contract

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/Mohsinsiddi/w3raffle/internal/chain"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"golang.org/x/crypto/sha3"
)

var (
	errorStringSelector = Selector("Error(string)")
	panicSelector       = Selector("Panic(uint256)")
)

// RevertError is a decoded contract revert. Name is the custom error name,
// "Error" for require(msg) reverts or "Panic" for assertion failures.
type RevertError struct {
	Name   string
	Args   []interface{}
	Reason string
	Data   []byte
}

func (e *RevertError) Error() string {
	switch {
	case e.Reason != "":
		return "execution reverted: " + e.Reason
	case e.Name == "":
		return "execution reverted"
	case len(e.Args) == 0:
		return fmt.Sprintf("execution reverted: %s()", e.Name)
	}
	parts := make([]string, len(e.Args))
	for i, a := range e.Args {
		parts[i] = fmt.Sprint(a)
	}
	return fmt.Sprintf("execution reverted: %s(%s)", e.Name, strings.Join(parts, ", "))
}

// Selector returns the 4-byte keccak256 selector of a signature such as
// "transfer(address,uint256)".
func Selector(sig string) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(sig))
	return h.Sum(nil)[:4]
}

// DecodeRevert converts an RPC revert into a *RevertError using the custom
// errors declared in parsed. Other errors pass through unchanged.
func DecodeRevert(parsed abi.ABI, err error) error {
	if err == nil {
		return nil
	}
	var rpcErr *chain.RPCError
	if !errors.As(err, &rpcErr) || !rpcErr.IsRevert() {
		return err
	}
	if rev := decodeRevertData(parsed, rpcErr.Data); rev != nil {
		return rev
	}
	return &RevertError{Reason: reasonFromMessage(rpcErr.Message), Data: rpcErr.Data}
}

func decodeRevertData(parsed abi.ABI, data []byte) *RevertError {
	if len(data) < 4 {
		return nil
	}
	sel := data[:4]

	switch {
	case bytes.Equal(sel, errorStringSelector):
		reason, err := abi.UnpackRevert(data)
		if err != nil {
			return nil
		}
		return &RevertError{Name: "Error", Reason: reason, Data: data}
	case bytes.Equal(sel, panicSelector):
		code := new(big.Int).SetBytes(data[4:])
		return &RevertError{Name: "Panic", Args: []interface{}{code}, Reason: fmt.Sprintf("panic code 0x%x", code), Data: data}
	}

	for name, e := range parsed.Errors {
		if !bytes.Equal(e.ID[:4], sel) {
			continue
		}
		args, err := e.Inputs.Unpack(data[4:])
		if err != nil {
			return &RevertError{Name: name, Data: data}
		}
		return &RevertError{Name: name, Args: args, Data: data}
	}
	return nil
}

// reasonFromMessage pulls the reason out of node messages such as
// "VM Exception while processing transaction: reverted with reason string 'x'".
func reasonFromMessage(msg string) string {
	if i := strings.Index(msg, "reason string '"); i >= 0 {
		rest := msg[i+len("reason string '"):]
		if j := strings.LastIndex(rest, "'"); j >= 0 {
			return rest[:j]
		}
	}
	if i := strings.Index(msg, "custom error '"); i >= 0 {
		rest := msg[i+len("custom error '"):]
		if j := strings.LastIndex(rest, "'"); j >= 0 {
			return rest[:j]
		}
	}
	return ""
}

// IsRevert reports whether err is a decoded revert named name.
func IsRevert(err error, name string) bool {
	var rev *RevertError
	return errors.As(err, &rev) && rev.Name == name
}
