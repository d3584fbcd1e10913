package ethsender

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	cdkcommon "github.com/gateway-fm/cdk-erigon-lib/common"

	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/multicall"
	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/types"
)

func toCdkHash(data []byte) cdkcommon.Hash {
	return cdkcommon.BytesToHash(data)
}

// verifierABI exposes only the overloaded verification_key_hash probe
// spec.md 4.6 step 3 describes: a mandatory no-arg SNARK wrapper call and
// an optional uint256-indexed FFLONK wrapper call whose absence (a revert)
// is expected and non-fatal.
var verifierABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(`[
		{"name":"verificationKeyHash","type":"function","stateMutability":"view","inputs":[],"outputs":[{"type":"bytes32"}]},
		{"name":"verificationKeyHash","type":"function","stateMutability":"view","inputs":[{"name":"index","type":"uint256"}],"outputs":[{"type":"bytes32"}]}
	]`))
	if err != nil {
		panic(fmt.Sprintf("ethsender: invalid embedded verifier ABI: %v", err))
	}
	return parsed
}()

const fflonkWrapperIndex = 1

// CallVerifierProbe is the multicall.EthCaller-backed VerifierProbe the
// ethsender loop uses in production; tests substitute their own fake.
type CallVerifierProbe struct {
	Caller multicall.EthCaller
}

func (p *CallVerifierProbe) SnarkWrapperVKHash(ctx context.Context, verifier common.Address) (types.StorageLog, error) {
	data, err := verifierABI.Methods["verificationKeyHash"].Inputs.Pack()
	if err != nil {
		return types.StorageLog{}, err
	}
	selector := verifierABI.Methods["verificationKeyHash"].ID
	out, err := p.Caller.CallContract(ctx, ethereum.CallMsg{To: &verifier, Data: append(selector, data...)}, nil)
	if err != nil {
		return types.StorageLog{}, fmt.Errorf("ethsender: mandatory snark wrapper vk hash probe failed: %w", err)
	}
	if len(out) != 32 {
		return types.StorageLog{}, fmt.Errorf("ethsender: snark wrapper vk hash has unexpected length %d", len(out))
	}
	return types.StorageLog{Value: toCdkHash(out)}, nil
}

func (p *CallVerifierProbe) FFlonkWrapperVKHash(ctx context.Context, verifier common.Address) (*types.StorageLog, error) {
	overloaded := findOverloadedMethod(verifierABI, "verificationKeyHash", 1)
	data, err := overloaded.Inputs.Pack(big.NewInt(fflonkWrapperIndex))
	if err != nil {
		return nil, err
	}
	out, err := p.Caller.CallContract(ctx, ethereum.CallMsg{To: &verifier, Data: append(overloaded.ID, data...)}, nil)
	if err != nil {
		// Absence of an FFLONK wrapper is expected on chains that only run
		// the plain snark wrapper; treat any revert here as "not present".
		return nil, nil
	}
	if len(out) != 32 {
		return nil, fmt.Errorf("ethsender: fflonk wrapper vk hash has unexpected length %d", len(out))
	}
	log := types.StorageLog{Value: toCdkHash(out)}
	return &log, nil
}

func findOverloadedMethod(contractABI abi.ABI, name string, argCount int) abi.Method {
	for _, m := range contractABI.Methods {
		if m.RawName == name && len(m.Inputs) == argCount {
			return m
		}
	}
	panic(fmt.Sprintf("ethsender: no overload of %s with %d args", name, argCount))
}
