// Package multicall implements the multicall prelude (C8): a single
// aggregate3 call that reads the diamond-proxy and chain-type-manager
// state the EthTxAggregator needs before it can pick and encode an
// operation. Modeled on the teacher's IEtherman narrowing in
// zk/syncer/l1_syncer.go, adapted to the go-ethereum client stack.
package multicall

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/ledgerwatch/zk-sequencer/zk/sequencer/types"
)

// EthCaller is the narrow read-only surface multicall needs from an L1
// client, mirroring the teacher's IEtherman pattern of depending on the
// smallest capability interface rather than a concrete client type.
type EthCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// PackedSemverMinorMask separates a raw u16 minor version (below the
// mask) from a packed semver-encoded protocol version (at or above it).
const PackedSemverMinorMask = uint64(1) << 32

var aggregate3ABI = mustParseABI(`[{
	"name": "aggregate3",
	"type": "function",
	"stateMutability": "nonpayable",
	"inputs": [{"name":"calls","type":"tuple[]","components":[
		{"name":"target","type":"address"},
		{"name":"allowFailure","type":"bool"},
		{"name":"callData","type":"bytes"}
	]}],
	"outputs": [{"name":"returnData","type":"tuple[]","components":[
		{"name":"success","type":"bool"},
		{"name":"returnData","type":"bytes"}
	]}]
}]`)

func mustParseABI(json string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(json))
	if err != nil {
		panic(fmt.Sprintf("multicall: invalid embedded ABI: %v", err))
	}
	return parsed
}

// Call3 is one leg of an aggregate3 batch. AllowFailure is always false for
// the prelude: a missing field is a configuration error, not a soft miss.
type Call3 struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

// Result is the decoded output of the prelude, the full set of facts the
// EthTxAggregator loop needs before choosing and encoding an operation.
type Result struct {
	BootloaderHash      common.Hash
	DefaultAAHash       common.Hash
	EvmEmulatorHash     *common.Hash
	Verifier            common.Address
	VerifierParams      []byte
	DiamondProtocolVersion types.ProtocolVersionID
	STMProtocolVersion     types.ProtocolVersionID
	ValidatorTimelock      common.Address
}

// ParseError reports a shape violation in a multicall return value: wrong
// length, a sub-call that failed despite allow_failure=false, or a field
// that decoded to the wrong byte width.
type ParseError struct {
	Field string
	Cause error
}

func (e *ParseError) Error() string { return fmt.Sprintf("multicall: failed parsing %s: %v", e.Field, e.Cause) }
func (e *ParseError) Unwrap() error { return e.Cause }

// BuildPrelude constructs the aggregate3 calls reading, from the diamond
// proxy: l2_bootloader_hash, l2_default_aa_hash, optional
// l2_evm_emulator_hash, verifier_params, verifier, protocol_version; and
// from the chain-type-manager: protocol_version, validator_timelock.
func BuildPrelude(diamondProxy, chainTypeManager common.Address, withEvmEmulator bool) ([]Call3, error) {
	bootloaderSel, err := selector("getL2BootloaderBytecodeHash")
	if err != nil {
		return nil, err
	}
	defaultAASel, err := selector("getL2DefaultAccountBytecodeHash")
	if err != nil {
		return nil, err
	}
	verifierParamsSel, err := selector("getVerifierParams")
	if err != nil {
		return nil, err
	}
	verifierSel, err := selector("getVerifier")
	if err != nil {
		return nil, err
	}
	protocolVersionSel, err := selector("getProtocolVersion")
	if err != nil {
		return nil, err
	}
	timelockSel, err := selector("validatorTimelock")
	if err != nil {
		return nil, err
	}

	calls := []Call3{
		{Target: diamondProxy, CallData: bootloaderSel},
		{Target: diamondProxy, CallData: defaultAASel},
		{Target: diamondProxy, CallData: verifierParamsSel},
		{Target: diamondProxy, CallData: verifierSel},
		{Target: diamondProxy, CallData: protocolVersionSel},
		{Target: chainTypeManager, CallData: protocolVersionSel},
		{Target: chainTypeManager, CallData: timelockSel},
	}
	if withEvmEmulator {
		emulatorSel, err := selector("getL2EvmEmulatorBytecodeHash")
		if err != nil {
			return nil, err
		}
		calls = append(calls, Call3{Target: diamondProxy, CallData: emulatorSel})
	}
	return calls, nil
}

// Execute runs the prelude through caller and decodes every leg, returning
// a ParseError on any shape violation (spec.md 4.5).
func Execute(ctx context.Context, caller EthCaller, multicallAddr common.Address, calls []Call3, stmProtocolVersion types.ProtocolVersionID, validatorTimelockOverride *common.Address) (Result, error) {
	packedCalls := make([]struct {
		Target       common.Address
		AllowFailure bool
		CallData     []byte
	}, len(calls))
	for i, c := range calls {
		packedCalls[i] = struct {
			Target       common.Address
			AllowFailure bool
			CallData     []byte
		}{c.Target, c.AllowFailure, c.CallData}
	}

	input, err := aggregate3ABI.Pack("aggregate3", packedCalls)
	if err != nil {
		return Result{}, &ParseError{Field: "aggregate3 input", Cause: err}
	}

	out, err := caller.CallContract(ctx, ethereum.CallMsg{To: &multicallAddr, Data: input}, nil)
	if err != nil {
		return Result{}, fmt.Errorf("multicall: call failed: %w", err)
	}

	raw, err := aggregate3ABI.Unpack("aggregate3", out)
	if err != nil {
		return Result{}, &ParseError{Field: "aggregate3 output", Cause: err}
	}
	results, ok := raw[0].([]struct {
		Success    bool   `json:"success"`
		ReturnData []byte `json:"returnData"`
	})
	if !ok {
		return Result{}, &ParseError{Field: "aggregate3 output shape", Cause: fmt.Errorf("unexpected decoded type")}
	}
	if len(results) < 7 {
		return Result{}, &ParseError{Field: "aggregate3 output length", Cause: fmt.Errorf("got %d legs, want >= 7", len(results))}
	}
	for i, r := range results {
		if !r.Success {
			return Result{}, &ParseError{Field: fmt.Sprintf("leg %d", i), Cause: fmt.Errorf("sub-call reverted despite allow_failure=false")}
		}
	}

	bootloaderHash, err := decodeHash(results[0].ReturnData)
	if err != nil {
		return Result{}, &ParseError{Field: "l2_bootloader_hash", Cause: err}
	}
	defaultAAHash, err := decodeHash(results[1].ReturnData)
	if err != nil {
		return Result{}, &ParseError{Field: "l2_default_aa_hash", Cause: err}
	}
	verifier, err := decodeAddress(results[3].ReturnData)
	if err != nil {
		return Result{}, &ParseError{Field: "verifier", Cause: err}
	}
	diamondProtocolVersion, err := decodeProtocolVersion(results[4].ReturnData)
	if err != nil {
		return Result{}, &ParseError{Field: "diamond protocol_version", Cause: err}
	}
	stmVersion, err := decodeProtocolVersion(results[5].ReturnData)
	if err != nil {
		return Result{}, &ParseError{Field: "stm protocol_version", Cause: err}
	}
	timelock, err := decodeAddress(results[6].ReturnData)
	if err != nil {
		return Result{}, &ParseError{Field: "validator_timelock", Cause: err}
	}

	res := Result{
		BootloaderHash:         bootloaderHash,
		DefaultAAHash:          defaultAAHash,
		Verifier:               verifier,
		VerifierParams:         results[2].ReturnData,
		DiamondProtocolVersion: diamondProtocolVersion,
		STMProtocolVersion:     stmVersion,
		ValidatorTimelock:      resolveTimelock(diamondProtocolVersion, stmVersion, timelock, validatorTimelockOverride),
	}
	if len(results) > 7 {
		emulatorHash, err := decodeHash(results[7].ReturnData)
		if err != nil {
			return Result{}, &ParseError{Field: "l2_evm_emulator_hash", Cause: err}
		}
		res.EvmEmulatorHash = &emulatorHash
	}
	return res, nil
}

// resolveTimelock implements spec.md 4.5's rationale directly: upgrades
// should not require simultaneous config updates, so the STM's own
// validator timelock wins whenever the chain is still on the STM's version.
func resolveTimelock(chainProtocolVersion, stmProtocolVersion types.ProtocolVersionID, stmTimelock common.Address, override *common.Address) common.Address {
	if chainProtocolVersion == stmProtocolVersion {
		return stmTimelock
	}
	if override != nil {
		return *override
	}
	return stmTimelock
}

func decodeHash(data []byte) (common.Hash, error) {
	if len(data) != 32 {
		return common.Hash{}, fmt.Errorf("expected 32 bytes, got %d", len(data))
	}
	return common.BytesToHash(data), nil
}

func decodeAddress(data []byte) (common.Address, error) {
	if len(data) != 32 {
		return common.Address{}, fmt.Errorf("expected 32-byte padded address, got %d bytes", len(data))
	}
	return common.BytesToAddress(data[12:]), nil
}

func decodeProtocolVersion(data []byte) (types.ProtocolVersionID, error) {
	if len(data) != 32 {
		return 0, fmt.Errorf("expected 32 bytes, got %d", len(data))
	}
	v := new(big.Int).SetBytes(data).Uint64()
	if v < PackedSemverMinorMask {
		return types.ProtocolVersionID(v), nil
	}
	// packed semver: major/minor/patch packed into the integer; only the
	// minor component governs ABI shape for our purposes.
	minor := (v / PackedSemverMinorMask) % PackedSemverMinorMask
	return types.ProtocolVersionID(minor), nil
}

func selector(name string) ([]byte, error) {
	method, ok := diamondProxyABI.Methods[name]
	if !ok {
		return nil, fmt.Errorf("multicall: unknown method %s", name)
	}
	return method.ID, nil
}

var diamondProxyABI = mustParseABI(`[
	{"name":"getL2BootloaderBytecodeHash","type":"function","stateMutability":"view","inputs":[],"outputs":[{"type":"bytes32"}]},
	{"name":"getL2DefaultAccountBytecodeHash","type":"function","stateMutability":"view","inputs":[],"outputs":[{"type":"bytes32"}]},
	{"name":"getL2EvmEmulatorBytecodeHash","type":"function","stateMutability":"view","inputs":[],"outputs":[{"type":"bytes32"}]},
	{"name":"getVerifierParams","type":"function","stateMutability":"view","inputs":[],"outputs":[{"type":"bytes32"}]},
	{"name":"getVerifier","type":"function","stateMutability":"view","inputs":[],"outputs":[{"type":"address"}]},
	{"name":"getProtocolVersion","type":"function","stateMutability":"view","inputs":[],"outputs":[{"type":"uint256"}]},
	{"name":"validatorTimelock","type":"function","stateMutability":"view","inputs":[],"outputs":[{"type":"address"}]}
]`)
