package devnet

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/verisafe/adapters/chain"
	"github.com/layer-3/verisafe/core"
)

// contract is the VeriSafe contract state machine: verifyAge checks the input,
// computes ebool(age >= 18), grants the caller and itself access and stores it.
type contract struct {
	address common.Address
	cop     *Coprocessor

	last     core.Handle
	previous core.Handle
}

type verifyArgs struct {
	input core.Handle
	proof []byte
}

func decodeVerifyArgs(data []byte) (verifyArgs, error) {
	parsed := chain.ParsedABI()
	method, err := parsed.MethodById(data)
	if err != nil {
		return verifyArgs{}, err
	}
	if method.Name != chain.MethodVerifyAge {
		return verifyArgs{}, fmt.Errorf("%s is not a transaction method", method.Name)
	}
	vals, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return verifyArgs{}, fmt.Errorf("failed to decode %s arguments: %w", method.Name, err)
	}
	return verifyArgs{input: core.Handle(vals[0].([32]byte)), proof: vals[1].([]byte)}, nil
}

// verify runs verifyAge without side effects on the contract or the ACL.
func (c *contract) verify(sender common.Address, args verifyArgs) (core.Handle, error) {
	if err := c.cop.VerifyInput(args.input, args.proof, c.address, sender); err != nil {
		return core.ZeroHandle, err
	}
	return c.cop.GreaterOrEqual(args.input, core.AdultAge)
}

// execute is verifyAge as a mined transaction.
func (c *contract) execute(sender common.Address, args verifyArgs) (core.Handle, error) {
	result, err := c.verify(sender, args)
	if err != nil {
		return core.ZeroHandle, err
	}
	c.cop.Allow(result, sender)
	c.cop.Allow(result, c.address)
	c.previous, c.last = c.last, result
	return result, nil
}

func (c *contract) call(sender common.Address, data []byte, stale bool) ([]byte, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("calldata too short")
	}
	parsed := chain.ParsedABI()
	method, err := parsed.MethodById(data[:4])
	if err != nil {
		return nil, err
	}

	var out core.Handle
	switch method.Name {
	case chain.MethodVerifyAge:
		args, err := decodeVerifyArgs(data)
		if err != nil {
			return nil, err
		}
		if out, err = c.verify(sender, args); err != nil {
			return nil, fmt.Errorf("execution reverted: %w", err)
		}
	case chain.MethodLastResult:
		out = c.last
		if stale {
			out = c.previous
		}
	}
	return method.Outputs.Pack([32]byte(out))
}
