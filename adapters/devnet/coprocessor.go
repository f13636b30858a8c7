// Package devnet provides in-process stand-ins for the FHE coprocessor, the relayer
// SDK and a wallet on the VeriSafe chain. They keep the same trust rules as the
// real network (input binding, ACL, signed decryption requests) without crypto
// on ciphertexts.
package devnet

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/verisafe/core"
)

var (
	ErrUnknownHandle = errors.New("unknown handle")
	ErrInvalidProof  = errors.New("invalid input proof")
	ErrNotAllowed    = errors.New("handle is not allowed for this address")
)

// Value types as the coprocessor tracks them.
const (
	TypeEbool   = "ebool"
	TypeEuint32 = "euint32"
)

type ciphertext struct {
	kind  string
	value uint64
}

type binding struct {
	contract common.Address
	user     common.Address
	proof    []byte
}

// Coprocessor stores plaintexts behind handles and the ACL that guards them.
type Coprocessor struct {
	mu     sync.Mutex
	values map[core.Handle]ciphertext
	inputs map[core.Handle]binding
	acl    map[core.Handle]map[common.Address]bool
}

func NewCoprocessor() *Coprocessor {
	return &Coprocessor{
		values: make(map[core.Handle]ciphertext),
		inputs: make(map[core.Handle]binding),
		acl:    make(map[core.Handle]map[common.Address]bool),
	}
}

// Encrypt registers values as inputs bound to (contract, user). The proof is only
// valid for that pair.
func (c *Coprocessor) Encrypt(values []uint32, contract, user common.Address) (core.EncryptedInput, error) {
	var nonce [32]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return core.EncryptedInput{}, fmt.Errorf("failed to draw nonce: %w", err)
	}

	in := core.EncryptedInput{Handles: make([]core.Handle, len(values))}
	var all bytes.Buffer
	for i := range values {
		var idx [4]byte
		binary.BigEndian.PutUint32(idx[:], uint32(i))
		in.Handles[i] = core.Handle(crypto.Keccak256Hash(nonce[:], idx[:], contract.Bytes(), user.Bytes()))
		all.Write(in.Handles[i][:])
	}
	in.InputProof = crypto.Keccak256(all.Bytes(), contract.Bytes(), user.Bytes())

	c.mu.Lock()
	defer c.mu.Unlock()
	for i, v := range values {
		c.values[in.Handles[i]] = ciphertext{kind: TypeEuint32, value: uint64(v)}
		c.inputs[in.Handles[i]] = binding{contract: contract, user: user, proof: in.InputProof}
	}
	return in, nil
}

// VerifyInput checks that h was encrypted for contract and user with proof.
func (c *Coprocessor) VerifyInput(h core.Handle, proof []byte, contract, user common.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, ok := c.inputs[h]
	if !ok {
		return fmt.Errorf("%w %s", ErrUnknownHandle, h.Hex())
	}
	if b.contract != contract || b.user != user || !bytes.Equal(b.proof, proof) {
		return ErrInvalidProof
	}
	return nil
}

// GreaterOrEqual computes ebool(h >= threshold). The result handle depends only
// on the operands, so simulating and executing the same call agree.
func (c *Coprocessor) GreaterOrEqual(h core.Handle, threshold uint64) (core.Handle, error) {
	var t [8]byte
	binary.BigEndian.PutUint64(t[:], threshold)
	result := core.Handle(crypto.Keccak256Hash([]byte("ge"), h[:], t[:]))

	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.values[h]
	if !ok {
		return core.ZeroHandle, fmt.Errorf("%w %s", ErrUnknownHandle, h.Hex())
	}
	var out uint64
	if v.value >= threshold {
		out = 1
	}
	c.values[result] = ciphertext{kind: TypeEbool, value: out}
	return result, nil
}

// Allow grants addr the right to use h.
func (c *Coprocessor) Allow(h core.Handle, addr common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.acl[h] == nil {
		c.acl[h] = make(map[common.Address]bool)
	}
	c.acl[h][addr] = true
}

func (c *Coprocessor) IsAllowed(h core.Handle, addr common.Address) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acl[h][addr]
}

// plaintext returns the stored value and its type.
func (c *Coprocessor) plaintext(h core.Handle) (ciphertext, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.values[h]
	if !ok {
		return ciphertext{}, fmt.Errorf("%w %s", ErrUnknownHandle, h.Hex())
	}
	return v, nil
}
