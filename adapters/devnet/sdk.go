package devnet

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/layer-3/verisafe/adapters/relayer"
	"github.com/layer-3/verisafe/core"
	"github.com/layer-3/verisafe/internal/eth"
	"github.com/layer-3/verisafe/ports"
	"golang.org/x/crypto/nacl/box"
)

const secondsPerDay = 24 * 60 * 60

var ErrRequestExpired = errors.New("decryption request is outside its validity window")

// SDK is an in-process relayer SDK backed by a Coprocessor.
type SDK struct {
	cop *Coprocessor
	now func() time.Time

	mu          sync.Mutex
	initCalls   int
	createCalls int
	failInits   int
	generation  int
}

func NewSDK(cop *Coprocessor) *SDK {
	return &SDK{cop: cop, now: time.Now}
}

// SetClock replaces the time source used for validity windows.
func (s *SDK) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// FailInits makes the next n Init calls fail.
func (s *SDK) FailInits(n int) {
	s.mu.Lock()
	s.failInits = n
	s.mu.Unlock()
}

// ExpireInstances invalidates every instance handed out so far, as a relayer
// restart would.
func (s *SDK) ExpireInstances() {
	s.mu.Lock()
	s.generation++
	s.mu.Unlock()
}

// Calls reports how often Init and CreateInstance ran.
func (s *SDK) Calls() (inits, creates int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initCalls, s.createCalls
}

func (s *SDK) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initCalls++
	if s.failInits > 0 {
		s.failInits--
		return errors.New("failed to load tfhe runtime")
	}
	return ctx.Err()
}

func (s *SDK) CreateInstance(ctx context.Context, network core.NetworkConfig) (ports.FHEInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.createCalls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Instance{sdk: s, network: network, generation: s.generation}, nil
}

// Instance is one SDK instance for a network.
type Instance struct {
	sdk        *SDK
	network    core.NetworkConfig
	generation int
}

func (i *Instance) alive() error {
	i.sdk.mu.Lock()
	defer i.sdk.mu.Unlock()
	if i.generation != i.sdk.generation {
		return fmt.Errorf("%w: instance expired", core.ErrSDKInit)
	}
	return nil
}

func (i *Instance) clock() time.Time {
	i.sdk.mu.Lock()
	defer i.sdk.mu.Unlock()
	return i.sdk.now()
}

func (i *Instance) CreateEncryptedInput(contract, user common.Address) ports.EncryptedInputBuilder {
	return &inputBuilder{instance: i, contract: contract, user: user}
}

type inputBuilder struct {
	instance *Instance
	contract common.Address
	user     common.Address
	values   []uint32
}

func (b *inputBuilder) Add32(v uint32) ports.EncryptedInputBuilder {
	b.values = append(b.values, v)
	return b
}

func (b *inputBuilder) Encrypt(ctx context.Context) (core.EncryptedInput, error) {
	if err := b.instance.alive(); err != nil {
		return core.EncryptedInput{}, err
	}
	if len(b.values) == 0 {
		return core.EncryptedInput{}, fmt.Errorf("nothing to encrypt")
	}
	return b.instance.sdk.cop.Encrypt(b.values, b.contract, b.user)
}

func (i *Instance) GenerateKeypair(ctx context.Context) (core.Keypair, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return core.Keypair{}, fmt.Errorf("failed to generate keypair: %w", err)
	}
	return core.Keypair{PublicKey: hex.EncodeToString(pub[:]), PrivateKey: hex.EncodeToString(priv[:])}, nil
}

func (i *Instance) CreateEIP712(ctx context.Context, publicKey string, contracts []common.Address, startTimestamp int64, durationDays int) (apitypes.TypedData, error) {
	if err := i.alive(); err != nil {
		return apitypes.TypedData{}, err
	}
	return relayer.UserDecryptTypedData(i.network, publicKey, contracts, startTimestamp, durationDays), nil
}

// UserDecrypt checks the signed request and the ACL, re-encrypts each plaintext
// to the request's public key and opens it with the private key.
func (i *Instance) UserDecrypt(ctx context.Context, req ports.UserDecryptRequest) (map[string]any, error) {
	if err := i.alive(); err != nil {
		return nil, err
	}

	td := relayer.UserDecryptTypedData(i.network, req.Keypair.PublicKey, req.Contracts, req.StartTimestamp, req.DurationDays)
	ok, err := eth.VerifySignatureAgainstAddress(td, req.Signature, req.User)
	if err != nil {
		return nil, fmt.Errorf("invalid decryption signature: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("decryption request was not signed by %s", req.User.Hex())
	}

	now := i.clock().Unix()
	if req.DurationDays <= 0 || now < req.StartTimestamp || now >= req.StartTimestamp+int64(req.DurationDays)*secondsPerDay {
		return nil, ErrRequestExpired
	}

	pub, priv, err := decodeKeypair(req.Keypair)
	if err != nil {
		return nil, err
	}

	results := make(map[string]any, len(req.Pairs))
	for _, p := range req.Pairs {
		if !slices.Contains(req.Contracts, p.ContractAddress) {
			return nil, fmt.Errorf("contract %s is not part of the signed request", p.ContractAddress.Hex())
		}
		cop := i.sdk.cop
		if !cop.IsAllowed(p.Handle, req.User) || !cop.IsAllowed(p.Handle, p.ContractAddress) {
			return nil, fmt.Errorf("%w: %s", ErrNotAllowed, p.Handle.Hex())
		}
		ct, err := cop.plaintext(p.Handle)
		if err != nil {
			return nil, err
		}

		var msg [8]byte
		binary.BigEndian.PutUint64(msg[:], ct.value)
		sealed, err := box.SealAnonymous(nil, msg[:], pub, rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("failed to re-encrypt %s: %w", p.Handle.Hex(), err)
		}
		opened, ok := box.OpenAnonymous(nil, sealed, pub, priv)
		if !ok || len(opened) != len(msg) {
			return nil, fmt.Errorf("failed to open re-encrypted %s", p.Handle.Hex())
		}

		v := binary.BigEndian.Uint64(opened)
		switch ct.kind {
		case TypeEbool:
			results[p.Handle.Hex()] = v != 0
		default:
			results[p.Handle.Hex()] = new(big.Int).SetUint64(v)
		}
	}
	return results, nil
}

func decodeKeypair(kp core.Keypair) (pub, priv *[32]byte, err error) {
	pub, err = decodeKey(kp.PublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid public key: %w", err)
	}
	priv, err = decodeKey(kp.PrivateKey)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid private key: %w", err)
	}
	return pub, priv, nil
}

func decodeKey(s string) (*[32]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, err
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("got %d bytes, want 32", len(raw))
	}
	var k [32]byte
	copy(k[:], raw)
	return &k, nil
}
