package devnet

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/layer-3/verisafe/adapters/chain"
	"github.com/layer-3/verisafe/adapters/relayer"
	"github.com/layer-3/verisafe/core"
	"github.com/layer-3/verisafe/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ ports.Provider   = (*Wallet)(nil)
	_ ports.RelayerSDK = (*SDK)(nil)
)

type fixture struct {
	net      *Network
	inst     ports.FHEInstance
	contract ports.VeriSafe
	user     common.Address
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	ctx := context.Background()

	net, err := New(nil, opts)
	require.NoError(t, err)
	accounts, err := net.Wallet.RequestAccounts(ctx)
	require.NoError(t, err)

	require.NoError(t, net.SDK.Init(ctx))
	inst, err := net.SDK.CreateInstance(ctx, relayer.SepoliaConfig())
	require.NoError(t, err)

	contract, err := chain.Binder{Address: chain.DefaultAddress, PollInterval: time.Millisecond}.Bind(net.Wallet, accounts[0])
	require.NoError(t, err)
	return &fixture{net: net, inst: inst, contract: contract, user: accounts[0]}
}

// submit encrypts age and mines verifyAge, returning the simulated result handle.
func (f *fixture) submit(t *testing.T, age uint32) (core.Handle, *types.Receipt) {
	t.Helper()
	ctx := context.Background()

	in, err := f.inst.CreateEncryptedInput(chain.DefaultAddress, f.user).Add32(age).Encrypt(ctx)
	require.NoError(t, err)
	gas, err := f.contract.EstimateVerifyAge(ctx, in.Handles[0], in.InputProof)
	require.NoError(t, err)
	hash, err := f.contract.SubmitVerifyAge(ctx, in.Handles[0], in.InputProof, gas)
	require.NoError(t, err)
	receipt, err := f.contract.WaitMined(ctx, hash)
	require.NoError(t, err)
	result, err := f.contract.SimulateVerifyAge(ctx, in.Handles[0], in.InputProof)
	require.NoError(t, err)
	return result, receipt
}

func (f *fixture) decrypt(t *testing.T, h core.Handle, start int64) (map[string]any, error) {
	t.Helper()
	ctx := context.Background()

	kp, err := f.inst.GenerateKeypair(ctx)
	require.NoError(t, err)
	contracts := []common.Address{chain.DefaultAddress}
	td, err := f.inst.CreateEIP712(ctx, kp.PublicKey, contracts, start, 1)
	require.NoError(t, err)
	sig, err := f.net.Wallet.SignTypedData(ctx, f.user, td)
	require.NoError(t, err)

	return f.inst.UserDecrypt(ctx, ports.UserDecryptRequest{
		Pairs:          []core.HandleContractPair{{Handle: h, ContractAddress: chain.DefaultAddress}},
		Keypair:        kp,
		Signature:      sig,
		Contracts:      contracts,
		User:           f.user,
		StartTimestamp: start,
		DurationDays:   1,
	})
}

func TestDevnet_VerifyAndDecrypt(t *testing.T) {
	for _, tc := range []struct {
		age  uint32
		want bool
	}{
		{age: 25, want: true},
		{age: 18, want: true},
		{age: 17, want: false},
		{age: 10, want: false},
	} {
		f := newFixture(t, Options{})
		result, receipt := f.submit(t, tc.age)
		assert.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)

		stored, err := f.contract.LastVerificationResult(context.Background())
		require.NoError(t, err)
		assert.Equal(t, result, stored, "age %d", tc.age)

		out, err := f.decrypt(t, result, time.Now().Unix())
		require.NoError(t, err)
		qualified, err := core.DecodeBool(out[result.Hex()])
		require.NoError(t, err)
		assert.Equal(t, tc.want, qualified, "age %d", tc.age)
	}
}

func TestDevnet_StaleReads(t *testing.T) {
	f := newFixture(t, Options{StaleReads: true})
	result, _ := f.submit(t, 30)

	stored, err := f.contract.LastVerificationResult(context.Background())
	require.NoError(t, err)
	assert.True(t, stored.IsZero())
	assert.False(t, result.IsZero())
}

func TestDevnet_InputBoundToSender(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	other := common.HexToAddress("0x00000000000000000000000000000000000b0b00")
	in, err := f.inst.CreateEncryptedInput(chain.DefaultAddress, other).Add32(30).Encrypt(ctx)
	require.NoError(t, err)

	_, err = f.contract.EstimateVerifyAge(ctx, in.Handles[0], in.InputProof)
	assert.ErrorIs(t, err, ErrInvalidProof)
}

func TestDevnet_DecryptRequiresACLAndWindow(t *testing.T) {
	f := newFixture(t, Options{})
	result, _ := f.submit(t, 30)

	_, err := f.decrypt(t, result, time.Now().Add(-48*time.Hour).Unix())
	assert.ErrorIs(t, err, ErrRequestExpired)

	in, err := f.inst.CreateEncryptedInput(chain.DefaultAddress, f.user).Add32(30).Encrypt(context.Background())
	require.NoError(t, err)
	_, err = f.decrypt(t, in.Handles[0], time.Now().Unix())
	assert.ErrorIs(t, err, ErrNotAllowed)
}

func TestDevnet_RevertAndRejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{Revert: true})
	in, err := f.inst.CreateEncryptedInput(chain.DefaultAddress, f.user).Add32(30).Encrypt(ctx)
	require.NoError(t, err)

	hash, err := f.contract.SubmitVerifyAge(ctx, in.Handles[0], in.InputProof, verifyAgeGas)
	require.NoError(t, err)
	receipt, err := f.contract.WaitMined(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptStatusFailed, receipt.Status)

	f.net.Wallet.Configure(Options{RejectTransaction: true})
	_, err = f.contract.SubmitVerifyAge(ctx, in.Handles[0], in.InputProof, verifyAgeGas)
	assert.True(t, core.IsUserRejection(err))
}

func TestDevnet_UnknownChain(t *testing.T) {
	ctx := context.Background()
	net, err := New(nil, Options{ChainID: 1, UnknownChain: true})
	require.NoError(t, err)

	err = net.Wallet.SwitchChain(ctx, core.SepoliaChainID)
	assert.True(t, core.IsUnrecognizedChain(err))

	require.NoError(t, net.Wallet.AddChain(ctx, core.SepoliaChain(relayer.SepoliaNetworkURL)))
	require.NoError(t, net.Wallet.SwitchChain(ctx, core.SepoliaChainID))
	id, err := net.Wallet.ChainID(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.SepoliaChainID, id)
}

func TestSDK_ExpireInstances(t *testing.T) {
	ctx := context.Background()
	sdk := NewSDK(NewCoprocessor())
	inst, err := sdk.CreateInstance(ctx, relayer.SepoliaConfig())
	require.NoError(t, err)

	sdk.ExpireInstances()
	_, err = inst.CreateEncryptedInput(chain.DefaultAddress, common.Address{}).Add32(1).Encrypt(ctx)
	assert.ErrorIs(t, err, core.ErrSDKInit)

	sdk.FailInits(1)
	assert.Error(t, sdk.Init(ctx))
	assert.NoError(t, sdk.Init(ctx))
	inits, creates := sdk.Calls()
	assert.Equal(t, 2, inits)
	assert.Equal(t, 1, creates)
}

func TestContract_Calldata(t *testing.T) {
	c := &contract{address: chain.DefaultAddress, cop: NewCoprocessor()}
	sender := common.HexToAddress("0x1234")

	_, err := c.call(sender, []byte{0x01}, false)
	assert.EqualError(t, err, "calldata too short")

	_, err = c.call(sender, []byte{0xde, 0xad, 0xbe, 0xef}, false)
	assert.Error(t, err)

	parsed := chain.ParsedABI()
	data, err := parsed.Pack(chain.MethodLastResult)
	require.NoError(t, err)
	out, err := c.call(sender, data, false)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 32), out)

	_, err = decodeVerifyArgs(data)
	assert.ErrorContains(t, err, "is not a transaction method")
}
