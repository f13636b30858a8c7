package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/layer-3/verisafe/core"
	"github.com/layer-3/verisafe/internal/eth"
	"github.com/layer-3/verisafe/ports"
	"go.uber.org/zap"
)

// Verify runs one verification attempt for the age typed by the user. Input is
// validated before anything touches the network; invalid input returns
// core.ErrInvalidAge and no attempt is created.
func (c *Controller) Verify(ctx context.Context, input string) (*core.Attempt, error) {
	c.mu.Lock()
	c.state.Age = input
	if !c.state.Connected || c.contract == nil || c.provider == nil {
		c.mu.Unlock()
		return nil, core.ErrNotConnected
	}
	if c.busy {
		c.mu.Unlock()
		return nil, core.ErrVerificationInProgress
	}
	age, err := core.ValidateAge(input)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}

	a := core.NewAttempt(c.newID(), c.state.Account, c.now())
	a.Age = age
	c.busy = true
	c.attempt = a
	c.state.Loading = true
	c.state.Result = nil
	c.state.Error = ""
	c.state.Stage = a.Stage
	c.state.AttemptID = a.ID
	c.state.TxHash = common.Hash{}
	c.state.Handle = core.ZeroHandle

	run := &attemptRun{
		c:        c,
		a:        a,
		provider: c.provider,
		contract: c.contract,
		logger:   c.logger.With(zap.String("attempt", a.ID), zap.String("account", a.Account.Hex())),
	}
	s := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(s)

	defer func() {
		c.mu.Lock()
		c.busy = false
		c.mu.Unlock()
	}()

	run.logger.Info("Verification started")
	err = run.execute(ctx)
	c.finish(ctx, run, err)
	return a, err
}

type attemptRun struct {
	c        *Controller
	a        *core.Attempt
	provider ports.Provider
	contract ports.VeriSafe
	logger   *zap.Logger

	reinitialized bool
	instance      ports.FHEInstance
}

// advance moves the attempt forward and mirrors the stage on screen while the
// attempt is still the current one.
func (r *attemptRun) advance(stage core.Stage) error {
	if err := r.a.Advance(stage); err != nil {
		return err
	}
	r.logger.Debug("Verification stage", zap.String("stage", string(stage)))
	r.c.update(func(s *State) {
		if r.c.attempt == r.a {
			s.Stage = stage
		}
	})
	return nil
}

// sdk runs fn with an SDK instance. An initialisation failure, up front or
// reported by fn, gets one re-initialisation per attempt.
func (r *attemptRun) sdk(ctx context.Context, fn func(ports.FHEInstance) error) error {
	for {
		if r.instance == nil {
			inst, initialized, err := r.c.sdk.Instance(ctx)
			if initialized {
				r.reinitialized = true
			}
			if err != nil {
				return err
			}
			r.instance = inst
		}

		err := fn(r.instance)
		if err == nil || !errors.Is(err, core.ErrSDKInit) || r.reinitialized {
			return err
		}

		r.logger.Warn("FHE SDK instance lost, re-initializing", zap.Error(err))
		r.c.sdk.Reset()
		r.instance = nil
	}
}

func (r *attemptRun) execute(ctx context.Context) error {
	a := r.a
	contractAddr := r.contract.Address()

	if err := r.advance(core.StageAwaitingSDKInit); err != nil {
		return err
	}
	if err := r.sdk(ctx, func(ports.FHEInstance) error { return nil }); err != nil {
		return err
	}

	if err := r.advance(core.StageEncrypting); err != nil {
		return err
	}
	err := r.sdk(ctx, func(inst ports.FHEInstance) error {
		in, err := inst.CreateEncryptedInput(contractAddr, a.Account).Add32(a.Age).Encrypt(ctx)
		if err != nil {
			return err
		}
		if len(in.Handles) == 0 {
			return fmt.Errorf("encryption produced no handles")
		}
		a.Input = in
		return nil
	})
	if err != nil {
		if errors.Is(err, core.ErrSDKInit) {
			return err
		}
		return failAt(core.ErrExecution, core.StageEncrypting, fmt.Errorf("failed to encrypt age: %w", err))
	}
	handle, proof := a.Input.Handles[0], a.Input.InputProof
	r.logger.Debug("Age encrypted", zap.String("handle", handle.Hex()), zap.Int("proof_bytes", len(proof)))

	if err := r.advance(core.StageEstimatingGas); err != nil {
		return err
	}
	gas, err := r.contract.EstimateVerifyAge(ctx, handle, proof)
	if err != nil {
		return failAt(core.ErrGasEstimation, core.StageEstimatingGas, err)
	}
	a.GasLimit = gas

	if err := r.advance(core.StageSubmitting); err != nil {
		return err
	}
	txHash, err := r.contract.SubmitVerifyAge(ctx, handle, proof, gas)
	if err != nil {
		if core.IsUserRejection(err) {
			return err
		}
		return failAt(core.ErrExecution, core.StageSubmitting, err)
	}
	a.TxHash = txHash
	r.c.update(func(s *State) {
		if r.c.attempt == a {
			s.TxHash = txHash
		}
	})
	r.logger.Info("Verification transaction sent", zap.String("tx", txHash.Hex()), zap.Uint64("gas_limit", gas))

	if err := r.advance(core.StageConfirming); err != nil {
		return err
	}
	receipt, err := r.contract.WaitMined(ctx, txHash)
	if err != nil {
		return failAt(core.ErrExecution, core.StageConfirming, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return failAt(core.ErrExecution, core.StageConfirming, fmt.Errorf("transaction %s reverted", txHash.Hex()))
	}
	r.logger.Info("Verification transaction confirmed",
		zap.String("tx", txHash.Hex()),
		zap.Uint64("gas_used", receipt.GasUsed),
		zap.String("fee_eth", eth.FormatEther(eth.ReceiptFee(receipt))),
	)

	return r.decrypt(ctx, handle, proof, contractAddr)
}

// decrypt runs everything after confirmation. Failures here keep the tx hash.
func (r *attemptRun) decrypt(ctx context.Context, input core.Handle, proof []byte, contractAddr common.Address) error {
	a := r.a

	if err := r.advance(core.StageResolvingHandle); err != nil {
		return err
	}
	result, err := r.resolveHandle(ctx, input, proof)
	if err != nil {
		return failAt(core.ErrDecryption, core.StageResolvingHandle, err)
	}
	a.Handle = result
	r.c.update(func(s *State) {
		if r.c.attempt == a {
			s.Handle = result
		}
	})

	if err := r.advance(core.StageAuthorizingDecryption); err != nil {
		return err
	}
	start := r.c.now().Unix()
	contracts := []common.Address{contractAddr}
	days := r.c.cfg.DecryptionDays

	var (
		keypair core.Keypair
		sig     []byte
	)
	err = r.sdk(ctx, func(inst ports.FHEInstance) error {
		var err error
		if keypair, err = inst.GenerateKeypair(ctx); err != nil {
			return err
		}
		typed, err := inst.CreateEIP712(ctx, keypair.PublicKey, contracts, start, days)
		if err != nil {
			return err
		}
		sig, err = r.provider.SignTypedData(ctx, a.Account, typed)
		return err
	})
	if err != nil {
		if core.IsUserRejection(err) {
			return err
		}
		return failAt(core.ErrDecryption, core.StageAuthorizingDecryption, err)
	}

	if err := r.advance(core.StageDecrypting); err != nil {
		return err
	}
	var values map[string]any
	err = r.sdk(ctx, func(inst ports.FHEInstance) error {
		var err error
		values, err = inst.UserDecrypt(ctx, ports.UserDecryptRequest{
			Pairs:          []core.HandleContractPair{{Handle: result, ContractAddress: contractAddr}},
			Keypair:        keypair,
			Signature:      sig,
			Contracts:      contracts,
			User:           a.Account,
			StartTimestamp: start,
			DurationDays:   days,
		})
		return err
	})
	if err != nil {
		return failAt(core.ErrDecryption, core.StageDecrypting, err)
	}

	raw, err := lookupResult(values, result)
	if err != nil {
		return failAt(core.ErrDecryption, core.StageDecrypting, err)
	}
	qualified, err := core.DecodeBool(raw)
	if err != nil {
		return failAt(core.ErrDecryption, core.StageDecrypting, err)
	}

	if expected := a.Age >= core.AdultAge; qualified != expected {
		r.logger.Warn("Decrypted result disagrees with submitted age",
			zap.Uint32("age", a.Age), zap.Bool("qualified", qualified), zap.Bool("expected", expected))
	}

	a.Outcome = &core.Outcome{Qualified: qualified}
	return r.advance(core.StageDone)
}

// resolveHandle picks the result handle to decrypt. The simulated call is
// authoritative; the stored value only stands in when simulation gives nothing.
func (r *attemptRun) resolveHandle(ctx context.Context, input core.Handle, proof []byte) (core.Handle, error) {
	simulated, simErr := r.contract.SimulateVerifyAge(ctx, input, proof)
	if simErr != nil {
		r.logger.Warn("Simulating verifyAge failed", zap.Error(simErr))
	}

	if err := r.c.sleep(ctx, r.c.cfg.ResultReadDelay); err != nil {
		return core.ZeroHandle, err
	}
	stored, readErr := r.contract.LastVerificationResult(ctx)
	if readErr != nil {
		r.logger.Warn("Reading last verification result failed", zap.Error(readErr))
	}

	switch {
	case simErr == nil && !simulated.IsZero():
		if readErr == nil && stored != simulated {
			r.logger.Warn("Stored result handle differs from simulated handle, using simulated",
				zap.String("simulated", simulated.Hex()), zap.String("stored", stored.Hex()))
		}
		return simulated, nil
	case readErr == nil && !stored.IsZero():
		r.logger.Info("Using stored result handle", zap.String("stored", stored.Hex()))
		return stored, nil
	case readErr != nil:
		return core.ZeroHandle, fmt.Errorf("no result handle: %w", readErr)
	default:
		return core.ZeroHandle, errors.New("contract returned an empty result handle")
	}
}

// lookupResult finds the plaintext for h, falling back to the only value when
// the SDK keyed it differently.
func lookupResult(values map[string]any, h core.Handle) (any, error) {
	if v, ok := values[h.Hex()]; ok {
		return v, nil
	}
	for k, v := range values {
		if strings.EqualFold(k, h.Hex()) {
			return v, nil
		}
	}
	if len(values) == 1 {
		for _, v := range values {
			return v, nil
		}
	}
	return nil, fmt.Errorf("no decrypted value for handle %s", h.Hex())
}

// finish records the outcome and publishes it.
func (c *Controller) finish(ctx context.Context, r *attemptRun, err error) {
	a := r.a
	if err != nil {
		a.Fail(err)
	}

	c.mu.Lock()
	if c.attempt == a {
		c.state.Loading = false
		c.state.Stage = a.Stage
		if a.Outcome != nil {
			o := *a.Outcome
			c.state.Result = &o
		}
		if err != nil && !core.IsUserRejection(err) {
			c.state.Error = VerificationMessage(err)
		}
	}
	s := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(s)

	ev := ports.VerificationEvent{
		AttemptID: a.ID,
		Address:   a.Account.Hex(),
		Stage:     string(a.Stage),
	}
	if a.TxHash != (common.Hash{}) {
		ev.TxHash = a.TxHash.Hex()
	}
	if !a.Handle.IsZero() {
		ev.Handle = a.Handle.Hex()
	}
	if a.Outcome != nil {
		q := a.Outcome.Qualified
		ev.Qualified = &q
	}

	switch {
	case err == nil:
		r.logger.Info("Verification finished", zap.String("result", a.Outcome.Label()))
	case core.IsUserRejection(err):
		r.logger.Info("Verification cancelled by user")
		ev.Error = err.Error()
	default:
		r.logger.Error("Verification failed", zap.String("stage", failedStage(err)), zap.Error(err))
		ev.Error = err.Error()
	}

	if perr := c.events.PublishVerification(ctx, ev); perr != nil {
		r.logger.Warn("Failed to publish verification event", zap.Error(perr))
	}
}

func failedStage(err error) string {
	var se *stageError
	if errors.As(err, &se) {
		return string(se.stage)
	}
	return ""
}
