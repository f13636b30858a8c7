package core

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Stage is a step of the connect -> encrypt -> submit -> decrypt workflow.
type Stage string

const (
	StageIdle                  Stage = "idle"
	StageConnecting            Stage = "connecting"
	StageConnected             Stage = "connected"
	StageValidatingInput       Stage = "validating-input"
	StageAwaitingSDKInit       Stage = "awaiting-sdk-init"
	StageEncrypting            Stage = "encrypting"
	StageEstimatingGas         Stage = "estimating-gas"
	StageSubmitting            Stage = "submitting"
	StageConfirming            Stage = "confirming"
	StageResolvingHandle       Stage = "resolving-handle"
	StageAuthorizingDecryption Stage = "authorizing-decryption"
	StageDecrypting            Stage = "decrypting"
	StageDone                  Stage = "done"
	StageFailed                Stage = "failed"
)

// attemptOrder is the only path a verification attempt may take. Failure is
// allowed from any non-terminal stage.
var attemptOrder = []Stage{
	StageValidatingInput,
	StageAwaitingSDKInit,
	StageEncrypting,
	StageEstimatingGas,
	StageSubmitting,
	StageConfirming,
	StageResolvingHandle,
	StageAuthorizingDecryption,
	StageDecrypting,
	StageDone,
}

func (s Stage) Terminal() bool {
	return s == StageDone || s == StageFailed
}

// Next returns the stage that follows s on the happy path.
func (s Stage) Next() (Stage, bool) {
	for i, st := range attemptOrder {
		if st == s && i+1 < len(attemptOrder) {
			return attemptOrder[i+1], true
		}
	}
	return "", false
}

// Attempt is one user initiated verification. It is discarded on the next
// attempt or on navigation.
type Attempt struct {
	ID        string
	Account   common.Address
	Age       uint32
	Stage     Stage
	Input     EncryptedInput
	GasLimit  uint64
	TxHash    common.Hash
	Handle    Handle
	Outcome   *Outcome
	Err       error
	StartedAt time.Time
}

// NewAttempt starts an attempt in the validating-input stage.
func NewAttempt(id string, account common.Address, now time.Time) *Attempt {
	return &Attempt{
		ID:        id,
		Account:   account,
		Stage:     StageValidatingInput,
		StartedAt: now,
	}
}

// Advance moves the attempt to the given stage.
func (a *Attempt) Advance(to Stage) error {
	if a.Stage.Terminal() {
		return fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, a.Stage)
	}
	if to == StageFailed {
		a.Stage = to
		return nil
	}
	next, ok := a.Stage.Next()
	if !ok || next != to {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Stage, to)
	}
	a.Stage = to
	return nil
}

// Fail records err and moves the attempt to the failed stage.
func (a *Attempt) Fail(err error) {
	a.Err = err
	if !a.Stage.Terminal() {
		a.Stage = StageFailed
	}
}
