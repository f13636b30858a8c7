package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/layer-3/verisafe/core"
)

// stageError ties a failure to the stage it happened in and to the error class
// callers match on.
type stageError struct {
	class error
	stage core.Stage
	err   error
}

func (e *stageError) Error() string {
	return fmt.Sprintf("%s: %v", e.class, e.err)
}

func (e *stageError) Unwrap() []error {
	return []error{e.class, e.err}
}

func failAt(class error, stage core.Stage, err error) error {
	return &stageError{class: class, stage: stage, err: err}
}

// ConnectionMessage is the text shown for a failed connect.
func ConnectionMessage(err error) string {
	return "Wallet connection failed: " + err.Error()
}

func sdkInitMessage(err error) string {
	detail := strings.TrimPrefix(err.Error(), core.ErrSDKInit.Error()+": ")
	return fmt.Sprintf("FHE SDK initialization failed: %s. Please refresh and try again.", detail)
}

// VerificationMessage is the text shown for a failed attempt. It depends only
// on err, so concurrent callers each get their own text.
func VerificationMessage(err error) string {
	var se *stageError
	cause := err
	if errors.As(err, &se) {
		cause = se.err
	}

	switch {
	case errors.Is(err, core.ErrDecryption):
		return "Transaction succeeded but failed to decrypt result: " + cause.Error()
	case errors.Is(err, core.ErrGasEstimation):
		return fmt.Sprintf("Gas estimation failed: %v. This usually means the contract call will fail.", cause)
	case errors.Is(err, core.ErrSDKInit):
		return sdkInitMessage(err)
	default:
		return "Verification failed: " + cause.Error()
	}
}
