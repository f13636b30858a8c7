package core

import "errors"

var (
	ErrTokenExpired     = errors.New("token has expired")
	ErrTokenInvalidated = errors.New("token has been invalidated")
	ErrInvalidToken     = errors.New("invalid token")

	ErrUserRejected           = errors.New("user rejected the request")
	ErrNoWallet               = errors.New("no wallet provider found")
	ErrChainMismatch          = errors.New("wallet is on the wrong network")
	ErrSDKInit                = errors.New("FHE SDK initialization failed")
	ErrGasEstimation          = errors.New("gas estimation failed")
	ErrExecution              = errors.New("transaction failed")
	ErrDecryption             = errors.New("failed to decrypt result")
	ErrNotConnected           = errors.New("wallet is not connected")
	ErrVerificationInProgress = errors.New("verification already in progress")
	ErrInvalidAge             = errors.New("age must be a whole number between 1 and 150")
	ErrUnexpectedPlaintext    = errors.New("unexpected decrypted value")
	ErrInvalidHandle          = errors.New("invalid ciphertext handle")
	ErrInvalidTransition      = errors.New("invalid stage transition")
)
