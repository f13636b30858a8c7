package relayer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/layer-3/verisafe/core"
	"github.com/layer-3/verisafe/ports"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

const (
	defaultRetries    = 3
	defaultRetryDelay = time.Second
	maxErrorBody      = 4 << 10
)

// APIError is a non-2xx answer from the SDK sidecar.
type APIError struct {
	Status  int
	Path    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("relayer %s: status %d: %s", e.Path, e.Status, e.Message)
}

// Client drives the relayer SDK hosted in a sidecar process over HTTP. Transport
// failures and 5xx answers are retried with a constant delay.
type Client struct {
	baseURL    string
	http       *http.Client
	retries    uint64
	retryDelay time.Duration
	logger     *zap.Logger
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithRetry sets how many times a failed request is retried and the delay between tries.
func WithRetry(retries uint64, delay time.Duration) ClientOption {
	return func(c *Client) {
		c.retries = retries
		c.retryDelay = delay
	}
}

func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       &http.Client{Timeout: 60 * time.Second},
		retries:    defaultRetries,
		retryDelay: defaultRetryDelay,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retryDelay <= 0 {
		c.retryDelay = time.Millisecond
	}
	return c
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", path, err)
	}

	attempt := 0
	backoff := retry.WithMaxRetries(c.retries, retry.NewConstant(c.retryDelay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to build %s request: %w", path, err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			c.logger.Debug("Relayer request failed", zap.String("path", path), zap.Int("attempt", attempt), zap.Error(err))
			return retry.RetryableError(fmt.Errorf("relayer %s: %w", path, err))
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			apiErr := readAPIError(path, resp)
			if resp.StatusCode >= 500 {
				c.logger.Debug("Relayer returned server error", zap.String("path", path), zap.Int("attempt", attempt), zap.Error(apiErr))
				return retry.RetryableError(apiErr)
			}
			return apiErr
		}

		if out == nil {
			return nil
		}
		dec := json.NewDecoder(resp.Body)
		dec.UseNumber()
		if err := dec.Decode(out); err != nil {
			return fmt.Errorf("failed to decode %s response: %w", path, err)
		}
		return nil
	})
}

func readAPIError(path string, resp *http.Response) *APIError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(raw))

	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		msg = body.Error
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &APIError{Status: resp.StatusCode, Path: path, Message: msg}
}

// Init loads the SDK runtime in the sidecar.
func (c *Client) Init(ctx context.Context) error {
	return c.post(ctx, "/v1/init", struct{}{}, nil)
}

func (c *Client) CreateInstance(ctx context.Context, network core.NetworkConfig) (ports.FHEInstance, error) {
	var resp struct {
		InstanceID string `json:"instanceId"`
	}
	if err := c.post(ctx, "/v1/instances", map[string]any{"network": network}, &resp); err != nil {
		return nil, err
	}
	if resp.InstanceID == "" {
		return nil, fmt.Errorf("relayer returned no instance")
	}
	return &instance{client: c, id: resp.InstanceID, network: network}, nil
}

type instance struct {
	client  *Client
	id      string
	network core.NetworkConfig
}

// call posts an instance-scoped request. An unknown instance means the sidecar
// restarted and the SDK has to be initialised again.
func (i *instance) call(ctx context.Context, path string, in map[string]any, out any) error {
	in["instanceId"] = i.id
	err := i.client.post(ctx, path, in, out)

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return fmt.Errorf("%w: relayer instance %s is gone: %v", core.ErrSDKInit, i.id, apiErr)
	}
	return err
}

func (i *instance) CreateEncryptedInput(contract, user common.Address) ports.EncryptedInputBuilder {
	return &inputBuilder{instance: i, contract: contract, user: user}
}

func (i *instance) GenerateKeypair(ctx context.Context) (core.Keypair, error) {
	var kp core.Keypair
	if err := i.call(ctx, "/v1/keypair", map[string]any{}, &kp); err != nil {
		return core.Keypair{}, err
	}
	if kp.PublicKey == "" || kp.PrivateKey == "" {
		return core.Keypair{}, fmt.Errorf("relayer returned an incomplete keypair")
	}
	return kp, nil
}

func (i *instance) CreateEIP712(ctx context.Context, publicKey string, contracts []common.Address, startTimestamp int64, durationDays int) (apitypes.TypedData, error) {
	var td apitypes.TypedData
	err := i.call(ctx, "/v1/eip712", map[string]any{
		"publicKey":         publicKey,
		"contractAddresses": contracts,
		"startTimestamp":    strconv.FormatInt(startTimestamp, 10),
		"durationDays":      strconv.Itoa(durationDays),
	}, &td)
	if err != nil {
		return apitypes.TypedData{}, err
	}
	if td.PrimaryType != UserDecryptPrimaryType {
		return apitypes.TypedData{}, fmt.Errorf("relayer returned typed data for %q, want %q", td.PrimaryType, UserDecryptPrimaryType)
	}
	return td, nil
}

type handlePair struct {
	Handle          string         `json:"handle"`
	ContractAddress common.Address `json:"contractAddress"`
}

func (i *instance) UserDecrypt(ctx context.Context, req ports.UserDecryptRequest) (map[string]any, error) {
	pairs := make([]handlePair, len(req.Pairs))
	for n, p := range req.Pairs {
		pairs[n] = handlePair{Handle: p.Handle.Hex(), ContractAddress: p.ContractAddress}
	}

	var resp struct {
		Results map[string]any `json:"results"`
	}
	err := i.call(ctx, "/v1/user-decrypt", map[string]any{
		"handleContractPairs": pairs,
		"privateKey":          req.Keypair.PrivateKey,
		"publicKey":           req.Keypair.PublicKey,
		"signature":           strings.TrimPrefix(hexutil.Encode(req.Signature), "0x"),
		"contractAddresses":   req.Contracts,
		"userAddress":         req.User,
		"startTimestamp":      strconv.FormatInt(req.StartTimestamp, 10),
		"durationDays":        strconv.Itoa(req.DurationDays),
	}, &resp)
	if err != nil {
		return nil, err
	}

	results := make(map[string]any, len(resp.Results))
	for k, v := range resp.Results {
		results[strings.ToLower(k)] = normalizeNumber(v)
	}
	return results, nil
}

// normalizeNumber turns JSON numbers into *big.Int, since plaintexts can exceed 64 bits.
func normalizeNumber(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, ok := new(big.Int).SetString(n.String(), 10); ok {
		return i
	}
	return n.String()
}

type inputBuilder struct {
	instance *instance
	contract common.Address
	user     common.Address
	values   []uint32
}

func (b *inputBuilder) Add32(v uint32) ports.EncryptedInputBuilder {
	b.values = append(b.values, v)
	return b
}

type typedValue struct {
	Type  string `json:"type"`
	Value uint32 `json:"value"`
}

func (b *inputBuilder) Encrypt(ctx context.Context) (core.EncryptedInput, error) {
	if len(b.values) == 0 {
		return core.EncryptedInput{}, fmt.Errorf("nothing to encrypt")
	}
	values := make([]typedValue, len(b.values))
	for n, v := range b.values {
		values[n] = typedValue{Type: "euint32", Value: v}
	}

	var resp struct {
		Handles    []string      `json:"handles"`
		InputProof hexutil.Bytes `json:"inputProof"`
	}
	err := b.instance.call(ctx, "/v1/encrypt", map[string]any{
		"contractAddress": b.contract,
		"userAddress":     b.user,
		"values":          values,
	}, &resp)
	if err != nil {
		return core.EncryptedInput{}, err
	}
	if len(resp.Handles) != len(b.values) {
		return core.EncryptedInput{}, fmt.Errorf("relayer returned %d handles for %d values", len(resp.Handles), len(b.values))
	}

	in := core.EncryptedInput{InputProof: resp.InputProof, Handles: make([]core.Handle, len(resp.Handles))}
	for n, h := range resp.Handles {
		handle, err := core.HandleFromHex(h)
		if err != nil {
			return core.EncryptedInput{}, err
		}
		in.Handles[n] = handle
	}
	return in, nil
}
