package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

const erc20ABI = `[
	{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"_to","type":"address"},{"name":"_value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

const transferGasLimit = 100000

// TreasuryWallet captures what claim settlement requires from the treasury
// hot wallet: a balance read, a single transfer, and a confirmation wait.
type TreasuryWallet interface {
	Address() string
	BalanceOf(ctx context.Context, owner string) (*big.Int, error)
	Transfer(ctx context.Context, to string, amount *big.Int) (string, error)
	WaitForConfirmation(ctx context.Context, txHash string) error
}

// ERC20Treasury implements TreasuryWallet against an EVM node.
type ERC20Treasury struct {
	client        *ethclient.Client
	token         common.Address
	key           *ecdsa.PrivateKey
	from          common.Address
	chainID       *big.Int
	abi           abi.ABI
	confirmations uint64
	pollInterval  time.Duration
}

// NewERC20Treasury dials the RPC endpoint and prepares the signer.
func NewERC20Treasury(rpcURL, tokenContract, privKeyHex string, chainID int64, confirmations int, pollInterval time.Duration) (*ERC20Treasury, error) {
	if strings.TrimSpace(rpcURL) == "" {
		return nil, fmt.Errorf("chain rpc url required")
	}
	if !common.IsHexAddress(tokenContract) {
		return nil, fmt.Errorf("invalid token contract address %q", tokenContract)
	}
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial chain rpc: %w", err)
	}
	key, err := gethcrypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse treasury key: %w", err)
	}
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	if confirmations <= 0 {
		confirmations = 3
	}
	if pollInterval <= 0 {
		pollInterval = 3 * time.Second
	}
	return &ERC20Treasury{
		client:        client,
		token:         common.HexToAddress(tokenContract),
		key:           key,
		from:          gethcrypto.PubkeyToAddress(key.PublicKey),
		chainID:       big.NewInt(chainID),
		abi:           parsed,
		confirmations: uint64(confirmations),
		pollInterval:  pollInterval,
	}, nil
}

// Address returns the treasury signer address.
func (t *ERC20Treasury) Address() string {
	return t.from.Hex()
}

// BalanceOf reads the token balance of owner via eth_call.
func (t *ERC20Treasury) BalanceOf(ctx context.Context, owner string) (*big.Int, error) {
	data, err := t.abi.Pack("balanceOf", common.HexToAddress(owner))
	if err != nil {
		return nil, err
	}
	out, err := t.client.CallContract(ctx, ethereum.CallMsg{To: &t.token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("balanceOf call: %w", err)
	}
	results, err := t.abi.Unpack("balanceOf", out)
	if err != nil {
		return nil, fmt.Errorf("balanceOf decode: %w", err)
	}
	balance, ok := results[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("balanceOf returned unexpected type")
	}
	return balance, nil
}

// Transfer signs and broadcasts a single token transfer, returning the tx hash.
func (t *ERC20Treasury) Transfer(ctx context.Context, to string, amount *big.Int) (string, error) {
	if !common.IsHexAddress(to) {
		return "", fmt.Errorf("invalid destination address %q", to)
	}
	if amount == nil || amount.Sign() <= 0 {
		return "", fmt.Errorf("transfer amount must be positive")
	}
	nonce, err := t.client.PendingNonceAt(ctx, t.from)
	if err != nil {
		return "", fmt.Errorf("fetch nonce: %w", err)
	}
	gasPrice, err := t.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("suggest gas price: %w", err)
	}
	data, err := t.abi.Pack("transfer", common.HexToAddress(to), amount)
	if err != nil {
		return "", err
	}
	tx := gethtypes.NewTransaction(nonce, t.token, big.NewInt(0), transferGasLimit, gasPrice, data)
	signed, err := gethtypes.SignTx(tx, gethtypes.NewEIP155Signer(t.chainID), t.key)
	if err != nil {
		return "", fmt.Errorf("sign transfer: %w", err)
	}
	if err := t.client.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("broadcast transfer: %w", err)
	}
	return signed.Hash().Hex(), nil
}

// WaitForConfirmation polls for the receipt until the configured confirmation
// depth is reached or ctx expires. A reverted receipt is terminal.
func (t *ERC20Treasury) WaitForConfirmation(ctx context.Context, txHash string) error {
	hash := common.HexToHash(txHash)
	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()
	for {
		receipt, err := t.client.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			if receipt.Status != gethtypes.ReceiptStatusSuccessful {
				return fmt.Errorf("transaction %s reverted", txHash)
			}
			head, err := t.client.BlockNumber(ctx)
			if err == nil && head >= receipt.BlockNumber.Uint64()+t.confirmations-1 {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("confirmation wait for %s: %w", txHash, ctx.Err())
		case <-ticker.C:
		}
	}
}

// ValidAddress reports whether s is a syntactically valid chain address.
func ValidAddress(s string) bool {
	return common.IsHexAddress(s)
}

// NormalizeAddress lowercases a hex address for storage and comparison.
func NormalizeAddress(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ToBaseUnits converts whole CAMLY units to on-chain base units.
func ToBaseUnits(amount int64, decimals int) *big.Int {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	return new(big.Int).Mul(big.NewInt(amount), scale)
}

// FromBaseUnits converts a raw base-unit integer string to whole CAMLY units,
// truncating any fractional remainder.
func FromBaseUnits(raw string, decimals int) (int64, error) {
	value, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return 0, fmt.Errorf("invalid raw value %q", raw)
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	whole := new(big.Int).Quo(value, scale)
	if !whole.IsInt64() {
		return 0, fmt.Errorf("value %q overflows int64 units", raw)
	}
	return whole.Int64(), nil
}
