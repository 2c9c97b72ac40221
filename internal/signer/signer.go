// Package signer implements the two EIP-712 signing schemes the exchange
// boundary requires: the L1 phantom-agent scheme used for orders and
// cancels, and the user-signed-action scheme used for spot<->perp
// transfers. Byte layouts are deterministic so two serializations of the
// same logical action always produce the same signature bytes. This is
// the one place in the engine where bit-exact reproduction matters.
package signer

import (
	"crypto/ecdsa"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
)

// Signature is a secp256k1 signature rendered in the wire format the
// Hyperliquid /exchange endpoint expects.
type Signature struct {
	R string `json:"r"`
	S string `json:"s"`
	V int    `json:"v"`
}

const (
	// l1ChainID is fixed regardless of network; the L1 phantom-agent
	// domain never varies with mainnet/testnet.
	l1ChainID = 1337

	arbitrumMainnetChainID = 42161
	arbitrumTestnetChainID = 421614
)

var (
	eip712DomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"),
	)
	agentTypeHash = ethcrypto.Keccak256(
		[]byte("Agent(string source,bytes32 connectionId)"),
	)
	usdClassTransferTypeHash = ethcrypto.Keccak256(
		[]byte("HyperliquidTransaction:UsdClassTransfer(string hyperliquidChain,string destination,string amount,uint64 time)"),
	)

	zeroAddress = common.Address{}
)

// Signer holds the secp256k1 key used to sign every outbound action.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	isMainnet  bool
}

// New parses a hex-encoded private key (with or without 0x prefix) and
// derives the corresponding address.
func New(privateKeyHex string, isMainnet bool) (*Signer, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("signer: invalid private key: %w", err)
	}
	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
		isMainnet:  isMainnet,
	}, nil
}

// Address returns the wallet address derived from the signing key.
func (s *Signer) Address() common.Address { return s.address }

// SignL1Action implements Scheme A: phantom-agent signing of an order or
// cancel action. nonceMillis is milliseconds since epoch; vaultAddress is
// nil for no-vault trading.
func (s *Signer) SignL1Action(action *OrderedMap, nonceMillis int64, vaultAddress *common.Address) (Signature, error) {
	actionBytes, err := EncodeAction(action)
	if err != nil {
		return Signature{}, fmt.Errorf("signer: encode action: %w", err)
	}

	nonceBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(nonceBytes, uint64(nonceMillis))

	var vaultBytes []byte
	if vaultAddress == nil {
		vaultBytes = []byte{0}
	} else {
		vaultBytes = append([]byte{1}, vaultAddress.Bytes()...)
	}

	connectionID := ethcrypto.Keccak256(concatBytes(actionBytes, nonceBytes, vaultBytes))

	domainSep := ethcrypto.Keccak256(concatBytes(
		eip712DomainTypeHash,
		ethcrypto.Keccak256([]byte("Exchange")),
		ethcrypto.Keccak256([]byte("1")),
		bigIntTo32Bytes(big.NewInt(l1ChainID)),
		common.LeftPadBytes(zeroAddress.Bytes(), 32),
	))

	source := "b"
	if s.isMainnet {
		source = "a"
	}
	structHash := ethcrypto.Keccak256(concatBytes(
		agentTypeHash,
		ethcrypto.Keccak256([]byte(source)),
		connectionID,
	))

	digest := eip712Digest(domainSep, structHash)
	return s.signDigest(digest)
}

// SignUsdClassTransfer implements Scheme B for spot<->perp transfers.
func (s *Signer) SignUsdClassTransfer(destination, amount string, nonceMillis int64) (Signature, error) {
	chainID := arbitrumTestnetChainID
	hlChain := "Testnet"
	if s.isMainnet {
		chainID = arbitrumMainnetChainID
		hlChain = "Mainnet"
	}

	domainSep := ethcrypto.Keccak256(concatBytes(
		eip712DomainTypeHash,
		ethcrypto.Keccak256([]byte("HyperliquidSignTransaction")),
		ethcrypto.Keccak256([]byte("1")),
		bigIntTo32Bytes(big.NewInt(int64(chainID))),
		common.LeftPadBytes(zeroAddress.Bytes(), 32),
	))

	timeBytes := make([]byte, 32)
	binary.BigEndian.PutUint64(timeBytes[24:], uint64(nonceMillis))

	structHash := ethcrypto.Keccak256(concatBytes(
		usdClassTransferTypeHash,
		ethcrypto.Keccak256([]byte(hlChain)),
		ethcrypto.Keccak256([]byte(destination)),
		ethcrypto.Keccak256([]byte(amount)),
		timeBytes,
	))

	digest := eip712Digest(domainSep, structHash)
	return s.signDigest(digest)
}

// eip712Digest computes keccak256(0x1901 || domainSeparator || structHash).
func eip712Digest(domainSep, structHash []byte) []byte {
	return ethcrypto.Keccak256(concatBytes([]byte{0x19, 0x01}, domainSep, structHash))
}

func (s *Signer) signDigest(digest []byte) (Signature, error) {
	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return Signature{}, fmt.Errorf("signer: sign digest: %w", err)
	}
	v := int(sig[64])
	if v < 27 {
		v += 27
	}
	return Signature{
		R: "0x" + hex.EncodeToString(sig[0:32]),
		S: "0x" + hex.EncodeToString(sig[32:64]),
		V: v,
	}, nil
}

func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, sl := range slices {
		total += len(sl)
	}
	buf := make([]byte, 0, total)
	for _, sl := range slices {
		buf = append(buf, sl...)
	}
	return buf
}

func bigIntTo32Bytes(n *big.Int) []byte {
	return common.LeftPadBytes(n.Bytes(), 32)
}

// FormatWireDecimal renders a price, size, or transfer amount for the
// exchange wire format: up to 8 significant digits, trailing zeros
// stripped, never scientific notation. It operates on decimal.Decimal
// rather than float64 so rounding to significant digits never goes
// through a lossy binary-float conversion first.
func FormatWireDecimal(d decimal.Decimal) string {
	intDigits := len(d.Truncate(0).Abs().String())
	if d.Truncate(0).IsZero() {
		intDigits = 0
	}
	decimalPlaces := int32(8 - intDigits)
	if decimalPlaces < 0 {
		decimalPlaces = 0
	}

	s := d.Round(decimalPlaces).String()
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimRight(s, ".")
	}
	if s == "" || s == "-" {
		return "0"
	}
	return s
}
