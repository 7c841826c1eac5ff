package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// AuthMessage is the fixed statement signed for L1 authentication.
const AuthMessage = "This message attests that I control the given wallet"

// Polygon mainnet exchange contracts that verify order signatures.
var (
	CTFExchange     = common.HexToAddress("0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E")
	NegRiskExchange = common.HexToAddress("0xC5d563A36AE78145C45a50134d48A1215220f80a")
)

var (
	authDomainTypeHash  = ethcrypto.Keccak256([]byte("EIP712Domain(string name,string version,uint256 chainId)"))
	orderDomainTypeHash = ethcrypto.Keccak256([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))
	clobAuthTypeHash    = ethcrypto.Keccak256([]byte("ClobAuth(address address,string timestamp,uint256 nonce,string message)"))
	orderTypeHash       = ethcrypto.Keccak256([]byte("Order(uint256 salt,address maker,address signer,address taker,uint256 tokenId,uint256 makerAmount,uint256 takerAmount,uint256 expiration,uint256 nonce,uint256 feeRateBps,uint8 side,uint8 signatureType)"))
)

// Order sides and signature types as encoded in the signed struct.
const (
	SideBuy  = 0
	SideSell = 1

	SignatureEOA = 0
)

// OrderPayload is the signed part of a CLOB order. Integers are decimal
// strings so they survive JSON unchanged.
type OrderPayload struct {
	Salt          string `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          int    `json:"side"`
	SignatureType int    `json:"signatureType"`
}

// Signer holds the wallet key.
type Signer struct {
	key         *ecdsa.PrivateKey
	address     common.Address
	authDomain  []byte
	orderDomain []byte
}

// NewSigner creates a Signer for chainID whose orders are verified by
// exchange.
func NewSigner(privateKeyHex string, chainID int64, exchange common.Address) (*Signer, error) {
	raw, err := decodeKeyHex(privateKeyHex)
	if err != nil {
		return nil, err
	}
	key, err := ethcrypto.ToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid private key: %w", err)
	}

	chain := uint256(big.NewInt(chainID))
	return &Signer{
		key:     key,
		address: ethcrypto.PubkeyToAddress(key.PublicKey),
		authDomain: ethcrypto.Keccak256(
			authDomainTypeHash,
			ethcrypto.Keccak256([]byte("ClobAuthDomain")),
			ethcrypto.Keccak256([]byte("1")),
			chain,
		),
		orderDomain: ethcrypto.Keccak256(
			orderDomainTypeHash,
			ethcrypto.Keccak256([]byte("Polymarket CTF Exchange")),
			ethcrypto.Keccak256([]byte("1")),
			chain,
			common.LeftPadBytes(exchange.Bytes(), 32),
		),
	}, nil
}

// Address returns the wallet address.
func (s *Signer) Address() common.Address { return s.address }

// SignAuth signs the ClobAuth struct for the L1 headers.
func (s *Signer) SignAuth(timestamp string, nonce int64) (string, error) {
	structHash := ethcrypto.Keccak256(
		clobAuthTypeHash,
		common.LeftPadBytes(s.address.Bytes(), 32),
		ethcrypto.Keccak256([]byte(timestamp)),
		uint256(big.NewInt(nonce)),
		ethcrypto.Keccak256([]byte(AuthMessage)),
	)
	return s.sign(typedDataHash(s.authDomain, structHash))
}

// SignOrder signs an order for the exchange domain.
func (s *Signer) SignOrder(o OrderPayload) (string, error) {
	structHash, err := o.structHash()
	if err != nil {
		return "", err
	}
	return s.sign(typedDataHash(s.orderDomain, structHash))
}

func (s *Signer) sign(digest []byte) (string, error) {
	sig, err := ethcrypto.Sign(digest, s.key)
	if err != nil {
		return "", fmt.Errorf("crypto: sign: %w", err)
	}
	sig[64] += 27 // recovery id 0/1 -> v 27/28
	return "0x" + hex.EncodeToString(sig), nil
}

func (o OrderPayload) structHash() ([]byte, error) {
	fields := []struct{ name, v string }{
		{"salt", o.Salt},
		{"tokenId", o.TokenID},
		{"makerAmount", o.MakerAmount},
		{"takerAmount", o.TakerAmount},
		{"expiration", o.Expiration},
		{"nonce", o.Nonce},
		{"feeRateBps", o.FeeRateBps},
	}
	ints := make(map[string][]byte, len(fields))
	for _, f := range fields {
		n, ok := new(big.Int).SetString(f.v, 10)
		if !ok || n.Sign() < 0 {
			return nil, fmt.Errorf("crypto: invalid order %s %q", f.name, f.v)
		}
		ints[f.name] = uint256(n)
	}

	return ethcrypto.Keccak256(
		orderTypeHash,
		ints["salt"],
		common.LeftPadBytes(common.HexToAddress(o.Maker).Bytes(), 32),
		common.LeftPadBytes(common.HexToAddress(o.Signer).Bytes(), 32),
		common.LeftPadBytes(common.HexToAddress(o.Taker).Bytes(), 32),
		ints["tokenId"],
		ints["makerAmount"],
		ints["takerAmount"],
		ints["expiration"],
		ints["nonce"],
		ints["feeRateBps"],
		uint256(big.NewInt(int64(o.Side))),
		uint256(big.NewInt(int64(o.SignatureType))),
	), nil
}

// typedDataHash is keccak256("\x19\x01" || domainSeparator || structHash).
func typedDataHash(domainSep, structHash []byte) []byte {
	return ethcrypto.Keccak256([]byte{0x19, 0x01}, domainSep, structHash)
}

func uint256(n *big.Int) []byte {
	return common.LeftPadBytes(n.Bytes(), 32)
}
