package starknet

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

var (
	selectorMask = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 250), big.NewInt(1))
	feltLimit    = new(big.Int).Lsh(big.NewInt(1), 251)
	uint128Mask  = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
)

// maxPendingWordLen is the byte capacity of the trailing word of a Cairo ByteArray.
const maxPendingWordLen = 30

// Selector computes the entry point selector: keccak256 of the name truncated to 250 bits.
func Selector(entrypoint string) string {
	v := new(big.Int).SetBytes(crypto.Keccak256([]byte(entrypoint)))
	v.And(v, selectorMask)
	return "0x" + v.Text(16)
}

// ParseFelt parses a hex field element.
func ParseFelt(s string) (*big.Int, error) {
	raw := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	if raw == "" {
		return nil, fmt.Errorf("empty felt")
	}
	v, ok := new(big.Int).SetString(raw, 16)
	if !ok || v.Sign() < 0 || v.Cmp(feltLimit) >= 0 {
		return nil, fmt.Errorf("invalid felt %q", s)
	}
	return v, nil
}

// DecodeFeltString decodes a short string packed big-endian into one felt.
func DecodeFeltString(felt string) (string, error) {
	v, err := ParseFelt(felt)
	if err != nil {
		return "", err
	}
	return bytesToText(v.Bytes()), nil
}

// DecodeFeltStrings decodes a felt array into text. A well-formed Cairo ByteArray
// (word count, 31-byte words, pending word, pending length) is unframed first;
// anything else is decoded felt by felt and concatenated.
func DecodeFeltStrings(felts []string) (string, error) {
	values := make([]*big.Int, 0, len(felts))
	for _, f := range felts {
		v, err := ParseFelt(f)
		if err != nil {
			return "", err
		}
		values = append(values, v)
	}

	if text, ok := decodeByteArray(values); ok {
		return text, nil
	}

	var sb strings.Builder
	for _, v := range values {
		sb.WriteString(bytesToText(v.Bytes()))
	}
	return sb.String(), nil
}

func decodeByteArray(values []*big.Int) (string, bool) {
	if len(values) < 3 || !values[0].IsInt64() {
		return "", false
	}
	words := values[0].Int64()
	if words < 0 || int64(len(values)) != words+3 {
		return "", false
	}
	pendingLen := values[len(values)-1]
	if !pendingLen.IsInt64() || pendingLen.Int64() > maxPendingWordLen {
		return "", false
	}

	var buf []byte
	for _, w := range values[1 : 1+words] {
		buf = append(buf, w.FillBytes(make([]byte, 31))...)
	}
	if n := int(pendingLen.Int64()); n > 0 {
		pending := values[len(values)-2]
		if pending.BitLen() > n*8 {
			return "", false
		}
		buf = append(buf, pending.FillBytes(make([]byte, n))...)
	}
	return bytesToText(buf), true
}

func bytesToText(b []byte) string {
	return strings.Trim(strings.ToValidUTF8(string(b), "\uFFFD"), "\x00")
}

// SplitUint256 encodes a token id as the low and high 128-bit felts of a Cairo u256.
func SplitUint256(id *big.Int) (string, string) {
	low := new(big.Int).And(id, uint128Mask)
	high := new(big.Int).Rsh(id, 128)
	return "0x" + low.Text(16), "0x" + high.Text(16)
}

// JoinUint256 is the inverse of SplitUint256.
func JoinUint256(low, high string) (*big.Int, error) {
	lo, err := ParseFelt(low)
	if err != nil {
		return nil, err
	}
	hi, err := ParseFelt(high)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Or(new(big.Int).Lsh(hi, 128), lo), nil
}
