package chain

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// Hash 32 字节 keccak 摘要
type Hash [32]byte

func (h Hash) Hex() string { return "0x" + hex.EncodeToString(h[:]) }

func (h Hash) String() string { return h.Hex() }

// Keccak256 以太坊使用的 legacy Keccak-256
func Keccak256(data ...[]byte) Hash {
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b)
	}
	var h Hash
	d.Sum(h[:0])
	return h
}

// CreateAddress 合约地址 = keccak256(rlp([sender, nonce]))[12:]
func CreateAddress(sender Address, nonce uint64) Address {
	return BytesToAddress(Keccak256(rlpSenderNonce(sender, nonce)).bytes()[12:])
}

func (h Hash) bytes() []byte { return h[:] }

// rlpSenderNonce 只覆盖 [20 字节地址, uint64] 这一种列表
func rlpSenderNonce(sender Address, nonce uint64) []byte {
	payload := make([]byte, 0, 1+AddressLength+9)
	payload = append(payload, 0x80+AddressLength)
	payload = append(payload, sender[:]...)
	switch {
	case nonce == 0:
		payload = append(payload, 0x80)
	case nonce < 0x80:
		payload = append(payload, byte(nonce))
	default:
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], nonce)
		i := 0
		for buf[i] == 0 {
			i++
		}
		payload = append(payload, byte(0x80+8-i))
		payload = append(payload, buf[i:]...)
	}
	return append([]byte{byte(0xc0 + len(payload))}, payload...)
}

// DeriveSigners 由种子确定性地派生开发账户
func DeriveSigners(seed string, n int) []Address {
	out := make([]Address, n)
	for i := 0; i < n; i++ {
		var idx [4]byte
		binary.BigEndian.PutUint32(idx[:], uint32(i))
		out[i] = BytesToAddress(Keccak256([]byte(seed), idx[:]).bytes()[12:])
	}
	return out
}

func (h Hash) MarshalText() ([]byte, error) { return []byte(h.Hex()), nil }

func (h *Hash) UnmarshalText(b []byte) error {
	v, err := ParseHash(string(b))
	if err != nil {
		return err
	}
	*h = v
	return nil
}

// ParseHash 解析 0x 前缀的 64 位十六进制
func ParseHash(s string) (Hash, error) {
	var h Hash
	if len(s) != 66 || (s[:2] != "0x" && s[:2] != "0X") {
		return h, fmt.Errorf("invalid hash %q", s)
	}
	if _, err := hex.Decode(h[:], []byte(s[2:])); err != nil {
		return h, fmt.Errorf("invalid hash %q", s)
	}
	return h, nil
}
