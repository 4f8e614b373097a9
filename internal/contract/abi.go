package contract

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/d60-Lab/qutee-media/internal/chain"
)

// EncodeConstructorArgs ABI 编码 address 参数：每个参数左补零到 32 字节，返回不带 0x 的十六进制
func EncodeConstructorArgs(args ...chain.Address) string {
	var sb strings.Builder
	sb.Grow(64 * len(args))
	for _, a := range args {
		sb.WriteString(strings.Repeat("0", 24))
		sb.WriteString(hex.EncodeToString(a[:]))
	}
	return sb.String()
}

// DecodeConstructorArgs 解析部署记录里保存的 JSON 参数数组
func DecodeConstructorArgs(raw string) ([]chain.Address, error) {
	if raw == "" || raw == "null" {
		return nil, nil
	}
	var args []chain.Address
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("decode constructor args: %w", err)
	}
	return args, nil
}
