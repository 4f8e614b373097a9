package chain

import (
	"errors"
	"fmt"
)

var (
	ErrContractNotFound = errors.New("contract not found")
	ErrAddressInUse     = errors.New("contract address already in use")
	ErrTxNotFound       = errors.New("transaction not found")
	ErrUnknownSigner    = errors.New("unknown signer")
)

// RevertError 合约执行失败（对应 EVM revert），状态全部回滚
type RevertError struct {
	Reason string
}

func (e *RevertError) Error() string {
	return fmt.Sprintf("execution reverted: %s", e.Reason)
}

// Revert 构造 revert 错误；合约包里以包级变量保存，便于 errors.Is 判断
func Revert(reason string) *RevertError { return &RevertError{Reason: reason} }

// IsRevert 判断 err 链上是否有 RevertError
func IsRevert(err error) bool {
	var re *RevertError
	return errors.As(err, &re)
}

// RevertReason 返回 revert 原因，非 revert 时为空
func RevertReason(err error) string {
	var re *RevertError
	if errors.As(err, &re) {
		return re.Reason
	}
	return ""
}
