// internal/pkg/errkind/errkind.go
package errkind

import (
	"errors"
	"fmt"
)

// Kind 是贯穿整个管道的错误分类枚举。重试还是终结的决策只看 Kind，
// 不看具体的错误类型层次。
type Kind int

const (
	// KindUnknown 未分类错误，保守地按瞬时错误处理。
	KindUnknown Kind = iota
	// KindNotFound 目标资源不存在（sku/券/订单缺失）。
	KindNotFound
	// KindConflict 业务冲突：售罄、重复领取、库存不足、重复确认等。
	// 重试不会改变结果。
	KindConflict
	// KindIntegrity 计数对账异常，一定是 bug 信号，按 error 级别记录，
	// 不做静默重试。
	KindIntegrity
	// KindTransient 瞬时故障：存储不可达、乐观锁失败、broker 不可用。
	KindTransient
	// KindTerminal 重试耗尽后的终态，进入死信补偿。
	KindTerminal
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NOT_FOUND"
	case KindConflict:
		return "CONFLICT"
	case KindIntegrity:
		return "INTEGRITY_VIOLATION"
	case KindTransient:
		return "TRANSIENT"
	case KindTerminal:
		return "TERMINAL"
	default:
		return "UNKNOWN"
	}
}

// Retryable 是重试决策的唯一入口：只有瞬时（或未分类）错误值得重试。
func Retryable(k Kind) bool {
	return k == KindTransient || k == KindUnknown
}

type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string { return e.err.Error() }
func (e *kindError) Unwrap() error { return e.err }

// Wrap 给一个已有错误贴上分类标签。
func Wrap(k Kind, err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: k, err: err}
}

// New 创建一个带分类的新错误。
func New(k Kind, format string, args ...interface{}) error {
	return &kindError{kind: k, err: fmt.Errorf(format, args...)}
}

// Of 返回错误链上最近一次标注的 Kind；没有标注时返回 KindUnknown。
func Of(err error) Kind {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return KindUnknown
}
