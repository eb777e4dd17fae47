package monitoring

import "fmt"

// panicError 渠道或探针 panic 转换后的错误
type panicError struct {
	value interface{}
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}
