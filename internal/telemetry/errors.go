package telemetry

import "fmt"

// DecodeError 载荷不合法（格式错误 / 缺少 vehicleId）。
// 属于调用方输入错误：直接拒绝，不落库、不动缓存、不自动重试。
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed telemetry payload: %s", e.Reason)
}

// TransientStoreError 持久层超时/不可用。
// ingest 是幂等的，调用方可以安全地整体重试。
type TransientStoreError struct {
	Op  string
	Err error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("telemetry store %s failed: %v", e.Op, e.Err)
}

func (e *TransientStoreError) Unwrap() error {
	return e.Err
}
