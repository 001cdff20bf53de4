package registry

import "fmt"

// ConflictError 注册时唯一性约束冲突。Field 指明冲突的标识字段。
type ConflictError struct {
	Field string
	Value string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("vehicle with %s '%s' already exists", e.Field, e.Value)
}

// NotFoundError 车辆不存在。
type NotFoundError struct {
	VehicleID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("vehicle '%s' not found", e.VehicleID)
}

// ValidationError 调用方输入不合法（缺字段、非法状态等）。
// 与存储错误区分开：传输层据此映射 400 而不是 500。
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}
