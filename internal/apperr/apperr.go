package apperr

import "net/http"

// Error 是带 HTTP 状态码的业务错误。
//
// 服务层用它抛出可直接回给客户端的失败（无效验证码、无权限等），
// 边界层按 Status 映射响应；其它任何 error 一律折叠成 500 加
// 固定的通用文案，细节只进服务端日志。
type Error struct {
	Status  int    // HTTP 状态码
	Message string // 面向用户的文案
}

func (e *Error) Error() string {
	return e.Message
}

// New 创建一个业务错误。
func New(status int, message string) *Error {
	return &Error{Status: status, Message: message}
}

// BadRequest 400：领域规则失败（验证码无效/过期、自我共享、当前密码错误等）。
func BadRequest(message string) *Error {
	return New(http.StatusBadRequest, message)
}

// Unauthorized 401。
func Unauthorized(message string) *Error {
	return New(http.StatusUnauthorized, message)
}

// Forbidden 403：所有权校验失败。
func Forbidden(message string) *Error {
	return New(http.StatusForbidden, message)
}

// NotFound 404：资源或用户名不存在。
func NotFound(message string) *Error {
	return New(http.StatusNotFound, message)
}

// Conflict 409：邮箱/用户名已被占用。
func Conflict(message string) *Error {
	return New(http.StatusConflict, message)
}

// Unprocessable 422：凭证校验类失败（登录凭证错误、邮箱未验证）。
func Unprocessable(message string) *Error {
	return New(http.StatusUnprocessableEntity, message)
}
