package service

import "errors"

// 业务层通用错误，handler 据此映射 HTTP 状态码。
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUsernameTaken      = errors.New("username taken")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
)
