package domain

import "fmt"

// ValidationError - ввод отклонён до обращения к хранилищу.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// WriteError - хранилище отклонило запись (сеть, права).
// Ввод пользователя сохраняется, повтор только вручную.
type WriteError struct {
	Op  string
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// AuthError - неверные учётные данные при входе.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("sign in failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }
