package services

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind 推論パイプラインの失敗種別
type ErrorKind string

const (
	// サーバー側
	KindArtifactMissing  ErrorKind = "ArtifactMissing"
	KindUnsupportedModel ErrorKind = "UnsupportedModel"
	KindModelFailure     ErrorKind = "ModelFailure"

	// クライアント側
	KindInvalidDate     ErrorKind = "InvalidDate"
	KindMissingColumn   ErrorKind = "MissingColumn"
	KindInvalidInput    ErrorKind = "InvalidInput"
	KindNoRowsAvailable ErrorKind = "NoRowsAvailable"
)

// IsClient 呼び出し側で修正可能なエラーかどうかを返す
func (k ErrorKind) IsClient() bool {
	switch k {
	case KindInvalidDate, KindMissingColumn, KindInvalidInput, KindNoRowsAvailable:
		return true
	}
	return false
}

// Error パイプラインの各段階が返す型付きエラー。
// Valueには問題の日付文字列・列名・アーティファクトのパスが入る。
type Error struct {
	Kind    ErrorKind
	Message string
	Value   string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus エラー種別をレスポンスのステータスコードに変換
func (e *Error) HTTPStatus() int {
	if e.Kind.IsClient() {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// Is 種別で比較する。errors.Is(err, &Error{Kind: KindInvalidDate}) のように使う
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Value == "" || t.Value == e.Value)
}

// KindOf パイプラインのエラー種別を返す。それ以外のエラーは "" を返す
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func errArtifactMissing(path string, err error) *Error {
	return &Error{Kind: KindArtifactMissing, Message: fmt.Sprintf("artifact not found at %s", path), Value: path, Err: err}
}

func errUnsupportedModel(variant string) *Error {
	return &Error{Kind: KindUnsupportedModel, Message: fmt.Sprintf("unsupported MODEL_VARIANT: %s", variant), Value: variant}
}

func errInvalidDate(value string) *Error {
	return &Error{Kind: KindInvalidDate, Message: fmt.Sprintf("invalid date value: %s", value), Value: value}
}

func errMissingColumn(column string) *Error {
	return &Error{Kind: KindMissingColumn, Message: fmt.Sprintf("missing required column: %s", column), Value: column}
}

func errInvalidInput(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

func errNoRows() *Error {
	return &Error{Kind: KindNoRowsAvailable, Message: "no rows available for prediction"}
}

func errModelFailure(variant string, err error) *Error {
	return &Error{Kind: KindModelFailure, Message: fmt.Sprintf("model %s failed to score", variant), Value: variant, Err: err}
}
