package core

// error_messages.go turns internal errors into messages an operator can act
// on. Every message carries a code that support staff can look up here.
//
// Codes by category:
//
//	VAL001-VAL006   cell and workbook validation
//	FILE001-FILE006 file handling (size, type, encoding, missing sheet)
//	VND001-VND003   vendor registration input
//	REG001          vendor registry unavailable
//	WF001-WF003     workflow lookup and transitions
//	PDF001-PDF004   PDF storage
//	UPL001-UPL005   upload sessions and request lifecycle
//	DB001-DB007     database errors surfaced from the stores
//	RATE001         request throttling
//	ERR000          anything else; check the logs for the original error
//
// Sentinel errors are matched first with errors.Is. Errors that only exist
// as text (driver messages, validator output) fall through to the pattern
// table, which matches case-insensitive substrings. First match wins.

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// UserMessage is a user-facing description of an error.
type UserMessage struct {
	Message string // what happened
	Action  string // what to do about it
	Code    string // support reference
}

type sentinelMessage struct {
	err error
	msg UserMessage
}

// sentinelMessages is ordered. A RegistryError can wrap a context error,
// so REG001 sits before UPL004.
var sentinelMessages = []sentinelMessage{
	{ErrVendorNameRequired, UserMessage{"거래처명은 필수입니다", "거래처명을 입력해주세요", "VND001"}},
	{ErrInvalidVendorType, UserMessage{"거래처 유형이 올바르지 않습니다", "거래처 또는 납품처 중 하나를 선택해주세요", "VND002"}},
	{ErrInvalidVendorInput, UserMessage{"거래처 정보 형식이 올바르지 않습니다", "이메일과 입력값 길이를 확인해주세요", "VAL006"}},
	{ErrVendorExists, UserMessage{"이미 등록된 거래처입니다", "기존 거래처를 선택해주세요", "VND003"}},
	{ErrRegistryUnavailable, UserMessage{"거래처 정보를 조회할 수 없습니다", "잠시 후 다시 시도해주세요", "REG001"}},

	{ErrFileTooLarge, UserMessage{"파일 크기가 제한을 초과했습니다", "파일을 나누어 업로드해주세요", "FILE001"}},
	{ErrUnsupportedFile, UserMessage{"지원하지 않는 파일 형식입니다", "Excel 파일(.xlsx, .xlsm)을 업로드해주세요", "FILE002"}},
	{ErrNoFile, UserMessage{"파일이 선택되지 않았습니다", "업로드할 Excel 파일을 선택해주세요", "FILE004"}},
	{ErrMissingInput, UserMessage{"Input 시트를 찾을 수 없습니다", "발주 데이터를 Input 시트에 입력해주세요", "FILE006"}},

	{ErrSessionInvalid, UserMessage{"검증 오류가 남아 있습니다", "오류를 수정하거나 제안을 적용한 뒤 다시 시도해주세요", "VAL005"}},

	{ErrWorkflowNotFound, UserMessage{"작업을 찾을 수 없습니다", "새 발주 작업을 시작해주세요", "WF001"}},
	{ErrInvalidTransition, UserMessage{"현재 단계에서 할 수 없는 작업입니다", "작업 상태를 새로고침한 뒤 다시 시도해주세요", "WF002"}},
	{ErrWorkflowFinished, UserMessage{"이미 완료된 작업입니다", "새 발주 작업을 시작해주세요", "WF002"}},
	{ErrUnknownMethod, UserMessage{"알 수 없는 발주 생성 방식입니다", "standard 또는 excel을 선택해주세요", "WF002"}},
	{ErrUnknownPipelineRef, UserMessage{"알 수 없는 처리 단계입니다", "처리 단계 ID를 확인해주세요", "WF002"}},
	{ErrIncompleteCreation, UserMessage{"발주서 작성 정보가 부족합니다", "누락된 항목을 입력한 뒤 다시 시도해주세요", "WF003"}},

	{ErrUnknownPDFKind, UserMessage{"알 수 없는 PDF 저장소입니다", "temp, archive, orders 중 하나를 지정해주세요", "PDF001"}},
	{ErrSourceMissing, UserMessage{"원본 PDF 파일이 없습니다", "PDF를 다시 생성해주세요", "PDF002"}},
	{ErrLockHeld, UserMessage{"PDF 정리가 이미 진행 중입니다", "잠시 후 다시 시도해주세요", "PDF003"}},
	{ErrPDFDisabled, UserMessage{"PDF 저장소가 설정되지 않았습니다", "관리자에게 문의해주세요", "PDF004"}},

	{ErrTooManyUploads, UserMessage{"처리 중인 업로드가 너무 많습니다", "잠시 후 다시 시도해주세요", "UPL002"}},
	{ErrSessionNotFound, UserMessage{"업로드 세션을 찾을 수 없습니다", "세션이 만료되었을 수 있습니다. 파일을 다시 업로드해주세요", "UPL003"}},
	{context.Canceled, UserMessage{"요청이 취소되었습니다", "다시 시도해주세요", "UPL004"}},
	{context.DeadlineExceeded, UserMessage{"요청 시간이 초과되었습니다", "더 작은 파일로 시도하거나 연결 상태를 확인해주세요", "UPL005"}},
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns is searched when no sentinel matches. Specific patterns
// come before general ones.
var errorPatterns = []errorPattern{
	{"duplicate key", UserMessage{"이미 존재하는 데이터입니다", "중복 항목을 확인해주세요", "DB001"}},
	{"unique constraint", UserMessage{"고유해야 하는 값이 이미 존재합니다", "중복 항목을 확인해주세요", "DB002"}},
	{"violates unique", UserMessage{"중복 값이 발견되었습니다", "중복 항목을 확인해주세요", "DB002"}},
	{"foreign key", UserMessage{"참조하는 데이터가 없습니다", "거래처가 먼저 등록되었는지 확인해주세요", "DB003"}},
	{"connection refused", UserMessage{"데이터베이스에 연결할 수 없습니다", "잠시 후 다시 시도해주세요", "DB004"}},
	{"connection reset", UserMessage{"데이터베이스 연결이 끊어졌습니다", "다시 시도해주세요", "DB005"}},
	{"deadlock", UserMessage{"데이터베이스가 다른 작업으로 바쁩니다", "다시 시도해주세요", "DB007"}},
	{"timeout", UserMessage{"작업 시간이 초과되었습니다", "잠시 후 다시 시도해주세요", "DB006"}},

	{"날짜 형식", UserMessage{"날짜 형식이 올바르지 않습니다", "YYYY-MM-DD 형식으로 입력해주세요", "VAL001"}},
	{"숫자", UserMessage{"숫자 형식이 올바르지 않습니다", "쉼표와 통화 기호 없이 숫자만 입력해주세요", "VAL002"}},
	{"필수 입력", UserMessage{"필수 항목이 비어 있습니다", "필수 컬럼의 값을 모두 입력해주세요", "VAL003"}},
	{"필수 컬럼", UserMessage{"필수 컬럼이 누락되었습니다", "템플릿의 컬럼명을 그대로 사용해주세요", "VAL004"}},

	{"request body too large", UserMessage{"파일 크기가 제한을 초과했습니다", "파일을 나누어 업로드해주세요", "FILE001"}},
	{"zip: not a valid zip file", UserMessage{"Excel 파일을 읽을 수 없습니다", "파일이 손상되지 않았는지 확인해주세요", "FILE002"}},
	{"invalid utf-8", UserMessage{"파일에 잘못된 문자가 있습니다", "UTF-8로 저장해주세요", "FILE003"}},
	{"empty file", UserMessage{"빈 파일입니다", "데이터가 있는 파일을 업로드해주세요", "FILE005"}},

	{"rate limit", UserMessage{"요청이 너무 많습니다", "잠시 후 다시 시도해주세요", "RATE001"}},
}

var defaultMessage = UserMessage{
	Message: "예기치 않은 오류가 발생했습니다",
	Action:  "다시 시도하거나 관리자에게 문의해주세요",
	Code:    "ERR000",
}

// MapError converts err to a UserMessage. nil maps to the zero value and
// unknown errors to ERR000.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var ue *UserError
	if errors.As(err, &ue) {
		return ue.User
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.err) {
			return sm.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

// FormatUserError renders "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to something more specific than
// ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with the message shown for it.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err. It returns nil for a nil err.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{Technical: err, User: MapError(err)}
}
