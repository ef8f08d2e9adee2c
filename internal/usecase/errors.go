package usecase

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrorInvalidInput ErrorCode = "INVALID_INPUT"
	ErrorNotFound     ErrorCode = "NOT_FOUND"
	ErrorConflict     ErrorCode = "CONFLICT"
	ErrorForbidden    ErrorCode = "FORBIDDEN"
	ErrorUpstream     ErrorCode = "UPSTREAM_ERROR"
	ErrorInternal     ErrorCode = "INTERNAL_ERROR"
)

// Reasons with a user-facing message.
const (
	ReasonEmptyScript          = "empty_script"
	ReasonEmptyName            = "empty_name"
	ReasonEmptySlug            = "empty_slug"
	ReasonClientNotSelected    = "client_not_selected"
	ReasonClientNotFound       = "client_not_found"
	ReasonSlugTaken            = "slug_taken"
	ReasonSlugReserved         = "slug_reserved"
	ReasonInvalidField         = "invalid_field"
	ReasonConfirmationRequired = "confirmation_required"
	ReasonNotFound             = "not_found"
	ReasonEmptyStore           = "empty_store"
	ReasonMalformedScript      = "malformed_script"
	ReasonScriptNotFound       = "script_not_found"
	ReasonEntryNotFound        = "entry_not_found"
	ReasonCascadeIncomplete    = "cascade_incomplete"
	ReasonStoreError           = "store_error"
	ReasonProbeFailed          = "probe_failed"
	ReasonCrossOrigin          = "cross_origin"
)

var messages = map[string]string{
	ReasonEmptyScript:          "Cole o script do widget antes de gerar o link.",
	ReasonEmptyName:            "Informe o nome do cliente.",
	ReasonEmptySlug:            "Informe um slug válido para o cliente.",
	ReasonClientNotSelected:    "Selecione um cliente existente.",
	ReasonClientNotFound:       "O cliente selecionado não existe mais.",
	ReasonSlugTaken:            "Já existe um cliente com este slug. Escolha outro.",
	ReasonSlugReserved:         "Este slug é reservado pelo sistema. Escolha outro.",
	ReasonInvalidField:         "Verifique os campos destacados.",
	ReasonConfirmationRequired: "Confirme a exclusão do cliente e de todos os seus scripts.",
	ReasonNotFound:             "Nenhum script ou cliente encontrado para este endereço.",
	ReasonEmptyStore:           "Nenhum script cadastrado ainda.",
	ReasonMalformedScript:      "O script salvo não contém uma tag <script> válida.",
	ReasonScriptNotFound:       "Script não encontrado.",
	ReasonEntryNotFound:        "Conversa não encontrada no histórico.",
	ReasonCascadeIncomplete:    "Alguns scripts não puderam ser excluídos; o cliente foi mantido.",
	ReasonStoreError:           "Não foi possível salvar os dados. Tente novamente.",
	ReasonProbeFailed:          "Não foi possível verificar o widget no navegador.",
	ReasonCrossOrigin:          "Requisição de outra origem recusada.",
}

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
	// Fields maps form fields to the failed validation rule.
	Fields map[string]string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Message is the text shown to the user for the error.
func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	if m, ok := messages[e.Reason]; ok {
		return m
	}
	switch e.Code {
	case ErrorNotFound:
		return "Registro não encontrado."
	case ErrorUpstream:
		return "Serviço externo indisponível. Tente novamente."
	default:
		return "Erro inesperado. Tente novamente."
	}
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// AsError extracts a *Error from err.
func AsError(err error) (*Error, bool) {
	var ue *Error
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}
