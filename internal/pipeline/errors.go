package pipeline

import "fmt"

// Kind classifies a pipeline failure for the caller. Each kind maps to a
// distinct user-facing message and HTTP status in the API layer.
type Kind string

const (
	KindEmptyQuestion   Kind = "empty_question"
	KindQuestionTooLong Kind = "question_too_long"
	KindEmbeddingFailed Kind = "embedding_failed"
	KindModelFailed     Kind = "model_failed"
	KindRateLimited     Kind = "rate_limited"
	KindInternal        Kind = "internal"
)

// Error is the pipeline's failure type. Message is safe to show to the end
// user; the wrapped cause is for logs only.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

func errEmptyQuestion() *Error {
	return &Error{Kind: KindEmptyQuestion, Message: "La pregunta está vacía."}
}

func errQuestionTooLong(maxTokens int) *Error {
	return &Error{Kind: KindQuestionTooLong, Message: fmt.Sprintf("La pregunta supera el límite de %d tokens.", maxTokens)}
}

func errEmbeddingFailed(cause error) *Error {
	return &Error{Kind: KindEmbeddingFailed, Message: "No se pudo procesar la pregunta; inténtalo de nuevo.", cause: cause}
}

func errModelFailed(cause error) *Error {
	return &Error{Kind: KindModelFailed, Message: "No se pudo generar la respuesta; inténtalo de nuevo.", cause: cause}
}

func errRateLimited(cause error) *Error {
	return &Error{Kind: KindRateLimited, Message: "Demasiadas solicitudes; espera un momento.", cause: cause}
}

func errInternal(cause error) *Error {
	return &Error{Kind: KindInternal, Message: "Error interno del asistente.", cause: cause}
}

// KindOf extracts the pipeline error kind, defaulting to internal.
func KindOf(err error) Kind {
	if pe, ok := err.(*Error); ok {
		return pe.Kind
	}
	return KindInternal
}
