package handler

import (
	"fmt"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kopernik-pizza/internal/domain/order"
)

func invalidInput(format string, args ...any) *order.Error {
	return &order.Error{Kind: order.KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

func asInvalidInput(err error) *order.Error {
	return &order.Error{Kind: order.KindInvalidInput, Message: err.Error(), Err: err}
}

// statusOf maps an order error kind to an HTTP status.
func statusOf(kind order.Kind) int {
	switch kind {
	case order.KindInvalidInput:
		return http.StatusBadRequest
	case order.KindNotFound:
		return http.StatusNotFound
	case order.KindAlreadyUsed:
		return http.StatusConflict
	case order.KindBusinessRuleViolation:
		return http.StatusUnprocessableEntity
	case order.KindTransactionFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var oe *order.Error
	if !errors.As(err, &oe) {
		zctx.From(r.Context()).Error("Unexpected error", zap.Error(err))
		oe = &order.Error{Message: "internal error"}
	}

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("errorKind", func(e *jx.Encoder) {
			if oe.Kind == "" {
				e.Str("Internal")
				return
			}
			e.Str(string(oe.Kind))
		})
		e.Field("message", func(e *jx.Encoder) { e.Str(oe.Message) })
	})
	writeJSON(w, statusOf(oe.Kind), e.Bytes())
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// The status is already sent; a failed write means the client is gone.
	_, _ = w.Write(body)
}
