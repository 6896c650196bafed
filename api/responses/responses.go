package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	zlog "github.com/rs/zerolog/log"

	pkgerrors "github.com/angelmondragon/pullstream-backend/pkg/errors"
	"github.com/angelmondragon/pullstream-backend/pkg/logger"
)

// Codes whose caller-supplied message is safe to show. Everything else
// answers with the code's public message.
var callerMessageCodes = map[pkgerrors.Code]struct{}{
	pkgerrors.CodeValidation:      {},
	pkgerrors.CodeForbidden:       {},
	pkgerrors.CodeUnauthorized:    {},
	pkgerrors.CodeNotFound:        {},
	pkgerrors.CodeConflict:        {},
	pkgerrors.CodeStateConflict:   {},
	pkgerrors.CodeIdempotency:     {},
	pkgerrors.CodeRateLimit:       {},
	pkgerrors.CodeInvalidParty:    {},
	pkgerrors.CodeInvalidAmount:   {},
	pkgerrors.CodeInvalidDuration: {},
}

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, SuccessEnvelope{Data: data})
}

// WriteError renders err as an ErrorEnvelope. Untyped errors become
// INTERNAL_ERROR so nothing from the chain leaks to the caller.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	meta := pkgerrors.MetadataFor(typed.Code())

	body := APIError{Code: string(typed.Code()), Message: publicMessage(typed, meta)}
	if meta.DetailsAllowed && typed.Details() != nil {
		body.Details = typed.Details()
	}

	logRejection(ctx, logg, err, typed, meta.HTTPStatus)
	writeJSON(w, meta.HTTPStatus, ErrorEnvelope{Error: body})
}

func publicMessage(typed *pkgerrors.Error, meta pkgerrors.Metadata) string {
	if _, ok := callerMessageCodes[typed.Code()]; ok && typed.Message() != "" {
		return typed.Message()
	}
	return meta.PublicMessage
}

func logRejection(ctx context.Context, logg *logger.Logger, err error, typed *pkgerrors.Error, status int) {
	if logg == nil {
		return
	}
	fields := pkgerrors.Dump(err).Fields()
	if d := typed.Details(); d != nil {
		fields["error_details"] = d
	}
	ctx = logg.WithFields(ctx, fields)
	if status >= http.StatusInternalServerError {
		logg.Error(ctx, "request.error", err)
		return
	}
	logg.Warn(ctx, "request.rejected")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zlog.Error().Err(err).Msg("failed to encode response")
	}
}
