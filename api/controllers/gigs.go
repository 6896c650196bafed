package controllers

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/pullstream-backend/api/middleware"
	"github.com/angelmondragon/pullstream-backend/api/responses"
	"github.com/angelmondragon/pullstream-backend/api/validators"
	"github.com/angelmondragon/pullstream-backend/internal/gigs"
	"github.com/angelmondragon/pullstream-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/pullstream-backend/pkg/errors"
	"github.com/angelmondragon/pullstream-backend/pkg/logger"
)

const gigIDParam = "gigId"

type createGigRequest struct {
	Freelancer      string          `json:"freelancer" validate:"max=256,identity"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	DurationSeconds int64           `json:"duration_seconds"`
}

// CreateGig opens a stream funded by the caller.
func CreateGig(svc gigs.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := requireCaller(w, r, logg)
		if !ok {
			return
		}

		var req createGigRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if req.DurationSeconds > math.MaxInt64/int64(time.Second) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInvalidDuration, "duration is too long").
				WithDetails(map[string]any{"duration_seconds": req.DurationSeconds}))
			return
		}

		status, err := svc.CreateGig(r.Context(), gigs.CreateGigInput{
			Client:      caller,
			Freelancer:  req.Freelancer,
			TotalAmount: req.TotalAmount,
			Duration:    time.Duration(req.DurationSeconds) * time.Second,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.Header().Set("Location", "/api/v1/gigs/"+strconv.FormatUint(status.ID, 10))
		responses.WriteSuccessStatus(w, http.StatusCreated, status)
	}
}

// ListGigs pages through the gigs the caller is a party to.
func ListGigs(svc gigs.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := requireCaller(w, r, logg)
		if !ok {
			return
		}

		role, err := enums.ParseGigRole(r.URL.Query().Get("role"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "role must be client or freelancer").
				WithDetails(map[string]any{"field": "role"}))
			return
		}
		page, err := validators.ParsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListGigs(r.Context(), caller, gigs.ListGigsInput{Role: role, Params: page})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// GetGig returns a fresh status snapshot. Any authenticated caller may read it.
func GetGig(svc gigs.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gigID, ok := parseGigID(w, r, logg)
		if !ok {
			return
		}
		status, err := svc.GetGigStatus(r.Context(), gigID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, status)
	}
}

func ListGigTransfers(svc gigs.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := requireCaller(w, r, logg)
		if !ok {
			return
		}
		gigID, ok := parseGigID(w, r, logg)
		if !ok {
			return
		}
		transfers, err := svc.ListTransfers(r.Context(), caller, gigID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"transfers": transfers})
	}
}

func PauseGig(svc gigs.Service, logg *logger.Logger) http.HandlerFunc {
	return gigAction(logg, func(r *http.Request, caller string, gigID uint64) (any, error) {
		return svc.Pause(r.Context(), caller, gigID)
	})
}

func ResumeGig(svc gigs.Service, logg *logger.Logger) http.HandlerFunc {
	return gigAction(logg, func(r *http.Request, caller string, gigID uint64) (any, error) {
		return svc.Resume(r.Context(), caller, gigID)
	})
}

// PayGig releases everything vested since the last payout.
func PayGig(svc gigs.Service, logg *logger.Logger) http.HandlerFunc {
	return gigAction(logg, func(r *http.Request, caller string, gigID uint64) (any, error) {
		return svc.PayNow(r.Context(), caller, gigID)
	})
}

// WithdrawGig settles a fully vested gig.
func WithdrawGig(svc gigs.Service, logg *logger.Logger) http.HandlerFunc {
	return gigAction(logg, func(r *http.Request, caller string, gigID uint64) (any, error) {
		return svc.WithdrawRemaining(r.Context(), caller, gigID)
	})
}

func gigAction(logg *logger.Logger, run func(r *http.Request, caller string, gigID uint64) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := requireCaller(w, r, logg)
		if !ok {
			return
		}
		gigID, ok := parseGigID(w, r, logg)
		if !ok {
			return
		}
		out, err := run(r, caller, gigID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, out)
	}
}

func requireCaller(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (string, bool) {
	caller := middleware.IdentityFromContext(r.Context())
	if caller == "" {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "caller identity missing"))
		return "", false
	}
	return caller, true
}

func parseGigID(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (uint64, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, gigIDParam))
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid gig id").
			WithDetails(map[string]any{"field": gigIDParam}))
		return 0, false
	}
	return id, true
}
