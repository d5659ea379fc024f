package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/betza-storefront/api/middleware"
	"github.com/angelmondragon/betza-storefront/api/responses"
	"github.com/angelmondragon/betza-storefront/api/validators"
	"github.com/angelmondragon/betza-storefront/internal/settlement"
	pkgerrors "github.com/angelmondragon/betza-storefront/pkg/errors"
	"github.com/angelmondragon/betza-storefront/pkg/logger"
)

type verifyPaymentRequest struct {
	Reference string `json:"reference" validate:"required"`
}

// InitializePayment starts a hosted checkout for the authenticated caller.
// Success returns the bare {authorization_url, access_code, reference} object;
// failures return {"error"}. metadata.user_id defaults to the caller and must
// not name anyone else.
func InitializePayment(svc settlement.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteFunctionError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement service unavailable"))
			return
		}
		caller := middleware.UserIDFromContext(ctx)
		if caller == "" {
			responses.WriteFunctionError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}

		// an absent metadata.user_id keeps the caller
		input := settlement.InitializeInput{Metadata: settlement.Metadata{UserID: caller}}
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteFunctionError(ctx, logg, w, err)
			return
		}
		if strings.TrimSpace(input.Metadata.UserID) != caller {
			responses.WriteFunctionError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "payment must be made for the signed-in user"))
			return
		}

		result, err := svc.Initialize(ctx, input)
		if err != nil {
			responses.WriteFunctionError(ctx, logg, w, err)
			return
		}
		responses.WriteRaw(w, http.StatusOK, result)
	}
}

// VerifyPayment settles a reference and returns {order_id}. Repeated calls for
// the same reference return the same order.
func VerifyPayment(svc settlement.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteFunctionError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement service unavailable"))
			return
		}

		var payload verifyPaymentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteFunctionError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			ctx = logg.WithReference(ctx, payload.Reference)
		}
		result, err := svc.Verify(ctx, payload.Reference)
		if err != nil {
			responses.WriteFunctionError(ctx, logg, w, err)
			return
		}
		responses.WriteRaw(w, http.StatusOK, result)
	}
}
