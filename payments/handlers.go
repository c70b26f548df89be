package payments

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/rentals_backend/config"
	"github.com/mmdatafocus/rentals_backend/models"
	"github.com/mmdatafocus/rentals_backend/utils"
	"github.com/mmdatafocus/rentals_backend/workflow"
	"github.com/sirupsen/logrus"
)

const maxCallbackBody = 1 << 20

type CallbackReconciler interface {
	HandleCallback(ctx context.Context, source string, raw []byte) (*workflow.CallbackOutcome, error)
}

type UnmatchedLister interface {
	ListUnmatchedNotifications(ctx context.Context, filter models.UnmatchedFilter) ([]models.InboundNotification, error)
}

// InitiateHandler serves POST /payments/stk/initiate behind AuthMiddleware.
func InitiateHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req InitiateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			pe := utils.ValidationError("invalid request body", "")
			fields := utils.ProcessValidationErrors(err)
			c.JSON(pe.HTTPStatus(), gin.H{
				"success": false,
				"error":   pe.Message,
				"errorId": pe.ErrorID(),
				"fields":  fields,
			})
			return
		}

		ctx := c.Request.Context()
		res, err := svc.Initiate(ctx, callerFromContext(ctx), req)
		if err != nil {
			renderError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":           true,
			"CheckoutRequestID": res.CheckoutRequestID,
			"MerchantRequestID": res.MerchantRequestID,
			"message":           res.Message,
			"data":              res.Data,
		})
	}
}

// CallbackHandler serves the unauthenticated provider callbacks. Anything
// durably recorded is acknowledged with 200 whatever its match outcome.
func CallbackHandler(reconciler CallbackReconciler, source string) gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxCallbackBody))
		if err != nil {
			config.LogError(logger, "payments", "CallbackHandler", "io.ReadAll", source, err)
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "unreadable body"})
			return
		}

		out, err := reconciler.HandleCallback(c.Request.Context(), source, body)
		if err != nil {
			// not stored; a non-2xx makes the provider redeliver
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "callback not recorded"})
			return
		}
		logger.WithFields(logrus.Fields{
			"module":          "payments",
			"funcName":        "CallbackHandler",
			"source":          source,
			"notification_id": out.NotificationID,
			"state":           out.State,
			"outcome":         out.MatchOutcome,
		}).Info("callback recorded")
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// UnmatchedHandler lists the manual review queue. Admins see every landlord
// and may filter by landlordId; landlords are scoped by the landlord guard.
func UnmatchedHandler(lister UnmatchedLister) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		caller := callerFromContext(ctx)

		var filter models.UnmatchedFilter
		switch {
		case caller.IsAdmin():
			filter.LandlordID = c.Query("landlordId")
		case caller.Role == utils.RoleLandlord:
			ctx = utils.SetLandlordIdInContext(ctx, caller.UserID)
		default:
			renderError(c, utils.NotAuthorized("only admins and landlords can view unmatched payments"))
			return
		}

		if raw := c.Query("outcome"); raw != "" {
			filter.Outcome = models.MatchOutcome(raw)
		}
		if raw := c.Query("since"); raw != "" {
			since, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				renderError(c, utils.ValidationError("invalid since", "use RFC3339, e.g. 2024-01-02T15:04:05Z"))
				return
			}
			filter.Since = &since
		}
		if raw := c.Query("limit"); raw != "" {
			limit, err := strconv.Atoi(raw)
			if err != nil || limit <= 0 {
				renderError(c, utils.ValidationError("invalid limit", "send a positive integer"))
				return
			}
			filter.Limit = limit
		}

		rows, err := lister.ListUnmatchedNotifications(ctx, filter)
		if err != nil {
			config.LogError(config.GetLogger(), "payments", "UnmatchedHandler", "ListUnmatchedNotifications", filter, err)
			renderError(c, utils.NewPaymentError(utils.KindInternal, "could not load unmatched payments", err))
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"count":   len(rows),
			"data":    rows,
		})
	}
}

func callerFromContext(ctx context.Context) Caller {
	userID, _ := utils.GetUserIdFromContext(ctx)
	role, _ := utils.GetUserRoleFromContext(ctx)
	return Caller{UserID: userID, Role: role}
}

func renderError(c *gin.Context, err error) {
	pe := utils.AsPaymentError(err)
	message := pe.Message
	if pe.Upstream() {
		message = "the payment could not be processed, please try again later"
	}
	body := gin.H{
		"success": false,
		"error":   message,
		"errorId": pe.ErrorID(),
	}
	if pe.Hint != "" {
		body["hint"] = pe.Hint
	}
	if pe.Kind == utils.KindProviderRejected && pe.ProviderBody != "" {
		body["providerError"] = pe.ProviderBody
	}
	c.JSON(pe.HTTPStatus(), body)
}
