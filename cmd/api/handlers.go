package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yourusername/eve-on-safari/internal/auth"
	"github.com/yourusername/eve-on-safari/internal/outbound"
	"github.com/yourusername/eve-on-safari/internal/payments"
	"github.com/yourusername/eve-on-safari/internal/reqctx"
	"github.com/yourusername/eve-on-safari/internal/security"
	"github.com/yourusername/eve-on-safari/internal/validate"
)

const passwordResetMessage = "If an account exists for that email, a reset link is on its way."

// handleCSRF は CSRF Cookie を保証し、同じ値を JSON でも返します。
func (s *server) handleCSRF(c *gin.Context) {
	id := reqctx.FromGin(c)
	token, err := s.enforcer.EnsureCookie(c)
	if err != nil {
		s.internalError(c, id.RequestID, "csrf.cookie_issue_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "csrfToken": token})
}

// handlePlan はプラン相談（見積もり依頼）を受け付けます。
func (s *server) handlePlan(c *gin.Context) {
	id := reqctx.FromGin(c)
	body, ok := s.decodeBody(c, id.RequestID)
	if !ok {
		return
	}
	res := validate.Plan(body)
	if !res.OK {
		security.Fail(c, http.StatusBadRequest, security.CodeInvalidInput, res.Error, id.RequestID)
		return
	}

	plan := res.Data
	s.log.Info("plan.received", map[string]any{
		"requestId":    id.RequestID,
		"subject":      validate.SanitizeEmailHeaderValue("New plan request: " + plan.FullName),
		"replyToEmail": validate.SanitizeEmailHeaderValue(plan.Email),
		"groupSize":    plan.GroupSize,
		"interests":    plan.Interests,
		"package":      plan.Package,
	})
	c.JSON(http.StatusOK, gin.H{"ok": true, "requestId": id.RequestID})
}

// handleNewsletter はニュースレター登録を受け付けます。
func (s *server) handleNewsletter(c *gin.Context) {
	id := reqctx.FromGin(c)
	body, ok := s.decodeBody(c, id.RequestID)
	if !ok {
		return
	}
	res := validate.Newsletter(body)
	if !res.OK {
		security.Fail(c, http.StatusBadRequest, security.CodeInvalidInput, res.Error, id.RequestID)
		return
	}

	source := res.Data.Source
	if source == "" {
		source = "website"
	}
	s.log.Info("newsletter.subscribed", map[string]any{
		"requestId": id.RequestID,
		"email":     res.Data.Email,
		"source":    source,
	})
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// handlePasswordReset はパスワード再設定依頼を受け付けます。
// アカウントの有無を推測されないよう、形式が正しければ常に同じ応答を返します。
func (s *server) handlePasswordReset(c *gin.Context) {
	id := reqctx.FromGin(c)
	body, ok := s.decodeBody(c, id.RequestID)
	if !ok {
		return
	}
	res := validate.PasswordReset(body)
	if !res.OK {
		security.Fail(c, http.StatusBadRequest, security.CodeInvalidInput, res.Error, id.RequestID)
		return
	}
	s.log.Info("auth.password_reset_requested", map[string]any{
		"requestId": id.RequestID,
		"email":     res.Data.Email,
		"ip":        id.ClientIP,
	})
	c.JSON(http.StatusOK, gin.H{"ok": true, "message": passwordResetMessage})
}

// handleCheckout はログイン済み利用者の注文をプロバイダーへ送り、支払いページの URL を返します。
func (s *server) handleCheckout(c *gin.Context) {
	id := reqctx.FromGin(c)
	session, ok := auth.SessionFrom(c)
	if !ok {
		security.Fail(c, http.StatusUnauthorized, security.CodeAuthRequired, "Authentication required.", id.RequestID)
		return
	}
	body, ok := s.decodeBody(c, id.RequestID)
	if !ok {
		return
	}
	res := validate.Checkout(body)
	if !res.OK {
		security.Fail(c, http.StatusBadRequest, security.CodeInvalidInput, res.Error, id.RequestID)
		return
	}

	checkout := res.Data
	// 請求先メールを指定する場合は、ログイン中のアカウントのものに限る
	if checkout.Email != "" && !auth.IsEmailOwnedByUser(checkout.Email, session.Principal) {
		s.log.Warn("auth.email_mismatch", map[string]any{
			"requestId": id.RequestID,
			"userId":    session.Principal.ID,
			"path":      c.Request.URL.Path,
		})
		security.Fail(c, http.StatusForbidden, security.CodeEmailMismatch, "Billing email must match your account email.", id.RequestID)
		return
	}

	description := "Eve on Safari booking"
	if checkout.PackageName != "" {
		description = "Eve on Safari: " + checkout.PackageName
	}
	order := payments.Order{
		MerchantReference: "EOS-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:16]),
		Amount:            checkout.Amount,
		Currency:          checkout.Currency,
		Description:       fmt.Sprintf("%s (%d pax)", description, checkout.Pax),
		Email:             session.Principal.Email,
		CallbackURL:       s.settings.PaymentCallback,
		NotificationID:    s.settings.PaymentIPNID,
	}

	receipt, err := s.orders.SubmitOrder(c.Request.Context(), order)
	if err != nil {
		details := map[string]any{
			"requestId":         id.RequestID,
			"merchantReference": order.MerchantReference,
			"error":             err.Error(),
		}
		var guardErr *outbound.Error
		if errors.As(err, &guardErr) {
			s.log.Error("payments.provider_blocked", details)
		} else {
			s.log.Warn("payments.submit_failed", details)
		}
		security.Fail(c, http.StatusBadGateway, security.CodeUpstreamError, "Payment provider is unavailable. Please try again shortly.", id.RequestID)
		return
	}

	txn := &payments.Transaction{
		TrackingID:        receipt.TrackingID,
		MerchantReference: order.MerchantReference,
		Status:            payments.StatusPending,
		Amount:            order.Amount,
		Currency:          order.Currency,
		UserID:            session.Principal.ID,
	}
	if err := s.store.Upsert(c.Request.Context(), txn); err != nil {
		s.internalError(c, id.RequestID, "payments.store_failed", err)
		return
	}

	s.log.Info("payments.order_submitted", map[string]any{
		"requestId":         id.RequestID,
		"userId":            session.Principal.ID,
		"trackingId":        receipt.TrackingID,
		"merchantReference": order.MerchantReference,
	})
	c.JSON(http.StatusOK, gin.H{
		"ok":                true,
		"trackingId":        receipt.TrackingID,
		"merchantReference": order.MerchantReference,
		"redirectUrl":       receipt.RedirectURL,
	})
}

// handleGetTransaction は管理者向けに取引レコードを返します。
func (s *server) handleGetTransaction(c *gin.Context) {
	id := reqctx.FromGin(c)
	res := validate.TransactionID(c.Param("id"))
	if !res.OK {
		security.Fail(c, http.StatusBadRequest, security.CodeInvalidInput, res.Error, id.RequestID)
		return
	}

	txn, err := s.store.Get(c.Request.Context(), res.Data)
	if err != nil {
		s.internalError(c, id.RequestID, "payments.store_failed", err)
		return
	}
	if txn == nil {
		security.Fail(c, http.StatusNotFound, security.CodeNotFound, "Transaction not found.", id.RequestID)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "transaction": txn})
}

type ipnNotification struct {
	TrackingID        any
	MerchantReference string
	NotificationType  string
}

// handleIPN は決済プロバイダーからの IPN を受け取り、状態確認ジョブを投入します。
// 署名必須の設定では、GET はクエリ文字列、POST は生ボディに対する署名を検証します。
func (s *server) handleIPN(c *gin.Context) {
	id := reqctx.FromGin(c)

	var raw []byte
	if c.Request.Method == http.MethodPost {
		data, err := io.ReadAll(io.LimitReader(c.Request.Body, validate.MaxBodyBytes))
		if err != nil {
			security.Fail(c, http.StatusBadRequest, security.CodeInvalidInput, "Invalid notification payload.", id.RequestID)
			return
		}
		raw = data
	} else {
		raw = []byte(c.Request.URL.RawQuery)
	}

	if s.enforcer.Policy().IsIPNSignatureRequired() {
		err := payments.VerifyIPNSignature(s.settings.PaymentIPNSecret, raw, c.GetHeader(payments.SignatureHeader))
		if err != nil {
			s.log.Warn("payments.ipn_signature_rejected", map[string]any{
				"requestId": id.RequestID,
				"ip":        id.ClientIP,
				"error":     err.Error(),
			})
			security.Fail(c, http.StatusUnauthorized, security.CodeInvalidSignature, "Invalid notification signature.", id.RequestID)
			return
		}
	}

	note, ok := s.parseIPN(c, raw)
	if !ok {
		security.Fail(c, http.StatusBadRequest, security.CodeInvalidInput, "Invalid notification payload.", id.RequestID)
		return
	}
	tracking := validate.TransactionID(note.TrackingID)
	if !tracking.OK {
		s.log.Warn("payments.ipn_invalid_id", map[string]any{"requestId": id.RequestID, "ip": id.ClientIP})
		security.Fail(c, http.StatusBadRequest, security.CodeInvalidInput, tracking.Error, id.RequestID)
		return
	}

	if _, err := s.queue.EnqueueStatusCheck(c.Request.Context(), tracking.Data); err != nil {
		s.internalError(c, id.RequestID, "payments.enqueue_failed", err)
		return
	}

	s.log.Info("payments.ipn_received", map[string]any{
		"requestId":        id.RequestID,
		"trackingId":       tracking.Data,
		"notificationType": note.NotificationType,
	})
	c.JSON(http.StatusOK, gin.H{
		"orderNotificationType":  note.NotificationType,
		"orderTrackingId":        tracking.Data,
		"orderMerchantReference": note.MerchantReference,
		"status":                 200,
	})
}

func (s *server) parseIPN(c *gin.Context, raw []byte) (ipnNotification, bool) {
	if c.Request.Method != http.MethodPost {
		return ipnNotification{
			TrackingID:        c.Query("OrderTrackingId"),
			MerchantReference: optionalField(c.Query("OrderMerchantReference")),
			NotificationType:  optionalField(c.Query("OrderNotificationType")),
		}, true
	}

	body, err := validate.Decode(bytes.NewReader(raw))
	if err != nil {
		return ipnNotification{}, false
	}
	m, isObject := body.(map[string]any)
	if !isObject {
		return ipnNotification{}, false
	}
	return ipnNotification{
		TrackingID:        m["OrderTrackingId"],
		MerchantReference: optionalField(m["OrderMerchantReference"]),
		NotificationType:  optionalField(m["OrderNotificationType"]),
	}, true
}

func optionalField(v any) string {
	s, _ := validate.CleanText(v, 128)
	return s
}

// decodeBody は JSON ボディを読み込みます。失敗時は 400 を返して false を返します。
func (s *server) decodeBody(c *gin.Context, requestID string) (any, bool) {
	body, err := validate.Decode(c.Request.Body)
	if err != nil {
		security.Fail(c, http.StatusBadRequest, security.CodeInvalidInput, "Request body must be valid JSON.", requestID)
		return nil, false
	}
	return body, true
}

// internalError は詳細をログにだけ残し、利用者には汎用メッセージを返します。
func (s *server) internalError(c *gin.Context, requestID, event string, err error) {
	s.log.Error(event, map[string]any{
		"requestId": requestID,
		"path":      c.Request.URL.Path,
		"error":     err.Error(),
	})
	security.Fail(c, http.StatusInternalServerError, security.CodeInternalError, "Something went wrong. Please try again.", requestID)
}
