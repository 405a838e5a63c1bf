package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/layer-3/anchor/core"
	"github.com/layer-3/anchor/ports"
)

// Authenticator is the web authentication flow served over HTTP.
type Authenticator interface {
	IssueChallenge(ctx context.Context, req core.ChallengeRequest) (*core.ChallengeResponse, error)
	RedeemChallenge(ctx context.Context, envelope string) (string, error)
	ValidateToken(ctx context.Context, token string) (*core.SessionCredential, error)
}

// AuthHandlers contains HTTP handlers for the web authentication endpoint
type AuthHandlers struct {
	auth   Authenticator
	logger *zap.Logger
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(auth Authenticator, logger *zap.Logger) *AuthHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandlers{auth: auth, logger: logger}
}

// Challenge handles GET /auth
func (h *AuthHandlers) Challenge(c *gin.Context) {
	var req core.ChallengeRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "'account' is required"})
		return
	}

	resp, err := h.auth.IssueChallenge(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Token handles POST /auth. The envelope may arrive as JSON or form data.
func (h *AuthHandlers) Token(c *gin.Context) {
	var req struct {
		Transaction string `form:"transaction" json:"transaction" binding:"required"`
	}
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "'transaction' is required"})
		return
	}

	token, err := h.auth.RedeemChallenge(c.Request.Context(), req.Transaction)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (h *AuthHandlers) writeError(c *gin.Context, err error) {
	writeError(c, h.logger, err)
}

// TransactionHandlers serves authenticated SEP-24 transaction lookups
type TransactionHandlers struct {
	store  ports.TransactionStore
	logger *zap.Logger
}

// NewTransactionHandlers creates new transaction handlers
func NewTransactionHandlers(store ports.TransactionStore, logger *zap.Logger) *TransactionHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TransactionHandlers{store: store, logger: logger}
}

// Transaction handles GET /sep24/transaction?id=
func (h *TransactionHandlers) Transaction(c *gin.Context) {
	cred, ok := credentialFrom(c)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"type": "authentication_required"})
		return
	}

	id := c.Query("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "'id' is required"})
		return
	}

	tx, err := h.store.Get(c.Request.Context(), id)
	if errors.Is(err, core.ErrNotFound) || (err == nil && !ownedBy(*tx, cred)) {
		c.JSON(http.StatusNotFound, gin.H{"error": "transaction not found"})
		return
	}
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transaction": tx})
}

// Transactions handles GET /sep24/transactions, listing the caller's
// transactions oldest first. kind narrows the list to deposits or withdrawals.
func (h *TransactionHandlers) Transactions(c *gin.Context) {
	cred, ok := credentialFrom(c)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"type": "authentication_required"})
		return
	}

	filter := core.TransactionFilter{StellarAccount: cred.Account}
	switch kind := core.Kind(c.Query("kind")); kind {
	case "":
	case core.KindDeposit, core.KindWithdrawal:
		filter.Kind = kind
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'kind'"})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'limit'"})
			return
		}
		limit = n
	}

	txs, err := h.store.Find(c.Request.Context(), filter)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	owned := make([]core.Transaction, 0, len(txs))
	for _, tx := range txs {
		if !ownedBy(tx, cred) {
			continue
		}
		owned = append(owned, tx)
		if limit > 0 && len(owned) == limit {
			break
		}
	}

	c.JSON(http.StatusOK, gin.H{"transactions": owned})
}

func ownedBy(tx core.Transaction, cred *core.SessionCredential) bool {
	if tx.StellarAccount != cred.Account {
		return false
	}
	if cred.Memo == nil {
		return tx.AccountMemo == ""
	}
	return tx.AccountMemo == strconv.FormatUint(*cred.Memo, 10)
}

func writeError(c *gin.Context, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, core.ErrAuthRequired):
		c.JSON(http.StatusForbidden, gin.H{"type": "authentication_required"})
	case errors.Is(err, core.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		logger.Error("request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
