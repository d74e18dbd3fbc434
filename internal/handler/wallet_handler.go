package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/alexlistens/alexlistens/internal/middleware"
	"github.com/alexlistens/alexlistens/internal/model"
)

// WalletServiceInterface はウォレットハンドラーが必要とするサービスインターフェース。
type WalletServiceInterface interface {
	// Get は指定ユーザーのウォレットを取得する。
	Get(ctx context.Context, userID string) (*model.Wallet, error)
}

// WalletHandler はウォレットのHTTPハンドラー。
type WalletHandler struct {
	service WalletServiceInterface
}

// NewWalletHandler はWalletHandlerを生成する。
func NewWalletHandler(service WalletServiceInterface) *WalletHandler {
	return &WalletHandler{service: service}
}

// walletResponse はウォレットのAPIレスポンス。
type walletResponse struct {
	BalanceSeconds int64     `json:"balance_seconds"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// GetWallet は自分のウォレット残高を取得する。
// GET /api/wallet
func (h *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	wallet, err := h.service.Get(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, walletResponse{
		BalanceSeconds: wallet.BalanceSeconds,
		UpdatedAt:      wallet.UpdatedAt,
	})
}
