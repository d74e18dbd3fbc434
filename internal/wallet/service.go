// Package wallet は通話時間ウォレットのドメインロジックを提供する。
package wallet

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/alexlistens/alexlistens/internal/model"
	"github.com/alexlistens/alexlistens/internal/repository"
)

// Service はウォレット残高の照会・付与・課金を提供する。
// 課金は通話IDをキーとした台帳により冪等で、残高は0未満にならない。
type Service struct {
	walletRepo     repository.WalletRepository
	logger         *slog.Logger
	minCallSeconds int64
}

// NewService はServiceの新しいインスタンスを生成する。
// minCallSecondsは通話開始に必要な最低残高（秒）。
func NewService(walletRepo repository.WalletRepository, logger *slog.Logger, minCallSeconds int64) *Service {
	return &Service{
		walletRepo:     walletRepo,
		logger:         logger,
		minCallSeconds: minCallSeconds,
	}
}

// Get は指定ユーザーのウォレットを取得する。
func (s *Service) Get(ctx context.Context, userID string) (*model.Wallet, error) {
	wallet, err := s.walletRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ウォレットの取得に失敗しました: %w", err)
	}
	if wallet == nil {
		return nil, model.NewUserNotFoundError()
	}
	return wallet, nil
}

// EnsureCanStartCall は通話開始に必要な最低残高があることを確認する。
// 残高が不足している場合はINSUFFICIENT_BALANCEエラーを返す。
func (s *Service) EnsureCanStartCall(ctx context.Context, userID string) error {
	wallet, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	if wallet.BalanceSeconds < s.minCallSeconds {
		return model.NewInsufficientBalanceError(wallet.BalanceSeconds, s.minCallSeconds)
	}
	return nil
}

// Grant は残高を加算する。管理者による時間付与に使用する。
func (s *Service) Grant(ctx context.Context, userID string, seconds int64) error {
	if seconds <= 0 {
		return model.NewInvalidRequestError("付与する秒数は正の値である必要があります")
	}
	if err := s.walletRepo.Grant(ctx, userID, seconds); err != nil {
		return fmt.Errorf("残高の付与に失敗しました: %w", err)
	}
	s.logger.Info("ウォレット残高を付与しました",
		slog.String("user_id", userID),
		slog.Int64("seconds", seconds),
	)
	return nil
}

// ChargeForCall は通話の経過時間分を残高から控除する。
// 経過時間は秒単位に切り上げる。同一callIDへの再課金は台帳により
// 冪等化され、既存の控除秒数がそのまま返る。
// 残高が不足する場合は残高全額を控除して0でクランプする。
// 戻り値は実際に控除された秒数。
func (s *Service) ChargeForCall(ctx context.Context, userID, callID string, elapsed time.Duration) (int64, error) {
	if elapsed < 0 {
		elapsed = 0
	}
	seconds := int64(math.Ceil(elapsed.Seconds()))

	deducted, err := s.walletRepo.DeductForCall(ctx, userID, callID, seconds)
	if err != nil {
		return 0, fmt.Errorf("通話の課金に失敗しました: %w", err)
	}

	s.logger.Info("通話の課金を記録しました",
		slog.String("user_id", userID),
		slog.String("call_id", callID),
		slog.Int64("elapsed_seconds", seconds),
		slog.Int64("deducted_seconds", deducted),
	)
	return deducted, nil
}
