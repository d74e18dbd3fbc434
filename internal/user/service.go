// Package user はユーザープロフィールのドメインロジックを提供する。
package user

import (
	"context"
	"fmt"

	"github.com/alexlistens/alexlistens/internal/model"
	"github.com/alexlistens/alexlistens/internal/repository"
)

// Profile はプロフィールAPIで返すユーザー情報と通話統計の組。
type Profile struct {
	User  *model.User
	Stats *model.CallStats
}

// Service はユーザープロフィールの照会と設定更新を提供する。
type Service struct {
	userRepo  repository.UserRepository
	statsRepo repository.CallStatsRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository, statsRepo repository.CallStatsRepository) *Service {
	return &Service{
		userRepo:  userRepo,
		statsRepo: statsRepo,
	}
}

// Me は指定ユーザーのプロフィールと通話統計を返す。
// 統計が未記録の場合はゼロ値の統計を返す。
func (s *Service) Me(ctx context.Context, userID string) (*Profile, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	stats, err := s.statsRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("通話統計の取得に失敗しました: %w", err)
	}
	if stats == nil {
		stats = &model.CallStats{UserID: userID}
	}

	return &Profile{User: user, Stats: stats}, nil
}

// UpdateLanguage はユーザーのエージェント言語設定を更新する。
func (s *Service) UpdateLanguage(ctx context.Context, userID string, lang model.LanguagePreference) error {
	switch lang {
	case model.LanguageDefault, model.LanguageSpanish, model.LanguageAussie:
	default:
		return model.NewInvalidRequestError(fmt.Sprintf("未対応の言語設定です: %s", lang))
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	if err := s.userRepo.UpdateLanguage(ctx, userID, lang); err != nil {
		return fmt.Errorf("言語設定の更新に失敗しました: %w", err)
	}
	return nil
}
