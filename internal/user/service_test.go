package user

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alexlistens/alexlistens/internal/model"
)

// mockUserRepo はテスト用のUserRepository実装
type mockUserRepo struct {
	findByIDFunc       func(ctx context.Context, id string) (*model.User, error)
	updateLanguageFunc func(ctx context.Context, userID string, lang model.LanguagePreference) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return &model.User{ID: id}, nil
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return nil, nil
}

func (m *mockUserRepo) CreateWithWallet(ctx context.Context, user *model.User, initialSeconds int64) error {
	return nil
}

func (m *mockUserRepo) UpdateLanguage(ctx context.Context, userID string, lang model.LanguagePreference) error {
	if m.updateLanguageFunc != nil {
		return m.updateLanguageFunc(ctx, userID, lang)
	}
	return nil
}

// mockStatsRepo はテスト用のCallStatsRepository実装
type mockStatsRepo struct {
	findByUserIDFunc func(ctx context.Context, userID string) (*model.CallStats, error)
}

func (m *mockStatsRepo) FindByUserID(ctx context.Context, userID string) (*model.CallStats, error) {
	if m.findByUserIDFunc != nil {
		return m.findByUserIDFunc(ctx, userID)
	}
	return nil, nil
}

func (m *mockStatsRepo) RecordCall(ctx context.Context, userID string, seconds int64, endedAt time.Time) error {
	return nil
}

// Meがプロフィールと統計を返すことを検証
func TestService_Me(t *testing.T) {
	userRepo := &mockUserRepo{
		findByIDFunc: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Email: "alex@example.com"}, nil
		},
	}
	statsRepo := &mockStatsRepo{
		findByUserIDFunc: func(ctx context.Context, userID string) (*model.CallStats, error) {
			return &model.CallStats{UserID: userID, TotalCalls: 3, TotalSeconds: 420}, nil
		},
	}
	service := NewService(userRepo, statsRepo)

	profile, err := service.Me(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Me returned error: %v", err)
	}
	if profile.User.Email != "alex@example.com" {
		t.Errorf("email = %q, want alex@example.com", profile.User.Email)
	}
	if profile.Stats.TotalCalls != 3 {
		t.Errorf("total calls = %d, want 3", profile.Stats.TotalCalls)
	}
}

// 統計未記録のユーザーにゼロ値の統計が返ることを検証
func TestService_Me_NoStats(t *testing.T) {
	service := NewService(&mockUserRepo{}, &mockStatsRepo{})

	profile, err := service.Me(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Me returned error: %v", err)
	}
	if profile.Stats == nil || profile.Stats.TotalCalls != 0 {
		t.Errorf("stats = %+v, want zero-value stats", profile.Stats)
	}
}

// 存在しないユーザーがUSER_NOT_FOUNDになることを検証
func TestService_Me_NotFound(t *testing.T) {
	userRepo := &mockUserRepo{
		findByIDFunc: func(ctx context.Context, id string) (*model.User, error) {
			return nil, nil
		},
	}
	service := NewService(userRepo, &mockStatsRepo{})

	_, err := service.Me(context.Background(), "user-unknown")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUserNotFound {
		t.Fatalf("error = %v, want USER_NOT_FOUND", err)
	}
}

// 対応言語の設定更新が成功することを検証
func TestService_UpdateLanguage(t *testing.T) {
	var updated model.LanguagePreference
	userRepo := &mockUserRepo{
		updateLanguageFunc: func(ctx context.Context, userID string, lang model.LanguagePreference) error {
			updated = lang
			return nil
		},
	}
	service := NewService(userRepo, &mockStatsRepo{})

	if err := service.UpdateLanguage(context.Background(), "user-1", model.LanguageSpanish); err != nil {
		t.Fatalf("UpdateLanguage returned error: %v", err)
	}
	if updated != model.LanguageSpanish {
		t.Errorf("updated = %q, want spanish", updated)
	}
}

// 未対応の言語設定が検証エラーになることを検証
func TestService_UpdateLanguage_Unsupported(t *testing.T) {
	service := NewService(&mockUserRepo{}, &mockStatsRepo{})

	err := service.UpdateLanguage(context.Background(), "user-1", model.LanguagePreference("klingon"))
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidRequest {
		t.Fatalf("error = %v, want INVALID_REQUEST", err)
	}
}
