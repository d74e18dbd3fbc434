package wallet

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/alexlistens/alexlistens/internal/model"
)

// mockWalletRepo はテスト用のWalletRepository実装
type mockWalletRepo struct {
	findByUserIDFunc  func(ctx context.Context, userID string) (*model.Wallet, error)
	grantFunc         func(ctx context.Context, userID string, seconds int64) error
	deductForCallFunc func(ctx context.Context, userID, callID string, seconds int64) (int64, error)
}

func (m *mockWalletRepo) FindByUserID(ctx context.Context, userID string) (*model.Wallet, error) {
	return m.findByUserIDFunc(ctx, userID)
}

func (m *mockWalletRepo) Grant(ctx context.Context, userID string, seconds int64) error {
	return m.grantFunc(ctx, userID, seconds)
}

func (m *mockWalletRepo) DeductForCall(ctx context.Context, userID, callID string, seconds int64) (int64, error) {
	return m.deductForCallFunc(ctx, userID, callID, seconds)
}

// 最低残高を満たすユーザーが通話を開始できることを検証
func TestService_EnsureCanStartCall_SufficientBalance(t *testing.T) {
	repo := &mockWalletRepo{
		findByUserIDFunc: func(ctx context.Context, userID string) (*model.Wallet, error) {
			return &model.Wallet{UserID: userID, BalanceSeconds: 120}, nil
		},
	}
	service := NewService(repo, slog.Default(), 60)

	if err := service.EnsureCanStartCall(context.Background(), "user-1"); err != nil {
		t.Fatalf("EnsureCanStartCall returned error: %v", err)
	}
}

// 最低残高未満のユーザーが残高不足エラーで拒否されることを検証
func TestService_EnsureCanStartCall_InsufficientBalance(t *testing.T) {
	repo := &mockWalletRepo{
		findByUserIDFunc: func(ctx context.Context, userID string) (*model.Wallet, error) {
			return &model.Wallet{UserID: userID, BalanceSeconds: 30}, nil
		},
	}
	service := NewService(repo, slog.Default(), 60)

	err := service.EnsureCanStartCall(context.Background(), "user-1")
	if err == nil {
		t.Fatal("expected insufficient balance error")
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInsufficientBalance {
		t.Errorf("error = %v, want INSUFFICIENT_BALANCE", err)
	}
}

// ウォレットが存在しない場合にユーザー未検出エラーになることを検証
func TestService_Get_NotFound(t *testing.T) {
	repo := &mockWalletRepo{
		findByUserIDFunc: func(ctx context.Context, userID string) (*model.Wallet, error) {
			return nil, nil
		},
	}
	service := NewService(repo, slog.Default(), 60)

	_, err := service.Get(context.Background(), "user-unknown")
	if err == nil {
		t.Fatal("expected error for missing wallet")
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUserNotFound {
		t.Errorf("error = %v, want USER_NOT_FOUND", err)
	}
}

// 正の秒数の付与がリポジトリに委譲されることを検証
func TestService_Grant(t *testing.T) {
	var grantedSeconds int64
	repo := &mockWalletRepo{
		grantFunc: func(ctx context.Context, userID string, seconds int64) error {
			grantedSeconds = seconds
			return nil
		},
	}
	service := NewService(repo, slog.Default(), 60)

	if err := service.Grant(context.Background(), "user-1", 300); err != nil {
		t.Fatalf("Grant returned error: %v", err)
	}
	if grantedSeconds != 300 {
		t.Errorf("granted = %d, want 300", grantedSeconds)
	}
}

// 0以下の秒数の付与が検証エラーになることを検証
func TestService_Grant_NonPositive(t *testing.T) {
	service := NewService(&mockWalletRepo{}, slog.Default(), 60)

	for _, seconds := range []int64{0, -10} {
		if err := service.Grant(context.Background(), "user-1", seconds); err == nil {
			t.Errorf("Grant(%d) should return error", seconds)
		}
	}
}

// 経過時間が秒単位に切り上げられて課金されることを検証
func TestService_ChargeForCall_RoundsUp(t *testing.T) {
	var chargedSeconds int64
	repo := &mockWalletRepo{
		deductForCallFunc: func(ctx context.Context, userID, callID string, seconds int64) (int64, error) {
			chargedSeconds = seconds
			return seconds, nil
		},
	}
	service := NewService(repo, slog.Default(), 60)

	cases := []struct {
		elapsed time.Duration
		want    int64
	}{
		{61*time.Second + 200*time.Millisecond, 62},
		{60 * time.Second, 60},
		{500 * time.Millisecond, 1},
		{-3 * time.Second, 0},
	}

	for _, c := range cases {
		deducted, err := service.ChargeForCall(context.Background(), "user-1", "call-1", c.elapsed)
		if err != nil {
			t.Fatalf("ChargeForCall(%v) returned error: %v", c.elapsed, err)
		}
		if chargedSeconds != c.want {
			t.Errorf("ChargeForCall(%v) charged %d, want %d", c.elapsed, chargedSeconds, c.want)
		}
		if deducted != c.want {
			t.Errorf("ChargeForCall(%v) deducted %d, want %d", c.elapsed, deducted, c.want)
		}
	}
}

// 課金失敗がエラーとして返ることを検証
func TestService_ChargeForCall_RepoFailure(t *testing.T) {
	repo := &mockWalletRepo{
		deductForCallFunc: func(ctx context.Context, userID, callID string, seconds int64) (int64, error) {
			return 0, errors.New("db down")
		},
	}
	service := NewService(repo, slog.Default(), 60)

	if _, err := service.ChargeForCall(context.Background(), "user-1", "call-1", time.Minute); err == nil {
		t.Fatal("expected error when repository fails")
	}
}
