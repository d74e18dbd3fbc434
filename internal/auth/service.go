package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/alexlistens/alexlistens/internal/model"
	"github.com/alexlistens/alexlistens/internal/repository"
)

// ServiceConfig はアカウントサービスの設定。
type ServiceConfig struct {
	SessionMaxAge       int   // セッション有効期間（秒）
	InitialGrantSeconds int64 // 新規ユーザーのウォレット初期残高（秒）
}

// Service はアカウント管理のビジネスロジックを提供する。
// 管理者によるユーザー作成と、それに伴うセッション発行を担当する。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	config      ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	config ServiceConfig,
) *Service {
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		config:      config,
	}
}

// CreateUser は管理者操作としてユーザーを作成する。
// IdP側ユーザーIDをそのままアプリ側IDとして使用し、
// ウォレットを初期残高付きで同時に作成、失効可能なセッションを発行する。
// 同一メールアドレスのユーザーが存在する場合はエラーを返す。
func (s *Service) CreateUser(ctx context.Context, idpUserID, email, name, username string) (*model.User, *model.Session, error) {
	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, nil, fmt.Errorf("ユーザーの検索に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, nil, model.NewUserAlreadyExistsError(email)
	}

	now := time.Now()
	user := &model.User{
		ID:        idpUserID,
		Email:     email,
		Name:      name,
		Username:  username,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.userRepo.CreateWithWallet(ctx, user, s.config.InitialGrantSeconds); err != nil {
		return nil, nil, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}

	session, err := s.issueSession(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}

	slog.Info("ユーザーを作成しました",
		slog.String("user_id", user.ID),
		slog.Int64("initial_grant_seconds", s.config.InitialGrantSeconds),
	)

	return user, session, nil
}

// RevokeSessions は指定ユーザーの全セッションを失効させる。
func (s *Service) RevokeSessions(ctx context.Context, userID string) error {
	if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("セッションの削除に失敗しました: %w", err)
	}
	return nil
}

// issueSession は新しいセッションを発行する。
func (s *Service) issueSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("セッションIDの生成に失敗しました: %w", err)
	}

	now := time.Now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("セッションの作成に失敗しました: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号論的乱数からセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
