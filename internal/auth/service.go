// Package auth はOAuth認証フロー、セッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/gymjournal/internal/model"
	"github.com/hitoshi/gymjournal/internal/repository"
)

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	Name           string
	Provider       string // "google", "github" 等
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
// 将来的に複数IdP（Google, GitHub等）に対応するための抽象化。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// Login はサインイン済みのセッションとLifterの組。
type Login struct {
	Session *model.Session
	Lifter  *model.Lifter
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth    OAuthProvider
	lifters  repository.LifterRepository
	sessions repository.SessionRepository
	config   ServiceConfig
	now      func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	oauth OAuthProvider,
	lifters repository.LifterRepository,
	sessions repository.SessionRepository,
	config ServiceConfig,
) *Service {
	return &Service{
		oauth:    oauth,
		lifters:  lifters,
		sessions: sessions,
		config:   config,
		now:      time.Now,
	}
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行する。
// 初めてのIdPアカウントはLifterとidentityを同時に登録する。
// 登録済みの場合はIdPの最新のメールアドレスと表示名でプロフィールを更新する。
func (s *Service) HandleCallback(ctx context.Context, code string) (*Login, error) {
	if code == "" {
		return nil, fmt.Errorf("authorization code is required")
	}

	userInfo, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	lifter, err := s.lifters.FindByIdentity(ctx, userInfo.Provider, userInfo.ProviderUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find lifter: %w", err)
	}

	now := s.now()
	if lifter == nil {
		lifter, err = s.register(ctx, userInfo, now)
		if err != nil {
			return nil, err
		}
	} else {
		if err := s.lifters.RecordSignIn(ctx, lifter.ID, userInfo.Email, userInfo.Name, now); err != nil {
			return nil, fmt.Errorf("failed to record sign-in: %w", err)
		}
		lifter.Email = userInfo.Email
		lifter.DisplayName = userInfo.Name
		lifter.LastSignInAt = now
		slog.Info("lifter signed in",
			slog.String("user_id", lifter.ID),
			slog.String("provider", userInfo.Provider),
		)
	}

	session, err := s.createSession(ctx, lifter.ID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &Login{Session: session, Lifter: lifter}, nil
}

// register は初めてサインインしたIdPアカウントのLifterを作成する。
func (s *Service) register(ctx context.Context, userInfo *OAuthUserInfo, now time.Time) (*model.Lifter, error) {
	lifter := &model.Lifter{
		ID:           uuid.New().String(),
		Email:        userInfo.Email,
		DisplayName:  userInfo.Name,
		CreatedAt:    now,
		LastSignInAt: now,
	}
	identity := &model.Identity{
		ID:        uuid.New().String(),
		LifterID:  lifter.ID,
		Provider:  userInfo.Provider,
		Subject:   userInfo.ProviderUserID,
		CreatedAt: now,
	}

	if err := s.lifters.Register(ctx, lifter, identity); err != nil {
		return nil, fmt.Errorf("failed to register lifter: %w", err)
	}

	slog.Info("lifter registered",
		slog.String("user_id", lifter.ID),
		slog.String("provider", userInfo.Provider),
	)
	return lifter, nil
}

// Logout はセッションを破棄する。既に存在しないセッションはエラーにしない。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	revoked, err := s.sessions.Revoke(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}

	slog.Info("lifter signed out", slog.Bool("revoked", revoked))
	return nil
}

// Restore はセッションIDから有効なログインを復元する。
// セッションが期限切れ・削除済み、またはLifterが存在しない場合はnilを返す。
func (s *Service) Restore(ctx context.Context, sessionID string) (*Login, error) {
	if sessionID == "" {
		return nil, nil
	}

	session, lifter, err := s.sessions.FindActive(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil || lifter == nil {
		return nil, nil
	}

	return &Login{Session: session, Lifter: lifter}, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, lifterID string, now time.Time) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	session := &model.Session{
		ID:        sessionID,
		LifterID:  lifterID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
