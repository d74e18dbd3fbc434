// Package call は通話ライフサイクルのオーケストレーションを提供する。
// 残高確認、過去文脈の想起、プロバイダーセッションの作成、
// トランスクリプトの中継・永続化、終了時の課金確定までを担う。
package call

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/alexlistens/alexlistens/internal/metrics"
	"github.com/alexlistens/alexlistens/internal/model"
	"github.com/alexlistens/alexlistens/internal/repository"
	"github.com/alexlistens/alexlistens/internal/stream"
	"github.com/alexlistens/alexlistens/internal/voice"
)

// WalletCharger はウォレットの残高確認と課金のインターフェース。
type WalletCharger interface {
	EnsureCanStartCall(ctx context.Context, userID string) error
	ChargeForCall(ctx context.Context, userID, callID string, elapsed time.Duration) (int64, error)
}

// MemoryRecorder は意味記憶の記録と文脈構築のインターフェース。
type MemoryRecorder interface {
	RememberAsync(userID, callID string, kind model.MemoryKind, text string, onFailure func())
	BuildContext(ctx context.Context, userID, query string) (string, error)
}

// AgentPicker は言語設定からエージェントIDを選択するインターフェース。
type AgentPicker interface {
	Select(pref model.LanguagePreference) string
}

// EventPublisher は通話イベントを購読者へ配信するインターフェース。
type EventPublisher interface {
	Publish(event stream.Event)
}

// contextTranscriptLimit は文脈構築に使う直前通話の発話数の上限。
const contextTranscriptLimit = 10

// Service は通話のドメインロジックを提供する。
type Service struct {
	callRepo       repository.CallRepository
	transcriptRepo repository.TranscriptRepository
	userRepo       repository.UserRepository
	statsRepo      repository.CallStatsRepository
	wallet         WalletCharger
	memory         MemoryRecorder
	provider       voice.Provider
	agents         AgentPicker
	hub            EventPublisher
	collector      metrics.MetricsCollector
	logger         *slog.Logger
	sanitizer      *bluemonday.Policy
	connectTimeout time.Duration
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	callRepo repository.CallRepository,
	transcriptRepo repository.TranscriptRepository,
	userRepo repository.UserRepository,
	statsRepo repository.CallStatsRepository,
	wallet WalletCharger,
	memory MemoryRecorder,
	provider voice.Provider,
	agents AgentPicker,
	hub EventPublisher,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	connectTimeout time.Duration,
) *Service {
	return &Service{
		callRepo:       callRepo,
		transcriptRepo: transcriptRepo,
		userRepo:       userRepo,
		statsRepo:      statsRepo,
		wallet:         wallet,
		memory:         memory,
		provider:       provider,
		agents:         agents,
		hub:            hub,
		collector:      collector,
		logger:         logger,
		sanitizer:      bluemonday.StrictPolicy(),
		connectTimeout: connectTimeout,
	}
}

// Start は新しい通話を開始する。
// 残高確認、過去文脈の想起、エージェント選択、プロバイダーセッションの
// 作成、通話レコードの永続化を順に行う。
// 文脈の想起に失敗しても通話は文脈なしで続行する。
func (s *Service) Start(ctx context.Context, userID string) (*model.Call, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	if err := s.wallet.EnsureCanStartCall(ctx, userID); err != nil {
		return nil, err
	}

	systemPrompt := s.buildSystemPrompt(ctx, userID)
	agentID := s.agents.Select(user.Language)

	createCtx, cancel := context.WithTimeout(ctx, s.connectTimeout)
	defer cancel()

	session, err := s.provider.CreateCall(createCtx, voice.CreateCallParams{
		AgentID:      agentID,
		UserID:       userID,
		SystemPrompt: systemPrompt,
	})
	if err != nil {
		s.logger.Error("プロバイダーの通話セッション作成に失敗しました",
			slog.String("error", err.Error()),
			slog.String("user_id", userID),
			slog.String("agent_id", agentID),
		)
		return nil, model.NewUpstreamFailedError("voice")
	}

	now := time.Now()
	call := &model.Call{
		ID:             uuid.New().String(),
		UserID:         userID,
		ProviderCallID: session.ProviderCallID,
		AgentID:        agentID,
		JoinURL:        session.JoinURL,
		Status:         model.CallStatusStarting,
		StartedAt:      now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.callRepo.Create(ctx, call); err != nil {
		// 永続化できない通話はプロバイダー側も閉じておく
		if endErr := s.provider.EndCall(ctx, session.ProviderCallID); endErr != nil {
			s.logger.Warn("孤立したプロバイダーセッションの終了に失敗しました",
				slog.String("error", endErr.Error()),
				slog.String("provider_call_id", session.ProviderCallID),
			)
		}
		return nil, fmt.Errorf("通話の保存に失敗しました: %w", err)
	}

	s.collector.RecordCallStarted()
	s.logger.Info("通話を開始しました",
		slog.String("call_id", call.ID),
		slog.String("user_id", userID),
		slog.String("agent_id", agentID),
		slog.Bool("with_context", systemPrompt != ""),
	)
	return call, nil
}

// buildSystemPrompt は直前の通話と意味記憶から
// エージェントへ渡すシステムプロンプトを構築する。
// いずれかの段階で失敗した場合は空文字列を返し、通話は文脈なしで続行する。
func (s *Service) buildSystemPrompt(ctx context.Context, userID string) string {
	query := s.recentConversationText(ctx, userID)
	if query == "" {
		return ""
	}

	memoryContext, err := s.memory.BuildContext(ctx, userID, query)
	if err != nil {
		s.logger.Warn("過去文脈の想起に失敗したため文脈なしで続行します",
			slog.String("error", err.Error()),
			slog.String("user_id", userID),
		)
		s.collector.RecordMemoryFailure()
		return ""
	}
	return memoryContext
}

// recentConversationText は直前の通話の末尾発話を連結して返す。
func (s *Service) recentConversationText(ctx context.Context, userID string) string {
	calls, err := s.callRepo.ListByUserID(ctx, userID, 1)
	if err != nil || len(calls) == 0 {
		return ""
	}

	transcripts, err := s.transcriptRepo.ListByCallID(ctx, calls[0].ID)
	if err != nil || len(transcripts) == 0 {
		return ""
	}

	if len(transcripts) > contextTranscriptLimit {
		transcripts = transcripts[len(transcripts)-contextTranscriptLimit:]
	}
	var b strings.Builder
	for _, tr := range transcripts {
		b.WriteString(string(tr.Role))
		b.WriteString(": ")
		b.WriteString(tr.Text)
		b.WriteString("\n")
	}
	return b.String()
}

// Get は指定ユーザーの通話を取得する。
// 他ユーザーの通話は存在を漏らさないためCALL_NOT_FOUNDを返す。
func (s *Service) Get(ctx context.Context, userID, callID string) (*model.Call, error) {
	call, err := s.callRepo.FindByID(ctx, callID)
	if err != nil {
		return nil, fmt.Errorf("通話の取得に失敗しました: %w", err)
	}
	if call == nil || call.UserID != userID {
		return nil, model.NewCallNotFoundError(callID)
	}
	return call, nil
}

// List はユーザーの通話履歴を新しい順に返す。
func (s *Service) List(ctx context.Context, userID string, limit int) ([]*model.Call, error) {
	calls, err := s.callRepo.ListByUserID(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("通話履歴の取得に失敗しました: %w", err)
	}
	return calls, nil
}

// Transcripts は指定通話のトランスクリプトを時系列順に返す。
func (s *Service) Transcripts(ctx context.Context, userID, callID string) ([]*model.Transcript, error) {
	if _, err := s.Get(ctx, userID, callID); err != nil {
		return nil, err
	}
	transcripts, err := s.transcriptRepo.ListByCallID(ctx, callID)
	if err != nil {
		return nil, fmt.Errorf("トランスクリプトの取得に失敗しました: %w", err)
	}
	return transcripts, nil
}

// AppendTranscript はWebhookで受信した発話を記録する。
// テキストはHTMLを除去してから保存し、購読者に配信する。
// 確定発話は意味記憶にも非同期で記録する。
func (s *Service) AppendTranscript(ctx context.Context, providerCallID string, role model.TranscriptRole, text string, final bool) error {
	call, err := s.callRepo.FindByProviderCallID(ctx, providerCallID)
	if err != nil {
		return fmt.Errorf("通話の取得に失敗しました: %w", err)
	}
	if call == nil {
		return model.NewCallNotFoundError(providerCallID)
	}
	return s.appendTranscript(ctx, call, role, text, final)
}

// AppendOwnTranscript は通話の所有者がクライアント側SDKのイベントから
// 発話を記録するための入口。終了済みの通話には追記できない。
func (s *Service) AppendOwnTranscript(ctx context.Context, userID, callID string, role model.TranscriptRole, text string, final bool) error {
	call, err := s.Get(ctx, userID, callID)
	if err != nil {
		return err
	}
	if call.Status.IsTerminal() {
		return model.NewCallAlreadyEndedError(callID)
	}
	return s.appendTranscript(ctx, call, role, text, final)
}

func (s *Service) appendTranscript(ctx context.Context, call *model.Call, role model.TranscriptRole, text string, final bool) error {
	sanitized := strings.TrimSpace(s.sanitizer.Sanitize(text))
	if sanitized == "" {
		return nil
	}

	now := time.Now()
	tr := &model.Transcript{
		ID:        uuid.New().String(),
		CallID:    call.ID,
		UserID:    call.UserID,
		Role:      role,
		Text:      sanitized,
		Final:     final,
		CreatedAt: now,
	}
	if err := s.transcriptRepo.Create(ctx, tr); err != nil {
		return fmt.Errorf("トランスクリプトの保存に失敗しました: %w", err)
	}

	s.hub.Publish(stream.Event{
		Type:      stream.EventTypeTranscript,
		CallID:    call.ID,
		Role:      string(role),
		Text:      sanitized,
		Timestamp: now,
	})

	if final {
		s.memory.RememberAsync(call.UserID, call.ID, model.MemoryKindUtterance, sanitized, s.collector.RecordMemoryFailure)
	}
	return nil
}

// HandleStatus はWebhookで受信したステータス変化を中継する。
// 巻き戻り方向の遷移は無視する。終了ステータスは確定処理に委譲する。
func (s *Service) HandleStatus(ctx context.Context, providerCallID string, status model.CallStatus, providerDurationSec int64) error {
	call, err := s.callRepo.FindByProviderCallID(ctx, providerCallID)
	if err != nil {
		return fmt.Errorf("通話の取得に失敗しました: %w", err)
	}
	if call == nil {
		return model.NewCallNotFoundError(providerCallID)
	}

	if !call.Status.CanTransitionTo(status) {
		s.logger.Warn("巻き戻り方向のステータス遷移を無視します",
			slog.String("call_id", call.ID),
			slog.String("from", string(call.Status)),
			slog.String("to", string(status)),
		)
		return nil
	}

	if status.IsTerminal() {
		elapsed := time.Since(call.StartedAt)
		if providerDurationSec > 0 {
			elapsed = time.Duration(providerDurationSec) * time.Second
		}
		return s.finalize(ctx, call, status, time.Now(), elapsed)
	}

	if call.Status == status {
		return nil
	}
	if err := s.callRepo.UpdateStatus(ctx, call.ID, status); err != nil {
		return fmt.Errorf("ステータスの更新に失敗しました: %w", err)
	}

	s.hub.Publish(stream.Event{
		Type:      stream.EventTypeStatus,
		CallID:    call.ID,
		Status:    string(status),
		Timestamp: time.Now(),
	})
	return nil
}

// End はユーザーの要求により通話を終了する。
// プロバイダー側のセッション終了に失敗しても課金の確定は進める。
func (s *Service) End(ctx context.Context, userID, callID string) (*model.Call, error) {
	call, err := s.Get(ctx, userID, callID)
	if err != nil {
		return nil, err
	}
	if call.Status.IsTerminal() {
		return nil, model.NewCallAlreadyEndedError(callID)
	}

	if err := s.provider.EndCall(ctx, call.ProviderCallID); err != nil {
		s.logger.Warn("プロバイダーセッションの終了に失敗しましたが、確定処理を続行します",
			slog.String("error", err.Error()),
			slog.String("call_id", call.ID),
		)
	}

	if err := s.finalize(ctx, call, model.CallStatusEnded, time.Now(), time.Since(call.StartedAt)); err != nil {
		return nil, err
	}
	return s.callRepo.FindByID(ctx, call.ID)
}

// ReapStaleCalls は放置された通話を失敗として確定する。
// プロバイダーが通話時間を報告していればそれを課金に使う。
// 戻り値は確定した通話数。
func (s *Service) ReapStaleCalls(ctx context.Context, startedBefore time.Time, limit int) (int, error) {
	calls, err := s.callRepo.ListStaleActive(ctx, startedBefore, limit)
	if err != nil {
		return 0, fmt.Errorf("放置通話の取得に失敗しました: %w", err)
	}

	reaped := 0
	for _, call := range calls {
		status := model.CallStatusFailed
		elapsed := time.Since(call.StartedAt)

		if session, err := s.provider.GetCall(ctx, call.ProviderCallID); err == nil {
			if session.DurationSec > 0 {
				elapsed = time.Duration(session.DurationSec) * time.Second
			}
			if session.Status == string(model.CallStatusEnded) {
				status = model.CallStatusEnded
			}
		}

		if err := s.finalize(ctx, call, status, time.Now(), elapsed); err != nil {
			s.logger.Error("放置通話の確定に失敗しました",
				slog.String("error", err.Error()),
				slog.String("call_id", call.ID),
			)
			continue
		}
		reaped++
	}

	if reaped > 0 {
		s.collector.RecordCallsReaped(reaped)
	}
	return reaped, nil
}

// finalize は通話を終了状態にし、課金と統計を確定する。
// 確定は最初の1回だけ行われ、2回目以降は何もしない。
// 課金は通話IDをキーに冪等なため、確定と課金の間でクラッシュしても
// 再実行で二重控除にはならない。
func (s *Service) finalize(ctx context.Context, call *model.Call, status model.CallStatus, endedAt time.Time, elapsed time.Duration) error {
	deducted, err := s.wallet.ChargeForCall(ctx, call.UserID, call.ID, elapsed)
	if err != nil {
		return err
	}

	updated, err := s.callRepo.Finalize(ctx, call.ID, status, endedAt, deducted)
	if err != nil {
		return fmt.Errorf("通話の確定に失敗しました: %w", err)
	}
	if !updated {
		// 別経路（Webhookとユーザー操作の競合など）で確定済み
		return nil
	}

	if err := s.statsRepo.RecordCall(ctx, call.UserID, deducted, endedAt); err != nil {
		s.logger.Warn("通話統計の更新に失敗しました",
			slog.String("error", err.Error()),
			slog.String("call_id", call.ID),
		)
	}

	s.hub.Publish(stream.Event{
		Type:      stream.EventTypeStatus,
		CallID:    call.ID,
		Status:    string(status),
		Timestamp: endedAt,
	})

	s.recordFullTranscript(ctx, call)

	s.collector.RecordCallEnded(string(status))
	s.collector.RecordBilledSeconds(deducted)
	s.logger.Info("通話を確定しました",
		slog.String("call_id", call.ID),
		slog.String("user_id", call.UserID),
		slog.String("status", string(status)),
		slog.Int64("billed_seconds", deducted),
	)
	return nil
}

// recordFullTranscript は通話全文を1つの記憶として非同期で保存する。
func (s *Service) recordFullTranscript(ctx context.Context, call *model.Call) {
	transcripts, err := s.transcriptRepo.ListByCallID(ctx, call.ID)
	if err != nil {
		s.logger.Warn("通話全文の取得に失敗しました",
			slog.String("error", err.Error()),
			slog.String("call_id", call.ID),
		)
		s.collector.RecordMemoryFailure()
		return
	}
	if len(transcripts) == 0 {
		return
	}

	var b strings.Builder
	for _, tr := range transcripts {
		if !tr.Final {
			continue
		}
		b.WriteString(string(tr.Role))
		b.WriteString(": ")
		b.WriteString(tr.Text)
		b.WriteString("\n")
	}
	if b.Len() == 0 {
		return
	}

	s.memory.RememberAsync(call.UserID, call.ID, model.MemoryKindTranscript, b.String(), s.collector.RecordMemoryFailure)
}
