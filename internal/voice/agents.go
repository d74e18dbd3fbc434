package voice

import (
	"log/slog"

	"github.com/alexlistens/alexlistens/internal/model"
)

// AgentSelector は言語設定からエージェントIDを選択する。
// 未設定・未知の設定、および設定値はあるがエージェントIDが未構成の場合は
// デフォルトエージェントにフォールバックする。
type AgentSelector struct {
	defaultID string
	spanishID string
	aussieID  string
}

// NewAgentSelector はAgentSelectorを生成する。
// defaultIDは必須。spanishID、aussieIDは空でもよい（フォールバック対象になる）。
func NewAgentSelector(defaultID, spanishID, aussieID string) *AgentSelector {
	return &AgentSelector{
		defaultID: defaultID,
		spanishID: spanishID,
		aussieID:  aussieID,
	}
}

// Select は言語設定に対応するエージェントIDを返す。
func (s *AgentSelector) Select(pref model.LanguagePreference) string {
	switch pref {
	case model.LanguageSpanish:
		if s.spanishID != "" {
			return s.spanishID
		}
	case model.LanguageAussie:
		if s.aussieID != "" {
			return s.aussieID
		}
	case model.LanguageDefault:
		return s.defaultID
	default:
		slog.Warn("未知の言語設定のためデフォルトエージェントを使用します",
			slog.String("preference", string(pref)),
		)
	}
	return s.defaultID
}
