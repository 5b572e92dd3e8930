// Package verify は症例アセットのバックグラウンド検証処理を提供する。
// スケジューラとHEADリクエストによる到達性チェックを含む。
package verify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/evalman/internal/model"
	"github.com/hitoshi/evalman/internal/repository"
	"github.com/hitoshi/evalman/internal/security"
)

// AssetCheckRecorder はアセット検証結果のメトリクス記録インターフェース。
type AssetCheckRecorder interface {
	RecordAssetCheck(status string)
}

// nopRecorder はメトリクス未設定時のダミー実装。
type nopRecorder struct{}

func (nopRecorder) RecordAssetCheck(status string) {}

// VerifierConfig はVerifierの設定。
type VerifierConfig struct {
	BaseURL string        // 相対パスの解決に使うベースURL
	Timeout time.Duration // 1リクエストあたりのタイムアウト
	MaxSize int64         // 許容する最大アセットサイズ（バイト）
}

// Verifier は症例アセットの到達性を検証する。
// HTTPクライアントはSSRF防止機能付き（security.AssetGuardService参照）のため、
// DNS再バインディングを含む内部ネットワークへのアクセスはDialerレベルでブロックされる。
type Verifier struct {
	caseRepo repository.CaseRepository
	client   *http.Client
	config   VerifierConfig
	recorder AssetCheckRecorder
	logger   *slog.Logger
}

// NewVerifier はVerifierの新しいインスタンスを生成する。
// recorderはnilでもよい。
func NewVerifier(
	caseRepo repository.CaseRepository,
	guard security.AssetGuardService,
	config VerifierConfig,
	recorder AssetCheckRecorder,
	logger *slog.Logger,
) *Verifier {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Verifier{
		caseRepo: caseRepo,
		client:   guard.NewSafeClient(config.Timeout),
		config:   config,
		recorder: recorder,
		logger:   logger,
	}
}

// Verify は症例の画像・オーバーレイ両アセットの到達性を確認し、
// 検証状態をasset_status（ok / broken）に反映する。
func (v *Verifier) Verify(ctx context.Context, c *model.Case) error {
	status := model.AssetStatusOK
	for _, path := range []string{c.ImagePath, c.OverlayPath} {
		if err := v.checkAsset(ctx, path); err != nil {
			v.logger.Warn("アセット検証に失敗しました",
				slog.String("case_id", c.ID),
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			status = model.AssetStatusBroken
			break
		}
	}

	if err := v.caseRepo.UpdateAssetStatus(ctx, c.ID, status, time.Now()); err != nil {
		return fmt.Errorf("failed to update asset status: %w", err)
	}

	v.recorder.RecordAssetCheck(string(status))
	return nil
}

// checkAsset は単一アセットにHEADリクエストを送り、到達性とサイズを確認する。
func (v *Verifier) checkAsset(ctx context.Context, path string) error {
	url := v.resolveURL(path)

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	if v.config.MaxSize > 0 && resp.ContentLength > v.config.MaxSize {
		return fmt.Errorf("asset too large: %d bytes (max %d)", resp.ContentLength, v.config.MaxSize)
	}

	return nil
}

// resolveURL は相対パスをベースURLに対して解決する。絶対URLはそのまま返す。
func (v *Verifier) resolveURL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimSuffix(v.config.BaseURL, "/") + "/" + strings.TrimPrefix(path, "/")
}
