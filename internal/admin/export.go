package admin

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// exportHeader はCSVエクスポートの列定義。
var exportHeader = []string{
	"evaluation_id",
	"user_id",
	"user_email",
	"user_name",
	"case_id",
	"q1_acceptability",
	"q2_confidence",
	"comments",
	"duration_ms",
	"submitted_at",
}

// ExportCSV は全評価をCSV形式でwに書き出す。
// case_id列はメタデータにfilenameがあれば拡張子を除いた値を使う。
func (s *Service) ExportCSV(ctx context.Context, w io.Writer) error {
	rows, err := s.evalRepo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to list evaluations: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	for _, row := range rows {
		record := []string{
			row.ID,
			row.UserID,
			row.UserEmail,
			row.UserName,
			caseLabel(row.CaseID, row.CaseMetadata),
			strconv.Itoa(row.Q1Acceptability),
			strconv.Itoa(row.Q2Confidence),
			row.Comments,
			strconv.FormatInt(row.DurationMs, 10),
			row.SubmittedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write csv record: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return nil
}

// caseLabel はエクスポート用の症例識別子を返す。
// メタデータのfilenameを優先し、なければ症例IDをそのまま使う。
func caseLabel(caseID string, metadata map[string]any) string {
	if metadata != nil {
		if name, ok := metadata["filename"].(string); ok && name != "" {
			return strings.TrimSuffix(name, filepath.Ext(name))
		}
	}
	return caseID
}
