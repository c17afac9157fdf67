// Package mapping は発注残マッピング画面向けの HTTP ハンドラを提供します。
package mapping

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ejrbom/mappers"
	"ejrbom/matching"
	"ejrbom/model"
	"ejrbom/reconcile"
	"ejrbom/sources"
	"ejrbom/store"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

var validate = validator.New()

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Error("failed to encode JSON response")
	}
}

func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"message": message})
}

// statusFor はエラーの種類を HTTP ステータスに対応付けます。
func statusFor(err error) int {
	switch {
	case errors.Is(err, sources.ErrBeforeCutoff),
		errors.Is(err, sources.ErrInvalidRange),
		errors.Is(err, model.ErrInvalidKey),
		errors.Is(err, reconcile.ErrManualRow):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrResultNotFound),
		errors.Is(err, store.ErrOverrideNotFound),
		errors.Is(err, reconcile.ErrUnknownRow):
		return http.StatusNotFound
	case errors.Is(err, sources.ErrSourceUnavailable):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeServiceError(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	entry := logrus.WithError(err).WithField("status", status)
	if status >= http.StatusInternalServerError {
		entry.Error(message)
	} else {
		entry.Warn(message)
	}
	writeJSONError(w, message+": "+err.Error(), status)
}

// ResultsResponse は統合表示グリッドのデータです。
type ResultsResponse struct {
	Rows           []mappers.MappingRowView `json:"rows"`
	AllSelected    bool                     `json:"allSelected"`
	PendingChanges int                      `json:"pendingChanges"`
	Statistics     model.Statistics         `json:"statistics"`
}

func resultsResponse(sess *reconcile.Session) ResultsResponse {
	rows := sess.Rows()
	return ResultsResponse{
		Rows:           mappers.ConvertToView(rows),
		AllSelected:    sess.AllSelected(),
		PendingChanges: len(sess.Changes()),
		Statistics:     matching.Statistics(rows),
	}
}

// GetResultsHandler は編集中の確定チェックを反映した結果スナップショットを返します。
func GetResultsHandler(svc *reconcile.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := svc.Session()
		if err != nil {
			writeServiceError(w, "マッピング結果の取得に失敗しました", err)
			return
		}
		writeJSON(w, resultsResponse(sess))
	}
}

type runRequest struct {
	From          string `json:"from" validate:"required"`
	To            string `json:"to" validate:"required"`
	ConditionName string `json:"conditionName"`
}

// RunHandler は納期範囲を指定して自動マッピングを実行します。
func RunHandler(svc *reconcile.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload runRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeJSONError(w, "リクエストが不正です。", http.StatusBadRequest)
			return
		}
		if err := validate.Struct(payload); err != nil {
			writeJSONError(w, "納期開始日と納期終了日を指定してください。", http.StatusBadRequest)
			return
		}

		dr, err := sources.ParseDateRange(payload.From, payload.To)
		if err != nil {
			writeServiceError(w, "納期範囲が不正です", err)
			return
		}

		res, err := svc.Run(r.Context(), dr, payload.ConditionName)
		if err != nil {
			writeServiceError(w, "自動マッピングに失敗しました", err)
			return
		}

		writeJSON(w, map[string]interface{}{
			"message": fmt.Sprintf("自動マッピングが完了しました。（%d件）", res.Statistics.TotalCount),
			"result":  res,
		})
	}
}

type fixedRequest struct {
	EJOrderNo     string `json:"ejOrderNo" validate:"required_without=RBOMOrderLine"`
	RBOMOrderLine string `json:"rbomOrderLine" validate:"required_without=EJOrderNo"`
	Fixed         *bool  `json:"fixed" validate:"required"`
	Persist       bool   `json:"persist"`
}

// SetFixedHandler は 1 行の確定チェックを変更します。
// persist が true の場合は即時に保存し、それ以外は編集中の状態として保持します。
func SetFixedHandler(svc *reconcile.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload fixedRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeJSONError(w, "リクエストが不正です。", http.StatusBadRequest)
			return
		}
		if err := validate.Struct(payload); err != nil {
			writeJSONError(w, "EJ発注番号またはrBOM発注番号+行番号と、確定状態を指定してください。", http.StatusBadRequest)
			return
		}

		sess, err := svc.Session()
		if err != nil {
			writeServiceError(w, "マッピング結果の取得に失敗しました", err)
			return
		}
		row, ok := mappers.FindByDisplayKey(sess.Rows(), strings.TrimSpace(payload.EJOrderNo), payload.RBOMOrderLine)
		if !ok {
			writeJSONError(w, "指定された行が見つかりません。", http.StatusNotFound)
			return
		}

		if payload.Persist {
			res, err := svc.SetFixed(row.Key(), *payload.Fixed)
			if err != nil {
				writeServiceError(w, "マッピング確定情報の更新に失敗しました", err)
				return
			}
			writeJSON(w, map[string]interface{}{"message": fixedMessage(res), "result": res})
			return
		}

		if err := sess.SetFixed(row.Key(), *payload.Fixed); err != nil {
			writeServiceError(w, "確定状態を変更できません", err)
			return
		}
		writeJSON(w, resultsResponse(sess))
	}
}

// SelectAllHandler は手動以外の行の確定チェックを一括で付け外しします。
func SelectAllHandler(svc *reconcile.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Select bool `json:"select"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeJSONError(w, "リクエストが不正です。", http.StatusBadRequest)
			return
		}

		sess, err := svc.Session()
		if err != nil {
			writeServiceError(w, "マッピング結果の取得に失敗しました", err)
			return
		}
		if payload.Select {
			sess.SelectAll()
		} else {
			sess.DeselectAll()
		}
		writeJSON(w, resultsResponse(sess))
	}
}

// CommitFixedHandler は編集中の確定チェックをまとめて保存します。
func CommitFixedHandler(svc *reconcile.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := svc.Session()
		if err != nil {
			writeServiceError(w, "マッピング結果の取得に失敗しました", err)
			return
		}

		res, err := svc.CommitFixedEdits(sess)
		if err != nil {
			writeServiceError(w, "マッピング確定情報の更新に失敗しました", err)
			return
		}
		writeJSON(w, map[string]interface{}{"message": fixedMessage(res), "result": res})
	}
}

func fixedMessage(res model.BulkFixedResult) string {
	if res.Pinned == 0 && res.Unpinned == 0 {
		return "マッピング確定状態の変更はありませんでした。"
	}
	var parts []string
	if res.Pinned > 0 {
		parts = append(parts, fmt.Sprintf("登録: %d件", res.Pinned))
	}
	if res.Unpinned > 0 {
		parts = append(parts, fmt.Sprintf("削除: %d件", res.Unpinned))
	}
	return "マッピング確定情報を更新しました（" + strings.Join(parts, "、") + "）"
}

// GetStatsHandler は保存済み結果の集計を返します。
func GetStatsHandler(svc *reconcile.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := svc.Stats()
		if err != nil {
			writeServiceError(w, "統計情報の取得に失敗しました", err)
			return
		}
		writeJSON(w, stats)
	}
}

// GetNearMissHandler は品目コードが一致し数量だけが異なる組み合わせを返します。
func GetNearMissHandler(svc *reconcile.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dr, err := sources.ParseDateRange(r.URL.Query().Get("from"), r.URL.Query().Get("to"))
		if err != nil {
			writeServiceError(w, "納期範囲が不正です", err)
			return
		}
		misses, err := svc.NearMisses(r.Context(), dr)
		if err != nil {
			writeServiceError(w, "潜在的マッチング候補の取得に失敗しました", err)
			return
		}
		writeJSON(w, misses)
	}
}

// GetManualMappingsHandler は手動マッピング一覧を返します。
func GetManualMappingsHandler(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := st.GetManualOverrides()
		if err != nil {
			writeServiceError(w, "手動マッピングの取得に失敗しました", err)
			return
		}
		writeJSON(w, mappers.ConvertToView(rows))
	}
}

// SaveManualMappingHandler は手動マッピングを登録します。次回の自動マッピングから反映されます。
func SaveManualMappingHandler(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var row model.MappingRow
		if err := json.NewDecoder(r.Body).Decode(&row); err != nil {
			writeJSONError(w, "リクエストが不正です。", http.StatusBadRequest)
			return
		}
		if err := st.SaveManualOverride(row); err != nil {
			writeServiceError(w, "手動マッピングの登録に失敗しました", err)
			return
		}
		writeJSON(w, map[string]string{"message": "手動マッピングを登録しました。"})
	}
}

// DeleteManualMappingHandler は手動マッピングを削除します。
func DeleteManualMappingHandler(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var key model.MappingKey
		if err := json.NewDecoder(r.Body).Decode(&key); err != nil {
			writeJSONError(w, "リクエストが不正です。", http.StatusBadRequest)
			return
		}
		if err := st.DeleteManualOverride(key); err != nil {
			writeServiceError(w, "手動マッピングの削除に失敗しました", err)
			return
		}
		writeJSON(w, map[string]string{"message": "手動マッピングを削除しました。"})
	}
}

// GetExtractionConditionsHandler は抽出条件の履歴を新しい順に返します。
func GetExtractionConditionsHandler(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		conds, err := st.GetExtractionConditions(limit)
		if err != nil {
			writeServiceError(w, "抽出条件の取得に失敗しました", err)
			return
		}
		writeJSON(w, conds)
	}
}

// TestConnectionsHandler は EJ・rBOM への接続テスト結果を返します。
func TestConnectionsHandler(svc *reconcile.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := svc.TestConnections(r.Context())
		label := func(err error) string {
			if err != nil {
				return "NG: " + err.Error()
			}
			return "OK"
		}
		writeJSON(w, map[string]string{
			"ej":        label(status.EJ),
			"rbom":      label(status.RBOM),
			"checkedAt": time.Now().Format(time.RFC3339),
		})
	}
}
