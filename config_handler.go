package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"

	"ejrbom/config"

	"github.com/sirupsen/logrus"
)

// ヘルパー関数: エラーをJSONで返す
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"message": message})
}

// GetConfigHandler は現在の設定を返します。API キーは伏せ字にします。
func GetConfigHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg := config.GetConfig()
		if cfg.RBOM.APIKey != "" {
			cfg.RBOM.APIKey = "********"
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(cfg)
	}
}

// SaveConfigHandler は設定を保存します。反映には再起動が必要です。
func SaveConfigHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var newCfg config.Config
		if err := json.NewDecoder(r.Body).Decode(&newCfg); err != nil {
			writeJSONError(w, "リクエストが不正です。", http.StatusBadRequest)
			return
		}

		// 伏せ字のまま戻ってきた場合は現在の値を維持する
		if newCfg.RBOM.APIKey == "********" {
			newCfg.RBOM.APIKey = config.GetConfig().RBOM.APIKey
		}

		if newCfg.EJ.Mode == "csv" {
			if err := validateCSVPath(newCfg.EJ.CSVPath); err != nil {
				writeJSONError(w, err.Error(), http.StatusBadRequest)
				return
			}
		}
		if err := newCfg.Validate(); err != nil {
			writeJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}

		if err := config.SaveConfig(newCfg); err != nil {
			logrus.WithError(err).Error("Error saving config")
			writeJSONError(w, "設定の保存に失敗しました。", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"message": "設定を保存しました。再起動後に反映されます。"})
	}
}

// EJ 発注残 CSV のパスを検証するヘルパー関数
func validateCSVPath(path string) error {
	if path == "" {
		return nil
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.New("指定されたCSVファイルが見つかりません: " + path)
		}
		logrus.WithError(err).Warn("Error checking CSV path")
		return errors.New("CSVファイルの確認中にエラーが発生しました。")
	}
	if info.IsDir() {
		return errors.New("指定されたパスはファイルではありません: " + path)
	}
	return nil
}
