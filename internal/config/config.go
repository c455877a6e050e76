// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Settings はサーバー起動時に一度だけ読み込む設定を保持する構造体です。
// セキュリティポリシー（許可オリジン等）は Resolver が毎回環境変数から解決します。
type Settings struct {
	// サーバー設定
	Port    string // APIサーバーのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// ジョブ/キュー設定
	QueueRedisURL    string // Asynq と取引レコード保存に使う Redis 接続URL
	JobExpireMinutes int    // 取引レコードの保持期間（分）

	// 決済プロバイダー設定
	PaymentAPIBaseURL string // 決済プロバイダーAPIのベースURL（送信前に必ず outbound ガードを通す）
	PaymentAPIKey     string // 決済プロバイダーAPIキー
	PaymentIPNSecret  string // IPN 署名検証用の共有シークレット
	PaymentIPNID      string // プロバイダーに登録済みの IPN 通知ID
	PaymentCallback   string // 決済完了後に利用者を戻す URL

	// IDプロバイダー設定
	IdentityURL    string // トークン検証に使うIDプロバイダーのURL
	IdentityAPIKey string // IDプロバイダーの公開APIキー
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Settings, error) {
	// .env.local ファイルを読み込む（存在しない場合はスキップ）
	loadEnvFile()

	settings := &Settings{
		// サーバー設定
		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "debug"),

		// ジョブ/キュー設定
		QueueRedisURL:    getEnv("QUEUE_REDIS_URL", "redis://127.0.0.1:6379/0"),
		JobExpireMinutes: getEnvAsInt("JOB_EXPIRE_MINUTES", 60*24),

		// 決済プロバイダー設定
		PaymentAPIBaseURL: getEnv("PAYMENT_API_BASE_URL", "https://cybqa.pesapal.com/pesapalv3"),
		PaymentAPIKey:     getEnv("PAYMENT_API_KEY", ""),
		PaymentIPNSecret:  getEnv("PAYMENT_IPN_SECRET", ""),
		PaymentIPNID:      getEnv("PAYMENT_IPN_ID", ""),
		PaymentCallback:   getEnv("PAYMENT_CALLBACK_URL", ""),

		// IDプロバイダー設定
		IdentityURL:    getEnv("IDENTITY_URL", ""),
		IdentityAPIKey: getEnv("IDENTITY_API_KEY", ""),
	}

	// 必須設定のバリデーション
	if err := settings.Validate(NewResolver()); err != nil {
		return nil, err
	}

	return settings, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
// ローカル開発では任意の項目も、本番環境では厳格にチェックします。
func (s *Settings) Validate(policy *Resolver) error {
	if policy == nil || !policy.IsProduction() {
		return nil
	}
	if s.IdentityURL == "" {
		return fmt.Errorf("IDENTITY_URL is required in production")
	}
	if s.QueueRedisURL == "" {
		return fmt.Errorf("QUEUE_REDIS_URL is required in production")
	}
	if policy.IsIPNSignatureRequired() && s.PaymentIPNSecret == "" {
		return fmt.Errorf("PAYMENT_IPN_SECRET is required when IPN signatures are required")
	}
	return nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
