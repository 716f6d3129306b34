package firestore

import (
	"context"
	"fmt"
	"os"

	"cloud.google.com/go/firestore"
	"github.com/phuslu/log"
	"google.golang.org/api/option"

	"HexCollector-App/internal/logger"
)

type FirestoreClient struct {
	client *firestore.Client
}

// NewFirestoreClient はFirestoreクライアントを作成する
// credentialsFile が存在すればそれを使い、無ければデフォルト認証を使う
func NewFirestoreClient(ctx context.Context, projectID, credentialsFile string, l *log.Logger) (*FirestoreClient, error) {
	l = logger.OrDefault(l)
	if projectID == "" {
		return nil, fmt.Errorf("FirestoreのプロジェクトIDが設定されていません")
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		if _, err := os.Stat(credentialsFile); err != nil {
			l.Warn().Str("credentials", credentialsFile).Msg("⚠️ 認証ファイルが見つからないためデフォルト認証を使用します")
		} else {
			l.Info().Str("credentials", credentialsFile).Msg("📄 認証ファイルを使用します")
			opts = append(opts, option.WithCredentialsFile(credentialsFile))
		}
	}

	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("Firestoreクライアントの初期化に失敗: %w", err)
	}
	l.Info().Str("project_id", projectID).Msg("✅ Firestoreクライアントを初期化しました")

	return &FirestoreClient{client: client}, nil
}

func (fc *FirestoreClient) Close() error {
	return fc.client.Close()
}

func (fc *FirestoreClient) GetClient() *firestore.Client {
	return fc.client
}
