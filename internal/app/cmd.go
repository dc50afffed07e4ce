package app

// Command はサブコマンド名。
type Command string

const (
	// CommandServe はAPIサーバーを起動する。
	CommandServe Command = "serve"
	// CommandWorker はリマインダーとクリーンアップのジョブを実行する。
	CommandWorker Command = "worker"
	// CommandMigrate はスキーマのマイグレーションを適用して終了する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は起動中のAPIサーバーの/healthを確認して終了する。
	// distrolessイメージにはcurlがないため、Dockerのヘルスチェックから呼ばれる。
	CommandHealthcheck Command = "healthcheck"
)

// commandInfo はサブコマンドごとの属性。
type commandInfo struct {
	summary string
	// needsConfig が false のコマンドは必須環境変数を読まずに実行できる。
	needsConfig bool
}

var commands = map[Command]commandInfo{
	CommandServe:       {summary: "イベント管理APIを提供する", needsConfig: true},
	CommandWorker:      {summary: "開催前リマインダーと終了済みイベントの削除を定期実行する", needsConfig: true},
	CommandMigrate:     {summary: "users/events/registrations/feedback のスキーマを適用する", needsConfig: true},
	CommandHealthcheck: {summary: "SERVER_PORT のAPIサーバーに疎通確認する", needsConfig: false},
}

// ParseCommand は先頭の引数をサブコマンドとして解釈する。
// 引数がない場合と未知の名前の場合はserveになる。2番目以降の引数は見ない。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}
	if _, ok := commands[Command(args[0])]; ok {
		return Command(args[0])
	}
	return CommandServe
}

// RequiresConfig はDATABASE_URLなどの必須設定を読み込んでから実行するかを返す。
func (c Command) RequiresConfig() bool {
	return commands[c].needsConfig
}

// Summary はサブコマンドの説明を返す。
func (c Command) Summary() string {
	return commands[c].summary
}
