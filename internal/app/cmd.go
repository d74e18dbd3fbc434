package app

// Command はalexlistensバイナリの起動モードを表す。
// 通話APIと刈り取りジョブは記憶ストアを共有するため同一プロセスで動き、
// モードはserve・migrate・healthcheckの3つに収まる。
type Command string

const (
	// CommandServe はAPIサーバー（刈り取りジョブ同居）として起動する。
	CommandServe Command = "serve"
	// CommandMigrate は未適用のデータベースマイグレーションを適用して終了する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は稼働中サーバーの/healthを照会して終了する。
	// シェルを持たないdistrolessイメージのHEALTHCHECKから呼ぶ。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand は先頭のコマンドライン引数を起動モードとして解釈する。
// 引数なし・未知の引数はserve扱いにする。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "migrate":
		return CommandMigrate
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandServe
	}
}
