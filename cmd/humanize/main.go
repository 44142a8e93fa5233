// Command humanize はリライトAPIサーバーとバックグラウンドワーカーを起動する。
//
// 使い方:
//
//	humanize [serve|worker|migrate|healthcheck|help]
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/humanize/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "humanize: %v\n", err)
		os.Exit(1)
	}
}
