package cmd

import (
	"TaskHub/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动TaskHub服务器",
	Long:  `启动TaskHub任务系统的HTTP服务器，提供账号认证和任务管理API`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
