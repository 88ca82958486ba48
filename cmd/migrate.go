package cmd

import (
	"fmt"
	"log"

	"TaskHub/config"
	"TaskHub/db"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "执行数据库迁移",
	Long:  `创建或更新用户、验证码、微信登录状态和任务相关的数据表。`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		fmt.Printf("数据库: %s@%s:%s/%s\n", cfg.DBUser, cfg.DBHost, cfg.DBPort, cfg.DBName)

		if err := db.ConnectDB(cfg); err != nil {
			log.Fatalf("数据库连接失败: %v", err)
		}
		defer db.DB.Close()

		if err := db.ConnectGormDB(cfg); err != nil {
			log.Fatalf("gorm数据库连接失败: %v", err)
		}
		defer db.CloseGormDB()

		if err := db.InitDB(); err != nil {
			log.Fatalf("任务表迁移失败: %v", err)
		}
		if err := db.MigrateAuthModels(); err != nil {
			log.Fatalf("账号表迁移失败: %v", err)
		}

		fmt.Println("数据库迁移完成。")
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
