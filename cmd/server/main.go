// cmd/server/main.go
package main

import (
	"log"
	"os"

	"github.com/Corphon/StoryboardStudio/internal/app"
	"github.com/Corphon/StoryboardStudio/internal/config"
	"github.com/Corphon/StoryboardStudio/internal/di"
)

func main() {
	log.Println("🚀 启动 Storyboard Studio 服务器...")

	// 1. 加载基础配置
	baseConfig, err := config.Load()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	log.Printf("✅ 基础配置加载完成，端口: %s", baseConfig.Port)

	// 2. 创建必要的目录
	for _, dir := range []string{baseConfig.DataDir, baseConfig.LogDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("创建目录失败 %s: %v", dir, err)
		}
	}

	// 3. 初始化配置、日志、服务与路由
	if err := app.Initialize(baseConfig.DataDir); err != nil {
		log.Fatalf("❌ 初始化应用失败: %v", err)
	}
	log.Printf("✅ 服务初始化完成，服务数量: %d", len(di.GetContainer().GetNames()))

	// 4. 启动服务器，阻塞到收到停止信号
	log.Printf("🔗 访问地址: http://localhost:%s/api/health", baseConfig.Port)
	if err := app.Run(); err != nil {
		log.Fatalf("❌ 服务器异常退出: %v", err)
	}
	log.Println("✅ 服务器优雅关闭完成")
}
