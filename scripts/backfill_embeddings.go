// 手动补齐题目向量索引
//
// 服务启动时会在后台自动补齐一次，此脚本用于首次开启向量搜索或批量导入题目之后。
// 内容未变化的题目会被跳过。
//
// 用法: go run scripts/backfill_embeddings.go -pause 200ms

package main

import (
	"context"
	"flag"
	"log"
	"mock_interview_backend/internal/config"
	"mock_interview_backend/internal/repository"
	"mock_interview_backend/internal/service"
	"mock_interview_backend/pkg/database"
	"mock_interview_backend/pkg/logger"
	"os/signal"
	"syscall"
)

func main() {
	pause := flag.Duration("pause", 0, "每道题之间的间隔，用于规避接口限流")
	flag.Parse()

	cfg, err := config.LoadConfig("configs")
	if err != nil {
		log.Fatalf("无法读取配置文件: %v", err)
	}
	logger.InitLogger(cfg)

	if cfg.Database.Driver != "postgres" {
		log.Fatalf("向量索引需要 postgres，当前驱动: %s", cfg.Database.Driver)
	}

	db, err := database.InitDB(&cfg.Database, false)
	if err != nil {
		log.Fatalf("数据库连接失败: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gemini, err := service.NewGeminiClient(ctx, cfg.Gemini, cfg.Evaluator.Timeout())
	if err != nil {
		log.Fatalf("Gemini 客户端初始化失败: %v", err)
	}

	index := service.NewQuestionIndex(
		repository.NewEmbeddingRepository(db),
		repository.NewQuestionRepository(db),
		gemini,
		cfg.Gemini.EmbeddingModel,
		cfg.VectorSearch.Dimensions,
	)

	log.Println("开始补齐题目向量...")
	n, err := index.Backfill(ctx, *pause)
	if err != nil {
		log.Fatalf("补齐失败（已处理 %d 道）: %v", n, err)
	}
	log.Printf("完成！共更新 %d 道题目", n)
}
