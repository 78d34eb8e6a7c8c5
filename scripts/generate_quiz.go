// 离线出题脚本：读取本地字幕文件，切分后调用大模型出题，结果写为 JSON。
// 不连接数据库，适合调试切分参数和提示词。
//
// 用法: go run scripts/generate_quiz.go -subtitle lecture.srt -count 10 -type mixed -out quiz.json

package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"

	"video_quiz_backend/internal/config"
	"video_quiz_backend/internal/model"
	"video_quiz_backend/internal/service"
	"video_quiz_backend/internal/transcript"
	"video_quiz_backend/pkg/logger"

	"gopkg.in/yaml.v3"
)

type output struct {
	Segments  []model.Segment          `json:"segments"`
	Questions []model.Question         `json:"questions"`
	Manifest  model.GenerationManifest `json:"manifest"`
}

func main() {
	subtitlePath := flag.String("subtitle", "", "字幕文件路径（.srt 或 .vtt）")
	count := flag.Int("count", 0, "题目数量，0 表示使用配置")
	questionType := flag.String("type", "", "题型：multiple_choice、fill_in_the_blank、short_answer 或 mixed")
	outPath := flag.String("out", "", "输出文件，缺省输出到标准输出")
	flag.Parse()

	if *subtitlePath == "" {
		log.Fatal("必须指定 -subtitle")
	}

	data, err := os.ReadFile("configs/config.yaml")
	if err != nil {
		log.Fatalf("无法读取配置文件: %v", err)
	}

	cfg := config.Config{Pipeline: config.DefaultPipelineConfig()}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		log.Fatalf("解析配置文件失败: %v", err)
	}
	if err := cfg.Pipeline.Validate(); err != nil {
		log.Fatalf("出题参数不合法: %v", err)
	}

	// 标准输出留给结果 JSON
	cfg.Log.File = ""
	cfg.Log.Console = "stderr"
	if err := logger.InitLogger(&cfg); err != nil {
		log.Fatalf("日志初始化失败: %v", err)
	}
	defer logger.Sync()

	raw, err := os.ReadFile(*subtitlePath)
	if err != nil {
		log.Fatalf("无法读取字幕文件: %v", err)
	}
	format, err := transcript.DetectFormat(*subtitlePath, raw)
	if err != nil {
		log.Fatalf("字幕格式不支持: %v", err)
	}
	cues, err := transcript.ParseSubtitles(raw, format, cfg.Pipeline.MinCueDuration())
	if err != nil {
		log.Fatalf("字幕解析失败: %v", err)
	}

	segments := transcript.BuildSegments(cues, transcript.SegmentationConfigFrom(cfg.Pipeline))
	index, err := transcript.NewTemporalIndexFromSegments(segments)
	if err != nil {
		log.Fatalf("构建时间索引失败: %v", err)
	}
	log.Printf("共 %d 条字幕，切分为 %d 个片段", len(cues), len(segments))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	generator := service.NewQuestionGenerationService(service.NewAIService(cfg.AI), service.NewPipelineSettings(cfg.Pipeline))
	result, err := generator.Generate(ctx, index, service.GenerationOptions{
		Count: *count,
		Type:  model.QuestionType(*questionType),
	})
	if err != nil {
		log.Fatalf("出题失败: %v", err)
	}
	if result.Manifest.Partial() {
		log.Printf("仅生成 %d/%d 道题: %v", result.Manifest.Generated, result.Manifest.Requested, result.Manifest.Warnings)
	}

	encoded, err := json.MarshalIndent(output{Segments: segments, Questions: result.Questions, Manifest: result.Manifest}, "", "  ")
	if err != nil {
		log.Fatalf("序列化失败: %v", err)
	}

	if *outPath == "" {
		os.Stdout.Write(append(encoded, '\n'))
		return
	}
	if err := os.WriteFile(*outPath, encoded, 0644); err != nil {
		log.Fatalf("写入结果失败: %v", err)
	}
	log.Printf("已写入 %s", *outPath)
}
