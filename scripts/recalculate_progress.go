// 手动触发课程进度重算
//
// 定时任务只重算最近有变更的学员；修改课程结构（增删课时、调整计入及格）后
// 用此脚本对指定课程做一次完整重算。
//
// 用法:
//
//	go run scripts/recalculate_progress.go -tenant t1 -org o1 -course 12
//	go run scripts/recalculate_progress.go -targets scripts/targets.yaml
//
// targets 文件格式:
//
//	targets:
//	  - tenant: t1
//	    organization: o1
//	    courses: [12, 13]
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"learning_progress_backend/internal/config"
	"learning_progress_backend/internal/model"
	"learning_progress_backend/internal/repository"
	"learning_progress_backend/internal/service"
	"learning_progress_backend/pkg/database"
	"learning_progress_backend/pkg/lock"
	"learning_progress_backend/pkg/logger"

	"gopkg.in/yaml.v3"
)

type target struct {
	Tenant       string `yaml:"tenant"`
	Organization string `yaml:"organization"`
	Courses      []uint `yaml:"courses"`
}

type targetFile struct {
	Targets []target `yaml:"targets"`
}

func loadTargets(path string) ([]target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f targetFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return f.Targets, nil
}

func main() {
	configDir := flag.String("config", "configs", "配置文件目录")
	targetsPath := flag.String("targets", "", "批量重算的 yaml 文件")
	tenant := flag.String("tenant", "", "租户ID")
	org := flag.String("org", "", "机构ID")
	courseID := flag.Uint("course", 0, "课程ID")
	flag.Parse()

	var targets []target
	if *targetsPath != "" {
		loaded, err := loadTargets(*targetsPath)
		if err != nil {
			log.Fatalf("读取 targets 文件失败: %v", err)
		}
		targets = loaded
	} else if *tenant != "" && *courseID != 0 {
		targets = []target{{Tenant: *tenant, Organization: *org, Courses: []uint{*courseID}}}
	} else {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(*configDir)
	if err != nil {
		log.Fatalf("无法读取配置文件: %v", err)
	}

	logger.InitLogger(cfg)
	defer logger.Close()

	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode)
	if err != nil {
		log.Fatalf("数据库连接失败: %v", err)
	}
	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		log.Fatalf("Redis 连接失败: %v", err)
	}

	storeTimeout := cfg.Tracking.StoreTimeout()
	content := repository.NewContentRepository(db)
	tracks := repository.NewLessonTrackRepository(db)
	aggregates := repository.NewAggregateRepository(db)
	enrollments := repository.NewEnrollmentRepository(db)

	// 与线上实例共用同一把锁，避免和在线请求交错写汇总
	locker := lock.New(rdb, cfg.Tracking.LockTTL(), cfg.Tracking.LockWait())
	rollup := service.NewRollupService(db, content, tracks, aggregates, locker, storeTimeout)
	repair := service.NewRepairService(content, enrollments, tracks, rollup, storeTimeout)

	failed := false
	for _, t := range targets {
		scope := model.TenantScope{TenantID: t.Tenant, OrganizationID: t.Organization}
		for _, id := range t.Courses {
			processed, err := repair.RecalculateProgress(context.Background(), scope, id)
			if err != nil {
				failed = true
				log.Printf("课程 %d (%s/%s) 重算失败: %v", id, t.Tenant, t.Organization, err)
				continue
			}
			log.Printf("课程 %d (%s/%s) 重算完成，学员数 %d", id, t.Tenant, t.Organization, processed)
		}
	}

	if failed {
		logger.Close()
		os.Exit(1)
	}
	log.Println("完成！")
}
