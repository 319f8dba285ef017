// Package metrics 定义导入、序列修复与客户端更新的 prometheus 指标
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ImportRuns 导入执行次数，result=ok/invalid/failed
	ImportRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ayto_import_runs_total",
		Help: "Number of import requests by outcome.",
	}, []string{"result"})

	// ImportRows 成功提交的导入行数
	ImportRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ayto_import_rows_total",
		Help: "Rows committed by imports, per entity.",
	}, []string{"entity"})

	// SequenceResets 自增序列重置结果
	SequenceResets = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ayto_sequence_resets_total",
		Help: "Sequence reset attempts per table and outcome.",
	}, []string{"table", "result"})

	// UpdateAttempts 客户端更新尝试次数
	UpdateAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ayto_update_attempts_total",
		Help: "Database update attempts by outcome.",
	}, []string{"result"})
)
