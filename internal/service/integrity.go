package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"AytoSync/internal/interfaces"
	"AytoSync/internal/model"

	"golang.org/x/sync/errgroup"
)

// DanglingReference 弱引用指向了不存在的参与者姓名
type DanglingReference struct {
	Entity string `json:"entity"`
	ID     uint64 `json:"id"`
	Field  string `json:"field"`
	Value  string `json:"value"`
}

// FieldViolation 字段取值不符合约束
type FieldViolation struct {
	Entity  string `json:"entity"`
	ID      uint64 `json:"id"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// IntegrityReport 引用完整性检查结果
type IntegrityReport struct {
	OK         bool                `json:"ok"`
	Dangling   []DanglingReference `json:"dangling"`
	Violations []FieldViolation    `json:"violations"`
}

var penaltyDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// IntegrityService 弱引用校验。数据库层不强制这些引用，调用方按需检查
type IntegrityService struct {
	reader interfaces.SnapshotReader
}

func NewIntegrityService(reader interfaces.SnapshotReader) *IntegrityService {
	return &IntegrityService{reader: reader}
}

func (s *IntegrityService) Check(ctx context.Context) (*IntegrityReport, error) {
	var (
		participants []*model.Participant
		matchboxes   []*model.Matchbox
		penalties    []*model.Penalty
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		participants, err = s.reader.ListParticipants(gctx)
		return err
	})
	g.Go(func() (err error) {
		matchboxes, err = s.reader.ListMatchboxes(gctx)
		return err
	})
	g.Go(func() (err error) {
		penalties, err = s.reader.ListPenalties(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("读取校验数据失败: %w", err)
	}
	return CheckIntegrity(participants, matchboxes, penalties), nil
}

// CheckIntegrity 纯函数：找出悬空的姓名引用与罚款字段问题
func CheckIntegrity(participants []*model.Participant, matchboxes []*model.Matchbox, penalties []*model.Penalty) *IntegrityReport {
	names := make(map[string]struct{}, len(participants))
	for _, p := range participants {
		names[p.Name] = struct{}{}
	}
	report := &IntegrityReport{
		Dangling:   []DanglingReference{},
		Violations: []FieldViolation{},
	}
	ref := func(entity string, id uint64, field, value string) {
		if value == "" {
			return
		}
		if _, ok := names[value]; !ok {
			report.Dangling = append(report.Dangling, DanglingReference{Entity: entity, ID: id, Field: field, Value: value})
		}
	}

	for _, m := range matchboxes {
		ref("matchboxes", m.ID, "woman", m.Woman)
		ref("matchboxes", m.ID, "man", m.Man)
	}
	for _, p := range penalties {
		ref("penalties", p.ID, "participantName", p.ParticipantName)
		for _, v := range ValidatePenalty(p) {
			v.ID = p.ID
			report.Violations = append(report.Violations, v)
		}
	}
	report.OK = len(report.Dangling) == 0 && len(report.Violations) == 0
	return report
}

// ValidatePenalty 罚款字段校验：姓名/原因必填，金额为正，日期 YYYY-MM-DD
func ValidatePenalty(p *model.Penalty) []FieldViolation {
	var out []FieldViolation
	add := func(field, msg string) {
		out = append(out, FieldViolation{Entity: "penalties", ID: p.ID, Field: field, Message: msg})
	}
	if strings.TrimSpace(p.ParticipantName) == "" {
		add("participantName", "参与者姓名必填")
	}
	if strings.TrimSpace(p.Reason) == "" {
		add("reason", "原因必填")
	}
	if p.Amount <= 0 {
		add("amount", "金额必须大于0")
	}
	if !penaltyDatePattern.MatchString(p.Date) {
		add("date", "日期格式必须为 YYYY-MM-DD")
	}
	return out
}
