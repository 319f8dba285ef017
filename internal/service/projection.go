package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"AytoSync/internal/model"
)

// ErrInvalidPayload 导入数据格式/取值错误，在任何写库操作之前返回
var ErrInvalidPayload = errors.New("导入数据格式错误")

// 各实体允许导入的 JSON 字段（其余字段一律丢弃）
var (
	ParticipantFields = []string{
		"id", "name", "gender", "status", "active", "knownFrom", "age",
		"photoUrl", "source", "bio", "socialMediaAccount",
	}
	MatchingNightFields = []string{
		"id", "name", "date", "pairs", "totalLights", "ausstrahlungsdatum", "ausstrahlungszeit",
	}
	MatchboxFields = []string{
		"id", "woman", "man", "matchType", "price", "buyer", "soldDate",
		"ausstrahlungsdatum", "ausstrahlungszeit",
	}
	PenaltyFields          = []string{"id", "participantName", "reason", "amount", "date", "description"}
	BroadcastNoteFields    = []string{"id", "date", "notes"}
	ProbabilityCacheFields = []string{"id", "dataHash", "payload"}
)

// RawRecord 未经投影的单条源记录
type RawRecord map[string]json.RawMessage

// ImportPayload POST /import 请求体
type ImportPayload struct {
	ClearBeforeImport Truthy      `json:"clearBeforeImport"`
	Participants      []RawRecord `json:"participants"`
	MatchingNights    []RawRecord `json:"matchingNights"`
	Matchboxes        []RawRecord `json:"matchboxes"`
	Penalties         []RawRecord `json:"penalties"`
	BroadcastNotes    []RawRecord `json:"broadcastNotes"`
	ProbabilityCache  []RawRecord `json:"probabilityCache"`
}

// Truthy 宽松布尔：false、0、""、null 为假，其余任意取值（含 "yes"、对象、数组）为真
type Truthy bool

func (t *Truthy) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case nil:
		*t = false
	case bool:
		*t = Truthy(x)
	case float64:
		*t = x != 0
	case string:
		*t = x != ""
	default:
		*t = true
	}
	return nil
}

// ParsePayload 解析导入请求体。兼容旧格式：顶层数组视为参与者列表
func ParsePayload(data []byte) (*ImportPayload, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: 请求体为空", ErrInvalidPayload)
	}

	var payload ImportPayload
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &payload.Participants); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return &payload, nil
	}
	if err := json.Unmarshal(trimmed, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return &payload, nil
}

// Project 只保留 allowed 中的字段，返回投影结果与被丢弃的字段名（已排序）
func Project(rec RawRecord, allowed []string) (RawRecord, []string) {
	out := make(RawRecord, len(allowed))
	keep := make(map[string]struct{}, len(allowed))
	for _, k := range allowed {
		keep[k] = struct{}{}
	}
	var dropped []string
	for k, v := range rec {
		if _, ok := keep[k]; ok {
			out[k] = v
			continue
		}
		dropped = append(dropped, k)
	}
	sort.Strings(dropped)
	return out, dropped
}

// decodeStrict 投影后的记录严格解码到模型，字段集合与白名单必须一致
func decodeStrict(rec RawRecord, dst interface{}) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// BuildBatch 对整个载荷做投影、规范化与校验；返回的 dropped 形如 "participants.foo"
func BuildBatch(p *ImportPayload) (*model.ImportBatch, []string, error) {
	batch := &model.ImportBatch{ClearBeforeImport: bool(p.ClearBeforeImport)}
	droppedSet := map[string]struct{}{}
	note := func(entity string, keys []string) {
		for _, k := range keys {
			droppedSet[entity+"."+k] = struct{}{}
		}
	}

	for i, rec := range p.Participants {
		item, dropped, err := projectParticipant(rec)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: participants[%d]: %v", ErrInvalidPayload, i, err)
		}
		note("participants", dropped)
		batch.Participants = append(batch.Participants, item)
	}
	for i, rec := range p.MatchingNights {
		item, dropped, err := projectMatchingNight(rec)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: matchingNights[%d]: %v", ErrInvalidPayload, i, err)
		}
		note("matchingNights", dropped)
		batch.MatchingNights = append(batch.MatchingNights, item)
	}
	for i, rec := range p.Matchboxes {
		item, dropped, err := projectMatchbox(rec)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: matchboxes[%d]: %v", ErrInvalidPayload, i, err)
		}
		note("matchboxes", dropped)
		batch.Matchboxes = append(batch.Matchboxes, item)
	}
	for i, rec := range p.Penalties {
		var item model.Penalty
		projected, dropped := Project(rec, PenaltyFields)
		if err := decodeStrict(projected, &item); err != nil {
			return nil, nil, fmt.Errorf("%w: penalties[%d]: %v", ErrInvalidPayload, i, err)
		}
		note("penalties", dropped)
		batch.Penalties = append(batch.Penalties, &item)
	}
	for i, rec := range p.BroadcastNotes {
		var item model.BroadcastNote
		projected, dropped := Project(rec, BroadcastNoteFields)
		if err := decodeStrict(projected, &item); err != nil {
			return nil, nil, fmt.Errorf("%w: broadcastNotes[%d]: %v", ErrInvalidPayload, i, err)
		}
		if err := ValidateBroadcastNote(&item); err != nil {
			return nil, nil, fmt.Errorf("%w: broadcastNotes[%d]: %v", ErrInvalidPayload, i, err)
		}
		note("broadcastNotes", dropped)
		batch.BroadcastNotes = append(batch.BroadcastNotes, &item)
	}
	for i, rec := range p.ProbabilityCache {
		var item model.ProbabilityCache
		projected, dropped := Project(rec, ProbabilityCacheFields)
		if err := decodeStrict(projected, &item); err != nil {
			return nil, nil, fmt.Errorf("%w: probabilityCache[%d]: %v", ErrInvalidPayload, i, err)
		}
		if err := ValidateProbabilityCache(&item); err != nil {
			return nil, nil, fmt.Errorf("%w: probabilityCache[%d]: %v", ErrInvalidPayload, i, err)
		}
		note("probabilityCache", dropped)
		batch.ProbabilityCache = append(batch.ProbabilityCache, &item)
	}

	dropped := make([]string, 0, len(droppedSet))
	for k := range droppedSet {
		dropped = append(dropped, k)
	}
	sort.Strings(dropped)
	return batch, dropped, nil
}

func projectParticipant(rec RawRecord) (*model.Participant, []string, error) {
	projected, dropped := Project(rec, ParticipantFields)
	if err := normalizeParticipant(projected); err != nil {
		return nil, nil, err
	}
	var p model.Participant
	if err := decodeStrict(projected, &p); err != nil {
		return nil, nil, err
	}
	if err := ValidateParticipant(&p); err != nil {
		return nil, nil, err
	}
	return &p, dropped, nil
}

// ValidateParticipant 规范化性别/状态别名后校验；导入与 CRUD 写入共用
func ValidateParticipant(p *model.Participant) error {
	if g, ok := genderAliases[strings.ToLower(strings.TrimSpace(p.Gender))]; ok {
		p.Gender = g
	}
	status := strings.TrimSpace(p.Status)
	if status == "" {
		p.Status = model.StatusActive
	} else if st, ok := statusAliases[strings.ToLower(status)]; ok {
		p.Status = st
	}

	if strings.TrimSpace(p.Name) == "" {
		return errors.New("name 必填")
	}
	if p.Gender != model.GenderFemale && p.Gender != model.GenderMale {
		return fmt.Errorf("gender 取值非法: %q", p.Gender)
	}
	switch p.Status {
	case model.StatusActive, model.StatusInactive, model.StatusPerfectMatch:
	default:
		return fmt.Errorf("status 取值非法: %q", p.Status)
	}
	return nil
}

var genderAliases = map[string]string{
	"f": model.GenderFemale, "w": model.GenderFemale, "weiblich": model.GenderFemale, "female": model.GenderFemale,
	"m": model.GenderMale, "männlich": model.GenderMale, "male": model.GenderMale,
}

var statusAliases = map[string]string{
	"aktiv":         model.StatusActive,
	"active":        model.StatusActive,
	"inaktiv":       model.StatusInactive,
	"inactive":      model.StatusInactive,
	"perfekt match": model.StatusPerfectMatch,
	"perfect match": model.StatusPerfectMatch,
}

// normalizeParticipant 兼容历史数据中的字符串年龄
func normalizeParticipant(rec RawRecord) error {
	if s, ok := rawString(rec["age"]); ok {
		s = strings.TrimSpace(s)
		if s == "" {
			rec["age"] = json.RawMessage("null")
		} else {
			age, err := strconv.Atoi(s)
			if err != nil {
				return fmt.Errorf("age 不是整数: %q", s)
			}
			rec["age"] = mustJSON(age)
		}
	}
	return nil
}

func projectMatchingNight(rec RawRecord) (*model.MatchingNight, []string, error) {
	projected, dropped := Project(rec, MatchingNightFields)
	var n model.MatchingNight
	if err := decodeStrict(projected, &n); err != nil {
		return nil, nil, err
	}
	if err := ValidateMatchingNight(&n); err != nil {
		return nil, nil, err
	}
	return &n, dropped, nil
}

// ValidateMatchingNight date 缺省时取 ausstrahlungsdatum，两者皆空则拒绝
func ValidateMatchingNight(n *model.MatchingNight) error {
	if strings.TrimSpace(n.Date) == "" {
		n.Date = n.Ausstrahlungsdatum
	}
	if strings.TrimSpace(n.Date) == "" {
		return errors.New("date 必填")
	}
	return nil
}

func ValidateBroadcastNote(n *model.BroadcastNote) error {
	if strings.TrimSpace(n.Date) == "" {
		return errors.New("date 必填")
	}
	return nil
}

func ValidateProbabilityCache(c *model.ProbabilityCache) error {
	if c.DataHash == "" {
		return errors.New("dataHash 必填")
	}
	return nil
}

func projectMatchbox(rec RawRecord) (*model.Matchbox, []string, error) {
	// 旧格式 womanId/manId → woman/man
	if _, ok := rec["woman"]; !ok {
		if v, ok := rec["womanId"]; ok {
			rec["woman"] = v
		}
	}
	if _, ok := rec["man"]; !ok {
		if v, ok := rec["manId"]; ok {
			rec["man"] = v
		}
	}
	projected, dropped := Project(rec, MatchboxFields)
	var m model.Matchbox
	if err := decodeStrict(projected, &m); err != nil {
		return nil, nil, err
	}
	return &m, dropped, nil
}

func rawString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 || raw[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func mustJSON(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
