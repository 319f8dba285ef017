package model

// ImportStats 各类别实际写入行数
type ImportStats struct {
	Participants     int `json:"participants"`
	MatchingNights   int `json:"matchingNights"`
	Matchboxes       int `json:"matchboxes"`
	Penalties        int `json:"penalties"`
	BroadcastNotes   int `json:"broadcastNotes"`
	ProbabilityCache int `json:"probabilityCache"`
}

// Total 写入总行数
func (s ImportStats) Total() int {
	return s.Participants + s.MatchingNights + s.Matchboxes + s.Penalties + s.BroadcastNotes + s.ProbabilityCache
}

// ImportResult POST /import 成功响应
type ImportResult struct {
	Success bool        `json:"success"`
	Stats   ImportStats `json:"stats"`
}

// EntityCounts GET /stats 响应（空库探测用）
type EntityCounts struct {
	Participants   int64 `json:"participants"`
	MatchingNights int64 `json:"matchingNights"`
	Matchboxes     int64 `json:"matchboxes"`
	Penalties      int64 `json:"penalties"`
}

// MatchboxExport 导出时 Matchbox 的固定字段子集（不含 createdAt/updatedAt，由数据库生成）
type MatchboxExport struct {
	ID                 uint64   `json:"id"`
	Woman              string   `json:"woman"`
	Man                string   `json:"man"`
	MatchType          string   `json:"matchType"`
	Price              *float64 `json:"price"`
	Buyer              string   `json:"buyer"`
	SoldDate           string   `json:"soldDate"`
	Ausstrahlungsdatum string   `json:"ausstrahlungsdatum"`
	Ausstrahlungszeit  string   `json:"ausstrahlungszeit"`
}

// NewMatchboxExport 投影单条 Matchbox
func NewMatchboxExport(m *Matchbox) MatchboxExport {
	return MatchboxExport{
		ID:                 m.ID,
		Woman:              m.Woman,
		Man:                m.Man,
		MatchType:          m.MatchType,
		Price:              m.Price,
		Buyer:              m.Buyer,
		SoldDate:           m.SoldDate,
		Ausstrahlungsdatum: m.Ausstrahlungsdatum,
		Ausstrahlungszeit:  m.Ausstrahlungszeit,
	}
}

// Snapshot 导出快照文档，也是 Import Engine 可直接接受的载荷
type Snapshot struct {
	Participants   []*Participant   `json:"participants"`
	MatchingNights []*MatchingNight `json:"matchingNights"`
	Matchboxes     []MatchboxExport `json:"matchboxes"`
	Penalties      []*Penalty       `json:"penalties"`
	BroadcastNotes []*BroadcastNote `json:"broadcastNotes"`
	ExportedAt     string           `json:"exportedAt"`
	Version        string           `json:"version"`
}

// Manifest 远端发布的数据描述文件
type Manifest struct {
	Version     string `json:"version"`
	DataHash    string `json:"dataHash"`
	Released    string `json:"released"`
	Description string `json:"description,omitempty"`
}

// ImportBatch 经过字段白名单投影后的导入批次
type ImportBatch struct {
	ClearBeforeImport bool
	Participants      []*Participant
	MatchingNights    []*MatchingNight
	Matchboxes        []*Matchbox
	Penalties         []*Penalty
	BroadcastNotes    []*BroadcastNote
	ProbabilityCache  []*ProbabilityCache
}

// HasExplicitIDs 批次中是否存在调用方指定的主键
func (b *ImportBatch) HasExplicitIDs() bool {
	for _, p := range b.Participants {
		if p.ID != 0 {
			return true
		}
	}
	for _, n := range b.MatchingNights {
		if n.ID != 0 {
			return true
		}
	}
	for _, m := range b.Matchboxes {
		if m.ID != 0 {
			return true
		}
	}
	for _, p := range b.Penalties {
		if p.ID != 0 {
			return true
		}
	}
	for _, n := range b.BroadcastNotes {
		if n.ID != 0 {
			return true
		}
	}
	for _, c := range b.ProbabilityCache {
		if c.ID != 0 {
			return true
		}
	}
	return false
}
