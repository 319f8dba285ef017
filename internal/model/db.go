package model

import (
	"time"

	"gorm.io/datatypes"
)

// 参与者状态 / 性别枚举
const (
	GenderFemale = "F"
	GenderMale   = "M"

	StatusActive       = "Aktiv"
	StatusInactive     = "Inaktiv"
	StatusPerfectMatch = "Perfekt Match"
)

// Participant 参与者。name 被 Matchbox / Penalty 以弱引用方式引用（非外键）
type Participant struct {
	ID                 uint64 `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Name               string `gorm:"column:name;type:varchar(128);not null" json:"name"`
	Gender             string `gorm:"column:gender;type:varchar(1);not null" json:"gender"`
	Status             string `gorm:"column:status;type:varchar(16);default:Aktiv" json:"status"`
	Active             bool   `gorm:"column:active;type:boolean" json:"active"`
	KnownFrom          string `gorm:"column:known_from;type:varchar(256)" json:"knownFrom"`
	Age                *int   `gorm:"column:age;type:int" json:"age"`
	PhotoURL           string `gorm:"column:photo_url;type:text" json:"photoUrl"`
	Source             string `gorm:"column:source;type:text" json:"source"`
	Bio                string `gorm:"column:bio;type:text" json:"bio"`
	SocialMediaAccount string `gorm:"column:social_media_account;type:varchar(256)" json:"socialMediaAccount"`
}

// MatchingNight 匹配之夜。pairs 为无结构 JSON，导入时视为已规范化
type MatchingNight struct {
	ID                 uint64         `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Name               string         `gorm:"column:name;type:varchar(128)" json:"name"`
	Date               string         `gorm:"column:date;type:varchar(10);not null" json:"date"`
	Pairs              datatypes.JSON `gorm:"column:pairs" json:"pairs"`
	TotalLights        int            `gorm:"column:total_lights;type:int" json:"totalLights"`
	Ausstrahlungsdatum string         `gorm:"column:ausstrahlungsdatum;type:varchar(10)" json:"ausstrahlungsdatum"`
	Ausstrahlungszeit  string         `gorm:"column:ausstrahlungszeit;type:varchar(8)" json:"ausstrahlungszeit"`
	CreatedAt          time.Time      `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

// Matchbox 已售出/揭晓的配对盒。woman/man 为参与者姓名弱引用
type Matchbox struct {
	ID                 uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Woman              string    `gorm:"column:woman;type:varchar(128)" json:"woman"`
	Man                string    `gorm:"column:man;type:varchar(128)" json:"man"`
	MatchType          string    `gorm:"column:match_type;type:varchar(32)" json:"matchType"`
	Price              *float64  `gorm:"column:price;type:numeric(12,2)" json:"price"`
	Buyer              string    `gorm:"column:buyer;type:varchar(128)" json:"buyer"`
	SoldDate           string    `gorm:"column:sold_date;type:varchar(32)" json:"soldDate"`
	Ausstrahlungsdatum string    `gorm:"column:ausstrahlungsdatum;type:varchar(10)" json:"ausstrahlungsdatum"`
	Ausstrahlungszeit  string    `gorm:"column:ausstrahlungszeit;type:varchar(8)" json:"ausstrahlungszeit"`
	CreatedAt          time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt          time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// Penalty 罚款记录，participantName 为弱引用
type Penalty struct {
	ID              uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	ParticipantName string    `gorm:"column:participant_name;type:varchar(128);index" json:"participantName"`
	Reason          string    `gorm:"column:reason;type:varchar(256)" json:"reason"`
	Amount          float64   `gorm:"column:amount;type:numeric(12,2)" json:"amount"`
	Date            string    `gorm:"column:date;type:varchar(10)" json:"date"`
	Description     string    `gorm:"column:description;type:text" json:"description"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

// BroadcastNote 播出备注，date 为自然键（每个日期一条）
type BroadcastNote struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Date      string    `gorm:"column:date;type:varchar(10);uniqueIndex;not null" json:"date"`
	Notes     string    `gorm:"column:notes;type:text" json:"notes"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// ProbabilityCache 概率计算缓存，dataHash 为自然键（写入前先按 hash 查找）
type ProbabilityCache struct {
	ID        uint64         `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	DataHash  string         `gorm:"column:data_hash;type:varchar(128);index;not null" json:"dataHash"`
	Payload   datatypes.JSON `gorm:"column:payload" json:"payload"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// Meta 通用 key/value 水位表
type Meta struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Key       string    `gorm:"column:key;type:varchar(64);uniqueIndex;not null" json:"key"`
	Value     string    `gorm:"column:value;type:text" json:"value"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (Participant) TableName() string      { return "participants" }
func (MatchingNight) TableName() string    { return "matching_nights" }
func (Matchbox) TableName() string         { return "matchboxes" }
func (Penalty) TableName() string          { return "penalties" }
func (BroadcastNote) TableName() string    { return "broadcast_notes" }
func (ProbabilityCache) TableName() string { return "probability_cache" }
func (Meta) TableName() string             { return "meta" }

// Meta 中 Orchestrator 依赖的水位 key
const (
	MetaKeyDBVersion      = "dbVersion"
	MetaKeyDataHash       = "dataHash"
	MetaKeyLastUpdateDate = "lastUpdateDate"
)

// AllModels 按迁移顺序返回全部表模型
func AllModels() []interface{} {
	return []interface{}{
		&Participant{},
		&MatchingNight{},
		&Matchbox{},
		&Penalty{},
		&BroadcastNote{},
		&ProbabilityCache{},
		&Meta{},
	}
}
