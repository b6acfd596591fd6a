package model

import (
	"time"

	"gorm.io/datatypes"
)

// 职位类型、经验等级等封闭枚举，爬虫启发式与 AI 分类共用同一套取值。
const (
	JobTypeInternship = "internship"
	JobTypeFullTime   = "full-time"
	JobTypePartTime   = "part-time"
	JobTypeContract   = "contract"

	ExperienceFresher = "fresher"
	ExperienceJunior  = "1-3"
	ExperienceMid     = "3-5"
	ExperienceSenior  = "5+"

	DegreeBTech = "btech"
	DegreeBALLB = "ballb"
	DegreeLLB   = "llb"
	DegreeAny   = "any"
)

// 枚举列表用于校验 AI 返回值。
var (
	JobTypes         = []string{JobTypeInternship, JobTypeFullTime, JobTypePartTime, JobTypeContract}
	ExperienceLevels = []string{ExperienceFresher, ExperienceJunior, ExperienceMid, ExperienceSenior}
	Degrees          = []string{DegreeBTech, DegreeBALLB, DegreeLLB, DegreeAny}
	Categories       = []string{
		"Engineering", "Design", "Marketing", "Sales", "Finance", "Legal",
		"HR", "Operations", "Data Science", "Product", "Customer Support", "Other",
	}
)

// Posting 表示适配器抓取并归一化后的单条职位，尚未入库。
// ApplyURL 必填且为绝对地址；PostedDate 缺省时由适配器填入抓取时间。
type Posting struct {
	Title           string    `json:"title"`
	Company         string    `json:"company"`
	Location        string    `json:"location"`
	JobType         string    `json:"job_type"`
	ExperienceLevel string    `json:"experience_level"`
	DegreeRequired  string    `json:"degree_required"`
	Description     string    `json:"description"`
	ApplyURL        string    `json:"apply_url"`
	Source          string    `json:"source"`
	SourceID        string    `json:"source_id"`
	PostedDate      time.Time `json:"posted_date"`
}

// Classification 是 AI 分类器的输出，字段覆盖抓取值。
// Salary 指针为空表示模型未给出数值。
type Classification struct {
	JobType         string   `json:"job_type"`
	ExperienceLevel string   `json:"experience_level"`
	DegreeRequired  string   `json:"degree_required"`
	SalaryMin       *float64 `json:"salary_min"`
	SalaryMax       *float64 `json:"salary_max"`
	SalaryCurrency  string   `json:"salary_currency"`
	Skills          []string `json:"skills"`
	Category        string   `json:"category"`
}

// Job 是持久化的职位实体
// - ContentHash: 内容指纹，唯一去重键，创建后不再变化
// - IsActive: 验证引擎连续失败或过期清扫会置为 false，只有重新抓取能复活
// - VerificationAttempts: 连续验证失败次数，验证成功后清零
// - Skills: AI 提取的技能列表，JSON 存储
// - CreatedAt/UpdatedAt: 由 GORM 自动维护
type Job struct {
	ID                    uint                        `gorm:"primaryKey" json:"id"`
	ContentHash           string                      `gorm:"uniqueIndex;size:64" json:"content_hash"`
	Title                 string                      `json:"title"`
	Company               string                      `json:"company"`
	Location              string                      `json:"location"`
	JobType               string                      `json:"job_type"`
	ExperienceLevel       string                      `json:"experience_level"`
	DegreeRequired        string                      `json:"degree_required"`
	Description           string                      `json:"description"`
	ApplyURL              string                      `json:"apply_url"`
	Source                string                      `json:"source"`
	SourceID              string                      `json:"source_id"`
	PostedDate            time.Time                   `json:"posted_date"`
	SalaryMin             *float64                    `json:"salary_min"`
	SalaryMax             *float64                    `json:"salary_max"`
	SalaryCurrency        string                      `json:"salary_currency"`
	Skills                datatypes.JSONSlice[string] `json:"skills"`
	Category              string                      `json:"category"`
	AIClassified          bool                        `json:"ai_classified"`
	IsActive              bool                        `json:"is_active"`
	LastVerified          time.Time                   `json:"last_verified"`
	VerificationAttempts  int                         `json:"verification_attempts"`
	LastVerificationError string                      `json:"last_verification_error"`
	CreatedAt             time.Time                   `json:"created_at"`
	UpdatedAt             time.Time                   `json:"updated_at"`
}
