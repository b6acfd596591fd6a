package scraper

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"nextgoal/internal/model"
)

// Fingerprint 计算职位内容指纹：title|company|location 小写后取 SHA-256。
// 同一职位被不同来源抓到时会折叠成同一条记录，这是唯一的去重键。
func Fingerprint(p model.Posting) string {
	content := strings.ToLower(p.Title + "|" + p.Company + "|" + p.Location)
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
