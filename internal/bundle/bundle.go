package bundle

import (
	"embed"
	"encoding/json"
	"sort"

	"cleantrail/pkg/errx"
)

//go:embed bundled-rules.json bundled-cookie-categories.json
var files embed.FS

// CategoryPair 有序的 Cookie 名称模式到类别的映射项，先匹配者生效
type CategoryPair struct {
	Pattern  string `json:"pattern"`
	Category string `json:"category"`
}

// DefaultCategories 类别包加载失败时的最小回退映射
func DefaultCategories() []CategoryPair {
	return []CategoryPair{
		{Pattern: "session", Category: "necessary"},
		{Pattern: "sid", Category: "necessary"},
		{Pattern: "track", Category: "analytics"},
	}
}

// ApprovedDomains 加载内置的已审核跟踪器域名列表，按字典序返回。
// 加载失败时返回空列表（调用方据此完全拆除规则集）。
func ApprovedDomains() ([]string, error) {
	b, err := files.ReadFile("bundled-rules.json")
	if err != nil {
		return nil, errx.Wrap(errx.CodeBundleInvalid, err, "read bundled rules")
	}
	var approved map[string]bool
	if err := json.Unmarshal(b, &approved); err != nil {
		return nil, errx.Wrap(errx.CodeBundleInvalid, err, "parse bundled rules")
	}
	domains := make([]string, 0, len(approved))
	for d, ok := range approved {
		if ok {
			domains = append(domains, d)
		}
	}
	sort.Strings(domains)
	return domains, nil
}

// CookieCategories 加载内置的 Cookie 类别映射。
// 加载失败时返回默认最小映射。
func CookieCategories() ([]CategoryPair, error) {
	b, err := files.ReadFile("bundled-cookie-categories.json")
	if err != nil {
		return DefaultCategories(), errx.Wrap(errx.CodeBundleInvalid, err, "read cookie categories")
	}
	var pairs []CategoryPair
	if err := json.Unmarshal(b, &pairs); err != nil {
		return DefaultCategories(), errx.Wrap(errx.CodeBundleInvalid, err, "parse cookie categories")
	}
	return pairs, nil
}
