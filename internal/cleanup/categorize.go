package cleanup

import (
	"strings"

	"cleantrail/internal/bundle"
)

// CategoryNecessary 永不被自动清理删除的类别，与配置面无关的硬性安全例外
const CategoryNecessary = "necessary"

// CategoryUncategorized 未匹配任何模式时的类别
const CategoryUncategorized = "uncategorized"

// Category 按有序模式表对 Cookie 名称做大小写不敏感的子串匹配，先匹配者生效
func Category(pairs []bundle.CategoryPair, cookieName string) string {
	name := strings.ToLower(cookieName)
	for _, p := range pairs {
		if strings.Contains(name, strings.ToLower(p.Pattern)) {
			return p.Category
		}
	}
	return CategoryUncategorized
}
